package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"gorm.io/gorm"
)

// Kind classifies store failures so callers can branch on the class of
// failure instead of matching error strings.
type Kind string

const (
	KindInternal         Kind = "internal"
	KindNotFound         Kind = "not_found"
	KindConflict         Kind = "conflict"
	KindTransient        Kind = "transient"
	KindPermissionDenied Kind = "permission_denied"
	KindInvalid          Kind = "invalid"
	KindCancelled        Kind = "cancelled"
)

// Sentinel causes surfaced by the store. Wrapped in an *Error, so both
// errors.Is and KindOf work on them.
var (
	ErrConversationClosed = errors.New("conversation is closed")
	ErrEmptyMessage       = errors.New("message needs text or an audio reference")
	ErrUnknownSender      = errors.New("unknown message sender")
	ErrInactiveBehavior   = errors.New("behavior preset is not active")
)

// Error pairs a failure classification with its underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// E wraps err with an operation name and a classification.
func E(op string, kind Kind, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf reports the classification of err, walking wrapped causes.
// Unclassified non-nil errors report KindInternal; nil reports "".
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	switch {
	case errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return KindTransient
	case errors.Is(err, gorm.ErrRecordNotFound):
		return KindNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return KindConflict
	}
	return KindInternal
}

func IsNotFound(err error) bool  { return KindOf(err) == KindNotFound }
func IsConflict(err error) bool  { return KindOf(err) == KindConflict }
func IsTransient(err error) bool { return KindOf(err) == KindTransient }
func IsCancelled(err error) bool { return KindOf(err) == KindCancelled }
func IsInvalid(err error) bool   { return KindOf(err) == KindInvalid }

// classify translates driver and gorm errors into classified store errors.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return E(op, KindNotFound, err)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return E(op, KindConflict, err)
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return E(op, KindInvalid, err)
	case errors.Is(err, context.Canceled):
		return E(op, KindCancelled, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, driver.ErrBadConn):
		return E(op, KindTransient, err)
	}
	return E(op, KindInternal, err)
}

// Retry runs fn up to attempts times, backing off with jitter between
// tries. Only Conflict and Transient failures are retried; everything
// else surfaces immediately.
func Retry(ctx context.Context, attempts int, base time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if k := KindOf(err); k != KindConflict && k != KindTransient {
			return err
		}
		if i == attempts-1 {
			break
		}
		delay := base<<i + time.Duration(rand.Int63n(int64(base)))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return E("store.retry", KindCancelled, ctx.Err())
		}
	}
	return err
}
