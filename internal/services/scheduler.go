package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/gvargas9/smartterapist/internal/dto"
	"github.com/gvargas9/smartterapist/internal/models"
	"github.com/gvargas9/smartterapist/internal/store"
)

var (
	ErrSessionNotScheduled  = errors.New("session is not in scheduled state")
	ErrSessionNotInProgress = errors.New("session is not in progress")
	ErrSessionFinished      = errors.New("session already finished")
	ErrTherapistBusy        = errors.New("therapist already booked for this window")
)

// overlapScan bounds how far back the double-booking check looks for
// sessions that might still overlap the requested window.
const overlapScan = 12 * time.Hour

// SessionService schedules therapy appointments and walks them through
// scheduled, in-progress and the terminal completed or cancelled
// states, stamping actual start and end times on the way.
type SessionService struct {
	store *store.Store
}

func NewSessionService(st *store.Store) *SessionService {
	return &SessionService{store: st}
}

// Schedule books a session after checking the therapist is free for
// the window.
func (s *SessionService) Schedule(ctx context.Context, req *dto.CreateSessionRequest) (*models.TherapySession, error) {
	ts := &models.TherapySession{
		ClientID:       req.ClientID,
		TherapistID:    req.TherapistID,
		SessionType:    req.SessionType,
		ScheduledStart: req.ScheduledStart.UTC(),
		ScheduledEnd:   req.ScheduledEnd.UTC(),
		Notes:          req.Notes,
	}
	if err := s.checkTherapistFree(ctx, req.TherapistID, ts.ScheduledStart, ts.ScheduledEnd, uuid.Nil); err != nil {
		return nil, err
	}
	if err := s.store.CreateTherapySession(ctx, ts); err != nil {
		return nil, err
	}
	return ts, nil
}

// Begin moves a scheduled session to in-progress and stamps the actual
// start time.
func (s *SessionService) Begin(ctx context.Context, id uuid.UUID) (*models.TherapySession, error) {
	const op = "services.begin_session"

	ts, err := s.store.GetTherapySession(ctx, id)
	if err != nil {
		return nil, err
	}
	if ts.Status != models.SessionStatusScheduled {
		return nil, store.E(op, store.KindConflict, ErrSessionNotScheduled)
	}
	now := time.Now().UTC()
	ts.Status = models.SessionStatusInProgress
	ts.ActualStart = &now
	if err := s.store.UpdateTherapySession(ctx, ts); err != nil {
		return nil, err
	}
	return ts, nil
}

// Complete moves an in-progress session to completed and stamps the
// actual end time.
func (s *SessionService) Complete(ctx context.Context, id uuid.UUID) (*models.TherapySession, error) {
	const op = "services.complete_session"

	ts, err := s.store.GetTherapySession(ctx, id)
	if err != nil {
		return nil, err
	}
	if ts.Status != models.SessionStatusInProgress {
		return nil, store.E(op, store.KindConflict, ErrSessionNotInProgress)
	}
	now := time.Now().UTC()
	ts.Status = models.SessionStatusCompleted
	ts.ActualEnd = &now
	if err := s.store.UpdateTherapySession(ctx, ts); err != nil {
		return nil, err
	}
	return ts, nil
}

// Cancel ends a session that has not completed. A session already under
// way keeps its actual start and gets an actual end.
func (s *SessionService) Cancel(ctx context.Context, id uuid.UUID) (*models.TherapySession, error) {
	const op = "services.cancel_session"

	ts, err := s.store.GetTherapySession(ctx, id)
	if err != nil {
		return nil, err
	}
	switch ts.Status {
	case models.SessionStatusCompleted, models.SessionStatusCancelled:
		return nil, store.E(op, store.KindConflict, ErrSessionFinished)
	}
	if ts.ActualStart != nil {
		now := time.Now().UTC()
		ts.ActualEnd = &now
	}
	ts.Status = models.SessionStatusCancelled
	if err := s.store.UpdateTherapySession(ctx, ts); err != nil {
		return nil, err
	}
	return ts, nil
}

// Reschedule moves a still-scheduled session to a new window.
func (s *SessionService) Reschedule(ctx context.Context, id uuid.UUID, req *dto.RescheduleSessionRequest) (*models.TherapySession, error) {
	const op = "services.reschedule_session"

	ts, err := s.store.GetTherapySession(ctx, id)
	if err != nil {
		return nil, err
	}
	if ts.Status != models.SessionStatusScheduled {
		return nil, store.E(op, store.KindConflict, ErrSessionNotScheduled)
	}
	start, end := req.ScheduledStart.UTC(), req.ScheduledEnd.UTC()
	if err := s.checkTherapistFree(ctx, ts.TherapistID, start, end, ts.ID); err != nil {
		return nil, err
	}
	ts.ScheduledStart = start
	ts.ScheduledEnd = end
	if err := s.store.UpdateTherapySession(ctx, ts); err != nil {
		return nil, err
	}
	return ts, nil
}

// SetNotes replaces the free-form session notes.
func (s *SessionService) SetNotes(ctx context.Context, id uuid.UUID, notes string) (*models.TherapySession, error) {
	ts, err := s.store.GetTherapySession(ctx, id)
	if err != nil {
		return nil, err
	}
	ts.Notes = notes
	if err := s.store.UpdateTherapySession(ctx, ts); err != nil {
		return nil, err
	}
	return ts, nil
}

// checkTherapistFree scans the therapist's sessions around the window
// and rejects overlaps with anything not cancelled. exclude skips the
// session being rescheduled.
func (s *SessionService) checkTherapistFree(ctx context.Context, therapistID uuid.UUID, start, end time.Time, exclude uuid.UUID) error {
	const op = "services.check_therapist_free"

	if !end.After(start) {
		return store.E(op, store.KindInvalid, errors.New("end must be after start"))
	}
	from := start.Add(-overlapScan)
	existing, err := s.store.ListTherapySessions(ctx, store.SessionFilter{
		TherapistID: &therapistID,
		From:        &from,
		To:          &end,
	})
	if err != nil {
		return err
	}
	for i := range existing {
		other := &existing[i]
		if other.ID == exclude || other.Status == models.SessionStatusCancelled {
			continue
		}
		if other.ScheduledStart.Before(end) && other.ScheduledEnd.After(start) {
			return store.E(op, store.KindConflict, ErrTherapistBusy)
		}
	}
	return nil
}
