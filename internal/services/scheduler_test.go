package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/gvargas9/smartterapist/internal/database"
	"github.com/gvargas9/smartterapist/internal/dto"
	"github.com/gvargas9/smartterapist/internal/models"
	"github.com/gvargas9/smartterapist/internal/store"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store.New(db)
}

func seedParticipants(t *testing.T, st *store.Store) (*models.Client, *models.Therapist) {
	t.Helper()
	ctx := context.Background()
	cu := &models.User{Email: uuid.NewString() + "@example.com", Role: models.RoleClient}
	if err := st.CreateUser(ctx, cu); err != nil {
		t.Fatalf("create client user: %v", err)
	}
	c := &models.Client{UserID: cu.ID}
	if err := st.CreateClient(ctx, c); err != nil {
		t.Fatalf("create client: %v", err)
	}
	tu := &models.User{Email: uuid.NewString() + "@example.com", Role: models.RoleTherapist}
	if err := st.CreateUser(ctx, tu); err != nil {
		t.Fatalf("create therapist user: %v", err)
	}
	th := &models.Therapist{UserID: tu.ID}
	if err := st.CreateTherapist(ctx, th); err != nil {
		t.Fatalf("create therapist: %v", err)
	}
	return c, th
}

func sessionAt(c *models.Client, th *models.Therapist, start time.Time, d time.Duration) *dto.CreateSessionRequest {
	return &dto.CreateSessionRequest{
		ClientID:       c.ID,
		TherapistID:    th.ID,
		SessionType:    models.SessionTypeFollowUp,
		ScheduledStart: start,
		ScheduledEnd:   start.Add(d),
	}
}

func TestScheduleBooksSession(t *testing.T) {
	st := newTestStore(t)
	svc := NewSessionService(st)
	ctx := context.Background()
	c, th := seedParticipants(t, st)
	start := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	req := sessionAt(c, th, start, time.Hour)
	req.Notes = "intake follow-up"
	ts, err := svc.Schedule(ctx, req)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if ts.ID == uuid.Nil {
		t.Fatalf("expected assigned id")
	}
	if ts.Status != models.SessionStatusScheduled {
		t.Fatalf("status = %q, want scheduled", ts.Status)
	}
	if !ts.ScheduledStart.Equal(start) || !ts.ScheduledEnd.Equal(start.Add(time.Hour)) {
		t.Fatalf("window = [%v, %v], want [%v, %v]", ts.ScheduledStart, ts.ScheduledEnd, start, start.Add(time.Hour))
	}
	if ts.ActualStart != nil || ts.ActualEnd != nil {
		t.Fatalf("actual times should stay nil until the session runs")
	}

	got, err := st.GetTherapySession(ctx, ts.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.Notes != "intake follow-up" {
		t.Fatalf("notes = %q", got.Notes)
	}
}

func TestScheduleRejectsDoubleBooking(t *testing.T) {
	st := newTestStore(t)
	svc := NewSessionService(st)
	ctx := context.Background()
	c, th := seedParticipants(t, st)
	base := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	if _, err := svc.Schedule(ctx, sessionAt(c, th, base, time.Hour)); err != nil {
		t.Fatalf("schedule first: %v", err)
	}

	overlapping := []struct {
		name  string
		start time.Time
		d     time.Duration
	}{
		{"straddles end", base.Add(30 * time.Minute), time.Hour},
		{"inside booking", base.Add(15 * time.Minute), 30 * time.Minute},
		{"swallows booking", base.Add(-time.Hour), 3 * time.Hour},
	}
	for _, tc := range overlapping {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Schedule(ctx, sessionAt(c, th, tc.start, tc.d))
			if !store.IsConflict(err) {
				t.Fatalf("err = %v, want conflict", err)
			}
			if !errors.Is(err, ErrTherapistBusy) {
				t.Fatalf("err = %v, want ErrTherapistBusy", err)
			}
		})
	}

	// Same window with a different therapist is fine.
	c2, th2 := seedParticipants(t, st)
	if _, err := svc.Schedule(ctx, sessionAt(c2, th2, base, time.Hour)); err != nil {
		t.Fatalf("schedule other therapist: %v", err)
	}
}

func TestScheduleAllowsBackToBack(t *testing.T) {
	st := newTestStore(t)
	svc := NewSessionService(st)
	ctx := context.Background()
	c, th := seedParticipants(t, st)
	base := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	if _, err := svc.Schedule(ctx, sessionAt(c, th, base, time.Hour)); err != nil {
		t.Fatalf("schedule middle: %v", err)
	}
	if _, err := svc.Schedule(ctx, sessionAt(c, th, base.Add(time.Hour), time.Hour)); err != nil {
		t.Fatalf("schedule right after: %v", err)
	}
	if _, err := svc.Schedule(ctx, sessionAt(c, th, base.Add(-time.Hour), time.Hour)); err != nil {
		t.Fatalf("schedule right before: %v", err)
	}
}

func TestScheduleIgnoresCancelledBookings(t *testing.T) {
	st := newTestStore(t)
	svc := NewSessionService(st)
	ctx := context.Background()
	c, th := seedParticipants(t, st)
	base := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	first, err := svc.Schedule(ctx, sessionAt(c, th, base, time.Hour))
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if _, err := svc.Cancel(ctx, first.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := svc.Schedule(ctx, sessionAt(c, th, base.Add(30*time.Minute), time.Hour)); err != nil {
		t.Fatalf("schedule over cancelled slot: %v", err)
	}
}

func TestScheduleRejectsInvalidWindow(t *testing.T) {
	st := newTestStore(t)
	svc := NewSessionService(st)
	ctx := context.Background()
	c, th := seedParticipants(t, st)
	base := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	for _, d := range []time.Duration{0, -time.Hour} {
		if _, err := svc.Schedule(ctx, sessionAt(c, th, base, d)); !store.IsInvalid(err) {
			t.Fatalf("duration %v: err = %v, want invalid", d, err)
		}
	}
	sessions, err := st.ListTherapySessions(ctx, store.SessionFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("got %d sessions, want none persisted", len(sessions))
	}
}

func TestBeginCompleteLifecycle(t *testing.T) {
	st := newTestStore(t)
	svc := NewSessionService(st)
	ctx := context.Background()
	c, th := seedParticipants(t, st)
	base := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	ts, err := svc.Schedule(ctx, sessionAt(c, th, base, time.Hour))
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}

	// Completing before the session started is a state error.
	if _, err := svc.Complete(ctx, ts.ID); !store.IsConflict(err) || !errors.Is(err, ErrSessionNotInProgress) {
		t.Fatalf("complete scheduled: err = %v, want ErrSessionNotInProgress conflict", err)
	}

	begun, err := svc.Begin(ctx, ts.ID)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if begun.Status != models.SessionStatusInProgress {
		t.Fatalf("status = %q, want in-progress", begun.Status)
	}
	if begun.ActualStart == nil || begun.ActualStart.IsZero() {
		t.Fatalf("expected actual start stamped")
	}
	if _, err := svc.Begin(ctx, ts.ID); !store.IsConflict(err) || !errors.Is(err, ErrSessionNotScheduled) {
		t.Fatalf("begin twice: err = %v, want ErrSessionNotScheduled conflict", err)
	}

	done, err := svc.Complete(ctx, ts.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != models.SessionStatusCompleted {
		t.Fatalf("status = %q, want completed", done.Status)
	}
	if done.ActualEnd == nil {
		t.Fatalf("expected actual end stamped")
	}
	if done.ActualEnd.Before(*done.ActualStart) {
		t.Fatalf("actual end %v before actual start %v", done.ActualEnd, done.ActualStart)
	}
	if _, err := svc.Complete(ctx, ts.ID); !errors.Is(err, ErrSessionNotInProgress) {
		t.Fatalf("complete twice: err = %v, want ErrSessionNotInProgress", err)
	}
	if _, err := svc.Begin(ctx, ts.ID); !errors.Is(err, ErrSessionNotScheduled) {
		t.Fatalf("begin completed: err = %v, want ErrSessionNotScheduled", err)
	}

	got, err := st.GetTherapySession(ctx, ts.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.Status != models.SessionStatusCompleted || got.ActualStart == nil || got.ActualEnd == nil {
		t.Fatalf("persisted session = %+v, want completed with actual times", got)
	}
}

func TestBeginUnknownSession(t *testing.T) {
	st := newTestStore(t)
	svc := NewSessionService(st)

	if _, err := svc.Begin(context.Background(), uuid.New()); !store.IsNotFound(err) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestCancelScheduledLeavesActualTimesEmpty(t *testing.T) {
	st := newTestStore(t)
	svc := NewSessionService(st)
	ctx := context.Background()
	c, th := seedParticipants(t, st)
	base := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	ts, err := svc.Schedule(ctx, sessionAt(c, th, base, time.Hour))
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	cancelled, err := svc.Cancel(ctx, ts.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != models.SessionStatusCancelled {
		t.Fatalf("status = %q, want cancelled", cancelled.Status)
	}
	if cancelled.ActualStart != nil || cancelled.ActualEnd != nil {
		t.Fatalf("never-started session must not get actual times")
	}
	if _, err := svc.Cancel(ctx, ts.ID); !store.IsConflict(err) || !errors.Is(err, ErrSessionFinished) {
		t.Fatalf("cancel twice: err = %v, want ErrSessionFinished conflict", err)
	}
}

func TestCancelInProgressStampsActualEnd(t *testing.T) {
	st := newTestStore(t)
	svc := NewSessionService(st)
	ctx := context.Background()
	c, th := seedParticipants(t, st)
	base := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	ts, err := svc.Schedule(ctx, sessionAt(c, th, base, time.Hour))
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if _, err := svc.Begin(ctx, ts.ID); err != nil {
		t.Fatalf("begin: %v", err)
	}
	cancelled, err := svc.Cancel(ctx, ts.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != models.SessionStatusCancelled {
		t.Fatalf("status = %q, want cancelled", cancelled.Status)
	}
	if cancelled.ActualStart == nil || cancelled.ActualEnd == nil {
		t.Fatalf("interrupted session keeps its start and gains an end")
	}
}

func TestCancelCompletedSession(t *testing.T) {
	st := newTestStore(t)
	svc := NewSessionService(st)
	ctx := context.Background()
	c, th := seedParticipants(t, st)
	base := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	ts, err := svc.Schedule(ctx, sessionAt(c, th, base, time.Hour))
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if _, err := svc.Begin(ctx, ts.ID); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := svc.Complete(ctx, ts.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := svc.Cancel(ctx, ts.ID); !errors.Is(err, ErrSessionFinished) {
		t.Fatalf("err = %v, want ErrSessionFinished", err)
	}
}

func TestRescheduleMovesWindow(t *testing.T) {
	st := newTestStore(t)
	svc := NewSessionService(st)
	ctx := context.Background()
	c, th := seedParticipants(t, st)
	base := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	ts, err := svc.Schedule(ctx, sessionAt(c, th, base, time.Hour))
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}

	// Shifting by half an hour overlaps the session's own old window;
	// the free check must not count the session against itself.
	shifted := base.Add(30 * time.Minute)
	moved, err := svc.Reschedule(ctx, ts.ID, &dto.RescheduleSessionRequest{
		ScheduledStart: shifted,
		ScheduledEnd:   shifted.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if !moved.ScheduledStart.Equal(shifted) || !moved.ScheduledEnd.Equal(shifted.Add(time.Hour)) {
		t.Fatalf("window = [%v, %v], want [%v, %v]", moved.ScheduledStart, moved.ScheduledEnd, shifted, shifted.Add(time.Hour))
	}

	got, err := st.GetTherapySession(ctx, ts.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if !got.ScheduledStart.Equal(shifted) {
		t.Fatalf("persisted start = %v, want %v", got.ScheduledStart, shifted)
	}
}

func TestRescheduleConflictsWithOtherBooking(t *testing.T) {
	st := newTestStore(t)
	svc := NewSessionService(st)
	ctx := context.Background()
	c, th := seedParticipants(t, st)
	base := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	first, err := svc.Schedule(ctx, sessionAt(c, th, base, time.Hour))
	if err != nil {
		t.Fatalf("schedule first: %v", err)
	}
	if _, err := svc.Schedule(ctx, sessionAt(c, th, base.Add(2*time.Hour), time.Hour)); err != nil {
		t.Fatalf("schedule second: %v", err)
	}

	clash := base.Add(2*time.Hour + 30*time.Minute)
	_, err = svc.Reschedule(ctx, first.ID, &dto.RescheduleSessionRequest{
		ScheduledStart: clash,
		ScheduledEnd:   clash.Add(time.Hour),
	})
	if !errors.Is(err, ErrTherapistBusy) {
		t.Fatalf("err = %v, want ErrTherapistBusy", err)
	}

	// The failed attempt must leave the original window untouched.
	got, err := st.GetTherapySession(ctx, first.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if !got.ScheduledStart.Equal(base) {
		t.Fatalf("start = %v, want %v", got.ScheduledStart, base)
	}
}

func TestRescheduleRequiresScheduledState(t *testing.T) {
	st := newTestStore(t)
	svc := NewSessionService(st)
	ctx := context.Background()
	c, th := seedParticipants(t, st)
	base := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	ts, err := svc.Schedule(ctx, sessionAt(c, th, base, time.Hour))
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if _, err := svc.Begin(ctx, ts.ID); err != nil {
		t.Fatalf("begin: %v", err)
	}
	_, err = svc.Reschedule(ctx, ts.ID, &dto.RescheduleSessionRequest{
		ScheduledStart: base.Add(3 * time.Hour),
		ScheduledEnd:   base.Add(4 * time.Hour),
	})
	if !store.IsConflict(err) || !errors.Is(err, ErrSessionNotScheduled) {
		t.Fatalf("err = %v, want ErrSessionNotScheduled conflict", err)
	}
}

func TestSetNotes(t *testing.T) {
	st := newTestStore(t)
	svc := NewSessionService(st)
	ctx := context.Background()
	c, th := seedParticipants(t, st)
	base := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	ts, err := svc.Schedule(ctx, sessionAt(c, th, base, time.Hour))
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if _, err := svc.SetNotes(ctx, ts.ID, "client reports better sleep"); err != nil {
		t.Fatalf("set notes: %v", err)
	}
	got, err := st.GetTherapySession(ctx, ts.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.Notes != "client reports better sleep" {
		t.Fatalf("notes = %q", got.Notes)
	}
	if _, err := svc.SetNotes(ctx, uuid.New(), "x"); !store.IsNotFound(err) {
		t.Fatalf("unknown id: err = %v, want not found", err)
	}
}
