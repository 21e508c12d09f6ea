package behavior

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/gvargas9/smartterapist/internal/models"
	"github.com/gvargas9/smartterapist/internal/store"
	"golang.org/x/sync/singleflight"
)

// Resolver owns the "currently active preset" question: it selects the
// preset for a client and is the single writer of the at-most-one
// active assignment invariant.
type Resolver struct {
	store *store.Store
	cache *Cache
	group singleflight.Group
}

func NewResolver(st *store.Store, cache *Cache) *Resolver {
	return &Resolver{store: st, cache: cache}
}

// Resolve returns the client's active preset joined from its active
// assignment, or nil when the client has none. More than one active
// assignment violates the invariant; the resolver picks the smallest
// behavior id, reports the inconsistency, and carries on.
func (r *Resolver) Resolve(ctx context.Context, clientID uuid.UUID) (*models.Behavior, error) {
	if preset, ok := r.cache.Get(ctx, clientID); ok {
		return preset, nil
	}

	v, err, _ := r.group.Do(clientID.String(), func() (any, error) {
		asgs, err := r.store.ListAssignments(ctx, clientID, true)
		if err != nil {
			return nil, err
		}
		if len(asgs) == 0 {
			r.cache.Put(ctx, clientID, nil)
			return (*models.Behavior)(nil), nil
		}
		if len(asgs) > 1 {
			slog.Error("multiple active behavior assignments for client",
				"client_id", clientID, "count", len(asgs), "picked", asgs[0].BehaviorID)
		}
		preset, err := r.store.GetBehavior(ctx, asgs[0].BehaviorID)
		if err != nil {
			if store.IsNotFound(err) {
				slog.Error("active assignment references a missing behavior",
					"client_id", clientID, "behavior_id", asgs[0].BehaviorID)
				return (*models.Behavior)(nil), nil
			}
			return nil, err
		}
		r.cache.Put(ctx, clientID, preset)
		return preset, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Behavior), nil
}

// Assign upserts one (client, behavior) link. Activating a link
// deactivates every other assignment of the client in the same
// transaction, so the invariant holds at commit; a failed attempt
// rolls back whole and can simply be re-run.
func (r *Resolver) Assign(ctx context.Context, clientID, behaviorID uuid.UUID, active bool) (*models.ClientBehavior, error) {
	var out *models.ClientBehavior
	err := r.store.Transaction(ctx, func(tx *store.Store) error {
		if active {
			if err := tx.DeactivateAssignments(ctx, clientID, behaviorID); err != nil {
				return err
			}
		}
		asg, err := tx.UpsertAssignment(ctx, clientID, behaviorID, active)
		if err != nil {
			return err
		}
		out = asg
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.cache.Invalidate(ctx, clientID)
	return out, nil
}

// Unassign removes the (client, behavior) link outright.
func (r *Resolver) Unassign(ctx context.Context, clientID, behaviorID uuid.UUID) error {
	if err := r.store.DeleteAssignment(ctx, clientID, behaviorID); err != nil {
		return err
	}
	r.cache.Invalidate(ctx, clientID)
	return nil
}

// WatchInvalidations drops cache entries whenever an assignment row
// changes, including rows mirrored in from other instances. Runs until
// ctx is done.
func (r *Resolver) WatchInvalidations(ctx context.Context) {
	if r.cache == nil {
		return
	}
	sub := r.store.Subscribe(store.TableClientBehaviors)
	go func() {
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub.C:
				if !ok {
					return
				}
				var asg models.ClientBehavior
				if err := ev.Decode(&asg); err != nil {
					continue
				}
				r.cache.Invalidate(ctx, asg.ClientID)
			}
		}
	}()
}
