// Package election implements heartbeat-based leader election over the shared
// broadcast record. Every node runs an Elector; at most one node at a time
// holds the seat and drives the game engine. There is no strict mutual
// exclusion; correctness rests on the conditional claim write plus a dead
// threshold comfortably above the heartbeat interval.
package election

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"youniverse/internal/middleware"
	"youniverse/internal/repository"
)

// Callbacks are the leader-lifecycle hooks. OnElected receives a context that
// is cancelled on demotion, so leader-only tasks die with the leadership.
// HealthCheck runs every poll while leading; the engine uses it to self-heal
// missed transitions.
type Callbacks struct {
	OnElected   func(ctx context.Context)
	OnDemoted   func()
	HealthCheck func(ctx context.Context)
}

// Elector periodically renews or claims leadership over the broadcast record.
type Elector struct {
	broadcasts    repository.BroadcastRepository
	interval      time.Duration
	deadThreshold time.Duration
	callbacks     Callbacks
	logger        *slog.Logger

	// now is swappable for tests.
	now func() time.Time

	mu         sync.Mutex
	nodeID     string
	leading    bool
	leaderCtx  context.Context
	cancelLead context.CancelFunc
}

// New creates an Elector. nodeID may be empty; the elector idles until
// SetIdentity provides one (identity can resolve after startup).
func New(broadcasts repository.BroadcastRepository, nodeID string, interval, deadThreshold time.Duration, cb Callbacks, logger *slog.Logger) *Elector {
	return &Elector{
		broadcasts:    broadcasts,
		interval:      interval,
		deadThreshold: deadThreshold,
		callbacks:     cb,
		logger:        logger,
		now:           time.Now,
		nodeID:        nodeID,
	}
}

// SetIdentity attaches the node identity once it is known. The election loop
// picks it up on its next tick; it never runs permanently disabled.
func (e *Elector) SetIdentity(nodeID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nodeID = nodeID
}

// Identity returns the node identity, or empty if not yet resolved.
func (e *Elector) Identity() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.nodeID
}

// IsLeader reports whether this node currently believes it holds the seat.
func (e *Elector) IsLeader() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.leading
}

// Run executes the election loop until ctx is cancelled, then releases the
// seat if held so followers do not wait out the dead threshold.
func (e *Elector) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.stepDown(context.Background())
			return
		case <-ticker.C:
			e.Poll(ctx)
		}
	}
}

// Poll executes one election round: renew if leading, claim if the seat looks
// dead, demote if someone else is alive. Exported so tests can drive the
// protocol without timers.
func (e *Elector) Poll(ctx context.Context) {
	nodeID := e.Identity()
	if nodeID == "" {
		return
	}

	record, err := e.broadcasts.Get(ctx)
	if err != nil {
		e.logger.ErrorContext(ctx, "election: failed to read broadcast record", slog.String("error", err.Error()))
		return
	}

	now := e.now()

	switch {
	case record.LeaderID == nodeID:
		ok, err := e.broadcasts.Heartbeat(ctx, nodeID, now)
		if err != nil {
			e.logger.ErrorContext(ctx, "election: heartbeat write failed", slog.String("error", err.Error()))
			return
		}
		if !ok {
			// Someone took the seat between our read and write.
			e.demote()
			return
		}
		middleware.HeartbeatsSent.Inc()
		e.promote(ctx)
		if e.callbacks.HealthCheck != nil {
			e.callbacks.HealthCheck(e.leaderContext())
		}

	case record.LeaderDead(now, e.deadThreshold):
		won, err := e.broadcasts.Claim(ctx, nodeID, now, e.deadThreshold)
		if err != nil {
			e.logger.ErrorContext(ctx, "election: claim failed", slog.String("error", err.Error()))
			return
		}
		if won {
			middleware.ElectionsWon.Inc()
			e.logger.InfoContext(ctx, "election: claimed leadership",
				slog.String("node_id", nodeID),
				slog.String("previous_leader", record.LeaderID),
			)
			e.promote(ctx)
		} else {
			// Another node won the race; detected, not assumed.
			middleware.ElectionsLost.Inc()
			e.demote()
		}

	default:
		// A live leader exists and it is not us.
		e.demote()
	}
}

// promote marks this node leader and fires OnElected exactly once per term.
func (e *Elector) promote(ctx context.Context) {
	e.mu.Lock()
	if e.leading {
		e.mu.Unlock()
		return
	}
	e.leading = true
	e.leaderCtx, e.cancelLead = context.WithCancel(ctx)
	leaderCtx := e.leaderCtx
	e.mu.Unlock()

	if e.callbacks.OnElected != nil {
		e.callbacks.OnElected(leaderCtx)
	}
}

// demote cancels leader-only tasks. Loss of leadership is not destructive:
// followers never mutate playback-authority fields.
func (e *Elector) demote() {
	e.mu.Lock()
	if !e.leading {
		e.mu.Unlock()
		return
	}
	e.leading = false
	cancel := e.cancelLead
	e.cancelLead = nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	middleware.Demotions.Inc()
	if e.callbacks.OnDemoted != nil {
		e.callbacks.OnDemoted()
	}
	e.logger.Info("election: demoted to follower", slog.String("node_id", e.Identity()))
}

func (e *Elector) leaderContext() context.Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.leaderCtx != nil {
		return e.leaderCtx
	}
	return context.Background()
}

// stepDown releases the seat on clean shutdown.
func (e *Elector) stepDown(ctx context.Context) {
	nodeID := e.Identity()
	if nodeID == "" {
		return
	}
	wasLeading := e.IsLeader()
	e.demote()
	if wasLeading {
		if err := e.broadcasts.Release(ctx, nodeID); err != nil {
			e.logger.Error("election: failed to release leadership", slog.String("error", err.Error()))
		}
	}
}
