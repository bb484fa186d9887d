package sync

import (
	"context"
	"fmt"
	"sync"

	"canvas-grade-sync/internal/model"
	"canvas-grade-sync/pkg/errors"
)

// ActiveSyncRegistry is the advisory in-process guard against two
// concurrent attempts for the same (owner, scope). It holds each
// attempt's cancel function so a running sync can be stopped from the
// API. Cleared on process restart; durable attempt state lives in the
// persisted progress record.
type ActiveSyncRegistry struct {
	mu     sync.Mutex
	active map[string]context.CancelFunc
}

func NewActiveSyncRegistry() *ActiveSyncRegistry {
	return &ActiveSyncRegistry{
		active: make(map[string]context.CancelFunc),
	}
}

func registryKey(ownerID int64, scope model.Scope) string {
	return fmt.Sprintf("%d:%s", ownerID, scope)
}

// Begin registers a starting attempt, rejecting duplicates with
// ErrSyncInProgress.
func (r *ActiveSyncRegistry) Begin(ownerID int64, scope model.Scope, cancel context.CancelFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := registryKey(ownerID, scope)
	if _, ok := r.active[key]; ok {
		return errors.ErrSyncInProgress
	}

	r.active[key] = cancel
	return nil
}

func (r *ActiveSyncRegistry) End(ownerID int64, scope model.Scope) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.active, registryKey(ownerID, scope))
}

// Cancel stops every running attempt for the owner. Returns whether
// anything was cancelled.
func (r *ActiveSyncRegistry) Cancel(ownerID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cancelled := false
	for _, scope := range []model.Scope{model.ScopeAll, model.ScopeTerm, model.ScopeCourse} {
		if cancel, ok := r.active[registryKey(ownerID, scope)]; ok {
			cancel()
			cancelled = true
		}
	}
	return cancelled
}

func (r *ActiveSyncRegistry) Running(ownerID int64, scope model.Scope) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.active[registryKey(ownerID, scope)]
	return ok
}
