package board

import (
	"context"
	"log/slog"
	"sync"

	"github.com/madhatter5501/leadboard/kanban"
)

// Reconciler folds change events from the feed into the board store and
// view. Events for leads the board already knows about on INSERT, or does not
// know about on UPDATE, are ignored, which also absorbs the echo of the
// board's own writes.
type Reconciler struct {
	mu       sync.Locker
	store    *kanban.State
	renderer *Renderer
	logger   *slog.Logger
}

// NewReconciler creates a reconciler. mu guards store and renderer.
func NewReconciler(mu sync.Locker, store *kanban.State, renderer *Renderer, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{mu: mu, store: store, renderer: renderer, logger: logger}
}

// Run applies events until ctx ends or the channel closes.
func (r *Reconciler) Run(ctx context.Context, events <-chan kanban.ChangeEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			r.Apply(ev)
		}
	}
}

// Apply folds a single event. It reports whether the board changed.
func (r *Reconciler) Apply(ev kanban.ChangeEvent) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	var changed bool
	switch ev.Type {
	case kanban.ChangeInsert:
		changed = r.insert(ev)
	case kanban.ChangeUpdate:
		changed = r.update(ev)
	case kanban.ChangeDelete:
		changed = r.remove(ev)
	default:
		r.logger.Warn("Ignoring change event", "type", ev.Type)
		return false
	}

	if changed {
		r.renderer.UpdateCounts()
	}
	r.logger.Debug("Applied change event", "type", ev.Type, "lead", ev.LeadID(), "changed", changed)
	return changed
}

func (r *Reconciler) insert(ev kanban.ChangeEvent) bool {
	if ev.New == nil {
		return false
	}
	if !ev.New.Status.Valid() {
		r.logger.Warn("Ignoring lead with unknown status", "lead", ev.New.ID, "status", ev.New.Status)
		return false
	}
	if !r.store.InsertIfAbsent(*ev.New) {
		return false
	}
	r.renderer.Prepend(*ev.New)
	return true
}

func (r *Reconciler) update(ev kanban.ChangeEvent) bool {
	if ev.New == nil {
		return false
	}
	if !ev.New.Status.Valid() {
		r.logger.Warn("Ignoring lead with unknown status", "lead", ev.New.ID, "status", ev.New.Status)
		return false
	}
	current, ok := r.store.Get(ev.New.ID)
	if !ok {
		return false
	}
	if stale(current, *ev.New) {
		r.logger.Debug("Dropping stale update", "lead", ev.New.ID)
		return false
	}

	r.store.Replace(*ev.New)
	if current.Status != ev.New.Status {
		r.renderer.Remove(ev.New.ID)
		r.renderer.Append(*ev.New)
		return true
	}
	r.renderer.ReplaceInPlace(*ev.New)
	return true
}

func (r *Reconciler) remove(ev kanban.ChangeEvent) bool {
	id := ev.LeadID()
	if id == "" {
		return false
	}
	if _, ok := r.store.RemoveByID(id); !ok {
		return false
	}
	r.renderer.Remove(id)
	return true
}

// stale reports whether next is older than the stored row.
func stale(current, next kanban.Lead) bool {
	if current.UpdatedAt == nil || next.UpdatedAt == nil {
		return false
	}
	return next.UpdatedAt.Before(*current.UpdatedAt)
}
