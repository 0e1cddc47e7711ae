package selectors

import (
	"context"
	"log/slog"
	"slices"
	"sort"
	"sync"

	"tunesmith/internal/logging"
)

type group struct {
	mu    sync.Mutex
	order []string
}

// Registry ranks candidate locators per UI role and learns from outcomes.
// A locator that works moves to the front of its group; one that fails moves
// to the back. Groups are serialized independently.
type Registry struct {
	store    Store
	defaults map[string][]string
	logger   *slog.Logger

	mu       sync.Mutex
	groups   map[string]*group
	writable bool

	recoverMu sync.Mutex
}

// New loads the registry from store and merges it with defaults. A store
// that cannot be read leaves the registry on the built-in orderings and
// suspends persistence until a later read succeeds.
func New(ctx context.Context, store Store, defaults map[string][]string, logger *slog.Logger) *Registry {
	r := &Registry{
		store:    store,
		defaults: cloneGroups(defaults),
		logger:   logging.NewComponentLogger(logger, "selectors"),
		groups:   make(map[string]*group, len(defaults)),
	}
	for name, candidates := range r.defaults {
		r.groups[name] = &group{order: append([]string(nil), candidates...)}
	}
	if store == nil {
		return r
	}
	persisted, err := store.Load(ctx)
	if err != nil {
		logging.WarnWithContext(r.logger, "selector registry unreadable, using built-in orderings", "selectors_load_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "learned orderings ignored until the store is readable"),
			logging.String(logging.FieldErrorHint, "inspect or delete the selector registry file"),
		)
		return r
	}
	r.writable = true
	for name, order := range persisted {
		r.groups[name] = &group{order: merge(order, r.defaults[name])}
	}
	r.logger.Debug("selector registry loaded", logging.Int("groups", len(r.groups)))
	return r
}

// merge keeps the persisted order and appends default candidates it lacks.
func merge(persisted, defaults []string) []string {
	out := make([]string, 0, len(persisted)+len(defaults))
	for _, c := range persisted {
		if c != "" && !slices.Contains(out, c) {
			out = append(out, c)
		}
	}
	for _, c := range defaults {
		if !slices.Contains(out, c) {
			out = append(out, c)
		}
	}
	return out
}

func (r *Registry) group(name string) *group {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[name]
	if !ok {
		g = &group{order: append([]string(nil), r.defaults[name]...)}
		r.groups[name] = g
	}
	return g
}

// Resolve returns the current ordering for a group, best first. Unknown
// groups without defaults resolve to an empty list.
func (r *Registry) Resolve(name string) []string {
	g := r.group(name)
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.order...)
}

// RecordSuccess promotes candidate to the front of its group.
func (r *Registry) RecordSuccess(ctx context.Context, name, candidate string) {
	r.reorder(ctx, name, candidate, true)
}

// RecordFailure demotes candidate to the back of its group.
func (r *Registry) RecordFailure(ctx context.Context, name, candidate string) {
	r.reorder(ctx, name, candidate, false)
}

func (r *Registry) reorder(ctx context.Context, name, candidate string, front bool) {
	if candidate == "" {
		return
	}
	writable := r.ensureWritable(ctx)
	g := r.group(name)
	g.mu.Lock()
	defer g.mu.Unlock()

	idx := slices.Index(g.order, candidate)
	if front && idx == 0 {
		return
	}
	if !front && idx >= 0 && idx == len(g.order)-1 {
		return
	}
	if idx >= 0 {
		g.order = slices.Delete(g.order, idx, idx+1)
	}
	if front {
		g.order = slices.Insert(g.order, 0, candidate)
	} else {
		g.order = append(g.order, candidate)
	}
	if writable {
		r.persist(ctx, name, g.order)
	}
}

// Reset restores a group to its built-in ordering.
func (r *Registry) Reset(ctx context.Context, name string) {
	writable := r.ensureWritable(ctx)
	g := r.group(name)
	g.mu.Lock()
	defer g.mu.Unlock()
	g.order = append([]string(nil), r.defaults[name]...)
	if writable {
		r.persist(ctx, name, g.order)
	}
}

// Groups lists the group names the registry knows, sorted.
func (r *Registry) Groups() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.groups))
	for name := range r.groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot copies every group's current ordering.
func (r *Registry) Snapshot() map[string][]string {
	out := make(map[string][]string)
	for _, name := range r.Groups() {
		out[name] = r.Resolve(name)
	}
	return out
}

// persist must be called with the group lock held.
func (r *Registry) persist(ctx context.Context, name string, order []string) {
	if err := r.store.SaveGroup(ctx, name, order); err != nil {
		logging.WarnWithContext(r.logger, "selector ordering not saved", "selectors_save_failed",
			logging.String("group", name),
			logging.Error(err),
			logging.String(logging.FieldImpact, "ordering kept in memory only"),
		)
	}
}

// ensureWritable reports whether outcomes may be saved. A store that was
// unreadable is retried; once it reads again its learned orderings replace
// the in-memory ones before anything is written back. Call it without any
// group lock held.
func (r *Registry) ensureWritable(ctx context.Context) bool {
	if r.store == nil {
		return false
	}
	if r.isWritable() {
		return true
	}
	r.recoverMu.Lock()
	defer r.recoverMu.Unlock()
	if r.isWritable() {
		return true
	}
	persisted, err := r.store.Load(ctx)
	if err != nil {
		r.logger.Debug("selector registry still unreadable", logging.Error(err))
		return false
	}
	for name, order := range persisted {
		g := r.group(name)
		g.mu.Lock()
		g.order = merge(order, r.defaults[name])
		g.mu.Unlock()
	}
	r.mu.Lock()
	r.writable = true
	r.mu.Unlock()
	r.logger.Info("selector registry readable again, learned orderings restored",
		logging.Int("groups", len(persisted)),
	)
	return true
}

func (r *Registry) isWritable() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writable
}
