package core

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/git-pkgs/taxonomy/internal/metrics"
)

// Inspector reads package metadata from a source location.
// It returns nil, nil when the source exists but is not a taxonomy package.
type Inspector interface {
	Inspect(ctx context.Context, source string, forceReload bool) (*PackageInfo, error)
}

// Prober reports the current modification time of a source without a full inspection.
type Prober interface {
	ModTime(ctx context.Context, source string) (time.Time, error)
}

// ConfigStore persists registry state.
// Load returns nil, nil when nothing has been saved yet.
type ConfigStore interface {
	Load(ctx context.Context) (*State, error)
	Save(ctx context.Context, state *State) error
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for registry events.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

// WithOnChange registers a callback invoked with a copy of the resolved
// table whenever a mutation changes it.
func WithOnChange(fn func(map[string]string)) Option {
	return func(r *Registry) {
		r.onChange = fn
	}
}

// Registry owns the ordered package list and the derived remapping table.
// It is not safe for concurrent use; a single owner performs all mutations.
type Registry struct {
	entries    []PackageInfo
	remappings map[string]string
	dirty      bool
	selected   int
	updates    NameSet

	store     ConfigStore
	inspector Inspector
	logger    *zap.Logger
	onChange  func(map[string]string)
}

// NewRegistry creates a registry and loads its state from store.
// A nil store yields an in-memory registry that cannot be committed.
func NewRegistry(ctx context.Context, store ConfigStore, inspector Inspector, opts ...Option) (*Registry, error) {
	r := &Registry{
		remappings: map[string]string{},
		selected:   -1,
		updates:    NameSet{},
		store:      store,
		inspector:  inspector,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.load(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) load(ctx context.Context) error {
	var entries []PackageInfo
	if r.store != nil {
		state, err := r.store.Load(ctx)
		if err != nil {
			return fmt.Errorf("loading registry: %w", err)
		}
		if state != nil {
			entries = make([]PackageInfo, 0, len(state.Packages))
			for _, p := range state.Packages {
				entries = append(entries, p.Clone())
			}
			if len(state.Remappings) > 0 && !maps.Equal(state.Remappings, Resolve(entries)) {
				r.logger.Warn("persisted remappings differ from resolved table, recomputing",
					zap.Int("persisted", len(state.Remappings)))
			}
		}
	}
	r.entries = entries
	r.dirty = false
	r.selected = -1
	r.resolve()
	r.logger.Debug("registry loaded",
		zap.Int("packages", len(r.entries)),
		zap.Int("remappings", len(r.remappings)))
	return nil
}

// List returns a copy of the entries in precedence order.
func (r *Registry) List() []PackageInfo {
	out := make([]PackageInfo, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.Clone()
	}
	return out
}

// Len returns the number of registered packages.
func (r *Registry) Len() int {
	return len(r.entries)
}

// Remappings returns a copy of the resolved prefix table.
func (r *Registry) Remappings() map[string]string {
	return maps.Clone(r.remappings)
}

// SortedRemappings returns the resolved table ordered by prefix.
func (r *Registry) SortedRemappings() []Remapping {
	return SortRemappings(r.remappings)
}

// Dirty reports whether the registry has changes not yet committed.
func (r *Registry) Dirty() bool {
	return r.dirty
}

// FindByNameVersion returns the index of the matching entry, or -1.
func (r *Registry) FindByNameVersion(name, version string) int {
	return slices.IndexFunc(r.entries, func(p PackageInfo) bool {
		return p.Name == name && p.Version == version
	})
}

// Add registers info, replacing any entry with the same name and version.
// The new entry is appended at the end of the list.
func (r *Registry) Add(info PackageInfo) {
	r.removeAt(r.FindByNameVersion(info.Name, info.Version))
	if info.Status == "" {
		info.Status = StatusEnabled
	}
	r.entries = append(r.entries, info.Clone())
	delete(r.updates, info.Name)
	r.mutated("add")
	r.logger.Info("package added",
		zap.String("name", info.Name),
		zap.String("version", info.Version),
		zap.Int("position", len(r.entries)-1))
}

// AddSource inspects source and registers the package it describes.
func (r *Registry) AddSource(ctx context.Context, source string) (PackageInfo, error) {
	info, err := r.inspect(ctx, source, false)
	if err != nil {
		return PackageInfo{}, &ReloadError{URL: source, Err: err}
	}
	r.Add(*info)
	return info.Clone(), nil
}

// Remove deletes the entry with the given name and version. It is a no-op
// when no such entry exists.
func (r *Registry) Remove(name, version string) {
	i := r.FindByNameVersion(name, version)
	if i < 0 {
		return
	}
	r.removeAt(i)
	r.mutated("remove")
	r.logger.Info("package removed", zap.String("name", name), zap.String("version", version))
}

func (r *Registry) removeAt(i int) {
	if i < 0 || i >= len(r.entries) {
		return
	}
	r.entries = slices.Delete(r.entries, i, i+1)
	switch {
	case r.selected == i:
		r.selected = -1
	case r.selected > i:
		r.selected--
	}
	r.dirty = true
}

// SetEnabled enables or disables the entry at index.
func (r *Registry) SetEnabled(index int, enabled bool) error {
	if err := r.checkIndex(index); err != nil {
		return err
	}
	status := StatusDisabled
	if enabled {
		status = StatusEnabled
	}
	r.entries[index].Status = status
	r.mutated("set_enabled")
	r.logger.Info("package status changed",
		zap.String("name", r.entries[index].Name),
		zap.String("status", string(status)))
	return nil
}

// MoveUp swaps the entry at index with its predecessor.
// It is a no-op for the first entry.
func (r *Registry) MoveUp(index int) error {
	if err := r.checkIndex(index); err != nil {
		return err
	}
	if index == 0 {
		return nil
	}
	r.swap(index, index-1)
	r.mutated("move_up")
	return nil
}

// MoveDown swaps the entry at index with its successor.
// It is a no-op for the last entry.
func (r *Registry) MoveDown(index int) error {
	if err := r.checkIndex(index); err != nil {
		return err
	}
	if index == len(r.entries)-1 {
		return nil
	}
	r.swap(index, index+1)
	r.mutated("move_down")
	return nil
}

// swap exchanges two entries and keeps the selection on the entry it pointed at.
func (r *Registry) swap(i, j int) {
	r.entries[i], r.entries[j] = r.entries[j], r.entries[i]
	switch r.selected {
	case i:
		r.selected = j
	case j:
		r.selected = i
	}
}

// Select marks index as the current entry; -1 clears the selection.
func (r *Registry) Select(index int) error {
	if index == -1 {
		r.selected = -1
		return nil
	}
	if err := r.checkIndex(index); err != nil {
		return err
	}
	r.selected = index
	return nil
}

// Selected returns the current entry index, or -1.
func (r *Registry) Selected() int {
	return r.selected
}

// Reload re-inspects the source of the entry at index. An unchanged source
// leaves the entry where it is. Otherwise the fresh description is added,
// which moves it to the end with the status the inspector reported. On
// failure the registry is left unchanged.
func (r *Registry) Reload(ctx context.Context, index int) (PackageInfo, error) {
	if err := r.checkIndex(index); err != nil {
		return PackageInfo{}, err
	}
	current := r.entries[index]
	if current.URL == "" {
		return PackageInfo{}, &ReloadError{Name: current.Name, Version: current.Version, Err: ErrSourceUnreachable}
	}

	info, err := r.inspect(ctx, current.URL, true)
	if err != nil {
		r.logger.Warn("package reload failed",
			zap.String("name", current.Name),
			zap.String("url", current.URL),
			zap.Error(err))
		return PackageInfo{}, &ReloadError{Name: current.Name, Version: current.Version, URL: current.URL, Err: err}
	}

	unchanged := info.Clone()
	unchanged.Status = current.Status
	if unchanged.Equal(current) {
		delete(r.updates, current.Name)
		r.logger.Debug("package unchanged on reload", zap.String("name", current.Name), zap.String("version", current.Version))
		return current.Clone(), nil
	}

	r.logger.Info("package reloaded", zap.String("name", info.Name), zap.String("version", info.Version))
	r.Add(*info)
	return r.entries[len(r.entries)-1].Clone(), nil
}

// inspect runs the inspector and maps its outcomes onto the registry's error taxonomy.
func (r *Registry) inspect(ctx context.Context, source string, forceReload bool) (*PackageInfo, error) {
	if r.inspector == nil {
		return nil, fmt.Errorf("no inspector configured: %w", ErrSourceUnreachable)
	}
	info, err := r.inspector.Inspect(ctx, source, forceReload)
	if err != nil {
		metrics.RecordInspection("unreachable")
		return nil, fmt.Errorf("%w: %w", ErrSourceUnreachable, err)
	}
	if info == nil || info.Name == "" {
		metrics.RecordInspection("not_a_package")
		return nil, ErrNotAPackage
	}
	metrics.RecordInspection("ok")
	return info, nil
}

// Commit persists the registry when it has unsaved changes.
func (r *Registry) Commit(ctx context.Context) error {
	if !r.dirty {
		return nil
	}
	if r.store == nil {
		return fmt.Errorf("committing registry: no config store")
	}
	if err := r.store.Save(ctx, r.State()); err != nil {
		return fmt.Errorf("committing registry: %w", err)
	}
	r.dirty = false
	r.logger.Info("registry committed", zap.Int("packages", len(r.entries)))
	return nil
}

// Discard drops in-memory edits and reloads the persisted state.
func (r *Registry) Discard(ctx context.Context) error {
	before := r.remappings
	if err := r.load(ctx); err != nil {
		return err
	}
	r.notifyIfChanged(before)
	return nil
}

// State returns a serializable copy of the registry.
func (r *Registry) State() *State {
	return &State{
		Packages:   r.List(),
		Remappings: r.Remappings(),
	}
}

// ApplyScan records which packages have newer sources available.
// Names that are no longer registered are ignored.
func (r *Registry) ApplyScan(stale NameSet) {
	updates := NameSet{}
	for _, e := range r.entries {
		if stale.Has(e.Name) {
			updates[e.Name] = struct{}{}
		}
	}
	r.updates = updates
}

// UpdateAvailable reports whether the last applied scan found a newer source for name.
func (r *Registry) UpdateAvailable(name string) bool {
	return r.updates.Has(name)
}

// Rows returns the display projection of the entries.
func (r *Registry) Rows() []Row {
	rows := make([]Row, len(r.entries))
	for i, e := range r.entries {
		rows[i] = Row{
			Index:           i,
			Name:            e.Name,
			Version:         e.Version,
			Status:          e.Status,
			FileDate:        e.FileDate,
			UpdateAvailable: r.updates.Has(e.Name),
			Description:     e.Description,
			URL:             e.URL,
			Prefixes:        e.Prefixes(),
		}
	}
	return rows
}

func (r *Registry) checkIndex(index int) error {
	if index < 0 || index >= len(r.entries) {
		return &IndexOutOfRangeError{Index: index, Len: len(r.entries)}
	}
	return nil
}

// mutated marks the registry dirty and rebuilds the remapping table.
func (r *Registry) mutated(op string) {
	r.dirty = true
	before := r.remappings
	r.resolve()
	metrics.RecordMutation(op)
	r.notifyIfChanged(before)
}

func (r *Registry) resolve() {
	r.remappings = Resolve(r.entries)
}

func (r *Registry) notifyIfChanged(before map[string]string) {
	if maps.Equal(before, r.remappings) {
		return
	}
	r.logger.Debug("remappings changed", zap.Int("remappings", len(r.remappings)))
	if r.onChange != nil {
		r.onChange(maps.Clone(r.remappings))
	}
}
