// Package listsync keeps a screen's filter, sort and pagination state in step
// with a remote paginated result set.
package listsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// Row is one opaque record of a listing.
type Row = map[string]any

// Result is one page returned by the remote API. TotalPages is optional;
// zero means it is derived from Total and the page size.
type Result struct {
	Items      []Row `json:"items"`
	Total      int   `json:"total"`
	TotalPages int   `json:"totalPages,omitempty"`
}

// Fetcher loads one page of a remote listing.
type Fetcher interface {
	FetchList(ctx context.Context, resource string, params Params) (Result, error)
}

// Loader is the process-wide loading indicator.
type Loader interface {
	Show()
	Hide()
}

// Notifier surfaces errors to the user.
type Notifier interface {
	Error(err error)
}

// Outcome classifies how an issued fetch ended.
type Outcome string

const (
	OutcomeApplied    Outcome = "applied"
	OutcomeSuperseded Outcome = "superseded"
	OutcomeFailed     Outcome = "failed"
)

// Observer receives fetch lifecycle events, typically for metrics.
type Observer interface {
	FetchIssued(resource string)
	FetchSettled(resource string, outcome Outcome, elapsed time.Duration)
}

// Status is the lifecycle state of the fetch.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// FetchState is the result side of a screen.
type FetchState struct {
	Status Status
	Items  []Row
	Err    error
}

// Config declares one screen.
type Config struct {
	Resource string
	Fields   []FieldSpec
	Sort     Sort
	SortKeys SortKeys
	Limit    int
	// Limits restricts SetLimit. Empty accepts any positive size.
	Limits   []int
	Location *time.Location
	Clock    Clock
	Logger   *slog.Logger
	Observer Observer
}

// Snapshot is a consistent copy of the engine state for the presentation layer.
type Snapshot struct {
	Resource   string       `json:"resource"`
	Status     Status       `json:"status"`
	Items      []Row        `json:"items"`
	Error      string       `json:"error,omitempty"`
	Page       PageState    `json:"page"`
	Window     []PageButton `json:"window"`
	CanPrev    bool         `json:"canPrev"`
	CanNext    bool         `json:"canNext"`
	Sort       Sort         `json:"sort"`
	Fields     []FieldState `json:"fields"`
	Generation uint64       `json:"generation"`
	Version    uint64       `json:"version"`
}

type request struct {
	gen     uint64
	page    int
	params  Params
	trigger Trigger
	started time.Time
}

// Engine coordinates debounced fields, page state and remote fetches of one
// screen. A result is applied only if its request is still the latest one
// issued.
type Engine struct {
	cfg      Config
	fetcher  Fetcher
	loader   Loader
	notifier Notifier
	observer Observer
	logger   *slog.Logger
	clock    Clock
	builder  Builder

	fields []*Field
	index  map[string]*Field

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	values   map[string]any
	sort     Sort
	page     PageState
	fetch    FetchState
	gen      uint64
	version  uint64
	disposed bool
	subs     map[int]func(Snapshot)
	nextSub  int

	pubMu     sync.Mutex
	published uint64
}

// New builds an idle engine. Nil loader and notifier are replaced by no-ops.
func New(cfg Config, fetcher Fetcher, loader Loader, notifier Notifier) (*Engine, error) {
	if cfg.Resource == "" {
		return nil, errors.New("listsync: resource required")
	}
	if fetcher == nil {
		return nil, errors.New("listsync: fetcher required")
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Observer == nil {
		cfg.Observer = noopObserver{}
	}
	if loader == nil {
		loader = noopLoader{}
	}
	if notifier == nil {
		notifier = noopNotifier{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:      cfg,
		fetcher:  fetcher,
		loader:   loader,
		notifier: notifier,
		observer: cfg.Observer,
		logger:   cfg.Logger.With(slog.String("resource", cfg.Resource)),
		clock:    cfg.Clock,
		builder:  Builder{Location: cfg.Location, SortKeys: cfg.SortKeys},
		index:    make(map[string]*Field, len(cfg.Fields)),
		ctx:      ctx,
		cancel:   cancel,
		values:   make(map[string]any, len(cfg.Fields)),
		sort:     cfg.Sort,
		page:     NewPageState(1, cfg.Limit, 0),
		fetch:    FetchState{Status: StatusIdle},
		subs:     make(map[int]func(Snapshot)),
	}
	for _, spec := range cfg.Fields {
		if spec.Name == "" {
			cancel()
			return nil, errors.New("listsync: field name required")
		}
		if _, dup := e.index[spec.Name]; dup {
			cancel()
			return nil, fmt.Errorf("listsync: duplicate field %q", spec.Name)
		}
		field := NewField(spec, cfg.Clock, e.onEmit)
		e.fields = append(e.fields, field)
		e.index[spec.Name] = field
		e.values[spec.Name] = spec.Default
	}
	return e, nil
}

// Resource returns the remote path the engine lists.
func (e *Engine) Resource() string {
	return e.cfg.Resource
}

// SetField records a raw filter value. The fetch follows once the field's
// debounce window elapses, or right away for immediate fields.
func (e *Engine) SetField(name string, value any) error {
	field, ok := e.index[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownField, name)
	}
	if e.isDisposed() {
		return ErrDisposed
	}
	field.Update(value)
	return nil
}

// SetSort changes the sort selection and restarts at page 1.
func (e *Engine) SetSort(sort Sort) error {
	return e.apply(TriggerSort, func() bool {
		if e.sort == sort {
			return false
		}
		e.sort = sort
		return true
	})
}

// SetPage navigates to page, silently clamped into range.
func (e *Engine) SetPage(page int) error {
	return e.apply(TriggerPage, func() bool {
		page = ClampPage(page, e.page.TotalPages)
		if page == e.page.Page {
			return false
		}
		e.page.Page = page
		return true
	})
}

// SetLimit changes the page size and restarts at page 1.
func (e *Engine) SetLimit(limit int) error {
	if limit <= 0 || (len(e.cfg.Limits) > 0 && !slices.Contains(e.cfg.Limits, limit)) {
		return fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}
	return e.apply(TriggerLimit, func() bool {
		if limit == e.page.Limit {
			return false
		}
		e.page = NewPageState(e.page.Page, limit, e.page.Total)
		return true
	})
}

// Refresh re-issues the current query. Screens call it on mount and to
// retry after a failure.
func (e *Engine) Refresh() error {
	return e.apply(TriggerRefresh, nil)
}

// Subscribe registers fn for every state change and returns a function that
// removes it. Snapshots are delivered in version order; stale ones are skipped.
func (e *Engine) Subscribe(fn func(Snapshot)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed {
		return func() {}
	}
	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	return func() {
		e.mu.Lock()
		delete(e.subs, id)
		e.mu.Unlock()
	}
}

// Snapshot returns the current state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Dispose stops pending debounce timers, aborts in-flight requests and
// discards any result that arrives afterwards.
func (e *Engine) Dispose() {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return
	}
	e.disposed = true
	e.subs = nil
	e.mu.Unlock()

	for _, field := range e.fields {
		field.Dispose()
	}
	e.cancel()
}

// Wait blocks until every issued fetch has settled.
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) isDisposed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.disposed
}

func (e *Engine) onEmit(name string, value any, changed bool) {
	if !changed {
		return
	}
	_ = e.apply(TriggerFilter, func() bool {
		e.values[name] = value
		return true
	})
}

// apply runs mutate under the lock and, when it reports a change, resets the
// page per NextPage and issues a fetch.
func (e *Engine) apply(trigger Trigger, mutate func() bool) error {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return ErrDisposed
	}
	if mutate != nil && !mutate() {
		e.mu.Unlock()
		return nil
	}
	e.page.Page = NextPage(trigger, e.page.Page)
	req, err := e.prepareLocked(trigger)
	snap := e.snapshotLocked()
	e.mu.Unlock()

	if err != nil {
		e.logger.Info("list fetch blocked by validation", slog.Any("error", err))
		e.notifier.Error(err)
		e.publish(snap)
		return nil
	}
	e.publish(snap)
	e.dispatch(req)
	return nil
}

func (e *Engine) prepareLocked(trigger Trigger) (request, error) {
	if missing := e.missingRequiredLocked(); len(missing) > 0 {
		return request{}, &ValidationError{Fields: missing}
	}
	e.gen++
	e.fetch.Status = StatusLoading
	e.fetch.Err = nil
	e.wg.Add(1)
	return request{
		gen:     e.gen,
		page:    e.page.Page,
		params:  e.builder.Build(e.fieldValuesLocked(), e.sort, e.page.Page, e.page.Limit),
		trigger: trigger,
		started: e.clock.Now(),
	}, nil
}

func (e *Engine) dispatch(req request) {
	e.loader.Show()
	e.observer.FetchIssued(e.cfg.Resource)
	e.logger.Debug("issue list fetch",
		slog.Uint64("generation", req.gen),
		slog.String("trigger", req.trigger.String()),
		slog.String("params", req.params.Encode()))
	go e.run(req)
}

func (e *Engine) run(req request) {
	defer e.wg.Done()
	defer e.loader.Hide()

	result, err := e.fetcher.FetchList(e.ctx, e.cfg.Resource, req.params)
	elapsed := e.clock.Now().Sub(req.started)

	e.mu.Lock()
	if e.disposed || req.gen != e.gen {
		current := e.gen
		e.mu.Unlock()
		e.observer.FetchSettled(e.cfg.Resource, OutcomeSuperseded, elapsed)
		e.logger.Debug("discard superseded list result",
			slog.Uint64("generation", req.gen),
			slog.Uint64("current", current))
		return
	}

	if err != nil {
		// The previous successful items stay visible.
		e.fetch.Status = StatusError
		e.fetch.Err = err
		snap := e.snapshotLocked()
		e.mu.Unlock()
		e.observer.FetchSettled(e.cfg.Resource, OutcomeFailed, elapsed)
		e.logger.Warn("list fetch failed", slog.Uint64("generation", req.gen), slog.Any("error", err))
		e.notifier.Error(err)
		e.publish(snap)
		return
	}

	e.fetch = FetchState{Status: StatusSuccess, Items: result.Items}
	totalPages := result.TotalPages
	if totalPages <= 0 {
		totalPages = TotalPages(result.Total, e.page.Limit)
	}
	e.page.Total = max(result.Total, 0)
	e.page.TotalPages = totalPages
	e.page.Page = ClampPage(e.page.Page, totalPages)

	// A shrunken result set moved the page; load the page actually shown.
	var follow request
	var followErr error
	clamped := e.page.Page != req.page
	if clamped {
		follow, followErr = e.prepareLocked(TriggerPage)
	}
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.observer.FetchSettled(e.cfg.Resource, OutcomeApplied, elapsed)
	e.publish(snap)
	if clamped && followErr == nil {
		e.dispatch(follow)
	}
}

func (e *Engine) missingRequiredLocked() []string {
	var missing []string
	for _, field := range e.fields {
		spec := field.Spec()
		if spec.Required && isEmpty(e.values[spec.Name]) {
			missing = append(missing, spec.Name)
		}
	}
	return missing
}

func (e *Engine) fieldValuesLocked() []FieldValue {
	values := make([]FieldValue, 0, len(e.fields))
	for _, field := range e.fields {
		spec := field.Spec()
		values = append(values, FieldValue{Spec: spec, Value: e.values[spec.Name]})
	}
	return values
}

func (e *Engine) snapshotLocked() Snapshot {
	e.version++
	snap := Snapshot{
		Resource:   e.cfg.Resource,
		Status:     e.fetch.Status,
		Items:      slices.Clone(e.fetch.Items),
		Page:       e.page,
		Window:     Window(e.page.Page, e.page.TotalPages),
		CanPrev:    e.page.CanPrev(),
		CanNext:    e.page.CanNext(),
		Sort:       e.sort,
		Fields:     make([]FieldState, 0, len(e.fields)),
		Generation: e.gen,
		Version:    e.version,
	}
	if snap.Items == nil {
		snap.Items = []Row{}
	}
	if e.fetch.Err != nil {
		snap.Error = e.fetch.Err.Error()
	}
	for _, field := range e.fields {
		snap.Fields = append(snap.Fields, field.State())
	}
	return snap
}

func (e *Engine) publish(snap Snapshot) {
	e.mu.Lock()
	subs := make([]func(Snapshot), 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	e.mu.Unlock()
	if len(subs) == 0 {
		return
	}

	e.pubMu.Lock()
	defer e.pubMu.Unlock()
	if snap.Version <= e.published {
		return
	}
	e.published = snap.Version
	for _, fn := range subs {
		fn(snap)
	}
}

type noopObserver struct{}

func (noopObserver) FetchIssued(string) {}

func (noopObserver) FetchSettled(string, Outcome, time.Duration) {}

type noopLoader struct{}

func (noopLoader) Show() {}

func (noopLoader) Hide() {}

type noopNotifier struct{}

func (noopNotifier) Error(error) {}
