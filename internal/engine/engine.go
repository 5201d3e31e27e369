package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/photosweep/photosweep/internal/events"
	"github.com/photosweep/photosweep/internal/logging"
	"github.com/photosweep/photosweep/internal/metrics"
	"github.com/photosweep/photosweep/internal/photostore"
	"github.com/photosweep/photosweep/internal/scopecache"
)

var (
	// ErrNoScope is returned when no scope is under review.
	ErrNoScope = errors.New("no active scope")
	// ErrNotReady is returned when the lookahead asset has not settled
	// yet; the caller retries after the next progress event.
	ErrNotReady = errors.New("next asset not loaded yet")
	// ErrScopeComplete is returned when advancing past an exhausted scope.
	ErrScopeComplete = errors.New("scope already complete")
	// ErrNotComplete is returned when switching scope before the current
	// one is exhausted.
	ErrNotComplete = errors.New("scope not complete yet")
	// ErrNothingToUndo is returned when undoing at the start of a scope.
	ErrNothingToUndo = errors.New("nothing to undo")
)

// Flow is the review flow state for the active scope.
type Flow string

const (
	FlowIdle          Flow = "idle"
	FlowReviewing     Flow = "reviewing"
	FlowScopeComplete Flow = "scope_complete"
	FlowEnd           Flow = "end"
)

// Phase is the load phase of the current session.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseLoading    Phase = "loading"
	PhaseBackground Phase = "background"
	PhaseComplete   Phase = "complete"
)

// Options tunes the engine. Zero values fall back to defaults.
type Options struct {
	PageSize            int
	PriorityCount       int
	PriorityConcurrency int
	BatchSize           int
	KeepWindow          int
	CleanupThreshold    int
	TrimEveryAdvances   int
	TrimInterval        time.Duration
	Yield               time.Duration
}

func (o *Options) withDefaults() {
	if o.PageSize <= 0 {
		o.PageSize = 30
	}
	if o.PriorityCount <= 0 {
		o.PriorityCount = 5
	}
	if o.PriorityConcurrency <= 0 {
		o.PriorityConcurrency = 5
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 8
	}
	if o.KeepWindow < 2 {
		o.KeepWindow = 40
	}
	if o.CleanupThreshold <= 0 {
		o.CleanupThreshold = 60
	}
	if o.TrimEveryAdvances <= 0 {
		o.TrimEveryAdvances = 10
	}
	if o.TrimInterval <= 0 {
		o.TrimInterval = 30 * time.Second
	}
	if o.Yield <= 0 {
		o.Yield = 10 * time.Millisecond
	}
}

// Progress reports the read position against the known record count.
type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// Snapshot is what the UI layer consumes.
type Snapshot struct {
	Scope            photostore.Scope `json:"scope"`
	Flow             Flow             `json:"flow"`
	Phase            Phase            `json:"phase"`
	Current          *Asset           `json:"current,omitempty"`
	Lookahead        []Asset          `json:"lookahead,omitempty"`
	Progress         Progress         `json:"progress"`
	PendingDeletions int              `json:"pending_deletions"`
	PendingBytes     int64            `json:"pending_bytes"`
}

// Engine drives the review flow for one scope at a time. All public
// methods are safe for concurrent use; the in-memory record array is the
// single piece of shared mutable state and every mutation re-checks that
// the owning session is still current.
type Engine struct {
	provider photostore.Provider
	cache    *scopecache.Store // optional
	bus      *events.Broadcaster
	opts     Options

	sessions *Controller
	loader   *StagedLoader
	governor *Governor
	ledger   *Ledger

	mu       sync.Mutex
	scope    photostore.Scope
	records  []Asset
	index    map[string]int // asset ID -> records position
	readIdx  int
	cursor   string
	hasNext  bool
	fetching bool // at most one page fetch in flight
	healing  map[string]struct{}
	flow     Flow
	phase    Phase
	advances int

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates an engine. cache may be nil to disable progress persistence.
func New(provider photostore.Provider, cache *scopecache.Store, bus *events.Broadcaster, opts Options) *Engine {
	opts.withDefaults()
	if bus == nil {
		bus = events.NewBroadcaster()
	}
	return &Engine{
		provider: provider,
		cache:    cache,
		bus:      bus,
		opts:     opts,
		sessions: NewController(),
		loader:   NewStagedLoader(provider, opts.PriorityConcurrency, opts.BatchSize, opts.Yield),
		governor: NewGovernor(opts.CleanupThreshold, opts.KeepWindow),
		ledger:   NewLedger(provider),
		index:    make(map[string]int),
		healing:  make(map[string]struct{}),
		flow:     FlowIdle,
		phase:    PhaseIdle,
		stop:     make(chan struct{}),
	}
}

// Events returns the engine's event broadcaster.
func (e *Engine) Events() *events.Broadcaster {
	return e.bus
}

// Ledger returns the deletion ledger.
func (e *Engine) Ledger() *Ledger {
	return e.ledger
}

// Start launches the periodic trim safety net.
func (e *Engine) Start() {
	go e.trimLoop()
}

// Close cancels the current session and stops background work.
func (e *Engine) Close() {
	e.stopOnce.Do(func() { close(e.stop) })
	if sess := e.sessions.Session(); sess != nil {
		sess.Token.Cancel()
	}
}

// BeginScope supersedes any in-flight load and starts reviewing the given
// scope. An empty date-range scope is skipped to the nearest earlier
// non-empty month before any reviewable state becomes visible; if no
// earlier month has assets the flow ends.
func (e *Engine) BeginScope(ctx context.Context, scope photostore.Scope) error {
	if err := scope.Validate(); err != nil {
		return err
	}

	// Supersession and reset form one critical section: a reset only ever
	// runs on behalf of the session that is current at that instant, so a
	// racing BeginScope cannot wipe state the newer session installed.
	e.mu.Lock()
	sess := e.sessions.Begin(scope)
	e.resetLocked(scope)
	e.ledger.Clear()
	e.mu.Unlock()
	logging.Info("scope review started",
		zap.Int64("session", sess.ID), zap.String("scope", scope.Key()))
	e.publish(events.Event{Type: events.EventSessionStart, Session: sess.ID, ScopeKey: scope.Key()})

	page, effScope, found := e.locateFirstPage(ctx, sess, scope)
	if !found {
		e.mu.Lock()
		if !live(e.sessions, sess) {
			e.mu.Unlock()
			return nil
		}
		e.flow = FlowEnd
		e.phase = PhaseIdle
		e.mu.Unlock()
		e.publish(events.Event{Type: events.EventEnd, Session: sess.ID})
		return nil
	}

	e.mu.Lock()
	if !live(e.sessions, sess) {
		e.mu.Unlock()
		return nil
	}
	e.scope = effScope
	e.mu.Unlock()
	e.startLoad(ctx, sess, page)
	return nil
}

// Advance moves the read cursor forward by one, optionally marking the
// current asset for deletion. It refuses with ErrNotReady while the
// lookahead asset is still unloaded, mirroring the UI-side swipe block.
func (e *Engine) Advance(ctx context.Context, markForDeletion bool) error {
	e.mu.Lock()
	switch e.flow {
	case FlowIdle, FlowEnd:
		e.mu.Unlock()
		return ErrNoScope
	case FlowScopeComplete:
		e.mu.Unlock()
		return ErrScopeComplete
	}
	if e.readIdx >= len(e.records) {
		// Next page still in flight.
		e.mu.Unlock()
		return ErrNotReady
	}

	sess := e.sessions.Session()
	if next := e.readIdx + 1; next < len(e.records) && !e.records[next].Loaded() {
		e.healLocked(sess)
		e.mu.Unlock()
		return ErrNotReady
	}

	cur := e.records[e.readIdx]
	label := e.scope.Label()
	e.readIdx++
	e.advances++

	trimmed := 0
	if e.advances >= e.opts.TrimEveryAdvances {
		e.advances = 0
		trimmed = e.governor.Trim(e.records, e.readIdx)
	}
	e.healLocked(sess)
	e.maybeFetchNextLocked(sess)

	completed := false
	if e.readIdx >= len(e.records) && !e.hasNext && !e.fetching {
		e.flow = FlowScopeComplete
		completed = true
	}
	scopeKey := e.scope.Key()
	sessID := sess.ID
	e.updateGaugesLocked()
	e.mu.Unlock()

	if markForDeletion {
		e.ledger.Add(ctx, cur, label)
	}
	if trimmed > 0 {
		e.publish(events.Event{Type: events.EventTrim, Session: sessID, Demoted: trimmed})
	}
	if completed {
		e.markDone(scopeKey)
		e.publish(events.Event{Type: events.EventScopeComplete, Session: sessID, ScopeKey: scopeKey})
	}
	return nil
}

// Undo moves the read cursor backward by exactly one and drops the
// matching ledger entry if it was the most recent mark. Single level.
func (e *Engine) Undo() error {
	e.mu.Lock()
	if e.flow != FlowReviewing && e.flow != FlowScopeComplete {
		e.mu.Unlock()
		return ErrNoScope
	}
	if e.readIdx == 0 {
		e.mu.Unlock()
		return ErrNothingToUndo
	}
	e.readIdx--
	e.flow = FlowReviewing
	prev := e.records[e.readIdx]
	e.mu.Unlock()

	e.ledger.UndoLast(prev.ID)
	return nil
}

// CommitDeletions applies the ledger as one bulk delete. On failure the
// ledger is preserved for retry. Returns the bytes reclaimed on success.
func (e *Engine) CommitDeletions(ctx context.Context) (int64, error) {
	bytes := e.ledger.TotalBytes()
	err := e.ledger.Commit(ctx)

	e.mu.Lock()
	scope := e.scope
	var sessID int64
	if sess := e.sessions.Session(); sess != nil {
		sessID = sess.ID
	}
	e.mu.Unlock()

	if err != nil {
		e.publish(events.Event{Type: events.EventCommit, Session: sessID, Success: false})
		return 0, err
	}
	if e.cache != nil && scope.IsRange() {
		month := time.UnixMilli(scope.Start).UTC().Format("2006-01")
		if invErr := e.cache.InvalidateSummary(month); invErr != nil {
			logging.Debug("summary invalidation failed", zap.Error(invErr))
		}
	}
	e.publish(events.Event{Type: events.EventCommit, Session: sessID, Success: true, Bytes: bytes})
	return bytes, nil
}

// AdvanceScope moves on after a completed scope: for date-range scopes it
// locates the nearest earlier non-empty month (skipping months already
// reviewed in earlier runs) and begins it. Returns ok=false when no scope
// remains, which is terminal.
func (e *Engine) AdvanceScope(ctx context.Context) (photostore.Scope, bool, error) {
	e.mu.Lock()
	scope := e.scope
	flow := e.flow
	e.mu.Unlock()

	if flow != FlowScopeComplete {
		return photostore.Scope{}, false, ErrNotComplete
	}
	if !scope.IsRange() {
		e.end()
		return photostore.Scope{}, false, nil
	}

	start := scope.Start
	for {
		ts, ok := e.nearestBefore(ctx, start)
		if !ok {
			e.end()
			return photostore.Scope{}, false, nil
		}
		month := photostore.MonthScope(time.UnixMilli(ts).UTC())
		if e.cache != nil && e.cache.Done(month.Key()) {
			start = month.Start
			continue
		}
		return month, true, e.BeginScope(ctx, month)
	}
}

// State returns a snapshot for the UI layer: the current asset, up to two
// lookahead assets, progress, and the load phase.
func (e *Engine) State() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := Snapshot{
		Scope:            e.scope,
		Flow:             e.flow,
		Phase:            e.phase,
		Progress:         Progress{Current: e.readIdx, Total: len(e.records)},
		PendingDeletions: e.ledger.Len(),
		PendingBytes:     e.ledger.TotalBytes(),
	}
	if e.readIdx < len(e.records) {
		cur := e.records[e.readIdx]
		snap.Current = &cur
	}
	for i := e.readIdx + 1; i <= e.readIdx+2 && i < len(e.records); i++ {
		snap.Lookahead = append(snap.Lookahead, e.records[i])
	}
	return snap
}

// ── internals ──

func (e *Engine) resetLocked(scope photostore.Scope) {
	e.scope = scope
	e.records = nil
	e.index = make(map[string]int)
	e.healing = make(map[string]struct{})
	e.readIdx = 0
	e.cursor = ""
	e.hasNext = false
	e.fetching = false
	e.advances = 0
	e.flow = FlowReviewing
	e.phase = PhaseLoading
}

// locateFirstPage fetches the first page, skipping empty months backwards
// for range scopes. Returns found=false when nothing older exists.
func (e *Engine) locateFirstPage(ctx context.Context, sess *Session, scope photostore.Scope) (photostore.Page, photostore.Scope, bool) {
	page := e.fetchPage(ctx, scope, "")
	for len(page.Items) == 0 && live(e.sessions, sess) {
		if !scope.IsRange() {
			// An empty album completes immediately rather than skipping.
			return page, scope, true
		}
		ts, ok := e.nearestBefore(ctx, scope.Start)
		if !ok {
			return photostore.Page{}, scope, false
		}
		scope = photostore.MonthScope(time.UnixMilli(ts).UTC())
		page = e.fetchPage(ctx, scope, "")
	}
	return page, scope, true
}

// startLoad installs a fetched first page and runs the staged load:
// priority tier synchronously, background tier in a goroutine.
func (e *Engine) startLoad(ctx context.Context, sess *Session, page photostore.Page) {
	items := page.Items
	pc := e.opts.PriorityCount
	if pc > len(items) {
		pc = len(items)
	}

	prio := e.loader.LoadPriority(ctx, items[:pc])

	e.mu.Lock()
	if !live(e.sessions, sess) {
		e.mu.Unlock()
		return
	}
	e.records = make([]Asset, 0, len(items))
	e.index = make(map[string]int, len(items))
	for _, a := range prio {
		e.index[a.ID] = len(e.records)
		e.records = append(e.records, a)
	}
	for _, d := range items[pc:] {
		e.index[d.ID] = len(e.records)
		e.records = append(e.records, Placeholder(d))
	}
	e.readIdx = 0
	e.cursor = page.EndCursor
	e.hasNext = page.HasNextPage

	completed := false
	if len(items) == 0 {
		e.flow = FlowScopeComplete
		e.phase = PhaseIdle
		completed = true
	} else if len(items) > pc {
		e.phase = PhaseBackground
	} else {
		e.phase = PhaseComplete
	}
	scopeKey := e.scope.Key()
	e.updateGaugesLocked()
	e.mu.Unlock()

	if completed {
		e.markDone(scopeKey)
		e.publish(events.Event{Type: events.EventScopeComplete, Session: sess.ID, ScopeKey: scopeKey})
		return
	}

	e.publish(events.Event{
		Type: events.EventPriorityReady, Session: sess.ID,
		Loaded: len(prio), Total: len(items),
	})
	if len(items) > pc {
		go e.backgroundLoad(sess, items[pc:])
	} else {
		e.publish(events.Event{Type: events.EventLoadComplete, Session: sess.ID})
	}
}

// backgroundLoad runs the background tier for one page. Cancellation is
// cooperative: the loader re-checks session liveness at batch boundaries
// and applyBatch rejects writes from superseded sessions.
func (e *Engine) backgroundLoad(sess *Session, descs []photostore.Descriptor) {
	ctx := context.Background()
	e.loader.LoadBackground(ctx, e.sessions, sess, descs,
		func(batch []Asset) bool { return e.applyBatch(sess, batch) },
		func(loaded, total int) {
			e.publish(events.Event{
				Type: events.EventBatchProgress, Session: sess.ID,
				Loaded: loaded, Total: total,
			})
		},
	)

	e.mu.Lock()
	done := live(e.sessions, sess) && e.phase == PhaseBackground
	if done {
		e.phase = PhaseComplete
	}
	e.updateGaugesLocked()
	e.mu.Unlock()

	if done {
		e.publish(events.Event{Type: events.EventLoadComplete, Session: sess.ID})
	}
}

// applyBatch merges settled background results into the record array,
// keyed by asset identity. Only placeholders are filled: a record loads at
// most once per session, and demoted records stay demoted until healed
// near the cursor.
func (e *Engine) applyBatch(sess *Session, batch []Asset) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !live(e.sessions, sess) {
		return false
	}
	for _, a := range batch {
		i, ok := e.index[a.ID]
		if !ok {
			continue
		}
		if e.records[i].State == StatePlaceholder {
			e.records[i] = a
		}
	}
	e.updateGaugesLocked()
	return true
}

// healLocked schedules on-demand resolution for the cursor and lookahead
// records when they are not loaded (stragglers or governor-demoted).
// Caller holds e.mu.
func (e *Engine) healLocked(sess *Session) {
	if sess == nil {
		return
	}
	for i := e.readIdx; i <= e.readIdx+1 && i < len(e.records); i++ {
		r := e.records[i]
		if r.Loaded() {
			continue
		}
		if _, busy := e.healing[r.ID]; busy {
			continue
		}
		e.healing[r.ID] = struct{}{}
		go e.heal(sess, r.Descriptor)
	}
}

func (e *Engine) heal(sess *Session, d photostore.Descriptor) {
	a := e.loader.resolve(context.Background(), d)

	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.healing, d.ID)
	if !live(e.sessions, sess) {
		return
	}
	if i, ok := e.index[d.ID]; ok && !e.records[i].Loaded() && a.Loaded() {
		e.records[i] = a
		e.updateGaugesLocked()
	}
}

// maybeFetchNextLocked starts the next page fetch when the cursor nears
// the end of the known records. At most one fetch is in flight. Caller
// holds e.mu.
func (e *Engine) maybeFetchNextLocked(sess *Session) {
	if e.fetching || !e.hasNext || sess == nil {
		return
	}
	if len(e.records)-e.readIdx > e.opts.BatchSize {
		return
	}
	e.fetching = true
	go e.fetchNext(sess, e.scope, e.cursor)
}

func (e *Engine) fetchNext(sess *Session, scope photostore.Scope, cursor string) {
	ctx := context.Background()
	page := e.fetchPage(ctx, scope, cursor)

	e.mu.Lock()
	if !live(e.sessions, sess) {
		e.mu.Unlock()
		return
	}
	e.fetching = false
	e.hasNext = page.HasNextPage
	if page.EndCursor != "" {
		e.cursor = page.EndCursor
	}
	for _, d := range page.Items {
		if _, dup := e.index[d.ID]; dup {
			continue
		}
		e.index[d.ID] = len(e.records)
		e.records = append(e.records, Placeholder(d))
	}
	completed := false
	if len(page.Items) > 0 {
		e.phase = PhaseBackground
	} else if e.readIdx >= len(e.records) && !e.hasNext {
		e.flow = FlowScopeComplete
		completed = true
	}
	scopeKey := e.scope.Key()
	e.updateGaugesLocked()
	e.mu.Unlock()

	if completed {
		e.markDone(scopeKey)
		e.publish(events.Event{Type: events.EventScopeComplete, Session: sess.ID, ScopeKey: scopeKey})
		return
	}
	if len(page.Items) > 0 {
		go e.backgroundLoad(sess, page.Items)
	}
}

// fetchPage fetches one page, absorbing failures as exhaustion: the caller
// sees an empty page with HasNextPage=false and cannot distinguish a
// transient error from a truly empty result. Transient store errors are
// already retried inside the providers.
func (e *Engine) fetchPage(ctx context.Context, scope photostore.Scope, cursor string) photostore.Page {
	var (
		page photostore.Page
		err  error
	)
	if cursor == "" {
		page, err = e.provider.FirstPage(ctx, scope, e.opts.PageSize)
	} else {
		page, err = e.provider.NextPage(ctx, scope, cursor, e.opts.PageSize)
	}
	if err != nil {
		metrics.RecordPageFetch(false)
		logging.Warn("page fetch failed, treating as exhausted",
			zap.String("scope", scope.Key()), zap.Error(err))
		return photostore.Page{}
	}
	metrics.RecordPageFetch(true)
	return page
}

func (e *Engine) nearestBefore(ctx context.Context, ts int64) (int64, bool) {
	found, ok, err := e.provider.NearestBefore(ctx, ts)
	if err != nil {
		logging.Warn("nearest-scope probe failed", zap.Error(err))
		return 0, false
	}
	return found, ok
}

func (e *Engine) end() {
	e.mu.Lock()
	e.flow = FlowEnd
	e.phase = PhaseIdle
	var sessID int64
	if sess := e.sessions.Session(); sess != nil {
		sessID = sess.ID
	}
	e.mu.Unlock()
	e.publish(events.Event{Type: events.EventEnd, Session: sessID})
}

func (e *Engine) markDone(scopeKey string) {
	if e.cache == nil {
		return
	}
	if err := e.cache.MarkDone(scopeKey); err != nil {
		logging.Debug("progress marker write failed", zap.Error(err))
	}
}

func (e *Engine) publish(ev events.Event) {
	e.bus.Publish(ev)
}

func (e *Engine) updateGaugesLocked() {
	loaded := 0
	for i := range e.records {
		if e.records[i].Loaded() {
			loaded++
		}
	}
	metrics.SetLoadedAssets(loaded)
}

// trimLoop is the timer-driven safety net against a user who pauses
// mid-session with a large working set resident.
func (e *Engine) trimLoop() {
	ticker := time.NewTicker(e.opts.TrimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
			e.mu.Lock()
			trimmed := 0
			var sessID int64
			if e.flow == FlowReviewing {
				trimmed = e.governor.Trim(e.records, e.readIdx)
				if sess := e.sessions.Session(); sess != nil {
					sessID = sess.ID
				}
				e.updateGaugesLocked()
			}
			e.mu.Unlock()
			if trimmed > 0 {
				e.publish(events.Event{Type: events.EventTrim, Session: sessID, Demoted: trimmed})
			}
		}
	}
}
