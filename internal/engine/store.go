package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ESETdropout/kframe/internal/diff"
	"github.com/ESETdropout/kframe/internal/selector"
	"github.com/ESETdropout/kframe/internal/tree"
)

// Outcome labels a dispatch result for metrics.
type Outcome string

const (
	OutcomeOK         Outcome = "ok"
	OutcomeUnknown    Outcome = "unknown_action"
	OutcomeReentrant  Outcome = "reentrant"
	OutcomeFailed     Outcome = "error"
	OutcomeInitialize Outcome = "init"
)

// MetricsRecorder receives one observation per dispatch attempt.
// Implemented by metrics.Recorder.
type MetricsRecorder interface {
	ObserveDispatch(action string, outcome Outcome, elapsed time.Duration, changed, notified int)
}

// Store owns the state tree and runs dispatches.
//
// Thread-safety model: none. All calls must come from one goroutine; use
// Loop to feed actions from several goroutines.
type Store struct {
	state    *tree.Map
	last     *tree.Map
	handlers HandlerTable
	compute  ComputeFunc
	skip     diff.KeySet

	registry  *Registry
	listeners []listener
	nextID    int

	clock   *Clock
	metrics MetricsRecorder
	eval    *selector.Evaluator

	running     string
	initialized bool
}

type listener struct {
	id int
	fn func(Update)
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the dispatch clock. Default: NewClock().
// Use NewClockAt to continue numbering from a journal.
func WithClock(c *Clock) Option {
	return func(s *Store) {
		s.clock = c
	}
}

// WithMetrics sets the dispatch metrics recorder. Default: none.
func WithMetrics(m MetricsRecorder) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// WithEvaluator sets the selector evaluator used to resolve list observer
// paths. Default: a new evaluator with default options.
func WithEvaluator(e *selector.Evaluator) Option {
	return func(s *Store) {
		s.eval = e
	}
}

// New creates a Store from def. The initial state is deep-cloned, every list
// starts clean and the snapshot equals the state.
func New(def Definition, opts ...Option) *Store {
	state := tree.NewMap()
	if def.InitialState != nil {
		state = tree.CloneMap(def.InitialState)
	}
	tree.WalkLists(state, func(_ string, l *tree.List) { l.MarkClean() })

	handlers := make(HandlerTable, len(def.Handlers))
	for name, h := range def.Handlers {
		handlers[name] = h
	}

	s := &Store{
		state:    state,
		handlers: handlers,
		compute:  def.ComputeState,
		skip:     diff.NewKeySet(def.NonTrackedKeys...),
		registry: NewRegistry(),
		clock:    NewClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.eval == nil {
		s.eval = selector.MustNew()
	}
	s.last = diff.NewSnapshot(s.state, s.skip)

	return s
}

// State returns the live state tree. Mutate it only from handlers.
func (s *Store) State() *tree.Map {
	return s.state
}

// LastState returns the snapshot taken after the last dispatch.
func (s *Store) LastState() *tree.Map {
	return s.last
}

// Seq returns the sequence number of the last committed dispatch.
func (s *Store) Seq() int64 {
	return s.clock.Current()
}

// Actions returns the registered action names in sorted order.
func (s *Store) Actions() []string {
	return s.handlers.Actions()
}

// Evaluator returns the selector evaluator shared with bindings.
func (s *Store) Evaluator() *selector.Evaluator {
	return s.eval
}

// Subscribe registers o. Subscribing a registered observer is a no-op.
func (s *Store) Subscribe(o Observer) {
	if s.registry.Subscribe(o) {
		slog.Debug("observer subscribed", "observer", fmt.Sprintf("%T", o), "watch", o.WatchKeys())
	}
}

// Unsubscribe removes o. It returns *NotSubscribedError when o is not
// registered. Removal during a notification pass takes effect immediately.
func (s *Store) Unsubscribe(o Observer) error {
	return s.registry.Unsubscribe(o)
}

// Subscribed reports whether o is registered.
func (s *Store) Subscribed(o Observer) bool {
	return s.registry.Contains(o)
}

// Listen registers fn to receive every committed Update after observers
// have run. The returned func removes fn.
func (s *Store) Listen(fn func(Update)) (cancel func()) {
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, listener{id: id, fn: fn})
	return func() {
		for i, l := range s.listeners {
			if l.id == id {
				s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

// Init delivers the initial notification pass with InitAction to every
// registered observer, regardless of what it watches. It may run once.
func (s *Store) Init() error {
	if s.initialized {
		return ErrAlreadyInitialized
	}
	s.initialized = true
	s.running = InitAction
	defer func() { s.running = "" }()

	start := time.Now()
	u := Update{
		Action:    InitAction,
		Payload:   tree.NewMap(),
		State:     s.state,
		LastState: s.last,
	}
	notified, err := s.notify(u, nil, true)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	s.observe(InitAction, OutcomeInitialize, start, 0, notified)

	slog.Debug("store initialized", "observers", notified)
	return nil
}

// Dispatch runs the handler registered for action and notifies observers.
//
// A handler, compute hook or observer error aborts the dispatch and is
// returned wrapped. Observers after the failing one are not notified, list
// dirty flags stay set, the snapshot is not refreshed and no seq is taken.
func (s *Store) Dispatch(action string, payload tree.Value) (*Update, error) {
	start := time.Now()

	if s.running != "" {
		s.observe(action, OutcomeReentrant, start, 0, 0)
		return nil, &ReentrantDispatchError{Action: action, Running: s.running}
	}
	handler, ok := s.handlers[action]
	if !ok {
		s.observe(action, OutcomeUnknown, start, 0, 0)
		return nil, &UnknownActionError{Action: action}
	}
	if payload == nil {
		payload = tree.Null{}
	}

	s.running = action
	defer func() { s.running = "" }()

	if err := handler(s.state, payload); err != nil {
		s.observe(action, OutcomeFailed, start, 0, 0)
		return nil, fmt.Errorf("action %q: handler: %w", action, err)
	}
	if s.compute != nil {
		if err := s.compute(s.state, action, payload); err != nil {
			s.observe(action, OutcomeFailed, start, 0, 0)
			return nil, fmt.Errorf("action %q: compute state: %w", action, err)
		}
	}

	// The seq is only taken once the notification pass succeeds.
	changed := diff.Changed(s.last, s.state, s.skip)
	u := Update{
		Seq:       s.clock.Current() + 1,
		Action:    action,
		Payload:   payload,
		State:     s.state,
		LastState: s.last,
		Changed:   changed,
	}

	notified, err := s.notify(u, diff.NewKeySet(changed...), false)
	if err != nil {
		s.observe(action, OutcomeFailed, start, len(changed), notified)
		return nil, fmt.Errorf("action %q: %w", action, err)
	}
	s.clock.Next()

	tree.WalkLists(s.state, func(_ string, l *tree.List) { l.MarkClean() })
	diff.Snapshot(s.last, s.state, s.skip)

	slog.Debug("action dispatched",
		"action", action,
		"seq", u.Seq,
		"changed", changed,
		"notified", notified,
	)

	for _, l := range s.listeners {
		l.fn(u)
	}
	s.observe(action, OutcomeOK, start, len(changed), notified)

	return &u, nil
}

// notify runs one notification pass over the observers registered when it
// starts. An observer removed during the pass is skipped at its turn.
func (s *Store) notify(u Update, changed diff.KeySet, all bool) (int, error) {
	notified := 0
	for _, o := range s.registry.Observers() {
		if !s.registry.Contains(o) {
			continue
		}
		if !all && !s.shouldNotify(o, changed) {
			continue
		}
		if err := o.OnStateUpdate(u); err != nil {
			return notified, fmt.Errorf("notify %T: %w", o, err)
		}
		notified++
	}
	return notified, nil
}

// shouldNotify is the relevance predicate. List observers follow the dirty
// flag of their list; if the path no longer holds a list they fall back to
// the key diff on the path's top-level key.
func (s *Store) shouldNotify(o Observer, changed diff.KeySet) bool {
	if lo, ok := o.(ListObserver); ok {
		path := lo.ListPath()
		v, err := s.eval.Resolve(s.state, path, nil)
		if err == nil {
			if l, ok := v.(*tree.List); ok {
				return l.Dirty()
			}
		}
		return changed.Has(selector.TopKey(path))
	}

	for _, key := range o.WatchKeys() {
		if changed.Has(key) {
			return true
		}
	}
	return false
}

func (s *Store) observe(action string, outcome Outcome, start time.Time, changed, notified int) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveDispatch(action, outcome, time.Since(start), changed, notified)
}
