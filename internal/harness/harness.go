package harness

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/ESETdropout/kframe/internal/bind"
	"github.com/ESETdropout/kframe/internal/compiler"
	"github.com/ESETdropout/kframe/internal/engine"
	"github.com/ESETdropout/kframe/internal/reconcile"
	"github.com/ESETdropout/kframe/internal/template"
	"github.com/ESETdropout/kframe/internal/tree"
)

// Option configures a run.
type Option func(*Harness)

// WithLogger sets the harness logger. Defaults to discarding.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = l
	}
}

// WithStoreOptions passes options to the store the harness builds.
func WithStoreOptions(opts ...engine.Option) Option {
	return func(h *Harness) {
		h.storeOpts = append(h.storeOpts, opts...)
	}
}

// Harness runs one scenario against a fresh store.
type Harness struct {
	store     *engine.Store
	probes    *probeStore
	rec       *recorder
	logger    *slog.Logger
	storeOpts []engine.Option

	targets map[string]*viewTarget
	lists   map[string]*listView
}

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Compile the definition and build a store
//  2. Attach the observers in order, then run the initial pass
//  3. Dispatch each step and check its expect clause
//  4. Evaluate the assertions against the trace, state and views
//
// Expectation and assertion failures are reported in the Result. A
// returned error means the scenario could not run.
func Run(s *Scenario, opts ...Option) (*Result, error) {
	h := &Harness{
		rec:     &recorder{},
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		targets: make(map[string]*viewTarget),
		lists:   make(map[string]*listView),
	}
	for _, opt := range opts {
		opt(h)
	}

	prog, err := compiler.Load(s.Definition)
	if err != nil {
		return nil, fmt.Errorf("load definition: %w", err)
	}
	h.store = engine.New(prog.Definition(), h.storeOpts...)
	h.probes = newProbeStore(h.store, h.rec)

	result := NewResult()

	if err := h.attach(s.Observers); err != nil {
		return nil, fmt.Errorf("attach observers: %w", err)
	}
	if err := h.store.Init(); err != nil {
		return nil, fmt.Errorf("initial pass: %w", err)
	}
	result.Trace = append(result.Trace, h.event(0, engine.InitAction, tree.Null{}, nil))
	h.rec.reset()

	for i, step := range s.Steps {
		if err := h.runStep(i, step, result); err != nil {
			return nil, err
		}
	}

	result.State = h.store.State()
	for _, o := range s.Observers {
		result.Views[o.Name] = h.view(o.Name)
	}

	for _, msg := range EvaluateAssertions(result, s.Assertions, h.store.Evaluator()) {
		result.AddError(msg)
	}

	h.logger.Info("scenario finished",
		"scenario", s.Name,
		"steps", len(s.Steps),
		"pass", result.Pass,
	)
	return result, nil
}

func (h *Harness) attach(specs []ObserverSpec) error {
	for _, o := range specs {
		h.probes.naming = o.Name

		switch {
		case o.Bind != "":
			t := newViewTarget(o.Name, h.rec)
			vb, err := bind.NewValueBinding(h.probes, t, o.Bind)
			if err != nil {
				return fmt.Errorf("observer %q: %w", o.Name, err)
			}
			h.targets[o.Name] = t
			if err := vb.Attach(); err != nil {
				return fmt.Errorf("observer %q: %w", o.Name, err)
			}

		case o.Toggle != "":
			prop := o.Property
			if prop == "" {
				prop = o.Name
			}
			t := newViewTarget(o.Name, h.rec)
			h.targets[o.Name] = t
			if err := bind.NewToggleBinding(h.probes, t, prop, o.Toggle).Attach(); err != nil {
				return fmt.Errorf("observer %q: %w", o.Name, err)
			}

		case o.List != nil:
			if err := h.attachList(o.Name, o.List); err != nil {
				return fmt.Errorf("observer %q: %w", o.Name, err)
			}
		}
	}
	return nil
}

func (h *Harness) attachList(name string, spec *ListSpec) error {
	var renderer reconcile.Renderer = jsonRenderer
	if spec.Template != "" {
		tmpl, err := template.Parse(spec.Template, h.store.Evaluator())
		if err != nil {
			return err
		}
		renderer = template.Renderer{Template: tmpl}
	}

	view := newListView(name, h.rec)
	h.lists[name] = view

	lb, err := bind.NewListBinding(h.probes, bind.ListSpec{For: spec.For, In: spec.In, Key: spec.Key}, view, renderer)
	if err != nil {
		return err
	}

	if spec.Item != "" {
		lb.OnRender(func(res reconcile.Result) error {
			for _, key := range res.Added {
				itemName := fmt.Sprintf("%s[%s]", name, key)
				h.probes.naming = itemName
				if _, err := lb.BindItem(key, newViewTarget(itemName, h.rec), spec.Item); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return lb.Attach()
}

func (h *Harness) runStep(i int, step Step, result *Result) error {
	payload, err := nodeValue(step.Payload)
	if err != nil {
		return fmt.Errorf("steps[%d]: payload: %w", i, err)
	}

	h.rec.reset()
	u, dispatchErr := h.store.Dispatch(step.Dispatch, payload)

	var ev TraceEvent
	if dispatchErr != nil {
		ev = h.event(0, step.Dispatch, payload, nil)
		ev.Error = dispatchErr.Error()
	} else {
		ev = h.event(u.Seq, step.Dispatch, payload, u.Changed)
	}
	result.Trace = append(result.Trace, ev)

	h.logger.Debug("step dispatched",
		"step", i,
		"action", step.Dispatch,
		"seq", ev.Seq,
		"notified", len(ev.Notified),
		"error", ev.Error,
	)

	prefix := fmt.Sprintf("steps[%d] %s", i, step.Dispatch)
	exp := step.Expect
	if exp == nil || exp.Error == "" {
		if dispatchErr != nil {
			result.AddError(fmt.Sprintf("%s: unexpected error: %v", prefix, dispatchErr))
			return nil
		}
	} else {
		if dispatchErr == nil {
			result.AddError(fmt.Sprintf("%s: expected error containing %q, dispatch succeeded", prefix, exp.Error))
		} else if !strings.Contains(dispatchErr.Error(), exp.Error) {
			result.AddError(fmt.Sprintf("%s: error %q does not contain %q", prefix, dispatchErr.Error(), exp.Error))
		}
	}
	if exp == nil {
		return nil
	}

	if exp.Changed != nil && !sameSet(exp.Changed, ev.Changed) {
		result.AddError(fmt.Sprintf("%s: changed = %v, want %v", prefix, ev.Changed, exp.Changed))
	}
	if exp.Notified != nil && !sameSet(exp.Notified, ev.Notified) {
		result.AddError(fmt.Sprintf("%s: notified = %v, want %v", prefix, ev.Notified, exp.Notified))
	}

	sels := make([]string, 0, len(exp.State))
	for sel := range exp.State {
		sels = append(sels, sel)
	}
	slices.Sort(sels)
	for _, sel := range sels {
		want, err := nodeValue(exp.State[sel])
		if err != nil {
			return fmt.Errorf("steps[%d]: expect.state[%q]: %w", i, sel, err)
		}
		got, err := h.store.Evaluator().Select(h.store.State(), sel, nil)
		if err != nil {
			result.AddError(fmt.Sprintf("%s: state %q: %v", prefix, sel, err))
			continue
		}
		if !valuesEqual(want, got) {
			result.AddError(fmt.Sprintf("%s: state %q = %s, want %s", prefix, sel, formatValue(got), formatValue(want)))
		}
	}
	return nil
}

// event builds a trace event from the recorder's contents.
func (h *Harness) event(seq int64, action string, payload tree.Value, changed []string) TraceEvent {
	return TraceEvent{
		Seq:      seq,
		Action:   action,
		Payload:  tree.Clone(payload),
		Changed:  slices.Clone(changed),
		Notified: slices.Clone(h.rec.notified),
		Writes:   slices.Clone(h.rec.writes),
	}
}

func (h *Harness) view(name string) View {
	if l, ok := h.lists[name]; ok {
		return l.view()
	}
	if t, ok := h.targets[name]; ok {
		return View{Props: tree.CloneMap(t.props)}
	}
	return View{}
}

func sameSet(want, got []string) bool {
	a, b := slices.Clone(want), slices.Clone(got)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}
