package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/ESETdropout/kframe/internal/tree"
)

// Snapshot renders a run as indented JSON for golden comparison. Map keys
// keep insertion order, views follow the scenario's observer order.
func Snapshot(s *Scenario, r *Result) ([]byte, error) {
	trace := tree.NewList()
	for _, event := range r.Trace {
		writes := tree.NewList()
		for _, w := range event.Writes {
			wm := tree.MapOf(
				tree.P("target", tree.String(w.Target)),
				tree.P("op", tree.String(w.Op)),
				tree.P("name", tree.String(w.Name)),
			)
			if w.Value != nil {
				wm.Set("value", w.Value)
			}
			writes.Push(wm)
		}

		em := tree.MapOf(
			tree.P("seq", tree.Int(event.Seq)),
			tree.P("action", tree.String(event.Action)),
			tree.P("payload", orNull(event.Payload)),
			tree.P("changed", stringList(event.Changed)),
			tree.P("notified", stringList(event.Notified)),
			tree.P("writes", writes),
		)
		if event.Error != "" {
			em.Set("error", tree.String(event.Error))
		}
		trace.Push(em)
	}

	views := tree.NewMap()
	for _, o := range s.Observers {
		v := r.Views[o.Name]
		if o.List != nil {
			views.Set(o.Name, tree.MapOf(
				tree.P("keys", stringList(v.Keys)),
				tree.P("nodes", stringList(v.Nodes)),
			))
			continue
		}
		props := v.Props
		if props == nil {
			props = tree.NewMap()
		}
		views.Set(o.Name, tree.MapOf(tree.P("props", props)))
	}

	snap := tree.MapOf(
		tree.P("scenario", tree.String(s.Name)),
		tree.P("trace", trace),
		tree.P("state", orNull(r.State)),
		tree.P("views", views),
	)

	data, err := tree.MarshalValue(snap)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func stringList(ss []string) *tree.List {
	l := tree.NewList()
	for _, s := range ss {
		l.Push(tree.String(s))
	}
	return l
}

func orNull(v tree.Value) tree.Value {
	switch val := v.(type) {
	case nil:
		return tree.Null{}
	case *tree.Map:
		if val == nil {
			return tree.Null{}
		}
	}
	return v
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns an error if the scenario cannot run. A snapshot mismatch fails
// the test through goldie.
func RunWithGolden(t *testing.T, s *Scenario, opts ...Option) (*Result, error) {
	t.Helper()

	result, err := Run(s, opts...)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, s, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against the scenario's golden
// file without re-running it.
func AssertGolden(t *testing.T, s *Scenario, result *Result) error {
	t.Helper()

	data, err := Snapshot(s, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, s.Name, data)
	return nil
}
