package harness

import (
	"fmt"

	"github.com/ESETdropout/kframe/internal/engine"
	"github.com/ESETdropout/kframe/internal/reconcile"
	"github.com/ESETdropout/kframe/internal/tree"
)

// recorder collects what happened during one dispatch.
type recorder struct {
	notified []string
	writes   []Write
}

func (r *recorder) reset() {
	r.notified = nil
	r.writes = nil
}

// probeStore hands bindings a store whose subscriptions are wrapped in
// probes, so notifications are recorded under the observer's name.
type probeStore struct {
	*engine.Store

	rec *recorder

	// naming is the name given to the next subscription.
	naming string
	probes map[engine.Observer]engine.Observer
}

func newProbeStore(s *engine.Store, rec *recorder) *probeStore {
	return &probeStore{Store: s, rec: rec, probes: make(map[engine.Observer]engine.Observer)}
}

// Subscribe wraps o in a probe named after the current naming.
func (p *probeStore) Subscribe(o engine.Observer) {
	if pr, ok := p.probes[o]; ok {
		p.Store.Subscribe(pr)
		return
	}

	base := &probe{name: p.naming, inner: o, rec: p.rec}
	var pr engine.Observer = base
	if lo, ok := o.(engine.ListObserver); ok {
		pr = &listProbe{probe: base, list: lo}
	}
	p.probes[o] = pr
	p.Store.Subscribe(pr)
}

// Unsubscribe removes the probe wrapping o.
func (p *probeStore) Unsubscribe(o engine.Observer) error {
	pr, ok := p.probes[o]
	if !ok {
		return p.Store.Unsubscribe(o)
	}
	delete(p.probes, o)
	return p.Store.Unsubscribe(pr)
}

type probe struct {
	name  string
	inner engine.Observer
	rec   *recorder
}

func (p *probe) WatchKeys() []string {
	return p.inner.WatchKeys()
}

func (p *probe) OnStateUpdate(u engine.Update) error {
	p.rec.notified = append(p.rec.notified, p.name)
	return p.inner.OnStateUpdate(u)
}

type listProbe struct {
	*probe
	list engine.ListObserver
}

func (p *listProbe) ListPath() string {
	return p.list.ListPath()
}

// viewTarget is a bind.Target holding properties in a map. Only effective
// changes are recorded.
type viewTarget struct {
	name  string
	props *tree.Map
	rec   *recorder
}

func newViewTarget(name string, rec *recorder) *viewTarget {
	return &viewTarget{name: name, props: tree.NewMap(), rec: rec}
}

func (t *viewTarget) SetProperty(name string, v tree.Value) error {
	if name == "" {
		name = "value"
	}
	if cur, ok := t.props.Get(name); ok && valuesEqual(cur, v) {
		return nil
	}
	v = tree.Clone(v)
	t.props.Set(name, v)
	t.rec.writes = append(t.rec.writes, Write{Target: t.name, Op: "set", Name: name, Value: v})
	return nil
}

func (t *viewTarget) RemoveProperty(name string) error {
	if name == "" {
		name = "value"
	}
	if !t.props.Delete(name) {
		return nil
	}
	t.rec.writes = append(t.rec.writes, Write{Target: t.name, Op: "remove", Name: name})
	return nil
}

// listView is a reconcile.Container recording node appends and removals.
type listView struct {
	name string
	mem  *reconcile.Memory
	rec  *recorder
}

func newListView(name string, rec *recorder) *listView {
	return &listView{name: name, mem: reconcile.NewMemory(), rec: rec}
}

func (l *listView) Append(key string, node reconcile.ViewNode) error {
	if err := l.mem.Append(key, node); err != nil {
		return err
	}
	l.rec.writes = append(l.rec.writes, Write{Target: l.name, Op: "append", Name: key, Value: tree.String(nodeString(node))})
	return nil
}

func (l *listView) Remove(key string) error {
	if err := l.mem.Remove(key); err != nil {
		return err
	}
	l.rec.writes = append(l.rec.writes, Write{Target: l.name, Op: "remove", Name: key})
	return nil
}

func (l *listView) view() View {
	keys := l.mem.Keys()
	nodes := make([]string, len(keys))
	for i, k := range keys {
		n, _ := l.mem.Node(k)
		nodes[i] = nodeString(n)
	}
	return View{Keys: keys, Nodes: nodes}
}

func nodeString(n reconcile.ViewNode) string {
	if s, ok := n.(string); ok {
		return s
	}
	return fmt.Sprint(n)
}

// jsonRenderer renders an item as its JSON encoding.
var jsonRenderer = reconcile.RendererFunc(func(item tree.Value) (reconcile.ViewNode, error) {
	data, err := tree.MarshalValue(item)
	if err != nil {
		return nil, err
	}
	return string(data), nil
})
