package track

import (
	"slices"

	"github.com/goliatone/go-store/tree"
)

// Changed reports whether anything recorded in am differs between prev and
// next. Only recorded edges are visited: read keys are compared by identity
// and descended into only when the child node has recorded operations of its
// own; existence checks, key enumerations and length reads compare
// existence, key sets and lengths. A root with no recorded operations never
// changes. Cycles are handled with a visited set of node pairs.
func Changed(prev, next any, am *AccessMap) bool {
	p, n := Raw(prev), Raw(next)
	if tree.Same(p, n) {
		return false
	}
	if am == nil {
		return true
	}
	pc, ok := p.(tree.Container)
	if !ok {
		return true
	}
	nc, ok := n.(tree.Container)
	if !ok {
		return true
	}
	rec := am.Lookup(pc)
	if rec == nil {
		return false
	}
	c := comparer{am: am, seen: map[[2]tree.Container]struct{}{}}
	return c.compare(pc, nc, rec)
}

type comparer struct {
	am   *AccessMap
	seen map[[2]tree.Container]struct{}
}

func (c *comparer) value(prev, next any) bool {
	if tree.Same(prev, next) {
		return false
	}
	pc, ok := prev.(tree.Container)
	if !ok {
		return true
	}
	nc, ok := next.(tree.Container)
	if !ok {
		return true
	}
	rec := c.am.Lookup(pc)
	if rec == nil || rec.empty() {
		return true
	}
	return c.compare(pc, nc, rec)
}

func (c *comparer) compare(prev, next tree.Container, rec *Record) bool {
	if rec.whole || prev.Kind() != next.Kind() {
		return true
	}
	pair := [2]tree.Container{prev, next}
	if _, ok := c.seen[pair]; ok {
		return false
	}
	c.seen[pair] = struct{}{}

	if rec.keys && !slices.Equal(prev.Keys(), next.Keys()) {
		return true
	}
	if rec.size && prev.Len() != next.Len() {
		return true
	}
	for _, key := range rec.has {
		if prev.Has(key) != next.Has(key) {
			return true
		}
	}
	for _, key := range rec.reads {
		if prev.Has(key) != next.Has(key) {
			return true
		}
		if c.value(prev.Get(key), next.Get(key)) {
			return true
		}
	}
	return false
}

// Replay re-performs the operations recorded in am, starting at prev,
// against into. It is used when a cached result is reused inside another
// tracked evaluation so that the outer evaluation inherits the inner one's
// dependencies.
func Replay(prev tree.Container, am *AccessMap, into *View) {
	if am == nil || into == nil {
		return
	}
	root, ok := Raw(prev).(tree.Container)
	if !ok {
		return
	}
	r := replayer{am: am, seen: map[tree.Container]struct{}{}}
	r.replay(root, into)
}

type replayer struct {
	am   *AccessMap
	seen map[tree.Container]struct{}
}

func (r *replayer) replay(prev tree.Container, into *View) {
	rec := r.am.Lookup(prev)
	if rec == nil {
		return
	}
	if _, ok := r.seen[prev]; ok {
		return
	}
	r.seen[prev] = struct{}{}

	if rec.whole {
		into.Unwrap()
	}
	if rec.keys {
		into.Keys()
	}
	if rec.size {
		into.Len()
	}
	for _, key := range rec.has {
		into.Has(key)
	}
	for _, key := range rec.reads {
		next := into.Get(key)
		child, ok := prev.Get(key).(tree.Container)
		if !ok {
			continue
		}
		if view, ok := next.(*View); ok {
			r.replay(child, view)
		}
	}
}

// Paths lists the recorded operations below root as dotted paths. Reads are
// reported as "a.b", key enumerations as "a.*", length reads as "a.#" and
// existence checks as "a.b?". Nodes marked whole are reported with a
// trailing ".**".
func Paths(root tree.Container, am *AccessMap) []string {
	if am == nil {
		return nil
	}
	node, ok := Raw(root).(tree.Container)
	if !ok {
		return nil
	}
	w := pathWalker{am: am, active: map[tree.Container]struct{}{}}
	w.walk(node, "")
	return w.out
}

type pathWalker struct {
	am     *AccessMap
	active map[tree.Container]struct{}
	out    []string
}

func (w *pathWalker) walk(node tree.Container, prefix string) bool {
	rec := w.am.Lookup(node)
	if rec == nil || (rec.empty() && !rec.whole) {
		return false
	}
	if _, ok := w.active[node]; ok {
		return true
	}
	w.active[node] = struct{}{}
	defer delete(w.active, node)

	if rec.whole {
		w.out = append(w.out, tree.JoinPath(prefix, "**"))
	}
	if rec.keys {
		w.out = append(w.out, tree.JoinPath(prefix, "*"))
	}
	if rec.size {
		w.out = append(w.out, tree.JoinPath(prefix, "#"))
	}
	for _, key := range rec.has {
		w.out = append(w.out, tree.JoinPath(prefix, key)+"?")
	}
	for _, key := range rec.reads {
		path := tree.JoinPath(prefix, key)
		if child, ok := node.Get(key).(tree.Container); ok && w.walk(child, path) {
			continue
		}
		w.out = append(w.out, path)
	}
	return true
}
