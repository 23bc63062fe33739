package zealtime

import (
	"golang.org/x/net/html"

	"github.com/livefir/zealtime/internal/dom"
	"github.com/livefir/zealtime/internal/observe"
)

// Render restores every recorded original and substitutes the whole
// document again. It does nothing before a document is attached.
func (e *Engine) Render() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.render()
}

// render is the store's renderer; callers hold e.mu.
//
// The pass order is fixed: restore, then every element outside instances
// against the global state, then each instance in document order against
// its own scope. An element belongs to the instance whose zid is nearest
// above it, so an outer instance never substitutes into an inner one.
func (e *Engine) render() {
	if e.doc == nil {
		return
	}
	e.restore()

	substituted := 0
	global := &scope{root: e.store.Root()}
	dom.Walk(e.doc.Root(), func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return true
		}
		if isBoundary(n) {
			return false
		}
		substituted += e.renderElement(n, global)
		return true
	})

	for _, root := range e.instances() {
		id, _ := dom.Attr(root, AttrInstance)
		sc := e.instanceScope(id)
		substituted += e.renderElement(root, sc)
		for c := root.FirstChild; c != nil; c = c.NextSibling {
			dom.Walk(c, func(n *html.Node) bool {
				if n.Type != html.ElementNode {
					return true
				}
				if isBoundary(n) {
					return false
				}
				substituted += e.renderElement(n, sc)
				return true
			})
		}
	}

	e.config.Metrics.IncrementRender()
	e.config.Metrics.AddSubstitutions(int64(substituted))
	if e.config.OnRender != nil {
		e.config.OnRender()
	}
}

// isBoundary reports whether n starts a subtree the current pass must skip:
// an instance (rendered with its own scope) or a template definition.
func isBoundary(n *html.Node) bool {
	return dom.HasAttr(n, AttrInstance) || dom.HasAttr(n, AttrTemplate)
}

// restore writes every recorded original back into the document and drops
// records for nodes that have left it.
func (e *Engine) restore() {
	for n, orig := range e.texts {
		if !e.doc.Contains(n) {
			delete(e.texts, n)
			continue
		}
		n.Data = orig
	}
	for n, originals := range e.attrs {
		if !e.doc.Contains(n) {
			delete(e.attrs, n)
			continue
		}
		for key, orig := range originals {
			dom.SetAttr(n, key, orig)
		}
	}
}

// instances returns every instance root outside template definitions, in
// document order.
func (e *Engine) instances() []*html.Node {
	var roots []*html.Node
	dom.Walk(e.doc.Root(), func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return true
		}
		if dom.HasAttr(n, AttrTemplate) {
			return false
		}
		if dom.HasAttr(n, AttrInstance) {
			roots = append(roots, n)
		}
		return true
	})
	return roots
}

func (e *Engine) instanceScope(id string) *scope {
	sc := &scope{root: e.store.Root(), id: id}
	if data, ok := e.store.Root().Get(id).(*observe.Facade); ok {
		sc.data = data
	}
	return sc
}

// renderElement substitutes the attributes of el and its direct text
// children, recording originals on first sight. It returns the number of
// references substituted.
func (e *Engine) renderElement(el *html.Node, sc *scope) int {
	count := 0
	for i := range el.Attr {
		a := &el.Attr[i]
		if a.Namespace != "" {
			continue
		}
		matches := scan(a.Val)
		if len(matches) == 0 {
			continue
		}
		originals := e.attrs[el]
		if originals == nil {
			originals = make(map[string]string)
			e.attrs[el] = originals
		}
		if _, ok := originals[a.Key]; !ok {
			originals[a.Key] = a.Val
		}
		a.Val = e.substitute(a.Val, matches, sc)
		count += len(matches)
	}

	for c := el.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.TextNode {
			continue
		}
		matches := scan(c.Data)
		if len(matches) == 0 {
			continue
		}
		if _, ok := e.texts[c]; !ok {
			e.texts[c] = c.Data
		}
		c.Data = e.substitute(c.Data, matches, sc)
		count += len(matches)
	}
	return count
}

// scope resolves names for one pass: the instance id first, then the
// instance's own data, then the global state.
type scope struct {
	root *observe.Facade
	data *observe.Facade
	id   string
}

func (s *scope) Lookup(name string) (any, bool) {
	if s.id != "" {
		if name == AttrInstance {
			return s.id, true
		}
		if s.data != nil && s.data.Has(name) {
			return s.data.Get(name), true
		}
	}
	if s.root.Has(name) {
		return s.root.Get(name), true
	}
	return nil, false
}
