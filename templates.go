package zealtime

import (
	"fmt"

	"golang.org/x/net/html"

	"github.com/livefir/zealtime/internal/dom"
)

// Instance is a template clone that has not necessarily been attached.
type Instance struct {
	Node     *html.Node // the clone, tagged with zid
	ID       string     // key of the instance scope in the state tree
	Template *html.Node // the template it was cloned from
}

// GetTemplate returns the first element carrying z="<name>", or nil.
func (e *Engine) GetTemplate(name string) *html.Node {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.getTemplate(name)
}

func (e *Engine) getTemplate(name string) *html.Node {
	if e.doc == nil {
		return nil
	}
	return e.findByAttr(AttrTemplate, name)
}

func (e *Engine) findByAttr(key, val string) *html.Node {
	var found *html.Node
	dom.Walk(e.doc.Root(), func(n *html.Node) bool {
		if found != nil {
			return false
		}
		if v, ok := dom.Attr(n, key); ok && n.Type == html.ElementNode && v == val {
			found = n
			return false
		}
		return true
	})
	return found
}

// Instantiate clones the named template, tags the clone with a fresh id and
// stores data at state[id]. The clone is neither attached nor rendered.
func (e *Engine) Instantiate(name string, data map[string]any) (*Instance, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.instantiate(name, data)
}

func (e *Engine) instantiate(name string, data map[string]any) (*Instance, error) {
	if e.doc == nil {
		return nil, ErrNoDocument
	}
	tmpl := e.getTemplate(name)
	if tmpl == nil {
		return nil, fmt.Errorf("failed to instantiate %q: %w", name, ErrTemplateNotFound)
	}
	if data == nil {
		data = map[string]any{}
	}

	id := e.config.IDGenerator()
	clone := dom.Clone(tmpl)
	dom.RemoveAttr(clone, AttrTemplate)
	dom.SetAttr(clone, AttrInstance, id)
	dom.SetAttr(clone, AttrTemplateName, name)
	e.store.Set(id, data)
	e.config.Metrics.IncrementInstanceCreated()

	return &Instance{Node: clone, ID: id, Template: tmpl}, nil
}

// Create instantiates the named template, appends the clone to the
// template's parent and renders.
func (e *Engine) Create(name string, data map[string]any) (*html.Node, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if tmpl := e.getTemplate(name); tmpl != nil && tmpl.Parent == nil {
		return nil, fmt.Errorf("template %q is detached: %w", name, ErrAnchorNotFound)
	}
	inst, err := e.instantiate(name, data)
	if err != nil {
		return nil, err
	}
	dom.AppendChild(inst.Template.Parent, inst.Node)
	e.render()
	return inst.Node, nil
}

// CreateAfter instantiates the named template, inserts the clone right after
// anchor and renders.
func (e *Engine) CreateAfter(name string, anchor *html.Node, data map[string]any) (*html.Node, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.createAfter(name, anchor, data)
}

// CreateAfterSelector is CreateAfter with the anchor found by a CSS selector.
func (e *Engine) CreateAfterSelector(name, selector string, data map[string]any) (*html.Node, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	anchor, err := e.query(selector)
	if err != nil {
		return nil, err
	}
	return e.createAfter(name, anchor, data)
}

func (e *Engine) createAfter(name string, anchor *html.Node, data map[string]any) (*html.Node, error) {
	if anchor == nil || anchor.Parent == nil {
		return nil, ErrAnchorNotFound
	}
	inst, err := e.instantiate(name, data)
	if err != nil {
		return nil, err
	}
	if err := dom.InsertAfter(anchor, inst.Node); err != nil {
		return nil, err
	}
	e.render()
	return inst.Node, nil
}

// CreateIn instantiates the named template, appends the clone to parent and
// renders.
func (e *Engine) CreateIn(name string, parent *html.Node, data map[string]any) (*html.Node, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.createIn(name, parent, data)
}

// CreateInSelector is CreateIn with the parent found by a CSS selector.
func (e *Engine) CreateInSelector(name, selector string, data map[string]any) (*html.Node, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	parent, err := e.query(selector)
	if err != nil {
		return nil, err
	}
	return e.createIn(name, parent, data)
}

func (e *Engine) createIn(name string, parent *html.Node, data map[string]any) (*html.Node, error) {
	if parent == nil {
		return nil, ErrAnchorNotFound
	}
	inst, err := e.instantiate(name, data)
	if err != nil {
		return nil, err
	}
	dom.AppendChild(parent, inst.Node)
	e.render()
	return inst.Node, nil
}

func (e *Engine) query(selector string) (*html.Node, error) {
	if e.doc == nil {
		return nil, ErrNoDocument
	}
	n, err := e.doc.Query(selector)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, fmt.Errorf("%q: %w", selector, ErrAnchorNotFound)
	}
	return n, nil
}

// Delete removes the element tagged zid="<id>" and its scope record. Scope
// records of instances nested inside it stay in the state tree.
func (e *Engine) Delete(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.doc == nil {
		return ErrNoDocument
	}
	n := e.findByAttr(AttrInstance, id)
	if n == nil {
		return fmt.Errorf("failed to delete %q: %w", id, ErrInstanceNotFound)
	}
	dom.Remove(n)
	e.forget(n)
	e.store.Delete(id)
	e.config.Metrics.IncrementInstanceDeleted()
	return nil
}
