// Package zealtime binds a shared state tree to an HTML document.
//
// Text and attribute values in the document may contain $(key) references
// and $((expression)) inline expressions. Render substitutes them from the
// state, remembering each node's original text so that later renders start
// again from the source rather than from substituted output. Any key read
// while rendering becomes a dependency: writing it re-renders the document
// before the write returns.
//
// Elements carrying z="<name>" are templates. Create and its variants clone
// a template into a live instance tagged zid="<id>", whose data lives under
// state[<id>] and shadows the global state inside that instance.
package zealtime

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"golang.org/x/net/html"

	"github.com/livefir/zealtime/internal/dom"
	"github.com/livefir/zealtime/internal/expr"
	"github.com/livefir/zealtime/internal/metrics"
	"github.com/livefir/zealtime/internal/observe"
	"github.com/livefir/zealtime/internal/state"
)

// Document attributes.
const (
	AttrTemplate     = "z"          // names a template
	AttrDisplay      = "z-display"  // keeps a template visible
	AttrInstance     = "zid"        // carries an instance id
	AttrTemplateName = "z-template" // names the template an instance came from

	// attrStyle marks the injected visibility style sheet.
	attrStyle = "data-zealtime"
)

// VisibilityStyle hides templates that are not explicitly displayed.
const VisibilityStyle = visibilitySelector + " { display: none; }"

const visibilitySelector = "[z]:not([z-display])"

// Engine owns the state store, the document and the substitution records.
// Every exported method takes the engine lock, so writes and renders are
// serialized no matter which goroutine issues them.
type Engine struct {
	mu     sync.Mutex
	config Config
	store  *state.Store
	doc    *dom.Document

	texts    map[*html.Node]string
	attrs    map[*html.Node]map[string]string
	programs map[string]compiled
}

type compiled struct {
	program *expr.Program
	err     error
}

// New creates an engine with no document attached.
func New(opts ...Option) *Engine {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	if config.Metrics == nil {
		config.Metrics = metrics.NewCollector()
	}

	e := &Engine{
		config:   config,
		store:    state.New(),
		texts:    make(map[*html.Node]string),
		attrs:    make(map[*html.Node]map[string]string),
		programs: make(map[string]compiled),
	}
	e.store.SetRenderer(e.render)
	return e
}

// Load parses r as the document and attaches it.
func (e *Engine) Load(r io.Reader) error {
	doc, err := dom.Parse(r)
	if err != nil {
		return err
	}
	return e.Attach(doc)
}

// Attach installs doc as the engine's document, injects the visibility style
// sheet and performs the initial render. Attaching a different document
// drops the records kept for the previous one.
func (e *Engine) Attach(doc *dom.Document) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ensureVisibilityStyle(doc); err != nil {
		return err
	}
	if doc != e.doc {
		e.doc = doc
		e.texts = make(map[*html.Node]string)
		e.attrs = make(map[*html.Node]map[string]string)
	}
	e.render()
	return nil
}

func ensureVisibilityStyle(doc *dom.Document) error {
	if doc.HasRule(visibilitySelector) {
		return nil
	}
	style, err := doc.AddStyle(VisibilityStyle)
	if err != nil {
		return fmt.Errorf("failed to add visibility style: %w", err)
	}
	dom.SetAttr(style, attrStyle, "")
	return nil
}

// Document returns the attached document, or nil.
func (e *Engine) Document() *dom.Document {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.doc
}

// HTML renders the attached document.
func (e *Engine) HTML() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.doc == nil {
		return "", ErrNoDocument
	}
	return e.doc.HTML()
}

// MinifiedHTML renders the attached document minified.
func (e *Engine) MinifiedHTML() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.doc == nil {
		return "", ErrNoDocument
	}
	return e.doc.MinifiedHTML()
}

// Text returns the text of the attached document, leaving out templates
// the visibility style hides.
func (e *Engine) Text() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.doc == nil {
		return "", ErrNoDocument
	}
	return e.doc.VisibleText(func(n *html.Node) bool {
		return dom.HasAttr(n, AttrTemplate) && !dom.HasAttr(n, AttrDisplay)
	}), nil
}

// Metrics returns the engine's collector.
func (e *Engine) Metrics() *metrics.Collector {
	return e.config.Metrics
}

// Get reads a top-level state key. Objects come back as facades.
func (e *Engine) Get(key string) any {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Get(key)
}

// Set writes a top-level state key, rendering first if the key is tracked.
func (e *Engine) Set(key string, value any) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Set(key, value)
}

// Update runs fn with the root state facade under the engine lock. Writes
// made through z or any facade reached from it render as Set does.
func (e *Engine) Update(fn func(z *observe.Facade)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.store.Root())
}

// ApplyVariables writes every variable into the state, one key at a time in
// key order. It is how remote set messages reach the store.
func (e *Engine) ApplyVariables(vars map[string]any) {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, k := range keys {
		e.store.Set(k, vars[k])
	}
}

// Internals exposes the dependency set and substitution records to
// collaborators that rewrite markup outside the engine.
type Internals struct {
	Dependencies []string
	Texts        map[*html.Node]string
	Attributes   map[*html.Node]map[string]string
}

// Internals returns a snapshot of the engine's bookkeeping.
func (e *Engine) Internals() Internals {
	e.mu.Lock()
	defer e.mu.Unlock()

	in := Internals{
		Dependencies: e.store.Dependencies(),
		Texts:        make(map[*html.Node]string, len(e.texts)),
		Attributes:   make(map[*html.Node]map[string]string, len(e.attrs)),
	}
	for n, v := range e.texts {
		in.Texts[n] = v
	}
	for n, m := range e.attrs {
		cp := make(map[string]string, len(m))
		for k, v := range m {
			cp[k] = v
		}
		in.Attributes[n] = cp
	}
	return in
}

// Forget drops the substitution records under n. Collaborators call it
// before replacing markup they have captured from the document.
func (e *Engine) Forget(n *html.Node) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.forget(n)
}

func (e *Engine) forget(n *html.Node) {
	dom.Walk(n, func(c *html.Node) bool {
		delete(e.texts, c)
		delete(e.attrs, c)
		return true
	})
}
