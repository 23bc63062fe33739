// Package preprocess rewrites selected parts of a document before the
// binding engine sees them. Each step maps the elements a selector matches
// to new markup; the first markup a step sees for an element is kept so a
// rerun starts from it again.
package preprocess

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/livefir/zealtime/internal/dom"
)

// Input describes one matched element.
type Input struct {
	Text  string   // trimmed text content
	Lines []string // Text split on newlines
	HTML  string   // inner markup
	Outer string   // outer markup
	Node  *html.Node
}

// Func returns the markup that replaces the element's inner markup, or the
// element itself for outer steps.
type Func func(in Input) string

type original struct {
	step int
	node *html.Node
}

// placement remembers what an outer step put in place of an element.
type placement struct {
	markup string // first-seen outer markup
	nodes  []*html.Node
}

type step struct {
	selector string
	fn       Func
	outer    bool
}

// Pipeline is an ordered list of steps.
type Pipeline struct {
	steps     []step
	originals map[original]string
	placed    map[int][]placement
}

// New returns an empty pipeline.
func New() *Pipeline {
	return &Pipeline{
		originals: make(map[original]string),
		placed:    make(map[int][]placement),
	}
}

// Add appends a step. With outer set, fn replaces the whole element.
func (p *Pipeline) Add(selector string, fn Func, outer bool) {
	p.steps = append(p.steps, step{selector: selector, fn: fn, outer: outer})
}

// Len returns the number of steps.
func (p *Pipeline) Len() int {
	return len(p.steps)
}

// Run applies every step in order.
func (p *Pipeline) Run(doc *dom.Document) error {
	for i, s := range p.steps {
		if err := p.run(doc, i, s); err != nil {
			return fmt.Errorf("preprocess %q: %w", s.selector, err)
		}
	}
	return nil
}

func (p *Pipeline) run(doc *dom.Document, index int, s step) error {
	if s.outer {
		return p.runOuter(doc, index, s)
	}
	nodes, err := doc.QueryAll(s.selector)
	if err != nil {
		return err
	}
	for _, n := range nodes {
		key := original{step: index, node: n}
		markup, ok := p.originals[key]
		if !ok {
			if markup, err = dom.InnerHTML(n); err != nil {
				return err
			}
			p.originals[key] = markup
		}
		if err := dom.SetInnerHTML(n, markup); err != nil {
			return err
		}
		in, err := inputOf(n)
		if err != nil {
			return err
		}
		if err := dom.SetInnerHTML(n, s.fn(in)); err != nil {
			return err
		}
	}
	return nil
}

// runOuter puts back the first-seen markup of every element the step
// replaced last time, then replaces the matches again. An element whose
// replacement was empty cannot be found again and stays removed.
func (p *Pipeline) runOuter(doc *dom.Document, index int, s step) error {
	restored := make(map[*html.Node]string)
	for _, pl := range p.placed[index] {
		if len(pl.nodes) == 0 || !doc.Contains(pl.nodes[0]) {
			continue
		}
		nodes, err := dom.SetOuterHTML(pl.nodes[0], pl.markup)
		if err != nil {
			return err
		}
		for _, n := range pl.nodes[1:] {
			dom.Remove(n)
		}
		for _, n := range nodes {
			restored[n] = pl.markup
		}
	}
	p.placed[index] = nil

	nodes, err := doc.QueryAll(s.selector)
	if err != nil {
		return err
	}
	for _, n := range nodes {
		if !doc.Contains(n) {
			continue // inside an element replaced above
		}
		in, err := inputOf(n)
		if err != nil {
			return err
		}
		markup, ok := restored[n]
		if !ok {
			markup = in.Outer
		}
		out, err := dom.SetOuterHTML(n, s.fn(in))
		if err != nil {
			return err
		}
		p.placed[index] = append(p.placed[index], placement{markup: markup, nodes: out})
	}
	return nil
}

func inputOf(n *html.Node) (Input, error) {
	inner, err := dom.InnerHTML(n)
	if err != nil {
		return Input{}, err
	}
	outer, err := dom.OuterHTML(n)
	if err != nil {
		return Input{}, err
	}
	text := strings.TrimSpace(dom.TextContent(n))
	return Input{
		Text:  text,
		Lines: strings.Split(text, "\n"),
		HTML:  inner,
		Outer: outer,
		Node:  n,
	}, nil
}
