// Package dom is the host document the binding engine works against: an
// x/net/html node tree plus the handful of primitives the engine needs
// (attribute access, cloning, attaching and detaching subtrees, selector
// queries and style sheets).
package dom

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Document wraps the root of a parsed node tree.
type Document struct {
	root *html.Node
}

// New wraps an existing tree. root is usually an html.DocumentNode.
func New(root *html.Node) *Document {
	return &Document{root: root}
}

// Parse reads a full HTML document.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	return New(root), nil
}

// ParseString is Parse over a string.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// Root returns the document node.
func (d *Document) Root() *html.Node {
	return d.root
}

// Head returns the <head> element, creating one when the tree has none.
func (d *Document) Head() *html.Node {
	if head := d.findElement(atom.Head); head != nil {
		return head
	}
	head := &html.Node{Type: html.ElementNode, Data: "head", DataAtom: atom.Head}
	parent := d.findElement(atom.Html)
	if parent == nil {
		parent = d.root
	}
	parent.InsertBefore(head, parent.FirstChild)
	return head
}

// Body returns the <body> element, or the root when there is none.
func (d *Document) Body() *html.Node {
	if body := d.findElement(atom.Body); body != nil {
		return body
	}
	return d.root
}

func (d *Document) findElement(a atom.Atom) *html.Node {
	var found *html.Node
	Walk(d.root, func(n *html.Node) bool {
		if found != nil {
			return false
		}
		if n.Type == html.ElementNode && n.DataAtom == a {
			found = n
			return false
		}
		return true
	})
	return found
}

// Contains reports whether n is attached to this document.
func (d *Document) Contains(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == d.root {
			return true
		}
	}
	return false
}

// Render writes the document as HTML.
func (d *Document) Render(w io.Writer) error {
	return html.Render(w, d.root)
}

// HTML returns the document as an HTML string.
func (d *Document) HTML() (string, error) {
	var buf bytes.Buffer
	if err := d.Render(&buf); err != nil {
		return "", fmt.Errorf("failed to render document: %w", err)
	}
	return buf.String(), nil
}

// Text returns the text content of the body with whitespace runs collapsed,
// skipping <script>, <style> and <head>.
func (d *Document) Text() string {
	return d.VisibleText(nil)
}

// VisibleText is Text that also skips every element for which hidden
// reports true, along with its subtree.
func (d *Document) VisibleText(hidden func(*html.Node) bool) string {
	var b strings.Builder
	Walk(d.Body(), func(n *html.Node) bool {
		switch {
		case hidden != nil && n.Type == html.ElementNode && hidden(n):
			return false
		case n.Type == html.ElementNode && (n.DataAtom == atom.Script || n.DataAtom == atom.Style || n.DataAtom == atom.Head):
			return false
		case n.Type == html.TextNode:
			b.WriteString(n.Data)
		case n.Type == html.ElementNode && isBlock(n.DataAtom):
			b.WriteString("\n")
		}
		return true
	})
	lines := strings.Split(b.String(), "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func isBlock(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Li, atom.Ul, atom.Ol, atom.Br, atom.Tr, atom.Table,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6, atom.Section, atom.Article,
		atom.Header, atom.Footer, atom.Main, atom.Nav, atom.Pre, atom.Blockquote:
		return true
	}
	return false
}

// Walk visits n and its descendants in document order. Returning false from
// fn skips the children of that node.
func Walk(n *html.Node, fn func(*html.Node) bool) {
	if !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		Walk(c, fn)
		c = next
	}
}

// Attr returns the value of attribute key.
func Attr(n *html.Node, key string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// HasAttr reports whether n carries attribute key.
func HasAttr(n *html.Node, key string) bool {
	_, ok := Attr(n, key)
	return ok
}

// SetAttr sets attribute key, appending it when absent.
func SetAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// RemoveAttr deletes attribute key if present.
func RemoveAttr(n *html.Node, key string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}

// Clone returns a detached deep copy of n.
func Clone(n *html.Node) *html.Node {
	c := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
	}
	if len(n.Attr) > 0 {
		c.Attr = make([]html.Attribute, len(n.Attr))
		copy(c.Attr, n.Attr)
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		c.AppendChild(Clone(child))
	}
	return c
}

// Remove detaches n from its parent. Detached nodes are left alone.
func Remove(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// InsertAfter attaches n as the next sibling of anchor.
func InsertAfter(anchor, n *html.Node) error {
	if anchor.Parent == nil {
		return fmt.Errorf("cannot insert after a detached node <%s>", anchor.Data)
	}
	anchor.Parent.InsertBefore(n, anchor.NextSibling)
	return nil
}

// AppendChild attaches n as the last child of parent.
func AppendChild(parent, n *html.Node) {
	parent.AppendChild(n)
}

// TextContent concatenates every descendant text node.
func TextContent(n *html.Node) string {
	var b strings.Builder
	Walk(n, func(c *html.Node) bool {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
		return true
	})
	return b.String()
}

// InnerHTML renders the children of n.
func InnerHTML(n *html.Node) (string, error) {
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}

// OuterHTML renders n itself.
func OuterHTML(n *html.Node) (string, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// SetInnerHTML replaces the children of n with the parsed markup.
func SetInnerHTML(n *html.Node, markup string) error {
	nodes, err := html.ParseFragment(strings.NewReader(markup), fragmentContext(n))
	if err != nil {
		return fmt.Errorf("failed to parse fragment: %w", err)
	}
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	for _, c := range nodes {
		n.AppendChild(c)
	}
	return nil
}

// SetOuterHTML replaces n with the parsed markup and returns the new nodes.
func SetOuterHTML(n *html.Node, markup string) ([]*html.Node, error) {
	parent := n.Parent
	if parent == nil {
		return nil, fmt.Errorf("cannot replace a detached node <%s>", n.Data)
	}
	nodes, err := html.ParseFragment(strings.NewReader(markup), fragmentContext(parent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse fragment: %w", err)
	}
	for _, c := range nodes {
		parent.InsertBefore(c, n)
	}
	parent.RemoveChild(n)
	return nodes, nil
}

func fragmentContext(n *html.Node) *html.Node {
	if n.Type == html.ElementNode {
		return n
	}
	return &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
}
