package dom

import (
	"fmt"

	selcss "github.com/ericchiang/css"
	"golang.org/x/net/html"
)

// QueryAll returns every element under the document root matching the CSS
// selector, in document order and without duplicates.
func (d *Document) QueryAll(selector string) ([]*html.Node, error) {
	return QueryAll(d.root, selector)
}

// Query returns the first element matching selector, or nil.
func (d *Document) Query(selector string) (*html.Node, error) {
	nodes, err := QueryAll(d.root, selector)
	if err != nil || len(nodes) == 0 {
		return nil, err
	}
	return nodes[0], nil
}

// QueryAll returns the elements in the subtree rooted at root that match
// selector, in document order.
func QueryAll(root *html.Node, selector string) ([]*html.Node, error) {
	sel, err := selcss.Parse(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", selector, err)
	}
	matched := make(map[*html.Node]struct{})
	for _, n := range sel.Select(root) {
		matched[n] = struct{}{}
	}
	if len(matched) == 0 {
		return nil, nil
	}
	nodes := make([]*html.Node, 0, len(matched))
	Walk(root, func(n *html.Node) bool {
		if _, ok := matched[n]; ok {
			nodes = append(nodes, n)
		}
		return true
	})
	return nodes, nil
}
