package dom

import (
	"fmt"

	"github.com/aymerick/douceur/css"
	"github.com/aymerick/douceur/parser"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// StyleSheet is one <style> element and its parsed rules.
type StyleSheet struct {
	Node  *html.Node
	Sheet *css.Stylesheet
}

// StyleSheets parses every <style> element in document order. A sheet that
// fails to parse is reported as an error.
func (d *Document) StyleSheets() ([]StyleSheet, error) {
	var sheets []StyleSheet
	var firstErr error
	Walk(d.root, func(n *html.Node) bool {
		if n.Type != html.ElementNode || n.DataAtom != atom.Style {
			return true
		}
		sheet, err := parser.Parse(TextContent(n))
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to parse style sheet: %w", err)
			}
			return false
		}
		sheets = append(sheets, StyleSheet{Node: n, Sheet: sheet})
		return false
	})
	return sheets, firstErr
}

// HasRule reports whether any style sheet carries a rule for selector.
func (d *Document) HasRule(selector string) bool {
	sheets, _ := d.StyleSheets()
	for _, s := range sheets {
		for _, rule := range s.Sheet.Rules {
			for _, sel := range rule.Selectors {
				if sel == selector {
					return true
				}
			}
		}
	}
	return false
}

// AddStyle appends a <style> element holding text to the head. The text must
// parse as a style sheet.
func (d *Document) AddStyle(text string) (*html.Node, error) {
	if _, err := parser.Parse(text); err != nil {
		return nil, fmt.Errorf("invalid style sheet: %w", err)
	}
	style := &html.Node{Type: html.ElementNode, Data: "style", DataAtom: atom.Style}
	style.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	d.Head().AppendChild(style)
	return style, nil
}
