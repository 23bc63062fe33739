package main

import (
	"fmt"
	"html"
	"os"
	"strings"

	"github.com/livefir/zealtime"
	"github.com/livefir/zealtime/internal/config"
	"github.com/livefir/zealtime/internal/dom"
	"github.com/livefir/zealtime/internal/preprocess"
)

// listPipeline turns the text lines of every element matching a selector
// into the items of a <ul> that replaces the element.
func listPipeline(selectors []string) *preprocess.Pipeline {
	p := preprocess.New()
	for _, sel := range selectors {
		p.Add(sel, func(in preprocess.Input) string {
			var b strings.Builder
			for _, line := range in.Lines {
				if line = strings.TrimSpace(line); line != "" {
					b.WriteString("<li>" + html.EscapeString(line) + "</li>")
				}
			}
			return b.String()
		}, false)
		p.Add(sel, func(in preprocess.Input) string {
			return "<ul>" + in.HTML + "</ul>"
		}, true)
	}
	return p
}

// loadDocument parses path and runs the list preprocessors over it.
func loadDocument(path string, lists []string) (*dom.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open document: %w", err)
	}
	defer f.Close()

	doc, err := dom.Parse(f)
	if err != nil {
		return nil, err
	}
	if err := listPipeline(lists).Run(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// openEngine builds an engine, applies the configured variables and attaches
// the document at path.
func openEngine(path string, flags *documentFlags, cfg *config.Config, opts ...zealtime.Option) (*zealtime.Engine, error) {
	vars, err := flags.variables(cfg)
	if err != nil {
		return nil, err
	}
	doc, err := loadDocument(path, flags.lists)
	if err != nil {
		return nil, err
	}

	engine := zealtime.New(opts...)
	engine.ApplyVariables(vars)
	if err := engine.Attach(doc); err != nil {
		return nil, err
	}
	return engine, nil
}
