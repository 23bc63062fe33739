package preprocess

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livefir/zealtime/internal/dom"
)

func parse(t *testing.T, body string) *dom.Document {
	t.Helper()
	doc, err := dom.ParseString("<html><head></head><body>" + body + "</body></html>")
	require.NoError(t, err)
	return doc
}

func inner(t *testing.T, doc *dom.Document, selector string) string {
	t.Helper()
	n, err := doc.Query(selector)
	require.NoError(t, err)
	require.NotNil(t, n, selector)
	s, err := dom.InnerHTML(n)
	require.NoError(t, err)
	return s
}

func TestInnerStepUsesLines(t *testing.T) {
	doc := parse(t, "<div class=\"list\">\n  one\ntwo\n</div>")

	p := New()
	p.Add(".list", func(in Input) string {
		var b strings.Builder
		for _, line := range in.Lines {
			b.WriteString("<li>" + strings.TrimSpace(line) + "</li>")
		}
		return b.String()
	}, false)
	require.NoError(t, p.Run(doc))

	assert.Equal(t, "<li>one</li><li>two</li>", inner(t, doc, ".list"))
}

func TestOuterStepReplacesElement(t *testing.T) {
	doc := parse(t, `<p class="text">hi</p>`)

	p := New()
	p.Add(".text", func(in Input) string {
		return `<div class="frame">` + in.Outer + `</div>`
	}, true)
	require.NoError(t, p.Run(doc))

	assert.Equal(t, `<p class="text">hi</p>`, inner(t, doc, ".frame"))
}

func TestStepsRunInOrder(t *testing.T) {
	doc := parse(t, `<p class="text red">hi</p><p class="text">plain</p>`)

	p := New()
	p.Add(".text", func(in Input) string { return strings.ToUpper(in.Text) }, false)
	p.Add(".text.red", func(in Input) string { return `<span style="color: red">` + in.HTML + `</span>` }, false)
	require.NoError(t, p.Run(doc))
	assert.Equal(t, 2, p.Len())

	assert.Equal(t, `<span style="color: red">HI</span>`, inner(t, doc, ".red"))
	nodes, err := doc.QueryAll(".text")
	require.NoError(t, err)
	assert.Equal(t, "PLAIN", dom.TextContent(nodes[1]))
}

func TestRerunStartsFromOriginal(t *testing.T) {
	doc := parse(t, `<p class="count">a</p>`)

	calls := 0
	p := New()
	p.Add(".count", func(in Input) string {
		calls++
		return in.Text + "!"
	}, false)
	require.NoError(t, p.Run(doc))
	require.NoError(t, p.Run(doc))

	assert.Equal(t, 2, calls)
	assert.Equal(t, "a!", inner(t, doc, ".count"))
}

func TestOuterRerunStartsFromOriginal(t *testing.T) {
	doc := parse(t, `<p class="text">hi</p><p class="text">there</p>`)

	p := New()
	p.Add(".text", func(in Input) string {
		return `<div class="frame">` + in.Outer + `</div>`
	}, true)
	for i := 0; i < 3; i++ {
		require.NoError(t, p.Run(doc))
	}

	frames, err := doc.QueryAll(".frame")
	require.NoError(t, err)
	require.Len(t, frames, 2)
	got, err := dom.InnerHTML(frames[0])
	require.NoError(t, err)
	assert.Equal(t, `<p class="text">hi</p>`, got)
	got, err = dom.InnerHTML(frames[1])
	require.NoError(t, err)
	assert.Equal(t, `<p class="text">there</p>`, got)
}

func TestInvalidSelector(t *testing.T) {
	doc := parse(t, `<p>x</p>`)
	p := New()
	p.Add("p[[", func(Input) string { return "" }, false)
	assert.Error(t, p.Run(doc))
}
