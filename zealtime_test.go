package zealtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/net/html"

	"github.com/livefir/zealtime/internal/dom"
	"github.com/livefir/zealtime/internal/observe"
	"github.com/livefir/zealtime/internal/remote"
)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id%d", n)
	}
}

func newEngine(t *testing.T, body string, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{
		WithLogger(log.New(io.Discard, "", 0)),
		WithIDGenerator(sequentialIDs()),
	}, opts...)
	e := New(opts...)
	page := "<!DOCTYPE html><html><head></head><body>" + body + "</body></html>"
	if err := e.Load(strings.NewReader(page)); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	return e
}

func text(t *testing.T, e *Engine, selector string) string {
	t.Helper()
	n, err := e.Document().Query(selector)
	if err != nil || n == nil {
		t.Fatalf("Query(%q) = %v, %v", selector, n, err)
	}
	return dom.TextContent(n)
}

func attr(t *testing.T, e *Engine, selector, key string) string {
	t.Helper()
	n, err := e.Document().Query(selector)
	if err != nil || n == nil {
		t.Fatalf("Query(%q) = %v, %v", selector, n, err)
	}
	v, _ := dom.Attr(n, key)
	return v
}

func renders(e *Engine) int64 {
	return e.Metrics().GetMetrics().RendersRun
}

func TestMissingKeyLeavesReference(t *testing.T) {
	e := newEngine(t, `<p id="greet">Hello $(name)</p>`)

	if got := text(t, e, "#greet"); got != "Hello $(name)" {
		t.Errorf("text = %q, want %q", got, "Hello $(name)")
	}

	// The reference was tracked even though the key was missing.
	e.Set("name", "Ada")
	if got := text(t, e, "#greet"); got != "Hello Ada" {
		t.Errorf("text after Set = %q, want %q", got, "Hello Ada")
	}
}

func TestUntrackedWriteDoesNotRender(t *testing.T) {
	e := newEngine(t, `<p id="a">$(shown)</p>`)
	e.Set("shown", "x")
	before := renders(e)
	snapshot, _ := e.HTML()

	e.Set("hidden", "y")

	if got := renders(e); got != before {
		t.Errorf("renders = %d, want %d", got, before)
	}
	after, _ := e.HTML()
	if after != snapshot {
		t.Error("document changed after an untracked write")
	}
}

func TestTrackedWriteRendersOnce(t *testing.T) {
	e := newEngine(t, `<p id="a">$(count)</p>`)
	before := renders(e)

	e.Set("count", 7)

	if got := renders(e); got != before+1 {
		t.Errorf("renders = %d, want %d", got, before+1)
	}
	if got := text(t, e, "#a"); got != "7" {
		t.Errorf("text = %q, want 7", got)
	}
}

func TestRenderIsIdempotent(t *testing.T) {
	e := newEngine(t, `
		<h1 title="$(title)">$(title) $((count * 2))</h1>
		<ul><li z="row">$(label) / $(title)</li></ul>`)
	e.Set("title", "Board")
	e.Set("count", 2)
	if _, err := e.Create("row", map[string]any{"label": "first"}); err != nil {
		t.Fatal(err)
	}

	e.Render()
	once, _ := e.HTML()
	e.Render()
	twice, _ := e.HTML()
	if once != twice {
		t.Errorf("render not idempotent:\n%s\n%s", once, twice)
	}
}

func TestInstanceScoping(t *testing.T) {
	e := newEngine(t, `<div id="messages"><div z="message"><b>$(username)</b>: <span>$(content)</span></div></div>`)

	first, err := e.Create("message", map[string]any{"username": "Zealtime #1", "content": "Hello, world!"})
	if err != nil {
		t.Fatal(err)
	}
	second, err := e.Create("message", map[string]any{"username": "Zealtime #2", "content": "Bye"})
	if err != nil {
		t.Fatal(err)
	}

	id1, _ := dom.Attr(first, AttrInstance)
	id2, _ := dom.Attr(second, AttrInstance)
	if id1 == "" || id1 == id2 {
		t.Fatalf("ids = %q, %q, want distinct", id1, id2)
	}
	if got := text(t, e, "[zid="+id1+"] b"); got != "Zealtime #1" {
		t.Errorf("first username = %q", got)
	}
	if got := text(t, e, "[zid="+id2+"] b"); got != "Zealtime #2" {
		t.Errorf("second username = %q", got)
	}
	if got := text(t, e, "[zid="+id1+"] span"); got != "Hello, world!" {
		t.Errorf("first content = %q", got)
	}
	if v, _ := dom.Attr(first, AttrTemplateName); v != "message" {
		t.Errorf("z-template = %q, want message", v)
	}
	if dom.HasAttr(first, AttrTemplate) {
		t.Error("clone kept the template marker")
	}

	// The template itself is never substituted.
	if got := text(t, e, "[z=message] b"); got != "$(username)" {
		t.Errorf("template text = %q", got)
	}

	// Writing into one instance's scope re-renders only its own values.
	e.Update(func(z *observe.Facade) {
		z.Get(id2).(*observe.Facade).Set("username", "Renamed")
	})
	if got := text(t, e, "[zid="+id1+"] b"); got != "Zealtime #1" {
		t.Errorf("first username after update = %q", got)
	}
	if got := text(t, e, "[zid="+id2+"] b"); got != "Renamed" {
		t.Errorf("second username after update = %q", got)
	}
}

func TestInstanceSeesGlobalsAndOwnID(t *testing.T) {
	e := newEngine(t, `<p z="card" data-id="$(zid)">$(owner): $(title)</p>`)
	e.Set("owner", "global")
	e.Set("title", "global title")

	n, err := e.Create("card", map[string]any{"title": "own title"})
	if err != nil {
		t.Fatal(err)
	}
	if got := dom.TextContent(n); got != "global: own title" {
		t.Errorf("text = %q", got)
	}
	id, _ := dom.Attr(n, AttrInstance)
	if got, _ := dom.Attr(n, "data-id"); got != id {
		t.Errorf("data-id = %q, want %q", got, id)
	}
}

func TestNestedInstancesDoNotCollide(t *testing.T) {
	e := newEngine(t, `
		<section z="outer"><h2>$(name)</h2><div class="slot"></div></section>
		<p z="inner">$(name)</p>`)

	outer, err := e.Create("outer", map[string]any{"name": "outer"})
	if err != nil {
		t.Fatal(err)
	}
	outerID, _ := dom.Attr(outer, AttrInstance)
	slot, err := e.Document().Query("[zid=" + outerID + "] .slot")
	if err != nil || slot == nil {
		t.Fatalf("slot = %v, %v", slot, err)
	}
	inner, err := e.CreateIn("inner", slot, map[string]any{"name": "inner"})
	if err != nil {
		t.Fatal(err)
	}

	if got := text(t, e, "[zid="+outerID+"] h2"); got != "outer" {
		t.Errorf("outer heading = %q", got)
	}
	if got := dom.TextContent(inner); got != "inner" {
		t.Errorf("inner text = %q", got)
	}

	e.Render()
	if got := dom.TextContent(inner); got != "inner" {
		t.Errorf("inner text after re-render = %q", got)
	}
}

func TestInlineExpression(t *testing.T) {
	e := newEngine(t, `<p id="double">$((count * 2))</p>`)
	e.Set("count", 3)
	if got := text(t, e, "#double"); got != "6" {
		t.Fatalf("text = %q, want 6", got)
	}
	e.Set("count", 5)
	if got := text(t, e, "#double"); got != "10" {
		t.Errorf("text = %q, want 10", got)
	}
}

func TestExpressionErrorIsSubstituted(t *testing.T) {
	e := newEngine(t, `<p id="bad">$((missing + 1))</p><p id="ok">$((1 + 1))</p>`)
	if got := text(t, e, "#bad"); got != "ReferenceError: missing is not defined" {
		t.Errorf("bad = %q", got)
	}
	if got := text(t, e, "#ok"); got != "2" {
		t.Errorf("ok = %q", got)
	}
	if e.Metrics().GetMetrics().ExpressionErrors == 0 {
		t.Error("expression error not counted")
	}
}

func TestAttributeSubstitution(t *testing.T) {
	e := newEngine(t, `<a id="link" href="/users/$(user)" class="$((online ? 'on' : 'off'))">x</a>`)
	e.Set("user", "ada")
	e.Set("online", true)
	if got := attr(t, e, "#link", "href"); got != "/users/ada" {
		t.Errorf("href = %q", got)
	}
	if got := attr(t, e, "#link", "class"); got != "on" {
		t.Errorf("class = %q", got)
	}
	e.Set("online", false)
	if got := attr(t, e, "#link", "class"); got != "off" {
		t.Errorf("class after write = %q", got)
	}

	in := e.Internals()
	link, _ := e.Document().Query("#link")
	if in.Attributes[link]["href"] != "/users/$(user)" {
		t.Errorf("recorded href = %q", in.Attributes[link]["href"])
	}
}

func TestDependenciesAreRecorded(t *testing.T) {
	// c is never looked up: b is missing, so evaluation stops there.
	e := newEngine(t, `<p>$(a) $((b + c))</p>`)
	deps := strings.Join(e.Internals().Dependencies, ",")
	if deps != "a,b" {
		t.Errorf("dependencies = %s, want a,b", deps)
	}
}

func TestDelete(t *testing.T) {
	e := newEngine(t, `<ul><li z="row">$(label)</li></ul>`)
	n, err := e.Create("row", map[string]any{"label": "one"})
	if err != nil {
		t.Fatal(err)
	}
	id, _ := dom.Attr(n, AttrInstance)

	if err := e.Delete(id); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if e.Document().Contains(n) {
		t.Error("instance still attached")
	}
	if e.Get(id) != nil {
		t.Error("scope record not deleted")
	}
	for node := range e.Internals().Texts {
		if node.Parent == n {
			t.Error("substitution record kept for a deleted node")
		}
	}

	err = e.Delete(id)
	if !errors.Is(err, ErrInstanceNotFound) {
		t.Errorf("Delete(unknown) = %v, want ErrInstanceNotFound", err)
	}
}

func TestDeleteKeepsNestedScopes(t *testing.T) {
	e := newEngine(t, `<div z="box"><div class="in"></div></div><span z="leaf">$(v)</span>`)
	box, _ := e.Create("box", nil)
	boxID, _ := dom.Attr(box, AttrInstance)
	in, _ := e.Document().Query("[zid=" + boxID + "] .in")
	leaf, err := e.CreateIn("leaf", in, map[string]any{"v": 1})
	if err != nil {
		t.Fatal(err)
	}
	leafID, _ := dom.Attr(leaf, AttrInstance)

	if err := e.Delete(boxID); err != nil {
		t.Fatal(err)
	}
	if e.Get(leafID) == nil {
		t.Error("nested scope record was removed")
	}
}

func TestCreateVariants(t *testing.T) {
	e := newEngine(t, `<ol id="list"><li id="first">first</li></ol><li z="item">$(n)</li>`)

	after, err := e.CreateAfterSelector("item", "#first", map[string]any{"n": 1})
	if err != nil {
		t.Fatal(err)
	}
	first, _ := e.Document().Query("#first")
	if first.NextSibling != after {
		t.Error("CreateAfterSelector did not insert after the anchor")
	}

	in, err := e.CreateInSelector("item", "#list", map[string]any{"n": 2})
	if err != nil {
		t.Fatal(err)
	}
	list, _ := e.Document().Query("#list")
	if list.LastChild != in {
		t.Error("CreateInSelector did not append to the parent")
	}
	if got := dom.TextContent(in); got != "2" {
		t.Errorf("text = %q, want 2", got)
	}

	if _, err := e.CreateAfterSelector("item", "#nope", nil); !errors.Is(err, ErrAnchorNotFound) {
		t.Errorf("missing anchor error = %v", err)
	}
	if _, err := e.Create("nope", nil); !errors.Is(err, ErrTemplateNotFound) {
		t.Errorf("missing template error = %v", err)
	}
	if e.GetTemplate("nope") != nil {
		t.Error("GetTemplate(nope) != nil")
	}
}

func TestInstantiateDoesNotAttach(t *testing.T) {
	e := newEngine(t, `<p z="t">$(x)</p>`)
	before := renders(e)
	inst, err := e.Instantiate("t", map[string]any{"x": 1})
	if err != nil {
		t.Fatal(err)
	}
	if inst.Node.Parent != nil {
		t.Error("clone is attached")
	}
	if inst.Template != e.GetTemplate("t") {
		t.Error("Template is not the source template")
	}
	if renders(e) != before {
		t.Error("Instantiate rendered")
	}
	if e.Get(inst.ID) == nil {
		t.Error("scope record not stored")
	}
}

func TestFrozenWriteIsSilent(t *testing.T) {
	e := newEngine(t, `<p id="v">$(value)</p>`)
	e.Set("box", map[string]any{"value": 1})
	before := renders(e)

	e.Update(func(z *observe.Facade) {
		box := z.Get("box").(*observe.Facade)
		box.Freeze()
		if !box.Set("value", 2) {
			t.Error("Set on a frozen object should still report success")
		}
	})

	if renders(e) != before {
		t.Error("frozen write rendered")
	}
	e.Update(func(z *observe.Facade) {
		if got := z.Get("box").(*observe.Facade).Get("value"); got != 1 {
			t.Errorf("value = %v, want 1", got)
		}
	})
}

func TestVisibilityStyleInjectedOnce(t *testing.T) {
	e := newEngine(t, `<p z="t">x</p>`)
	doc := e.Document()
	if err := e.Attach(doc); err != nil {
		t.Fatal(err)
	}
	styles, err := doc.QueryAll("style")
	if err != nil {
		t.Fatal(err)
	}
	if len(styles) != 1 {
		t.Fatalf("style elements = %d, want 1", len(styles))
	}
	if got := dom.TextContent(styles[0]); got != VisibilityStyle {
		t.Errorf("style = %q", got)
	}
}

func TestVisibilityStyleAuthoredByPage(t *testing.T) {
	e := newEngine(t, `<style>[z]:not([z-display]) { display: none; }</style><p z="t">x</p>`)
	styles, err := e.Document().QueryAll("style")
	if err != nil {
		t.Fatal(err)
	}
	if len(styles) != 1 {
		t.Errorf("style elements = %d, want 1", len(styles))
	}
}

func TestRenderBeforeAttachIsNoop(t *testing.T) {
	e := New(WithLogger(log.New(io.Discard, "", 0)))
	e.Render()
	e.Set("x", 1)
	if renders(e) != 0 {
		t.Error("rendered without a document")
	}
	if _, err := e.Create("t", nil); !errors.Is(err, ErrNoDocument) {
		t.Errorf("Create() error = %v, want ErrNoDocument", err)
	}
	if _, err := e.HTML(); !errors.Is(err, ErrNoDocument) {
		t.Errorf("HTML() error = %v, want ErrNoDocument", err)
	}
}

func TestDefaultIDs(t *testing.T) {
	a, b := NewID(), NewID()
	if len(a) != 26 || a == b {
		t.Errorf("ids = %q, %q", a, b)
	}
	if strings.ToLower(a) != a {
		t.Errorf("id %q is not lower case", a)
	}
}

func TestOnRender(t *testing.T) {
	count := 0
	e := newEngine(t, `<p>$(x)</p>`, WithOnRender(func() { count++ }))
	e.Set("x", 1)
	if count != 2 {
		t.Errorf("OnRender calls = %d, want 2", count)
	}
}

type chanConn struct {
	msgs   chan []byte
	closed chan struct{}
	once   sync.Once
}

func (c *chanConn) ReadMessage() ([]byte, error) {
	select {
	case m := <-c.msgs:
		return m, nil
	case <-c.closed:
		return nil, io.EOF
	}
}

func (c *chanConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

type chanDialer struct {
	conn *chanConn
}

func (d chanDialer) Dial(ctx context.Context, url string) (remote.Conn, error) {
	return d.conn, nil
}

func TestRemoteSetRendersTrackedKey(t *testing.T) {
	conn := &chanConn{msgs: make(chan []byte), closed: make(chan struct{})}
	rendered := make(chan struct{}, 8)
	e := newEngine(t, `<p id="status">$(statusText)</p>`,
		WithDialer(chanDialer{conn: conn}),
		WithOnRender(func() { rendered <- struct{}{} }))
	<-rendered

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client := e.Connect(ctx, "ws://test/")

	conn.msgs <- []byte(`{"z":"unknown"}`)
	conn.msgs <- []byte(`{"z":"set","variables":{"statusText":"Online"}}`)

	select {
	case <-rendered:
	case <-time.After(5 * time.Second):
		t.Fatal("remote set did not render")
	}
	if got := text(t, e, "#status"); got != "Online" {
		t.Errorf("status = %q, want Online", got)
	}
	if client.State() != remote.Open {
		t.Errorf("state = %v, want open", client.State())
	}

	cancel()
	<-client.Done()
}

func TestScan(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{in: "plain", want: nil},
		{in: "Hello $(name)!", want: []string{"key:name"}},
		{in: "$(a)$(b)", want: []string{"key:a", "key:b"}},
		{in: "$((count * 2))", want: []string{"expr:count * 2"}},
		{in: "$(((a + 1) * (b)))", want: []string{"expr:(a + 1) * (b)"}},
		{in: "$((s === ')' ? 1 : 2))", want: []string{"expr:s === ')' ? 1 : 2"}},
		{in: "$((a) tail", want: []string{"key:(a"}},
		{in: "$() $(x)", want: []string{"key:x"}},
		{in: "$(open", want: nil},
		{in: "cost $5 and $(price)", want: []string{"key:price"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var got []string
			for _, m := range scan(tt.in) {
				kind := "key"
				if m.inline {
					kind = "expr"
				}
				got = append(got, kind+":"+m.body)
			}
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("scan(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestTemplateTextNotRenderedGlobally(t *testing.T) {
	e := newEngine(t, `<div z="t"><i>$(who)</i></div>`)
	e.Set("who", "global")
	tmpl := e.GetTemplate("t")
	var italic *html.Node
	dom.Walk(tmpl, func(n *html.Node) bool {
		if n.Data == "i" {
			italic = n
		}
		return true
	})
	if got := dom.TextContent(italic); got != "$(who)" {
		t.Errorf("template text = %q, want $(who)", got)
	}
}

func TestTextSkipsHiddenTemplates(t *testing.T) {
	e := newEngine(t, `<h1>$(title)</h1><p z="row">row $(n)</p><p z="shown" z-display>visible</p>`)
	e.Set("title", "Hello")
	if _, err := e.Create("row", map[string]any{"n": 1}); err != nil {
		t.Fatal(err)
	}

	got, err := e.Text()
	if err != nil {
		t.Fatal(err)
	}
	if want := "Hello\nvisible\nrow 1"; got != want {
		t.Errorf("Text() = %q, want %q", got, want)
	}

	if _, err := New().Text(); !errors.Is(err, ErrNoDocument) {
		t.Errorf("Text() without document error = %v, want ErrNoDocument", err)
	}
}
