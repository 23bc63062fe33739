package zealtime

import (
	"strings"

	"github.com/livefir/zealtime/internal/expr"
)

// match is one substitution found in text: $(key) or $((expression)).
type match struct {
	start, end int    // text[start:end] is the whole reference
	body       string // the key or the expression source
	inline     bool   // $((expression))
}

// scan finds every substitution in s from left to right.
//
// $((...)) takes the shortest balanced expression followed by "))"; quoted
// strings may contain parentheses. When no such close exists the text falls
// back to the key form, which is "$(" followed by one or more characters
// other than ")" and a closing ")".
func scan(s string) []match {
	var matches []match
	for i := 0; i < len(s); {
		j := strings.Index(s[i:], "$(")
		if j < 0 {
			break
		}
		start := i + j
		body := start + 2

		if body < len(s) && s[body] == '(' {
			if end, ok := closeExpression(s, body+1); ok {
				matches = append(matches, match{start: start, end: end + 2, body: s[body+1 : end], inline: true})
				i = end + 2
				continue
			}
		}

		k := strings.IndexByte(s[body:], ')')
		if k < 0 {
			break
		}
		if k == 0 {
			i = body
			continue
		}
		matches = append(matches, match{start: start, end: body + k + 1, body: s[body : body+k]})
		i = body + k + 1
	}
	return matches
}

// closeExpression returns the index of the first ")" of the "))" that ends
// an inline expression starting at from.
func closeExpression(s string, from int) (int, bool) {
	depth := 0
	var quote byte
	for i := from; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			switch c {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"', '`':
			quote = c
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
				continue
			}
			if i+1 < len(s) && s[i+1] == ')' {
				return i, true
			}
			return 0, false
		case '\n':
			return 0, false
		}
	}
	return 0, false
}

// substitute replaces each match in text with its value under sc.
func (e *Engine) substitute(text string, matches []match, sc *scope) string {
	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(text[last:m.start])
		if m.inline {
			b.WriteString(e.evaluate(m.body, sc))
		} else {
			b.WriteString(e.reference(text[m.start:m.end], m.body, sc))
		}
		last = m.end
	}
	b.WriteString(text[last:])
	return b.String()
}

// reference resolves $(key). The key becomes a dependency whether or not it
// exists yet, so the first write to a missing key renders it.
func (e *Engine) reference(raw, key string, sc *scope) string {
	e.store.Track(key)
	v, ok := sc.Lookup(key)
	if !ok {
		return raw
	}
	return expr.ToString(v)
}

// evaluate runs an inline expression. Failures are rendered as their
// message rather than aborting the pass.
func (e *Engine) evaluate(src string, sc *scope) string {
	c, ok := e.programs[src]
	if !ok {
		c.program, c.err = expr.Parse(src)
		e.programs[src] = c
	}
	if c.err != nil {
		e.config.Metrics.IncrementExpressionError()
		return c.err.Error()
	}
	v, err := c.program.Eval(&trackingScope{scope: sc, track: e.store.Track})
	if err != nil {
		e.config.Metrics.IncrementExpressionError()
		return err.Error()
	}
	return expr.ToString(v)
}

// trackingScope registers every identifier an expression looks up.
type trackingScope struct {
	scope *scope
	track func(string)
}

func (t *trackingScope) Lookup(name string) (any, bool) {
	t.track(name)
	return t.scope.Lookup(name)
}
