package styles

import (
	"strings"
	"unicode"
)

// span records that packed[out:out+n] is a verbatim copy of css[in:in+n].
type span struct{ out, in, n int }

// PackMediaQueries merges top-level @media blocks with identical queries
// and moves them to the end of the stylesheet, in the order each query was
// first seen. Everything else keeps its position. Nested at-rules are left
// untouched.
func PackMediaQueries(css string) string {
	packed, _ := packMediaQueries(css)
	return packed
}

// packMediaQueries is PackMediaQueries that also reports where every copied
// range of the output came from, in output order.
func packMediaQueries(css string) (string, []span) {
	type body struct {
		text string
		at   int
	}
	type group struct {
		query  string
		bodies []body
	}
	var (
		rest      strings.Builder
		restSpans []span
		groups    []*group
		byKey     = map[string]*group{}
	)

	i := 0
	for i < len(css) {
		start := i
		stmtEnd, isMedia, query, bodyAt := scanTopLevel(css, i)
		if isMedia {
			key := strings.ToLower(query)
			g, ok := byKey[key]
			if !ok {
				g = &group{query: query}
				byKey[key] = g
				groups = append(groups, g)
			}
			raw := css[bodyAt : stmtEnd-1]
			text, lead := trimSpace(raw)
			g.bodies = append(g.bodies, body{text: text, at: bodyAt + lead})
		} else {
			restSpans = append(restSpans, span{out: rest.Len(), in: start, n: stmtEnd - start})
			rest.WriteString(css[start:stmtEnd])
		}
		i = stmtEnd
	}

	if len(groups) == 0 {
		return css, []span{{out: 0, in: 0, n: len(css)}}
	}

	out, lead := trimSpace(rest.String())
	var spans []span
	for _, sp := range restSpans {
		if sp = clip(sp, lead, len(out)); sp.n > 0 {
			spans = append(spans, sp)
		}
	}

	var b strings.Builder
	b.WriteString(out)
	for _, g := range groups {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("@media " + g.query + " {\n")
		for _, bd := range g.bodies {
			if bd.text == "" {
				continue
			}
			b.WriteString("  ")
			spans = append(spans, span{out: b.Len(), in: bd.at, n: len(bd.text)})
			b.WriteString(bd.text + "\n")
		}
		b.WriteString("}")
	}
	b.WriteString("\n")
	return b.String(), spans
}

// trimSpace is strings.TrimSpace that also returns how many leading bytes
// were removed.
func trimSpace(s string) (string, int) {
	left := strings.TrimLeftFunc(s, unicode.IsSpace)
	return strings.TrimRightFunc(left, unicode.IsSpace), len(s) - len(left)
}

// clip shifts sp left by lead output bytes and cuts it to [0, size).
func clip(sp span, lead, size int) span {
	sp.out -= lead
	if sp.out < 0 {
		sp.in -= sp.out
		sp.n += sp.out
		sp.out = 0
	}
	if sp.out+sp.n > size {
		sp.n = size - sp.out
	}
	return sp
}

// scanTopLevel consumes one top-level chunk starting at i: whitespace, a
// comment, a statement ending in ';' or a block. For @media blocks it
// returns the normalized query and the offset of the inner body, which runs
// up to end-1.
func scanTopLevel(css string, i int) (end int, isMedia bool, query string, bodyAt int) {
	n := len(css)
	// Whitespace and comments travel as their own chunk.
	if isSpace(css[i]) {
		j := i
		for j < n && isSpace(css[j]) {
			j++
		}
		return j, false, "", 0
	}
	if strings.HasPrefix(css[i:], "/*") {
		return skipComment(css, i), false, "", 0
	}

	j := i
	for j < n {
		switch c := css[j]; {
		case c == '"' || c == '\'':
			j = skipString(css, j)
		case strings.HasPrefix(css[j:], "/*"):
			j = skipComment(css, j)
		case c == ';':
			return j + 1, false, "", 0
		case c == '{':
			blockEnd := matchBrace(css, j)
			prelude := strings.TrimSpace(css[i:j])
			if q, ok := mediaQuery(prelude); ok && css[blockEnd-1] == '}' {
				return blockEnd, true, q, j + 1
			}
			return blockEnd, false, "", 0
		case c == '}':
			// Stray closing brace; pass it through.
			return j + 1, false, "", 0
		default:
			j++
		}
	}
	return n, false, "", 0
}

func mediaQuery(prelude string) (string, bool) {
	if len(prelude) < 6 || !strings.EqualFold(prelude[:6], "@media") {
		return "", false
	}
	rest := prelude[6:]
	if rest != "" && !isSpace(rest[0]) && rest[0] != '(' {
		return "", false
	}
	return strings.Join(strings.Fields(rest), " "), true
}

// matchBrace returns the index just past the brace closing the one at open.
func matchBrace(css string, open int) int {
	depth := 0
	j := open
	for j < len(css) {
		switch c := css[j]; {
		case c == '"' || c == '\'':
			j = skipString(css, j)
			continue
		case strings.HasPrefix(css[j:], "/*"):
			j = skipComment(css, j)
			continue
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return j + 1
			}
		}
		j++
	}
	return len(css)
}

func skipString(css string, i int) int {
	quote := css[i]
	j := i + 1
	for j < len(css) {
		switch css[j] {
		case '\\':
			j += 2
			continue
		case quote:
			return j + 1
		}
		j++
	}
	return len(css)
}

func skipComment(css string, i int) int {
	if end := strings.Index(css[i+2:], "*/"); end >= 0 {
		return i + 2 + end + 2
	}
	return len(css)
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}
