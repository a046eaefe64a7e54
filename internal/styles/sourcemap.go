package styles

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/url"
	"path/filepath"
	"sort"
	"strings"

	ferrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
)

// sourceMap is the part of a version 3 source map the pipeline reads and
// writes.
type sourceMap struct {
	Version        int       `json:"version"`
	SourceRoot     string    `json:"sourceRoot,omitempty"`
	Sources        []string  `json:"sources"`
	SourcesContent []*string `json:"sourcesContent,omitempty"`
	Names          []string  `json:"names"`
	Mappings       string    `json:"mappings"`
}

// segment is one decoded mapping with absolute values.
type segment struct {
	line    int // generated position
	col     int
	src     int
	srcLine int
	srcCol  int
	name    int
	hasSrc  bool
	hasName bool
}

var errMappings = errors.New("invalid source map mappings")

const vlqDigits = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

func decodeVLQ(s string, i int) (int, int, error) {
	value, shift := 0, 0
	for {
		if i >= len(s) {
			return 0, i, errMappings
		}
		d := strings.IndexByte(vlqDigits, s[i])
		if d < 0 {
			return 0, i, errMappings
		}
		i++
		value += (d & 31) << shift
		if d&32 == 0 {
			break
		}
		shift += 5
	}
	if value&1 == 1 {
		return -(value >> 1), i, nil
	}
	return value >> 1, i, nil
}

func appendVLQ(b []byte, v int) []byte {
	u := v << 1
	if v < 0 {
		u = (-v)<<1 | 1
	}
	for {
		d := u & 31
		u >>= 5
		if u > 0 {
			d |= 32
		}
		b = append(b, vlqDigits[d])
		if u == 0 {
			return b
		}
	}
}

func decodeMappings(m string) ([]segment, error) {
	var segs []segment
	var line, col, src, sLine, sCol, nm int
	for i := 0; i < len(m); {
		switch m[i] {
		case ';':
			line++
			col = 0
			i++
			continue
		case ',':
			i++
			continue
		}
		var fields [5]int
		n := 0
		for i < len(m) && m[i] != ',' && m[i] != ';' {
			if n == len(fields) {
				return nil, errMappings
			}
			v, next, err := decodeVLQ(m, i)
			if err != nil {
				return nil, err
			}
			fields[n] = v
			n++
			i = next
		}
		if n != 1 && n != 4 && n != 5 {
			return nil, errMappings
		}
		col += fields[0]
		seg := segment{line: line, col: col}
		if n >= 4 {
			src += fields[1]
			sLine += fields[2]
			sCol += fields[3]
			seg.hasSrc, seg.src, seg.srcLine, seg.srcCol = true, src, sLine, sCol
		}
		if n == 5 {
			nm += fields[4]
			seg.hasName, seg.name = true, nm
		}
		segs = append(segs, seg)
	}
	return segs, nil
}

// encodeMappings encodes segments sorted by generated position.
func encodeMappings(segs []segment) string {
	var b []byte
	var line, col, src, sLine, sCol, nm int
	onLine := false
	for _, s := range segs {
		for line < s.line {
			b = append(b, ';')
			line++
			col = 0
			onLine = false
		}
		if onLine {
			b = append(b, ',')
		}
		onLine = true
		b = appendVLQ(b, s.col-col)
		col = s.col
		if !s.hasSrc {
			continue
		}
		b = appendVLQ(b, s.src-src)
		b = appendVLQ(b, s.srcLine-sLine)
		b = appendVLQ(b, s.srcCol-sCol)
		src, sLine, sCol = s.src, s.srcLine, s.srcCol
		if s.hasName {
			b = appendVLQ(b, s.name-nm)
			nm = s.name
		}
	}
	return string(b)
}

// lineIndex converts between byte offsets and line/column positions.
// Columns are byte counts; compiled CSS is ASCII outside strings and
// comments.
type lineIndex []int

func newLineIndex(s string) lineIndex {
	idx := lineIndex{0}
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			idx = append(idx, i+1)
		}
	}
	return idx
}

func (l lineIndex) offset(line, col int) (int, bool) {
	if line < 0 || line >= len(l) {
		return 0, false
	}
	return l[line] + col, true
}

func (l lineIndex) position(off int) (int, int) {
	line := sort.Search(len(l), func(i int) bool { return l[i] > off }) - 1
	return line, off - l[line]
}

// remapMappings moves the generated side of mappings from css to packed
// along spans. A span that starts between two mappings inherits the one
// before it, so moved blocks stay attributed to their source.
func remapMappings(mappings, css, packed string, spans []span) (string, error) {
	segs, err := decodeMappings(mappings)
	if err != nil {
		return "", err
	}
	in := newLineIndex(css)
	offs := make([]int, 0, len(segs))
	kept := segs[:0]
	for _, s := range segs {
		if off, ok := in.offset(s.line, s.col); ok {
			offs = append(offs, off)
			kept = append(kept, s)
		}
	}
	segs = kept

	out := newLineIndex(packed)
	var moved []segment
	emit := func(s segment, off int) {
		s.line, s.col = out.position(off)
		moved = append(moved, s)
	}
	for _, sp := range spans {
		k := sort.SearchInts(offs, sp.in)
		if (k == len(offs) || offs[k] > sp.in) && k > 0 && segs[k-1].hasSrc {
			emit(segs[k-1], sp.out)
		}
		for ; k < len(offs) && offs[k] < sp.in+sp.n; k++ {
			emit(segs[k], sp.out+offs[k]-sp.in)
		}
	}
	sort.SliceStable(moved, func(i, j int) bool {
		if moved[i].line != moved[j].line {
			return moved[i].line < moved[j].line
		}
		return moved[i].col < moved[j].col
	})
	return encodeMappings(moved), nil
}

// chainSourceMap rewrites the compiler's map for css so it describes packed
// instead. The result is the JSON map and its sources.
func chainSourceMap(raw, css, packed string, spans []span) ([]byte, []string, error) {
	var m sourceMap
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, nil, ferrors.WrapError(err, ferrors.CategoryBuild, "parse compiler source map").Build()
	}
	mappings, err := remapMappings(m.Mappings, css, packed, spans)
	if err != nil {
		return nil, nil, ferrors.WrapError(err, ferrors.CategoryBuild, "remap compiler source map").Build()
	}
	m.Mappings = mappings
	if m.Names == nil {
		m.Names = []string{}
	}
	data, err := marshalMap(m)
	if err != nil {
		return nil, nil, err
	}
	return data, m.Sources, nil
}

// relativeSources makes file URLs in sources relative to dir, the directory
// the map is written to. Other entries are kept.
func relativeSources(sources []string, dir string) []string {
	out := make([]string, len(sources))
	for i, src := range sources {
		out[i] = src
		u, err := url.Parse(src)
		if err != nil || u.Scheme != "file" {
			continue
		}
		rel, err := filepath.Rel(dir, filepath.FromSlash(u.Path))
		if err != nil {
			continue
		}
		out[i] = filepath.ToSlash(rel)
	}
	return out
}

// withSources replaces the sources of a finished map.
func withSources(data []byte, sources []string) ([]byte, error) {
	var m sourceMap
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryBuild, "parse source map").Build()
	}
	if len(m.Sources) != len(sources) {
		return data, nil
	}
	m.Sources = sources
	if m.Names == nil {
		m.Names = []string{}
	}
	return marshalMap(m)
}

func marshalMap(m sourceMap) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(m); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryInternal, "encode source map").Build()
	}
	return buf.Bytes(), nil
}
