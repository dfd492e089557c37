package pagesource

import (
	"bytes"
)

// The page content stream is scanned with a minimal graphics-state machine:
// q/Q save and restore the CTM, cm concatenates it, path construction
// operators accumulate a bounding box, path-painting operators emit one
// DrawingPath, and Do records the CTM-transformed unit square as an XObject
// placement. Text-showing operators are skipped; only geometry survives.

type matrix [6]float64 // a b c d e f

var identity = matrix{1, 0, 0, 1, 0, 0}

func (m matrix) mul(n matrix) matrix {
	return matrix{
		m[0]*n[0] + m[1]*n[2],
		m[0]*n[1] + m[1]*n[3],
		m[2]*n[0] + m[3]*n[2],
		m[2]*n[1] + m[3]*n[3],
		m[4]*n[0] + m[5]*n[2] + n[4],
		m[4]*n[1] + m[5]*n[3] + n[5],
	}
}

func (m matrix) apply(x, y float64) (float64, float64) {
	return m[0]*x + m[2]*y + m[4], m[1]*x + m[3]*y + m[5]
}

type pageContent struct {
	drawings   []DrawingPath
	images     []Rect   // XObject placements in top-left page coordinates
	imageNames []string // Do operand name per placement, e.g. "Im1"
}

// scanContentStream extracts drawing paths and XObject placements from a
// decoded content stream. pageH flips the PDF bottom-left origin to top-left.
func scanContentStream(data []byte, pageH float64) pageContent {
	var out pageContent

	ctm := identity
	var ctmStack []matrix

	var nums []float64
	var lastName string

	// Path accumulator in user space.
	var px0, py0, px1, py1 float64
	havePath := false

	addPoint := func(x, y float64) {
		tx, ty := ctm.apply(x, y)
		if !havePath {
			px0, py0, px1, py1 = tx, ty, tx, ty
			havePath = true
			return
		}
		px0, py0 = min(px0, tx), min(py0, ty)
		px1, py1 = max(px1, tx), max(py1, ty)
	}

	emitPath := func(fill, stroke bool) {
		if havePath {
			out.drawings = append(out.drawings, DrawingPath{
				BBox:   Rect{X0: px0, Y0: pageH - py1, X1: px1, Y1: pageH - py0},
				Fill:   fill,
				Stroke: stroke,
			})
		}
		havePath = false
	}

	sc := &csScanner{data: data}
	for {
		tok, kind, ok := sc.next()
		if !ok {
			break
		}
		switch kind {
		case tokNumber:
			nums = append(nums, tok.(float64))
			continue
		case tokName:
			lastName = tok.(string)
			continue
		case tokOther:
			// Strings, hex strings, dict and array delimiters carry no
			// geometry; clear pending operands so they cannot leak into
			// the next operator.
			nums = nums[:0]
			continue
		}

		op := tok.(string)
		switch op {
		case "q":
			ctmStack = append(ctmStack, ctm)
		case "Q":
			if n := len(ctmStack); n > 0 {
				ctm = ctmStack[n-1]
				ctmStack = ctmStack[:n-1]
			}
		case "cm":
			if len(nums) >= 6 {
				v := nums[len(nums)-6:]
				ctm = matrix{v[0], v[1], v[2], v[3], v[4], v[5]}.mul(ctm)
			}
		case "m", "l":
			if len(nums) >= 2 {
				v := nums[len(nums)-2:]
				addPoint(v[0], v[1])
			}
		case "c":
			if len(nums) >= 6 {
				v := nums[len(nums)-6:]
				addPoint(v[0], v[1])
				addPoint(v[2], v[3])
				addPoint(v[4], v[5])
			}
		case "v", "y":
			if len(nums) >= 4 {
				v := nums[len(nums)-4:]
				addPoint(v[0], v[1])
				addPoint(v[2], v[3])
			}
		case "re":
			if len(nums) >= 4 {
				v := nums[len(nums)-4:]
				addPoint(v[0], v[1])
				addPoint(v[0]+v[2], v[1]+v[3])
			}
		case "S", "s":
			emitPath(false, true)
		case "f", "F", "f*":
			emitPath(true, false)
		case "B", "B*", "b", "b*":
			emitPath(true, true)
		case "n":
			havePath = false
		case "Do":
			x0, y0 := ctm.apply(0, 0)
			x1, y1 := ctm.apply(1, 1)
			xa, xb := min(x0, x1), max(x0, x1)
			ya, yb := min(y0, y1), max(y0, y1)
			out.images = append(out.images, Rect{X0: xa, Y0: pageH - yb, X1: xb, Y1: pageH - ya})
			out.imageNames = append(out.imageNames, lastName)
		case "BI":
			sc.skipInlineImage()
		}
		nums = nums[:0]
	}

	return out
}

type tokenKind int

const (
	tokNumber tokenKind = iota
	tokName
	tokOperator
	tokOther
)

type csScanner struct {
	data []byte
	pos  int
}

func isDelim(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func isSpace(c byte) bool {
	switch c {
	case 0, '\t', '\n', '\f', '\r', ' ':
		return true
	}
	return false
}

func (s *csScanner) next() (any, tokenKind, bool) {
	for s.pos < len(s.data) && isSpace(s.data[s.pos]) {
		s.pos++
	}
	if s.pos >= len(s.data) {
		return nil, 0, false
	}
	c := s.data[s.pos]
	switch {
	case c == '%':
		for s.pos < len(s.data) && s.data[s.pos] != '\n' {
			s.pos++
		}
		return s.next()
	case c == '(':
		s.skipString()
		return nil, tokOther, true
	case c == '<':
		if s.pos+1 < len(s.data) && s.data[s.pos+1] == '<' {
			s.pos += 2
		} else {
			for s.pos < len(s.data) && s.data[s.pos] != '>' {
				s.pos++
			}
			s.pos++
		}
		return nil, tokOther, true
	case c == '>':
		s.pos++
		if s.pos < len(s.data) && s.data[s.pos] == '>' {
			s.pos++
		}
		return nil, tokOther, true
	case c == '[' || c == ']' || c == '{' || c == '}':
		s.pos++
		return nil, tokOther, true
	case c == '/':
		s.pos++
		start := s.pos
		for s.pos < len(s.data) && !isSpace(s.data[s.pos]) && !isDelim(s.data[s.pos]) {
			s.pos++
		}
		return string(s.data[start:s.pos]), tokName, true
	case c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9'):
		start := s.pos
		s.pos++
		for s.pos < len(s.data) && !isSpace(s.data[s.pos]) && !isDelim(s.data[s.pos]) {
			s.pos++
		}
		if f, ok := parseNumber(s.data[start:s.pos]); ok {
			return f, tokNumber, true
		}
		return nil, tokOther, true
	default:
		start := s.pos
		for s.pos < len(s.data) && !isSpace(s.data[s.pos]) && !isDelim(s.data[s.pos]) {
			s.pos++
		}
		return string(s.data[start:s.pos]), tokOperator, true
	}
}

// skipString consumes a literal string, honoring nesting and escapes.
func (s *csScanner) skipString() {
	depth := 0
	for s.pos < len(s.data) {
		switch s.data[s.pos] {
		case '\\':
			s.pos++
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				s.pos++
				return
			}
		}
		s.pos++
	}
}

// skipInlineImage consumes everything up to the EI operator terminating an
// inline image's binary payload.
func (s *csScanner) skipInlineImage() {
	for s.pos+2 < len(s.data) {
		if isSpace(s.data[s.pos]) && s.data[s.pos+1] == 'E' && s.data[s.pos+2] == 'I' {
			s.pos += 3
			return
		}
		s.pos++
	}
	s.pos = len(s.data)
}

func parseNumber(b []byte) (float64, bool) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return 0, false
	}
	neg := false
	i := 0
	if b[0] == '+' || b[0] == '-' {
		neg = b[0] == '-'
		i++
	}
	var intPart, fracPart float64
	var fracDiv = 1.0
	seenDigit := false
	for ; i < len(b) && b[i] != '.'; i++ {
		if b[i] < '0' || b[i] > '9' {
			return 0, false
		}
		intPart = intPart*10 + float64(b[i]-'0')
		seenDigit = true
	}
	if i < len(b) && b[i] == '.' {
		for i++; i < len(b); i++ {
			if b[i] < '0' || b[i] > '9' {
				return 0, false
			}
			fracDiv *= 10
			fracPart = fracPart*10 + float64(b[i]-'0')
			seenDigit = true
		}
	}
	if !seenDigit {
		return 0, false
	}
	v := intPart + fracPart/fracDiv
	if neg {
		v = -v
	}
	return v, true
}
