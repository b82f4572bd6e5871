package core

import (
	"fmt"
	"strings"
)

// Matcher recognizes a publish path against a compiled pattern table and
// returns the index registered with the first matching pattern.
// Recognize may record captures on p.
type Matcher interface {
	Recognize(p *Path) (int, bool)
}

// MatcherBuilder accumulates patterns in registration order and compiles
// them into a Matcher. App uses NewRouteTable unless configured otherwise.
type MatcherBuilder interface {
	Add(pattern string, index int) error
	Finish() (Matcher, error)
}

// Topic levels and wildcards understood by RouteTable.
const (
	Separator      = "/"
	WildcardSingle = "+"
	WildcardAny    = "*"
	WildcardMulti  = "#"
)

type segmentKind uint8

const (
	segLiteral segmentKind = iota
	segSingle
	segCapture
	segMulti
)

type segment struct {
	kind segmentKind
	text string
}

type route struct {
	pattern string
	index   int
	segs    []segment
}

// RouteTable is the default Matcher. Patterns are split on "/" and each level
// is one of:
//
//	literal   matches the same level exactly
//	+ or *    matches exactly one level
//	{name}    matches exactly one level and captures it as name
//	#         matches zero or more trailing levels (last level only)
//
// Examples:
//
//	"sensors/temp"       matches "sensors/temp"
//	"sensors/+"          matches "sensors/temp", not "sensors/a/temp"
//	"devices/{id}/state" matches "devices/42/state" with id=42
//	"logs/#"             matches "logs", "logs/app" and "logs/app/error"
//
// When several patterns match, the one registered first wins. A RouteTable
// is immutable once built and safe for concurrent use.
type RouteTable struct {
	routes []route
}

// RouteTableBuilder compiles patterns into a RouteTable.
type RouteTableBuilder struct {
	routes []route
}

// NewRouteTable returns an empty RouteTableBuilder.
func NewRouteTable() *RouteTableBuilder {
	return &RouteTableBuilder{}
}

// Add compiles pattern and appends it to the table.
func (b *RouteTableBuilder) Add(pattern string, index int) error {
	segs, err := compilePattern(pattern)
	if err != nil {
		return err
	}
	b.routes = append(b.routes, route{pattern: pattern, index: index, segs: segs})
	return nil
}

// Finish returns the compiled table. The builder must not be reused.
func (b *RouteTableBuilder) Finish() (Matcher, error) {
	return &RouteTable{routes: b.routes}, nil
}

// Len returns the number of patterns in the table.
func (t *RouteTable) Len() int { return len(t.routes) }

// Recognize returns the index of the first pattern matching p's topic.
// Captures of the winning pattern replace any captures already on p.
func (t *RouteTable) Recognize(p *Path) (int, bool) {
	p.Reset()
	levels := strings.Split(p.Topic(), Separator)
	for i := range t.routes {
		if t.routes[i].match(levels, p) {
			return t.routes[i].index, true
		}
	}
	return 0, false
}

func (r *route) match(levels []string, p *Path) bool {
	mark := len(p.params)
	li := 0
	for _, seg := range r.segs {
		if seg.kind == segMulti {
			return true
		}
		if li >= len(levels) {
			p.params = p.params[:mark]
			return false
		}
		switch seg.kind {
		case segLiteral:
			if levels[li] != seg.text {
				p.params = p.params[:mark]
				return false
			}
		case segCapture:
			p.Add(seg.text, levels[li])
		}
		li++
	}
	if li != len(levels) {
		p.params = p.params[:mark]
		return false
	}
	return true
}

func compilePattern(pattern string) ([]segment, error) {
	if pattern == "" {
		return nil, fmt.Errorf("%w: empty pattern", ErrInvalidPattern)
	}
	levels := strings.Split(pattern, Separator)
	segs := make([]segment, 0, len(levels))
	for i, lvl := range levels {
		switch {
		case lvl == WildcardMulti:
			if i != len(levels)-1 {
				return nil, fmt.Errorf("%w: %q: %s must be the last level", ErrInvalidPattern, pattern, WildcardMulti)
			}
			segs = append(segs, segment{kind: segMulti})
		case lvl == WildcardSingle || lvl == WildcardAny:
			segs = append(segs, segment{kind: segSingle})
		case strings.HasPrefix(lvl, "{") && strings.HasSuffix(lvl, "}"):
			name := lvl[1 : len(lvl)-1]
			if name == "" {
				return nil, fmt.Errorf("%w: %q: empty capture name", ErrInvalidPattern, pattern)
			}
			segs = append(segs, segment{kind: segCapture, text: name})
		case strings.ContainsAny(lvl, WildcardSingle+WildcardMulti):
			return nil, fmt.Errorf("%w: %q: wildcard must occupy a whole level", ErrInvalidPattern, pattern)
		default:
			segs = append(segs, segment{kind: segLiteral, text: lvl})
		}
	}
	return segs, nil
}
