// Package gqlpath addresses fields, arguments, directives and fragments inside
// a GraphQL operation or schema.
//
// A Path is an immutable sequence of segments. Paths are comparable and can be
// used directly as map keys; every derivation (Parent, Field, Argument, ...)
// returns a new value. The text form is
//
//	gqlo:/shows/t:title/[Movie]/...Details/?first
//	gqlo:/shows/@include/?if
//
// Grammar: zero or more selection segments, optionally followed by a single
// argument, or by a directive with an optional directive argument.
package gqlpath

import (
	"errors"
	"fmt"
	"strings"
)

const scheme = "gqlo:"

// ErrInvalidPath is returned for paths violating the segment grammar.
var ErrInvalidPath = errors.New("gqlpath: invalid path")

// Path is an immutable operation path. The zero value is the root path.
type Path struct {
	key string
}

// Root returns the empty path.
func Root() Path { return Path{} }

// Of builds a path from segments.
func Of(segs ...Segment) (Path, error) {
	var p Path
	for _, s := range segs {
		next, err := p.Append(s)
		if err != nil {
			return Path{}, err
		}
		p = next
	}
	return p, nil
}

// MustOf is like Of but panics on an invalid path.
func MustOf(segs ...Segment) Path {
	p, err := Of(segs...)
	if err != nil {
		panic(err)
	}
	return p
}

// Parse reads the text form produced by String.
func Parse(s string) (Path, error) {
	rest, ok := strings.CutPrefix(s, scheme)
	if !ok {
		return Path{}, fmt.Errorf("%w: missing %q scheme in %q", ErrInvalidPath, scheme, s)
	}
	if rest == "/" || rest == "" {
		return Path{}, nil
	}
	if !strings.HasPrefix(rest, "/") {
		return Path{}, fmt.Errorf("%w: %q", ErrInvalidPath, s)
	}
	var p Path
	for _, text := range strings.Split(rest[1:], "/") {
		last, _ := p.Last()
		seg, err := parseSegment(text, last.Kind == KindDirective)
		if err != nil {
			return Path{}, err
		}
		if p, err = p.Append(seg); err != nil {
			return Path{}, err
		}
	}
	return p, nil
}

// Append derives the child path p/seg, enforcing the segment grammar.
func (p Path) Append(seg Segment) (Path, error) {
	if err := seg.validate(); err != nil {
		return Path{}, err
	}
	last, ok := p.Last()
	switch {
	case seg.Kind.IsSelection():
		if ok && !last.Kind.IsSelection() {
			return Path{}, fmt.Errorf("%w: selection %q after %s", ErrInvalidPath, seg, last.Kind)
		}
	case seg.Kind == KindArgument || seg.Kind == KindDirective:
		if ok && !last.Kind.IsSelection() {
			return Path{}, fmt.Errorf("%w: %s %q after %s", ErrInvalidPath, seg.Kind, seg, last.Kind)
		}
	case seg.Kind == KindDirectiveArgument:
		if !ok || last.Kind != KindDirective {
			return Path{}, fmt.Errorf("%w: directive argument %q outside a directive", ErrInvalidPath, seg.Name)
		}
	}
	return Path{key: p.key + "/" + seg.String()}, nil
}

func (p Path) mustAppend(seg Segment) Path {
	c, err := p.Append(seg)
	if err != nil {
		panic(err)
	}
	return c
}

// Field, AliasedField, FragmentSpread, InlineFragment, Argument, Directive and
// DirectiveArgument derive child paths. They panic on grammar violations, which
// only happen for names not taken from a parsed document or schema.
func (p Path) Field(name string) Path { return p.mustAppend(Field(name)) }
func (p Path) AliasedField(alias, name string) Path {
	if alias == "" || alias == name {
		return p.mustAppend(Field(name))
	}
	return p.mustAppend(AliasedField(alias, name))
}
func (p Path) FragmentSpread(name string) Path     { return p.mustAppend(FragmentSpread(name)) }
func (p Path) InlineFragment(typeCond string) Path { return p.mustAppend(InlineFragment(typeCond)) }
func (p Path) Argument(name string) Path           { return p.mustAppend(Argument(name)) }
func (p Path) Directive(name string) Path          { return p.mustAppend(Directive(name)) }
func (p Path) DirectiveArgument(name string) Path  { return p.mustAppend(DirectiveArgument(name)) }

// Key is the byte-orderable encoding of the path, empty for the root.
// Descendants of p are exactly the keys with prefix p.Key()+"/".
func (p Path) Key() string { return p.key }

func (p Path) String() string {
	if p.key == "" {
		return scheme + "/"
	}
	return scheme + p.key
}

func (p Path) IsRoot() bool { return p.key == "" }

// Len returns the number of segments.
func (p Path) Len() int { return strings.Count(p.key, "/") }

// Segments decodes the segment sequence.
func (p Path) Segments() []Segment {
	if p.key == "" {
		return nil
	}
	texts := strings.Split(p.key[1:], "/")
	segs := make([]Segment, len(texts))
	prev := Kind(0)
	for i, text := range texts {
		// keys are only built through Append, so decoding cannot fail
		segs[i], _ = parseSegment(text, prev == KindDirective)
		prev = segs[i].Kind
	}
	return segs
}

// Last returns the final segment.
func (p Path) Last() (Segment, bool) {
	if p.key == "" {
		return Segment{}, false
	}
	i := strings.LastIndexByte(p.key, '/')
	prevDirective := false
	if i > 0 {
		j := strings.LastIndexByte(p.key[:i], '/')
		prevDirective = strings.HasPrefix(p.key[j+1:i], "@")
	}
	s, _ := parseSegment(p.key[i+1:], prevDirective)
	return s, true
}

// Parent drops the final segment. The parent of the root is the root.
func (p Path) Parent() Path {
	if p.key == "" {
		return p
	}
	return Path{key: p.key[:strings.LastIndexByte(p.key, '/')]}
}

// IsDescendentTo reports whether q's segments are a strict prefix of p's.
func (p Path) IsDescendentTo(q Path) bool {
	return len(p.key) > len(q.key) && strings.HasPrefix(p.key, q.key+"/")
}

// IsAncestorTo reports whether p's segments are a strict prefix of q's.
func (p Path) IsAncestorTo(q Path) bool { return q.IsDescendentTo(p) }

func (p Path) RefersToSelection() bool {
	last, ok := p.Last()
	return ok && last.Kind.IsSelection()
}

// RefersToArgument is true for field arguments and directive arguments.
func (p Path) RefersToArgument() bool {
	last, ok := p.Last()
	return ok && (last.Kind == KindArgument || last.Kind == KindDirectiveArgument)
}

// RefersToDirective is true for a directive and its arguments.
func (p Path) RefersToDirective() bool {
	last, ok := p.Last()
	return ok && (last.Kind == KindDirective || last.Kind == KindDirectiveArgument)
}

// SelectionPath strips a trailing argument or directive tail.
func (p Path) SelectionPath() Path {
	for !p.IsRoot() && !p.RefersToSelection() {
		p = p.Parent()
	}
	return p
}

// FieldPath drops fragment segments, leaving the path of response keys that a
// shaped result is addressed by.
func (p Path) FieldPath() Path {
	var out Path
	for _, s := range p.Segments() {
		if s.Kind == KindFragmentSpread || s.Kind == KindInlineFragment {
			continue
		}
		out = Path{key: out.key + "/" + s.String()}
	}
	return out
}

// Compare orders paths segment by segment; a path sorts before its descendants.
func Compare(a, b Path) int {
	if a.key == b.key {
		return 0
	}
	as, bs := a.Segments(), b.Segments()
	for i := 0; i < len(as) && i < len(bs); i++ {
		if c := compareSegment(as[i], bs[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(as) < len(bs):
		return -1
	case len(as) > len(bs):
		return 1
	}
	return 0
}

func compareSegment(a, b Segment) int {
	switch {
	case a.Kind < b.Kind:
		return -1
	case a.Kind > b.Kind:
		return 1
	}
	if c := strings.Compare(a.Name, b.Name); c != 0 {
		return c
	}
	return strings.Compare(a.Alias, b.Alias)
}

// MarshalText implements encoding.TextMarshaler.
func (p Path) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Path) UnmarshalText(b []byte) error {
	q, err := Parse(string(b))
	if err != nil {
		return err
	}
	*p = q
	return nil
}
