package gqlpath

import (
	"fmt"
	"strings"
)

// Kind classifies a path segment.
type Kind uint8

const (
	KindField Kind = iota + 1
	KindAliasedField
	KindFragmentSpread
	KindInlineFragment
	KindArgument
	KindDirective
	KindDirectiveArgument
)

func (k Kind) String() string {
	switch k {
	case KindField:
		return "field"
	case KindAliasedField:
		return "aliased_field"
	case KindFragmentSpread:
		return "fragment_spread"
	case KindInlineFragment:
		return "inline_fragment"
	case KindArgument:
		return "argument"
	case KindDirective:
		return "directive"
	case KindDirectiveArgument:
		return "directive_argument"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// IsSelection reports whether segments of this kind address a selection.
func (k Kind) IsSelection() bool {
	return k == KindField || k == KindAliasedField || k == KindFragmentSpread || k == KindInlineFragment
}

// Segment is one step of a Path.
//
// Name holds the field name, fragment name, type condition (may be empty for
// inline fragments without one), argument name or directive name. Alias is
// only used by KindAliasedField.
type Segment struct {
	Kind  Kind
	Name  string
	Alias string
}

func Field(name string) Segment               { return Segment{Kind: KindField, Name: name} }
func AliasedField(alias, name string) Segment { return Segment{Kind: KindAliasedField, Name: name, Alias: alias} }
func FragmentSpread(name string) Segment      { return Segment{Kind: KindFragmentSpread, Name: name} }
func InlineFragment(typeCondition string) Segment {
	return Segment{Kind: KindInlineFragment, Name: typeCondition}
}
func Argument(name string) Segment          { return Segment{Kind: KindArgument, Name: name} }
func Directive(name string) Segment         { return Segment{Kind: KindDirective, Name: name} }
func DirectiveArgument(name string) Segment { return Segment{Kind: KindDirectiveArgument, Name: name} }

// ResponseKey is the alias of an aliased field and the name otherwise.
func (s Segment) ResponseKey() string {
	if s.Kind == KindAliasedField {
		return s.Alias
	}
	return s.Name
}

// String renders the segment as it appears in a path's text form.
func (s Segment) String() string {
	switch s.Kind {
	case KindField:
		return s.Name
	case KindAliasedField:
		return s.Alias + ":" + s.Name
	case KindFragmentSpread:
		return "..." + s.Name
	case KindInlineFragment:
		return "[" + s.Name + "]"
	case KindArgument, KindDirectiveArgument:
		return "?" + s.Name
	case KindDirective:
		return "@" + s.Name
	}
	return ""
}

func (s Segment) validate() error {
	switch s.Kind {
	case KindField, KindFragmentSpread, KindArgument, KindDirective, KindDirectiveArgument:
		if !isName(s.Name) {
			return fmt.Errorf("%w: invalid %s name %q", ErrInvalidPath, s.Kind, s.Name)
		}
	case KindAliasedField:
		if !isName(s.Name) || !isName(s.Alias) {
			return fmt.Errorf("%w: invalid aliased field %q:%q", ErrInvalidPath, s.Alias, s.Name)
		}
	case KindInlineFragment:
		if s.Name != "" && !isName(s.Name) {
			return fmt.Errorf("%w: invalid type condition %q", ErrInvalidPath, s.Name)
		}
	default:
		return fmt.Errorf("%w: unknown segment kind %d", ErrInvalidPath, s.Kind)
	}
	return nil
}

// parseSegment decodes one segment of the text form. afterDirective selects
// the directive-argument reading of a "?name" segment.
func parseSegment(text string, afterDirective bool) (Segment, error) {
	var s Segment
	switch {
	case strings.HasPrefix(text, "..."):
		s = FragmentSpread(text[3:])
	case strings.HasPrefix(text, "[") && strings.HasSuffix(text, "]"):
		s = InlineFragment(text[1 : len(text)-1])
	case strings.HasPrefix(text, "?"):
		if afterDirective {
			s = DirectiveArgument(text[1:])
		} else {
			s = Argument(text[1:])
		}
	case strings.HasPrefix(text, "@"):
		s = Directive(text[1:])
	default:
		if alias, name, ok := strings.Cut(text, ":"); ok {
			s = AliasedField(alias, name)
		} else {
			s = Field(text)
		}
	}
	return s, s.validate()
}

func isName(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '_', c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
