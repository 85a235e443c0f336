package graph

import (
	"fmt"
	"strings"
)

// TermKind distinguishes the three kinds of statement components.
type TermKind uint8

const (
	// IRIKind is an absolute identifier.
	IRIKind TermKind = iota
	// LiteralKind is a literal value, optionally typed or language-tagged.
	LiteralKind
	// BlankKind is a graph-local placeholder.
	BlankKind
)

// String ...
func (k TermKind) String() string {
	switch k {
	case IRIKind:
		return "IRI"
	case LiteralKind:
		return "Literal"
	case BlankKind:
		return "Blank"
	default:
		return "Unknown"
	}
}

// XSDString is the datatype of plain literals.
const XSDString = "http://www.w3.org/2001/XMLSchema#string"

// Term is one component of a statement.
type Term struct {
	Kind     TermKind
	Value    string
	Datatype string `json:",omitempty" codec:",omitempty"`
	Language string `json:",omitempty" codec:",omitempty"`
}

// IRI returns an absolute identifier term.
func IRI(value string) Term {
	return Term{Kind: IRIKind, Value: value}
}

// Blank returns a blank identifier term. The label has no meaning outside the
// graph it appears in.
func Blank(label string) Term {
	return Term{Kind: BlankKind, Value: label}
}

// Literal returns a plain string literal.
func Literal(value string) Term {
	return Term{Kind: LiteralKind, Value: value}
}

// TypedLiteral returns a literal with an explicit datatype IRI.
func TypedLiteral(value, datatype string) Term {
	if datatype == XSDString {
		datatype = ""
	}
	return Term{Kind: LiteralKind, Value: value, Datatype: datatype}
}

// LangLiteral returns a language-tagged string literal.
func LangLiteral(value, lang string) Term {
	return Term{Kind: LiteralKind, Value: value, Language: strings.ToLower(lang)}
}

// IsBlank reports whether the term is a blank identifier.
func (t Term) IsBlank() bool {
	return t.Kind == BlankKind
}

// Validate checks that the term is structurally usable.
func (t Term) Validate() error {
	switch t.Kind {
	case IRIKind, BlankKind:
		if t.Value == "" {
			return fmt.Errorf("empty %s term", t.Kind)
		}
		if t.Datatype != "" || t.Language != "" {
			return fmt.Errorf("%s term %q cannot carry a datatype or language", t.Kind, t.Value)
		}
	case LiteralKind:
		if t.Datatype != "" && t.Language != "" {
			return fmt.Errorf("literal %q has both a datatype and a language", t.Value)
		}
	default:
		return fmt.Errorf("unknown term kind %d", t.Kind)
	}
	return nil
}

// String returns the canonical N-Triples form of the term.
func (t Term) String() string {
	switch t.Kind {
	case IRIKind:
		return "<" + t.Value + ">"
	case BlankKind:
		return "_:" + t.Value
	case LiteralKind:
		s := `"` + escapeLiteral(t.Value) + `"`
		if t.Language != "" {
			return s + "@" + t.Language
		}
		if t.Datatype != "" && t.Datatype != XSDString {
			return s + "^^<" + t.Datatype + ">"
		}
		return s
	default:
		return ""
	}
}

var literalEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

func escapeLiteral(s string) string {
	return literalEscaper.Replace(s)
}
