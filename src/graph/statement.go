package graph

import "fmt"

// Statement is a subject-predicate-object fact.
type Statement struct {
	Subject   Term
	Predicate Term
	Object    Term
}

// NewStatement ...
func NewStatement(subject, predicate, object Term) Statement {
	return Statement{
		Subject:   subject,
		Predicate: predicate,
		Object:    object,
	}
}

// Validate rejects malformed statements. Subjects must be IRIs or blanks and
// predicates must be IRIs.
func (s Statement) Validate() error {
	if err := s.Subject.Validate(); err != nil {
		return fmt.Errorf("subject: %v", err)
	}
	if s.Subject.Kind == LiteralKind {
		return fmt.Errorf("subject cannot be a literal: %s", s.Subject)
	}
	if err := s.Predicate.Validate(); err != nil {
		return fmt.Errorf("predicate: %v", err)
	}
	if s.Predicate.Kind != IRIKind {
		return fmt.Errorf("predicate must be an IRI: %s", s.Predicate)
	}
	if err := s.Object.Validate(); err != nil {
		return fmt.Errorf("object: %v", err)
	}
	return nil
}

// HasBlank reports whether the subject or the object is a blank identifier.
func (s Statement) HasBlank() bool {
	return s.Subject.IsBlank() || s.Object.IsBlank()
}

// String returns the statement as an N-Triples line, without the newline.
func (s Statement) String() string {
	return fmt.Sprintf("%s %s %s .", s.Subject, s.Predicate, s.Object)
}
