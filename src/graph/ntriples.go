package graph

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// ParseNTriples reads statements in N-Triples line format: one statement per
// line, terms written as <iri>, _:label or "literal" with an optional @lang or
// ^^<datatype>, terminated by a dot. Empty lines and # comments are skipped.
func ParseNTriples(r io.Reader) ([]Statement, error) {
	res := []Statement{}

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		s, err := parseStatementLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %v", lineNo, err)
		}
		res = append(res, s)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return res, nil
}

// ParseStatement parses a single N-Triples line.
func ParseStatement(line string) (Statement, error) {
	return parseStatementLine(strings.TrimSpace(line))
}

// ParseTerm parses a single term written as in N-Triples.
func ParseTerm(s string) (Term, error) {
	p := &lineParser{in: strings.TrimSpace(s)}
	t, err := p.term()
	if err != nil {
		return Term{}, err
	}
	if p.pos != len(p.in) {
		return Term{}, fmt.Errorf("trailing characters at offset %d", p.pos)
	}
	return t, t.Validate()
}

func parseStatementLine(line string) (Statement, error) {
	p := &lineParser{in: line}

	var terms [3]Term
	for i := range terms {
		p.skipSpace()
		t, err := p.term()
		if err != nil {
			return Statement{}, err
		}
		terms[i] = t
	}

	p.skipSpace()
	if !p.consume('.') {
		return Statement{}, fmt.Errorf("expected '.' at offset %d", p.pos)
	}
	p.skipSpace()
	if p.pos < len(p.in) && p.in[p.pos] != '#' {
		return Statement{}, fmt.Errorf("trailing characters at offset %d", p.pos)
	}

	s := NewStatement(terms[0], terms[1], terms[2])
	if err := s.Validate(); err != nil {
		return Statement{}, err
	}
	return s, nil
}

type lineParser struct {
	in  string
	pos int
}

func (p *lineParser) skipSpace() {
	for p.pos < len(p.in) && (p.in[p.pos] == ' ' || p.in[p.pos] == '\t') {
		p.pos++
	}
}

func (p *lineParser) consume(c byte) bool {
	if p.pos < len(p.in) && p.in[p.pos] == c {
		p.pos++
		return true
	}
	return false
}

func (p *lineParser) term() (Term, error) {
	if p.pos >= len(p.in) {
		return Term{}, fmt.Errorf("unexpected end of line")
	}

	switch {
	case p.in[p.pos] == '<':
		iri, err := p.iri()
		if err != nil {
			return Term{}, err
		}
		return IRI(iri), nil
	case strings.HasPrefix(p.in[p.pos:], "_:"):
		p.pos += 2
		start := p.pos
		for p.pos < len(p.in) && p.in[p.pos] != ' ' && p.in[p.pos] != '\t' {
			p.pos++
		}
		label := strings.TrimSuffix(p.in[start:p.pos], ".")
		p.pos = start + len(label)
		if label == "" {
			return Term{}, fmt.Errorf("empty blank label at offset %d", start)
		}
		return Blank(label), nil
	case p.in[p.pos] == '"':
		return p.literal()
	default:
		return Term{}, fmt.Errorf("unexpected character %q at offset %d", p.in[p.pos], p.pos)
	}
}

func (p *lineParser) iri() (string, error) {
	start := p.pos
	end := strings.IndexByte(p.in[start:], '>')
	if end < 0 {
		return "", fmt.Errorf("unterminated IRI at offset %d", start)
	}
	p.pos = start + end + 1
	return p.in[start+1 : start+end], nil
}

func (p *lineParser) literal() (Term, error) {
	start := p.pos
	p.pos++

	var b strings.Builder
	closed := false
	for p.pos < len(p.in) {
		c := p.in[p.pos]
		if c == '"' {
			p.pos++
			closed = true
			break
		}
		if c == '\\' && p.pos+1 < len(p.in) {
			p.pos++
			switch p.in[p.pos] {
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 't':
				b.WriteByte('\t')
			case '"':
				b.WriteByte('"')
			case '\\':
				b.WriteByte('\\')
			default:
				return Term{}, fmt.Errorf("unknown escape \\%c at offset %d", p.in[p.pos], p.pos)
			}
			p.pos++
			continue
		}
		b.WriteByte(c)
		p.pos++
	}
	if !closed {
		return Term{}, fmt.Errorf("unterminated literal at offset %d", start)
	}

	value := b.String()

	if p.consume('@') {
		langStart := p.pos
		for p.pos < len(p.in) && p.in[p.pos] != ' ' && p.in[p.pos] != '\t' {
			p.pos++
		}
		lang := strings.TrimSuffix(p.in[langStart:p.pos], ".")
		p.pos = langStart + len(lang)
		if lang == "" {
			return Term{}, fmt.Errorf("empty language tag at offset %d", langStart)
		}
		return LangLiteral(value, lang), nil
	}

	if strings.HasPrefix(p.in[p.pos:], "^^") {
		p.pos += 2
		if p.pos >= len(p.in) || p.in[p.pos] != '<' {
			return Term{}, fmt.Errorf("expected datatype IRI at offset %d", p.pos)
		}
		dt, err := p.iri()
		if err != nil {
			return Term{}, err
		}
		return TypedLiteral(value, dt), nil
	}

	return Literal(value), nil
}
