// Package query is a small typed DSL for structured boolean search queries.
// Clauses are plain values; they are turned into the search engine's JSON
// wire format only when a request is serialized.
package query

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ErrInvalidQuery is returned by Validate for malformed clause trees.
var ErrInvalidQuery = errors.New("invalid query")

// Clause is one node of a query tree.
type Clause interface {
	json.Marshaler
	validate() error
}

// MatchAll matches every document.
type MatchAll struct{}

// MatchNone matches no document.
type MatchNone struct{}

// Term is an exact match on a keyword, numeric or boolean field. On
// array fields it matches when any element equals Value.
type Term struct {
	Field string
	Value Value
	Boost float64
}

// Terms matches when the field equals any of Values.
type Terms struct {
	Field  string
	Values []Value
}

// Match is an analyzed full-text match on a single field.
type Match struct {
	Field     string
	Query     string
	Boost     float64
	Fuzziness string
	Operator  string
}

// Field is a field reference with an optional boost.
type Field struct {
	Name  string
	Boost float64
}

// MultiMatch runs one full-text query across several weighted fields.
type MultiMatch struct {
	Query     string
	Fields    []Field
	Type      string
	Fuzziness string
	Operator  string
}

// MatchPhrasePrefix matches documents whose field starts with the phrase.
type MatchPhrasePrefix struct {
	Field string
	Query string
	Boost float64
}

// Prefix is an exact prefix match on a keyword field.
type Prefix struct {
	Field string
	Value string
	Boost float64
}

// Exists matches documents that carry a non-null value for Field.
type Exists struct {
	Field string
}

// Bool combines clauses. Filter and MustNot do not contribute to scoring.
type Bool struct {
	Must               []Clause
	Should             []Clause
	Filter             []Clause
	MustNot            []Clause
	MinimumShouldMatch int
}

// NewBool returns an empty combinator.
func NewBool() *Bool { return &Bool{} }

// AddMust appends scoring, required clauses.
func (b *Bool) AddMust(c ...Clause) *Bool {
	b.Must = append(b.Must, c...)
	return b
}

// AddShould appends optional clauses.
func (b *Bool) AddShould(c ...Clause) *Bool {
	b.Should = append(b.Should, c...)
	return b
}

// AddFilter appends non-scoring, required clauses.
func (b *Bool) AddFilter(c ...Clause) *Bool {
	b.Filter = append(b.Filter, c...)
	return b
}

// AddMustNot appends excluding clauses.
func (b *Bool) AddMustNot(c ...Clause) *Bool {
	b.MustNot = append(b.MustNot, c...)
	return b
}

// MinShould sets minimum_should_match.
func (b *Bool) MinShould(n int) *Bool {
	b.MinimumShouldMatch = n
	return b
}

// AnyOf is a Bool that matches when at least one clause matches.
func AnyOf(c ...Clause) *Bool {
	return &Bool{Should: c, MinimumShouldMatch: 1}
}

// Validate checks the whole tree rooted at c.
func Validate(c Clause) error {
	if c == nil {
		return fmt.Errorf("%w: nil clause", ErrInvalidQuery)
	}
	return c.validate()
}

func (MatchAll) validate() error  { return nil }
func (MatchNone) validate() error { return nil }

func (t Term) validate() error {
	if t.Field == "" {
		return fmt.Errorf("%w: term without field", ErrInvalidQuery)
	}
	if t.Value.Kind() == KindInvalid {
		return fmt.Errorf("%w: term on %q without value", ErrInvalidQuery, t.Field)
	}
	return nil
}

func (t Terms) validate() error {
	if t.Field == "" {
		return fmt.Errorf("%w: terms without field", ErrInvalidQuery)
	}
	if len(t.Values) == 0 {
		return fmt.Errorf("%w: terms on %q without values", ErrInvalidQuery, t.Field)
	}
	for _, v := range t.Values {
		if v.Kind() == KindInvalid {
			return fmt.Errorf("%w: terms on %q with invalid value", ErrInvalidQuery, t.Field)
		}
	}
	return nil
}

func (m Match) validate() error {
	if m.Field == "" {
		return fmt.Errorf("%w: match without field", ErrInvalidQuery)
	}
	return nil
}

func (m MultiMatch) validate() error {
	if len(m.Fields) == 0 {
		return fmt.Errorf("%w: multi_match without fields", ErrInvalidQuery)
	}
	for _, f := range m.Fields {
		if f.Name == "" {
			return fmt.Errorf("%w: multi_match with empty field", ErrInvalidQuery)
		}
	}
	return nil
}

func (m MatchPhrasePrefix) validate() error {
	if m.Field == "" {
		return fmt.Errorf("%w: match_phrase_prefix without field", ErrInvalidQuery)
	}
	return nil
}

func (p Prefix) validate() error {
	if p.Field == "" {
		return fmt.Errorf("%w: prefix without field", ErrInvalidQuery)
	}
	return nil
}

func (e Exists) validate() error {
	if e.Field == "" {
		return fmt.Errorf("%w: exists without field", ErrInvalidQuery)
	}
	return nil
}

func (b *Bool) validate() error {
	if b == nil {
		return fmt.Errorf("%w: nil bool", ErrInvalidQuery)
	}
	if b.MinimumShouldMatch > len(b.Should) {
		return fmt.Errorf("%w: minimum_should_match %d exceeds %d should clauses",
			ErrInvalidQuery, b.MinimumShouldMatch, len(b.Should))
	}
	for _, group := range [][]Clause{b.Must, b.Should, b.Filter, b.MustNot} {
		for _, c := range group {
			if err := Validate(c); err != nil {
				return err
			}
		}
	}
	return nil
}

// String renders the field reference in "name^boost" form.
func (f Field) String() string {
	if f.Boost == 0 || f.Boost == 1 {
		return f.Name
	}
	return f.Name + "^" + strconv.FormatFloat(f.Boost, 'f', -1, 64)
}
