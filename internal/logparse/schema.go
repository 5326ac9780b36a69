// Package logparse turns captured program output into structured records. Extraction tolerates noise around the
// lines it needs but never defaults a required value: a missing marker or field is always a ParseError.
package logparse

import (
	"regexp"
	"strings"
)

// Kind is the type of an extracted value.
type Kind int

const (
	Number Kind = iota
	Tuple
	String
	Matrix
)

var kindNames = map[Kind]string{
	Number: "number",
	Tuple:  "tuple",
	String: "string",
	Matrix: "matrix",
}

func (kind Kind) String() string {
	return kindNames[kind]
}

// MarshalText implements encoding.TextMarshaler.
func (kind Kind) MarshalText() ([]byte, error) {
	return []byte(kind.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (kind *Kind) UnmarshalText(text []byte) error {
	for k, name := range kindNames {
		if name == string(text) {
			*kind = k
			return nil
		}
	}

	return &ParseError{Reason: "unknown value kind " + string(text)}
}

// End marks a span that runs to the last token of the line.
const End = -1

// Span selects tokens [From, To) of a line. To may be End.
type Span struct {
	From int
	To   int
}

// Tokens returns a span of count tokens starting at from.
func Tokens(from, count int) Span {
	return Span{From: from, To: from + count}
}

// Rest returns a span from `from` to the end of the line.
func Rest(from int) Span {
	return Span{From: from, To: End}
}

// Field describes one value to extract.
type Field struct {
	Name string
	// Marker is a substring identifying the line the value is on.
	Marker string
	Kind   Kind
	// Tokens selects the value's tokens on the line. Ignored when Pattern is set.
	Tokens Span
	// Pattern, when set, must match the line; its submatches become the tokens.
	Pattern *regexp.Regexp
	// Offset is how many lines after the marker line the value starts.
	Offset int
	// Rows is the number of lines in a Matrix value.
	Rows int
	// Last takes the last occurrence of the marker instead of the first.
	Last bool
	// Optional fields are left out of the record when their marker is absent.
	Optional bool
}

// Schema lists the markers a successful run must print and the fields to extract from its output.
type Schema struct {
	Name    string
	Markers []string
	Fields  []Field
}

var tokenSeparators = strings.NewReplacer(",", " ", "(", " ", ")", " ", "[", " ", "]", " ")

// Tokenize splits a line on whitespace after turning brackets and commas into spaces, so `(1.0, 2.0)` and
// `1.0 2.0` tokenize alike.
func Tokenize(line string) []string {
	return strings.Fields(tokenSeparators.Replace(line))
}
