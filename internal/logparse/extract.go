package logparse

import (
	"slices"
	"strconv"
	"strings"

	"github.com/xia2/xia2-go/internal/errors"
)

// Extract applies schema to lines. Schema markers are checked in order, then fields; the first absence is
// returned as a ParseError.
func Extract(lines []string, schema Schema) (*Record, error) {
	record := &Record{
		schema: schema.Name,
		values: make(map[string]Value, len(schema.Fields)),
	}

	for _, marker := range schema.Markers {
		if findLine(lines, marker, false) < 0 {
			return nil, errors.New(&ParseError{Schema: schema.Name, Marker: marker})
		}

		record.found = append(record.found, marker)
	}

	for _, field := range schema.Fields {
		index := findLine(lines, field.Marker, field.Last)
		if index < 0 {
			if field.Optional {
				continue
			}

			return nil, errors.New(&ParseError{Schema: schema.Name, Marker: field.Marker, Field: field.Name})
		}

		value, err := extractField(lines, index, field)
		if err != nil {
			err.Schema = schema.Name
			return nil, errors.New(err)
		}

		record.values[field.Name] = value

		if !slices.Contains(record.found, field.Marker) {
			record.found = append(record.found, field.Marker)
		}
	}

	return record, nil
}

func extractField(lines []string, index int, field Field) (Value, *ParseError) {
	start := index + field.Offset

	fail := func(line int, reason string) (Value, *ParseError) {
		return Value{}, &ParseError{Marker: field.Marker, Field: field.Name, Line: line, Reason: reason}
	}

	if start >= len(lines) {
		return fail(index, "output ends before the value")
	}

	switch field.Kind {
	case Matrix:
		rows := field.Rows
		if rows < 1 {
			rows = 1
		}

		if start+rows > len(lines) {
			return fail(start, "output ends inside the matrix")
		}

		matrix := make([][]float64, 0, rows)

		for row := start; row < start+rows; row++ {
			tokens, reason := selectTokens(lines[row], field)
			if reason != "" {
				return fail(row, reason)
			}

			numbers, reason := parseNumbers(tokens)
			if reason != "" {
				return fail(row, reason)
			}

			matrix = append(matrix, numbers)
		}

		return Value{Kind: Matrix, Matrix: matrix}, nil
	case Number, Tuple, String:
	default:
		return fail(start, "unsupported value kind")
	}

	tokens, reason := selectTokens(lines[start], field)
	if reason != "" {
		return fail(start, reason)
	}

	switch field.Kind {
	case Number:
		if len(tokens) != 1 {
			return fail(start, "expected one number, got "+strconv.Itoa(len(tokens))+" tokens")
		}

		numbers, reason := parseNumbers(tokens)
		if reason != "" {
			return fail(start, reason)
		}

		return Value{Kind: Number, Number: numbers[0]}, nil
	case Tuple:
		numbers, reason := parseNumbers(tokens)
		if reason != "" {
			return fail(start, reason)
		}

		return Value{Kind: Tuple, Tuple: numbers}, nil
	default:
		return Value{Kind: String, String: strings.Join(tokens, " ")}, nil
	}
}

func selectTokens(line string, field Field) ([]string, string) {
	if field.Pattern != nil {
		match := field.Pattern.FindStringSubmatch(line)
		if match == nil {
			return nil, "line does not match " + field.Pattern.String()
		}

		if len(match) == 1 {
			return Tokenize(match[0]), ""
		}

		var tokens []string
		for _, group := range match[1:] {
			tokens = append(tokens, Tokenize(group)...)
		}

		return tokens, ""
	}

	tokens := Tokenize(line)
	from, to := field.Tokens.From, field.Tokens.To

	if to == End || (from == 0 && to == 0) {
		to = len(tokens)
	}

	if from < 0 || from > to || to > len(tokens) {
		return nil, "expected tokens " + strconv.Itoa(from) + ".." + strconv.Itoa(to) + ", line has " + strconv.Itoa(len(tokens))
	}

	tokens = tokens[from:to]
	if len(tokens) == 0 {
		return nil, "no tokens selected"
	}

	return tokens, ""
}

func parseNumbers(tokens []string) ([]float64, string) {
	numbers := make([]float64, len(tokens))

	for i, token := range tokens {
		number, err := strconv.ParseFloat(token, 64)
		if err != nil {
			return nil, "not a number: " + strconv.Quote(token)
		}

		numbers[i] = number
	}

	return numbers, ""
}

func findLine(lines []string, marker string, last bool) int {
	if last {
		for i := len(lines) - 1; i >= 0; i-- {
			if strings.Contains(lines[i], marker) {
				return i
			}
		}

		return -1
	}

	for i, line := range lines {
		if strings.Contains(line, marker) {
			return i
		}
	}

	return -1
}
