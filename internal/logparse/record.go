package logparse

import (
	"encoding/json"
	"maps"
	"slices"

	"github.com/mitchellh/mapstructure"

	"github.com/xia2/xia2-go/internal/errors"
)

// Value is one extracted value. Only the member matching Kind is set.
type Value struct {
	Kind   Kind        `json:"kind"`
	Number float64     `json:"number,omitempty"`
	Tuple  []float64   `json:"tuple,omitempty"`
	String string      `json:"string,omitempty"`
	Matrix [][]float64 `json:"matrix,omitempty"`
}

// Interface returns the plain Go value: float64, []float64, string or [][]float64.
func (value Value) Interface() any {
	switch value.Kind {
	case Tuple:
		return slices.Clone(value.Tuple)
	case String:
		return value.String
	case Matrix:
		matrix := make([][]float64, len(value.Matrix))
		for i, row := range value.Matrix {
			matrix[i] = slices.Clone(row)
		}

		return matrix
	default:
		return value.Number
	}
}

// Record is the immutable result of Extract.
type Record struct {
	schema string
	values map[string]Value
	found  []string
}

// NewRecord builds a record directly, for stages whose results do not come from a schema.
func NewRecord(schema string, values map[string]Value) *Record {
	return &Record{schema: schema, values: maps.Clone(values)}
}

// Schema returns the name of the schema that produced the record.
func (record *Record) Schema() string {
	return record.schema
}

// Markers returns the required markers found, in schema order.
func (record *Record) Markers() []string {
	return slices.Clone(record.found)
}

// Names returns the names of the extracted fields, sorted.
func (record *Record) Names() []string {
	return slices.Sorted(maps.Keys(record.values))
}

// Has reports whether the record holds a value for name.
func (record *Record) Has(name string) bool {
	_, ok := record.values[name]
	return ok
}

// Value returns the value called name.
func (record *Record) Value(name string) (Value, bool) {
	value, ok := record.values[name]
	return value, ok
}

// Number returns the number called name.
func (record *Record) Number(name string) (float64, error) {
	value, err := record.typed(name, Number)
	return value.Number, err
}

// Tuple returns a copy of the tuple called name.
func (record *Record) Tuple(name string) ([]float64, error) {
	value, err := record.typed(name, Tuple)
	return slices.Clone(value.Tuple), err
}

// String returns the string called name.
func (record *Record) String(name string) (string, error) {
	value, err := record.typed(name, String)
	return value.String, err
}

// Matrix returns a copy of the matrix called name.
func (record *Record) Matrix(name string) ([][]float64, error) {
	value, err := record.typed(name, Matrix)
	if err != nil {
		return nil, err
	}

	return value.Interface().([][]float64), nil
}

// Decode copies the record into out, a pointer to a struct with `mapstructure` tags.
func (record *Record) Decode(out any) error {
	plain := make(map[string]any, len(record.values))

	for name, value := range record.values {
		plain[name] = value.Interface()
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      false,
	})
	if err != nil {
		return errors.New(err)
	}

	if err := decoder.Decode(plain); err != nil {
		return errors.Errorf("decoding %s record: %w", record.schema, err)
	}

	return nil
}

func (record *Record) typed(name string, kind Kind) (Value, error) {
	value, ok := record.values[name]
	if !ok {
		return Value{}, errors.New(&ParseError{Schema: record.schema, Field: name, Reason: "no such field"})
	}

	if value.Kind != kind {
		return Value{}, errors.New(&ParseError{Schema: record.schema, Field: name, Reason: "is a " + value.Kind.String() + ", not a " + kind.String()})
	}

	return value, nil
}

type recordJSON struct {
	Schema  string           `json:"schema"`
	Values  map[string]Value `json:"values"`
	Markers []string         `json:"markers,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (record *Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(recordJSON{Schema: record.schema, Values: record.values, Markers: record.found})
}

// UnmarshalJSON implements json.Unmarshaler.
func (record *Record) UnmarshalJSON(data []byte) error {
	var wire recordJSON

	if err := json.Unmarshal(data, &wire); err != nil {
		return errors.New(err)
	}

	record.schema = wire.Schema
	record.values = wire.Values
	record.found = wire.Markers

	if record.values == nil {
		record.values = make(map[string]Value)
	}

	return nil
}
