package logparse_test

import (
	"encoding/json"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xia2/xia2-go/internal/logparse"
)

var idxrefOutput = []string{
	" ***** IDXREF *****",
	" noise before",
	" DIMENSION OF SPACE SPANNED BY DIFFERENCE VECTOR CLUSTERS   3",
	" UNIT CELL PARAMETERS     78.123    78.123    37.210  90.000  90.000  90.000",
	" SPACE GROUP NUMBER     75",
	" COORDINATES OF UNIT CELL A-AXIS   -15.210    70.011   -29.776",
	" COORDINATES OF UNIT CELL B-AXIS   -76.533   -12.990     7.123",
	" COORDINATES OF UNIT CELL C-AXIS    -6.101     9.113    35.001",
	" LATTICE CHARACTER  tP",
	" UNIT CELL PARAMETERS     78.200    78.200    37.300  90.000  90.000  90.000",
	" !!! done",
}

func indexSchema() logparse.Schema {
	return logparse.Schema{
		Name:    "idxref",
		Markers: []string{"IDXREF", "DIMENSION OF SPACE SPANNED"},
		Fields: []logparse.Field{
			{Name: "cell", Marker: "UNIT CELL PARAMETERS", Kind: logparse.Tuple, Tokens: logparse.Tokens(3, 6)},
			{Name: "refined_cell", Marker: "UNIT CELL PARAMETERS", Kind: logparse.Tuple, Tokens: logparse.Rest(3), Last: true},
			{Name: "space_group", Marker: "SPACE GROUP NUMBER", Kind: logparse.Number, Tokens: logparse.Tokens(3, 1)},
			{Name: "lattice", Marker: "LATTICE CHARACTER", Kind: logparse.String, Pattern: regexp.MustCompile(`LATTICE CHARACTER\s+(\w+)`)},
			{Name: "orientation", Marker: "A-AXIS", Kind: logparse.Matrix, Rows: 3, Tokens: logparse.Rest(5)},
			{Name: "mosaic", Marker: "MOSAICITY", Kind: logparse.Number, Tokens: logparse.Tokens(1, 1), Optional: true},
		},
	}
}

func TestExtract(t *testing.T) {
	t.Parallel()

	record, err := logparse.Extract(idxrefOutput, indexSchema())
	require.NoError(t, err)

	cell, err := record.Tuple("cell")
	require.NoError(t, err)
	assert.Equal(t, []float64{78.123, 78.123, 37.21, 90, 90, 90}, cell)

	refined, err := record.Tuple("refined_cell")
	require.NoError(t, err)
	assert.InDelta(t, 78.2, refined[0], 1e-9)

	spaceGroup, err := record.Number("space_group")
	require.NoError(t, err)
	assert.InDelta(t, 75.0, spaceGroup, 1e-9)

	lattice, err := record.String("lattice")
	require.NoError(t, err)
	assert.Equal(t, "tP", lattice)

	matrix, err := record.Matrix("orientation")
	require.NoError(t, err)
	require.Len(t, matrix, 3)
	assert.Equal(t, []float64{-6.101, 9.113, 35.001}, matrix[2])

	assert.False(t, record.Has("mosaic"))
	assert.Equal(t, []string{"IDXREF", "DIMENSION OF SPACE SPANNED", "UNIT CELL PARAMETERS", "SPACE GROUP NUMBER", "LATTICE CHARACTER", "A-AXIS"}, record.Markers())

	_, err = record.Number("cell")

	var parseErr *logparse.ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestExtractMissingMarkers(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		drop   string
		marker string
		field  string
	}{
		{"schema marker", "DIMENSION OF SPACE", "DIMENSION OF SPACE SPANNED", ""},
		{"required field", "SPACE GROUP NUMBER", "SPACE GROUP NUMBER", "space_group"},
		{"first of several", "IDXREF", "IDXREF", ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var lines []string

			for _, line := range idxrefOutput {
				if !regexp.MustCompile(regexp.QuoteMeta(tc.drop)).MatchString(line) {
					lines = append(lines, line)
				}
			}

			record, err := logparse.Extract(lines, indexSchema())
			require.Nil(t, record)

			var parseErr *logparse.ParseError
			require.ErrorAs(t, err, &parseErr)
			assert.Equal(t, tc.marker, parseErr.Marker)
			assert.Equal(t, tc.field, parseErr.Field)
			assert.Contains(t, err.Error(), tc.marker)
		})
	}
}

func TestExtractMalformedValue(t *testing.T) {
	t.Parallel()

	schema := logparse.Schema{
		Name: "integrate",
		Fields: []logparse.Field{
			{Name: "resolution", Marker: "RESOLUTION", Kind: logparse.Number, Tokens: logparse.Tokens(1, 1)},
		},
	}

	testCases := []struct {
		name  string
		lines []string
	}{
		{"not a number", []string{"RESOLUTION high"}},
		{"too few tokens", []string{"RESOLUTION"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := logparse.Extract(tc.lines, schema)

			var parseErr *logparse.ParseError
			require.ErrorAs(t, err, &parseErr)
			assert.Equal(t, "resolution", parseErr.Field)
			assert.NotEmpty(t, parseErr.Reason)
		})
	}
}

func TestRecordJSONAndDecode(t *testing.T) {
	t.Parallel()

	record, err := logparse.Extract(idxrefOutput, indexSchema())
	require.NoError(t, err)

	data, err := json.Marshal(record)
	require.NoError(t, err)

	var loaded logparse.Record
	require.NoError(t, json.Unmarshal(data, &loaded))

	assert.Equal(t, record.Names(), loaded.Names())
	assert.Equal(t, record.Markers(), loaded.Markers())

	for _, name := range record.Names() {
		want, _ := record.Value(name)
		got, _ := loaded.Value(name)
		assert.Equal(t, want, got, name)
	}

	var result struct {
		Cell       []float64   `mapstructure:"cell"`
		SpaceGroup int         `mapstructure:"space_group"`
		Lattice    string      `mapstructure:"lattice"`
		Matrix     [][]float64 `mapstructure:"orientation"`
	}

	require.NoError(t, loaded.Decode(&result))
	assert.Equal(t, 75, result.SpaceGroup)
	assert.Equal(t, "tP", result.Lattice)
	assert.Len(t, result.Cell, 6)
	assert.Len(t, result.Matrix, 3)
}
