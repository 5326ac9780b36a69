package stages

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xia2/xia2-go/internal/errors"
	"github.com/xia2/xia2-go/internal/stage"
)

// Parameter names understood by the implementations.
const (
	ParamCell       = "cell"
	ParamSpaceGroup = "space_group"
	ParamDMin       = "d_min"
	ParamDMax       = "d_max"
	ParamNProc      = "nproc"
)

func param(job *stage.Job, name string) (string, bool) {
	value, ok := job.Params[name]
	return value, ok && value != ""
}

// cellParam parses a cell given as six numbers separated by commas or spaces.
func cellParam(job *stage.Job) ([]float64, bool, error) {
	value, ok := param(job, ParamCell)
	if !ok {
		return nil, false, nil
	}

	fields := strings.Fields(strings.ReplaceAll(value, ",", " "))
	if len(fields) != 6 {
		return nil, false, errors.Errorf("cell %q must have six constants", value)
	}

	cell := make([]float64, 6)

	for i, field := range fields {
		number, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, false, errors.Errorf("cell %q: %w", value, err)
		}

		cell[i] = number
	}

	return cell, true, nil
}

// upstreamCell returns the cell of the nearest upstream stage that has one, refiner before indexer.
func upstreamCell(job *stage.Job) ([]float64, error) {
	for _, kind := range []stage.Kind{stage.Integrater, stage.Refiner, stage.Indexer} {
		record, ok := job.Upstream[kind]
		if !ok || record == nil || !record.Has(ParamCell) {
			continue
		}

		return record.Tuple(ParamCell)
	}

	return nil, errors.Errorf("no upstream result carries a unit cell")
}

func formatNumbers(values []float64, sep string) string {
	words := make([]string, len(values))
	for i, value := range values {
		words[i] = strconv.FormatFloat(value, 'f', -1, 64)
	}

	return strings.Join(words, sep)
}

func templatePath(job *stage.Job) string {
	return filepath.Join(job.Sweep.Directory, job.Sweep.Template)
}

// xdsTemplate turns `name_###.img` into the `name_???.img` form XDS expects.
func xdsTemplate(job *stage.Job) string {
	return strings.ReplaceAll(templatePath(job), "#", "?")
}

func nproc(job *stage.Job) string {
	if value, ok := param(job, ParamNProc); ok {
		return value
	}

	return "1"
}
