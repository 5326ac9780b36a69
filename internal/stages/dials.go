package stages

import (
	"regexp"
	"strconv"

	"github.com/xia2/xia2-go/internal/decorator"
	"github.com/xia2/xia2-go/internal/logparse"
	"github.com/xia2/xia2-go/internal/stage"
)

var dialsChecks = []decorator.Check{decorator.DIALSErrors}

var dialsCellField = logparse.Field{
	Name: ParamCell, Marker: "Unit cell:", Kind: logparse.Tuple, Tokens: logparse.Rest(2), Last: true,
}

var dialsSpaceGroupField = logparse.Field{
	Name: ParamSpaceGroup, Marker: "Space group:", Kind: logparse.String,
	Pattern: regexp.MustCompile(`Space group:\s*(.+?)\s*$`), Last: true,
}

func dialsIndexer() stage.Constructor {
	return newProgram(stage.IndexerDials,
		stage.Requirement{Executables: []string{"dials.import", "dials.find_spots", "dials.index"}},
		logparse.Schema{
			Name:    "dials.index",
			Markers: []string{"Final refined crystal model"},
			Fields:  []logparse.Field{dialsCellField, dialsSpaceGroupField},
		},
		step{
			executable: "dials.import",
			args: func(job *stage.Job) ([]string, error) {
				return []string{
					"template=" + templatePath(job),
					"image_range=" + strconv.Itoa(job.Sweep.Images[0]) + "," + strconv.Itoa(job.Sweep.Images[1]),
				}, nil
			},
			checks: dialsChecks,
		},
		step{
			executable: "dials.find_spots",
			args: func(job *stage.Job) ([]string, error) {
				return []string{"imported.expt", "nproc=" + nproc(job)}, nil
			},
			checks: dialsChecks,
		},
		step{
			executable: "dials.index",
			args: func(job *stage.Job) ([]string, error) {
				args := []string{"imported.expt", "strong.refl"}

				cell, ok, err := cellParam(job)
				if err != nil {
					return nil, err
				}

				if ok {
					args = append(args, "unit_cell="+formatNumbers(cell, ","))
				}

				if spaceGroup, ok := param(job, ParamSpaceGroup); ok {
					args = append(args, "space_group="+spaceGroup)
				}

				return args, nil
			},
			checks: dialsChecks,
		},
	)
}

func dialsRefiner() stage.Constructor {
	return newProgram(stage.RefinerDials,
		stage.Requirement{Executables: []string{"dials.refine"}},
		logparse.Schema{
			Name:    "dials.refine",
			Markers: []string{"RMSDs by experiment"},
			Fields:  []logparse.Field{dialsCellField},
		},
		step{
			executable: "dials.refine",
			args:       static("indexed.expt", "indexed.refl"),
			checks:     dialsChecks,
		},
	)
}

func dialsIntegrater() stage.Constructor {
	return newProgram(stage.IntegraterDials,
		stage.Requirement{Executables: []string{"dials.integrate"}},
		logparse.Schema{
			Name:    "dials.integrate",
			Markers: []string{"Summary vs resolution"},
			Fields: []logparse.Field{
				{
					Name: "integrated", Marker: "integrated reflections", Kind: logparse.Number,
					Pattern: regexp.MustCompile(`integrated reflections:?\s*(\d+)`), Last: true,
				},
				{Name: ParamDMin, Marker: "High resolution limit", Kind: logparse.Number, Tokens: logparse.Tokens(3, 1), Last: true},
			},
		},
		step{
			executable: "dials.integrate",
			args: func(job *stage.Job) ([]string, error) {
				input := "indexed"
				if _, ok := job.Upstream[stage.Refiner]; ok {
					input = "refined"
				}

				args := []string{input + ".expt", input + ".refl", "nproc=" + nproc(job)}

				if dMin, ok := param(job, ParamDMin); ok {
					args = append(args, "prediction.d_min="+dMin)
				}

				if dMax, ok := param(job, ParamDMax); ok {
					args = append(args, "prediction.d_max="+dMax)
				}

				return args, nil
			},
			checks: dialsChecks,
		},
	)
}

var scalerFields = []logparse.Field{
	{Name: "high_resolution", Marker: "High resolution limit", Kind: logparse.Number, Tokens: logparse.Tokens(3, 1), Last: true},
	{Name: "completeness", Marker: "Completeness", Kind: logparse.Number, Tokens: logparse.Tokens(1, 1), Last: true},
	{Name: "multiplicity", Marker: "Multiplicity", Kind: logparse.Number, Tokens: logparse.Tokens(1, 1), Last: true},
	{Name: "rmerge", Marker: "Rmerge", Kind: logparse.Number, Pattern: regexp.MustCompile(`Rmerge.*?\s([\d.]+)(?:\s|$)`), Last: true, Optional: true},
}

func dialsScaler() stage.Constructor {
	return newProgram(stage.ScalerDials,
		stage.Requirement{Executables: []string{"dials.scale"}},
		logparse.Schema{
			Name:    "dials.scale",
			Markers: []string{"Overall"},
			Fields:  scalerFields,
		},
		step{
			executable: "dials.scale",
			args: func(job *stage.Job) ([]string, error) {
				args := []string{"integrated.expt", "integrated.refl"}

				if dMin, ok := param(job, ParamDMin); ok {
					args = append(args, "d_min="+dMin)
				}

				return args, nil
			},
			checks: dialsChecks,
		},
	)
}
