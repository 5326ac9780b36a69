package stages

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/xia2/xia2-go/internal/decorator"
	"github.com/xia2/xia2-go/internal/logparse"
	"github.com/xia2/xia2-go/internal/stage"
)

const xdsExecutable = "xds_par"

// xdsSpotImages is how many images the xds indexer finds spots on; xdsii uses the whole sweep.
const xdsSpotImages = 5

var xdsChecks = []decorator.Check{decorator.XDSErrors}

var xdsCellField = logparse.Field{
	Name: ParamCell, Marker: "UNIT CELL PARAMETERS", Kind: logparse.Tuple, Tokens: logparse.Tokens(3, 6), Last: true,
}

var xdsSpaceGroupField = logparse.Field{
	Name: ParamSpaceGroup, Marker: "SPACE GROUP NUMBER", Kind: logparse.String, Tokens: logparse.Tokens(3, 1), Last: true,
}

// xdsInput renders an XDS.INP for jobs. Keywords keep their order.
func xdsInput(job *stage.Job, jobs string, keywords [][2]string) string {
	first, last := job.Sweep.Images[0], job.Sweep.Images[1]

	var sb strings.Builder

	write := func(keyword, value string) {
		sb.WriteString(keyword + "= " + value + "\n")
	}

	write("JOB", jobs)
	write("NAME_TEMPLATE_OF_DATA_FRAMES", xdsTemplate(job))
	write("DATA_RANGE", strconv.Itoa(first)+" "+strconv.Itoa(last))
	write("BACKGROUND_RANGE", strconv.Itoa(first)+" "+strconv.Itoa(min(first+4, last)))
	write("MAXIMUM_NUMBER_OF_PROCESSORS", nproc(job))

	for _, keyword := range keywords {
		write(keyword[0], keyword[1])
	}

	return sb.String()
}

// xdsSymmetry returns the cell and space group keywords. XDS only takes a cell together with a space group number.
func xdsSymmetry(job *stage.Job, cell []float64) [][2]string {
	spaceGroup, ok := param(job, ParamSpaceGroup)
	if !ok || cell == nil {
		return nil
	}

	if _, err := strconv.Atoi(spaceGroup); err != nil {
		return nil
	}

	return [][2]string{
		{"SPACE_GROUP_NUMBER", spaceGroup},
		{"UNIT_CELL_CONSTANTS", formatNumbers(cell, " ")},
	}
}

func xdsIndexerStep(wholeSweep bool) step {
	return step{
		executable: xdsExecutable,
		files: func(job *stage.Job) (map[string]string, error) {
			first, last := job.Sweep.Images[0], job.Sweep.Images[1]
			if !wholeSweep {
				last = min(first+xdsSpotImages-1, last)
			}

			cell, _, err := cellParam(job)
			if err != nil {
				return nil, err
			}

			keywords := append([][2]string{
				{"SPOT_RANGE", strconv.Itoa(first) + " " + strconv.Itoa(last)},
			}, xdsSymmetry(job, cell)...)

			return map[string]string{"XDS.INP": xdsInput(job, "XYCORR INIT COLSPOT IDXREF", keywords)}, nil
		},
		checks: xdsChecks,
		output: "IDXREF.LP",
	}
}

var xdsIndexerSchema = logparse.Schema{
	Name:    "xds.idxref",
	Markers: []string{"DIFFRACTION PARAMETERS USED AT START OF INTEGRATION"},
	Fields:  []logparse.Field{xdsCellField, xdsSpaceGroupField},
}

func xdsIndexer() stage.Constructor {
	return newProgram(stage.IndexerXDS,
		stage.Requirement{Executables: []string{xdsExecutable}},
		xdsIndexerSchema,
		xdsIndexerStep(false),
	)
}

func xdsIIIndexer() stage.Constructor {
	return newProgram(stage.IndexerXDSII,
		stage.Requirement{Executables: []string{xdsExecutable}},
		xdsIndexerSchema,
		xdsIndexerStep(true),
	)
}

func xdsRefiner() stage.Constructor {
	return newProgram(stage.RefinerXDS,
		stage.Requirement{Executables: []string{xdsExecutable}},
		xdsIndexerSchema,
		step{
			executable: xdsExecutable,
			files: func(job *stage.Job) (map[string]string, error) {
				cell, err := upstreamCell(job)
				if err != nil {
					return nil, err
				}

				keywords := append([][2]string{
					{"REFINE(IDXREF)", "CELL BEAM ORIENTATION AXIS POSITION"},
				}, xdsSymmetry(job, cell)...)

				return map[string]string{"XDS.INP": xdsInput(job, "IDXREF", keywords)}, nil
			},
			checks: xdsChecks,
			output: "IDXREF.LP",
		},
	)
}

func xdsIntegrater() stage.Constructor {
	return newProgram(stage.IntegraterXDSR,
		stage.Requirement{Executables: []string{xdsExecutable}},
		logparse.Schema{
			Name:    "xds.correct",
			Markers: []string{"REFINEMENT OF DIFFRACTION PARAMETERS USING ALL IMAGES"},
			Fields: []logparse.Field{
				xdsCellField,
				xdsSpaceGroupField,
				{
					Name: "integrated", Marker: "REFLECTIONS ACCEPTED", Kind: logparse.Number,
					Pattern: regexp.MustCompile(`^\s*(\d+)\s+REFLECTIONS ACCEPTED`), Last: true, Optional: true,
				},
			},
		},
		step{
			executable: xdsExecutable,
			files: func(job *stage.Job) (map[string]string, error) {
				var keywords [][2]string

				if dMin, ok := param(job, ParamDMin); ok {
					dMax, ok := param(job, ParamDMax)
					if !ok {
						dMax = "50"
					}

					keywords = append(keywords, [2]string{"INCLUDE_RESOLUTION_RANGE", dMax + " " + dMin})
				}

				return map[string]string{"XDS.INP": xdsInput(job, "DEFPIX INTEGRATE CORRECT", keywords)}, nil
			},
			checks: xdsChecks,
			output: "CORRECT.LP",
		},
	)
}

func xdsScaler() stage.Constructor {
	return newProgram(stage.ScalerXDSA,
		stage.Requirement{Executables: []string{"xscale_par"}},
		logparse.Schema{
			Name:    "xscale",
			Markers: []string{"STATISTICS OF SCALED OUTPUT DATA SET"},
			Fields: []logparse.Field{
				{
					Name: "completeness", Marker: "total", Kind: logparse.Number, Last: true,
					Pattern: regexp.MustCompile(`^\s*total\s+\d+\s+\d+\s+\d+\s+([\d.]+)%`),
				},
				{
					Name: "rmerge", Marker: "total", Kind: logparse.Number, Last: true,
					Pattern: regexp.MustCompile(`^\s*total\s+\d+\s+\d+\s+\d+\s+[\d.]+%\s+([\d.]+)%`),
				},
				{
					Name: "observed", Marker: "total", Kind: logparse.Number, Last: true,
					Pattern: regexp.MustCompile(`^\s*total\s+(\d+)`),
				},
				{
					Name: "unique", Marker: "total", Kind: logparse.Number, Last: true,
					Pattern: regexp.MustCompile(`^\s*total\s+\d+\s+(\d+)`),
				},
			},
		},
		exportFromDIALS("format=xds_ascii"),
		step{
			executable: "xscale_par",
			files: func(job *stage.Job) (map[string]string, error) {
				input := "OUTPUT_FILE= scaled.ahkl\nINPUT_FILE= XDS_ASCII.HKL\n"

				if dMin, ok := param(job, ParamDMin); ok {
					input += "INCLUDE_RESOLUTION_RANGE= 50 " + dMin + "\n"
				}

				return map[string]string{"XSCALE.INP": input}, nil
			},
			checks: xdsChecks,
			output: "XSCALE.LP",
		},
	)
}

// exportFromDIALS converts DIALS integrated data for a non-DIALS scaler. It is skipped when another program
// integrated the sweep.
func exportFromDIALS(args ...string) step {
	return step{
		executable: "dials.export",
		args:       static(append([]string{"integrated.expt", "integrated.refl"}, args...)...),
		checks:     dialsChecks,
		skip: func(job *stage.Job) bool {
			record, ok := job.Upstream[stage.Integrater]
			return !ok || record == nil || record.Schema() != "dials.integrate"
		},
	}
}
