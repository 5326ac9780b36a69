package stages

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xia2/xia2-go/internal/decorator"
	"github.com/xia2/xia2-go/internal/logparse"
	"github.com/xia2/xia2-go/internal/stage"
)

func mosflmIntegrater() stage.Constructor {
	return newProgram(stage.IntegraterMosflmR,
		stage.Requirement{Executables: []string{"ipmosflm"}, EnvVars: []string{"CCP4"}},
		logparse.Schema{
			Name:    "mosflm.integrate",
			Markers: []string{"Integration completed"},
			Fields: []logparse.Field{
				{Name: ParamCell, Marker: "Final cell (after refinement)", Kind: logparse.Tuple, Tokens: logparse.Rest(4), Last: true, Optional: true},
				{Name: "integrated", Marker: "Total number of reflections integrated", Kind: logparse.Number, Tokens: logparse.Rest(5), Last: true},
			},
		},
		step{
			executable: "ipmosflm",
			stdin: func(job *stage.Job) ([]string, error) {
				cell, err := upstreamCell(job)
				if err != nil {
					return nil, err
				}

				lines := []string{
					"TEMPLATE " + job.Sweep.Template,
					"DIRECTORY " + job.Sweep.Directory,
					"CELL " + formatNumbers(cell, " "),
				}

				if record, ok := job.Upstream[stage.Indexer]; ok && record != nil && record.Has(ParamSpaceGroup) {
					if spaceGroup, err := record.String(ParamSpaceGroup); err == nil {
						lines = append(lines, "SYMMETRY "+strings.ReplaceAll(spaceGroup, " ", ""))
					}
				}

				if dMin, ok := param(job, ParamDMin); ok {
					lines = append(lines, "RESOLUTION "+dMin)
				}

				lines = append(lines,
					"PROCESS "+strconv.Itoa(job.Sweep.Images[0])+" TO "+strconv.Itoa(job.Sweep.Images[1]),
					"GO",
				)

				return lines, nil
			},
			ccp4: func(_ *stage.Job, ccp4 *decorator.CCP4) error {
				ccp4.SetHklout("integrated.mtz")
				return nil
			},
		},
	)
}

func aimlessScaler() stage.Constructor {
	return newProgram(stage.ScalerCCP4A,
		stage.Requirement{Executables: []string{"aimless"}, EnvVars: []string{"CCP4"}},
		logparse.Schema{
			Name:    "aimless",
			Markers: []string{"Summary data for"},
			Fields:  scalerFields,
		},
		exportFromDIALS("format=mtz", "mtz.hklout=integrated.mtz"),
		step{
			executable: "aimless",
			stdin: func(job *stage.Job) ([]string, error) {
				lines := []string{"bins 20", "anomalous off"}

				if dMin, ok := param(job, ParamDMin); ok {
					lines = append(lines, "resolution high "+dMin)
				}

				return lines, nil
			},
			ccp4: func(job *stage.Job, ccp4 *decorator.CCP4) error {
				ccp4.SetHklin(filepath.Join(job.WorkingDir, "integrated.mtz"))
				ccp4.SetHklout(filepath.Join(job.WorkingDir, "scaled.mtz"))

				if err := ccp4.CheckHklin(); err != nil {
					return err
				}

				return ccp4.CheckHklout()
			},
			ccp4Status: true,
		},
	)
}
