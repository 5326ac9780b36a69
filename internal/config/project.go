package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/mattn/go-zglob"
	"gopkg.in/yaml.v3"

	"github.com/xia2/xia2-go/internal/errors"
	"github.com/xia2/xia2-go/internal/stage"
	"github.com/xia2/xia2-go/internal/util"
)

// ProjectFile lists the sweeps of a project, written by hand or by a previous run.
//
//	name: insulin
//	sweeps:
//	  - name: SWEEP1
//	    template: insulin_1_###.img
//	    directory: /data/insulin
//	    images: [1, 45]
//	    params:
//	      integrater:
//	        d_min: 1.6
//	  - glob: /data/thaumatin/*.cbf
type ProjectFile struct {
	Name   string      `yaml:"name"`
	Sweeps []SweepSpec `yaml:"sweeps"`
	// base is the directory relative paths are resolved against.
	base string
}

// SweepSpec describes a sweep, or a set of sweeps discovered from image files matching Glob.
type SweepSpec struct {
	Name      string                       `yaml:"name,omitempty"`
	Template  string                       `yaml:"template,omitempty"`
	Directory string                       `yaml:"directory,omitempty"`
	Images    []int                        `yaml:"images,omitempty,flow"`
	Glob      string                       `yaml:"glob,omitempty"`
	Params    map[string]map[string]string `yaml:"params,omitempty"`
}

// SweepDefinition is a sweep ready to be registered, with the stage parameters it starts with.
type SweepDefinition struct {
	Sweep  stage.Sweep
	Params map[stage.Kind]map[string]string
}

// LoadProject reads a project file.
func LoadProject(path string) (*ProjectFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(NewFileReadError(path, err))
	}

	project := &ProjectFile{}
	if err := yaml.Unmarshal(data, project); err != nil {
		return nil, errors.New(NewDecodeError(path, err))
	}

	abs, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, errors.New(err)
	}

	project.base = abs

	if project.Name == "" {
		project.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	return project, nil
}

// Save writes the project file.
func (project *ProjectFile) Save(path string) error {
	data, err := yaml.Marshal(project)
	if err != nil {
		return errors.New(err)
	}

	return util.WriteFileAtomic(path, data, 0o644)
}

// Definitions expands globs into sweeps and checks every sweep is complete. Sweep names are unique; discovered
// sweeps are named SWEEP<n> after the highest numbered sweep so far.
func (project *ProjectFile) Definitions() ([]SweepDefinition, error) {
	var (
		defs     []SweepDefinition
		problems []string
	)

	for i, spec := range project.Sweeps {
		params, err := parseParams(spec.Params)
		if err != nil {
			problems = append(problems, fmt.Sprintf("sweep %d: %v", i+1, err))
			continue
		}

		if spec.Glob != "" {
			pattern, err := util.ExpandPath(spec.Glob, project.base)
			if err != nil {
				return nil, err
			}

			sweeps, err := DiscoverSweeps(pattern)
			if err != nil {
				problems = append(problems, fmt.Sprintf("sweep %d: %v", i+1, err))
				continue
			}

			for _, sweep := range sweeps {
				defs = append(defs, SweepDefinition{Sweep: sweep, Params: params})
			}

			continue
		}

		sweep := stage.Sweep{Name: spec.Name, Template: spec.Template, Directory: spec.Directory}

		if sweep.Directory != "" {
			dir, err := util.ExpandPath(sweep.Directory, project.base)
			if err != nil {
				return nil, err
			}

			sweep.Directory = dir
		}

		switch {
		case sweep.Template == "":
			problems = append(problems, fmt.Sprintf("sweep %d: needs a template or a glob", i+1))
			continue
		case len(spec.Images) != 2 || spec.Images[0] < 1 || spec.Images[1] < spec.Images[0]:
			problems = append(problems, fmt.Sprintf("sweep %d: images must be [first, last] with 1 <= first <= last", i+1))
			continue
		}

		sweep.Images = [2]int{spec.Images[0], spec.Images[1]}
		defs = append(defs, SweepDefinition{Sweep: sweep, Params: params})
	}

	if len(problems) > 0 {
		return nil, errors.New(&ConfigurationError{Problems: problems})
	}

	nameSweeps(defs)

	seen := make(map[string]bool, len(defs))

	for _, def := range defs {
		if seen[def.Sweep.Name] {
			problems = append(problems, fmt.Sprintf("sweep name %s used twice", def.Sweep.Name))
		}

		seen[def.Sweep.Name] = true
	}

	if len(problems) > 0 {
		return nil, errors.New(&ConfigurationError{Problems: problems})
	}

	return defs, nil
}

func nameSweeps(defs []SweepDefinition) {
	next := 1

	for _, def := range defs {
		if n, ok := strings.CutPrefix(def.Sweep.Name, "SWEEP"); ok {
			if num, err := strconv.Atoi(n); err == nil && num >= next {
				next = num + 1
			}
		}
	}

	for i := range defs {
		if defs[i].Sweep.Name == "" {
			defs[i].Sweep.Name = "SWEEP" + strconv.Itoa(next)
			next++
		}
	}
}

func parseParams(params map[string]map[string]string) (map[stage.Kind]map[string]string, error) {
	parsed := make(map[stage.Kind]map[string]string, len(params))

	for name, values := range params {
		kind, err := stage.ParseKind(name)
		if err != nil {
			return nil, err
		}

		parsed[kind] = values
	}

	return parsed, nil
}

// imageName splits an image file name into the text before and after its frame number.
var imageName = regexp.MustCompile(`^(.*?)([0-9]+)((?:\.[A-Za-z][A-Za-z0-9]*)*)$`)

// DiscoverSweeps finds the image files matching pattern, which may use `**`, and groups them into sweeps: one
// per template and contiguous run of frame numbers. The sweeps are unnamed.
func DiscoverSweeps(pattern string) ([]stage.Sweep, error) {
	matches, err := zglob.Glob(pattern)
	if err != nil {
		return nil, errors.Errorf("no images match %s: %w", pattern, err)
	}

	frames := make(map[[2]string][]int)

	for _, path := range matches {
		groups := imageName.FindStringSubmatch(filepath.Base(path))
		if groups == nil {
			continue
		}

		frame, err := strconv.Atoi(groups[2])
		if err != nil {
			continue
		}

		template := groups[1] + strings.Repeat("#", len(groups[2])) + groups[3]
		key := [2]string{filepath.Dir(path), template}
		frames[key] = append(frames[key], frame)
	}

	if len(frames) == 0 {
		return nil, errors.Errorf("no images match %s", pattern)
	}

	keys := make([][2]string, 0, len(frames))
	for key := range frames {
		keys = append(keys, key)
	}

	sort.Slice(keys, func(i, j int) bool {
		if keys[i][0] != keys[j][0] {
			return keys[i][0] < keys[j][0]
		}

		return keys[i][1] < keys[j][1]
	})

	var sweeps []stage.Sweep

	for _, key := range keys {
		numbers := frames[key]
		slices.Sort(numbers)
		numbers = slices.Compact(numbers)

		first := numbers[0]

		for i := 1; i <= len(numbers); i++ {
			if i < len(numbers) && numbers[i] == numbers[i-1]+1 {
				continue
			}

			sweeps = append(sweeps, stage.Sweep{
				Directory: key[0],
				Template:  key[1],
				Images:    [2]int{first, numbers[i-1]},
			})

			if i < len(numbers) {
				first = numbers[i]
			}
		}
	}

	return sweeps, nil
}
