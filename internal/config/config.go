// Package config loads the xia2 settings. Values come, in increasing precedence, from the defaults, the xia2.hcl
// file, XIA2_* environment variables and command line flags; the last two are both read through the CLI flags.
package config

import (
	"os"
	"path/filepath"
	"reflect"

	"dario.cat/mergo"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"

	"github.com/xia2/xia2-go/internal/errors"
	"github.com/xia2/xia2-go/internal/util"
)

const (
	// DefaultConfigFilename is looked up in the working directory, then in the user config directories.
	DefaultConfigFilename = "xia2.hcl"
	ConfigXDGDir          = "xia2"
)

// Layer is one source of settings. Nil fields are unset and leave lower layers alone.
type Layer struct {
	Pipeline    *string           `hcl:"pipeline,optional"`
	Preferences *PreferencesLayer `hcl:"preferences,block"`
	Driver      *DriverLayer      `hcl:"driver,block"`
	MaxRetries  *int              `hcl:"max_retries,optional"`
	NJob        *int              `hcl:"njob,optional"`
	NProc       *int              `hcl:"nproc,optional"`
	WorkingDir  *string           `hcl:"working_dir,optional"`
	Project     *string           `hcl:"project,optional"`
	LogLevel    *string           `hcl:"log_level,optional"`
}

// PreferencesLayer names a candidate per stage.
type PreferencesLayer struct {
	Indexer    *string `hcl:"indexer,optional"`
	Refiner    *string `hcl:"refiner,optional"`
	Integrater *string `hcl:"integrater,optional"`
	Scaler     *string `hcl:"scaler,optional"`
}

// DriverLayer is the `driver` block.
type DriverLayer struct {
	Type         *string `hcl:"type,optional"`
	QsubCommand  *string `hcl:"qsub_command,optional"`
	PollInterval *string `hcl:"poll_interval,optional"`
	Timeout      *string `hcl:"timeout,optional"`
	KeepJobFiles *bool   `hcl:"keep_job_files,optional"`
}

// LoadFile parses an xia2.hcl file. Relative paths in it are taken relative to the file.
func LoadFile(path string) (*Layer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(NewFileReadError(path, err))
	}

	return Parse(data, path)
}

// Parse decodes the HCL document data, read from filename.
func Parse(data []byte, filename string) (*Layer, error) {
	file, diags := hclparse.NewParser().ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, errors.New(NewDecodeError(filename, diags))
	}

	layer := &Layer{}
	if diags := gohcl.DecodeBody(file.Body, evalContext(), layer); diags.HasErrors() {
		return nil, errors.New(NewDecodeError(filename, diags))
	}

	base := filepath.Dir(filename)

	for _, path := range []*string{layer.WorkingDir, layer.Project} {
		if path == nil {
			continue
		}

		expanded, err := util.ExpandPath(*path, base)
		if err != nil {
			return nil, errors.New(NewDecodeError(filename, err))
		}

		*path = expanded
	}

	return layer, nil
}

// Merge returns the layers combined, later layers taking precedence over earlier ones.
func Merge(layers ...*Layer) (*Layer, error) {
	merged := &Layer{}

	for _, layer := range layers {
		if layer == nil {
			continue
		}

		if err := mergo.Merge(merged, clonedLayer(layer), mergo.WithOverride, mergo.WithTransformers(setValues{})); err != nil {
			return nil, errors.New(err)
		}
	}

	return merged, nil
}

// Discover returns the first xia2.hcl in workingDir or the user config directories, or "" when there is none.
func Discover(workingDir string) (string, error) {
	dirs := []string{workingDir}

	configDirs, err := ConfigDirs()
	if err != nil {
		return "", err
	}

	dirs = append(dirs, configDirs...)

	for _, dir := range dirs {
		path := filepath.Join(dir, DefaultConfigFilename)

		if util.FileExists(path) {
			return path, nil
		}
	}

	return "", nil
}

// ConfigDirs returns the user config directories searched by Discover.
func ConfigDirs() ([]string, error) {
	home, err := util.ExpandPath("~", "")
	if err != nil {
		return nil, err
	}

	dirs := []string{filepath.Join(home, ".config", ConfigXDGDir)}

	if xdgDir := os.Getenv("XDG_CONFIG_HOME"); xdgDir != "" {
		dirs = append([]string{filepath.Join(xdgDir, ConfigXDGDir)}, dirs...)
	}

	return dirs, nil
}

// setValues makes a set scalar override a lower layer even when it holds the zero value, such as `max_retries = 0`.
type setValues struct{}

func (setValues) Transformer(typ reflect.Type) func(dst, src reflect.Value) error {
	if typ.Kind() != reflect.Ptr || typ.Elem().Kind() == reflect.Struct {
		return nil
	}

	return func(dst, src reflect.Value) error {
		if dst.CanSet() && !src.IsNil() {
			dst.Set(src)
		}

		return nil
	}
}

// clonedLayer copies the blocks of layer, so merging never writes through to a layer's own blocks.
func clonedLayer(layer *Layer) *Layer {
	clone := *layer

	if layer.Preferences != nil {
		prefs := *layer.Preferences
		clone.Preferences = &prefs
	}

	if layer.Driver != nil {
		drv := *layer.Driver
		clone.Driver = &drv
	}

	return &clone
}

// evalContext offers get_env(name, default) to configuration files.
func evalContext() *hcl.EvalContext {
	return &hcl.EvalContext{
		Functions: map[string]function.Function{
			"get_env": function.New(&function.Spec{
				Params: []function.Parameter{{Name: "name", Type: cty.String}},
				VarParam: &function.Parameter{
					Name: "default",
					Type: cty.String,
				},
				Type: function.StaticReturnType(cty.String),
				Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
					if value, ok := os.LookupEnv(args[0].AsString()); ok {
						return cty.StringVal(value), nil
					}

					if len(args) > 1 {
						return args[1], nil
					}

					return cty.StringVal(""), nil
				},
			}),
		},
	}
}
