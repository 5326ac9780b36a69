package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xia2/xia2-go/internal/config"
	"github.com/xia2/xia2-go/internal/stage"
)

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(dir, 0o755))

	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
}

func TestDiscoverSweeps(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	touch(t, dir,
		"insulin_1_001.img", "insulin_1_002.img", "insulin_1_003.img",
		"insulin_1_010.img", "insulin_1_011.img",
		"insulin_2_001.img",
		"notes.txt",
	)
	touch(t, filepath.Join(dir, "thau"), "thau_0001.cbf.gz", "thau_0002.cbf.gz")

	sweeps, err := config.DiscoverSweeps(filepath.Join(dir, "**", "*"))
	require.NoError(t, err)

	assert.Equal(t, []stage.Sweep{
		{Directory: dir, Template: "insulin_1_###.img", Images: [2]int{1, 3}},
		{Directory: dir, Template: "insulin_1_###.img", Images: [2]int{10, 11}},
		{Directory: dir, Template: "insulin_2_###.img", Images: [2]int{1, 1}},
		{Directory: filepath.Join(dir, "thau"), Template: "thau_####.cbf.gz", Images: [2]int{1, 2}},
	}, sweeps)

	_, err = config.DiscoverSweeps(filepath.Join(dir, "*.h5"))
	require.Error(t, err)
}

func TestLoadProject(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	touch(t, filepath.Join(dir, "images"), "lyso_001.cbf", "lyso_002.cbf")

	path := filepath.Join(dir, "lysozyme.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
sweeps:
  - name: SWEEP2
    template: insulin_1_###.img
    directory: /data/insulin
    images: [1, 45]
    params:
      integrater:
        d_min: 1.6
      indexer:
        cell: 78 78 37 90 90 90
  - glob: images/*.cbf
`), 0o644))

	project, err := config.LoadProject(path)
	require.NoError(t, err)
	assert.Equal(t, "lysozyme", project.Name)

	defs, err := project.Definitions()
	require.NoError(t, err)
	require.Len(t, defs, 2)

	assert.Equal(t, stage.Sweep{Name: "SWEEP2", Template: "insulin_1_###.img", Directory: "/data/insulin", Images: [2]int{1, 45}}, defs[0].Sweep)
	assert.Equal(t, "1.6", defs[0].Params[stage.Integrater]["d_min"])
	assert.Equal(t, "78 78 37 90 90 90", defs[0].Params[stage.Indexer]["cell"])

	assert.Equal(t, stage.Sweep{Name: "SWEEP3", Template: "lyso_###.cbf", Directory: filepath.Join(dir, "images"), Images: [2]int{1, 2}}, defs[1].Sweep)
}

func TestProjectDefinitionsRejects(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		sweeps []config.SweepSpec
	}{
		{"no template", []config.SweepSpec{{Name: "S", Images: []int{1, 2}}}},
		{"bad range", []config.SweepSpec{{Name: "S", Template: "x_###.img", Images: []int{5, 2}}}},
		{"duplicate names", []config.SweepSpec{
			{Name: "S", Template: "x_###.img", Images: []int{1, 2}},
			{Name: "S", Template: "y_###.img", Images: []int{1, 2}},
		}},
		{"unknown stage", []config.SweepSpec{{Name: "S", Template: "x_###.img", Images: []int{1, 2}, Params: map[string]map[string]string{"phaser": {}}}}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			project := &config.ProjectFile{Name: "p", Sweeps: tc.sweeps}

			_, err := project.Definitions()

			var configErr *config.ConfigurationError
			require.ErrorAs(t, err, &configErr)
		})
	}
}

func TestProjectSave(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "xia2.yaml")
	project := &config.ProjectFile{Name: "insulin", Sweeps: []config.SweepSpec{{Name: "SWEEP1", Template: "x_###.img", Images: []int{1, 9}}}}

	require.NoError(t, project.Save(path))

	loaded, err := config.LoadProject(path)
	require.NoError(t, err)
	assert.Equal(t, project.Sweeps, loaded.Sweeps)
}
