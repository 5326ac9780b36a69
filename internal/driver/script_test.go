package driver_test

import (
	"strings"
	"testing"

	"github.com/kballard/go-shellquote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xia2/xia2-go/internal/driver"
)

func TestScriptRender(t *testing.T) {
	t.Parallel()

	script := driver.Script{
		Name:        "Jxds_par",
		Dir:         "/data/work dir",
		Executable:  "xds_par",
		Args:        []string{"-v", "it's"},
		Stdin:       []string{"JOB= XYCORR", "$NOT_EXPANDED"},
		Env:         []driver.EnvChange{{Name: "OMP_NUM_THREADS", Value: "4"}, {Name: "PATH", Value: "/opt/xds", Prepend: true}},
		ScratchDirs: []string{"scratch"},
	}

	expected := "#!/bin/bash\n" +
		"export OMP_NUM_THREADS=4\n" +
		"export PATH=/opt/xds${PATH:+:${PATH}}\n" +
		"cd '/data/work dir'\n" +
		"rm -f Jxds_par.xstatus\n" +
		"mkdir -p scratch\n" +
		"xds_par -v it\\'s << 'XIA2_EOF_Jxds_par' > Jxds_par.xout 2>&1\n" +
		"JOB= XYCORR\n" +
		"$NOT_EXPANDED\n" +
		"XIA2_EOF_Jxds_par\n" +
		"echo \"$?\" > Jxds_par.xstatus\n"

	assert.Equal(t, expected, script.Render())
	assert.Equal(t, "/data/work dir/Jxds_par.xout", script.OutputPath())
}

func TestScriptRenderQuoting(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		args []string
	}{
		{name: "plain", args: []string{"-v", "XDS.INP"}},
		{name: "quote and space", args: []string{"it's a file", "x"}},
		{name: "command substitution", args: []string{"$(rm -rf ~)", "`id`"}},
		{name: "separators", args: []string{"a;b", "c|d", "e&f", "g>h"}},
		{name: "empty", args: []string{"", "tail"}},
		{name: "newline", args: []string{"line one\nline two"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			script := driver.Script{Name: "Jprog", Dir: "/tmp", Executable: "prog", Args: tc.args}

			rendered := script.Render()
			start := strings.Index(rendered, "prog ")
			end := strings.Index(rendered, " << ")
			require.GreaterOrEqual(t, start, 0)
			require.Greater(t, end, start)

			words, err := shellquote.Split(rendered[start:end])
			require.NoError(t, err)
			assert.Equal(t, append([]string{"prog"}, tc.args...), words)
		})
	}
}

func TestScriptHeredocDelimiter(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		scriptID  string
		stdin     []string
		delimiter string
	}{
		{name: "derived from name", scriptID: "Jaimless_1a2b3c4d", stdin: []string{"XIA2_EOF"}, delimiter: "XIA2_EOF_Jaimless_1a2b3c4d"},
		{name: "unsafe characters replaced", scriptID: "Jpointless.exe-1", stdin: nil, delimiter: "XIA2_EOF_Jpointless_exe_1"},
		{name: "collision with input", scriptID: "Jmtz", stdin: []string{"XIA2_EOF_Jmtz", "END"}, delimiter: "XIA2_EOF_Jmtz_"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			script := driver.Script{Name: tc.scriptID, Dir: "/tmp", Executable: "prog", Stdin: tc.stdin}

			lines := strings.Split(strings.TrimSuffix(script.Render(), "\n"), "\n")

			var heredoc []string

			for i, line := range lines {
				if strings.HasSuffix(line, "2>&1") {
					assert.Contains(t, line, "<< '"+tc.delimiter+"'")

					for _, body := range lines[i+1:] {
						if body == tc.delimiter {
							break
						}

						heredoc = append(heredoc, body)
					}

					break
				}
			}

			assert.Equal(t, len(tc.stdin), len(heredoc))

			for i := range tc.stdin {
				assert.Equal(t, tc.stdin[i], heredoc[i])
			}
		})
	}
}
