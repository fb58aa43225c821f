package scenario

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const tomlScenario = `
name = "standard transfer"

[vars]
accession = "acc-1"

[[steps]]
name = "start"
action = "start_transfer"
timeout = "10m"
[steps.config]
path = "home/demo"
name = "demo"
accession = "{accession}"

[[steps]]
action = "await_job"
on_error = "continue"
[steps.config]
microservice = "Scan for viruses"
expect_status = "Completed successfully"
`

const yamlScenario = `
name: ingest
steps:
  - action: normalization_report
    config:
      sip_uuid: "{sip_uuid}"
      expect_rows: 2
  - name: mets
    action: get_mets
`

func TestLoad_TOML(t *testing.T) {
	sc, err := Load(writeFile(t, "standard.toml", tomlScenario))
	require.NoError(t, err)

	assert.Equal(t, "standard transfer", sc.Name)
	assert.Equal(t, map[string]string{"accession": "acc-1"}, sc.Vars)
	require.Len(t, sc.Steps, 2)

	assert.Equal(t, "start", sc.Steps[0].Label())
	assert.Equal(t, "{accession}", sc.Steps[0].Config["accession"])
	assert.Equal(t, "10m", sc.Steps[0].Timeout)

	assert.Equal(t, "await_job", sc.Steps[1].Label())
	assert.Equal(t, OnErrorContinue, sc.Steps[1].OnError)
}

func TestLoad_YAML(t *testing.T) {
	sc, err := Load(writeFile(t, "ingest.yml", yamlScenario))
	require.NoError(t, err)

	require.Len(t, sc.Steps, 2)
	assert.Equal(t, "normalization_report", sc.Steps[0].Action)
	assert.Equal(t, 2, sc.Steps[0].Config["expect_rows"])
	assert.Equal(t, "mets", sc.Steps[1].Label())
}

func TestLoad_NameDefaultsToFileName(t *testing.T) {
	sc, err := Load(writeFile(t, "smoke.toml", "[[steps]]\naction = \"remove_all\"\n"))
	require.NoError(t, err)
	assert.Equal(t, "smoke", sc.Name)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"no steps", "empty.toml", `name = "empty"`},
		{"step without action", "bad.toml", "name = \"x\"\n[[steps]]\nname = \"nothing\"\n"},
		{"unknown on_error", "bad.toml", "name = \"x\"\n[[steps]]\naction = \"remove_all\"\non_error = \"retry\"\n"},
		{"bad timeout", "bad.toml", "name = \"x\"\n[[steps]]\naction = \"remove_all\"\ntimeout = \"soon\"\n"},
		{"unknown yaml field", "bad.yaml", "name: x\nsteps:\n  - action: remove_all\n    retries: 3\n"},
		{"unsupported format", "scenario.json", `{"name": "x"}`},
		{"malformed toml", "bad.toml", "name = \n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.file, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestLoad_ShippedScenarios(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("..", "..", "scenarios", "*"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	runner := NewRunner(nil, arbor.NewLogger())
	known := make(map[string]bool)
	for _, name := range runner.Actions() {
		known[name] = true
	}
	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			sc, err := Load(path)
			require.NoError(t, err)
			for _, step := range sc.Steps {
				assert.True(t, known[step.Action], "unknown action %q", step.Action)
			}
		})
	}
}
