package cli

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/MolPrep-Engine/internal/application/prep"
	"github.com/turtacn/MolPrep-Engine/internal/config"
	"github.com/turtacn/MolPrep-Engine/internal/infrastructure/monitoring/logging"
	mtypes "github.com/turtacn/MolPrep-Engine/pkg/types/molecule"
)

func TestPrepare_TextOutput(t *testing.T) {
	cfg := writeTestConfig(t, "conformers:\n  seed: 42\n")

	out, err := runCLI(t, "--config", cfg, "prepare", "CCO")
	require.NoError(t, err)

	assert.Contains(t, out, "CCO: prepared")
	assert.Contains(t, out, "(1 conformers)")
	assert.Contains(t, out, "1 prepared, 0 discarded (1 total)")
}

func TestPrepare_JSONOutput(t *testing.T) {
	cfg := writeTestConfig(t, "conformers:\n  seed: 42\n")

	out, err := runCLI(t, "--config", cfg, "--output", "json", "prepare", "CCO")
	require.NoError(t, err)

	var result prep.BatchResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, 1, result.Prepared)
	require.Len(t, result.Results, 1)
	require.NotNil(t, result.Results[0].Molecule)
	assert.Equal(t, "CCO", result.Results[0].Molecule.CanonicalSmiles)
}

func TestPrepare_ConformerFlagOverridesConfig(t *testing.T) {
	cfg := writeTestConfig(t, "conformers:\n  target_count: 1\n  seed: 42\n")

	out, err := runCLI(t, "--config", cfg, "prepare", "--conformers", "3", "CCO")
	require.NoError(t, err)
	assert.Contains(t, out, "(3 conformers)")
}

func TestPrepare_InputFile(t *testing.T) {
	cfg := writeTestConfig(t, "conformers:\n  seed: 42\n")

	smi := filepath.Join(t.TempDir(), "ligands.smi")
	content := "# screening set\nCCO\tethanol\n\nC(not a notation\tbroken\n"
	require.NoError(t, os.WriteFile(smi, []byte(content), 0o600))

	out, err := runCLI(t, "--config", cfg, "prepare", "--input", smi)
	require.NoError(t, err)

	assert.Contains(t, out, "ethanol: prepared")
	assert.Contains(t, out, "broken: unparseable, discarded")
	assert.Contains(t, out, "1 prepared, 1 discarded (2 total)")
}

func TestPrepare_NoInputsFails(t *testing.T) {
	cfg := writeTestConfig(t, "")

	_, err := runCLI(t, "--config", cfg, "prepare")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no notations")
}

func TestPrepare_MetricsEnabled(t *testing.T) {
	cfg := writeTestConfig(t, "conformers:\n  seed: 42\nmetrics:\n  enabled: true\n  addr: 127.0.0.1:0\n")

	out, err := runCLI(t, "--config", cfg, "prepare", "CCO")
	require.NoError(t, err)
	assert.Contains(t, out, "1 prepared, 0 discarded (1 total)")
}

func TestBuildMetrics_Disabled(t *testing.T) {
	metrics, handler, err := buildMetrics(config.MetricsConfig{}, logging.NewNopLogger())
	require.NoError(t, err)
	assert.Nil(t, metrics)
	assert.Nil(t, handler)
}

func TestBuildMetrics_ServesPipelineCounters(t *testing.T) {
	metrics, handler, err := buildMetrics(config.MetricsConfig{
		Enabled:   true,
		Namespace: "molprep",
	}, logging.NewNopLogger())
	require.NoError(t, err)
	require.NotNil(t, metrics)
	require.NotNil(t, handler)

	metrics.MoleculesProcessedTotal.WithLabelValues("prepared").Inc()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `molprep_molecules_processed_total{outcome="prepared"} 1`)
}

func TestCollectInputs(t *testing.T) {
	smi := filepath.Join(t.TempDir(), "in.smi")
	require.NoError(t, os.WriteFile(smi, []byte("CCO\tethanol\n# skip\n\nCC(=O)O\n"), 0o600))

	inputs, err := collectInputs([]string{"CN(C)C"}, smi)
	require.NoError(t, err)
	require.Len(t, inputs, 3)

	assert.Equal(t, prep.Input{Notation: "CN(C)C"}, inputs[0])
	assert.Equal(t, prep.Input{Notation: "CCO", Name: "ethanol"}, inputs[1])
	assert.Equal(t, prep.Input{Notation: "CC(=O)O"}, inputs[2])
}

func TestCollectInputs_MissingFile(t *testing.T) {
	_, err := collectInputs(nil, "/nonexistent.smi")
	assert.Error(t, err)
}

func TestFormatResultLine(t *testing.T) {
	res := &mtypes.PrepResult{
		Input:    "CCO.[Na+]",
		Name:     "ethanol salt",
		Outcomes: []mtypes.PrepOutcome{mtypes.OutcomeDesalted, mtypes.OutcomePrepared},
		Molecule: &mtypes.MoleculeDTO{CanonicalSmiles: "CCO"},
	}

	line := formatResultLine(0, res)
	assert.Contains(t, line, "ethanol salt: desalted, prepared")
	assert.Contains(t, line, "CCO (0 conformers)")
}

func TestFormatResultLine_Error(t *testing.T) {
	res := &mtypes.PrepResult{
		Input:    "C(not a notation",
		Outcomes: []mtypes.PrepOutcome{mtypes.OutcomeUnparseable, mtypes.OutcomeDiscarded},
		Error:    "unbalanced parenthesis",
	}

	line := formatResultLine(3, res)
	assert.Contains(t, line, "[3] C(not a notation: unparseable, discarded")
	assert.Contains(t, line, "error: unbalanced parenthesis")
}
