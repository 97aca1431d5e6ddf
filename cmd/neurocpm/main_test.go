package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/neurocpm/brainmodel"
	"github.com/YuminosukeSato/neurocpm/core/model"
	"github.com/YuminosukeSato/neurocpm/cpm"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// writeInputs writes four edges over five subjects: edges 0-1 track the
// response, edges 2-3 mirror it.
func writeInputs(t *testing.T, dir string) (features, response string) {
	features = writeFile(t, dir, "features.csv", ""+
		"1.001,1.998,3.0015,3.9995,5.001\n"+
		"0.999,2.0005,3.002,3.9985,5.0005\n"+
		"-0.9995,-1.999,-3.001,-3.998,-5.0015\n"+
		"-1.002,-1.9985,-2.9995,-4.001,-4.999\n")
	response = writeFile(t, dir, "response.csv", "1\n2\n3\n4\n5\n")
	return features, response
}

func TestRunReportsErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "missing input files",
			args: []string{"predict", "--features", "/nonexistent/features.csv", "--response", "/nonexistent/response.csv"},
			want: "/nonexistent/features.csv",
		},
		{
			name: "no inputs",
			args: []string{"predict"},
			want: "both input files are required",
		},
		{
			name: "unknown command",
			args: []string{"fit"},
			want: "unknown command",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out, errOut bytes.Buffer
			code := run(context.Background(), append(tt.args, "--log-level", "error"), &out, &errOut)
			assert.Equal(t, 1, code)
			assert.Contains(t, errOut.String(), "neurocpm: ")
			assert.Contains(t, errOut.String(), tt.want)
		})
	}
}

func TestRunShapeMismatchIsVisible(t *testing.T) {
	dir := t.TempDir()
	features, _ := writeInputs(t, dir)
	short := writeFile(t, dir, "short.csv", "1\n2\n3\n")

	var out, errOut bytes.Buffer
	code := run(context.Background(),
		[]string{"predict", "--features", features, "--response", short, "--log-level", "error"}, &out, &errOut)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut.String(), "shape mismatch")
}

func TestRunSuccess(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run(context.Background(), []string{"version"}, &out, &errOut)
	assert.Equal(t, 0, code)
	assert.Equal(t, "neurocpm dev\n", out.String())
	assert.Empty(t, errOut.String())
}

func TestShutdownSignals(t *testing.T) {
	assert.Contains(t, shutdownSignals, os.Signal(syscall.SIGINT))
	assert.Contains(t, shutdownSignals, os.Signal(syscall.SIGTERM))
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "neurocpm dev\n", out)
}

func TestPredict(t *testing.T) {
	dir := t.TempDir()
	features, response := writeInputs(t, dir)
	outPath := filepath.Join(dir, "result.json")
	plotPath := filepath.Join(dir, "scatter.png")

	out, err := execute(t, "predict",
		"--features", features,
		"--response", response,
		"--workers", "2",
		"--out", outPath,
		"--plot", plotPath,
		"--log-level", "error",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "fallback folds 0")

	var res cpm.Result
	require.NoError(t, model.LoadJSON(&res, outPath))
	assert.Greater(t, res.R, 0.9)
	assert.Len(t, res.Predictions, 5)
	assert.Equal(t, []int{0, 1}, res.ConsensusEdges())

	png, err := os.ReadFile(plotPath)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))
}

func TestPredictConfigFile(t *testing.T) {
	dir := t.TempDir()
	features, response := writeInputs(t, dir)
	outPath := filepath.Join(dir, "result.json")
	cfg := writeFile(t, dir, "cpm.yaml", ""+
		"predict:\n"+
		"  features: "+features+"\n"+
		"  response: "+response+"\n"+
		"  threshold: 0.5\n"+
		"  aggregate: mean\n"+
		"  out: "+outPath+"\n")

	_, err := execute(t, "predict", "--config", cfg, "--log-level", "error")
	require.NoError(t, err)
	var res cpm.Result
	require.NoError(t, model.LoadJSON(&res, outPath))
	assert.Equal(t, 0.5, res.Threshold)
	assert.Equal(t, "mean", res.Aggregation)

	_, err = execute(t, "predict", "--config", cfg, "--threshold", "0.02", "--log-level", "error")
	require.NoError(t, err)
	require.NoError(t, model.LoadJSON(&res, outPath))
	assert.Equal(t, 0.02, res.Threshold, "flags override the file")
}

func TestPredictMetricsServer(t *testing.T) {
	dir := t.TempDir()
	features, response := writeInputs(t, dir)

	_, err := execute(t, "predict",
		"--features", features,
		"--response", response,
		"--metrics-addr", "127.0.0.1:0",
		"--log-level", "error",
	)
	require.NoError(t, err)
}

func TestPredictErrors(t *testing.T) {
	dir := t.TempDir()
	features, response := writeInputs(t, dir)
	short := writeFile(t, dir, "short.csv", "1\n2\n3\n")

	_, err := execute(t, "predict", "--log-level", "error")
	assert.Error(t, err, "inputs are required")

	_, err = execute(t, "predict", "--features", features, "--response", short, "--log-level", "error")
	assert.Error(t, err)

	_, err = execute(t, "predict", "--features", features, "--response", response, "--aggregate", "median", "--log-level", "error")
	assert.Error(t, err)

	_, err = execute(t, "predict", "--features", features, "--response", response, "--log-level", "loud")
	assert.Error(t, err)
}

func TestSynthesize(t *testing.T) {
	dir := t.TempDir()
	sc := writeFile(t, dir, "sc.csv", "0,1,0.5\n1,0,1\n0.5,1,0\n")
	fc := writeFile(t, dir, "fc.csv", "0.3,0.5\n0.2,0.4\n0.35,0.6\n")
	outDir := filepath.Join(dir, "synth")
	plotPath := filepath.Join(dir, "diag.png")

	out, err := execute(t, "synthesize",
		"--fc", fc,
		"--sc", sc,
		"--n", "2",
		"--seconds", "5",
		"--duration-ms", "20000",
		"--init-points", "2",
		"--n-iter", "1",
		"--out-dir", outDir,
		"--plot", plotPath,
		"--log-level", "error",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote 2 synthetic subjects")

	for _, name := range []string{"synthetic_001.csv", "synthetic_002.csv", "synthesis.json"} {
		_, err := os.Stat(filepath.Join(outDir, name))
		assert.NoError(t, err, name)
	}
	var syn brainmodel.Synthesis
	require.NoError(t, model.LoadJSON(&syn, filepath.Join(outDir, "synthesis.json")))
	assert.Len(t, syn.FittedG, 2)
	assert.Len(t, syn.SampledG, 2)

	png, err := os.ReadFile(plotPath)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))
}

func TestSynthesizeHCPDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "sub001_DTI_fibers_HCP.csv", "0,2,0\n2,0,1\n0,1,0\n")
	writeFile(t, dir, "sub002_DTI_fibers_HCP.csv", "0,0,1\n0,0,3\n1,3,0\n")

	sc, err := loadStructural(&synthesizeOptions{HCPDir: dir, Subjects: "1, 2"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, sc.At(0, 1))
	assert.Equal(t, 0.5, sc.At(0, 2))
	assert.Equal(t, 2.0, sc.At(1, 2))

	_, err = loadStructural(&synthesizeOptions{})
	assert.Error(t, err)
}

func TestParseSubjects(t *testing.T) {
	ids, err := parseSubjects("")
	require.NoError(t, err)
	assert.Nil(t, ids)

	ids, err = parseSubjects("3,1, 10")
	require.NoError(t, err)
	assert.Equal(t, []int{3, 1, 10}, ids)

	_, err = parseSubjects("1,x")
	assert.Error(t, err)
	_, err = parseSubjects("0")
	assert.Error(t, err)
}
