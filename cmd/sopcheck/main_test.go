package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/gautam1sharma/sopcompliance"
	"github.com/gautam1sharma/sopcompliance/ai/mock"
	"github.com/gautam1sharma/sopcompliance/config"
	"github.com/gautam1sharma/sopcompliance/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

const sopDocument = "The information security policy is approved by management and published to all staff. " +
	"Management reviews the security policy annually and after significant changes. " +
	"All employees complete security awareness training during onboarding. " +
	"Background screening is performed for every new employee before employment starts."

const catalogJSON = `{
  "metadata": {"standard": "test"},
  "5.1": {"name": "Information security policies", "keywords": ["policy"]},
  "6.1": {"name": "Screening", "keywords": ["screening"]}
}`

type cliEnv struct {
	dir     string
	config  string
	out     *bytes.Buffer
	errOut  *bytes.Buffer
	backend string
}

func newCLIEnv(t *testing.T, backend string) *cliEnv {
	t.Helper()
	color.NoColor = true
	extraOptions = []sopcompliance.Option{sopcompliance.WithProvider(mock.NewMockProvider())}
	t.Cleanup(func() { extraOptions = nil })

	dir := t.TempDir()
	catalogPath := filepath.Join(dir, "controls.json")
	require.NoError(t, os.WriteFile(catalogPath, []byte(catalogJSON), 0o600))

	cfg := config.Default()
	cfg.Catalog.Path = catalogPath
	cfg.Cache.Backend = backend
	cfg.Cache.Path = filepath.Join(dir, "cache")
	configPath := filepath.Join(dir, "sopcheck.yaml")
	require.NoError(t, config.Save(configPath, cfg))

	return &cliEnv{dir: dir, config: configPath, out: &bytes.Buffer{}, errOut: &bytes.Buffer{}, backend: backend}
}

func (e *cliEnv) run(args ...string) error {
	app := newApp()
	app.Writer = e.out
	app.ErrWriter = e.errOut
	full := append([]string{"sopcheck", "--config", e.config, "--env-file", filepath.Join(e.dir, "missing.env")}, args...)
	return app.Run(full)
}

func (e *cliEnv) writeDoc(t *testing.T, name, text string) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(text), 0o600))
	return path
}

func TestSetupLogger(t *testing.T) {
	defer slog.SetDefault(slog.Default())

	for _, level := range []string{"debug", "INFO", "warn", "error"} {
		app := &cli.App{
			Flags:  []cli.Flag{&cli.StringFlag{Name: "log-level", Value: level}},
			Action: setupLogger,
		}
		assert.NoError(t, app.Run([]string{"test"}), level)
	}

	app := &cli.App{
		Flags:  []cli.Flag{&cli.StringFlag{Name: "log-level", Value: "verbose"}},
		Action: setupLogger,
	}
	err := app.Run([]string{"test"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestLoadEnv(t *testing.T) {
	assert.NoError(t, loadEnv(""))
	assert.NoError(t, loadEnv(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("SOPCHECK_TEST_TOKEN=abc123\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("SOPCHECK_TEST_TOKEN") })
	require.NoError(t, loadEnv(path))
	assert.Equal(t, "abc123", os.Getenv("SOPCHECK_TEST_TOKEN"))
}

func TestAnalyzeCommand(t *testing.T) {
	t.Run("text output", func(t *testing.T) {
		env := newCLIEnv(t, config.BackendMemory)
		doc := env.writeDoc(t, "sop.txt", sopDocument)

		require.NoError(t, env.run("analyze", "--evidence", doc))
		out := env.out.String()
		assert.Contains(t, out, "sop.txt")
		assert.Contains(t, out, "Compliance score:")
		assert.Contains(t, out, "5.1")
		assert.Contains(t, out, "6.1")
		assert.Contains(t, out, "method composite")
	})

	t.Run("json output", func(t *testing.T) {
		env := newCLIEnv(t, config.BackendBadger)
		doc := env.writeDoc(t, "sop.txt", sopDocument)

		require.NoError(t, env.run("analyze", "--format", "json", doc))
		var rep core.ComplianceReport
		require.NoError(t, json.Unmarshal(env.out.Bytes(), &rep))
		assert.Equal(t, 2, rep.Summary.TotalControls)
		assert.Equal(t, "composite", rep.Method)
		assert.Equal(t, "5.1", rep.Results[0].ControlID)
	})

	t.Run("empty document", func(t *testing.T) {
		env := newCLIEnv(t, config.BackendMemory)
		doc := env.writeDoc(t, "empty.txt", "CONFIDENTIAL\n")

		require.NoError(t, env.run("analyze", doc))
		assert.Contains(t, env.out.String(), "no analyzable content")
	})

	t.Run("requires a document", func(t *testing.T) {
		env := newCLIEnv(t, config.BackendMemory)
		err := env.run("analyze")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "at least one document")
	})

	t.Run("missing document", func(t *testing.T) {
		env := newCLIEnv(t, config.BackendMemory)
		err := env.run("analyze", filepath.Join(env.dir, "nope.txt"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read document")
	})

	t.Run("invalid format", func(t *testing.T) {
		env := newCLIEnv(t, config.BackendMemory)
		doc := env.writeDoc(t, "sop.txt", sopDocument)
		err := env.run("analyze", "--format", "pdf", doc)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid format")
	})

	t.Run("invalid keyword policy", func(t *testing.T) {
		env := newCLIEnv(t, config.BackendMemory)
		doc := env.writeDoc(t, "sop.txt", sopDocument)
		err := env.run("analyze", "--keyword-policy", "maybe", doc)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid configuration")
	})
}

func TestPrecacheCommand(t *testing.T) {
	env := newCLIEnv(t, config.BackendBadger)

	require.NoError(t, env.run("precache"))
	assert.Contains(t, env.out.String(), "Cached 2 controls from controls catalog")
	assert.Contains(t, env.out.String(), "Catalog fingerprint:")

	env.out.Reset()
	require.NoError(t, env.run("precache", "--catalog", filepath.Join(env.dir, "missing.json")))
	assert.Contains(t, env.out.String(), "from fallback catalog")
}

func TestCacheCommands(t *testing.T) {
	env := newCLIEnv(t, config.BackendBadger)
	require.NoError(t, env.run("precache"))

	env.out.Reset()
	require.NoError(t, env.run("cache-stats"))
	assert.Contains(t, env.out.String(), "Durable entries:")
	assert.NotContains(t, env.out.String(), "Durable entries:  0\n")

	env.out.Reset()
	require.NoError(t, env.run("cache-cleanup", "--gc"))
	assert.Contains(t, env.out.String(), "Removed 0 expired cache entries")
	assert.Contains(t, env.out.String(), "Compacted durable store")

	env.out.Reset()
	require.NoError(t, env.run("cache-cleanup", "--all"))
	assert.Contains(t, env.out.String(), "Removed every cache entry")

	env.out.Reset()
	require.NoError(t, env.run("cache-stats"))
	assert.Contains(t, env.out.String(), "Durable entries:  0\n")
}

func TestCacheCleanup_MemoryBackend(t *testing.T) {
	env := newCLIEnv(t, config.BackendMemory)
	require.NoError(t, env.run("cache-cleanup", "--gc"))
	assert.Contains(t, env.out.String(), "does not need compaction")
}

func TestPrintReport(t *testing.T) {
	color.NoColor = true
	rep := &core.ComplianceReport{
		ComplianceScore: 50,
		Summary:         core.Summary{TotalControls: 2, MatchedControls: 1, HighConfidence: 1, NonCompliant: 1},
		Results: []core.ScoreResult{
			{ControlID: "5.1", Name: "Policies", Score: 0.7, Band: core.BandHigh, Status: "High Confidence", Evidence: []string{"policy text"}},
			{ControlID: "6.1", Name: "Screening", Band: core.BandNone, Status: "Non-compliant"},
		},
		Method:           "composite",
		AnalyzableChunks: 3,
	}

	var buf bytes.Buffer
	printReport(&buf, "doc.txt", rep, true)
	out := buf.String()
	assert.Contains(t, out, "Compliance score: 50.0% (1 of 2 controls matched, method composite)")
	assert.Contains(t, out, "High: 1  Medium: 0  Low: 0  Non-compliant: 1")
	assert.Contains(t, out, "> policy text")
	assert.NotContains(t, out, "no analyzable content")
}
