package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metalagman/taskflow/internal/config"
	"github.com/metalagman/taskflow/internal/model"
)

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func runCLI(t *testing.T, vaultDir string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--vault", vaultDir}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestInit_WritesDefaultConfig(t *testing.T) {
	dir := t.TempDir()
	out, err := runCLI(t, dir, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "initialized")

	data, err := os.ReadFile(filepath.Join(dir, config.DefaultPath))
	require.NoError(t, err)
	assert.Equal(t, config.DefaultYAML, string(data))
	assert.DirExists(t, filepath.Join(dir, ".taskflow", "locks"))

	// second run keeps an edited config
	writeTestFile(t, filepath.Join(dir, config.DefaultPath), "day_start_hour: 4\n")
	_, err = runCLI(t, dir, "init")
	require.NoError(t, err)
	data, err = os.ReadFile(filepath.Join(dir, config.DefaultPath))
	require.NoError(t, err)
	assert.Equal(t, "day_start_hour: 4\n", string(data))
}

func TestList(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "a.md"), "- [ ] One @2026-01-15\n- [x] Two @2026-01-16\n- [ ] Later @future\n")
	writeTestFile(t, filepath.Join(dir, "Templates", "t.md"), "- [ ] Template @2026-01-15\n")
	writeTestFile(t, filepath.Join(dir, config.DefaultPath), "exclude: [Templates/]\n")

	out, err := runCLI(t, dir, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "a.md:0")
	assert.Contains(t, out, "- [x] Two @2026-01-16")
	assert.NotContains(t, out, "Template")

	out, err = runCLI(t, dir, "list", "--date", "2026-01-15", "--json")
	require.NoError(t, err)
	var tasks []model.Task
	require.NoError(t, json.Unmarshal([]byte(out), &tasks))
	require.Len(t, tasks, 1)
	assert.Equal(t, "One", tasks[0].Content)

	out, err = runCLI(t, dir, "list", "--someday")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, "\n"))
	assert.Contains(t, out, "Later")

	_, err = runCLI(t, dir, "list", "--date", "15/01/2026")
	assert.Error(t, err)
}

func TestCheck(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "ok.md"), "- [ ] Fine @2026-01-15 ==> repeat(weekly)\n")
	out, err := runCLI(t, dir, "check")
	require.NoError(t, err)
	assert.Contains(t, out, "no findings")

	writeTestFile(t, filepath.Join(dir, "bad.md"), "- [ ] Meeting @2026-01-15T10:00>09:00 ==> teleport(home)\n")
	out, err = runCLI(t, dir, "check")
	require.Error(t, err)
	assert.Contains(t, out, "bad.md:0: inverted-range")
	assert.Contains(t, out, "unknown command: teleport")

	_, err = runCLI(t, dir, "check", "ok.md")
	assert.NoError(t, err)
}

func TestDoneAndHistory(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "bills.md"), "- [ ] Pay rent @2026-01-15 ==> repeat(monthly)\n")

	out, err := runCLI(t, dir, "done", "bills.md:0")
	require.NoError(t, err)
	assert.Contains(t, out, "completed bills.md:0")

	data, err := os.ReadFile(filepath.Join(dir, "bills.md"))
	require.NoError(t, err)
	assert.Equal(t,
		"- [x] Pay rent @2026-01-15 ==> repeat(monthly)\n- [ ] Pay rent @2026-02-15 ==> repeat(monthly)\n",
		string(data))

	_, err = runCLI(t, dir, "done", "bills.md:0")
	assert.ErrorContains(t, err, "already completed")

	out, err = runCLI(t, dir, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "executed")
	assert.Contains(t, out, "repeat(monthly)")

	out, err = runCLI(t, dir, "history", "prune", "--keep-last", "5", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "considered 1, kept 1, would delete 0")
}

func TestDone_UnknownTask(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "a.md"), "- [ ] x @2026-01-15\n")
	_, err := runCLI(t, dir, "done", "a.md:7")
	assert.ErrorContains(t, err, "task not found")
}

func TestWatchApp_Wiring(t *testing.T) {
	dir := t.TempDir()
	_, err := runCLI(t, dir, "init")
	require.NoError(t, err)

	cfg, err := config.Load(viper.New(), config.DefaultPath, dir)
	require.NoError(t, err)
	c := &cli{cfg: cfg}
	app := newWatchApp(cfg, c.vaultOptions())
	require.NoError(t, app.Err())
}
