package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/airpipe/internal/invoke"
)

// touchInvoker fakes step executables by creating whatever filename each
// step received as its positional argument.
type touchInvoker struct{}

func (touchInvoker) Invoke(_ context.Context, inv invoke.Invocation) (*invoke.Result, error) {
	if len(inv.Args) > 0 {
		target := filepath.Join(inv.Dir, inv.Args[len(inv.Args)-1])
		if err := os.WriteFile(target, []byte("x"), 0o644); err != nil {
			return nil, err
		}
	}
	if err := os.WriteFile(inv.LogPath, []byte("done\n"), 0o644); err != nil {
		return nil, err
	}
	return &invoke.Result{ExitCode: 0}, nil
}

const appCatalog = `
pipeline "touch" {
  input "name" {}

  step "create" {
    run = "touch"
    arg "name" {
      from       = input.name
      positional = true
    }
    output "file" {
      glob = "*.txt"
    }
    output "log" {
      capture = "stdout"
    }
  }

  output "file" {
    from = step.create.file
  }
}
`

func writeCatalog(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "touch.hcl"), []byte(appCatalog), 0o644))
	return dir
}

func TestNew_LoadsCatalog(t *testing.T) {
	t.Parallel()

	cfg, err := NewConfig(Config{CatalogPath: writeCatalog(t), Pipeline: "touch", LogLevel: "error"})
	require.NoError(t, err)

	a, err := New(&bytes.Buffer{}, cfg, touchInvoker{})
	require.NoError(t, err)
	assert.NotNil(t, a.Catalog().Pipelines["touch"])
}

func TestNew_EmptyCatalogFails(t *testing.T) {
	t.Parallel()

	cfg, err := NewConfig(Config{CatalogPath: t.TempDir(), Pipeline: "touch", LogLevel: "error"})
	require.NoError(t, err)

	_, err = New(&bytes.Buffer{}, cfg, touchInvoker{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no pipelines found")
}

func TestAppRun_EndToEnd(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	workspace := t.TempDir()
	cfg, err := NewConfig(Config{
		CatalogPath: writeCatalog(t),
		Pipeline:    "touch",
		Workspace:   workspace,
		SetInputs:   []string{"name=report.txt"},
		LogLevel:    "error",
		LogFormat:   "text",
		Workers:     2,
	})
	require.NoError(t, err)

	a, err := New(&bytes.Buffer{}, cfg, touchInvoker{})
	require.NoError(t, err)

	// --- Act ---
	err = a.Run(context.Background())

	// --- Assert ---
	require.NoError(t, err)

	runs, err := os.ReadDir(filepath.Join(workspace, "runs"))
	require.NoError(t, err)
	require.Len(t, runs, 1)
	runDir := filepath.Join(workspace, "runs", runs[0].Name())
	assert.FileExists(t, filepath.Join(runDir, "run.yaml"))
	assert.FileExists(t, filepath.Join(runDir, "create", "report.txt"))
}

func TestAppRun_MissingInputFails(t *testing.T) {
	t.Parallel()

	cfg, err := NewConfig(Config{
		CatalogPath: writeCatalog(t),
		Pipeline:    "touch",
		Workspace:   t.TempDir(),
		LogLevel:    "error",
	})
	require.NoError(t, err)

	a, err := New(&bytes.Buffer{}, cfg, touchInvoker{})
	require.NoError(t, err)

	err = a.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline did not start")
	assert.Contains(t, err.Error(), "missing required inputs")
}
