package artifact

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"file", "dir", "filegroup", "scalar", "FILE"} {
		kind, err := ParseKind(name)
		require.NoError(t, err, "kind %q should parse", name)
		assert.NotEmpty(t, kind)
	}

	_, err := ParseKind("blob")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown artifact kind")
}

func TestRender(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "2020-12-25", Scalar("2020-12-25").Render(), "Scalars render their literal")
	assert.Equal(t, "/data/out.csv", File("/data/out.csv").Render(), "Files render their path")
	assert.Equal(t, "/data", Dir("/data").Render(), "Dirs render their path")
}

func TestGroup_ResolvesSidecarsBySuffixSubstitution(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// A shapefile set: the primary .shp plus companions sharing its stem.
	tempDir := t.TempDir()
	primary := filepath.Join(tempDir, "zip.shp")
	for _, name := range []string{"zip.shp", "zip.dbf", "zip.shx", "zip.prj"} {
		require.NoError(t, os.WriteFile(filepath.Join(tempDir, name), []byte("x"), 0o644))
	}

	// --- Act ---
	a, err := Group(primary, []string{".dbf", ".shx", ".prj"}, []string{".xml"})

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, KindFileGroup, a.Kind)
	assert.Equal(t, primary, a.Path)
	expected := []string{
		filepath.Join(tempDir, "zip.dbf"),
		filepath.Join(tempDir, "zip.shx"),
		filepath.Join(tempDir, "zip.prj"),
	}
	assert.Equal(t, expected, a.Sidecars, "Missing optional sidecars are dropped silently")
}

func TestGroup_IncludesPresentOptionalSidecar(t *testing.T) {
	t.Parallel()

	tempDir := t.TempDir()
	primary := filepath.Join(tempDir, "zip.shp")
	for _, name := range []string{"zip.shp", "zip.xml"} {
		require.NoError(t, os.WriteFile(filepath.Join(tempDir, name), []byte("x"), 0o644))
	}

	a, err := Group(primary, nil, []string{".xml"})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(tempDir, "zip.xml")}, a.Sidecars)
}

func TestGroup_MissingRequiredSidecarFails(t *testing.T) {
	t.Parallel()

	tempDir := t.TempDir()
	primary := filepath.Join(tempDir, "zip.shp")
	require.NoError(t, os.WriteFile(primary, []byte("x"), 0o644))

	_, err := Group(primary, []string{".dbf"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required sidecar")
}

func TestGroup_MissingPrimaryFails(t *testing.T) {
	t.Parallel()

	_, err := Group(filepath.Join(t.TempDir(), "absent.shp"), nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestSidecarPath_AppendsNonDotSuffix(t *testing.T) {
	t.Parallel()

	// A suffix without a leading dot is appended to the full primary path,
	// which is how the shapefile metadata convention (zip.shp.xml) works.
	assert.Equal(t, "/w/zip.xml", sidecarPath("/w/zip.shp", ".xml"))
	assert.Equal(t, "/w/zip.shp.xml", sidecarPath("/w/zip.shp", ".shp.xml"))
	assert.Equal(t, "/w/zip.shp-meta", sidecarPath("/w/zip.shp", "-meta"))
	assert.Equal(t, "/w/noext.bak", sidecarPath("/w/noext", ".bak"))
}
