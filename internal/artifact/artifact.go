// Package artifact defines the typed values that flow between pipeline
// steps: single files, directories, grouped file sets with sidecar
// companions, and plain scalar strings. Artifacts are immutable once
// created and live in an append-only Pool owned by the executor.
package artifact

import (
	"fmt"
	"strings"

	"github.com/vk/airpipe/internal/fsutil"
)

// Kind identifies the shape of an artifact.
type Kind string

const (
	KindFile      Kind = "file"
	KindDir       Kind = "dir"
	KindFileGroup Kind = "filegroup"
	KindScalar    Kind = "scalar"
)

// ParseKind converts a user-supplied kind name into a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(s)) {
	case KindFile:
		return KindFile, nil
	case KindDir:
		return KindDir, nil
	case KindFileGroup:
		return KindFileGroup, nil
	case KindScalar:
		return KindScalar, nil
	}
	return "", fmt.Errorf("unknown artifact kind %q", s)
}

// Artifact is a single typed value produced by a step or supplied as a
// pipeline input.
type Artifact struct {
	Kind Kind

	// Path is the primary path for file, dir and filegroup artifacts.
	Path string

	// Sidecars holds the resolved companion paths of a filegroup.
	Sidecars []string

	// Value holds the literal for scalar artifacts.
	Value string
}

// Scalar returns a scalar artifact wrapping the given literal.
func Scalar(value string) Artifact {
	return Artifact{Kind: KindScalar, Value: value}
}

// File returns a file artifact for the given path.
func File(path string) Artifact {
	return Artifact{Kind: KindFile, Path: path}
}

// Dir returns a directory artifact for the given path.
func Dir(path string) Artifact {
	return Artifact{Kind: KindDir, Path: path}
}

// Render returns the representation of the artifact used on a command line:
// the literal for scalars, the primary path for everything else.
func (a Artifact) Render() string {
	if a.Kind == KindScalar {
		return a.Value
	}
	return a.Path
}

// Group builds a filegroup artifact around the given primary path,
// resolving its sidecar companions by suffix substitution. Every entry in
// required must resolve to an existing file or an error is returned; missing
// optional sidecars are silently dropped.
//
// A suffix beginning with "." replaces the primary path's extension
// (setup/shapes/zip.shp + ".dbf" -> setup/shapes/zip.dbf). Any other suffix
// is appended to the full primary path, which covers conventions like the
// shapefile metadata companion ("zip.shp" + ".shp.xml" via "xml" suffix
// variants is expressed as a plain append).
func Group(primary string, required, optional []string) (Artifact, error) {
	if !fsutil.Exists(primary) {
		return Artifact{}, fmt.Errorf("filegroup primary %s does not exist", primary)
	}

	sidecars := make([]string, 0, len(required)+len(optional))
	for _, suffix := range required {
		path := sidecarPath(primary, suffix)
		if !fsutil.Exists(path) {
			return Artifact{}, fmt.Errorf("filegroup %s is missing required sidecar %s", primary, path)
		}
		sidecars = append(sidecars, path)
	}
	for _, suffix := range optional {
		path := sidecarPath(primary, suffix)
		if fsutil.Exists(path) {
			sidecars = append(sidecars, path)
		}
	}

	return Artifact{Kind: KindFileGroup, Path: primary, Sidecars: sidecars}, nil
}

// sidecarPath derives a companion path from the primary path and a suffix.
func sidecarPath(primary, suffix string) string {
	if strings.HasPrefix(suffix, ".") {
		ext := extOf(primary)
		return strings.TrimSuffix(primary, ext) + suffix
	}
	return primary + suffix
}

// extOf returns the final extension of the path including the dot, or ""
// when the path has none.
func extOf(path string) string {
	idx := strings.LastIndexByte(path, '.')
	slash := strings.LastIndexByte(path, '/')
	if idx <= slash {
		return ""
	}
	return path[idx:]
}
