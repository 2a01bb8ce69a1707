package metadata

import (
	"context"
	"path/filepath"
	"strings"

	"photocopy/internal/fsys"
	"photocopy/internal/types"
)

// MediaExtensions are the file types scanned as primaries.
var MediaExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".heic": true,
	".heif": true,
	".png":  true,
	".tif":  true,
	".tiff": true,
	".gif":  true,
	".mp4":  true,
	".mov":  true,
	".mkv":  true,
	".webm": true,
	".avi":  true,
}

// sidecarExtensions are attached to a primary sharing their base name
// rather than planned on their own.
var sidecarExtensions = map[string]bool{
	".xmp":  true,
	".aae":  true,
	".json": true,
	".srt":  true,
	".thm":  true,
}

// Scanner enumerates a source tree and produces the FileRefs the planner
// consumes.
type Scanner struct {
	fs   fsys.FileSystem
	reg  *Registry
	root string
}

func NewScanner(fs fsys.FileSystem, root string) *Scanner {
	return &Scanner{fs: fs, reg: NewRegistry(), root: filepath.Clean(root)}
}

// Scan walks the source tree, extracts metadata for every media file and
// attaches sidecars to their primaries. Returned order follows the
// enumeration order of the façade, so repeated scans of an unchanged
// tree produce the same sequence.
func (s *Scanner) Scan(ctx context.Context) ([]types.FileRef, []error) {
	infos, errs := s.fs.EnumerateFiles(ctx, s.root)

	// First pass: index sidecar candidates by directory + base name.
	sidecars := make(map[string][]fsys.FileInfo)
	for _, info := range infos {
		ext := strings.ToLower(filepath.Ext(info.Path))
		if sidecarExtensions[ext] {
			key := sidecarKey(info.Path)
			sidecars[key] = append(sidecars[key], info)
		}
	}

	var refs []types.FileRef
	for _, info := range infos {
		if ctx.Err() != nil {
			break
		}
		ext := strings.ToLower(filepath.Ext(info.Path))
		if !MediaExtensions[ext] {
			continue
		}

		ref := s.buildRef(info)

		// A sidecar matches when its name minus its own extension equals
		// the primary's full name (IMG_1.jpg.xmp) or its name without
		// extension (IMG_1.xmp).
		for _, key := range []string{keyFor(info.Path, true), keyFor(info.Path, false)} {
			for _, sc := range sidecars[key] {
				ref.Sidecars = append(ref.Sidecars, types.FileRef{
					Path:     sc.Path,
					Length:   sc.Size,
					Modified: sc.ModTime,
				})
			}
		}

		refs = append(refs, ref)
	}
	return refs, errs
}

func (s *Scanner) buildRef(info fsys.FileInfo) types.FileRef {
	ref := types.FileRef{
		Path:     info.Path,
		Length:   info.Size,
		Modified: info.ModTime,
		Album:    s.albumFor(info.Path),
	}

	res := s.reg.ExtractBest(info.Path)
	ref.Taken = res.Date
	ref.Camera = res.Camera
	if res.Confidence <= ConfidenceLow {
		ref.Taken = info.ModTime
		ref.UnknownReason = "no capture date in metadata"
	}
	return ref
}

// albumFor infers the album from the first directory level under the
// source root. Files directly in the root have no album.
func (s *Scanner) albumFor(path string) string {
	rel, err := filepath.Rel(s.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return ""
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[0]
}

// sidecarKey indexes a sidecar by directory plus its name without the
// sidecar extension.
func sidecarKey(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(path), strings.ToLower(base))
}

// keyFor computes the lookup key a primary presents: its full name
// (matching IMG_1.jpg.xmp) or its name without extension (IMG_1.xmp).
func keyFor(path string, withExt bool) string {
	base := filepath.Base(path)
	if !withExt {
		base = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return filepath.Join(filepath.Dir(path), strings.ToLower(base))
}
