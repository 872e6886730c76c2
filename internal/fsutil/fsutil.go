package fsutil

import (
	"path/filepath"
	"strconv"
	"strings"
)

var fitsExts = map[string]struct{}{
	".fits": {},
	".fit":  {},
	".fts":  {},
}

var headerExts = map[string]struct{}{
	".hdr": {},
	".txt": {},
}

// IsFITSFile checks if a path has a FITS extension.
func IsFITSFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	_, ok := fitsExts[ext]
	return ok
}

// IsHeaderFile checks if a path holds a header as card text.
func IsHeaderFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	_, ok := headerExts[ext]
	return ok
}

// BaseName returns the file name without directory and FITS extension.
func BaseName(path string) string {
	base := filepath.Base(path)
	if IsFITSFile(base) || IsHeaderFile(base) {
		base = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return base
}

// OutputPath builds <dir>/<base><suffix><ext> for input.
func OutputPath(input, dir, suffix, ext string) string {
	if dir == "" {
		dir = filepath.Dir(input)
	}
	return filepath.Join(dir, BaseName(input)+suffix+ext)
}

// UniquePaths returns paths with later duplicates given a numeric suffix
// before their extension.
func UniquePaths(paths ...string) []string {
	seen := make(map[string]int)
	out := make([]string, len(paths))
	for i, p := range paths {
		seen[p]++
		if n := seen[p]; n > 1 {
			ext := filepath.Ext(p)
			p = strings.TrimSuffix(p, ext) + "_" + strconv.Itoa(n) + ext
		}
		out[i] = p
	}
	return out
}
