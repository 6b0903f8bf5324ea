package metatree

import (
	"strconv"
	"strings"
)

// splitPath splits a dot path into segments. The empty path addresses the
// root and yields no segments.
func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

func joinPath(segs []string) string { return strings.Join(segs, ".") }

// pathSeg appends one segment to a dot path.
func pathSeg(base, seg string) string {
	if base == "" {
		return seg
	}
	return base + "." + seg
}

// pathIndex appends an array index to a dot path.
func pathIndex(base string, i int) string {
	return pathSeg(base, strconv.Itoa(i))
}

// asIndex interprets a path segment as an array index.
func asIndex(seg string) (int, bool) {
	i, err := strconv.Atoi(seg)
	if err != nil || i < 0 {
		return 0, false
	}
	return i, true
}
