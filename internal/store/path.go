package store

import (
	"fmt"
	"strings"
)

// SplitPath splits a slash-separated store path into its segments, rejecting
// empty segments and segments containing characters that would be ambiguous
// in a dotted JSON path.
func SplitPath(path string) ([]string, error) {
	if path == "" {
		return nil, fmt.Errorf("empty store path")
	}
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for _, seg := range segments {
		if seg == "" {
			return nil, fmt.Errorf("store path %q has an empty segment", path)
		}
		if strings.ContainsAny(seg, ".*?#|@") {
			return nil, fmt.Errorf("store path segment %q contains reserved characters", seg)
		}
	}
	return segments, nil
}

// DotPath converts a store path into the dotted form used by gjson/sjson.
func DotPath(path string) (string, error) {
	segments, err := SplitPath(path)
	if err != nil {
		return "", err
	}
	return strings.Join(segments, "."), nil
}

// IsPrefix reports whether one path is a segment-wise prefix of the other in
// either direction, i.e. whether a write at one affects a subscription at
// the other.
func IsPrefix(a, b []string) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
