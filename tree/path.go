package tree

import "strings"

// SplitPath splits a dotted path ("user.address.city", "items.0.name").
func SplitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

// JoinPath appends segment to a dotted prefix.
func JoinPath(prefix, segment string) string {
	if prefix == "" {
		return segment
	}
	return strings.Join([]string{prefix, segment}, ".")
}

// Lookup resolves a dotted path below root. The boolean is false when a
// segment is missing or crosses a scalar.
func Lookup(root Container, path string) (any, bool) {
	var current any = root
	for _, segment := range SplitPath(path) {
		container, ok := current.(Container)
		if !ok || !container.Has(segment) {
			return nil, false
		}
		current = container.Get(segment)
	}
	return current, true
}
