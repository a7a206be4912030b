// Package strings provides slice normalization helpers for request input.
package strings

import (
	"strings"
)

// DedupeAndTrimLower trims, lowercases and removes empty or repeated values.
// Order of first occurrence is preserved.
//
// Example:
//
//	DedupeAndTrimLower([]string{"  ADMIN ", "reviewer", "Admin"})
//	// Returns: []string{"admin", "reviewer"}
func DedupeAndTrimLower(values []string) []string {
	if len(values) == 0 {
		return values
	}
	result := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.ToLower(strings.TrimSpace(v)); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return Dedupe(result)
}

// Dedupe removes repeated values, keeping the first occurrence of each.
func Dedupe[T comparable](values []T) []T {
	if len(values) == 0 {
		return values
	}
	seen := make(map[T]struct{}, len(values))
	result := make([]T, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
