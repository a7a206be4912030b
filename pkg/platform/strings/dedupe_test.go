package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrimLower(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{name: "nil slice", input: nil, expected: nil},
		{name: "empty slice", input: []string{}, expected: []string{}},
		{name: "lowercases and trims", input: []string{"  ADMIN ", "Reviewer"}, expected: []string{"admin", "reviewer"}},
		{name: "case-insensitive duplicates", input: []string{"admin", "Admin", "ADMIN"}, expected: []string{"admin"}},
		{name: "drops blanks", input: []string{"", "  ", "admin"}, expected: []string{"admin"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DedupeAndTrimLower(tt.input))
		})
	}
}

func TestDedupe(t *testing.T) {
	assert.Equal(t, []int{3, 1, 2}, Dedupe([]int{3, 1, 3, 2, 1}))
	assert.Nil(t, Dedupe[int](nil))
}
