package contextutils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskAPIKey(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want string
	}{
		{"empty", "", "[EMPTY]"},
		{"short", "abc", "********"},
		{"short with scheme", "tri_abc", "tri_********"},
		{"triage key", "tri_0123456789abcdef0123", "tri_********0123"},
		{"no scheme", "sk-live-0123456789", "********6789"},
		{"trailing underscore", "abcdefghijkl_", "********ijk_"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MaskAPIKey(tt.key))
		})
	}
}

func TestMaskAPIKey_HidesLength(t *testing.T) {
	short := MaskAPIKey("tri_" + strings.Repeat("a", 20) + "wxyz")
	long := MaskAPIKey("tri_" + strings.Repeat("a", 60) + "wxyz")
	assert.Equal(t, short, long)
	assert.NotContains(t, long, "aaaa")
}
