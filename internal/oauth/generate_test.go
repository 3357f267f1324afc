package oauth

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tokenAlphabet = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

func TestGenerators(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		generate func() (string, error)
		length   int
	}{
		{name: "code", generate: GenerateCode, length: 48},
		{name: "token", generate: GenerateToken, length: 96},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			seen := make(map[string]struct{})
			for i := 0; i < 200; i++ {
				value, err := tt.generate()
				require.NoError(t, err)
				assert.Len(t, value, tt.length)
				assert.Regexp(t, tokenAlphabet, value)

				_, dup := seen[value]
				require.False(t, dup)
				seen[value] = struct{}{}
			}
		})
	}
}
