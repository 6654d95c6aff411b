package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeInput_SizeLimit(t *testing.T) {
	t.Setenv(EnvMaxInputSize, "")

	_, err := SanitizeInput(strings.Repeat("a", DefaultMaxInputSize))
	assert.NoError(t, err)
	_, err = SanitizeInput(strings.Repeat("a", DefaultMaxInputSize+1))
	assert.ErrorIs(t, err, ErrInputTooLarge)

	t.Setenv(EnvMaxInputSize, "10")
	_, err = SanitizeInput("12345678901")
	assert.ErrorIs(t, err, ErrInputTooLarge)
	_, err = SanitizeInput("12345")
	assert.NoError(t, err)
}

func TestSanitizeInput_ControlChars(t *testing.T) {
	tests := map[string]struct{ in, want string }{
		"plain":         {"eastus", "eastus"},
		"safe controls": {"a\nb\tc", "a\nb\tc"},
		"ansi":          {"\x1b[31mRed\x1b[0m", "[31mRed[0m"},
		"null":          {"Null\x00Byte", "NullByte"},
		"bell":          {"Ding\x07", "Ding"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := SanitizeInput(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSanitizeInput_InvalidUTF8(t *testing.T) {
	_, err := SanitizeInput("bad\xff")
	assert.ErrorIs(t, err, ErrInvalidUTF8)
}
