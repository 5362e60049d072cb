package cryptoutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsHexString(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want bool
	}{
		{"empty", "", true},
		{"lowercase hex", "deadbeef", true},
		{"uppercase hex", "DEADBEEF", true},
		{"mixed case", "DeAdBeEf", true},
		{"digits only", "0123456789", true},
		{"64 char key", "a1b2c3d4e5f60718293a4b5c6d7e8f90a1b2c3d4e5f60718293a4b5c6d7e8f90", true},
		{"contains g", "0123abcg", false},
		{"space", "ab cd", false},
		{"special char", "abcd!!", false},
		{"newline", "abcd\n", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsHexString(tt.in))
		})
	}
}

func TestParseKey(t *testing.T) {
	raw := "12345678901234567890123456789012"
	k, err := ParseKey(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, string(k[:]))

	hexKey := "a1b2c3d4e5f60718293a4b5c6d7e8f90a1b2c3d4e5f60718293a4b5c6d7e8f90"
	k, err = ParseKey(hexKey)
	require.NoError(t, err)
	assert.Equal(t, byte(0xa1), k[0])
	assert.Equal(t, byte(0x90), k[31])

	for _, bad := range []string{"", "short", hexKey[:63], "zz" + hexKey[2:]} {
		_, err := ParseKey(bad)
		assert.Error(t, err, "key %q", bad)
	}
}
