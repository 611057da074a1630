package eth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAddressCanonicalizes(t *testing.T) {
	// EIP-55 test vector.
	checksummed := "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"

	for _, input := range []string{
		checksummed,
		strings.ToLower(checksummed),
		"0x" + strings.ToUpper(checksummed[2:]),
	} {
		got, err := ValidateAddress(input)
		require.NoError(t, err, "input %q", input)
		assert.Equal(t, checksummed, got, "input %q", input)
	}
}

func TestValidateAddressClassifiesErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"missing prefix", "5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", ErrAddressPrefix},
		{"empty", "", ErrAddressPrefix},
		{"too short", "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beae", ErrAddressLength},
		{"too long", "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed0", ErrAddressLength},
		{"bad charset", "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaeg", ErrAddressCharset},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateAddress(tt.input)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
