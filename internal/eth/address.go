package eth

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Address validation errors, classified by defect so callers can tell
// malformed input apart from everything else.
var (
	ErrAddressPrefix  = fmt.Errorf("address must start with 0x")
	ErrAddressLength  = fmt.Errorf("address must be 40 hex characters")
	ErrAddressCharset = fmt.Errorf("address contains non-hex characters")
)

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// ValidateAddress checks that s is a syntactically correct Ethereum address
// and returns its EIP-55 checksummed form. The input is normalized to
// lowercase before the checksum transform, so any mix of cases is accepted.
func ValidateAddress(s string) (string, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return "", fmt.Errorf("%w: %q", ErrAddressPrefix, s)
	}

	hexPart := s[2:]
	if len(hexPart) != common.AddressLength*2 {
		return "", fmt.Errorf("%w: got %d", ErrAddressLength, len(hexPart))
	}

	for i := 0; i < len(hexPart); i++ {
		if !isHexDigit(hexPart[i]) {
			return "", fmt.Errorf("%w: %q at position %d", ErrAddressCharset, hexPart[i], i)
		}
	}

	addr := common.HexToAddress("0x" + strings.ToLower(hexPart))
	return addr.Hex(), nil
}
