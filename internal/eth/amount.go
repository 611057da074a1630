package eth

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/params"
	"github.com/shopspring/decimal"
)

// WeiDecimals is the number of decimal places of the native token.
const WeiDecimals = 18

var (
	ErrAmountInvalid   = fmt.Errorf("amount is not a valid decimal number")
	ErrAmountNegative  = fmt.Errorf("amount must not be negative")
	ErrAmountPrecision = fmt.Errorf("amount has more than 18 decimal places")
)

// ParseAmount converts a decimal ether string into wei with full precision.
// Values that cannot be represented exactly in wei are rejected rather than
// rounded.
func ParseAmount(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrAmountInvalid, s)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("%w: %q", ErrAmountNegative, s)
	}

	wei := d.Shift(WeiDecimals)
	if !wei.IsInteger() {
		return nil, fmt.Errorf("%w: %q", ErrAmountPrecision, s)
	}

	return wei.BigInt(), nil
}

// FormatAmount converts wei into a decimal ether string.
func FormatAmount(wei *big.Int) string {
	return decimal.NewFromBigInt(wei, -WeiDecimals).String()
}

// SplitAmount divides total into a fee leg and a recipient leg. The fee is
// percent of total rounded down in integer wei arithmetic; the recipient
// absorbs the remainder, so fee + recipient always equals total exactly.
func SplitAmount(total *big.Int, percent int64) (fee, recipient *big.Int) {
	fee = new(big.Int).Mul(total, big.NewInt(percent))
	fee.Div(fee, big.NewInt(100))
	recipient = new(big.Int).Sub(total, fee)
	return fee, recipient
}

// Ether returns n whole ether in wei. Test helper shared across packages.
func Ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(params.Ether))
}
