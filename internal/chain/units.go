package chain

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// ToBaseUnits converts a decimal token amount to its integer base-unit
// representation using the token's declared decimal count. Amounts with
// more fractional digits than the token supports are rejected rather
// than rounded — truncation here would silently move the wrong amount
// of money.
func ToBaseUnits(amount decimal.Decimal, decimals int32) (*big.Int, error) {
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive, got %s", amount)
	}
	shifted := amount.Shift(decimals)
	if shifted.Exponent() < 0 && !shifted.Equal(shifted.Truncate(0)) {
		return nil, fmt.Errorf("amount %s has more than %d decimal places", amount, decimals)
	}
	return shifted.BigInt(), nil
}

// FromBaseUnits converts an integer base-unit amount back to a decimal
// token amount.
func FromBaseUnits(base *big.Int, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(base, 0).Shift(-decimals)
}
