package volume

import (
	"math/big"

	sdkmath "cosmossdk.io/math"
)

const DefaultDecimals = 7

func Pow10(n int) sdkmath.Int {
	return sdkmath.NewIntFromBigInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil))
}

// AdjustPrecision rescales value from digits to target decimals, truncating when precision is reduced.
func AdjustPrecision(value sdkmath.Int, digits, target int) sdkmath.Int {
	switch diff := target - digits; {
	case diff > 0:
		return value.Mul(Pow10(diff))
	case diff < 0:
		return value.Quo(Pow10(-diff))
	default:
		return value
	}
}

// VWAP returns quoteVolume/volume as a fixed-point number with the given decimals.
// Zero means no data.
func VWAP(volume, quoteVolume sdkmath.Int, decimals int) sdkmath.Int {
	if volume.IsNil() || quoteVolume.IsNil() || volume.IsZero() || quoteVolume.IsZero() {
		return sdkmath.ZeroInt()
	}
	return quoteVolume.Mul(Pow10(decimals)).Quo(volume)
}
