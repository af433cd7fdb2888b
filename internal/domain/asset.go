package domain

import (
	"github.com/ethereum/go-ethereum/common"
)

// NativeAsset is the reserved identifier for the platform's intrinsic value
// unit. Every other address identifies a fungible token contract.
var NativeAsset = common.Address{}

// NativeDecimals is the fractional precision of the native asset.
const NativeDecimals = 18

// PriceDecimals is the fractional precision price sources report in.
const PriceDecimals = 8

// IsNative reports whether the asset identifier denotes the native asset.
func IsNative(asset common.Address) bool {
	return asset == NativeAsset
}
