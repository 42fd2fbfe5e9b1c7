package domain

// Direction which registered asset the caller sells.
type Direction int

const (
	// DirectionSellA caller sells asset A and receives asset B.
	DirectionSellA Direction = iota
	// DirectionSellB caller sells asset B and receives asset A.
	DirectionSellB
)

const (
	directionStringSellA = "sell_a"
	directionStringSellB = "sell_b"
)

// DirectionFromBool maps the isSellAssetA entry point flag to a Direction.
func DirectionFromBool(isSellAssetA bool) Direction {
	if isSellAssetA {
		return DirectionSellA
	}
	return DirectionSellB
}

// IsSellAssetA reports whether the caller sells asset A.
func (d Direction) IsSellAssetA() bool {
	return d == DirectionSellA
}

// Resolve returns the input (received by the contract) and output (paid out) assets.
func (d Direction) Resolve(assets AssetPair) (in, out AssetID) {
	if d == DirectionSellA {
		return assets.A, assets.B
	}
	return assets.B, assets.A
}

// String returns the string representation of the direction.
func (d Direction) String() string {
	switch d {
	case DirectionSellA:
		return directionStringSellA
	case DirectionSellB:
		return directionStringSellB
	default:
		return "unknown"
	}
}
