// Package domain defines core data structures shared by the swap contract and its collaborators.
package domain

import (
	"fmt"
	"strings"
)

// AssetID identifies a fungible asset (token contract address or code).
type AssetID string

// String returns the string representation.
func (a AssetID) String() string {
	return string(a)
}

// Identity is an account or contract address.
type Identity string

// String returns the string representation.
func (i Identity) String() string {
	return string(i)
}

// IsZero reports whether the identity is empty.
func (i Identity) IsZero() bool {
	return strings.TrimSpace(string(i)) == ""
}

// AssetPair the two assets bound to a contract instance at construction.
type AssetPair struct {
	// A first registered asset.
	A AssetID `json:"asset_a"`
	// B second registered asset.
	B AssetID `json:"asset_b"`
}

// NewAssetPair validates and builds an asset pair.
func NewAssetPair(a, b AssetID) (AssetPair, error) {
	a = AssetID(strings.TrimSpace(string(a)))
	b = AssetID(strings.TrimSpace(string(b)))
	if a == "" || b == "" {
		return AssetPair{}, fmt.Errorf("%w: asset ids must be non-empty", ErrInvalidAssets)
	}
	if a == b {
		return AssetPair{}, fmt.Errorf("%w: asset ids must differ, got %s twice", ErrInvalidAssets, a)
	}

	return AssetPair{A: a, B: b}, nil
}

// String returns the string representation.
func (p AssetPair) String() string {
	return fmt.Sprintf("%s_%s", p.A, p.B)
}
