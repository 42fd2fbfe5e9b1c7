// Package registry stores the two asset ids a contract instance is constructed with.
package registry

import (
	"context"

	"github.com/pkg/errors"

	"github.com/vadiminshakov/simpleswap/internal/domain"
	"github.com/vadiminshakov/simpleswap/internal/storage/kv"
)

const (
	keyAssetA = "AssetA"
	keyAssetB = "AssetB"
)

// Registry reads and writes the AssetA and AssetB slots of the instance store.
type Registry struct {
	store kv.Store
}

// New creates a Registry over store.
func New(store kv.Store) *Registry {
	return &Registry{store: store}
}

// SetAssets binds the asset pair. It succeeds only once per instance.
// AssetB is written before AssetA, so a present AssetA means construction completed. A retry
// after a partial construction succeeds only with the AssetB already stored.
func (r *Registry) SetAssets(ctx context.Context, a, b domain.AssetID) error {
	pair, err := domain.NewAssetPair(a, b)
	if err != nil {
		return err
	}

	constructed, err := r.IsConstructed(ctx)
	if err != nil {
		return err
	}
	if constructed {
		return domain.ErrAlreadyConstructed
	}

	// a retry after a partial construction must keep the B already written
	stored, err := r.store.Get(ctx, keyAssetB)
	switch {
	case err == nil && len(stored) > 0:
		if domain.AssetID(stored) != pair.B {
			return errors.Wrapf(domain.ErrAlreadyConstructed, "asset B is already bound to %s", stored)
		}
	case err == nil || errors.Is(err, kv.ErrNotFound):
		if err := r.store.Set(ctx, keyAssetB, []byte(pair.B)); err != nil {
			return errors.Wrap(err, "write asset B")
		}
	default:
		return errors.Wrap(err, "read asset B")
	}
	if err := r.store.Set(ctx, keyAssetA, []byte(pair.A)); err != nil {
		return errors.Wrap(err, "write asset A")
	}

	return nil
}

// IsConstructed reports whether SetAssets has completed.
func (r *Registry) IsConstructed(ctx context.Context) (bool, error) {
	_, err := r.store.Get(ctx, keyAssetA)
	if errors.Is(err, kv.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "read asset A")
	}
	return true, nil
}

// AssetA returns the first registered asset.
func (r *Registry) AssetA(ctx context.Context) (domain.AssetID, error) {
	return r.read(ctx, keyAssetA)
}

// AssetB returns the second registered asset.
func (r *Registry) AssetB(ctx context.Context) (domain.AssetID, error) {
	return r.read(ctx, keyAssetB)
}

// Assets returns both registered assets.
func (r *Registry) Assets(ctx context.Context) (domain.AssetPair, error) {
	a, err := r.AssetA(ctx)
	if err != nil {
		return domain.AssetPair{}, err
	}
	b, err := r.AssetB(ctx)
	if err != nil {
		return domain.AssetPair{}, err
	}
	return domain.AssetPair{A: a, B: b}, nil
}

func (r *Registry) read(ctx context.Context, key string) (domain.AssetID, error) {
	v, err := r.store.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) || (err == nil && len(v) == 0) {
		return "", errors.Wrapf(domain.ErrConfigurationMissing, "%s not set", key)
	}
	if err != nil {
		return "", errors.Wrapf(err, "read %s", key)
	}
	return domain.AssetID(v), nil
}
