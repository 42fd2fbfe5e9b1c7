package auth

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"

	"github.com/vadiminshakov/simpleswap/internal/domain"
)

// Credential is an account's signature over an invocation tree.
type Credential struct {
	Signature string `json:"signature"`
	Nonce     uint64 `json:"nonce"`
	ExpiresAt int64  `json:"expires_at"`
}

type signedPayload struct {
	Network    string     `json:"network"`
	Invocation Invocation `json:"invocation"`
	Nonce      uint64     `json:"nonce"`
	ExpiresAt  int64      `json:"expires_at"`
}

// Digest is the keccak256 hash an account signs to authorize inv on network.
func Digest(network string, inv Invocation, nonce uint64, expiresAt int64) ([]byte, error) {
	payload, err := json.Marshal(signedPayload{
		Network:    network,
		Invocation: inv,
		Nonce:      nonce,
		ExpiresAt:  expiresAt,
	})
	if err != nil {
		return nil, errors.Wrap(err, "encode invocation")
	}
	return crypto.Keccak256(payload), nil
}

// Sign authorizes inv with key until expiresAt.
func Sign(key *ecdsa.PrivateKey, network string, inv Invocation, nonce uint64, expiresAt time.Time) (Credential, error) {
	digest, err := Digest(network, inv, nonce, expiresAt.Unix())
	if err != nil {
		return Credential{}, err
	}
	sig, err := crypto.Sign(digest, key)
	if err != nil {
		return Credential{}, errors.Wrap(err, "sign invocation")
	}

	return Credential{
		Signature: hexutil.Encode(sig),
		Nonce:     nonce,
		ExpiresAt: expiresAt.Unix(),
	}, nil
}

// AddressOf returns the account identity controlled by key.
func AddressOf(key *ecdsa.PrivateKey) domain.Identity {
	return domain.Identity(crypto.PubkeyToAddress(key.PublicKey).Hex())
}

type credentialKey struct{}

// WithCredential attaches the caller's credential to an invocation context.
func WithCredential(ctx context.Context, cred Credential) context.Context {
	return context.WithValue(ctx, credentialKey{}, cred)
}

// CredentialFrom returns the credential attached by WithCredential.
func CredentialFrom(ctx context.Context) (Credential, bool) {
	cred, ok := ctx.Value(credentialKey{}).(Credential)
	return cred, ok
}
