package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/simpleswap/internal/domain"
	"github.com/vadiminshakov/simpleswap/internal/storage/kv"
)

// Authorizer decides whether account authorized inv for the current invocation. Rejections
// wrap domain.ErrAuthorizationDenied; any other error means the check itself could not run.
type Authorizer interface {
	RequireAuth(ctx context.Context, account domain.Identity, inv Invocation) error
}

// SignatureAuthorizer accepts a secp256k1 signature over the invocation digest, recovered to
// the account's address. Nonces are single-use per account and kept in the instance store.
type SignatureAuthorizer struct {
	mu      sync.Mutex
	network string
	nonces  kv.Store
	logger  *zap.Logger
	now     func() time.Time
}

// NewSignatureAuthorizer creates a SignatureAuthorizer bound to network.
func NewSignatureAuthorizer(network string, nonces kv.Store, logger *zap.Logger) *SignatureAuthorizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SignatureAuthorizer{
		network: network,
		nonces:  nonces,
		logger:  logger,
		now:     time.Now,
	}
}

// RequireAuth implements Authorizer. Every rejection wraps domain.ErrAuthorizationDenied.
func (a *SignatureAuthorizer) RequireAuth(ctx context.Context, account domain.Identity, inv Invocation) error {
	cred, ok := CredentialFrom(ctx)
	if !ok {
		return errors.Wrap(domain.ErrAuthorizationDenied, "missing credential")
	}
	if a.now().Unix() > cred.ExpiresAt {
		return errors.Wrapf(domain.ErrAuthorizationDenied, "credential expired at %d", cred.ExpiresAt)
	}
	if !common.IsHexAddress(account.String()) {
		return errors.Wrapf(domain.ErrAuthorizationDenied, "account %s is not an address", account)
	}

	sig, err := hexutil.Decode(cred.Signature)
	if err != nil || len(sig) != crypto.SignatureLength {
		return errors.Wrap(domain.ErrAuthorizationDenied, "malformed signature")
	}
	digest, err := Digest(a.network, inv, cred.Nonce, cred.ExpiresAt)
	if err != nil {
		return err
	}
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return errors.Wrap(domain.ErrAuthorizationDenied, "unrecoverable signature")
	}
	signer := crypto.PubkeyToAddress(*pub)
	if signer != common.HexToAddress(account.String()) {
		return errors.Wrapf(domain.ErrAuthorizationDenied, "signed by %s, not %s", signer.Hex(), account)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	key := fmt.Sprintf("nonce/%s/%d", signer.Hex(), cred.Nonce)
	_, err = a.nonces.Get(ctx, key)
	switch {
	case err == nil:
		return errors.Wrapf(domain.ErrAuthorizationDenied, "nonce %d already used", cred.Nonce)
	case !errors.Is(err, kv.ErrNotFound):
		return errors.Wrap(err, "read nonce")
	}
	if err := a.nonces.Set(ctx, key, []byte{1}); err != nil {
		return errors.Wrap(err, "record nonce")
	}

	a.logger.Debug("invocation authorized",
		zap.String("account", signer.Hex()),
		zap.String("function", inv.Function),
		zap.Uint64("nonce", cred.Nonce))

	return nil
}
