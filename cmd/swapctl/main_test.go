package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/simpleswap/internal/api"
	"github.com/vadiminshakov/simpleswap/internal/domain"
	"github.com/vadiminshakov/simpleswap/internal/services/auth"
	"github.com/vadiminshakov/simpleswap/internal/storage/kv"
)

func withKey(t *testing.T) domain.Identity {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	t.Setenv(envPrivateKey, hexutil.Encode(crypto.FromECDSA(key)))
	return auth.AddressOf(key)
}

func TestKeygen(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"keygen"}, &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	address := strings.TrimPrefix(lines[0], "address: ")

	t.Setenv(envPrivateKey, strings.TrimPrefix(lines[1], envPrivateKey+"="))
	key, err := loadKey()
	require.NoError(t, err)
	assert.Equal(t, address, auth.AddressOf(key).String())
}

func TestSignThenSend(t *testing.T) {
	account := withKey(t)
	path := filepath.Join(t.TempDir(), "swap.json")

	var out bytes.Buffer
	err := run(context.Background(), []string{
		"sign", "-contract", "CSWAP", "-network", "testnet", "-asset-in", "USDC",
		"-sell-a", "-amount", "250", "-nonce", "42", "-out", path,
	}, &out)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var signed api.SwapRequest
	require.NoError(t, json.Unmarshal(data, &signed))
	assert.Equal(t, account, signed.Account)
	assert.Equal(t, uint64(42), signed.Credential.Nonce)

	// the server rebuilds the same tree and accepts the signature
	inv := auth.SwapInvocation("CSWAP", "USDC", signed.Domain())
	authorizer := auth.NewSignatureAuthorizer("testnet", kv.NewMemoryStore(), nil)
	require.NoError(t, authorizer.RequireAuth(auth.WithCredential(context.Background(), signed.Credential), account, inv))

	var received api.SwapRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/swap", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(domain.SwapRecord{ID: "s1", Status: domain.SwapStatusDone})
	}))
	defer srv.Close()

	out.Reset()
	require.NoError(t, run(context.Background(), []string{"send", "-server", srv.URL, "-in", path}, &out))
	assert.Equal(t, signed.Credential, received.Credential)
	assert.Contains(t, out.String(), `"status": "done"`)
}

func TestSignRequiresTarget(t *testing.T) {
	withKey(t)
	err := run(context.Background(), []string{"sign", "-amount", "1"}, &bytes.Buffer{})
	require.Error(t, err)
}

func TestSwapWithoutKey(t *testing.T) {
	t.Setenv(envPrivateKey, "")
	err := run(context.Background(), []string{"swap", "-amount", "1"}, &bytes.Buffer{})
	require.Error(t, err)
}

func TestUnknownCommand(t *testing.T) {
	require.Error(t, run(context.Background(), []string{"mint"}, &bytes.Buffer{}))
	require.Error(t, run(context.Background(), nil, &bytes.Buffer{}))
}
