package clients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/simpleswap/internal/api"
	"github.com/vadiminshakov/simpleswap/internal/domain"
)

func TestSwapClient_Swap(t *testing.T) {
	var got api.SwapRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/swap", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(domain.SwapRecord{ID: "s1", Status: domain.SwapStatusDone, Amount: got.Amount})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewSwapClient(srv.URL + "/")
	rec, err := c.Swap(context.Background(), api.SwapRequest{
		IsSellAssetA: true,
		Account:      "ALICE",
		Amount:       domain.AmountFromInt64(7),
	})
	require.NoError(t, err)
	assert.Equal(t, "s1", rec.ID)
	assert.True(t, rec.Amount.Equal(domain.AmountFromInt64(7)))
	assert.True(t, got.IsSellAssetA)
	assert.Equal(t, domain.Identity("ALICE"), got.Account)
}

func TestSwapClient_MapsErrors(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/swap", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(api.ErrorResponse{
			Error: "insufficient reserve",
			Code:  "insufficient_reserve",
			Swap:  &domain.SwapRecord{ID: "s2", Status: domain.SwapStatusFailed},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	_, err := NewSwapClient(srv.URL).Swap(context.Background(), api.SwapRequest{Account: "ALICE"})
	require.ErrorIs(t, err, domain.ErrInsufficientReserve)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	require.NotNil(t, apiErr.Swap)
	assert.Equal(t, "s2", apiErr.Swap.ID)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSwapClient_ReadsRetryServerErrors(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/reserves", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "boom", Code: "internal"})
			return
		}
		_ = json.NewEncoder(w).Encode(domain.ReserveSnapshot{AssetA: "USDC", ReserveA: domain.AmountFromInt64(5)})
	})
	mux.HandleFunc("/v1/assets", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "configuration missing", Code: "not_constructed"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	c := NewSwapClient(srv.URL)

	snap, err := c.Reserves(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.ReserveA.Equal(domain.AmountFromInt64(5)))
	assert.Equal(t, int32(2), calls.Load())

	_, err = c.Assets(context.Background())
	require.ErrorIs(t, err, domain.ErrConfigurationMissing)
}
