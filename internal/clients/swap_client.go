package clients

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/vadiminshakov/simpleswap/internal/api"
	"github.com/vadiminshakov/simpleswap/internal/domain"
	"github.com/vadiminshakov/simpleswap/pkg/retrier"
)

// APIError is a non-2xx answer from swapd.
type APIError struct {
	Status  int
	Code    string
	Message string
	Swap    *domain.SwapRecord
}

func (e *APIError) Error() string {
	return fmt.Sprintf("swapd %d %s: %s", e.Status, e.Code, e.Message)
}

// Is maps server error codes back to domain errors.
func (e *APIError) Is(target error) bool {
	switch e.Code {
	case "not_constructed":
		return target == domain.ErrConfigurationMissing
	case "authorization_denied":
		return target == domain.ErrAuthorizationDenied
	case "insufficient_reserve":
		return target == domain.ErrInsufficientReserve
	case "transfer_failed":
		return target == domain.ErrLedgerTransferFailed
	case "invalid_amount":
		return target == domain.ErrInvalidAmount
	}
	return false
}

// SwapClient talks to the swapd HTTP API.
type SwapClient struct {
	client  *resty.Client
	retrier *retrier.Retrier
}

// NewSwapClient creates a client for the server at host.
func NewSwapClient(host string) *SwapClient {
	host = strings.TrimSuffix(host, "/")

	client := resty.New().
		SetBaseURL(host).
		SetTimeout(30*time.Second).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "swapctl")

	// reads are retried; swaps are not since a signed request is single-use
	r := retrier.New(
		retrier.WithMaxRetries(3),
		retrier.WithInitialInterval(500*time.Millisecond),
		retrier.WithRetryIf(func(err error) bool {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return apiErr.Status >= http.StatusInternalServerError && (apiErr.Code == "" || apiErr.Code == "internal")
			}
			return true
		}),
	)

	return &SwapClient{client: client, retrier: r}
}

// Assets returns the contract identity, network and registered pair.
func (c *SwapClient) Assets(ctx context.Context) (api.AssetsResponse, error) {
	return retrier.DoWithData(c.retrier, ctx, func(ctx context.Context) (api.AssetsResponse, error) {
		var out api.AssetsResponse
		err := c.do(ctx, http.MethodGet, "/v1/assets", nil, &out)
		return out, err
	})
}

// Reserves returns the contract's holdings.
func (c *SwapClient) Reserves(ctx context.Context) (domain.ReserveSnapshot, error) {
	return retrier.DoWithData(c.retrier, ctx, func(ctx context.Context) (domain.ReserveSnapshot, error) {
		var out domain.ReserveSnapshot
		err := c.do(ctx, http.MethodGet, "/v1/reserves", nil, &out)
		return out, err
	})
}

// Balance returns holder's balance of asset.
func (c *SwapClient) Balance(ctx context.Context, asset domain.AssetID, holder domain.Identity) (api.BalanceResponse, error) {
	return retrier.DoWithData(c.retrier, ctx, func(ctx context.Context) (api.BalanceResponse, error) {
		var out api.BalanceResponse
		err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v1/balances/%s/%s", asset, holder), nil, &out)
		return out, err
	})
}

// SwapRecord returns a journaled swap.
func (c *SwapClient) SwapRecord(ctx context.Context, id string) (domain.SwapRecord, error) {
	return retrier.DoWithData(c.retrier, ctx, func(ctx context.Context) (domain.SwapRecord, error) {
		var out domain.SwapRecord
		err := c.do(ctx, http.MethodGet, "/v1/swaps/"+id, nil, &out)
		return out, err
	})
}

// Swap submits a signed swap.
func (c *SwapClient) Swap(ctx context.Context, req api.SwapRequest) (domain.SwapRecord, error) {
	var out domain.SwapRecord
	err := c.do(ctx, http.MethodPost, "/v1/swap", req, &out)
	return out, err
}

// Fund asks the server faucet to mint amount of asset to holder.
func (c *SwapClient) Fund(ctx context.Context, req api.FundRequest) (api.BalanceResponse, error) {
	var out api.BalanceResponse
	err := c.do(ctx, http.MethodPost, "/v1/fund", req, &out)
	return out, err
}

func (c *SwapClient) do(ctx context.Context, method, endpoint string, body, out any) error {
	var apiErr api.ErrorResponse
	r := c.client.R().
		SetContext(ctx).
		SetResult(out).
		SetError(&apiErr)
	if body != nil {
		r.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	resp, err := r.Execute(method, endpoint)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, endpoint)
	}
	if resp.IsError() {
		return &APIError{
			Status:  resp.StatusCode(),
			Code:    apiErr.Code,
			Message: apiErr.Error,
			Swap:    apiErr.Swap,
		}
	}
	return nil
}
