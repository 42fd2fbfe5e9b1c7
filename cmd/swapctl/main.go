// Command swapctl is the client for swapd.
//
// Usage:
//
//	swapctl keygen
//	swapctl swap -sell-a -amount 100
//	swapctl sign -contract CSWAP -network simpleswap-local -asset-in USDC -sell-a -amount 100 -out swap.json
//	swapctl send -in swap.json
//	swapctl reserves
//	swapctl fund -asset USDC -holder 0xabc... -amount 1000
//	swapctl setup
//
// The signing key is read from SWAP_PRIVATE_KEY (hex), also loaded from .env.
package main

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	"github.com/vadiminshakov/simpleswap/internal/api"
	"github.com/vadiminshakov/simpleswap/internal/clients"
	"github.com/vadiminshakov/simpleswap/internal/domain"
	"github.com/vadiminshakov/simpleswap/internal/services/auth"
	"github.com/vadiminshakov/simpleswap/internal/setup"
)

const (
	envPrivateKey = "SWAP_PRIVATE_KEY"
	envServer     = "SWAP_SERVER"
	defaultServer = "http://localhost:8080"
	defaultTTL    = 5 * time.Minute
)

func main() {
	_ = godotenv.Load()

	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New("usage: swapctl keygen|swap|sign|send|reserves|fund|setup [flags]")
	}

	cmd, args := args[0], args[1:]
	switch cmd {
	case "keygen":
		return keygen(out)
	case "swap":
		return swapCmd(ctx, args, out)
	case "sign":
		return signCmd(args, out)
	case "send":
		return sendCmd(ctx, args, out)
	case "reserves":
		return reservesCmd(ctx, args, out)
	case "fund":
		return fundCmd(ctx, args, out)
	case "setup":
		return setup.RunTUI()
	default:
		return errors.Errorf("unknown command %q", cmd)
	}
}

func keygen(out io.Writer) error {
	key, err := crypto.GenerateKey()
	if err != nil {
		return errors.Wrap(err, "generate key")
	}
	fmt.Fprintf(out, "address: %s\n", auth.AddressOf(key))
	fmt.Fprintf(out, "%s=%s\n", envPrivateKey, hexutil.Encode(crypto.FromECDSA(key)))
	return nil
}

type swapFlags struct {
	sellA  bool
	amount string
	nonce  uint64
	ttl    time.Duration
}

func (f *swapFlags) register(fs *flag.FlagSet) {
	fs.BoolVar(&f.sellA, "sell-a", false, "sell asset A for asset B (default sells B for A)")
	fs.StringVar(&f.amount, "amount", "", "amount to swap, integer")
	fs.Uint64Var(&f.nonce, "nonce", 0, "signature nonce, default derived from the clock")
	fs.DurationVar(&f.ttl, "ttl", defaultTTL, "signature lifetime")
}

func (f *swapFlags) nonceOrClock() uint64 {
	if f.nonce != 0 {
		return f.nonce
	}
	return uint64(time.Now().UnixNano())
}

func swapCmd(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("swap", flag.ContinueOnError)
	server := serverFlag(fs)
	var sf swapFlags
	sf.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	key, err := loadKey()
	if err != nil {
		return err
	}
	client := clients.NewSwapClient(*server)

	info, err := client.Assets(ctx)
	if err != nil {
		return err
	}
	assetIn := info.AssetB
	if sf.sellA {
		assetIn = info.AssetA
	}

	req, err := signedSwap(key, info.Network, info.Contract, assetIn, sf)
	if err != nil {
		return err
	}

	rec, err := client.Swap(ctx, req)
	if err != nil {
		return err
	}
	return printJSON(out, rec)
}

// signCmd builds a signed swap without contacting the server.
func signCmd(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("sign", flag.ContinueOnError)
	contract := fs.String("contract", "", "contract identity")
	network := fs.String("network", "", "network passphrase")
	assetIn := fs.String("asset-in", "", "asset being sold")
	outPath := fs.String("out", "", "write the signed request to this file instead of stdout")
	var sf swapFlags
	sf.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *contract == "" || *network == "" || *assetIn == "" {
		return errors.New("-contract, -network and -asset-in are required")
	}

	key, err := loadKey()
	if err != nil {
		return err
	}
	req, err := signedSwap(key, *network, domain.Identity(*contract), domain.AssetID(*assetIn), sf)
	if err != nil {
		return err
	}

	if *outPath == "" {
		return printJSON(out, req)
	}
	data, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(*outPath, data, 0o600); err != nil {
		return errors.Wrap(err, "write signed request")
	}
	fmt.Fprintf(out, "signed request written to %s\n", *outPath)
	return nil
}

func sendCmd(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	server := serverFlag(fs)
	in := fs.String("in", "", "signed request file produced by sign")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return errors.New("-in is required")
	}

	data, err := os.ReadFile(*in)
	if err != nil {
		return err
	}
	var req api.SwapRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return errors.Wrapf(err, "decode %s", *in)
	}

	rec, err := clients.NewSwapClient(*server).Swap(ctx, req)
	if err != nil {
		return err
	}
	return printJSON(out, rec)
}

func reservesCmd(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("reserves", flag.ContinueOnError)
	server := serverFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	snap, err := clients.NewSwapClient(*server).Reserves(ctx)
	if err != nil {
		return err
	}
	return printJSON(out, snap)
}

func fundCmd(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("fund", flag.ContinueOnError)
	server := serverFlag(fs)
	asset := fs.String("asset", "", "asset to mint")
	holder := fs.String("holder", "", "account to fund, defaults to the SWAP_PRIVATE_KEY address")
	amount := fs.String("amount", "", "amount to mint")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *holder == "" {
		key, err := loadKey()
		if err != nil {
			return errors.Wrap(err, "-holder not set")
		}
		*holder = auth.AddressOf(key).String()
	}
	parsed, err := domain.ParseAmount(*amount)
	if err != nil {
		return err
	}

	balance, err := clients.NewSwapClient(*server).Fund(ctx, api.FundRequest{
		Asset:  domain.AssetID(*asset),
		Holder: domain.Identity(*holder),
		Amount: parsed,
	})
	if err != nil {
		return err
	}
	return printJSON(out, balance)
}

func signedSwap(key *ecdsa.PrivateKey, network string, contract domain.Identity, assetIn domain.AssetID, sf swapFlags) (api.SwapRequest, error) {
	amount, err := domain.ParseAmount(sf.amount)
	if err != nil {
		return api.SwapRequest{}, err
	}

	req := domain.NewSwapRequest(sf.sellA, auth.AddressOf(key), amount)
	inv := auth.SwapInvocation(contract, assetIn, req)
	cred, err := auth.Sign(key, network, inv, sf.nonceOrClock(), time.Now().Add(sf.ttl))
	if err != nil {
		return api.SwapRequest{}, err
	}

	return api.SwapRequest{
		IsSellAssetA: sf.sellA,
		Account:      req.Account,
		Amount:       amount,
		Credential:   cred,
		Invocation:   &inv,
	}, nil
}

func loadKey() (*ecdsa.PrivateKey, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(os.Getenv(envPrivateKey)), "0x")
	if raw == "" {
		return nil, errors.Errorf("%s is not set, run swapctl keygen", envPrivateKey)
	}
	key, err := crypto.HexToECDSA(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", envPrivateKey)
	}
	return key, nil
}

func serverFlag(fs *flag.FlagSet) *string {
	def := os.Getenv(envServer)
	if def == "" {
		def = defaultServer
	}
	return fs.String("server", def, "swapd base url")
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
