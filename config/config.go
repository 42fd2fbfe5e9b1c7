package config

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vadiminshakov/simpleswap/internal/domain"
)

const (
	StorageWAL    = "wal"
	StorageBadger = "badger"
	StorageRedis  = "redis"
	StorageMemory = "memory"

	LedgerMemory = "memory"
	LedgerSQLite = "sqlite"

	defaultNetwork    = "simpleswap-local"
	defaultContract   = "CSWAP"
	defaultHTTPAddr   = ":8080"
	defaultJournalDir = "./wal/swaps"
	defaultLedgerPath = "./wal/ledger/ledger.db"
	defaultLogLevel   = "info"

	envRedisPassword = "SIMPLESWAP_REDIS_PASSWORD"
)

type Config struct {
	// Network is mixed into every signed payload so signatures do not replay across deployments.
	Network    string
	Contract   domain.Identity
	Assets     domain.AssetPair
	Storage    StorageConfig
	Ledger     LedgerConfig
	JournalDir string
	HTTP       HTTPConfig
	Log        LogConfig
}

type StorageConfig struct {
	Backend       string
	Dir           string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Namespace     string
}

type LedgerConfig struct {
	Backend string
	Path    string
	// Faucet enables minting through the HTTP API.
	Faucet bool
	Seed   []SeedBalance
}

type SeedBalance struct {
	Asset  domain.AssetID
	Holder domain.Identity
	Amount domain.Amount
}

type HTTPConfig struct {
	Addr             string
	AutocertDomains  []string
	AutocertCacheDir string
}

type LogConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// ConfigTmp mirrors the yaml file.
type ConfigTmp struct {
	Network    string     `yaml:"network"`
	Contract   string     `yaml:"contract"`
	AssetA     string     `yaml:"asset_a"`
	AssetB     string     `yaml:"asset_b"`
	Storage    StorageTmp `yaml:"storage"`
	Ledger     LedgerTmp  `yaml:"ledger"`
	JournalDir string     `yaml:"journal_dir,omitempty"`
	HTTP       HTTPTmp    `yaml:"http"`
	Log        LogTmp     `yaml:"log"`
}

type StorageTmp struct {
	Backend       string `yaml:"backend"`
	Dir           string `yaml:"dir,omitempty"`
	RedisAddr     string `yaml:"redis_addr,omitempty"`
	RedisPassword string `yaml:"redis_password,omitempty"`
	RedisDB       int    `yaml:"redis_db,omitempty"`
	Namespace     string `yaml:"namespace,omitempty"`
}

type LedgerTmp struct {
	Backend string    `yaml:"backend"`
	Path    string    `yaml:"path,omitempty"`
	Faucet  bool      `yaml:"faucet,omitempty"`
	Seed    []SeedTmp `yaml:"seed,omitempty"`
}

type SeedTmp struct {
	Asset  string `yaml:"asset"`
	Holder string `yaml:"holder"`
	Amount string `yaml:"amount"`
}

type HTTPTmp struct {
	Addr             string   `yaml:"addr,omitempty"`
	AutocertDomains  []string `yaml:"autocert_domains,omitempty"`
	AutocertCacheDir string   `yaml:"autocert_cache_dir,omitempty"`
}

type LogTmp struct {
	Level      string `yaml:"level,omitempty"`
	File       string `yaml:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb,omitempty"`
	MaxBackups int    `yaml:"max_backups,omitempty"`
	MaxAgeDays int    `yaml:"max_age_days,omitempty"`
}

// Get reads -config when given, otherwise builds the config from command line flags.
func Get(args []string) (Config, error) {
	fs := flag.NewFlagSet("swapd", flag.ContinueOnError)
	path := fs.String("config", "", "path to yaml config")
	assetA := fs.String("asset-a", "", "first asset id")
	assetB := fs.String("asset-b", "", "second asset id")
	network := fs.String("network", defaultNetwork, "network passphrase mixed into signatures")
	contract := fs.String("contract", defaultContract, "contract identity")
	addr := fs.String("addr", defaultHTTPAddr, "http listen address")
	storageBackend := fs.String("storage", StorageWAL, "instance storage: wal, badger, redis or memory")
	storageDir := fs.String("storage-dir", "", "instance storage directory")
	redisAddr := fs.String("redis-addr", "", "redis address for -storage=redis")
	ledgerBackend := fs.String("ledger", LedgerMemory, "ledger backend: memory or sqlite")
	ledgerPath := fs.String("ledger-path", "", "ledger state path")
	faucet := fs.Bool("faucet", false, "enable POST /v1/fund")
	logLevel := fs.String("log-level", defaultLogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if *path != "" {
		return Load(*path)
	}

	return Parse(ConfigTmp{
		Network:  *network,
		Contract: *contract,
		AssetA:   *assetA,
		AssetB:   *assetB,
		Storage: StorageTmp{
			Backend:   *storageBackend,
			Dir:       *storageDir,
			RedisAddr: *redisAddr,
		},
		Ledger: LedgerTmp{
			Backend: *ledgerBackend,
			Path:    *ledgerPath,
			Faucet:  *faucet,
		},
		HTTP: HTTPTmp{Addr: *addr},
		Log:  LogTmp{Level: *logLevel},
	})
}

// Load reads and parses a yaml config file.
func Load(path string) (Config, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var tmp ConfigTmp
	if err := yaml.Unmarshal(f, &tmp); err != nil {
		return Config{}, fmt.Errorf("failed to parse yaml config %s: %w", path, err)
	}
	return Parse(tmp)
}

// Parse validates raw values and applies defaults.
func Parse(c ConfigTmp) (Config, error) {
	cfg := Config{
		Network:    valueOr(c.Network, defaultNetwork),
		Contract:   domain.Identity(valueOr(strings.TrimSpace(c.Contract), defaultContract)),
		JournalDir: valueOr(c.JournalDir, defaultJournalDir),
	}

	// assets may be omitted when the instance was constructed in an earlier run
	if c.AssetA != "" || c.AssetB != "" {
		pair, err := domain.NewAssetPair(domain.AssetID(c.AssetA), domain.AssetID(c.AssetB))
		if err != nil {
			return Config{}, fmt.Errorf("incorrect 'asset_a'/'asset_b' in config: %w", err)
		}
		cfg.Assets = pair
	}

	storage, err := parseStorage(c.Storage)
	if err != nil {
		return Config{}, err
	}
	cfg.Storage = storage

	ledger, err := parseLedger(c.Ledger)
	if err != nil {
		return Config{}, err
	}
	cfg.Ledger = ledger

	cfg.HTTP = HTTPConfig{
		Addr:             valueOr(c.HTTP.Addr, defaultHTTPAddr),
		AutocertDomains:  c.HTTP.AutocertDomains,
		AutocertCacheDir: valueOr(c.HTTP.AutocertCacheDir, "./autocert"),
	}

	cfg.Log = LogConfig{
		Level:      valueOr(c.Log.Level, defaultLogLevel),
		File:       c.Log.File,
		MaxSizeMB:  intOr(c.Log.MaxSizeMB, 100),
		MaxBackups: intOr(c.Log.MaxBackups, 5),
		MaxAgeDays: intOr(c.Log.MaxAgeDays, 30),
	}

	return cfg, nil
}

func parseStorage(s StorageTmp) (StorageConfig, error) {
	cfg := StorageConfig{
		Backend:       strings.ToLower(valueOr(s.Backend, StorageWAL)),
		Dir:           s.Dir,
		RedisAddr:     s.RedisAddr,
		RedisPassword: s.RedisPassword,
		RedisDB:       s.RedisDB,
		Namespace:     valueOr(s.Namespace, "simpleswap"),
	}
	if pw := os.Getenv(envRedisPassword); pw != "" {
		cfg.RedisPassword = pw
	}

	switch cfg.Backend {
	case StorageWAL:
		cfg.Dir = valueOr(cfg.Dir, "./wal/instance")
	case StorageBadger:
		cfg.Dir = valueOr(cfg.Dir, "./badger/instance")
	case StorageRedis:
		if cfg.RedisAddr == "" {
			return StorageConfig{}, fmt.Errorf("'storage.redis_addr' is required for redis storage")
		}
	case StorageMemory:
	default:
		return StorageConfig{}, fmt.Errorf("unsupported storage backend %q", s.Backend)
	}
	return cfg, nil
}

func parseLedger(l LedgerTmp) (LedgerConfig, error) {
	cfg := LedgerConfig{
		Backend: strings.ToLower(valueOr(l.Backend, LedgerMemory)),
		Path:    l.Path,
		Faucet:  l.Faucet,
	}

	switch cfg.Backend {
	case LedgerMemory:
	case LedgerSQLite:
		cfg.Path = valueOr(cfg.Path, defaultLedgerPath)
	default:
		return LedgerConfig{}, fmt.Errorf("unsupported ledger backend %q", l.Backend)
	}

	for i, s := range l.Seed {
		amount, err := domain.ParseAmount(s.Amount)
		if err != nil {
			return LedgerConfig{}, fmt.Errorf("incorrect 'ledger.seed[%d].amount' %q: %w", i, s.Amount, err)
		}
		if amount.IsNegative() {
			return LedgerConfig{}, fmt.Errorf("'ledger.seed[%d].amount' must not be negative", i)
		}
		if s.Asset == "" || s.Holder == "" {
			return LedgerConfig{}, fmt.Errorf("'ledger.seed[%d]' needs asset and holder", i)
		}
		cfg.Seed = append(cfg.Seed, SeedBalance{
			Asset:  domain.AssetID(s.Asset),
			Holder: domain.Identity(s.Holder),
			Amount: amount,
		})
	}
	return cfg, nil
}

func valueOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func intOr(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
