package setup

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/vadiminshakov/simpleswap/config"
	"github.com/vadiminshakov/simpleswap/internal/domain"
)

const DefaultFile = "swap.gen.yaml"

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

// Answers collects everything the wizard asks.
type Answers struct {
	Network        string
	Contract       string
	AssetA         string
	AssetB         string
	StorageBackend string
	StorageDir     string
	RedisAddr      string
	LedgerBackend  string
	LedgerPath     string
	Faucet         bool
	HTTPAddr       string
}

// RunTUI launches the terminal configuration wizard and writes DefaultFile.
func RunTUI() error {
	ans := Answers{
		Network:        "simpleswap-local",
		Contract:       "CSWAP",
		StorageBackend: config.StorageWAL,
		LedgerBackend:  config.LedgerSQLite,
		HTTPAddr:       ":8080",
	}
	var confirm bool

	step := func(title string) {
		fmt.Print("\033[H\033[2J") // Clear screen
		fmt.Println(headerStyle.Render("SIMPLESWAP CONFIG WIZARD"))
		fmt.Println(stepStyle.Render(title))
	}
	step("STEP 1: CONTRACT")
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Two assets, one rate: 1:1.\n"))

	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Network passphrase").
				Description("Mixed into every signature; clients must use the same value").
				Value(&ans.Network).
				Validate(notEmpty("network")),
			huh.NewInput().
				Title("Contract identity").
				Value(&ans.Contract).
				Validate(notEmpty("contract")),
		),
	).Run()
	if err != nil {
		return err
	}

	step("STEP 2: ASSETS")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Asset A").
				Description("Asset id, e.g. USDC").
				Value(&ans.AssetA).
				Validate(notEmpty("asset A")),
			huh.NewInput().
				Title("Asset B").
				Description("Must differ from asset A").
				Value(&ans.AssetB).
				Validate(func(s string) error {
					_, err := domain.NewAssetPair(domain.AssetID(ans.AssetA), domain.AssetID(s))
					return err
				}),
		),
	).Run()
	if err != nil {
		return err
	}

	step("STEP 3: STORAGE")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Instance storage").
				Options(
					huh.NewOption("Write-ahead log", config.StorageWAL),
					huh.NewOption("Badger", config.StorageBadger),
					huh.NewOption("Redis", config.StorageRedis),
					huh.NewOption("Memory (lost on restart)", config.StorageMemory),
				).
				Value(&ans.StorageBackend),
		),
	).Run()
	if err != nil {
		return err
	}

	switch ans.StorageBackend {
	case config.StorageRedis:
		err = huh.NewForm(huh.NewGroup(
			huh.NewInput().
				Title("Redis address").
				Description("host:port, password from SIMPLESWAP_REDIS_PASSWORD").
				Value(&ans.RedisAddr).
				Validate(validateHostPort),
		)).Run()
	case config.StorageWAL, config.StorageBadger:
		err = huh.NewForm(huh.NewGroup(
			huh.NewInput().
				Title("Storage directory").
				Description("Leave empty for the default").
				Value(&ans.StorageDir),
		)).Run()
	}
	if err != nil {
		return err
	}

	step("STEP 4: LEDGER")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Ledger backend").
				Options(
					huh.NewOption("SQLite", config.LedgerSQLite),
					huh.NewOption("Memory with JSON snapshots", config.LedgerMemory),
				).
				Value(&ans.LedgerBackend),
			huh.NewInput().
				Title("Ledger path").
				Description("Leave empty for the default").
				Value(&ans.LedgerPath),
			huh.NewConfirm().
				Title("Enable faucet?").
				Description("Anyone can mint through POST /v1/fund. Test networks only.").
				Value(&ans.Faucet),
		),
	).Run()
	if err != nil {
		return err
	}

	step("STEP 5: HTTP")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Listen address").
				Value(&ans.HTTPAddr).
				Validate(validateHostPort),
		),
	).Run()
	if err != nil {
		return err
	}

	step("FINAL CONFIRMATION")
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(ans.Summary()))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save Configuration?").
				Affirmative("Yes, save").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}
	if !confirm {
		return fmt.Errorf("setup cancelled by user")
	}

	if err := Write(DefaultFile, ans); err != nil {
		return err
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(
		fmt.Sprintf("\n✓ Configuration saved to %s\nRun: swapd -config %s", DefaultFile, DefaultFile)))
	time.Sleep(500 * time.Millisecond)
	return nil
}

// Summary renders the answers for the confirmation step.
func (a Answers) Summary() string {
	return fmt.Sprintf(
		"Network: %s\nContract: %s\nPair: %s / %s\nStorage: %s\nLedger: %s\nFaucet: %t\nHTTP: %s\n",
		a.Network, a.Contract, a.AssetA, a.AssetB, a.StorageBackend, a.LedgerBackend, a.Faucet, a.HTTPAddr,
	)
}

// Config converts answers to the yaml config layout.
func (a Answers) Config() config.ConfigTmp {
	return config.ConfigTmp{
		Network:  a.Network,
		Contract: a.Contract,
		AssetA:   strings.TrimSpace(a.AssetA),
		AssetB:   strings.TrimSpace(a.AssetB),
		Storage: config.StorageTmp{
			Backend:   a.StorageBackend,
			Dir:       a.StorageDir,
			RedisAddr: a.RedisAddr,
		},
		Ledger: config.LedgerTmp{
			Backend: a.LedgerBackend,
			Path:    a.LedgerPath,
			Faucet:  a.Faucet,
		},
		HTTP: config.HTTPTmp{Addr: a.HTTPAddr},
	}
}

// Write validates answers and saves them as yaml to path.
func Write(path string, a Answers) error {
	tmp := a.Config()
	if _, err := config.Parse(tmp); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	data, err := yaml.Marshal(tmp)
	if err != nil {
		return fmt.Errorf("failed to generate yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}
	return nil
}

func notEmpty(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s cannot be empty", field)
		}
		return nil
	}
}

func validateHostPort(s string) error {
	if _, _, err := net.SplitHostPort(s); err != nil {
		return fmt.Errorf("must be host:port, e.g. :8080")
	}
	return nil
}
