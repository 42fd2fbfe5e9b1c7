package ledger

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/vadiminshakov/simpleswap/internal/domain"
)

// SQLLedger keeps balances and applied transfers in SQLite. Every transfer runs in a
// database transaction, and Atomically groups several calls into one.
type SQLLedger struct {
	db     *sql.DB
	logger *zap.Logger
}

// OpenSQLite opens (creating if needed) the ledger database at path.
func OpenSQLite(ctx context.Context, path string, logger *zap.Logger) (*SQLLedger, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "create ledger db dir")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	// single connection keeps SQLite writers serialized
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	l := &SQLLedger{db: db, logger: logger}
	if err := l.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

func (l *SQLLedger) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`CREATE TABLE IF NOT EXISTS balances (
			asset  TEXT NOT NULL,
			holder TEXT NOT NULL,
			amount TEXT NOT NULL DEFAULT '0',
			frozen INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (asset, holder)
		);`,
		`CREATE TABLE IF NOT EXISTS transfers (
			id         TEXT PRIMARY KEY,
			asset      TEXT NOT NULL,
			sender     TEXT NOT NULL,
			recipient  TEXT NOT NULL,
			amount     TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := l.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "migrate ledger db")
		}
	}
	return nil
}

// Close closes the database.
func (l *SQLLedger) Close() error {
	return l.db.Close()
}

func (l *SQLLedger) BalanceOf(ctx context.Context, asset domain.AssetID, holder domain.Identity) (domain.Amount, error) {
	return (&sqlTx{q: l.db}).BalanceOf(ctx, asset, holder)
}

func (l *SQLLedger) Transfer(ctx context.Context, t Transfer) error {
	return l.Atomically(ctx, func(ctx context.Context, tx Ledger) error {
		return tx.Transfer(ctx, t)
	})
}

// Atomically runs fn inside one database transaction, rolled back on error.
func (l *SQLLedger) Atomically(ctx context.Context, fn func(ctx context.Context, tx Ledger) error) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin ledger tx")
	}
	if err := fn(ctx, &sqlTx{q: tx, logger: l.logger}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			l.logger.Error("ledger rollback failed", zap.Error(rbErr))
		}
		return err
	}
	return errors.Wrap(tx.Commit(), "commit ledger tx")
}

func (l *SQLLedger) Applied(ctx context.Context, transferID string) (bool, error) {
	return (&sqlTx{q: l.db}).applied(ctx, transferID)
}

// Mint credits amount of asset to holder.
func (l *SQLLedger) Mint(ctx context.Context, asset domain.AssetID, to domain.Identity, amount domain.Amount) error {
	if amount.IsNegative() {
		return ErrNegativeAmount
	}
	return l.Atomically(ctx, func(ctx context.Context, tx Ledger) error {
		v := tx.(*sqlTx)
		balance, err := v.BalanceOf(ctx, asset, to)
		if err != nil {
			return err
		}
		next, err := balance.Add(amount)
		if err != nil {
			return err
		}
		return v.setBalance(ctx, asset, to, next)
	})
}

// Freeze blocks (or unblocks) transfers from and to holder for asset.
func (l *SQLLedger) Freeze(ctx context.Context, asset domain.AssetID, holder domain.Identity, frozen bool) error {
	flag := 0
	if frozen {
		flag = 1
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO balances (asset, holder, frozen) VALUES (?, ?, ?)
		 ON CONFLICT(asset, holder) DO UPDATE SET frozen = excluded.frozen`,
		asset.String(), holder.String(), flag)
	return errors.Wrap(err, "freeze holder")
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type sqlTx struct {
	q      querier
	logger *zap.Logger
}

func (tx *sqlTx) BalanceOf(ctx context.Context, asset domain.AssetID, holder domain.Identity) (domain.Amount, error) {
	amount, _, err := tx.account(ctx, asset, holder)
	return amount, err
}

func (tx *sqlTx) account(ctx context.Context, asset domain.AssetID, holder domain.Identity) (domain.Amount, bool, error) {
	var (
		raw    string
		frozen int
	)
	err := tx.q.QueryRowContext(ctx,
		`SELECT amount, frozen FROM balances WHERE asset = ? AND holder = ?`,
		asset.String(), holder.String()).Scan(&raw, &frozen)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Amount{}, false, nil
	}
	if err != nil {
		return domain.Amount{}, false, errors.Wrap(err, "read balance")
	}
	amount, err := domain.ParseAmount(raw)
	if err != nil {
		return domain.Amount{}, false, errors.Wrapf(err, "decode %s balance of %s", asset, holder)
	}
	return amount, frozen != 0, nil
}

func (tx *sqlTx) setBalance(ctx context.Context, asset domain.AssetID, holder domain.Identity, amount domain.Amount) error {
	_, err := tx.q.ExecContext(ctx,
		`INSERT INTO balances (asset, holder, amount) VALUES (?, ?, ?)
		 ON CONFLICT(asset, holder) DO UPDATE SET amount = excluded.amount`,
		asset.String(), holder.String(), amount.String())
	return errors.Wrap(err, "write balance")
}

func (tx *sqlTx) applied(ctx context.Context, transferID string) (bool, error) {
	var one int
	err := tx.q.QueryRowContext(ctx, `SELECT 1 FROM transfers WHERE id = ?`, transferID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "read transfer")
	}
	return true, nil
}

func (tx *sqlTx) Transfer(ctx context.Context, t Transfer) error {
	if err := validate(t); err != nil {
		return err
	}
	if t.ID != "" {
		done, err := tx.applied(ctx, t.ID)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
	if err := authorize(t); err != nil {
		return err
	}

	fromBalance, fromFrozen, err := tx.account(ctx, t.Asset, t.From)
	if err != nil {
		return err
	}
	toBalance, toFrozen, err := tx.account(ctx, t.Asset, t.To)
	if err != nil {
		return err
	}
	if fromFrozen {
		return errors.Wrapf(ErrFrozen, "%s on %s", t.From, t.Asset)
	}
	if toFrozen {
		return errors.Wrapf(ErrFrozen, "%s on %s", t.To, t.Asset)
	}
	if fromBalance.LessThan(t.Amount) {
		return errors.Wrapf(ErrInsufficientBalance, "%s has %s %s, needs %s", t.From, fromBalance, t.Asset, t.Amount)
	}

	if t.From != t.To {
		debited, err := fromBalance.Sub(t.Amount)
		if err != nil {
			return err
		}
		credited, err := toBalance.Add(t.Amount)
		if err != nil {
			return err
		}
		if err := tx.setBalance(ctx, t.Asset, t.From, debited); err != nil {
			return err
		}
		if err := tx.setBalance(ctx, t.Asset, t.To, credited); err != nil {
			return err
		}
	}

	if t.ID != "" {
		if _, err := tx.q.ExecContext(ctx,
			`INSERT INTO transfers (id, asset, sender, recipient, amount, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			t.ID, t.Asset.String(), t.From.String(), t.To.String(), t.Amount.String(), time.Now().UnixMilli()); err != nil {
			return errors.Wrap(err, "record transfer")
		}
	}

	if tx.logger != nil {
		tx.logger.Debug("transfer applied",
			zap.String("id", t.ID),
			zap.String("asset", t.Asset.String()),
			zap.String("from", t.From.String()),
			zap.String("to", t.To.String()),
			zap.String("amount", t.Amount.String()))
	}
	return nil
}
