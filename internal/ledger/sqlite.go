package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tradeproof/engine/internal/pnl"
	"github.com/tradeproof/engine/internal/symbols"
)

const schema = `
CREATE TABLE IF NOT EXISTS lots (
	id TEXT PRIMARY KEY,
	owner TEXT NOT NULL,
	symbol TEXT NOT NULL,
	raw_symbol TEXT NOT NULL DEFAULT '',
	asset_class TEXT NOT NULL,
	side TEXT NOT NULL,
	quantity REAL NOT NULL,
	entry_price REAL NOT NULL,
	entry_time DATETIME NOT NULL,
	pip_size REAL NOT NULL,
	pip_value REAL NOT NULL,
	open INTEGER NOT NULL,
	exit_price REAL,
	exit_time DATETIME,
	realized_pnl REAL,
	realized_pnl_pct REAL
);

CREATE INDEX IF NOT EXISTS idx_lots_owner_symbol_open ON lots(owner, symbol, open);
CREATE INDEX IF NOT EXISTS idx_lots_entry_time ON lots(entry_time);
`

// SQLiteStore persists lots in SQLite. ApplyMatch runs in one transaction so
// an exit commits all of its closures or none.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) InsertLot(ctx context.Context, lot Lot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lots
		(id, owner, symbol, raw_symbol, asset_class, side, quantity, entry_price, entry_time,
		 pip_size, pip_value, open, exit_price, exit_time, realized_pnl, realized_pnl_pct)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		lot.ID, lot.Owner, lot.Symbol, lot.RawSymbol, string(lot.Class), string(lot.Side),
		lot.Quantity, lot.EntryPrice, lot.EntryTime.UTC(),
		lot.PipSize, lot.PipValue, boolInt(lot.Open),
		lot.ExitPrice, nullTime(lot.ExitTime), lot.RealizedPnL, lot.RealizedPnLPct,
	)
	return err
}

func (s *SQLiteStore) OpenLots(ctx context.Context, owner, symbol string) ([]Lot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner, symbol, raw_symbol, asset_class, side, quantity, entry_price, entry_time,
		       pip_size, pip_value, open, exit_price, exit_time, realized_pnl, realized_pnl_pct
		FROM lots
		WHERE owner = ? AND symbol = ? AND open = 1
		ORDER BY entry_time ASC, id ASC`, owner, symbol)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLots(rows)
}

func (s *SQLiteStore) LotsByOwner(ctx context.Context, owner string) ([]Lot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner, symbol, raw_symbol, asset_class, side, quantity, entry_price, entry_time,
		       pip_size, pip_value, open, exit_price, exit_time, realized_pnl, realized_pnl_pct
		FROM lots
		WHERE owner = ?
		ORDER BY entry_time ASC, id ASC`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLots(rows)
}

func (s *SQLiteStore) ApplyMatch(ctx context.Context, res MatchResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, lot := range res.ClosedLots {
		// Split-off records are new rows; full closes update in place.
		_, err := tx.ExecContext(ctx, `
			INSERT INTO lots
			(id, owner, symbol, raw_symbol, asset_class, side, quantity, entry_price, entry_time,
			 pip_size, pip_value, open, exit_price, exit_time, realized_pnl, realized_pnl_pct)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				quantity = excluded.quantity,
				open = 0,
				exit_price = excluded.exit_price,
				exit_time = excluded.exit_time,
				realized_pnl = excluded.realized_pnl,
				realized_pnl_pct = excluded.realized_pnl_pct`,
			lot.ID, lot.Owner, lot.Symbol, lot.RawSymbol, string(lot.Class), string(lot.Side),
			lot.Quantity, lot.EntryPrice, lot.EntryTime.UTC(),
			lot.PipSize, lot.PipValue,
			lot.ExitPrice, nullTime(lot.ExitTime), lot.RealizedPnL, lot.RealizedPnLPct,
		)
		if err != nil {
			return err
		}
	}
	for _, lot := range res.UpdatedLots {
		if _, err := tx.ExecContext(ctx,
			`UPDATE lots SET quantity = ? WHERE id = ? AND open = 1`,
			lot.Quantity, lot.ID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func scanLots(rows *sql.Rows) ([]Lot, error) {
	var out []Lot
	for rows.Next() {
		var (
			lot       Lot
			class     string
			side      string
			openInt   int
			exitPrice sql.NullFloat64
			exitTime  sql.NullTime
			rpnl      sql.NullFloat64
			rpct      sql.NullFloat64
		)
		if err := rows.Scan(&lot.ID, &lot.Owner, &lot.Symbol, &lot.RawSymbol, &class, &side,
			&lot.Quantity, &lot.EntryPrice, &lot.EntryTime,
			&lot.PipSize, &lot.PipValue, &openInt,
			&exitPrice, &exitTime, &rpnl, &rpct); err != nil {
			return nil, err
		}
		lot.Class = symbols.AssetClass(class)
		lot.Side = pnl.Side(side)
		lot.Open = openInt == 1
		if exitPrice.Valid {
			lot.ExitPrice = &exitPrice.Float64
		}
		if exitTime.Valid {
			t := exitTime.Time.UTC()
			lot.ExitTime = &t
		}
		if rpnl.Valid {
			lot.RealizedPnL = &rpnl.Float64
		}
		if rpct.Valid {
			lot.RealizedPnLPct = &rpct.Float64
		}
		out = append(out, lot)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
