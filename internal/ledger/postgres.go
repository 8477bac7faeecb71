package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLedger persists debts and their event log in PostgreSQL.
type PostgresLedger struct {
	db    *pgxpool.Pool
	owner Address
}

// NewPostgresLedger binds the database to owner. A database already bound to a
// different owner is rejected with ErrOwnerMismatch.
func NewPostgresLedger(ctx context.Context, db *pgxpool.Pool, owner Address) (*PostgresLedger, error) {
	if _, err := db.Exec(ctx, `INSERT INTO ledger_owner (id, owner) VALUES (TRUE, $1)
        ON CONFLICT (id) DO NOTHING`, string(owner)); err != nil {
		return nil, fmt.Errorf("bind ledger owner: %w", err)
	}
	var bound string
	if err := db.QueryRow(ctx, `SELECT owner FROM ledger_owner WHERE id`).Scan(&bound); err != nil {
		return nil, fmt.Errorf("read ledger owner: %w", err)
	}
	if Address(bound) != owner {
		return nil, fmt.Errorf("%w: %s", ErrOwnerMismatch, bound)
	}
	return &PostgresLedger{db: db, owner: owner}, nil
}

// Owner returns the address allowed to repay debts.
func (l *PostgresLedger) Owner() Address {
	return l.owner
}

// Borrow increases the caller's debt inside a single transaction.
func (l *PostgresLedger) Borrow(ctx context.Context, caller Address, amount *big.Int) (Receipt, error) {
	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Receipt{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	current, err := lockDebt(ctx, tx, caller)
	if err != nil {
		return Receipt{}, err
	}
	next, applied, err := borrowTransition(l.owner, caller, current, amount)
	if err != nil {
		return Receipt{}, err
	}
	if !applied {
		return Receipt{Success: false}, nil
	}

	ev, err := applyDebt(ctx, tx, caller, next, EventBorrowed, amount)
	if err != nil {
		return Receipt{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Receipt{}, err
	}
	return Receipt{Success: true, Events: []Event{ev}}, nil
}

// Repay decreases account's debt on behalf of the owner.
func (l *PostgresLedger) Repay(ctx context.Context, caller, account Address, amount *big.Int) (Receipt, error) {
	if err := checkAmount(amount); err != nil {
		return Receipt{}, err
	}
	if caller != l.owner {
		return Receipt{}, ErrUnauthorized
	}

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Receipt{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	current, err := lockDebt(ctx, tx, account)
	if err != nil {
		return Receipt{}, err
	}
	next, err := repayTransition(l.owner, caller, current, amount)
	if err != nil {
		return Receipt{}, err
	}

	ev, err := applyDebt(ctx, tx, account, next, EventRepayed, amount)
	if err != nil {
		return Receipt{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Receipt{}, err
	}
	return Receipt{Success: true, Events: []Event{ev}}, nil
}

// CallRepay evaluates Repay's preconditions against the committed balance.
func (l *PostgresLedger) CallRepay(ctx context.Context, caller, account Address, amount *big.Int) (bool, error) {
	current, err := l.Debt(ctx, account)
	if err != nil {
		return false, err
	}
	if _, err := repayTransition(l.owner, caller, current, amount); err != nil {
		return false, err
	}
	return true, nil
}

// Debt returns the committed balance for account, zero when unseen.
func (l *PostgresLedger) Debt(ctx context.Context, account Address) (*big.Int, error) {
	var raw string
	err := l.db.QueryRow(ctx, `SELECT balance::text FROM debts WHERE account = $1`, string(account)).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return new(big.Int), nil
		}
		return nil, err
	}
	return parseNumeric(raw)
}

// Events returns the event history in emission order.
func (l *PostgresLedger) Events(ctx context.Context, filter EventFilter) ([]Event, error) {
	const query = `
        SELECT id, name, account, value::text, created_at
        FROM debt_events
        WHERE ($1 = '' OR account = $1)
        ORDER BY seq DESC
        LIMIT $2`
	var limit *int
	if filter.Limit > 0 {
		limit = &filter.Limit
	}
	rows, err := l.db.Query(ctx, query, string(filter.Account), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			ev       Event
			account  string
			rawValue string
			at       time.Time
		)
		if err := rows.Scan(&ev.ID, &ev.Name, &account, &rawValue, &at); err != nil {
			return nil, err
		}
		if ev.Value, err = parseNumeric(rawValue); err != nil {
			return nil, err
		}
		ev.By = Address(account)
		ev.At = at.UTC()
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func lockDebt(ctx context.Context, tx pgx.Tx, account Address) (*big.Int, error) {
	if _, err := tx.Exec(ctx, `INSERT INTO debts (account) VALUES ($1)
        ON CONFLICT (account) DO NOTHING`, string(account)); err != nil {
		return nil, err
	}
	var raw string
	if err := tx.QueryRow(ctx, `SELECT balance::text FROM debts WHERE account = $1 FOR UPDATE`, string(account)).Scan(&raw); err != nil {
		return nil, err
	}
	return parseNumeric(raw)
}

func applyDebt(ctx context.Context, tx pgx.Tx, account Address, balance *big.Int, name string, value *big.Int) (Event, error) {
	if _, err := tx.Exec(ctx, `UPDATE debts SET balance = $2::numeric, updated_at = now() WHERE account = $1`,
		string(account), balance.String()); err != nil {
		return Event{}, err
	}
	ev := newEvent(name, account, value)
	if _, err := tx.Exec(ctx, `INSERT INTO debt_events (id, name, account, value, created_at)
        VALUES ($1, $2, $3, $4::numeric, $5)`, ev.ID, ev.Name, string(ev.By), ev.Value.String(), ev.At); err != nil {
		return Event{}, err
	}
	return ev, nil
}

func parseNumeric(raw string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("unexpected numeric value %q", raw)
	}
	return v, nil
}
