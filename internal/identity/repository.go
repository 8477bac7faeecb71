package identity

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/debtledger/internal/ledger"
)

const uniqueViolation = "23505"

// Repository persists accounts.
type Repository interface {
	Create(ctx context.Context, account Account) error
	FindByAddress(ctx context.Context, address ledger.Address) (Account, error)
	UpdateTokenVersion(ctx context.Context, address ledger.Address, version int) error
	UpdatePassphraseHash(ctx context.Context, address ledger.Address, hash []byte) error
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed account repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new account.
func (r *PostgresRepository) Create(ctx context.Context, account Account) error {
	_, err := r.db.Exec(ctx, `INSERT INTO accounts (address, passphrase_hash, token_version, created_at)
        VALUES ($1, $2, $3, $4)`, string(account.Address), account.PassphraseHash, account.TokenVersion, account.CreatedAt.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrAccountExists
	}
	return err
}

// FindByAddress fetches an account by address.
func (r *PostgresRepository) FindByAddress(ctx context.Context, address ledger.Address) (Account, error) {
	row := r.db.QueryRow(ctx, `SELECT passphrase_hash, token_version, created_at FROM accounts WHERE address = $1`, string(address))
	var (
		account   = Account{Address: address}
		createdAt time.Time
	)
	if err := row.Scan(&account.PassphraseHash, &account.TokenVersion, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	account.CreatedAt = createdAt.UTC()
	return account, nil
}

// UpdateTokenVersion stores a new token version, invalidating older tokens.
func (r *PostgresRepository) UpdateTokenVersion(ctx context.Context, address ledger.Address, version int) error {
	cmd, err := r.db.Exec(ctx, `UPDATE accounts SET token_version = $1 WHERE address = $2`, version, string(address))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// UpdatePassphraseHash replaces the stored passphrase hash.
func (r *PostgresRepository) UpdatePassphraseHash(ctx context.Context, address ledger.Address, hash []byte) error {
	cmd, err := r.db.Exec(ctx, `UPDATE accounts SET passphrase_hash = $1 WHERE address = $2`, hash, string(address))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}
