package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"marginguard/internal/domain"
)

// RebalanceStore implements domain.RebalanceStore using PostgreSQL. Token
// amounts are stored as NUMERIC(78,0) so full uint256 values round-trip
// without loss; they are selected back as text and parsed into big.Int.
type RebalanceStore struct {
	pool *pgxpool.Pool
}

// NewRebalanceStore creates a RebalanceStore backed by the given pool.
func NewRebalanceStore(pool *pgxpool.Pool) *RebalanceStore {
	return &RebalanceStore{pool: pool}
}

const rebalanceColumns = `id, account_owner, account_number, margin_bps, threshold_bps,
	amount_in::text, min_out::text, amount_received::text, caller, created_at`

// Create appends a new rebalance record. Records are immutable once written.
func (s *RebalanceStore) Create(ctx context.Context, rec domain.RebalanceRecord) error {
	const query = `
		INSERT INTO rebalances
			(id, account_owner, account_number, margin_bps, threshold_bps,
			 amount_in, min_out, amount_received, caller, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8::numeric, $9, $10)`

	_, err := s.pool.Exec(ctx, query,
		rec.ID, rec.AccountOwner, rec.AccountNumber,
		rec.MarginBps, rec.ThresholdBps,
		bigString(rec.AmountIn), bigString(rec.MinOut), bigString(rec.AmountReceived),
		rec.Caller, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create rebalance %s: %w", rec.ID, err)
	}
	return nil
}

// GetByID returns a single rebalance record by its UUID.
func (s *RebalanceStore) GetByID(ctx context.Context, id string) (domain.RebalanceRecord, error) {
	query := `SELECT ` + rebalanceColumns + ` FROM rebalances WHERE id = $1`

	rec, err := scanRebalance(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.RebalanceRecord{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.RebalanceRecord{}, fmt.Errorf("postgres: get rebalance %s: %w", id, err)
	}
	return rec, nil
}

// ListByAccount returns records for one position owner, newest first.
func (s *RebalanceStore) ListByAccount(ctx context.Context, ownerHex string, opts domain.ListOpts) ([]domain.RebalanceRecord, error) {
	query := `SELECT ` + rebalanceColumns + ` FROM rebalances WHERE account_owner = $1`
	args := []any{ownerHex}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	return s.queryRebalances(ctx, query, args...)
}

// ListRecent returns the most recent records across all accounts.
func (s *RebalanceStore) ListRecent(ctx context.Context, limit int) ([]domain.RebalanceRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + rebalanceColumns + ` FROM rebalances ORDER BY created_at DESC LIMIT $1`
	return s.queryRebalances(ctx, query, limit)
}

// ListBefore returns all records older than cutoff, oldest first. Used by
// the archiver to page aged rows out to cold storage.
func (s *RebalanceStore) ListBefore(ctx context.Context, cutoff time.Time) ([]domain.RebalanceRecord, error) {
	query := `SELECT ` + rebalanceColumns + ` FROM rebalances WHERE created_at < $1 ORDER BY created_at ASC`
	return s.queryRebalances(ctx, query, cutoff)
}

// DeleteBefore removes records older than cutoff and reports how many rows
// were deleted.
func (s *RebalanceStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM rebalances WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete rebalances before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

func (s *RebalanceStore) queryRebalances(ctx context.Context, query string, args ...any) ([]domain.RebalanceRecord, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list rebalances: %w", err)
	}
	defer rows.Close()

	var recs []domain.RebalanceRecord
	for rows.Next() {
		rec, err := scanRebalance(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan rebalance: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list rebalances rows: %w", err)
	}
	return recs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRebalance(row rowScanner) (domain.RebalanceRecord, error) {
	var (
		rec                    domain.RebalanceRecord
		amountIn, minOut, recv string
	)
	if err := row.Scan(
		&rec.ID, &rec.AccountOwner, &rec.AccountNumber,
		&rec.MarginBps, &rec.ThresholdBps,
		&amountIn, &minOut, &recv,
		&rec.Caller, &rec.CreatedAt,
	); err != nil {
		return domain.RebalanceRecord{}, err
	}

	var err error
	if rec.AmountIn, err = parseBig(amountIn); err != nil {
		return domain.RebalanceRecord{}, err
	}
	if rec.MinOut, err = parseBig(minOut); err != nil {
		return domain.RebalanceRecord{}, err
	}
	if rec.AmountReceived, err = parseBig(recv); err != nil {
		return domain.RebalanceRecord{}, err
	}
	return rec, nil
}

func bigString(n *big.Int) string {
	if n == nil {
		return "0"
	}
	return n.String()
}

func parseBig(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("malformed numeric %q", s)
	}
	return n, nil
}
