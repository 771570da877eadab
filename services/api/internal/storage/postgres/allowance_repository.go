package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/delvillarfr/le-ultracivic/services/api/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const allowanceColumns = `serial_number, status, order_id, wallet, message, tx_hash, reward_tx_hash, timestamp, created_at, updated_at`

type AllowanceRepository struct {
	pool *pgxpool.Pool
}

func NewAllowanceRepository(pool *pgxpool.Pool) *AllowanceRepository {
	return &AllowanceRepository{pool: pool}
}

func (r *AllowanceRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

// AcquireAvailable selects up to n available rows, skipping rows locked by a
// concurrent acquisition instead of blocking on them. Callers must run it
// inside WithTx so the row locks are held until the reservation commits; two
// simultaneous callers can never receive overlapping row sets. Returns fewer
// than n rows when inventory is short.
func (r *AllowanceRepository) AcquireAvailable(ctx context.Context, n int) ([]domain.Allowance, error) {
	query := fmt.Sprintf(`
SELECT %s
FROM allowances
WHERE status = 'AVAILABLE'
ORDER BY serial_number
LIMIT $1
FOR UPDATE SKIP LOCKED`, allowanceColumns)

	rows, err := r.query(ctx, query, n)
	if err != nil {
		return nil, fmt.Errorf("acquire available: %w", err)
	}
	defer rows.Close()
	return scanAllowances(rows)
}

func (r *AllowanceRepository) FindByOrder(ctx context.Context, orderID string) ([]domain.Allowance, error) {
	query := fmt.Sprintf(`
SELECT %s
FROM allowances
WHERE order_id = $1
ORDER BY serial_number`, allowanceColumns)

	rows, err := r.query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("find by order: %w", err)
	}
	defer rows.Close()
	return scanAllowances(rows)
}

// Reserve moves the given serials to RESERVED under a fresh order id. The
// batch transitions together or not at all; run inside WithTx together with
// AcquireAvailable.
func (r *AllowanceRepository) Reserve(ctx context.Context, serials []string, orderID, wallet string, message *string, now time.Time) error {
	const stmt = `
UPDATE allowances
SET status = 'RESERVED', order_id = $1, wallet = $2, message = $3, timestamp = $4, updated_at = $4
WHERE serial_number = ANY($5) AND status = 'AVAILABLE'`

	tag, err := r.exec(ctx, stmt, orderID, wallet, message, now, serials)
	if err != nil {
		return fmt.Errorf("reserve allowances: %w", err)
	}
	if int(tag.RowsAffected()) != len(serials) {
		return domain.ErrInsufficientInventory
	}
	return nil
}

// SetTxHash records the payment transaction on all member rows. The guard on
// status and a null tx_hash makes a duplicate confirmation a no-op at the
// storage level; callers surface zero affected rows as a conflict.
func (r *AllowanceRepository) SetTxHash(ctx context.Context, orderID, txHash string, now time.Time) (int64, error) {
	const stmt = `
UPDATE allowances
SET tx_hash = $2, updated_at = $3
WHERE order_id = $1 AND status = 'RESERVED' AND tx_hash IS NULL`

	tag, err := r.exec(ctx, stmt, orderID, txHash, now)
	if err != nil {
		return 0, fmt.Errorf("set tx hash: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListInFlight returns one representative row per order that has a payment
// transaction recorded but has not reached a terminal state. Orders that were
// retired or released drop out of this candidate set, which is what makes the
// monitor tick safe to re-run.
func (r *AllowanceRepository) ListInFlight(ctx context.Context) ([]domain.Allowance, error) {
	query := fmt.Sprintf(`
SELECT DISTINCT ON (order_id) %s
FROM allowances
WHERE status = 'RESERVED' AND tx_hash IS NOT NULL
ORDER BY order_id, serial_number`, allowanceColumns)

	rows, err := r.query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list in-flight: %w", err)
	}
	defer rows.Close()
	return scanAllowances(rows)
}

// Retire finalizes an order: all member rows move to RETIRED with the reward
// transaction hash in one statement. Returns the number of rows transitioned;
// zero means another actor already drove the order to a terminal state.
func (r *AllowanceRepository) Retire(ctx context.Context, orderID, rewardTxHash string, now time.Time) (int64, error) {
	const stmt = `
UPDATE allowances
SET status = 'RETIRED', reward_tx_hash = $2, updated_at = $3
WHERE order_id = $1 AND status = 'RESERVED'`

	tag, err := r.exec(ctx, stmt, orderID, rewardTxHash, now)
	if err != nil {
		return 0, fmt.Errorf("retire order: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Release rolls an order's rows back to pristine AVAILABLE state, recycling
// the inventory. Only RESERVED rows are touched so a completed order can
// never regress.
func (r *AllowanceRepository) Release(ctx context.Context, orderID string, now time.Time) (int64, error) {
	const stmt = `
UPDATE allowances
SET status = 'AVAILABLE', order_id = NULL, wallet = NULL, message = NULL,
    tx_hash = NULL, reward_tx_hash = NULL, timestamp = NULL, updated_at = $2
WHERE order_id = $1 AND status = 'RESERVED'`

	tag, err := r.exec(ctx, stmt, orderID, now)
	if err != nil {
		return 0, fmt.Errorf("release order: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ReleaseExpired reclaims reservations older than cutoff regardless of
// payment state. Returns the distinct order ids released and the row count.
func (r *AllowanceRepository) ReleaseExpired(ctx context.Context, cutoff, now time.Time) ([]string, int, error) {
	return r.releaseWhere(ctx, `status = 'RESERVED' AND timestamp < $1`, cutoff, now)
}

// ReleaseStuck reclaims orders that recorded a payment but were never driven
// to a terminal state within the extended window.
func (r *AllowanceRepository) ReleaseStuck(ctx context.Context, cutoff, now time.Time) ([]string, int, error) {
	return r.releaseWhere(ctx, `status = 'RESERVED' AND tx_hash IS NOT NULL AND timestamp < $1`, cutoff, now)
}

func (r *AllowanceRepository) releaseWhere(ctx context.Context, cond string, cutoff, now time.Time) ([]string, int, error) {
	var orders []string
	var count int

	err := r.WithTx(ctx, func(txCtx context.Context) error {
		// DISTINCT does not combine with FOR UPDATE, so lock row-level
		// candidates and dedupe order ids here.
		query := fmt.Sprintf(`
SELECT order_id FROM allowances WHERE %s AND order_id IS NOT NULL FOR UPDATE SKIP LOCKED`, cond)
		rows, err := r.query(txCtx, query, cutoff)
		if err != nil {
			return fmt.Errorf("select reclaim candidates: %w", err)
		}
		seen := make(map[string]struct{})
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return fmt.Errorf("scan reclaim candidate: %w", err)
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			orders = append(orders, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate reclaim candidates: %w", err)
		}
		if len(orders) == 0 {
			return nil
		}

		// Candidate rows are locked above; matching on order id keeps every
		// member of a matched order moving together.
		const stmt = `
UPDATE allowances
SET status = 'AVAILABLE', order_id = NULL, wallet = NULL, message = NULL,
    tx_hash = NULL, reward_tx_hash = NULL, timestamp = NULL, updated_at = $2
WHERE order_id = ANY($1) AND status = 'RESERVED'`
		tag, err := r.exec(txCtx, stmt, orders, now)
		if err != nil {
			return fmt.Errorf("release reclaim candidates: %w", err)
		}
		count = int(tag.RowsAffected())
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return orders, count, nil
}

func (r *AllowanceRepository) CountByStatus(ctx context.Context) (map[domain.AllowanceStatus]int, error) {
	const query = `SELECT status, COUNT(*) FROM allowances GROUP BY status`

	rows, err := r.query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.AllowanceStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[domain.AllowanceStatus(status)] = n
	}
	return counts, rows.Err()
}

// CountReclaimable reports how many RESERVED rows are past cutoff, optionally
// restricted to rows that carry a payment transaction.
func (r *AllowanceRepository) CountReclaimable(ctx context.Context, cutoff time.Time, withTxHash bool) (int, error) {
	query := `SELECT COUNT(*) FROM allowances WHERE status = 'RESERVED' AND timestamp < $1`
	if withTxHash {
		query += ` AND tx_hash IS NOT NULL`
	}

	var n int
	if err := r.queryRow(ctx, query, cutoff).Scan(&n); err != nil {
		return 0, fmt.Errorf("count reclaimable: %w", err)
	}
	return n, nil
}

// ListCompleted returns completed orders grouped by order id, most recently
// retired first.
func (r *AllowanceRepository) ListCompleted(ctx context.Context, limit, offset int) ([]domain.Order, error) {
	const query = `
SELECT order_id,
       ARRAY_AGG(serial_number ORDER BY serial_number),
       MAX(wallet), MAX(message), MAX(tx_hash), MAX(reward_tx_hash),
       MAX(updated_at) AS completed_at
FROM allowances
WHERE status = 'RETIRED' AND order_id IS NOT NULL
GROUP BY order_id
ORDER BY completed_at DESC
LIMIT $1 OFFSET $2`

	rows, err := r.query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list completed: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		var (
			o       domain.Order
			wallet  *string
			message *string
			txHash  *string
			reward  *string
		)
		if err := rows.Scan(&o.ID, &o.SerialNumbers, &wallet, &message, &txHash, &reward, &o.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan completed order: %w", err)
		}
		o.Status = domain.OrderCompleted
		if wallet != nil {
			o.Wallet = *wallet
		}
		if message != nil {
			o.Message = *message
		}
		if txHash != nil {
			o.TxHash = *txHash
		}
		if reward != nil {
			o.RewardTxHash = *reward
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// SeedSerials inserts available allowance rows, ignoring serials that already
// exist. Used by cmd/seed and the test fixtures.
func (r *AllowanceRepository) SeedSerials(ctx context.Context, serials []string) (int, error) {
	const stmt = `
INSERT INTO allowances (serial_number, status)
VALUES ($1, 'AVAILABLE')
ON CONFLICT (serial_number) DO NOTHING`

	inserted := 0
	for _, serial := range serials {
		tag, err := r.exec(ctx, stmt, serial)
		if err != nil {
			if isUniqueViolation(err) {
				continue
			}
			return inserted, fmt.Errorf("seed serial %s: %w", serial, err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

func scanAllowances(rows pgx.Rows) ([]domain.Allowance, error) {
	var out []domain.Allowance
	for rows.Next() {
		var a domain.Allowance
		var status string
		err := rows.Scan(
			&a.SerialNumber,
			&status,
			&a.OrderID,
			&a.Wallet,
			&a.Message,
			&a.TxHash,
			&a.RewardTxHash,
			&a.Timestamp,
			&a.CreatedAt,
			&a.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan allowance: %w", err)
		}
		a.Status = domain.AllowanceStatus(status)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *AllowanceRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *AllowanceRepository) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return r.pool.Query(ctx, sql, args...)
}

func (r *AllowanceRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}
