package transaction

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/radityprtama/stock-app/internal/platform/db"
	"github.com/radityprtama/stock-app/internal/stock"
)

// ErrNotFound indicates a missing transaction.
var ErrNotFound = errors.New("transaction: not found")

// TxRepository exposes the operations available inside one posting unit of
// work. Ledger() shares the same database transaction, so balance deltas,
// ledger entries and the status change commit or roll back together.
type TxRepository interface {
	GetForUpdate(ctx context.Context, kind Kind, id int64) (Transaction, error)
	UpdateStatus(ctx context.Context, id int64, status Status, action Action, actorID int64, at time.Time) error
	MarkLinePosted(ctx context.Context, lineID int64, at time.Time) error
	SetLineDropship(ctx context.Context, lineID int64, dropship bool, status DropshipStatus) error
	Ledger() stock.TxStore
}

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, kind Kind, id int64) (Transaction, error)
	List(ctx context.Context, f ListFilter) ([]Transaction, int, error)
	Create(ctx context.Context, trx Transaction) (Transaction, error)
	Update(ctx context.Context, trx Transaction) error
	Delete(ctx context.Context, kind Kind, id int64) error
}

// Repository persists transactions in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// IsSerializationFailure reports a lost optimistic-concurrency race at the
// storage layer (serialization failure or deadlock detected).
func IsSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

// mapCreateError turns a doc_number unique violation into the retryable
// concurrency error. Two same-day creates can draw the same sequence from
// nextDocNumber; the loser resubmits and gets the next number.
func mapCreateError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return NewConcurrentModification()
	}
	return err
}

// WithTx wraps the callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const headerColumns = `
	id, kind, doc_number, date, counterparty_id, warehouse_id,
	dest_warehouse_id, delivery_option, status, notes, created_by,
	posted_at, posted_by, delivered_at, completed_at, cancelled_at,
	created_at, updated_at
`

func scanHeader(row pgx.Row) (Transaction, error) {
	var trx Transaction
	err := row.Scan(
		&trx.ID, &trx.Kind, &trx.DocNumber, &trx.Date, &trx.CounterpartyID,
		&trx.WarehouseID, &trx.DestWarehouseID, &trx.DeliveryOption,
		&trx.Status, &trx.Notes, &trx.CreatedBy,
		&trx.PostedAt, &trx.PostedBy, &trx.DeliveredAt, &trx.CompletedAt,
		&trx.CancelledAt, &trx.CreatedAt, &trx.UpdatedAt,
	)
	return trx, err
}

// Get fetches a transaction with its lines.
func (r *Repository) Get(ctx context.Context, kind Kind, id int64) (Transaction, error) {
	query := `SELECT ` + headerColumns + ` FROM transactions WHERE id = $1 AND kind = $2`
	trx, err := scanHeader(r.pool.QueryRow(ctx, query, id, kind))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrNotFound
		}
		return Transaction{}, fmt.Errorf("transaction: get: %w", err)
	}
	trx.Lines, err = loadLines(ctx, r.pool, id)
	if err != nil {
		return Transaction{}, err
	}
	return trx, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadLines(ctx context.Context, q querier, transactionID int64) ([]Line, error) {
	const query = `
		SELECT id, transaction_id, item_id, quantity, unit_price, subtotal,
		       reason, condition, dropship, dropship_status, posted_at
		FROM transaction_lines
		WHERE transaction_id = $1
		ORDER BY id
	`
	rows, err := q.Query(ctx, query, transactionID)
	if err != nil {
		return nil, fmt.Errorf("transaction: load lines: %w", err)
	}
	defer rows.Close()

	var lines []Line
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.TransactionID, &line.ItemID,
			&line.Quantity, &line.UnitPrice, &line.Subtotal, &line.Reason,
			&line.Condition, &line.Dropship, &line.DropshipStatus, &line.PostedAt); err != nil {
			return nil, fmt.Errorf("transaction: scan line: %w", err)
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// List pages transactions of one kind, newest first.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]Transaction, int, error) {
	where := ` WHERE kind = $1`
	args := []interface{}{f.Kind}
	if f.Status != "" {
		args = append(args, f.Status)
		where += ` AND status = $` + strconv.Itoa(len(args))
	}
	if !f.DateFrom.IsZero() {
		args = append(args, f.DateFrom)
		where += ` AND date >= $` + strconv.Itoa(len(args))
	}
	if !f.DateTo.IsZero() {
		args = append(args, f.DateTo)
		where += ` AND date <= $` + strconv.Itoa(len(args))
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		where += ` AND doc_number ILIKE $` + strconv.Itoa(len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM transactions`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("transaction: count: %w", err)
	}

	perPage := f.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}
	args = append(args, perPage, (page-1)*perPage)
	query := `SELECT ` + headerColumns + ` FROM transactions` + where +
		` ORDER BY date DESC, id DESC LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("transaction: list: %w", err)
	}
	defer rows.Close()

	var result []Transaction
	for rows.Next() {
		trx, err := scanHeader(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("transaction: scan: %w", err)
		}
		result = append(result, trx)
	}
	return result, total, rows.Err()
}

var docPrefixes = map[Kind]string{
	KindGoodsReceipt:   "BM",
	KindDeliveryNote:   "SJ",
	KindTransfer:       "DO",
	KindPurchaseReturn: "RB",
	KindSalesReturn:    "RJ",
}

func nextDocNumber(ctx context.Context, tx pgx.Tx, kind Kind, date time.Time) (string, error) {
	const query = `SELECT COUNT(*) + 1 FROM transactions WHERE kind = $1 AND date::date = $2::date`
	var seq int
	if err := tx.QueryRow(ctx, query, kind, date).Scan(&seq); err != nil {
		return "", fmt.Errorf("transaction: next doc number: %w", err)
	}
	return fmt.Sprintf("%s-%s-%04d", docPrefixes[kind], date.Format("20060102"), seq), nil
}

// Create inserts a draft transaction with its lines and assigns the
// document number.
func (r *Repository) Create(ctx context.Context, trx Transaction) (Transaction, error) {
	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead}, func(tx pgx.Tx) error {
		docNumber, err := nextDocNumber(ctx, tx, trx.Kind, trx.Date)
		if err != nil {
			return err
		}
		trx.DocNumber = docNumber
		trx.Status = StatusDraft

		const insert = `
			INSERT INTO transactions (
				kind, doc_number, date, counterparty_id, warehouse_id,
				dest_warehouse_id, delivery_option, status, notes, created_by
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING id, created_at, updated_at
		`
		if err := tx.QueryRow(ctx, insert,
			trx.Kind, trx.DocNumber, trx.Date, trx.CounterpartyID, trx.WarehouseID,
			trx.DestWarehouseID, trx.DeliveryOption, trx.Status, trx.Notes, trx.CreatedBy,
		).Scan(&trx.ID, &trx.CreatedAt, &trx.UpdatedAt); err != nil {
			return fmt.Errorf("transaction: insert header: %w", err)
		}
		return insertLines(ctx, tx, trx.ID, trx.Lines)
	})
	if err != nil {
		return Transaction{}, mapCreateError(err)
	}
	return r.Get(ctx, trx.Kind, trx.ID)
}

func insertLines(ctx context.Context, tx pgx.Tx, transactionID int64, lines []Line) error {
	const insert = `
		INSERT INTO transaction_lines (
			transaction_id, item_id, quantity, unit_price, subtotal,
			reason, condition, dropship, dropship_status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	for _, line := range lines {
		if _, err := tx.Exec(ctx, insert,
			transactionID, line.ItemID, line.Quantity, line.UnitPrice,
			line.Subtotal, line.Reason, line.Condition, line.Dropship,
			line.DropshipStatus); err != nil {
			return fmt.Errorf("transaction: insert line: %w", err)
		}
	}
	return nil
}

// Update rewrites a draft's header fields and replaces its lines.
func (r *Repository) Update(ctx context.Context, trx Transaction) error {
	return pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead}, func(tx pgx.Tx) error {
		const update = `
			UPDATE transactions SET
				date = $2, counterparty_id = $3, warehouse_id = $4,
				dest_warehouse_id = $5, delivery_option = $6, notes = $7,
				updated_at = NOW()
			WHERE id = $1 AND status = 'draft'
		`
		tag, err := tx.Exec(ctx, update, trx.ID, trx.Date, trx.CounterpartyID,
			trx.WarehouseID, trx.DestWarehouseID, trx.DeliveryOption, trx.Notes)
		if err != nil {
			return fmt.Errorf("transaction: update header: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		if _, err := tx.Exec(ctx, `DELETE FROM transaction_lines WHERE transaction_id = $1`, trx.ID); err != nil {
			return fmt.Errorf("transaction: delete lines: %w", err)
		}
		return insertLines(ctx, tx, trx.ID, trx.Lines)
	})
}

// Delete removes a draft with its lines. Lines cascade at the schema level.
func (r *Repository) Delete(ctx context.Context, kind Kind, id int64) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM transactions WHERE id = $1 AND kind = $2 AND status = 'draft'`, id, kind)
	if err != nil {
		return fmt.Errorf("transaction: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type txRepo struct {
	tx pgx.Tx
}

func (r *txRepo) GetForUpdate(ctx context.Context, kind Kind, id int64) (Transaction, error) {
	query := `SELECT ` + headerColumns + ` FROM transactions WHERE id = $1 AND kind = $2 FOR UPDATE`
	trx, err := scanHeader(r.tx.QueryRow(ctx, query, id, kind))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrNotFound
		}
		return Transaction{}, fmt.Errorf("transaction: get for update: %w", err)
	}
	trx.Lines, err = loadLines(ctx, r.tx, id)
	if err != nil {
		return Transaction{}, err
	}
	return trx, nil
}

var actionStampColumns = map[Action]string{
	ActionPost:     "posted_at",
	ActionApprove:  "posted_at",
	ActionDeliver:  "delivered_at",
	ActionComplete: "completed_at",
	ActionCancel:   "cancelled_at",
}

func (r *txRepo) UpdateStatus(ctx context.Context, id int64, status Status, action Action, actorID int64, at time.Time) error {
	query := `UPDATE transactions SET status = $2, updated_at = $3`
	args := []interface{}{id, status, at}
	if column, ok := actionStampColumns[action]; ok {
		args = append(args, at)
		query += `, ` + column + ` = $` + strconv.Itoa(len(args))
		if action == ActionPost || action == ActionApprove {
			args = append(args, actorID)
			query += `, posted_by = $` + strconv.Itoa(len(args))
		}
	}
	query += ` WHERE id = $1`
	tag, err := r.tx.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("transaction: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepo) MarkLinePosted(ctx context.Context, lineID int64, at time.Time) error {
	tag, err := r.tx.Exec(ctx,
		`UPDATE transaction_lines SET posted_at = $2 WHERE id = $1 AND posted_at IS NULL`, lineID, at)
	if err != nil {
		return fmt.Errorf("transaction: mark line posted: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transaction: line %d already posted", lineID)
	}
	return nil
}

func (r *txRepo) SetLineDropship(ctx context.Context, lineID int64, dropship bool, status DropshipStatus) error {
	_, err := r.tx.Exec(ctx,
		`UPDATE transaction_lines SET dropship = $2, dropship_status = $3 WHERE id = $1`,
		lineID, dropship, status)
	if err != nil {
		return fmt.Errorf("transaction: set line dropship: %w", err)
	}
	return nil
}

func (r *txRepo) Ledger() stock.TxStore {
	return stock.NewTxStore(r.tx)
}
