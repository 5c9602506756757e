package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

type receiptRepository struct {
	store *Store
}

// NewReceiptRepository создаёт PostgreSQL-реализацию ReceiptRepository.
func NewReceiptRepository(store *Store) domain.ReceiptRepository {
	return &receiptRepository{store: store}
}

func (r *receiptRepository) Save(receipt domain.Receipt) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	return r.store.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO receipts (
				id, session_id, method, customer_label,
				subtotal, tax, total, item_count, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			ON CONFLICT (id) DO NOTHING
		`,
			receipt.ID, receipt.SessionID, string(receipt.Method), receipt.CustomerLabel,
			receipt.Totals.Subtotal, receipt.Totals.Tax, receipt.Totals.Total, receipt.Totals.ItemCount,
			receipt.CreatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("insert receipt: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected for receipt: %w", err)
		}
		if affected == 0 {
			return domain.ErrReceiptExists
		}

		for i, line := range receipt.Lines {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO receipt_lines (
					receipt_id, position, product_id, name, unit_price, quantity, line_total
				) VALUES ($1,$2,$3,$4,$5,$6,$7)
			`,
				receipt.ID, i, int64(line.ProductID), line.Name, line.UnitPrice, line.Quantity, line.LineTotal,
			); err != nil {
				return fmt.Errorf("insert receipt line %d: %w", i, err)
			}
		}
		return nil
	})
}

func (r *receiptRepository) Get(id string) (domain.Receipt, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	row := r.store.DB().QueryRowContext(ctx, `
		SELECT id, session_id, method, customer_label, subtotal, tax, total, item_count, created_at
		FROM receipts
		WHERE id = $1
	`, id)
	receipt, err := scanReceipt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Receipt{}, domain.ErrReceiptNotFound
	}
	if err != nil {
		return domain.Receipt{}, err
	}

	if receipt.Lines, err = r.loadLines(ctx, receipt.ID); err != nil {
		return domain.Receipt{}, err
	}
	return receipt, nil
}

func (r *receiptRepository) ListBySession(sessionID string, limit int) ([]domain.Receipt, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	rows, err := r.store.DB().QueryContext(ctx, `
		SELECT id, session_id, method, customer_label, subtotal, tax, total, item_count, created_at
		FROM receipts
		WHERE session_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list receipts: %w", err)
	}

	receipts := make([]domain.Receipt, 0)
	for rows.Next() {
		receipt, err := scanReceipt(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		receipts = append(receipts, receipt)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate receipts: %w", err)
	}
	_ = rows.Close()

	for i := range receipts {
		if receipts[i].Lines, err = r.loadLines(ctx, receipts[i].ID); err != nil {
			return nil, err
		}
	}
	return receipts, nil
}

func (r *receiptRepository) loadLines(ctx context.Context, receiptID string) ([]domain.ReceiptLine, error) {
	rows, err := r.store.DB().QueryContext(ctx, `
		SELECT product_id, name, unit_price, quantity, line_total
		FROM receipt_lines
		WHERE receipt_id = $1
		ORDER BY position
	`, receiptID)
	if err != nil {
		return nil, fmt.Errorf("list receipt lines: %w", err)
	}
	defer rows.Close()

	lines := make([]domain.ReceiptLine, 0)
	for rows.Next() {
		var (
			line      domain.ReceiptLine
			productID int64
		)
		if err := rows.Scan(&productID, &line.Name, &line.UnitPrice, &line.Quantity, &line.LineTotal); err != nil {
			return nil, fmt.Errorf("scan receipt line: %w", err)
		}
		line.ProductID = domain.ProductID(productID)
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate receipt lines: %w", err)
	}
	return lines, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReceipt(row rowScanner) (domain.Receipt, error) {
	var (
		receipt domain.Receipt
		method  string
	)
	err := row.Scan(
		&receipt.ID,
		&receipt.SessionID,
		&method,
		&receipt.CustomerLabel,
		&receipt.Totals.Subtotal,
		&receipt.Totals.Tax,
		&receipt.Totals.Total,
		&receipt.Totals.ItemCount,
		&receipt.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Receipt{}, err
	}
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("scan receipt: %w", err)
	}
	receipt.Method = domain.PaymentMethod(method)
	receipt.CreatedAt = receipt.CreatedAt.UTC()
	return receipt, nil
}

var _ domain.ReceiptRepository = (*receiptRepository)(nil)
