package postgres

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

func sampleReceipt(id, sessionID string, createdAt time.Time) domain.Receipt {
	return domain.Receipt{
		ID:        id,
		SessionID: sessionID,
		Lines: []domain.ReceiptLine{
			{ProductID: 1, Name: "A", UnitPrice: decimal.RequireFromString("10.00"), Quantity: 2, LineTotal: decimal.RequireFromString("20.00")},
			{ProductID: 2, Name: "B", UnitPrice: decimal.RequireFromString("20.00"), Quantity: 1, LineTotal: decimal.RequireFromString("20.00")},
		},
		Totals: domain.Totals{
			Subtotal:  decimal.RequireFromString("40.00"),
			Tax:       decimal.RequireFromString("3.20"),
			Total:     decimal.RequireFromString("43.20"),
			ItemCount: 3,
		},
		Method:        domain.PaymentMethodCash,
		CustomerLabel: "walk-in",
		CreatedAt:     createdAt,
	}
}

func TestReceiptRepository_PostgresSaveAndGet(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewReceiptRepository(store)

	createdAt := time.Now().UTC().Round(time.Microsecond)
	receipt := sampleReceipt("receipt-1", "session-1", createdAt)
	require.NoError(t, repo.Save(receipt))

	got, err := repo.Get("receipt-1")
	require.NoError(t, err)
	require.Equal(t, "session-1", got.SessionID)
	require.Equal(t, domain.PaymentMethodCash, got.Method)
	require.Equal(t, "walk-in", got.CustomerLabel)
	require.True(t, createdAt.Equal(got.CreatedAt))
	require.Equal(t, "43.20", domain.Money(got.Totals.Total))
	require.Equal(t, "3.20", domain.Money(got.Totals.Tax))
	require.Equal(t, 3, got.Totals.ItemCount)
	require.Len(t, got.Lines, 2)
	require.Equal(t, "A", got.Lines[0].Name)
	require.Equal(t, 2, got.Lines[0].Quantity)
	require.True(t, got.Lines[1].LineTotal.Equal(decimal.RequireFromString("20")))

	require.ErrorIs(t, repo.Save(receipt), domain.ErrReceiptExists)

	_, err = repo.Get("missing")
	require.ErrorIs(t, err, domain.ErrReceiptNotFound)
}

func TestReceiptRepository_PostgresListBySession(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewReceiptRepository(store)

	base := time.Now().UTC().Add(-time.Hour).Round(time.Microsecond)
	require.NoError(t, repo.Save(sampleReceipt("r-old", "session-1", base)))
	require.NoError(t, repo.Save(sampleReceipt("r-new", "session-1", base.Add(time.Minute))))
	require.NoError(t, repo.Save(sampleReceipt("r-other", "session-2", base)))

	receipts, err := repo.ListBySession("session-1", 10)
	require.NoError(t, err)
	require.Len(t, receipts, 2)
	require.Equal(t, "r-new", receipts[0].ID)
	require.Equal(t, "r-old", receipts[1].ID)
	require.Len(t, receipts[0].Lines, 2)

	limited, err := repo.ListBySession("session-1", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	require.Equal(t, "r-new", limited[0].ID)

	empty, err := repo.ListBySession("missing", 0)
	require.NoError(t, err)
	require.Empty(t, empty)
}
