package memory

import (
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

// receiptRepositoryInMemory — простая in-memory реализация ReceiptRepository.
type receiptRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Receipt
}

// NewReceiptRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewReceiptRepository() domain.ReceiptRepository {
	return &receiptRepositoryInMemory{
		items: make(map[string]domain.Receipt),
	}
}

// Save сохраняет чек, если ID ещё не занят.
func (r *receiptRepositoryInMemory) Save(receipt domain.Receipt) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[receipt.ID]; exists {
		return domain.ErrReceiptExists
	}
	receipt.Lines = append([]domain.ReceiptLine(nil), receipt.Lines...)
	r.items[receipt.ID] = receipt
	return nil
}

// Get возвращает чек или ErrReceiptNotFound, если его нет.
func (r *receiptRepositoryInMemory) Get(id string) (domain.Receipt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	receipt, ok := r.items[id]
	if !ok {
		return domain.Receipt{}, domain.ErrReceiptNotFound
	}
	receipt.Lines = append([]domain.ReceiptLine(nil), receipt.Lines...)
	return receipt, nil
}

// ListBySession возвращает чеки сессии, ограничивая выборку limit (если >0).
func (r *receiptRepositoryInMemory) ListBySession(sessionID string, limit int) ([]domain.Receipt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Receipt, 0, len(r.items))
	for _, receipt := range r.items {
		if receipt.SessionID != sessionID {
			continue
		}
		result = append(result, receipt)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

var _ domain.ReceiptRepository = (*receiptRepositoryInMemory)(nil)
