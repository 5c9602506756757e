package payment

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

// MockService — конфигурируемая заглушка PaymentGateway для тестов.
type MockService struct {
	mu sync.Mutex

	Status domain.PaymentStatus
	Err    error
	// Script — очередь ответов; пока она не пуста, Status/Err игнорируются.
	Script []MockResponse

	Calls    int
	Requests []domain.PaymentRequest
}

// MockResponse — один заранее заданный ответ.
type MockResponse struct {
	Status domain.PaymentStatus
	Err    error
}

// NewMockService возвращает mock с успешным сценарием по умолчанию.
func NewMockService() *MockService {
	return &MockService{Status: domain.PaymentStatusCaptured}
}

// Charge возвращает заранее настроенный результат и считает вызовы.
func (m *MockService) Charge(_ context.Context, req domain.PaymentRequest) (domain.PaymentStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls++
	m.Requests = append(m.Requests, req)
	if len(m.Script) > 0 {
		resp := m.Script[0]
		m.Script = m.Script[1:]
		return resp.Status, resp.Err
	}
	return m.Status, m.Err
}

// CallCount возвращает число вызовов Charge.
func (m *MockService) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls
}

var _ domain.PaymentGateway = (*MockService)(nil)
