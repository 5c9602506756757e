package pos

import (
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

// Registry создаёт кассовые сессии и находит их по идентификатору.
type Registry struct {
	mu        sync.RWMutex
	deps      Dependencies
	logger    *log.Entry
	terminals map[string]*Terminal
}

// NewRegistry создаёт реестр сессий с общими зависимостями.
func NewRegistry(deps Dependencies) *Registry {
	deps = deps.withDefaults()
	return &Registry{
		deps:      deps,
		logger:    deps.Logger,
		terminals: make(map[string]*Terminal),
	}
}

// Catalog возвращает каталог, общий для всех касс.
func (r *Registry) Catalog() domain.Catalog {
	return r.deps.Catalog
}

// Open создаёт новую сессию.
func (r *Registry) Open() *Terminal {
	id := r.deps.NewID()
	terminal := NewTerminal(id, r.deps)

	r.mu.Lock()
	r.terminals[id] = terminal
	r.mu.Unlock()

	if r.deps.Metrics != nil {
		r.deps.Metrics.RecordSessionOpened()
	}
	r.logger.WithField("session_id", id).Info("session opened")
	return terminal
}

// Get возвращает кассу или ErrSessionNotFound.
func (r *Registry) Get(id string) (*Terminal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	terminal, ok := r.terminals[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return terminal, nil
}

// Close удаляет сессию и отменяет её незавершённый платёж.
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	terminal, ok := r.terminals[id]
	delete(r.terminals, id)
	r.mu.Unlock()

	if !ok {
		return domain.ErrSessionNotFound
	}
	r.closeTerminal(terminal, "closed")
	return nil
}

// Len возвращает количество открытых сессий.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.terminals)
}

// DeleteIdle удаляет до limit сессий, неактивных с момента before.
// Сессии с платежом в обработке не трогаются.
func (r *Registry) DeleteIdle(before time.Time, limit int) (int, error) {
	r.mu.Lock()
	candidates := make([]*Terminal, 0)
	for _, terminal := range r.terminals {
		if terminal.LastActive().After(before) || terminal.Processing() {
			continue
		}
		candidates = append(candidates, terminal)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].LastActive().Before(candidates[j].LastActive())
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	for _, terminal := range candidates {
		delete(r.terminals, terminal.ID())
	}
	r.mu.Unlock()

	for _, terminal := range candidates {
		r.closeTerminal(terminal, "expired")
	}
	return len(candidates), nil
}

func (r *Registry) closeTerminal(terminal *Terminal, reason string) {
	terminal.Close()
	if r.deps.Metrics != nil {
		r.deps.Metrics.RecordSessionClosed()
	}
	r.logger.WithFields(log.Fields{
		"session_id": terminal.ID(),
		"reason":     reason,
	}).Info("session closed")
}

// Receipt возвращает сохранённый чек.
func (r *Registry) Receipt(id string) (domain.Receipt, error) {
	if r.deps.Receipts == nil {
		return domain.Receipt{}, domain.ErrReceiptNotFound
	}
	return r.deps.Receipts.Get(id)
}

// Receipts возвращает последние чеки сессии.
func (r *Registry) Receipts(sessionID string, limit int) ([]domain.Receipt, error) {
	if r.deps.Receipts == nil {
		return nil, nil
	}
	return r.deps.Receipts.ListBySession(sessionID, limit)
}

// Timeline возвращает события оплаты сессии.
func (r *Registry) Timeline(sessionID string) ([]domain.TimelineEvent, error) {
	if r.deps.Timeline == nil {
		return nil, nil
	}
	return r.deps.Timeline.List(sessionID)
}
