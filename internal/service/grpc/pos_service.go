package grpcsvc

import (
	"context"
	"errors"
	"strings"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/pos/internal/domain"
	"github.com/vladislavdragonenkov/pos/internal/service/pos"
)

const defaultListReceiptsLimit = 20

// PosServiceServer — серверная часть API кассы.
type PosServiceServer interface {
	GetCatalog(context.Context, *GetCatalogRequest) (*CatalogResponse, error)
	OpenSession(context.Context, *OpenSessionRequest) (*SessionResponse, error)
	GetSession(context.Context, *SessionRequest) (*SessionResponse, error)
	CloseSession(context.Context, *SessionRequest) (*CloseSessionResponse, error)
	UpdateCriteria(context.Context, *UpdateCriteriaRequest) (*SessionResponse, error)
	AddToCart(context.Context, *CartItemRequest) (*SessionResponse, error)
	ChangeQuantity(context.Context, *ChangeQuantityRequest) (*SessionResponse, error)
	RemoveFromCart(context.Context, *CartItemRequest) (*SessionResponse, error)
	ClearCart(context.Context, *SessionRequest) (*SessionResponse, error)
	SetCustomer(context.Context, *SetCustomerRequest) (*SessionResponse, error)
	OpenCheckout(context.Context, *SessionRequest) (*SessionResponse, error)
	SelectPaymentMethod(context.Context, *SelectPaymentMethodRequest) (*SessionResponse, error)
	ConfirmCheckout(context.Context, *SessionRequest) (*SessionResponse, error)
	DismissCheckout(context.Context, *SessionRequest) (*SessionResponse, error)
	GetReceipt(context.Context, *GetReceiptRequest) (*ReceiptResponse, error)
	ListReceipts(context.Context, *ListReceiptsRequest) (*ListReceiptsResponse, error)
	GetTimeline(context.Context, *SessionRequest) (*TimelineResponse, error)
}

// PosService реализует gRPC API поверх реестра кассовых сессий.
type PosService struct {
	registry *pos.Registry
	logger   *log.Entry
}

var _ PosServiceServer = (*PosService)(nil)

// NewPosService конструирует сервис с зависимостями.
func NewPosService(registry *pos.Registry, logger *log.Entry) *PosService {
	if logger == nil {
		logger = log.New().WithField("component", "pos-service")
	}
	return &PosService{registry: registry, logger: logger}
}

// GetCatalog возвращает весь каталог и набор категорий.
func (s *PosService) GetCatalog(_ context.Context, _ *GetCatalogRequest) (*CatalogResponse, error) {
	categories := domain.Categories()
	names := make([]string, 0, len(categories))
	for _, c := range categories {
		names = append(names, string(c))
	}
	return &CatalogResponse{
		Products:   toProducts(s.registry.Catalog().Products()),
		Categories: names,
	}, nil
}

// OpenSession открывает новую кассовую сессию.
func (s *PosService) OpenSession(_ context.Context, req *OpenSessionRequest) (*SessionResponse, error) {
	terminal := s.registry.Open()
	snapshot := terminal.Snapshot()
	if req != nil && strings.TrimSpace(req.CustomerLabel) != "" {
		var err error
		if snapshot, err = terminal.SetCustomerLabel(req.CustomerLabel); err != nil {
			return nil, s.toStatus(err, "OpenSession", terminal.ID())
		}
	}
	return s.session(snapshot), nil
}

// GetSession возвращает текущее состояние сессии.
func (s *PosService) GetSession(_ context.Context, req *SessionRequest) (*SessionResponse, error) {
	terminal, err := s.terminal(req, "GetSession")
	if err != nil {
		return nil, err
	}
	return s.session(terminal.Snapshot()), nil
}

// CloseSession закрывает сессию и отменяет незавершённый платёж.
func (s *PosService) CloseSession(_ context.Context, req *SessionRequest) (*CloseSessionResponse, error) {
	if req == nil || req.SessionID == "" {
		return nil, status.Error(codes.InvalidArgument, "session_id is required")
	}
	if err := s.registry.Close(req.SessionID); err != nil {
		return nil, s.toStatus(err, "CloseSession", req.SessionID)
	}
	return &CloseSessionResponse{SessionID: req.SessionID}, nil
}

// UpdateCriteria заменяет поиск, фильтр и сортировку витрины.
func (s *PosService) UpdateCriteria(_ context.Context, req *UpdateCriteriaRequest) (*SessionResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	terminal, err := s.terminal(&SessionRequest{SessionID: req.SessionID}, "UpdateCriteria")
	if err != nil {
		return nil, err
	}
	return s.apply(terminal, "UpdateCriteria")(terminal.SetCriteria(domain.Criteria{
		Search:   req.Search,
		Category: domain.Category(req.Category),
		Sort:     domain.SortKey(req.Sort),
	}))
}

// AddToCart добавляет единицу товара в корзину.
func (s *PosService) AddToCart(_ context.Context, req *CartItemRequest) (*SessionResponse, error) {
	terminal, err := s.cartTerminal(req, "AddToCart")
	if err != nil {
		return nil, err
	}
	return s.apply(terminal, "AddToCart")(terminal.AddToCart(domain.ProductID(req.ProductID)))
}

// ChangeQuantity меняет количество позиции на delta.
func (s *PosService) ChangeQuantity(_ context.Context, req *ChangeQuantityRequest) (*SessionResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	terminal, err := s.cartTerminal(&CartItemRequest{SessionID: req.SessionID, ProductID: req.ProductID}, "ChangeQuantity")
	if err != nil {
		return nil, err
	}
	return s.apply(terminal, "ChangeQuantity")(terminal.ChangeQuantity(domain.ProductID(req.ProductID), req.Delta))
}

// RemoveFromCart удаляет позицию из корзины.
func (s *PosService) RemoveFromCart(_ context.Context, req *CartItemRequest) (*SessionResponse, error) {
	terminal, err := s.cartTerminal(req, "RemoveFromCart")
	if err != nil {
		return nil, err
	}
	return s.apply(terminal, "RemoveFromCart")(terminal.RemoveFromCart(domain.ProductID(req.ProductID)))
}

// ClearCart очищает корзину.
func (s *PosService) ClearCart(_ context.Context, req *SessionRequest) (*SessionResponse, error) {
	terminal, err := s.terminal(req, "ClearCart")
	if err != nil {
		return nil, err
	}
	return s.apply(terminal, "ClearCart")(terminal.ClearCart())
}

// SetCustomer задаёт метку покупателя.
func (s *PosService) SetCustomer(_ context.Context, req *SetCustomerRequest) (*SessionResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	terminal, err := s.terminal(&SessionRequest{SessionID: req.SessionID}, "SetCustomer")
	if err != nil {
		return nil, err
	}
	return s.apply(terminal, "SetCustomer")(terminal.SetCustomerLabel(req.Label))
}

// OpenCheckout открывает диалог оплаты.
func (s *PosService) OpenCheckout(_ context.Context, req *SessionRequest) (*SessionResponse, error) {
	terminal, err := s.terminal(req, "OpenCheckout")
	if err != nil {
		return nil, err
	}
	return s.apply(terminal, "OpenCheckout")(terminal.OpenCheckout())
}

// SelectPaymentMethod выбирает способ оплаты.
func (s *PosService) SelectPaymentMethod(_ context.Context, req *SelectPaymentMethodRequest) (*SessionResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	method, err := domain.ParsePaymentMethod(req.Method)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	terminal, err := s.terminal(&SessionRequest{SessionID: req.SessionID}, "SelectPaymentMethod")
	if err != nil {
		return nil, err
	}
	return s.apply(terminal, "SelectPaymentMethod")(terminal.SelectPaymentMethod(method))
}

// ConfirmCheckout отправляет платёж. Исход придёт асинхронно.
func (s *PosService) ConfirmCheckout(_ context.Context, req *SessionRequest) (*SessionResponse, error) {
	terminal, err := s.terminal(req, "ConfirmCheckout")
	if err != nil {
		return nil, err
	}
	return s.apply(terminal, "ConfirmCheckout")(terminal.ConfirmCheckout())
}

// DismissCheckout закрывает диалог оплаты.
func (s *PosService) DismissCheckout(_ context.Context, req *SessionRequest) (*SessionResponse, error) {
	terminal, err := s.terminal(req, "DismissCheckout")
	if err != nil {
		return nil, err
	}
	return s.session(terminal.DismissCheckout()), nil
}

// GetReceipt возвращает чек по идентификатору.
func (s *PosService) GetReceipt(_ context.Context, req *GetReceiptRequest) (*ReceiptResponse, error) {
	if req == nil || req.ReceiptID == "" {
		return nil, status.Error(codes.InvalidArgument, "receipt_id is required")
	}
	receipt, err := s.registry.Receipt(req.ReceiptID)
	if err != nil {
		return nil, s.toStatus(err, "GetReceipt", req.ReceiptID)
	}
	return &ReceiptResponse{Receipt: toReceipt(receipt)}, nil
}

// ListReceipts возвращает чеки сессии от новых к старым.
func (s *PosService) ListReceipts(_ context.Context, req *ListReceiptsRequest) (*ListReceiptsResponse, error) {
	if req == nil || req.SessionID == "" {
		return nil, status.Error(codes.InvalidArgument, "session_id is required")
	}
	limit := req.PageSize
	if limit <= 0 {
		limit = defaultListReceiptsLimit
	}
	receipts, err := s.registry.Receipts(req.SessionID, limit)
	if err != nil {
		return nil, s.toStatus(err, "ListReceipts", req.SessionID)
	}
	result := make([]Receipt, 0, len(receipts))
	for _, receipt := range receipts {
		result = append(result, toReceipt(receipt))
	}
	return &ListReceiptsResponse{Receipts: result}, nil
}

// GetTimeline возвращает события оплаты по сессии.
func (s *PosService) GetTimeline(_ context.Context, req *SessionRequest) (*TimelineResponse, error) {
	if req == nil || req.SessionID == "" {
		return nil, status.Error(codes.InvalidArgument, "session_id is required")
	}
	events, err := s.registry.Timeline(req.SessionID)
	if err != nil {
		return nil, s.toStatus(err, "GetTimeline", req.SessionID)
	}
	return &TimelineResponse{SessionID: req.SessionID, Events: toTimeline(events)}, nil
}

func (s *PosService) terminal(req *SessionRequest, operation string) (*pos.Terminal, error) {
	if req == nil || req.SessionID == "" {
		return nil, status.Error(codes.InvalidArgument, "session_id is required")
	}
	terminal, err := s.registry.Get(req.SessionID)
	if err != nil {
		return nil, s.toStatus(err, operation, req.SessionID)
	}
	return terminal, nil
}

func (s *PosService) cartTerminal(req *CartItemRequest, operation string) (*pos.Terminal, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	if req.ProductID <= 0 {
		return nil, status.Error(codes.InvalidArgument, "product_id must be > 0")
	}
	return s.terminal(&SessionRequest{SessionID: req.SessionID}, operation)
}

func (s *PosService) apply(terminal *pos.Terminal, operation string) func(pos.Snapshot, error) (*SessionResponse, error) {
	return func(snapshot pos.Snapshot, err error) (*SessionResponse, error) {
		if err != nil {
			return nil, s.toStatus(err, operation, terminal.ID())
		}
		return s.session(snapshot), nil
	}
}

func (s *PosService) session(snapshot pos.Snapshot) *SessionResponse {
	return &SessionResponse{Session: toSession(snapshot, s.registry.Catalog())}
}

func (s *PosService) toStatus(err error, operation, id string) error {
	entry := s.logger.WithError(err).WithFields(log.Fields{
		"operation": operation,
		"id":        id,
	})

	switch {
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrProductNotFound),
		errors.Is(err, domain.ErrReceiptNotFound):
		entry.Debug("entity not found")
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrUnknownCategory),
		errors.Is(err, domain.ErrUnknownSortKey),
		errors.Is(err, domain.ErrUnknownPaymentMethod):
		return status.Error(codes.InvalidArgument, err.Error())
	case domain.IsCheckoutRejected(err):
		entry.Info("checkout operation rejected")
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		entry.Error("pos operation failed")
		return status.Error(codes.Internal, "pos operation failed")
	}
}
