package grpcsvc

import (
	"context"

	"google.golang.org/grpc"
)

// Client — типизированный клиент PosService.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient оборачивает соединение.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func invoke[Resp any](ctx context.Context, c *Client, method string, in any, opts ...grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, fullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetCatalog(ctx context.Context, opts ...grpc.CallOption) (*CatalogResponse, error) {
	return invoke[CatalogResponse](ctx, c, "GetCatalog", &GetCatalogRequest{}, opts...)
}

func (c *Client) OpenSession(ctx context.Context, in *OpenSessionRequest, opts ...grpc.CallOption) (*SessionResponse, error) {
	return invoke[SessionResponse](ctx, c, "OpenSession", in, opts...)
}

func (c *Client) GetSession(ctx context.Context, sessionID string, opts ...grpc.CallOption) (*SessionResponse, error) {
	return invoke[SessionResponse](ctx, c, "GetSession", &SessionRequest{SessionID: sessionID}, opts...)
}

func (c *Client) CloseSession(ctx context.Context, sessionID string, opts ...grpc.CallOption) (*CloseSessionResponse, error) {
	return invoke[CloseSessionResponse](ctx, c, "CloseSession", &SessionRequest{SessionID: sessionID}, opts...)
}

func (c *Client) UpdateCriteria(ctx context.Context, in *UpdateCriteriaRequest, opts ...grpc.CallOption) (*SessionResponse, error) {
	return invoke[SessionResponse](ctx, c, "UpdateCriteria", in, opts...)
}

func (c *Client) AddToCart(ctx context.Context, sessionID string, productID int64, opts ...grpc.CallOption) (*SessionResponse, error) {
	return invoke[SessionResponse](ctx, c, "AddToCart", &CartItemRequest{SessionID: sessionID, ProductID: productID}, opts...)
}

func (c *Client) ChangeQuantity(ctx context.Context, in *ChangeQuantityRequest, opts ...grpc.CallOption) (*SessionResponse, error) {
	return invoke[SessionResponse](ctx, c, "ChangeQuantity", in, opts...)
}

func (c *Client) RemoveFromCart(ctx context.Context, sessionID string, productID int64, opts ...grpc.CallOption) (*SessionResponse, error) {
	return invoke[SessionResponse](ctx, c, "RemoveFromCart", &CartItemRequest{SessionID: sessionID, ProductID: productID}, opts...)
}

func (c *Client) ClearCart(ctx context.Context, sessionID string, opts ...grpc.CallOption) (*SessionResponse, error) {
	return invoke[SessionResponse](ctx, c, "ClearCart", &SessionRequest{SessionID: sessionID}, opts...)
}

func (c *Client) SetCustomer(ctx context.Context, sessionID, label string, opts ...grpc.CallOption) (*SessionResponse, error) {
	return invoke[SessionResponse](ctx, c, "SetCustomer", &SetCustomerRequest{SessionID: sessionID, Label: label}, opts...)
}

func (c *Client) OpenCheckout(ctx context.Context, sessionID string, opts ...grpc.CallOption) (*SessionResponse, error) {
	return invoke[SessionResponse](ctx, c, "OpenCheckout", &SessionRequest{SessionID: sessionID}, opts...)
}

func (c *Client) SelectPaymentMethod(ctx context.Context, sessionID, method string, opts ...grpc.CallOption) (*SessionResponse, error) {
	return invoke[SessionResponse](ctx, c, "SelectPaymentMethod", &SelectPaymentMethodRequest{SessionID: sessionID, Method: method}, opts...)
}

func (c *Client) ConfirmCheckout(ctx context.Context, sessionID string, opts ...grpc.CallOption) (*SessionResponse, error) {
	return invoke[SessionResponse](ctx, c, "ConfirmCheckout", &SessionRequest{SessionID: sessionID}, opts...)
}

func (c *Client) DismissCheckout(ctx context.Context, sessionID string, opts ...grpc.CallOption) (*SessionResponse, error) {
	return invoke[SessionResponse](ctx, c, "DismissCheckout", &SessionRequest{SessionID: sessionID}, opts...)
}

func (c *Client) GetReceipt(ctx context.Context, receiptID string, opts ...grpc.CallOption) (*ReceiptResponse, error) {
	return invoke[ReceiptResponse](ctx, c, "GetReceipt", &GetReceiptRequest{ReceiptID: receiptID}, opts...)
}

func (c *Client) ListReceipts(ctx context.Context, in *ListReceiptsRequest, opts ...grpc.CallOption) (*ListReceiptsResponse, error) {
	return invoke[ListReceiptsResponse](ctx, c, "ListReceipts", in, opts...)
}

func (c *Client) GetTimeline(ctx context.Context, sessionID string, opts ...grpc.CallOption) (*TimelineResponse, error) {
	return invoke[TimelineResponse](ctx, c, "GetTimeline", &SessionRequest{SessionID: sessionID}, opts...)
}
