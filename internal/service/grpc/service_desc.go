package grpcsvc

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName — полное имя gRPC-сервиса кассы.
const ServiceName = "pos.v1.PosService"

// RegisterPosServiceServer регистрирует реализацию на gRPC-сервере.
func RegisterPosServiceServer(s grpc.ServiceRegistrar, srv PosServiceServer) {
	s.RegisterService(&PosServiceDesc, srv)
}

// PosServiceDesc описывает методы PosService. Сообщения передаются
// в JSON (content-subtype CodecName).
var PosServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PosServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("GetCatalog", PosServiceServer.GetCatalog),
		unary("OpenSession", PosServiceServer.OpenSession),
		unary("GetSession", PosServiceServer.GetSession),
		unary("CloseSession", PosServiceServer.CloseSession),
		unary("UpdateCriteria", PosServiceServer.UpdateCriteria),
		unary("AddToCart", PosServiceServer.AddToCart),
		unary("ChangeQuantity", PosServiceServer.ChangeQuantity),
		unary("RemoveFromCart", PosServiceServer.RemoveFromCart),
		unary("ClearCart", PosServiceServer.ClearCart),
		unary("SetCustomer", PosServiceServer.SetCustomer),
		unary("OpenCheckout", PosServiceServer.OpenCheckout),
		unary("SelectPaymentMethod", PosServiceServer.SelectPaymentMethod),
		unary("ConfirmCheckout", PosServiceServer.ConfirmCheckout),
		unary("DismissCheckout", PosServiceServer.DismissCheckout),
		unary("GetReceipt", PosServiceServer.GetReceipt),
		unary("ListReceipts", PosServiceServer.ListReceipts),
		unary("GetTimeline", PosServiceServer.GetTimeline),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "pos/v1/pos_service",
}

func fullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

func unary[Req, Resp any](method string, call func(PosServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(PosServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(PosServiceServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}
