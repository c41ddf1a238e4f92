package handler

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"

	"github.com/rl1809/fulfillment/internal/core/domain"
	"github.com/rl1809/fulfillment/internal/core/service"
)

const (
	serviceName = "fulfillment.v1.Fulfillment"
	// CodecName is the content-subtype clients must request.
	CodecName = "json"
)

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return CodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// FulfillmentServer is the gRPC surface; messages travel as JSON.
type FulfillmentServer interface {
	ProcessSale(context.Context, *ProcessSaleRequest) (*domain.Sale, error)
	CreateOrder(context.Context, *CreateOrderRequest) (*service.CreateOrderResult, error)
	GetOrder(context.Context, *GetOrderRequest) (*domain.OrderDetails, error)
	UpdateOrderStatus(context.Context, *UpdateOrderStatusRequest) (*domain.Order, error)
	CancelOrder(context.Context, *CancelOrderRequest) (*domain.Order, error)
}

var fulfillmentServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*FulfillmentServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("ProcessSale", FulfillmentServer.ProcessSale),
		unary("CreateOrder", FulfillmentServer.CreateOrder),
		unary("GetOrder", FulfillmentServer.GetOrder),
		unary("UpdateOrderStatus", FulfillmentServer.UpdateOrderStatus),
		unary("CancelOrder", FulfillmentServer.CancelOrder),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "fulfillment/v1/fulfillment.proto",
}

func RegisterFulfillmentServer(s grpc.ServiceRegistrar, srv FulfillmentServer) {
	s.RegisterService(&fulfillmentServiceDesc, srv)
}

func unary[Req, Resp any](method string, call func(FulfillmentServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(FulfillmentServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/" + method}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(FulfillmentServer), ctx, req.(*Req))
			})
		},
	}
}

type GRPCHandler struct {
	svc    Services
	logger *zap.Logger
}

func NewGRPCHandler(svc Services, logger *zap.Logger) *GRPCHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GRPCHandler{svc: svc, logger: logger}
}

func (h *GRPCHandler) ProcessSale(ctx context.Context, req *ProcessSaleRequest) (*domain.Sale, error) {
	if err := validateMessage(processSaleValidator, req); err != nil {
		return nil, h.statusError("ProcessSale", err)
	}
	sale, err := h.svc.Sales.ProcessSale(ctx, req.command())
	if err != nil {
		return nil, h.statusError("ProcessSale", err)
	}
	return &sale, nil
}

func (h *GRPCHandler) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*service.CreateOrderResult, error) {
	if err := validateMessage(createOrderValidator, req); err != nil {
		return nil, h.statusError("CreateOrder", err)
	}
	result, err := h.svc.Orders.CreateOrder(ctx, req.command())
	if err != nil {
		return nil, h.statusError("CreateOrder", err)
	}
	return &result, nil
}

func (h *GRPCHandler) GetOrder(ctx context.Context, req *GetOrderRequest) (*domain.OrderDetails, error) {
	if err := validateMessage(orderIDValidator, req); err != nil {
		return nil, h.statusError("GetOrder", err)
	}
	details, err := h.svc.Orders.GetOrder(ctx, req.OrderID)
	if err != nil {
		return nil, h.statusError("GetOrder", err)
	}
	return &details, nil
}

func (h *GRPCHandler) UpdateOrderStatus(ctx context.Context, req *UpdateOrderStatusRequest) (*domain.Order, error) {
	if err := validateMessage(updateOrderStatusValidator, req); err != nil {
		return nil, h.statusError("UpdateOrderStatus", err)
	}
	order, err := h.svc.Orders.UpdateStatus(ctx, req.OrderID, domain.OrderStatus(req.Status), req.Note)
	if err != nil {
		return nil, h.statusError("UpdateOrderStatus", err)
	}
	return &order, nil
}

func (h *GRPCHandler) CancelOrder(ctx context.Context, req *CancelOrderRequest) (*domain.Order, error) {
	if err := validateMessage(cancelOrderValidator, req); err != nil {
		return nil, h.statusError("CancelOrder", err)
	}
	order, err := h.svc.Compensator.CancelOrder(ctx, req.OrderID, req.Reason)
	if err != nil {
		return nil, h.statusError("CancelOrder", err)
	}
	return &order, nil
}

func (h *GRPCHandler) statusError(method string, err error) error {
	code := codeFor(err)
	if code == codes.Internal {
		h.logger.Error("grpc call failed", zap.String("method", method), zap.Error(err))
		return status.Error(codes.Internal, "internal error")
	}
	return status.Error(code, err.Error())
}

func codeFor(err error) codes.Code {
	switch {
	case errors.Is(err, domain.ErrDuplicateRequest):
		return codes.AlreadyExists
	case errors.Is(err, domain.ErrOptimisticLock):
		return codes.Aborted
	}
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return codes.InvalidArgument
	case domain.KindNotFound:
		return codes.NotFound
	case domain.KindBusinessRule:
		return codes.FailedPrecondition
	default:
		return codes.Internal
	}
}

// validateMessage runs a request through the same compiled schema the HTTP
// surface uses, by way of its JSON form.
func validateMessage(v Validator, msg any) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	view := map[string]any{}
	if err := json.Unmarshal(raw, &view); err != nil {
		return err
	}
	return v.Validate(view)
}
