package handler

import (
	"context"

	"google.golang.org/grpc"

	"github.com/rl1809/fulfillment/internal/core/domain"
	"github.com/rl1809/fulfillment/internal/core/service"
)

// Client is a typed client for the Fulfillment gRPC service.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) ProcessSale(ctx context.Context, req *ProcessSaleRequest, opts ...grpc.CallOption) (*domain.Sale, error) {
	out := new(domain.Sale)
	if err := c.invoke(ctx, "ProcessSale", req, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateOrder(ctx context.Context, req *CreateOrderRequest, opts ...grpc.CallOption) (*service.CreateOrderResult, error) {
	out := new(service.CreateOrderResult)
	if err := c.invoke(ctx, "CreateOrder", req, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetOrder(ctx context.Context, req *GetOrderRequest, opts ...grpc.CallOption) (*domain.OrderDetails, error) {
	out := new(domain.OrderDetails)
	if err := c.invoke(ctx, "GetOrder", req, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) UpdateOrderStatus(ctx context.Context, req *UpdateOrderStatusRequest, opts ...grpc.CallOption) (*domain.Order, error) {
	out := new(domain.Order)
	if err := c.invoke(ctx, "UpdateOrderStatus", req, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CancelOrder(ctx context.Context, req *CancelOrderRequest, opts ...grpc.CallOption) (*domain.Order, error) {
	out := new(domain.Order)
	if err := c.invoke(ctx, "CancelOrder", req, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, "/"+serviceName+"/"+method, in, out, opts...)
}
