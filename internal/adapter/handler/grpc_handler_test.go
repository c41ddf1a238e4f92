package handler_test

import (
	"context"
	"net"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/rl1809/fulfillment/internal/adapter/handler"
	"github.com/rl1809/fulfillment/internal/core/domain"
	"github.com/rl1809/fulfillment/internal/observability"
)

func newGRPCClient(t *testing.T) *handler.Client {
	t.Helper()
	svc, _ := newServices(t)

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.UnaryInterceptor(observability.UnaryLogger(nil)))
	handler.RegisterFulfillmentServer(srv, handler.NewGRPCHandler(svc, nil))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return handler.NewClient(conn)
}

func grpcOrder(quantity int) *handler.CreateOrderRequest {
	return &handler.CreateOrderRequest{
		CustomerID:      "c-1",
		Items:           []handler.LineRequest{{ProductID: "P1", Quantity: quantity}},
		ShippingAddress: domain.Address{Line1: "1 Main St", City: "Springfield", Country: "US"},
	}
}

func TestGRPCOrderFlow(t *testing.T) {
	client := newGRPCClient(t)
	ctx := context.Background()

	created, err := client.CreateOrder(ctx, grpcOrder(2))
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, created.Order.Status)
	assert.Equal(t, created.Order.ID, *created.Sale.OrderID)

	details, err := client.GetOrder(ctx, &handler.GetOrderRequest{OrderID: created.Order.ID})
	require.NoError(t, err)
	assert.Len(t, details.Deliveries, 1)

	confirmed, err := client.UpdateOrderStatus(ctx, &handler.UpdateOrderStatusRequest{
		OrderID: created.Order.ID, Status: string(domain.OrderStatusConfirmed),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusConfirmed, confirmed.Status)

	cancelled, err := client.CancelOrder(ctx, &handler.CancelOrderRequest{OrderID: created.Order.ID, Reason: "changed mind"})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, cancelled.Status)
}

func TestGRPCProcessSale(t *testing.T) {
	client := newGRPCClient(t)

	sale, err := client.ProcessSale(context.Background(), &handler.ProcessSaleRequest{
		CustomerID: "c-1",
		Items:      []handler.LineRequest{{ProductID: "EVT", Quantity: 2}},
	})
	require.NoError(t, err)
	assert.True(t, sale.TotalAmount.Equal(decimal.RequireFromString("110")), sale.TotalAmount.String())
}

func TestGRPCStatusCodes(t *testing.T) {
	client := newGRPCClient(t)
	ctx := context.Background()

	_, err := client.CreateOrder(ctx, grpcOrder(0))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.CreateOrder(ctx, grpcOrder(11))
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	_, err = client.GetOrder(ctx, &handler.GetOrderRequest{OrderID: "missing"})
	assert.Equal(t, codes.NotFound, status.Code(err))

	req := grpcOrder(1)
	req.IdempotencyKey = "grpc-1"
	_, err = client.CreateOrder(ctx, req)
	require.NoError(t, err)
	_, err = client.CreateOrder(ctx, req)
	assert.Equal(t, codes.AlreadyExists, status.Code(err))

	_, err = client.UpdateOrderStatus(ctx, &handler.UpdateOrderStatusRequest{OrderID: "x", Status: "teleported"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}
