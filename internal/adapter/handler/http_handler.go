package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/rl1809/fulfillment/internal/core/domain"
	"github.com/rl1809/fulfillment/internal/core/service"
	"github.com/rl1809/fulfillment/internal/observability"
)

const idempotencyHeader = "Idempotency-Key"

// Services bundles the application services exposed by the transports.
type Services struct {
	Sales       *service.SaleService
	Orders      *service.OrderService
	Compensator *service.Compensator
	Deliveries  *service.DeliveryService
	Tickets     *service.TicketService
}

type HTTPHandler struct {
	svc    Services
	logger *zap.Logger
}

// Response is the envelope returned by every endpoint.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Data    any    `json:"data,omitempty"`
}

var (
	processSaleValidator          = MustCompile("process-sale", processSaleSchema)
	refundSaleValidator           = MustCompile("refund-sale", refundSaleSchema)
	saleIDValidator               = MustCompile("sale-id", saleIDSchema)
	createOrderValidator          = MustCompile("create-order", createOrderSchema)
	orderIDValidator              = MustCompile("order-id", orderIDSchema)
	customerIDValidator           = MustCompile("customer-id", customerIDSchema)
	updateOrderStatusValidator    = MustCompile("update-order-status", updateOrderStatusSchema)
	cancelOrderValidator          = MustCompile("cancel-order", cancelOrderSchema)
	recordPaymentValidator        = MustCompile("record-payment", recordPaymentSchema)
	createDeliveryValidator       = MustCompile("create-delivery", createDeliverySchema)
	deliveryIDValidator           = MustCompile("delivery-id", deliveryIDSchema)
	updateDeliveryStatusValidator = MustCompile("update-delivery-status", updateDeliveryStatusSchema)
	trackingEventValidator        = MustCompile("tracking-event", trackingEventSchema)
	createTicketValidator         = MustCompile("create-ticket", createTicketSchema)
)

func NewHTTPHandler(svc Services, logger *zap.Logger) *HTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPHandler{svc: svc, logger: logger}
}

// Routes builds the chi router for the REST surface.
func (h *HTTPHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(observability.RequestLogger(h.logger))

	r.Get("/health", h.HealthCheck)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/sales/process", h.ProcessSale)
		r.Get("/sales/{saleId}", h.GetSale)
		r.Post("/sales/{saleId}/refund", h.RefundSale)

		r.Post("/orders", h.CreateOrder)
		r.Get("/orders/{orderId}", h.GetOrder)
		r.Patch("/orders/{orderId}/status", h.UpdateOrderStatus)
		r.Post("/orders/{orderId}/cancel", h.CancelOrder)
		r.Post("/orders/{orderId}/payment", h.RecordPayment)
		r.Get("/customers/{customerId}/orders", h.ListCustomerOrders)

		r.Post("/deliveries", h.CreateDelivery)
		r.Get("/deliveries/{deliveryId}", h.GetDelivery)
		r.Patch("/deliveries/{deliveryId}/status", h.UpdateDeliveryStatus)
		r.Post("/deliveries/{deliveryId}/tracking", h.AddTrackingEvent)

		r.Post("/tickets", h.CreateTicket)
	})
	return r
}

func (h *HTTPHandler) ProcessSale(w http.ResponseWriter, r *http.Request) {
	var req ProcessSaleRequest
	if err := processSaleValidator.Bind(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = r.Header.Get(idempotencyHeader)
	}

	sale, err := h.svc.Sales.ProcessSale(r.Context(), req.command())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, Response{Success: true, Message: "sale processed", Data: sale})
}

func (h *HTTPHandler) GetSale(w http.ResponseWriter, r *http.Request) {
	if err := saleIDValidator.Bind(r, nil); err != nil {
		h.writeError(w, r, err)
		return
	}
	sale, err := h.svc.Sales.GetSale(r.Context(), chi.URLParam(r, "saleId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "sale found", Data: sale})
}

func (h *HTTPHandler) RefundSale(w http.ResponseWriter, r *http.Request) {
	var req RefundSaleRequest
	if err := refundSaleValidator.Bind(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	sale, err := h.svc.Sales.RefundSale(r.Context(), service.RefundSaleCommand{
		SaleID: chi.URLParam(r, "saleId"),
		Amount: req.Amount,
		Reason: req.Reason,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "sale refunded", Data: sale})
}

func (h *HTTPHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := createOrderValidator.Bind(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = r.Header.Get(idempotencyHeader)
	}

	result, err := h.svc.Orders.CreateOrder(r.Context(), req.command())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, Response{Success: true, Message: "order created", Data: result})
}

func (h *HTTPHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	if err := orderIDValidator.Bind(r, nil); err != nil {
		h.writeError(w, r, err)
		return
	}
	details, err := h.svc.Orders.GetOrder(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "order found", Data: details})
}

func (h *HTTPHandler) ListCustomerOrders(w http.ResponseWriter, r *http.Request) {
	if err := customerIDValidator.Bind(r, nil); err != nil {
		h.writeError(w, r, err)
		return
	}
	orders, err := h.svc.Orders.ListCustomerOrders(r.Context(), chi.URLParam(r, "customerId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "orders found", Data: orders})
}

func (h *HTTPHandler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateOrderStatusRequest
	if err := updateOrderStatusValidator.Bind(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	order, err := h.svc.Orders.UpdateStatus(r.Context(), chi.URLParam(r, "orderId"), domain.OrderStatus(req.Status), req.Note)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "order status updated", Data: order})
}

func (h *HTTPHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	var req CancelOrderRequest
	if err := cancelOrderValidator.Bind(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	order, err := h.svc.Compensator.CancelOrder(r.Context(), chi.URLParam(r, "orderId"), req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "order cancelled", Data: order})
}

func (h *HTTPHandler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req RecordPaymentRequest
	if err := recordPaymentValidator.Bind(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	order, err := h.svc.Orders.RecordPayment(r.Context(), chi.URLParam(r, "orderId"), req.Reference)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "payment recorded", Data: order})
}

func (h *HTTPHandler) CreateDelivery(w http.ResponseWriter, r *http.Request) {
	var req CreateDeliveryRequest
	if err := createDeliveryValidator.Bind(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	delivery, err := h.svc.Deliveries.CreateDelivery(r.Context(), req.command())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, Response{Success: true, Message: "delivery created", Data: delivery})
}

func (h *HTTPHandler) GetDelivery(w http.ResponseWriter, r *http.Request) {
	if err := deliveryIDValidator.Bind(r, nil); err != nil {
		h.writeError(w, r, err)
		return
	}
	delivery, err := h.svc.Deliveries.GetDelivery(r.Context(), chi.URLParam(r, "deliveryId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "delivery found", Data: delivery})
}

func (h *HTTPHandler) UpdateDeliveryStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateDeliveryStatusRequest
	if err := updateDeliveryStatusValidator.Bind(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	delivery, err := h.svc.Deliveries.UpdateStatus(r.Context(), chi.URLParam(r, "deliveryId"),
		domain.DeliveryStatus(req.Status), req.Location, req.Note)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "delivery status updated", Data: delivery})
}

func (h *HTTPHandler) AddTrackingEvent(w http.ResponseWriter, r *http.Request) {
	var req TrackingEventRequest
	if err := trackingEventValidator.Bind(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	delivery, err := h.svc.Deliveries.AddTrackingEvent(r.Context(), chi.URLParam(r, "deliveryId"), service.TrackingEventInput{
		Location:    req.Location,
		Description: req.Description,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "tracking event added", Data: delivery})
}

func (h *HTTPHandler) CreateTicket(w http.ResponseWriter, r *http.Request) {
	var req CreateTicketRequest
	if err := createTicketValidator.Bind(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	ticket, err := h.svc.Tickets.CreateTicket(r.Context(), req.command())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, Response{Success: true, Message: "ticket created", Data: ticket})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := describeError(err)
	if status == http.StatusInternalServerError {
		observability.FromContext(r.Context()).Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, Response{Success: false, Message: message, Code: code})
}

// describeError maps a domain error kind to an HTTP status. Unexpected
// errors are reported generically; their detail only goes to the log.
func describeError(err error) (int, string, string) {
	var de *domain.Error
	if !errors.As(err, &de) {
		return http.StatusInternalServerError, "internal_error", "internal error"
	}
	switch de.Kind {
	case domain.KindValidation:
		return http.StatusUnprocessableEntity, de.Code, err.Error()
	case domain.KindNotFound:
		return http.StatusNotFound, de.Code, err.Error()
	case domain.KindBusinessRule:
		return http.StatusBadRequest, de.Code, err.Error()
	case domain.KindConflict:
		return http.StatusConflict, de.Code, err.Error()
	default:
		return http.StatusInternalServerError, "internal_error", "internal error"
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
