package handler

import (
	"slices"

	"github.com/rl1809/fulfillment/internal/core/domain"
)

var (
	lineFields = []Field{
		{Name: "productId", Type: TypeString, Required: true},
		{Name: "quantity", Type: TypeInteger, Required: true, Min: minimum(1)},
	}

	addressFields = []Field{
		{Name: "name", Type: TypeString},
		{Name: "line1", Type: TypeString, Required: true},
		{Name: "line2", Type: TypeString},
		{Name: "city", Type: TypeString, Required: true},
		{Name: "state", Type: TypeString},
		{Name: "postalCode", Type: TypeString},
		{Name: "country", Type: TypeString, Required: true},
		{Name: "phone", Type: TypeString},
	}

	processSaleSchema = Schema{
		{Name: "customerId", Type: TypeString, Required: true},
		{Name: "businessId", Type: TypeString},
		{Name: "items", Type: TypeArray, Required: true, Children: lineFields},
		{Name: "paymentMethod", Type: TypeString},
		{Name: "discountCodes", Type: TypeArray, Element: TypeString},
		{Name: "metadata", Type: TypeStringMap},
		{Name: "idempotencyKey", Type: TypeString},
	}

	refundSaleSchema = Schema{
		{Name: "saleId", Type: TypeString, Required: true},
		{Name: "amount", Type: TypeMoney},
		{Name: "reason", Type: TypeString, Required: true},
	}

	saleIDSchema = Schema{
		{Name: "saleId", Type: TypeString, Required: true},
	}

	createOrderSchema = Schema{
		{Name: "customerId", Type: TypeString, Required: true},
		{Name: "businessId", Type: TypeString},
		{Name: "items", Type: TypeArray, Required: true, Children: lineFields},
		{Name: "shippingAddress", Type: TypeObject, Required: true, Children: addressFields},
		{Name: "billingAddress", Type: TypeObject, Children: addressFields},
		{Name: "paymentMethod", Type: TypeString},
		{Name: "discountCodes", Type: TypeArray, Element: TypeString},
		{Name: "idempotencyKey", Type: TypeString},
	}

	orderIDSchema = Schema{
		{Name: "orderId", Type: TypeString, Required: true},
	}

	customerIDSchema = Schema{
		{Name: "customerId", Type: TypeString, Required: true},
	}

	updateOrderStatusSchema = Schema{
		{Name: "orderId", Type: TypeString, Required: true},
		{Name: "status", Type: TypeString, Required: true, Allowed: orderStatuses()},
		{Name: "note", Type: TypeString},
	}

	cancelOrderSchema = Schema{
		{Name: "orderId", Type: TypeString, Required: true},
		{Name: "reason", Type: TypeString, Required: true},
	}

	recordPaymentSchema = Schema{
		{Name: "orderId", Type: TypeString, Required: true},
		{Name: "reference", Type: TypeString},
	}

	createDeliverySchema = Schema{
		{Name: "orderId", Type: TypeString},
		{Name: "address", Type: TypeObject, Required: true, Children: addressFields},
		{Name: "pickupAddress", Type: TypeObject, Children: addressFields},
		{Name: "urgency", Type: TypeString, Allowed: []string{
			string(domain.UrgencyStandard), string(domain.UrgencyExpress), string(domain.UrgencySameDay),
		}},
		{Name: "price", Type: TypeMoney},
		{Name: "carrier", Type: TypeString},
		{Name: "businessId", Type: TypeString},
		{Name: "customerId", Type: TypeString},
		{Name: "estimatedDelivery", Type: TypeString},
	}

	deliveryIDSchema = Schema{
		{Name: "deliveryId", Type: TypeString, Required: true},
	}

	updateDeliveryStatusSchema = Schema{
		{Name: "deliveryId", Type: TypeString, Required: true},
		{Name: "status", Type: TypeString, Required: true, Allowed: deliveryStatuses()},
		{Name: "location", Type: TypeString},
		{Name: "note", Type: TypeString},
	}

	trackingEventSchema = Schema{
		{Name: "deliveryId", Type: TypeString, Required: true},
		{Name: "location", Type: TypeString},
		{Name: "description", Type: TypeString, Required: true},
	}

	createTicketSchema = Schema{
		{Name: "productId", Type: TypeString, Required: true},
		{Name: "variantId", Type: TypeString},
		{Name: "saleId", Type: TypeString},
		{Name: "userId", Type: TypeString, Required: true},
		{Name: "ticketType", Type: TypeString},
		{Name: "price", Type: TypeMoney},
	}
)

func orderStatuses() []string {
	out := make([]string, 0, len(domain.OrderTransitions))
	for s := range domain.OrderTransitions {
		out = append(out, string(s))
	}
	slices.Sort(out)
	return out
}

func deliveryStatuses() []string {
	out := make([]string, 0, len(domain.DeliveryTransitions))
	for s := range domain.DeliveryTransitions {
		out = append(out, string(s))
	}
	slices.Sort(out)
	return out
}
