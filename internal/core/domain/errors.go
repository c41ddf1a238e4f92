package domain

import "errors"

type ErrorKind int

const (
	KindUnexpected ErrorKind = iota
	KindValidation
	KindNotFound
	KindBusinessRule
	KindConflict
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindBusinessRule:
		return "business_rule"
	case KindConflict:
		return "conflict"
	default:
		return "unexpected"
	}
}

// Error is a classified domain failure. Two Errors match under errors.Is
// when their codes are equal, so wrapped sentinels keep their identity.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrValidation = &Error{Kind: KindValidation, Code: "validation_error", Message: "validation failed"}

	ErrProductNotFound  = &Error{Kind: KindNotFound, Code: "product_not_found", Message: "product not found"}
	ErrSaleNotFound     = &Error{Kind: KindNotFound, Code: "sale_not_found", Message: "sale not found"}
	ErrOrderNotFound    = &Error{Kind: KindNotFound, Code: "order_not_found", Message: "order not found"}
	ErrDeliveryNotFound = &Error{Kind: KindNotFound, Code: "delivery_not_found", Message: "delivery not found"}

	ErrInsufficientInventory = &Error{Kind: KindBusinessRule, Code: "insufficient_inventory", Message: "insufficient inventory"}
	ErrInvalidTransition     = &Error{Kind: KindBusinessRule, Code: "invalid_transition", Message: "invalid status transition"}
	ErrAlreadyCancelled      = &Error{Kind: KindBusinessRule, Code: "already_cancelled", Message: "order already cancelled"}
	ErrInvalidState          = &Error{Kind: KindBusinessRule, Code: "invalid_state", Message: "operation not allowed in current state"}
	ErrRefundExceedsBalance  = &Error{Kind: KindBusinessRule, Code: "refund_exceeds_balance", Message: "refund exceeds refundable balance"}
	ErrProductNotEventType   = &Error{Kind: KindBusinessRule, Code: "product_not_event", Message: "product is not an event"}

	ErrDuplicateRequest = &Error{Kind: KindConflict, Code: "duplicate_request", Message: "duplicate request"}
	ErrOptimisticLock   = &Error{Kind: KindConflict, Code: "optimistic_lock", Message: "optimistic lock conflict"}
)

// KindOf classifies err; anything that is not a domain Error is unexpected.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnexpected
}
