package dto

// PlanChangeRequest asks for an upgrade or downgrade to the given plan.
type PlanChangeRequest struct {
	PlanType      string `json:"plan_type" validate:"required,oneof=free pro max"`
	PaymentMethod string `json:"payment_method"`
}

// RefundRequest asks for an immediate prorated refund and cancellation.
type RefundRequest struct {
	Reason string `json:"reason" validate:"required"`
}
