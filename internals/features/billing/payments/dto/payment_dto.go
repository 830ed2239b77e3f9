package dto

type PaymentLinkRequest struct {
	Name  string `json:"name" validate:"omitempty,max=100"`
	Email string `json:"email" validate:"omitempty,email"`
}

// MidtransNotification carries only what is needed to look the order up;
// the status itself is re-read from the gateway.
type MidtransNotification struct {
	OrderID           string `json:"order_id" form:"order_id"`
	TransactionStatus string `json:"transaction_status" form:"transaction_status"`
	FraudStatus       string `json:"fraud_status" form:"fraud_status"`
	PaymentType       string `json:"payment_type" form:"payment_type"`
}
