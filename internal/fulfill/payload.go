package fulfill

import (
	"encoding/json"
	"fmt"
)

// PayloadLineItem is one purchased line in an orders_paid notification.
type PayloadLineItem struct {
	ProductID int64  `json:"product_id"`
	Title     string `json:"title"`
}

// OrderPaidPayload is the typed shape decoded from a verified orders_paid
// webhook body. Decoding is strict about types but tolerant of absent
// fields; presence checks happen in the orchestrator so the skip reasons
// can be audited.
type OrderPaidPayload struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	Customer *struct {
		ID int64 `json:"id"`
	} `json:"customer"`
	LineItems []PayloadLineItem `json:"line_items"`
}

// CustomerID returns the buyer's customer id, or nil when the notification
// carried no customer object.
func (p *OrderPaidPayload) CustomerID() *int64 {
	if p.Customer == nil {
		return nil
	}
	id := p.Customer.ID
	return &id
}

// ParseOrderPaid decodes a raw webhook body. The body must already have
// passed signature verification; decode failures are validation failures,
// not authentication failures.
func ParseOrderPaid(body []byte) (*OrderPaidPayload, error) {
	var p OrderPaidPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decode orders_paid payload: %w", err)
	}
	return &p, nil
}
