package amqp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// InvoiceEvent notifies the report worker that an invoice changed. It carries
// only the id and action; the worker recomputes from the database, so a lost
// or duplicated event costs at most one redundant refresh.
type InvoiceEvent struct {
	EventID    string    `json:"event_id"`
	InvoiceID  int64     `json:"invoice_id"`
	Action     string    `json:"action"` // created | updated | deleted
	OccurredAt time.Time `json:"occurred_at"`
}

func NewInvoiceEvent(invoiceID int64, action string) *InvoiceEvent {
	return &InvoiceEvent{
		EventID:    uuid.NewString(),
		InvoiceID:  invoiceID,
		Action:     action,
		OccurredAt: time.Now().UTC(),
	}
}

func (e *InvoiceEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

func InvoiceEventFromJSON(data []byte) (*InvoiceEvent, error) {
	var e InvoiceEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
