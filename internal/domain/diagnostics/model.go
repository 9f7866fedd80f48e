package diagnostics

import (
	"time"

	"github.com/ehr/interchange/internal/platform/hl7v2"
)

// OrderMessage is a generated HL7 message and the MSH-10 that identifies it.
type OrderMessage struct {
	OrderNumber string    `json:"order_number"`
	ControlID   string    `json:"control_id"`
	CreatedAt   time.Time `json:"created_at"`
	Text        string    `json:"text"`
}

// ResultBatch is the set of observations read from one ORU message.
type ResultBatch struct {
	Count   int            `json:"count"`
	Results []hl7v2.Result `json:"results"`
}

// ResultReport asks for an ORU carrying results against order.
type ResultReport struct {
	Order   *hl7v2.LabOrder `json:"order" validate:"required"`
	Results []hl7v2.Result  `json:"results" validate:"required,min=1"`
}
