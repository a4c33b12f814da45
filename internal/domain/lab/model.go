package lab

import (
	"time"

	"github.com/google/uuid"

	"github.com/phc/phc/internal/domain/opd"
)

const (
	StatusPending   = "PENDING"
	StatusCompleted = "COMPLETED"
)

// Order is a lab test ordered during a consultation.
type Order struct {
	ID        uuid.UUID  `json:"id"`
	VisitID   uuid.UUID  `json:"opd_visit_id"`
	TestName  string     `json:"test_name"`
	Status    string     `json:"status"`
	Result    *string    `json:"result,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	Visit     *opd.Visit `json:"opd_visit,omitempty"`
}

type CompleteRequest struct {
	Result string `json:"result" validate:"required,max=5000"`
}
