package pharmacy

import (
	"time"

	"github.com/google/uuid"

	"github.com/phc/phc/internal/domain/opd"
)

const (
	StatusPending   = "PENDING"
	StatusDispensed = "DISPENSED"
)

type Prescription struct {
	ID        uuid.UUID  `json:"id"`
	VisitID   uuid.UUID  `json:"opd_visit_id"`
	Medicine  string     `json:"medicine"`
	Dosage    string     `json:"dosage"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	Visit     *opd.Visit `json:"opd_visit,omitempty"`
}
