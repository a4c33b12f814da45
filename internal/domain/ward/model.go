package ward

import (
	"time"

	"github.com/google/uuid"

	"github.com/phc/phc/internal/domain/patient"
	"github.com/phc/phc/internal/platform/apperr"
)

const (
	StatusAdmitted   = "ADMITTED"
	StatusDischarged = "DISCHARGED"
)

// ErrPatientAdmitted is returned when a patient already holds a bed.
var ErrPatientAdmitted = apperr.New(apperr.ErrConflict, "patient is already admitted")

// DefaultBedCount is how many beds Init creates for an empty ward.
const DefaultBedCount = 5

type Bed struct {
	ID               uuid.UUID  `json:"id"`
	Number           string     `json:"number"`
	IsOccupied       bool       `json:"is_occupied"`
	CurrentAdmission *Admission `json:"current_admission,omitempty"`
}

type Admission struct {
	ID           uuid.UUID        `json:"id"`
	PatientID    uuid.UUID        `json:"patient_id"`
	BedID        uuid.UUID        `json:"bed_id"`
	AdmittedAt   time.Time        `json:"admitted_at"`
	DischargedAt *time.Time       `json:"discharged_at,omitempty"`
	Status       string           `json:"status"`
	Patient      *patient.Patient `json:"patient,omitempty"`
}

type AddBedRequest struct {
	Number string `json:"number" validate:"required,max=50"`
}

type AdmitRequest struct {
	PatientID string `json:"patient_id" validate:"required,uuid"`
	BedID     string `json:"bed_id" validate:"required,uuid"`
}
