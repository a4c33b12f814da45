package opd

import (
	"time"

	"github.com/google/uuid"

	"github.com/phc/phc/internal/domain/patient"
)

const (
	StatusWaiting   = "WAITING"
	StatusCompleted = "COMPLETED"
)

// Visit is one outpatient visit. TokenNo restarts at 1 every day.
type Visit struct {
	ID        uuid.UUID        `json:"id"`
	PatientID uuid.UUID        `json:"patient_id"`
	TokenNo   int              `json:"token_no"`
	Status    string           `json:"status"`
	Weight    *float64         `json:"weight,omitempty"`
	BP        *string          `json:"bp,omitempty"`
	Sugar     *string          `json:"sugar,omitempty"`
	Temp      *float64         `json:"temp,omitempty"`
	Symptoms  *string          `json:"symptoms,omitempty"`
	Diagnosis *string          `json:"diagnosis,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
	Patient   *patient.Patient `json:"patient,omitempty"`
}

type CreateVisitRequest struct {
	PatientID string `json:"patient_id" validate:"required,uuid"`
	Symptoms  string `json:"symptoms" validate:"max=2000"`
}

type Vitals struct {
	Weight *float64 `json:"weight" validate:"omitempty,gt=0"`
	BP     string   `json:"bp" validate:"max=20"`
	Sugar  string   `json:"sugar" validate:"max=20"`
	Temp   *float64 `json:"temp" validate:"omitempty,gt=0"`
}

// ConsultRequest closes a visit. A non-empty Prescription creates a pending
// prescription and each LabTests entry a pending lab order.
type ConsultRequest struct {
	Vitals       Vitals   `json:"vitals"`
	Diagnosis    string   `json:"diagnosis" validate:"max=2000"`
	Prescription string   `json:"prescription" validate:"max=2000"`
	LabTests     []string `json:"lab_tests" validate:"max=20,dive,required,max=200"`
}
