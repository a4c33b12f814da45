package patient

import (
	"time"

	"github.com/google/uuid"
)

const (
	TypeOPD = "OPD"
	TypeIPD = "IPD"
)

// Patient is a registered patient of one clinic, with the vitals and
// history captured at registration.
type Patient struct {
	ID                  uuid.UUID `json:"id"`
	Name                string    `json:"name"`
	Age                 int       `json:"age"`
	Gender              string    `json:"gender"`
	Phone               string    `json:"phone"`
	Address             *string   `json:"address,omitempty"`
	BloodGroup          *string   `json:"blood_group,omitempty"`
	EmergencyContact    *string   `json:"emergency_contact,omitempty"`
	Weight              *float64  `json:"weight,omitempty"`
	BP                  *string   `json:"bp,omitempty"`
	Sugar               *string   `json:"sugar,omitempty"`
	Temp                *float64  `json:"temp,omitempty"`
	PreExistingDiseases *string   `json:"pre_existing_diseases,omitempty"`
	Allergies           *string   `json:"allergies,omitempty"`
	IsPregnant          bool      `json:"is_pregnant"`
	PatientType         string    `json:"patient_type"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

type CreateRequest struct {
	Name                string   `json:"name" validate:"required,max=200"`
	Age                 int      `json:"age" validate:"gte=0,lte=150"`
	Gender              string   `json:"gender" validate:"required,max=20"`
	Phone               string   `json:"phone" validate:"required,max=30"`
	Address             *string  `json:"address" validate:"omitempty,max=500"`
	BloodGroup          *string  `json:"blood_group" validate:"omitempty,max=5"`
	EmergencyContact    *string  `json:"emergency_contact" validate:"omitempty,max=100"`
	Weight              *float64 `json:"weight" validate:"omitempty,gt=0"`
	BP                  *string  `json:"bp" validate:"omitempty,max=20"`
	Sugar               *string  `json:"sugar" validate:"omitempty,max=20"`
	Temp                *float64 `json:"temp" validate:"omitempty,gt=0"`
	PreExistingDiseases *string  `json:"pre_existing_diseases"`
	Allergies           *string  `json:"allergies"`
	IsPregnant          bool     `json:"is_pregnant"`
	PatientType         string   `json:"patient_type" validate:"omitempty,oneof=OPD IPD"`
}
