package opd

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/phc/phc/internal/platform/apperr"
	"github.com/phc/phc/internal/platform/db"
	"github.com/phc/phc/internal/platform/validate"
)

type Service struct {
	visits        VisitRepository
	labOrders     LabOrders
	prescriptions Prescriptions
	validator     *validate.Validator
	runInTx       func(ctx context.Context, fn func(ctx context.Context) error) error
	now           func() time.Time
}

func NewService(visits VisitRepository, labOrders LabOrders, prescriptions Prescriptions) *Service {
	return &Service{
		visits:        visits,
		labOrders:     labOrders,
		prescriptions: prescriptions,
		validator:     validate.New(),
		runInTx:       db.RunInTx,
		now:           time.Now,
	}
}

// dayStart is local midnight of the current day.
func (s *Service) dayStart() time.Time {
	now := s.now()
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// CreateVisit issues the next token of the day for a patient.
func (s *Service) CreateVisit(ctx context.Context, req CreateVisitRequest) (*Visit, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	patientID, err := uuid.Parse(req.PatientID)
	if err != nil {
		return nil, apperr.New(apperr.ErrValidation, "patient_id must be a valid id")
	}

	v := &Visit{PatientID: patientID, Status: StatusWaiting, Symptoms: optional(req.Symptoms)}
	err = s.runInTx(ctx, func(ctx context.Context) error {
		token, err := s.visits.NextToken(ctx, s.dayStart())
		if err != nil {
			return err
		}
		v.TokenNo = token
		return s.visits.Create(ctx, v)
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Queue returns today's visits that are still open, in token order.
func (s *Service) Queue(ctx context.Context) ([]*Visit, error) {
	return s.visits.Queue(ctx, s.dayStart())
}

// Consult completes a visit with vitals and diagnosis and creates the
// prescription and lab orders in the same transaction.
func (s *Service) Consult(ctx context.Context, id uuid.UUID, req ConsultRequest) (*Visit, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}

	var v *Visit
	err := s.runInTx(ctx, func(ctx context.Context) error {
		var err error
		v, err = s.visits.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if v.Status == StatusCompleted {
			return apperr.New(apperr.ErrConflict, "visit already completed")
		}

		v.Weight = req.Vitals.Weight
		v.BP = optional(req.Vitals.BP)
		v.Sugar = optional(req.Vitals.Sugar)
		v.Temp = req.Vitals.Temp
		v.Diagnosis = optional(req.Diagnosis)
		if err := s.visits.Complete(ctx, v); err != nil {
			return err
		}

		if medicine := strings.TrimSpace(req.Prescription); medicine != "" {
			if err := s.prescriptions.CreatePending(ctx, v.ID, medicine, ""); err != nil {
				return err
			}
		}

		var tests []string
		for _, t := range req.LabTests {
			if t = strings.TrimSpace(t); t != "" {
				tests = append(tests, t)
			}
		}
		if len(tests) > 0 {
			return s.labOrders.CreatePending(ctx, v.ID, tests)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}
