package ward

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/phc/phc/internal/platform/apperr"
	"github.com/phc/phc/internal/platform/db"
	"github.com/phc/phc/internal/platform/validate"
)

type Service struct {
	beds       BedRepository
	admissions AdmissionRepository
	validator  *validate.Validator
	runInTx    func(ctx context.Context, fn func(ctx context.Context) error) error
}

func NewService(beds BedRepository, admissions AdmissionRepository) *Service {
	return &Service{
		beds:       beds,
		admissions: admissions,
		validator:  validate.New(),
		runInTx:    db.RunInTx,
	}
}

func (s *Service) List(ctx context.Context) ([]*Bed, error) {
	return s.beds.List(ctx)
}

// Init creates the default beds when the ward has none and returns how
// many were created. A ward that already has beds is left alone.
func (s *Service) Init(ctx context.Context) (int, error) {
	n, err := s.beds.Count(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		return 0, nil
	}
	created := 0
	for i := 1; i <= DefaultBedCount; i++ {
		ok, err := s.beds.CreateIfAbsent(ctx, fmt.Sprintf("Bed %d", i))
		if err != nil {
			return created, err
		}
		if ok {
			created++
		}
	}
	return created, nil
}

func (s *Service) AddBed(ctx context.Context, req AddBedRequest) (*Bed, error) {
	req.Number = strings.TrimSpace(req.Number)
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	b := &Bed{Number: req.Number}
	if err := s.beds.Create(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// Admit places a patient in a free bed. The bed row stays locked for the
// whole transaction so two admissions cannot claim the same bed.
func (s *Service) Admit(ctx context.Context, req AdmitRequest) (*Admission, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	patientID, err := uuid.Parse(req.PatientID)
	if err != nil {
		return nil, apperr.New(apperr.ErrValidation, "patient_id must be a valid id")
	}
	bedID, err := uuid.Parse(req.BedID)
	if err != nil {
		return nil, apperr.New(apperr.ErrValidation, "bed_id must be a valid id")
	}

	var admission *Admission
	err = s.runInTx(ctx, func(ctx context.Context) error {
		bed, err := s.beds.Lock(ctx, bedID)
		if err != nil {
			return err
		}
		if bed.IsOccupied {
			return apperr.New(apperr.ErrConflict, "bed is already occupied")
		}
		admitted, err := s.admissions.PatientAdmitted(ctx, patientID)
		if err != nil {
			return err
		}
		if admitted {
			return ErrPatientAdmitted
		}
		a := &Admission{PatientID: patientID, BedID: bedID, Status: StatusAdmitted}
		if err := s.admissions.Create(ctx, a); err != nil {
			return err
		}
		if err := s.beds.SetOccupied(ctx, bedID, true); err != nil {
			return err
		}
		admission = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return admission, nil
}

// Discharge closes the active admission of a bed and frees it.
func (s *Service) Discharge(ctx context.Context, bedID uuid.UUID) (*Admission, error) {
	var admission *Admission
	err := s.runInTx(ctx, func(ctx context.Context) error {
		if _, err := s.beds.Lock(ctx, bedID); err != nil {
			return err
		}
		a, err := s.admissions.ActiveForBed(ctx, bedID)
		if err != nil {
			return err
		}
		if a == nil {
			return apperr.New(apperr.ErrValidation, "no active admission")
		}
		if err := s.admissions.Discharge(ctx, a); err != nil {
			return err
		}
		if err := s.beds.SetOccupied(ctx, bedID, false); err != nil {
			return err
		}
		admission = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return admission, nil
}
