package assignments

import (
	"context"
	"errors"
	"time"

	"github.com/carelink/platform/pkg/authz"
	"github.com/carelink/platform/pkg/common/errs"
	"github.com/carelink/platform/pkg/common/logger"
	"github.com/carelink/platform/pkg/common/models"
	"github.com/google/uuid"
)

type Store interface {
	Create(ctx context.Context, doctorID, patientID uuid.UUID) (models.Assignment, error)
	List(ctx context.Context) ([]models.Assignment, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Exists(ctx context.Context, doctorID, patientID uuid.UUID) (bool, error)
}

// Directory resolves assignment targets to their profiles and users.
type Directory interface {
	GetDoctorProfile(ctx context.Context, id uuid.UUID) (models.DoctorProfile, models.User, error)
	GetPatientProfile(ctx context.Context, id uuid.UUID) (models.PatientProfile, models.User, error)
}

// Notifier delivers the assignment notification. Best-effort: failures are
// logged and never surfaced to the admin creating the assignment.
type Notifier interface {
	AssignmentCreated(ctx context.Context, assignment models.Assignment, doctorEmail string) error
}

type Service struct {
	store     Store
	directory Directory
	notifier  Notifier
}

func NewService(store Store, directory Directory, notifier Notifier) *Service {
	return &Service{store: store, directory: directory, notifier: notifier}
}

func (s *Service) Create(ctx context.Context, actor models.Actor, req models.CreateAssignmentRequest) (models.Assignment, error) {
	if err := authz.RequireAdmin(actor); err != nil {
		return models.Assignment{}, err
	}
	if req.DoctorID == uuid.Nil {
		return models.Assignment{}, errs.Validationf("doctor_id is required")
	}
	if req.PatientID == uuid.Nil {
		return models.Assignment{}, errs.Validationf("patient_id is required")
	}

	doctor, doctorUser, err := s.directory.GetDoctorProfile(ctx, req.DoctorID)
	if err != nil {
		return models.Assignment{}, errs.NotFoundf("doctor not found")
	}
	_, patientUser, err := s.directory.GetPatientProfile(ctx, req.PatientID)
	if err != nil {
		return models.Assignment{}, errs.NotFoundf("patient not found")
	}

	assignment, err := s.store.Create(ctx, doctor.ID, req.PatientID)
	if err != nil {
		if errors.Is(err, ErrDuplicateAssignment) {
			return models.Assignment{}, errs.Validation(err)
		}
		return models.Assignment{}, err
	}

	assignment.DoctorName = doctorUser.FullName()
	assignment.PatientName = patientUser.FullName()

	if s.notifier != nil {
		// Fire and forget: delivery must never block or roll back the
		// assignment.
		go func(a models.Assignment, email string) {
			nctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := s.notifier.AssignmentCreated(nctx, a, email); err != nil {
				logger.Log.WithError(err).WithFields(map[string]interface{}{
					"assignment_id": a.ID,
					"doctor_id":     a.DoctorID,
				}).Error("failed to deliver assignment notification")
			}
		}(assignment, doctorUser.Email)
	}

	return assignment, nil
}

func (s *Service) List(ctx context.Context, actor models.Actor) ([]models.Assignment, error) {
	if err := authz.RequireAdmin(actor); err != nil {
		return nil, err
	}
	return s.store.List(ctx)
}

func (s *Service) Delete(ctx context.Context, actor models.Actor, id uuid.UUID) error {
	if err := authz.RequireAdmin(actor); err != nil {
		return err
	}
	err := s.store.Delete(ctx, id)
	if errors.Is(err, ErrAssignmentNotFound) {
		return errs.NotFound(err)
	}
	return err
}
