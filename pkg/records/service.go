package records

import (
	"context"
	"errors"
	"strings"

	"github.com/carelink/platform/pkg/authz"
	"github.com/carelink/platform/pkg/common/errs"
	"github.com/carelink/platform/pkg/common/models"
	"github.com/google/uuid"
)

type Store interface {
	Create(ctx context.Context, patientID uuid.UUID, data string, metadata map[string]interface{}) (models.HealthRecord, error)
	GetByID(ctx context.Context, id uuid.UUID) (models.HealthRecord, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]models.HealthRecord, error)
	ListForDoctor(ctx context.Context, doctorID uuid.UUID) ([]models.HealthRecord, error)
	Update(ctx context.Context, id uuid.UUID, data string, metadata map[string]interface{}) (models.HealthRecord, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// AnnotationLister attaches nested annotations to record reads. Implemented
// by the annotations repository; nil disables nesting.
type AnnotationLister interface {
	ListForRecords(ctx context.Context, recordIDs []uuid.UUID) (map[uuid.UUID][]models.Annotation, error)
}

type Service struct {
	store       Store
	annotations AnnotationLister
}

func NewService(store Store, annotations AnnotationLister) *Service {
	return &Service{store: store, annotations: annotations}
}

func (s *Service) Create(ctx context.Context, actor models.Actor, req models.CreateRecordRequest) (models.HealthRecord, error) {
	profile, err := authz.RequirePatient(actor)
	if err != nil {
		return models.HealthRecord{}, err
	}
	if strings.TrimSpace(req.Data) == "" {
		return models.HealthRecord{}, errs.Validationf("data is required")
	}
	return s.store.Create(ctx, profile.ID, req.Data, req.Metadata)
}

// List scopes results by actor: patients see their own records, doctors see
// records of their assigned patients, anyone else sees nothing.
func (s *Service) List(ctx context.Context, actor models.Actor) ([]models.HealthRecord, error) {
	var (
		result []models.HealthRecord
		err    error
	)
	switch {
	case actor.Patient != nil:
		result, err = s.store.ListByPatient(ctx, actor.Patient.ID)
	case actor.Doctor != nil:
		result, err = s.store.ListForDoctor(ctx, actor.Doctor.ID)
	default:
		return []models.HealthRecord{}, nil
	}
	if err != nil {
		return nil, err
	}
	return s.attachAnnotations(ctx, result)
}

func (s *Service) Update(ctx context.Context, actor models.Actor, rawID string, req models.UpdateRecordRequest) (models.HealthRecord, error) {
	record, err := s.getOwnedRecord(ctx, actor, rawID)
	if err != nil {
		return models.HealthRecord{}, err
	}
	if strings.TrimSpace(req.Data) == "" {
		return models.HealthRecord{}, errs.Validationf("data is required")
	}
	return s.store.Update(ctx, record.ID, req.Data, req.Metadata)
}

func (s *Service) Delete(ctx context.Context, actor models.Actor, rawID string) error {
	record, err := s.getOwnedRecord(ctx, actor, rawID)
	if err != nil {
		return err
	}
	return s.store.Delete(ctx, record.ID)
}

// getOwnedRecord resolves the id and validates ownership: a missing id is a
// validation error, an unresolvable id is not-found, and someone else's
// record is a permission error.
func (s *Service) getOwnedRecord(ctx context.Context, actor models.Actor, rawID string) (models.HealthRecord, error) {
	if strings.TrimSpace(rawID) == "" {
		return models.HealthRecord{}, errs.Validationf("record id parameter is missing")
	}

	id, err := uuid.Parse(rawID)
	if err != nil {
		return models.HealthRecord{}, errs.NotFound(ErrRecordNotFound)
	}

	record, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return models.HealthRecord{}, errs.NotFound(err)
		}
		return models.HealthRecord{}, err
	}

	profile, err := authz.RequirePatient(actor)
	if err != nil {
		return models.HealthRecord{}, err
	}
	if !authz.IsOwner(profile, record) {
		return models.HealthRecord{}, errs.Permissionf("you can only manage your own records")
	}
	return record, nil
}

func (s *Service) attachAnnotations(ctx context.Context, result []models.HealthRecord) ([]models.HealthRecord, error) {
	if s.annotations == nil || len(result) == 0 {
		return result, nil
	}

	ids := make([]uuid.UUID, 0, len(result))
	for _, record := range result {
		ids = append(ids, record.ID)
	}

	byRecord, err := s.annotations.ListForRecords(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range result {
		result[i].Annotations = byRecord[result[i].ID]
	}
	return result, nil
}
