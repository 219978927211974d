package annotations

import (
	"context"
	"errors"
	"strings"

	"github.com/carelink/platform/pkg/authz"
	"github.com/carelink/platform/pkg/common/errs"
	"github.com/carelink/platform/pkg/common/models"
	"github.com/carelink/platform/pkg/records"
	"github.com/google/uuid"
)

type Store interface {
	CreateChecked(ctx context.Context, recordID, doctorID uuid.UUID, comment string) (models.Annotation, error)
	GetByID(ctx context.Context, id uuid.UUID) (models.Annotation, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, recordID uuid.UUID) ([]models.Annotation, error)
	Update(ctx context.Context, id uuid.UUID, comment string) (models.Annotation, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

func (s *Service) Create(ctx context.Context, actor models.Actor, rawRecordID string, req models.CreateAnnotationRequest) (models.Annotation, error) {
	doctor, err := authz.RequireDoctor(actor)
	if err != nil {
		return models.Annotation{}, err
	}
	if strings.TrimSpace(rawRecordID) == "" {
		return models.Annotation{}, errs.Validationf("record_id parameter is missing")
	}
	if strings.TrimSpace(req.Comment) == "" {
		return models.Annotation{}, errs.Validationf("comment is required")
	}

	recordID, err := uuid.Parse(rawRecordID)
	if err != nil {
		return models.Annotation{}, errs.NotFound(records.ErrRecordNotFound)
	}

	annotation, err := s.store.CreateChecked(ctx, recordID, doctor.ID, req.Comment)
	if err != nil {
		switch {
		case errors.Is(err, records.ErrRecordNotFound):
			return models.Annotation{}, errs.NotFound(err)
		case errors.Is(err, ErrNotAssigned):
			return models.Annotation{}, errs.Permissionf("you are not assigned to this patient")
		}
		return models.Annotation{}, err
	}
	return annotation, nil
}

func (s *Service) List(ctx context.Context, actor models.Actor, rawRecordID string) ([]models.Annotation, error) {
	doctor, err := authz.RequireDoctor(actor)
	if err != nil {
		return nil, err
	}

	recordID := uuid.Nil
	if strings.TrimSpace(rawRecordID) != "" {
		recordID, err = uuid.Parse(rawRecordID)
		if err != nil {
			return nil, errs.NotFound(records.ErrRecordNotFound)
		}
	}
	return s.store.ListByDoctor(ctx, doctor.ID, recordID)
}

func (s *Service) Update(ctx context.Context, actor models.Actor, rawID string, req models.UpdateAnnotationRequest) (models.Annotation, error) {
	annotation, err := s.getOwnAnnotation(ctx, actor, rawID)
	if err != nil {
		return models.Annotation{}, err
	}
	if strings.TrimSpace(req.Comment) == "" {
		return models.Annotation{}, errs.Validationf("comment is required")
	}
	return s.store.Update(ctx, annotation.ID, req.Comment)
}

func (s *Service) Delete(ctx context.Context, actor models.Actor, rawID string) error {
	annotation, err := s.getOwnAnnotation(ctx, actor, rawID)
	if err != nil {
		return err
	}
	return s.store.Delete(ctx, annotation.ID)
}

func (s *Service) getOwnAnnotation(ctx context.Context, actor models.Actor, rawID string) (models.Annotation, error) {
	doctor, err := authz.RequireDoctor(actor)
	if err != nil {
		return models.Annotation{}, err
	}
	if strings.TrimSpace(rawID) == "" {
		return models.Annotation{}, errs.Validationf("annotation id parameter is missing")
	}

	id, err := uuid.Parse(rawID)
	if err != nil {
		return models.Annotation{}, errs.NotFound(ErrAnnotationNotFound)
	}

	annotation, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAnnotationNotFound) {
			return models.Annotation{}, errs.NotFound(err)
		}
		return models.Annotation{}, err
	}
	if annotation.DoctorID != doctor.ID {
		return models.Annotation{}, errs.Permissionf("you can only manage your own annotations")
	}
	return annotation, nil
}
