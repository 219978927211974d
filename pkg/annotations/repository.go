package annotations

import (
	"context"
	"errors"
	"time"

	"github.com/carelink/platform/pkg/assignments"
	"github.com/carelink/platform/pkg/common/models"
	"github.com/carelink/platform/pkg/identity"
	"github.com/carelink/platform/pkg/records"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrAnnotationNotFound = errors.New("annotation not found")
	ErrNotAssigned        = errors.New("doctor is not assigned to this patient")
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

type AnnotationModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	RecordID  uuid.UUID `gorm:"type:uuid;index"`
	DoctorID  uuid.UUID `gorm:"type:uuid;index"`
	Comment   string    `gorm:"type:text"`
	CreatedAt time.Time

	Doctor identity.DoctorProfileModel `gorm:"foreignKey:DoctorID"`
}

func (AnnotationModel) TableName() string {
	return "annotations"
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&AnnotationModel{})
}

// CreateChecked runs the assignment-existence check and the insert inside
// one transaction so a concurrent revocation cannot slip between them.
func (r *Repository) CreateChecked(ctx context.Context, recordID, doctorID uuid.UUID, comment string) (models.Annotation, error) {
	annotation := AnnotationModel{
		ID:        uuid.New(),
		RecordID:  recordID,
		DoctorID:  doctorID,
		Comment:   comment,
		CreatedAt: time.Now().UTC(),
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record records.RecordModel
		err := tx.Select("id", "patient_id").Where("id = ?", recordID).First(&record).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return records.ErrRecordNotFound
		}
		if err != nil {
			return err
		}

		var assigned int64
		if err := tx.Model(&assignments.AssignmentModel{}).
			Where("doctor_id = ? AND patient_id = ?", doctorID, record.PatientID).
			Count(&assigned).Error; err != nil {
			return err
		}
		if assigned == 0 {
			return ErrNotAssigned
		}

		return tx.Create(&annotation).Error
	})
	if err != nil {
		return models.Annotation{}, err
	}

	return mapAnnotationModel(annotation), nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (models.Annotation, error) {
	var annotation AnnotationModel
	err := r.db.WithContext(ctx).Preload("Doctor.User").Where("id = ?", id).First(&annotation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Annotation{}, ErrAnnotationNotFound
	}
	if err != nil {
		return models.Annotation{}, err
	}
	return mapAnnotationModel(annotation), nil
}

// ListByDoctor returns annotations authored by the doctor, optionally
// narrowed to one record.
func (r *Repository) ListByDoctor(ctx context.Context, doctorID uuid.UUID, recordID uuid.UUID) ([]models.Annotation, error) {
	q := r.db.WithContext(ctx).Preload("Doctor.User").Where("doctor_id = ?", doctorID)
	if recordID != uuid.Nil {
		q = q.Where("record_id = ?", recordID)
	}

	var rows []AnnotationModel
	if err := q.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]models.Annotation, 0, len(rows))
	for _, row := range rows {
		out = append(out, mapAnnotationModel(row))
	}
	return out, nil
}

// ListForRecords satisfies records.AnnotationLister for nested reads.
func (r *Repository) ListForRecords(ctx context.Context, recordIDs []uuid.UUID) (map[uuid.UUID][]models.Annotation, error) {
	if len(recordIDs) == 0 {
		return map[uuid.UUID][]models.Annotation{}, nil
	}

	var rows []AnnotationModel
	err := r.db.WithContext(ctx).
		Preload("Doctor.User").
		Where("record_id IN ?", recordIDs).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make(map[uuid.UUID][]models.Annotation, len(recordIDs))
	for _, row := range rows {
		out[row.RecordID] = append(out[row.RecordID], mapAnnotationModel(row))
	}
	return out, nil
}

func (r *Repository) Update(ctx context.Context, id uuid.UUID, comment string) (models.Annotation, error) {
	res := r.db.WithContext(ctx).Model(&AnnotationModel{}).Where("id = ?", id).Update("comment", comment)
	if res.Error != nil {
		return models.Annotation{}, res.Error
	}
	if res.RowsAffected == 0 {
		return models.Annotation{}, ErrAnnotationNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&AnnotationModel{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAnnotationNotFound
	}
	return nil
}

func mapAnnotationModel(row AnnotationModel) models.Annotation {
	annotation := models.Annotation{
		ID:        row.ID,
		RecordID:  row.RecordID,
		DoctorID:  row.DoctorID,
		Comment:   row.Comment,
		CreatedAt: row.CreatedAt,
	}
	if row.Doctor.User.ID != uuid.Nil {
		user := row.Doctor.User
		switch {
		case user.FirstName == "":
			annotation.DoctorName = user.LastName
		case user.LastName == "":
			annotation.DoctorName = user.FirstName
		default:
			annotation.DoctorName = user.FirstName + " " + user.LastName
		}
	}
	return annotation
}
