package records

import (
	"context"
	"errors"
	"time"

	"github.com/carelink/platform/pkg/assignments"
	"github.com/carelink/platform/pkg/common/models"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrRecordNotFound = errors.New("health record not found")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

type RecordModel struct {
	ID        uuid.UUID         `gorm:"type:uuid;primaryKey"`
	PatientID uuid.UUID         `gorm:"type:uuid;index"`
	Data      string            `gorm:"type:text"`
	Metadata  datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (RecordModel) TableName() string {
	return "health_records"
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&RecordModel{})
}

func (r *Repository) Create(ctx context.Context, patientID uuid.UUID, data string, metadata map[string]interface{}) (models.HealthRecord, error) {
	record := RecordModel{
		ID:        uuid.New(),
		PatientID: patientID,
		Data:      data,
		Metadata:  datatypes.JSONMap(metadata),
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		return models.HealthRecord{}, err
	}
	return mapRecordModel(record), nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (models.HealthRecord, error) {
	var record RecordModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.HealthRecord{}, ErrRecordNotFound
	}
	if err != nil {
		return models.HealthRecord{}, err
	}
	return mapRecordModel(record), nil
}

func (r *Repository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]models.HealthRecord, error) {
	var rows []RecordModel
	err := r.db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return mapRecordModels(rows), nil
}

// ListForDoctor returns the records of every patient currently assigned to
// the doctor.
func (r *Repository) ListForDoctor(ctx context.Context, doctorID uuid.UUID) ([]models.HealthRecord, error) {
	assigned := r.db.WithContext(ctx).Model(&assignments.AssignmentModel{}).
		Select("patient_id").
		Where("doctor_id = ?", doctorID)

	var rows []RecordModel
	err := r.db.WithContext(ctx).
		Where("patient_id IN (?)", assigned).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return mapRecordModels(rows), nil
}

func (r *Repository) Update(ctx context.Context, id uuid.UUID, data string, metadata map[string]interface{}) (models.HealthRecord, error) {
	updates := map[string]interface{}{
		"data":       data,
		"updated_at": time.Now().UTC(),
	}
	if metadata != nil {
		updates["metadata"] = datatypes.JSONMap(metadata)
	}

	res := r.db.WithContext(ctx).Model(&RecordModel{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return models.HealthRecord{}, res.Error
	}
	if res.RowsAffected == 0 {
		return models.HealthRecord{}, ErrRecordNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM annotations WHERE record_id = ?", id).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&RecordModel{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrRecordNotFound
		}
		return nil
	})
}

func mapRecordModel(record RecordModel) models.HealthRecord {
	return models.HealthRecord{
		ID:        record.ID,
		PatientID: record.PatientID,
		Data:      record.Data,
		Metadata:  map[string]interface{}(record.Metadata),
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}
}

func mapRecordModels(rows []RecordModel) []models.HealthRecord {
	out := make([]models.HealthRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, mapRecordModel(row))
	}
	return out
}
