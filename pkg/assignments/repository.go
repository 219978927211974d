package assignments

import (
	"context"
	"errors"
	"time"

	"github.com/carelink/platform/pkg/common/models"
	"github.com/carelink/platform/pkg/identity"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrAssignmentNotFound  = errors.New("assignment not found")
	ErrDuplicateAssignment = errors.New("doctor is already assigned to this patient")
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

type AssignmentModel struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	DoctorID   uuid.UUID `gorm:"type:uuid;index;uniqueIndex:idx_assignments_doctor_patient"`
	PatientID  uuid.UUID `gorm:"type:uuid;index;uniqueIndex:idx_assignments_doctor_patient"`
	AssignedAt time.Time

	Doctor  identity.DoctorProfileModel  `gorm:"foreignKey:DoctorID"`
	Patient identity.PatientProfileModel `gorm:"foreignKey:PatientID"`
}

func (AssignmentModel) TableName() string {
	return "assignments"
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&AssignmentModel{})
}

// Create inserts the pair inside a transaction. The advisory pre-check gives
// a clean error message; the composite unique index is the authoritative
// duplicate guard under concurrency.
func (r *Repository) Create(ctx context.Context, doctorID, patientID uuid.UUID) (models.Assignment, error) {
	assignment := AssignmentModel{
		ID:         uuid.New(),
		DoctorID:   doctorID,
		PatientID:  patientID,
		AssignedAt: time.Now().UTC(),
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&AssignmentModel{}).
			Where("doctor_id = ? AND patient_id = ?", doctorID, patientID).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrDuplicateAssignment
		}

		if err := tx.Create(&assignment).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateAssignment
			}
			return err
		}
		return nil
	})
	if err != nil {
		return models.Assignment{}, err
	}

	return mapAssignmentModel(assignment), nil
}

func (r *Repository) List(ctx context.Context) ([]models.Assignment, error) {
	var rows []AssignmentModel
	err := r.db.WithContext(ctx).
		Preload("Doctor.User").
		Preload("Patient.User").
		Order("assigned_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]models.Assignment, 0, len(rows))
	for _, row := range rows {
		out = append(out, mapAssignmentModel(row))
	}
	return out, nil
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&AssignmentModel{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAssignmentNotFound
	}
	return nil
}

// Exists backs the authorization layer's assignment predicate.
func (r *Repository) Exists(ctx context.Context, doctorID, patientID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&AssignmentModel{}).
		Where("doctor_id = ? AND patient_id = ?", doctorID, patientID).
		Count(&count).Error
	return count > 0, err
}

func mapAssignmentModel(row AssignmentModel) models.Assignment {
	assignment := models.Assignment{
		ID:         row.ID,
		DoctorID:   row.DoctorID,
		PatientID:  row.PatientID,
		AssignedAt: row.AssignedAt,
	}
	if row.Doctor.User.ID != uuid.Nil {
		assignment.DoctorName = mapFullName(row.Doctor.User)
	}
	if row.Patient.User.ID != uuid.Nil {
		assignment.PatientName = mapFullName(row.Patient.User)
	}
	return assignment
}

func mapFullName(user identity.UserModel) string {
	if user.FirstName == "" {
		return user.LastName
	}
	if user.LastName == "" {
		return user.FirstName
	}
	return user.FirstName + " " + user.LastName
}
