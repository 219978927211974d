package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/carelink/platform/pkg/common/models"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrProfileNotFound    = errors.New("profile not found")
	ErrEmailAlreadyExists = errors.New("email already registered")
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

type UserModel struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	Username     string    `gorm:"size:150;uniqueIndex"`
	Email        string    `gorm:"uniqueIndex"`
	FirstName    string    `gorm:"size:150"`
	LastName     string    `gorm:"size:150"`
	Role         string    `gorm:"size:10;index"`
	IsAdmin      bool
	PasswordHash string
	Metadata     datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (UserModel) TableName() string {
	return "users"
}

type PatientProfileModel struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID          uuid.UUID `gorm:"type:uuid;uniqueIndex"`
	InsuranceNumber string    `gorm:"size:20"`
	CreatedAt       time.Time

	User UserModel `gorm:"foreignKey:UserID"`
}

func (PatientProfileModel) TableName() string {
	return "patient_profiles"
}

type DoctorProfileModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID      uuid.UUID `gorm:"type:uuid;uniqueIndex"`
	Specialties string    `gorm:"size:255"`
	CreatedAt   time.Time

	User UserModel `gorm:"foreignKey:UserID"`
}

func (DoctorProfileModel) TableName() string {
	return "doctor_profiles"
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&UserModel{}, &PatientProfileModel{}, &DoctorProfileModel{})
}

type CreateUserInput struct {
	Username        string
	Email           string
	FirstName       string
	LastName        string
	Role            string
	PasswordHash    string
	InsuranceNumber string
	Specialties     string
	Metadata        map[string]interface{}
}

// CreateUserWithProfile provisions the user row and its role profile in one
// transaction so a failed profile insert never leaves an orphaned user.
func (r *Repository) CreateUserWithProfile(ctx context.Context, input CreateUserInput) (models.User, error) {
	normalizedEmail := strings.ToLower(strings.TrimSpace(input.Email))

	user := UserModel{
		ID:           uuid.New(),
		Username:     strings.TrimSpace(input.Username),
		Email:        normalizedEmail,
		FirstName:    strings.TrimSpace(input.FirstName),
		LastName:     strings.TrimSpace(input.LastName),
		Role:         input.Role,
		PasswordHash: input.PasswordHash,
		Metadata:     datatypes.JSONMap(input.Metadata),
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&UserModel{}).Where("email = ?", normalizedEmail).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrEmailAlreadyExists
		}

		if err := tx.Create(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrEmailAlreadyExists
			}
			return err
		}

		switch input.Role {
		case models.RolePatient:
			profile := PatientProfileModel{
				ID:              uuid.New(),
				UserID:          user.ID,
				InsuranceNumber: input.InsuranceNumber,
				CreatedAt:       time.Now().UTC(),
			}
			return tx.Create(&profile).Error
		case models.RoleDoctor:
			profile := DoctorProfileModel{
				ID:          uuid.New(),
				UserID:      user.ID,
				Specialties: input.Specialties,
				CreatedAt:   time.Now().UTC(),
			}
			return tx.Create(&profile).Error
		}
		return nil
	})
	if err != nil {
		return models.User{}, err
	}

	return mapUserModel(user), nil
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	var user UserModel
	err := r.db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.User{}, ErrUserNotFound
	}
	if err != nil {
		return models.User{}, err
	}
	return mapUserModel(user), nil
}

func (r *Repository) GetUserByID(ctx context.Context, id uuid.UUID) (models.User, error) {
	var user UserModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.User{}, ErrUserNotFound
	}
	if err != nil {
		return models.User{}, err
	}
	return mapUserModel(user), nil
}

func (r *Repository) GetPasswordHash(ctx context.Context, id uuid.UUID) (string, error) {
	var user UserModel
	err := r.db.WithContext(ctx).Select("password_hash").Where("id = ?", id).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrUserNotFound
	}
	if err != nil {
		return "", err
	}
	return user.PasswordHash, nil
}

func (r *Repository) EmailTaken(ctx context.Context, email string, excludeUserID uuid.UUID) (bool, error) {
	var count int64
	q := r.db.WithContext(ctx).Model(&UserModel{}).Where("email = ?", strings.ToLower(strings.TrimSpace(email)))
	if excludeUserID != uuid.Nil {
		q = q.Where("id <> ?", excludeUserID)
	}
	err := q.Count(&count).Error
	return count > 0, err
}

type UpdateUserInput struct {
	Email        *string
	FirstName    *string
	LastName     *string
	PasswordHash *string
}

func (r *Repository) UpdateUser(ctx context.Context, id uuid.UUID, input UpdateUserInput) (models.User, error) {
	updates := map[string]interface{}{
		"updated_at": time.Now().UTC(),
	}
	if input.Email != nil {
		updates["email"] = strings.ToLower(strings.TrimSpace(*input.Email))
	}
	if input.FirstName != nil {
		updates["first_name"] = strings.TrimSpace(*input.FirstName)
	}
	if input.LastName != nil {
		updates["last_name"] = strings.TrimSpace(*input.LastName)
	}
	if input.PasswordHash != nil {
		updates["password_hash"] = *input.PasswordHash
	}

	res := r.db.WithContext(ctx).Model(&UserModel{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return models.User{}, ErrEmailAlreadyExists
		}
		return models.User{}, res.Error
	}
	if res.RowsAffected == 0 {
		return models.User{}, ErrUserNotFound
	}
	return r.GetUserByID(ctx, id)
}

func (r *Repository) GetPatientProfileByUser(ctx context.Context, userID uuid.UUID) (models.PatientProfile, error) {
	var profile PatientProfileModel
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.PatientProfile{}, ErrProfileNotFound
	}
	if err != nil {
		return models.PatientProfile{}, err
	}
	return mapPatientModel(profile), nil
}

func (r *Repository) GetDoctorProfileByUser(ctx context.Context, userID uuid.UUID) (models.DoctorProfile, error) {
	var profile DoctorProfileModel
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.DoctorProfile{}, ErrProfileNotFound
	}
	if err != nil {
		return models.DoctorProfile{}, err
	}
	return mapDoctorModel(profile), nil
}

// GetDoctorProfile resolves a doctor profile by its own id, together with the
// owning user. Used when validating assignment targets and building
// notifications.
func (r *Repository) GetDoctorProfile(ctx context.Context, id uuid.UUID) (models.DoctorProfile, models.User, error) {
	var profile DoctorProfileModel
	err := r.db.WithContext(ctx).Preload("User").Where("id = ?", id).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.DoctorProfile{}, models.User{}, ErrProfileNotFound
	}
	if err != nil {
		return models.DoctorProfile{}, models.User{}, err
	}
	return mapDoctorModel(profile), mapUserModel(profile.User), nil
}

func (r *Repository) GetPatientProfile(ctx context.Context, id uuid.UUID) (models.PatientProfile, models.User, error) {
	var profile PatientProfileModel
	err := r.db.WithContext(ctx).Preload("User").Where("id = ?", id).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.PatientProfile{}, models.User{}, ErrProfileNotFound
	}
	if err != nil {
		return models.PatientProfile{}, models.User{}, err
	}
	return mapPatientModel(profile), mapUserModel(profile.User), nil
}

// DeleteUserCascade removes the user and everything it owns in one
// transaction, walking the ownership graph explicitly: a patient takes its
// records and their annotations and its assignments with it, a doctor takes
// its authored annotations and its assignments.
func (r *Repository) DeleteUserCascade(ctx context.Context, userID uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var patient PatientProfileModel
		err := tx.Where("user_id = ?", userID).First(&patient).Error
		switch {
		case err == nil:
			if err := tx.Exec(
				"DELETE FROM annotations WHERE record_id IN (SELECT id FROM health_records WHERE patient_id = ?)",
				patient.ID,
			).Error; err != nil {
				return err
			}
			if err := tx.Exec("DELETE FROM health_records WHERE patient_id = ?", patient.ID).Error; err != nil {
				return err
			}
			if err := tx.Exec("DELETE FROM assignments WHERE patient_id = ?", patient.ID).Error; err != nil {
				return err
			}
			if err := tx.Delete(&patient).Error; err != nil {
				return err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			// not a patient
		default:
			return err
		}

		var doctor DoctorProfileModel
		err = tx.Where("user_id = ?", userID).First(&doctor).Error
		switch {
		case err == nil:
			if err := tx.Exec("DELETE FROM annotations WHERE doctor_id = ?", doctor.ID).Error; err != nil {
				return err
			}
			if err := tx.Exec("DELETE FROM assignments WHERE doctor_id = ?", doctor.ID).Error; err != nil {
				return err
			}
			if err := tx.Delete(&doctor).Error; err != nil {
				return err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			// not a doctor
		default:
			return err
		}

		res := tx.Where("id = ?", userID).Delete(&UserModel{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrUserNotFound
		}
		return nil
	})
}

func mapUserModel(user UserModel) models.User {
	return models.User{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Role:      user.Role,
		IsAdmin:   user.IsAdmin,
		Metadata:  map[string]interface{}(user.Metadata),
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
}

func mapPatientModel(profile PatientProfileModel) models.PatientProfile {
	return models.PatientProfile{
		ID:              profile.ID,
		UserID:          profile.UserID,
		InsuranceNumber: profile.InsuranceNumber,
		CreatedAt:       profile.CreatedAt,
	}
}

func mapDoctorModel(profile DoctorProfileModel) models.DoctorProfile {
	return models.DoctorProfile{
		ID:          profile.ID,
		UserID:      profile.UserID,
		Specialties: profile.Specialties,
		CreatedAt:   profile.CreatedAt,
	}
}
