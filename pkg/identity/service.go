package identity

import (
	"context"
	"errors"

	"github.com/carelink/platform/pkg/common/errs"
	"github.com/carelink/platform/pkg/common/models"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// Store is the persistence surface the service needs. *Repository satisfies
// it; tests use an in-memory fake.
type Store interface {
	CreateUserWithProfile(ctx context.Context, input CreateUserInput) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (models.User, error)
	GetPasswordHash(ctx context.Context, id uuid.UUID) (string, error)
	EmailTaken(ctx context.Context, email string, excludeUserID uuid.UUID) (bool, error)
	UpdateUser(ctx context.Context, id uuid.UUID, input UpdateUserInput) (models.User, error)
	DeleteUserCascade(ctx context.Context, userID uuid.UUID) error
	GetPatientProfileByUser(ctx context.Context, userID uuid.UUID) (models.PatientProfile, error)
	GetDoctorProfileByUser(ctx context.Context, userID uuid.UUID) (models.DoctorProfile, error)
}

type Service struct {
	store     Store
	validator *Validator
}

func NewService(store Store, validator *Validator) *Service {
	return &Service{store: store, validator: validator}
}

func (s *Service) Register(ctx context.Context, req models.RegisterRequest) (models.User, error) {
	if err := s.validator.ValidateRegistration(req); err != nil {
		return models.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, err
	}

	user, err := s.store.CreateUserWithProfile(ctx, CreateUserInput{
		Username:        req.Username,
		Email:           req.Email,
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		Role:            req.Role,
		PasswordHash:    string(hash),
		InsuranceNumber: req.InsuranceNumber,
		Specialties:     req.Specialties,
	})
	if err != nil {
		if errors.Is(err, ErrEmailAlreadyExists) {
			return models.User{}, errs.Validation(err)
		}
		return models.User{}, err
	}
	return user, nil
}

func (s *Service) Authenticate(ctx context.Context, email, password string) (models.User, error) {
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return models.User{}, errs.Authentication(ErrInvalidCredentials)
		}
		return models.User{}, err
	}
	if password == "" {
		return models.User{}, errs.Authentication(ErrInvalidCredentials)
	}

	hash, err := s.store.GetPasswordHash(ctx, user.ID)
	if err != nil {
		return models.User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return models.User{}, errs.Authentication(ErrInvalidCredentials)
	}

	return user, nil
}

// GetActor loads the user and attaches whichever role profile it owns.
func (s *Service) GetActor(ctx context.Context, userID uuid.UUID) (models.Actor, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return models.Actor{}, errs.Authentication(err)
		}
		return models.Actor{}, err
	}

	actor := models.Actor{User: user}

	switch user.Role {
	case models.RolePatient:
		profile, err := s.store.GetPatientProfileByUser(ctx, userID)
		if err == nil {
			actor.Patient = &profile
		} else if !errors.Is(err, ErrProfileNotFound) {
			return models.Actor{}, err
		}
	case models.RoleDoctor:
		profile, err := s.store.GetDoctorProfileByUser(ctx, userID)
		if err == nil {
			actor.Doctor = &profile
		} else if !errors.Is(err, ErrProfileNotFound) {
			return models.Actor{}, err
		}
	}

	return actor, nil
}

func (s *Service) GetUser(ctx context.Context, userID uuid.UUID) (models.User, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return models.User{}, errs.NotFound(err)
		}
		return models.User{}, err
	}
	return user, nil
}

func (s *Service) UpdateUser(ctx context.Context, userID uuid.UUID, req models.UpdateUserRequest) (models.User, error) {
	input := UpdateUserInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
	}

	if req.Email != nil {
		if err := s.validator.ValidateEmail(*req.Email); err != nil {
			return models.User{}, err
		}
		taken, err := s.store.EmailTaken(ctx, *req.Email, userID)
		if err != nil {
			return models.User{}, err
		}
		if taken {
			return models.User{}, errs.Validation(ErrEmailAlreadyExists)
		}
		input.Email = req.Email
	}

	if req.Password != nil {
		if err := s.validator.ValidatePassword(*req.Password); err != nil {
			return models.User{}, err
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			return models.User{}, err
		}
		hashStr := string(hash)
		input.PasswordHash = &hashStr
	}

	user, err := s.store.UpdateUser(ctx, userID, input)
	if err != nil {
		switch {
		case errors.Is(err, ErrUserNotFound):
			return models.User{}, errs.NotFound(err)
		case errors.Is(err, ErrEmailAlreadyExists):
			return models.User{}, errs.Validation(err)
		}
		return models.User{}, err
	}
	return user, nil
}

func (s *Service) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	err := s.store.DeleteUserCascade(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return errs.NotFound(err)
	}
	return err
}
