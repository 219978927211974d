package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	RolePatient = "patient"
	RoleDoctor  = "doctor"
)

type User struct {
	ID        uuid.UUID              `json:"id"`
	Username  string                 `json:"username"`
	Email     string                 `json:"email"`
	FirstName string                 `json:"first_name"`
	LastName  string                 `json:"last_name"`
	Role      string                 `json:"role"`
	IsAdmin   bool                   `json:"is_admin"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

func (u User) FullName() string {
	if u.FirstName == "" {
		return u.LastName
	}
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

type PatientProfile struct {
	ID              uuid.UUID `json:"id"`
	UserID          uuid.UUID `json:"user_id"`
	InsuranceNumber string    `json:"insurance_number,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

type DoctorProfile struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	Specialties string    `json:"specialties,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Actor is the authenticated identity making a request, tagged with the
// profile matching its role. At most one of Patient/Doctor is set.
type Actor struct {
	User    User
	Patient *PatientProfile
	Doctor  *DoctorProfile
}

func (a Actor) IsAdmin() bool {
	return a.User.IsAdmin
}

type HealthRecord struct {
	ID          uuid.UUID              `json:"id"`
	PatientID   uuid.UUID              `json:"patient_id"`
	Data        string                 `json:"data"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	Annotations []Annotation           `json:"annotations,omitempty"`
}

type Annotation struct {
	ID         uuid.UUID `json:"id"`
	RecordID   uuid.UUID `json:"record_id"`
	DoctorID   uuid.UUID `json:"doctor_id"`
	DoctorName string    `json:"doctor_name,omitempty"`
	Comment    string    `json:"comment"`
	CreatedAt  time.Time `json:"created_at"`
}

type Assignment struct {
	ID          uuid.UUID `json:"id"`
	DoctorID    uuid.UUID `json:"doctor_id"`
	PatientID   uuid.UUID `json:"patient_id"`
	DoctorName  string    `json:"doctor_name,omitempty"`
	PatientName string    `json:"patient_name,omitempty"`
	AssignedAt  time.Time `json:"assigned_at"`
}

// Event is the envelope published on the notification bus.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
}

// Request / response payloads

type RegisterRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Role            string `json:"role"`
	InsuranceNumber string `json:"insurance_number,omitempty"`
	Specialties     string `json:"specialties,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

type RefreshRequest struct {
	Refresh string `json:"refresh"`
}

type AccessResponse struct {
	Access string `json:"access"`
}

type UpdateUserRequest struct {
	Email     *string `json:"email,omitempty"`
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Password  *string `json:"password,omitempty"`
}

type DeleteUserRequest struct {
	Refresh string `json:"refresh,omitempty"`
}

type CreateRecordRequest struct {
	Data     string                 `json:"data"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

type UpdateRecordRequest struct {
	Data     string                 `json:"data"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

type CreateAnnotationRequest struct {
	Comment string `json:"comment"`
}

type UpdateAnnotationRequest struct {
	Comment string `json:"comment"`
}

type CreateAssignmentRequest struct {
	DoctorID  uuid.UUID `json:"doctor_id"`
	PatientID uuid.UUID `json:"patient_id"`
}
