// Package authz holds the authorization predicates consulted before every
// mutating operation. The predicates carry no state: each answer is a
// function of the relational state at call time.
package authz

import (
	"context"

	"github.com/carelink/platform/pkg/common/errs"
	"github.com/carelink/platform/pkg/common/models"
	"github.com/google/uuid"
)

// AssignmentChecker answers whether a doctor-patient assignment currently
// exists. Backed by an existence query against the assignment registry.
type AssignmentChecker interface {
	Exists(ctx context.Context, doctorID, patientID uuid.UUID) (bool, error)
}

func RequirePatient(actor models.Actor) (*models.PatientProfile, error) {
	if actor.Patient == nil {
		return nil, errs.Permissionf("user does not have patient permissions")
	}
	return actor.Patient, nil
}

func RequireDoctor(actor models.Actor) (*models.DoctorProfile, error) {
	if actor.Doctor == nil {
		return nil, errs.Permissionf("user does not have doctor permissions")
	}
	return actor.Doctor, nil
}

func RequireAdmin(actor models.Actor) error {
	if !actor.IsAdmin() {
		return errs.Permissionf("administrator access required")
	}
	return nil
}

func IsOwner(profile *models.PatientProfile, record models.HealthRecord) bool {
	return profile != nil && record.PatientID == profile.ID
}

func IsAssigned(ctx context.Context, checker AssignmentChecker, doctorID, patientID uuid.UUID) (bool, error) {
	return checker.Exists(ctx, doctorID, patientID)
}
