package authz

import (
	"context"
	"testing"

	"github.com/carelink/platform/pkg/common/errs"
	"github.com/carelink/platform/pkg/common/models"
	"github.com/google/uuid"
)

type staticChecker struct {
	doctorID  uuid.UUID
	patientID uuid.UUID
}

func (c staticChecker) Exists(ctx context.Context, doctorID, patientID uuid.UUID) (bool, error) {
	return doctorID == c.doctorID && patientID == c.patientID, nil
}

func TestRequirePatient(t *testing.T) {
	profile := &models.PatientProfile{ID: uuid.New()}
	actor := models.Actor{User: models.User{Role: models.RolePatient}, Patient: profile}

	got, err := RequirePatient(actor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != profile {
		t.Error("expected the actor's patient profile back")
	}

	_, err = RequirePatient(models.Actor{User: models.User{Role: models.RoleDoctor}})
	if !errs.IsPermission(err) {
		t.Errorf("expected permission error, got %v", err)
	}
}

func TestRequireDoctor(t *testing.T) {
	profile := &models.DoctorProfile{ID: uuid.New()}
	actor := models.Actor{User: models.User{Role: models.RoleDoctor}, Doctor: profile}

	got, err := RequireDoctor(actor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != profile {
		t.Error("expected the actor's doctor profile back")
	}

	_, err = RequireDoctor(models.Actor{User: models.User{Role: models.RolePatient}})
	if !errs.IsPermission(err) {
		t.Errorf("expected permission error, got %v", err)
	}
}

func TestRequireAdmin(t *testing.T) {
	if err := RequireAdmin(models.Actor{User: models.User{IsAdmin: true}}); err != nil {
		t.Errorf("admin should pass: %v", err)
	}
	err := RequireAdmin(models.Actor{User: models.User{Role: models.RoleDoctor}})
	if !errs.IsPermission(err) {
		t.Errorf("expected permission error, got %v", err)
	}
}

func TestIsOwner(t *testing.T) {
	profile := &models.PatientProfile{ID: uuid.New()}
	owned := models.HealthRecord{PatientID: profile.ID}
	foreign := models.HealthRecord{PatientID: uuid.New()}

	if !IsOwner(profile, owned) {
		t.Error("expected ownership of own record")
	}
	if IsOwner(profile, foreign) {
		t.Error("expected no ownership of a foreign record")
	}
	if IsOwner(nil, owned) {
		t.Error("nil profile owns nothing")
	}
}

func TestIsAssigned(t *testing.T) {
	ctx := context.Background()
	doctorID, patientID := uuid.New(), uuid.New()
	checker := staticChecker{doctorID: doctorID, patientID: patientID}

	ok, err := IsAssigned(ctx, checker, doctorID, patientID)
	if err != nil || !ok {
		t.Errorf("expected assignment to hold: %v %v", ok, err)
	}
	ok, err = IsAssigned(ctx, checker, doctorID, uuid.New())
	if err != nil || ok {
		t.Errorf("expected no assignment: %v %v", ok, err)
	}
}
