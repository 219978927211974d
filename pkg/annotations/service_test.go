package annotations

import (
	"context"
	"testing"

	"github.com/carelink/platform/pkg/common/errs"
	"github.com/carelink/platform/pkg/common/models"
	"github.com/carelink/platform/pkg/records"
	"github.com/google/uuid"
)

// fakeAnnotationStore reproduces the repository's transactional create
// ordering: record existence first, assignment second.
type fakeAnnotationStore struct {
	annotations map[uuid.UUID]models.Annotation
	recordOwner map[uuid.UUID]uuid.UUID // record id -> patient profile id
	assigned    map[[2]uuid.UUID]bool   // {doctor, patient}
}

func newFakeAnnotationStore() *fakeAnnotationStore {
	return &fakeAnnotationStore{
		annotations: make(map[uuid.UUID]models.Annotation),
		recordOwner: make(map[uuid.UUID]uuid.UUID),
		assigned:    make(map[[2]uuid.UUID]bool),
	}
}

func (f *fakeAnnotationStore) CreateChecked(ctx context.Context, recordID, doctorID uuid.UUID, comment string) (models.Annotation, error) {
	patientID, ok := f.recordOwner[recordID]
	if !ok {
		return models.Annotation{}, records.ErrRecordNotFound
	}
	if !f.assigned[[2]uuid.UUID{doctorID, patientID}] {
		return models.Annotation{}, ErrNotAssigned
	}
	annotation := models.Annotation{ID: uuid.New(), RecordID: recordID, DoctorID: doctorID, Comment: comment}
	f.annotations[annotation.ID] = annotation
	return annotation, nil
}

func (f *fakeAnnotationStore) GetByID(ctx context.Context, id uuid.UUID) (models.Annotation, error) {
	annotation, ok := f.annotations[id]
	if !ok {
		return models.Annotation{}, ErrAnnotationNotFound
	}
	return annotation, nil
}

func (f *fakeAnnotationStore) ListByDoctor(ctx context.Context, doctorID uuid.UUID, recordID uuid.UUID) ([]models.Annotation, error) {
	var out []models.Annotation
	for _, a := range f.annotations {
		if a.DoctorID != doctorID {
			continue
		}
		if recordID != uuid.Nil && a.RecordID != recordID {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (f *fakeAnnotationStore) Update(ctx context.Context, id uuid.UUID, comment string) (models.Annotation, error) {
	annotation, ok := f.annotations[id]
	if !ok {
		return models.Annotation{}, ErrAnnotationNotFound
	}
	annotation.Comment = comment
	f.annotations[id] = annotation
	return annotation, nil
}

func (f *fakeAnnotationStore) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := f.annotations[id]; !ok {
		return ErrAnnotationNotFound
	}
	delete(f.annotations, id)
	return nil
}

type fixture struct {
	svc       *Service
	store     *fakeAnnotationStore
	doctor    models.Actor
	doctorID  uuid.UUID
	patientID uuid.UUID
	recordID  uuid.UUID
}

func newFixture(assigned bool) fixture {
	store := newFakeAnnotationStore()
	doctorProfile := &models.DoctorProfile{ID: uuid.New(), UserID: uuid.New()}
	patientID := uuid.New()
	recordID := uuid.New()
	store.recordOwner[recordID] = patientID
	if assigned {
		store.assigned[[2]uuid.UUID{doctorProfile.ID, patientID}] = true
	}
	return fixture{
		svc:   NewService(store),
		store: store,
		doctor: models.Actor{
			User:   models.User{ID: doctorProfile.UserID, Role: models.RoleDoctor},
			Doctor: doctorProfile,
		},
		doctorID:  doctorProfile.ID,
		patientID: patientID,
		recordID:  recordID,
	}
}

func TestCreateAnnotation(t *testing.T) {
	fx := newFixture(true)
	ctx := context.Background()

	annotation, err := fx.svc.Create(ctx, fx.doctor, fx.recordID.String(), models.CreateAnnotationRequest{Comment: "elevated, recheck"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if annotation.DoctorID != fx.doctorID || annotation.RecordID != fx.recordID {
		t.Errorf("annotation bound wrongly: %+v", annotation)
	}
}

func TestCreateAnnotationRejections(t *testing.T) {
	ctx := context.Background()
	patientActor := models.Actor{
		User:    models.User{ID: uuid.New(), Role: models.RolePatient},
		Patient: &models.PatientProfile{ID: uuid.New()},
	}

	t.Run("patient cannot annotate", func(t *testing.T) {
		fx := newFixture(true)
		_, err := fx.svc.Create(ctx, patientActor, fx.recordID.String(), models.CreateAnnotationRequest{Comment: "c"})
		if !errs.IsPermission(err) {
			t.Errorf("got %v", err)
		}
	})

	t.Run("missing record id", func(t *testing.T) {
		fx := newFixture(true)
		_, err := fx.svc.Create(ctx, fx.doctor, "", models.CreateAnnotationRequest{Comment: "c"})
		if !errs.IsValidation(err) {
			t.Errorf("got %v", err)
		}
	})

	t.Run("empty comment", func(t *testing.T) {
		fx := newFixture(true)
		_, err := fx.svc.Create(ctx, fx.doctor, fx.recordID.String(), models.CreateAnnotationRequest{Comment: "  "})
		if !errs.IsValidation(err) {
			t.Errorf("got %v", err)
		}
	})

	t.Run("unparseable record id", func(t *testing.T) {
		fx := newFixture(true)
		_, err := fx.svc.Create(ctx, fx.doctor, "garbage", models.CreateAnnotationRequest{Comment: "c"})
		if !errs.IsNotFound(err) {
			t.Errorf("got %v", err)
		}
	})

	t.Run("unknown record", func(t *testing.T) {
		fx := newFixture(true)
		_, err := fx.svc.Create(ctx, fx.doctor, uuid.NewString(), models.CreateAnnotationRequest{Comment: "c"})
		if !errs.IsNotFound(err) {
			t.Errorf("got %v", err)
		}
	})

	t.Run("not assigned", func(t *testing.T) {
		fx := newFixture(false)
		_, err := fx.svc.Create(ctx, fx.doctor, fx.recordID.String(), models.CreateAnnotationRequest{Comment: "c"})
		if !errs.IsPermission(err) {
			t.Errorf("got %v", err)
		}
	})
}

func TestListAnnotations(t *testing.T) {
	fx := newFixture(true)
	ctx := context.Background()

	otherRecord := uuid.New()
	fx.store.recordOwner[otherRecord] = fx.patientID

	if _, err := fx.svc.Create(ctx, fx.doctor, fx.recordID.String(), models.CreateAnnotationRequest{Comment: "a"}); err != nil {
		t.Fatal(err)
	}
	if _, err := fx.svc.Create(ctx, fx.doctor, otherRecord.String(), models.CreateAnnotationRequest{Comment: "b"}); err != nil {
		t.Fatal(err)
	}

	all, err := fx.svc.List(ctx, fx.doctor, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("unfiltered list has %d entries, want 2", len(all))
	}

	filtered, err := fx.svc.List(ctx, fx.doctor, fx.recordID.String())
	if err != nil {
		t.Fatal(err)
	}
	if len(filtered) != 1 || filtered[0].Comment != "a" {
		t.Errorf("filtered list = %+v", filtered)
	}

	_, err = fx.svc.List(ctx, fx.doctor, "not-a-uuid")
	if !errs.IsNotFound(err) {
		t.Errorf("unparseable filter: got %v", err)
	}
}

func TestAnnotationOutlivesAssignment(t *testing.T) {
	fx := newFixture(true)
	ctx := context.Background()

	annotation, err := fx.svc.Create(ctx, fx.doctor, fx.recordID.String(), models.CreateAnnotationRequest{Comment: "while assigned"})
	if err != nil {
		t.Fatal(err)
	}

	// Revoke the assignment; the existing annotation must stay readable and
	// mutable by its author.
	delete(fx.store.assigned, [2]uuid.UUID{fx.doctorID, fx.patientID})

	listed, err := fx.svc.List(ctx, fx.doctor, fx.recordID.String())
	if err != nil {
		t.Fatalf("list after revocation: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != annotation.ID {
		t.Fatalf("annotation missing after revocation: %+v", listed)
	}

	updated, err := fx.svc.Update(ctx, fx.doctor, annotation.ID.String(), models.UpdateAnnotationRequest{Comment: "amended later"})
	if err != nil {
		t.Fatalf("update after revocation: %v", err)
	}
	if updated.Comment != "amended later" {
		t.Errorf("Comment = %q", updated.Comment)
	}

	// New annotations are still refused.
	_, err = fx.svc.Create(ctx, fx.doctor, fx.recordID.String(), models.CreateAnnotationRequest{Comment: "too late"})
	if !errs.IsPermission(err) {
		t.Errorf("create after revocation: got %v", err)
	}

	if err := fx.svc.Delete(ctx, fx.doctor, annotation.ID.String()); err != nil {
		t.Fatalf("delete after revocation: %v", err)
	}
}

func TestUpdateAnnotationAuthorOnly(t *testing.T) {
	fx := newFixture(true)
	ctx := context.Background()

	annotation, err := fx.svc.Create(ctx, fx.doctor, fx.recordID.String(), models.CreateAnnotationRequest{Comment: "draft"})
	if err != nil {
		t.Fatal(err)
	}

	updated, err := fx.svc.Update(ctx, fx.doctor, annotation.ID.String(), models.UpdateAnnotationRequest{Comment: "final"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Comment != "final" {
		t.Errorf("Comment = %q", updated.Comment)
	}

	otherDoctor := models.Actor{
		User:   models.User{ID: uuid.New(), Role: models.RoleDoctor},
		Doctor: &models.DoctorProfile{ID: uuid.New()},
	}
	_, err = fx.svc.Update(ctx, otherDoctor, annotation.ID.String(), models.UpdateAnnotationRequest{Comment: "takeover"})
	if !errs.IsPermission(err) {
		t.Errorf("foreign author update: got %v", err)
	}

	_, err = fx.svc.Update(ctx, fx.doctor, annotation.ID.String(), models.UpdateAnnotationRequest{Comment: ""})
	if !errs.IsValidation(err) {
		t.Errorf("empty comment: got %v", err)
	}

	_, err = fx.svc.Update(ctx, fx.doctor, "", models.UpdateAnnotationRequest{Comment: "x"})
	if !errs.IsValidation(err) {
		t.Errorf("missing id: got %v", err)
	}

	_, err = fx.svc.Update(ctx, fx.doctor, uuid.NewString(), models.UpdateAnnotationRequest{Comment: "x"})
	if !errs.IsNotFound(err) {
		t.Errorf("unknown id: got %v", err)
	}
}

func TestDeleteAnnotationAuthorOnly(t *testing.T) {
	fx := newFixture(true)
	ctx := context.Background()

	annotation, err := fx.svc.Create(ctx, fx.doctor, fx.recordID.String(), models.CreateAnnotationRequest{Comment: "temp"})
	if err != nil {
		t.Fatal(err)
	}

	otherDoctor := models.Actor{
		User:   models.User{ID: uuid.New(), Role: models.RoleDoctor},
		Doctor: &models.DoctorProfile{ID: uuid.New()},
	}
	err = fx.svc.Delete(ctx, otherDoctor, annotation.ID.String())
	if !errs.IsPermission(err) {
		t.Errorf("foreign author delete: got %v", err)
	}

	if err := fx.svc.Delete(ctx, fx.doctor, annotation.ID.String()); err != nil {
		t.Fatalf("delete: %v", err)
	}
	err = fx.svc.Delete(ctx, fx.doctor, annotation.ID.String())
	if !errs.IsNotFound(err) {
		t.Errorf("second delete: got %v", err)
	}
}
