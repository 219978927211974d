package assignments

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/carelink/platform/pkg/common/errs"
	"github.com/carelink/platform/pkg/common/logger"
	"github.com/carelink/platform/pkg/common/models"
	"github.com/google/uuid"
)

func TestMain(m *testing.M) {
	logger.Init()
	os.Exit(m.Run())
}

type fakeAssignmentStore struct {
	assignments map[uuid.UUID]models.Assignment
}

func newFakeAssignmentStore() *fakeAssignmentStore {
	return &fakeAssignmentStore{assignments: make(map[uuid.UUID]models.Assignment)}
}

func (f *fakeAssignmentStore) Create(ctx context.Context, doctorID, patientID uuid.UUID) (models.Assignment, error) {
	for _, a := range f.assignments {
		if a.DoctorID == doctorID && a.PatientID == patientID {
			return models.Assignment{}, ErrDuplicateAssignment
		}
	}
	assignment := models.Assignment{ID: uuid.New(), DoctorID: doctorID, PatientID: patientID, AssignedAt: time.Now()}
	f.assignments[assignment.ID] = assignment
	return assignment, nil
}

func (f *fakeAssignmentStore) List(ctx context.Context) ([]models.Assignment, error) {
	out := make([]models.Assignment, 0, len(f.assignments))
	for _, a := range f.assignments {
		out = append(out, a)
	}
	return out, nil
}

func (f *fakeAssignmentStore) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := f.assignments[id]; !ok {
		return ErrAssignmentNotFound
	}
	delete(f.assignments, id)
	return nil
}

func (f *fakeAssignmentStore) Exists(ctx context.Context, doctorID, patientID uuid.UUID) (bool, error) {
	for _, a := range f.assignments {
		if a.DoctorID == doctorID && a.PatientID == patientID {
			return true, nil
		}
	}
	return false, nil
}

var errNotInDirectory = errors.New("not in directory")

type fakeDirectory struct {
	doctors  map[uuid.UUID]models.DoctorProfile
	patients map[uuid.UUID]models.PatientProfile
	users    map[uuid.UUID]models.User
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		doctors:  make(map[uuid.UUID]models.DoctorProfile),
		patients: make(map[uuid.UUID]models.PatientProfile),
		users:    make(map[uuid.UUID]models.User),
	}
}

func (d *fakeDirectory) addDoctor(first, last, email string) models.DoctorProfile {
	user := models.User{ID: uuid.New(), FirstName: first, LastName: last, Email: email, Role: models.RoleDoctor}
	profile := models.DoctorProfile{ID: uuid.New(), UserID: user.ID}
	d.users[user.ID] = user
	d.doctors[profile.ID] = profile
	return profile
}

func (d *fakeDirectory) addPatient(first, last string) models.PatientProfile {
	user := models.User{ID: uuid.New(), FirstName: first, LastName: last, Role: models.RolePatient}
	profile := models.PatientProfile{ID: uuid.New(), UserID: user.ID}
	d.users[user.ID] = user
	d.patients[profile.ID] = profile
	return profile
}

func (d *fakeDirectory) GetDoctorProfile(ctx context.Context, id uuid.UUID) (models.DoctorProfile, models.User, error) {
	profile, ok := d.doctors[id]
	if !ok {
		return models.DoctorProfile{}, models.User{}, errNotInDirectory
	}
	return profile, d.users[profile.UserID], nil
}

func (d *fakeDirectory) GetPatientProfile(ctx context.Context, id uuid.UUID) (models.PatientProfile, models.User, error) {
	profile, ok := d.patients[id]
	if !ok {
		return models.PatientProfile{}, models.User{}, errNotInDirectory
	}
	return profile, d.users[profile.UserID], nil
}

type recordingNotifier struct {
	delivered chan string
}

func (n *recordingNotifier) AssignmentCreated(ctx context.Context, assignment models.Assignment, doctorEmail string) error {
	n.delivered <- doctorEmail
	return nil
}

type failingNotifier struct {
	attempted chan struct{}
}

func (n *failingNotifier) AssignmentCreated(ctx context.Context, assignment models.Assignment, doctorEmail string) error {
	defer close(n.attempted)
	return errors.New("smtp relay down")
}

func adminActor() models.Actor {
	return models.Actor{User: models.User{ID: uuid.New(), IsAdmin: true}}
}

func TestCreateAssignment(t *testing.T) {
	store := newFakeAssignmentStore()
	directory := newFakeDirectory()
	notifier := &recordingNotifier{delivered: make(chan string, 1)}
	svc := NewService(store, directory, notifier)
	ctx := context.Background()

	doctor := directory.addDoctor("Gregory", "House", "house@example.com")
	patient := directory.addPatient("Jane", "Doe")

	assignment, err := svc.Create(ctx, adminActor(), models.CreateAssignmentRequest{
		DoctorID:  doctor.ID,
		PatientID: patient.ID,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if assignment.DoctorName != "Gregory House" || assignment.PatientName != "Jane Doe" {
		t.Errorf("names not resolved: %+v", assignment)
	}

	select {
	case email := <-notifier.delivered:
		if email != "house@example.com" {
			t.Errorf("notified %q, want the doctor's email", email)
		}
	case <-time.After(2 * time.Second):
		t.Error("notification was never delivered")
	}
}

func TestCreateAssignmentSurvivesNotifierFailure(t *testing.T) {
	store := newFakeAssignmentStore()
	directory := newFakeDirectory()
	notifier := &failingNotifier{attempted: make(chan struct{})}
	svc := NewService(store, directory, notifier)
	ctx := context.Background()

	doctor := directory.addDoctor("Gregory", "House", "house@example.com")
	patient := directory.addPatient("Jane", "Doe")

	assignment, err := svc.Create(ctx, adminActor(), models.CreateAssignmentRequest{
		DoctorID:  doctor.ID,
		PatientID: patient.ID,
	})
	if err != nil {
		t.Fatalf("create must not surface delivery errors: %v", err)
	}
	if _, ok := store.assignments[assignment.ID]; !ok {
		t.Error("assignment was not persisted")
	}

	select {
	case <-notifier.attempted:
	case <-time.After(2 * time.Second):
		t.Error("delivery was never attempted")
	}

	// The failed delivery leaves the assignment intact.
	if _, ok := store.assignments[assignment.ID]; !ok {
		t.Error("assignment vanished after delivery failure")
	}
}

func TestCreateAssignmentRejections(t *testing.T) {
	store := newFakeAssignmentStore()
	directory := newFakeDirectory()
	svc := NewService(store, directory, nil)
	ctx := context.Background()

	doctor := directory.addDoctor("Gregory", "House", "house@example.com")
	patient := directory.addPatient("Jane", "Doe")
	admin := adminActor()

	t.Run("non-admin", func(t *testing.T) {
		doctorActor := models.Actor{
			User:   models.User{ID: uuid.New(), Role: models.RoleDoctor},
			Doctor: &models.DoctorProfile{ID: doctor.ID},
		}
		_, err := svc.Create(ctx, doctorActor, models.CreateAssignmentRequest{DoctorID: doctor.ID, PatientID: patient.ID})
		if !errs.IsPermission(err) {
			t.Errorf("got %v", err)
		}
	})

	t.Run("missing doctor id", func(t *testing.T) {
		_, err := svc.Create(ctx, admin, models.CreateAssignmentRequest{PatientID: patient.ID})
		if !errs.IsValidation(err) {
			t.Errorf("got %v", err)
		}
	})

	t.Run("missing patient id", func(t *testing.T) {
		_, err := svc.Create(ctx, admin, models.CreateAssignmentRequest{DoctorID: doctor.ID})
		if !errs.IsValidation(err) {
			t.Errorf("got %v", err)
		}
	})

	t.Run("unknown doctor", func(t *testing.T) {
		_, err := svc.Create(ctx, admin, models.CreateAssignmentRequest{DoctorID: uuid.New(), PatientID: patient.ID})
		if !errs.IsNotFound(err) {
			t.Errorf("got %v", err)
		}
	})

	t.Run("unknown patient", func(t *testing.T) {
		_, err := svc.Create(ctx, admin, models.CreateAssignmentRequest{DoctorID: doctor.ID, PatientID: uuid.New()})
		if !errs.IsNotFound(err) {
			t.Errorf("got %v", err)
		}
	})

	t.Run("duplicate", func(t *testing.T) {
		req := models.CreateAssignmentRequest{DoctorID: doctor.ID, PatientID: patient.ID}
		if _, err := svc.Create(ctx, admin, req); err != nil {
			t.Fatal(err)
		}
		_, err := svc.Create(ctx, admin, req)
		if !errs.IsValidation(err) {
			t.Errorf("got %v", err)
		}
	})
}

func TestListAssignmentsAdminOnly(t *testing.T) {
	store := newFakeAssignmentStore()
	directory := newFakeDirectory()
	svc := NewService(store, directory, nil)
	ctx := context.Background()

	doctor := directory.addDoctor("Gregory", "House", "house@example.com")
	patient := directory.addPatient("Jane", "Doe")
	admin := adminActor()

	if _, err := svc.Create(ctx, admin, models.CreateAssignmentRequest{DoctorID: doctor.ID, PatientID: patient.ID}); err != nil {
		t.Fatal(err)
	}

	got, err := svc.List(ctx, admin)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Errorf("len = %d, want 1", len(got))
	}

	_, err = svc.List(ctx, models.Actor{User: models.User{Role: models.RolePatient}})
	if !errs.IsPermission(err) {
		t.Errorf("non-admin list: got %v", err)
	}
}

func TestDeleteAssignment(t *testing.T) {
	store := newFakeAssignmentStore()
	directory := newFakeDirectory()
	svc := NewService(store, directory, nil)
	ctx := context.Background()

	doctor := directory.addDoctor("Gregory", "House", "house@example.com")
	patient := directory.addPatient("Jane", "Doe")
	admin := adminActor()

	assignment, err := svc.Create(ctx, admin, models.CreateAssignmentRequest{DoctorID: doctor.ID, PatientID: patient.ID})
	if err != nil {
		t.Fatal(err)
	}

	err = svc.Delete(ctx, models.Actor{User: models.User{Role: models.RoleDoctor}}, assignment.ID)
	if !errs.IsPermission(err) {
		t.Errorf("non-admin delete: got %v", err)
	}

	if err := svc.Delete(ctx, admin, assignment.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	err = svc.Delete(ctx, admin, assignment.ID)
	if !errs.IsNotFound(err) {
		t.Errorf("second delete: got %v", err)
	}

	// Once deleted the pair can be assigned again.
	if _, err := svc.Create(ctx, admin, models.CreateAssignmentRequest{DoctorID: doctor.ID, PatientID: patient.ID}); err != nil {
		t.Fatalf("re-create after delete: %v", err)
	}
}
