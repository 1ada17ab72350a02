package service

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/carefill/carefill/internal/domain"
	"github.com/carefill/carefill/internal/domain/fulfillment"
	"github.com/carefill/carefill/internal/domain/notification"
	"github.com/carefill/carefill/internal/domain/patient"
	"github.com/carefill/carefill/pkg/metrics"
)

// Prometheus collectors register globally, so the whole package shares one.
var testMetrics = metrics.NewCollector("carefill_test")

type mockFulfillmentRepo struct {
	mock.Mock
}

func (m *mockFulfillmentRepo) Create(ctx context.Context, r *fulfillment.Request) error {
	return m.Called(ctx, r).Error(0)
}

func (m *mockFulfillmentRepo) GetByID(ctx context.Context, id uuid.UUID) (*fulfillment.Request, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*fulfillment.Request), args.Error(1)
}

func (m *mockFulfillmentRepo) Update(ctx context.Context, r *fulfillment.Request) error {
	return m.Called(ctx, r).Error(0)
}

func (m *mockFulfillmentRepo) List(ctx context.Context, q *fulfillment.ListRequestsQuery) (*fulfillment.PagedRequests, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*fulfillment.PagedRequests), args.Error(1)
}

func (m *mockFulfillmentRepo) HasActiveForPrescription(ctx context.Context, prescriptionID, patientID uuid.UUID) (bool, error) {
	args := m.Called(ctx, prescriptionID, patientID)
	return args.Bool(0), args.Error(1)
}

type mockUserRepo struct {
	mock.Mock
}

func (m *mockUserRepo) Create(ctx context.Context, u *domain.User) error {
	return m.Called(ctx, u).Error(0)
}

func (m *mockUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepo) GetByProviderID(ctx context.Context, providerID uuid.UUID) (*domain.User, error) {
	args := m.Called(ctx, providerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepo) UpdateLoginAttempt(ctx context.Context, id uuid.UUID, success bool) error {
	return m.Called(ctx, id, success).Error(0)
}

func (m *mockUserRepo) UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error {
	return m.Called(ctx, id, hash).Error(0)
}

type mockPatientRepo struct {
	mock.Mock
}

func (m *mockPatientRepo) Create(ctx context.Context, p *patient.Patient) error {
	return m.Called(ctx, p).Error(0)
}

func (m *mockPatientRepo) GetByID(ctx context.Context, id uuid.UUID) (*patient.Patient, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*patient.Patient), args.Error(1)
}

type mockAuditRepo struct {
	mock.Mock
}

func (m *mockAuditRepo) Create(ctx context.Context, entry *domain.AuditLog) error {
	return m.Called(ctx, entry).Error(0)
}

// notifierSpy records notifications so tests can assert on the trigger
// contract without standing up the real worker.
type notifierSpy struct {
	mu   sync.Mutex
	sent []notification.Notification
}

func (n *notifierSpy) Notify(_ context.Context, msg notification.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
}

func (n *notifierSpy) all() []notification.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notification.Notification, len(n.sent))
	copy(out, n.sent)
	return out
}

type fulfillmentFixture struct {
	repo     *mockFulfillmentRepo
	users    *mockUserRepo
	patients *mockPatientRepo
	notifier *notifierSpy
	svc      *FulfillmentService
}

func newFulfillmentFixture(t *testing.T) *fulfillmentFixture {
	t.Helper()

	auditRepo := new(mockAuditRepo)
	auditRepo.On("Create", mock.Anything, mock.Anything).Return(nil).Maybe()
	auditSvc := NewAuditService(auditRepo, 16, testMetrics, zap.NewNop())
	t.Cleanup(auditSvc.Shutdown)

	f := &fulfillmentFixture{
		repo:     new(mockFulfillmentRepo),
		users:    new(mockUserRepo),
		patients: new(mockPatientRepo),
		notifier: &notifierSpy{},
	}
	f.svc = NewFulfillmentService(f.repo, f.users, f.patients, auditSvc, f.notifier, testMetrics, zap.NewNop())
	return f
}

func doctorClaims() *domain.Claims {
	return &domain.Claims{UserID: uuid.New(), Role: domain.RoleDoctor}
}

func patientClaims(patientID uuid.UUID) *domain.Claims {
	return &domain.Claims{UserID: uuid.New(), Role: domain.RolePatient, PatientID: &patientID}
}

func providerClaims(role domain.Role, providerID uuid.UUID) *domain.Claims {
	return &domain.Claims{UserID: uuid.New(), Role: role, ProviderID: &providerID}
}

func activePatient(id uuid.UUID) *patient.Patient {
	return &patient.Patient{ID: id, Status: patient.StatusActive}
}

func providerUser(role domain.Role, providerID uuid.UUID) *domain.User {
	return &domain.User{ID: uuid.New(), Role: role, ProviderID: &providerID, IsActive: true}
}

func storedRequest(t *testing.T, status fulfillment.Status) *fulfillment.Request {
	t.Helper()
	r, err := fulfillment.New(&fulfillment.CreateRequestCommand{
		Type:               fulfillment.TypeMedication,
		PatientID:          uuid.New(),
		AssignedProviderID: uuid.New(),
		Items: []fulfillment.ItemReport{
			{Name: "Amoxicillin"},
			{Name: "Ibuprofen"},
		},
		CreatedBy: uuid.New(),
	})
	require.NoError(t, err)
	r.ID = uuid.New()
	if status != fulfillment.StatusPending {
		r.Status = status
		r.AwaitingReport = false
	}
	return r
}

func TestCreateForbiddenForNonIssuers(t *testing.T) {
	f := newFulfillmentFixture(t)

	for _, role := range []domain.Role{domain.RolePatient, domain.RolePharmacy, domain.RoleLab} {
		_, err := f.svc.Create(context.Background(), &fulfillment.CreateRequestCommand{}, &domain.Claims{Role: role}, "10.0.0.1")
		assert.ErrorIs(t, err, ErrForbidden, "role %s", role)
	}
	f.repo.AssertNotCalled(t, "Create")
}

func TestCreateRejectsInactivePatient(t *testing.T) {
	f := newFulfillmentFixture(t)
	patientID := uuid.New()

	f.patients.On("GetByID", mock.Anything, patientID).
		Return(&patient.Patient{ID: patientID, Status: patient.StatusInactive}, nil)

	_, err := f.svc.Create(context.Background(), &fulfillment.CreateRequestCommand{
		Type:               fulfillment.TypeMedication,
		PatientID:          patientID,
		AssignedProviderID: uuid.New(),
		Items:              []fulfillment.ItemReport{{Name: "Amoxicillin"}},
	}, doctorClaims(), "10.0.0.1")

	assert.ErrorIs(t, err, patient.ErrPatientInactive)
}

func TestCreateRejectsProviderKindMismatch(t *testing.T) {
	f := newFulfillmentFixture(t)
	patientID, providerID := uuid.New(), uuid.New()

	f.patients.On("GetByID", mock.Anything, patientID).Return(activePatient(patientID), nil)
	// Lab account cannot receive a medication request.
	f.users.On("GetByProviderID", mock.Anything, providerID).
		Return(providerUser(domain.RoleLab, providerID), nil)

	_, err := f.svc.Create(context.Background(), &fulfillment.CreateRequestCommand{
		Type:               fulfillment.TypeMedication,
		PatientID:          patientID,
		AssignedProviderID: providerID,
		Items:              []fulfillment.ItemReport{{Name: "Amoxicillin"}},
	}, doctorClaims(), "10.0.0.1")

	assert.ErrorIs(t, err, fulfillment.ErrProviderRequired)
}

func TestCreateRejectsDuplicateActiveRequest(t *testing.T) {
	f := newFulfillmentFixture(t)
	patientID, providerID, prescriptionID := uuid.New(), uuid.New(), uuid.New()

	f.patients.On("GetByID", mock.Anything, patientID).Return(activePatient(patientID), nil)
	f.users.On("GetByProviderID", mock.Anything, providerID).
		Return(providerUser(domain.RolePharmacy, providerID), nil)
	f.repo.On("HasActiveForPrescription", mock.Anything, prescriptionID, patientID).Return(true, nil)

	_, err := f.svc.Create(context.Background(), &fulfillment.CreateRequestCommand{
		Type:               fulfillment.TypeMedication,
		PatientID:          patientID,
		AssignedProviderID: providerID,
		PrescriptionID:     &prescriptionID,
		Items:              []fulfillment.ItemReport{{Name: "Amoxicillin"}},
	}, doctorClaims(), "10.0.0.1")

	assert.ErrorIs(t, err, fulfillment.ErrDuplicateRequest)
	f.repo.AssertNotCalled(t, "Create")
}

func TestCreateNotifiesAssignedProvider(t *testing.T) {
	f := newFulfillmentFixture(t)
	patientID, providerID := uuid.New(), uuid.New()

	f.patients.On("GetByID", mock.Anything, patientID).Return(activePatient(patientID), nil)
	f.users.On("GetByProviderID", mock.Anything, providerID).
		Return(providerUser(domain.RoleLab, providerID), nil)
	f.repo.On("Create", mock.Anything, mock.AnythingOfType("*fulfillment.Request")).Return(nil)

	r, err := f.svc.Create(context.Background(), &fulfillment.CreateRequestCommand{
		Type:               fulfillment.TypeLabResult,
		PatientID:          patientID,
		AssignedProviderID: providerID,
		Items:              []fulfillment.ItemReport{{Name: "CBC Panel"}},
	}, doctorClaims(), "10.0.0.1")

	require.NoError(t, err)
	assert.Equal(t, fulfillment.StatusPending, r.Status)

	sent := f.notifier.all()
	require.Len(t, sent, 1)
	assert.Equal(t, providerID, sent[0].Recipient)
	assert.Equal(t, notification.KindLabResultAssignment, sent[0].Kind)
}

func TestFulfillRequiresAssignedProvider(t *testing.T) {
	f := newFulfillmentFixture(t)
	r := storedRequest(t, fulfillment.StatusPending)
	f.repo.On("GetByID", mock.Anything, r.ID).Return(r, nil)

	cmd := &fulfillment.FulfillCommand{
		Items: []fulfillment.ItemReport{{Name: "Amoxicillin", Available: boolPtr(true)}},
	}

	cases := []struct {
		name   string
		caller *domain.Claims
	}{
		{"patient", patientClaims(r.PatientID)},
		{"different pharmacy", providerClaims(domain.RolePharmacy, uuid.New())},
		{"right provider wrong kind", providerClaims(domain.RoleLab, r.AssignedProviderID)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Fulfill(context.Background(), r.ID, cmd, tc.caller, "10.0.0.2")
			assert.ErrorIs(t, err, ErrForbidden)
		})
	}
	f.repo.AssertNotCalled(t, "Update")
}

func TestFulfillAppliesAvailabilityReport(t *testing.T) {
	f := newFulfillmentFixture(t)
	r := storedRequest(t, fulfillment.StatusPending)

	f.repo.On("GetByID", mock.Anything, r.ID).Return(r, nil)
	f.repo.On("Update", mock.Anything, r).Return(nil)

	out, err := f.svc.Fulfill(context.Background(), r.ID, &fulfillment.FulfillCommand{
		Items: []fulfillment.ItemReport{
			{Name: "Amoxicillin", Available: boolPtr(true)},
			{Name: "Ibuprofen", Available: boolPtr(true)},
		},
	}, providerClaims(domain.RolePharmacy, r.AssignedProviderID), "10.0.0.2")

	require.NoError(t, err)
	assert.Equal(t, fulfillment.StatusConfirmed, out.Status)
	f.repo.AssertCalled(t, "Update", mock.Anything, r)
}

func TestFulfillFeedbackRequired(t *testing.T) {
	f := newFulfillmentFixture(t)
	r := storedRequest(t, fulfillment.StatusPending)
	f.repo.On("GetByID", mock.Anything, r.ID).Return(r, nil)

	_, err := f.svc.Fulfill(context.Background(), r.ID, &fulfillment.FulfillCommand{
		Items: []fulfillment.ItemReport{
			{Name: "Amoxicillin", Available: boolPtr(false)},
			{Name: "Ibuprofen", Available: boolPtr(false)},
		},
	}, providerClaims(domain.RolePharmacy, r.AssignedProviderID), "10.0.0.2")

	assert.ErrorIs(t, err, fulfillment.ErrFeedbackRequired)
	f.repo.AssertNotCalled(t, "Update")
}

func TestFulfillNothingToApply(t *testing.T) {
	f := newFulfillmentFixture(t)
	r := storedRequest(t, fulfillment.StatusPending)
	f.repo.On("GetByID", mock.Anything, r.ID).Return(r, nil)

	_, err := f.svc.Fulfill(context.Background(), r.ID, &fulfillment.FulfillCommand{},
		providerClaims(domain.RolePharmacy, r.AssignedProviderID), "10.0.0.2")

	assert.ErrorIs(t, err, fulfillment.ErrNothingToApply)
}

func TestFulfillStoresResultFile(t *testing.T) {
	f := newFulfillmentFixture(t)
	r := storedRequest(t, fulfillment.StatusReadyForPickup)

	f.repo.On("GetByID", mock.Anything, r.ID).Return(r, nil)
	f.repo.On("Update", mock.Anything, r).Return(nil)

	out, err := f.svc.Fulfill(context.Background(), r.ID, &fulfillment.FulfillCommand{
		Status:        statusPtr(fulfillment.StatusCompleted),
		ResultFileURL: "s3://results/report.pdf",
	}, providerClaims(domain.RolePharmacy, r.AssignedProviderID), "10.0.0.2")

	require.NoError(t, err)
	assert.Equal(t, fulfillment.StatusCompleted, out.Status)
	assert.Equal(t, "s3://results/report.pdf", out.ResultFileURL)
}

func TestConfirmPartialNotifiesProvider(t *testing.T) {
	f := newFulfillmentFixture(t)
	r := storedRequest(t, fulfillment.StatusPendingPatientConfirmation)

	f.repo.On("GetByID", mock.Anything, r.ID).Return(r, nil)
	f.repo.On("Update", mock.Anything, r).Return(nil)

	out, err := f.svc.ConfirmPartial(context.Background(), r.ID, patientClaims(r.PatientID), "10.0.0.3")

	require.NoError(t, err)
	assert.Equal(t, fulfillment.StatusPartiallyFulfilled, out.Status)

	sent := f.notifier.all()
	require.Len(t, sent, 1)
	assert.Equal(t, r.AssignedProviderID, sent[0].Recipient)
	assert.Equal(t, notification.KindPatientConfirmedPartial, sent[0].Kind)
}

func TestConfirmPartialForbiddenForOthers(t *testing.T) {
	f := newFulfillmentFixture(t)
	r := storedRequest(t, fulfillment.StatusPendingPatientConfirmation)
	f.repo.On("GetByID", mock.Anything, r.ID).Return(r, nil)

	_, err := f.svc.ConfirmPartial(context.Background(), r.ID, patientClaims(uuid.New()), "10.0.0.3")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.ConfirmPartial(context.Background(), r.ID,
		providerClaims(domain.RolePharmacy, r.AssignedProviderID), "10.0.0.3")
	assert.ErrorIs(t, err, ErrForbidden)

	f.repo.AssertNotCalled(t, "Update")
}

func TestCancelByOwningPatient(t *testing.T) {
	f := newFulfillmentFixture(t)
	r := storedRequest(t, fulfillment.StatusReadyForPickup)

	f.repo.On("GetByID", mock.Anything, r.ID).Return(r, nil)
	f.repo.On("Update", mock.Anything, r).Return(nil)

	out, err := f.svc.Cancel(context.Background(), r.ID, patientClaims(r.PatientID), "10.0.0.3")

	require.NoError(t, err)
	assert.Equal(t, fulfillment.StatusCancelled, out.Status)
}

func TestCancelCompletedRequest(t *testing.T) {
	f := newFulfillmentFixture(t)
	r := storedRequest(t, fulfillment.StatusCompleted)
	f.repo.On("GetByID", mock.Anything, r.ID).Return(r, nil)

	_, err := f.svc.Cancel(context.Background(), r.ID, patientClaims(r.PatientID), "10.0.0.3")

	assert.ErrorIs(t, err, fulfillment.ErrInvalidState)
	f.repo.AssertNotCalled(t, "Update")
}

func TestReassignVerifiesNewProvider(t *testing.T) {
	f := newFulfillmentFixture(t)
	r := storedRequest(t, fulfillment.StatusOutOfStock)
	newProviderID := uuid.New()

	f.repo.On("GetByID", mock.Anything, r.ID).Return(r, nil)
	// The replacement pharmacy turns out to be a radiology account.
	f.users.On("GetByProviderID", mock.Anything, newProviderID).
		Return(providerUser(domain.RoleRadiologist, newProviderID), nil)

	_, err := f.svc.Reassign(context.Background(), r.ID, newProviderID, patientClaims(r.PatientID), "10.0.0.3")

	assert.ErrorIs(t, err, fulfillment.ErrProviderRequired)
	f.repo.AssertNotCalled(t, "Update")
}

func TestReassignNotifiesNewProvider(t *testing.T) {
	f := newFulfillmentFixture(t)
	r := storedRequest(t, fulfillment.StatusOutOfStock)
	oldProviderID := r.AssignedProviderID
	newProviderID := uuid.New()

	f.repo.On("GetByID", mock.Anything, r.ID).Return(r, nil)
	f.users.On("GetByProviderID", mock.Anything, newProviderID).
		Return(providerUser(domain.RolePharmacy, newProviderID), nil)
	f.repo.On("Update", mock.Anything, r).Return(nil)

	out, err := f.svc.Reassign(context.Background(), r.ID, newProviderID, patientClaims(r.PatientID), "10.0.0.3")

	require.NoError(t, err)
	assert.Equal(t, fulfillment.StatusPending, out.Status)
	assert.Equal(t, newProviderID, out.AssignedProviderID)
	assert.NotEqual(t, oldProviderID, out.AssignedProviderID)

	sent := f.notifier.all()
	require.Len(t, sent, 1)
	assert.Equal(t, newProviderID, sent[0].Recipient)
	assert.Equal(t, notification.KindMedicationAssignment, sent[0].Kind)
}

func TestGetRequestScoping(t *testing.T) {
	f := newFulfillmentFixture(t)
	r := storedRequest(t, fulfillment.StatusPending)
	f.repo.On("GetByID", mock.Anything, r.ID).Return(r, nil)

	cases := []struct {
		name    string
		caller  *domain.Claims
		allowed bool
	}{
		{"doctor", doctorClaims(), true},
		{"admin", &domain.Claims{UserID: uuid.New(), Role: domain.RoleAdmin}, true},
		{"owning patient", patientClaims(r.PatientID), true},
		{"other patient", patientClaims(uuid.New()), false},
		{"assigned provider", providerClaims(domain.RolePharmacy, r.AssignedProviderID), true},
		{"other provider", providerClaims(domain.RolePharmacy, uuid.New()), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.GetRequest(context.Background(), r.ID, tc.caller)
			if tc.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrForbidden)
			}
		})
	}
}

func TestListRequestsScopedToCaller(t *testing.T) {
	f := newFulfillmentFixture(t)
	patientID := uuid.New()

	f.repo.On("List", mock.Anything, mock.MatchedBy(func(q *fulfillment.ListRequestsQuery) bool {
		return q.PatientID != nil && *q.PatientID == patientID &&
			q.ProviderID == nil && q.Page == 1 && q.PageSize == 20
	})).Return(&fulfillment.PagedRequests{Page: 1, PageSize: 20}, nil)

	// The patient asks for someone else's requests; the scope wins.
	other := uuid.New()
	_, err := f.svc.ListRequests(context.Background(), &fulfillment.ListRequestsQuery{
		PatientID: &other,
	}, patientClaims(patientID))

	require.NoError(t, err)
	f.repo.AssertExpectations(t)
}

func TestListRequestsScopedToProvider(t *testing.T) {
	f := newFulfillmentFixture(t)
	providerID := uuid.New()

	f.repo.On("List", mock.Anything, mock.MatchedBy(func(q *fulfillment.ListRequestsQuery) bool {
		return q.ProviderID != nil && *q.ProviderID == providerID && q.PatientID == nil
	})).Return(&fulfillment.PagedRequests{}, nil)

	_, err := f.svc.ListRequests(context.Background(), &fulfillment.ListRequestsQuery{},
		providerClaims(domain.RoleLab, providerID))

	require.NoError(t, err)
	f.repo.AssertExpectations(t)
}

func boolPtr(b bool) *bool { return &b }

func statusPtr(s fulfillment.Status) *fulfillment.Status { return &s }
