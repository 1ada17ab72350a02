package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/carefill/carefill/internal/domain"
	"github.com/carefill/carefill/internal/domain/fulfillment"
	"github.com/carefill/carefill/internal/domain/notification"
	"github.com/carefill/carefill/internal/domain/patient"
	"github.com/carefill/carefill/pkg/metrics"
)

// roleKind maps a provider account role onto the capability checked against a
// request's type. Non-provider roles map to the empty kind.
func roleKind(r domain.Role) fulfillment.ProviderKind {
	switch r {
	case domain.RolePharmacy:
		return fulfillment.KindPharmacy
	case domain.RoleLab:
		return fulfillment.KindLab
	case domain.RoleRadiologist:
		return fulfillment.KindRadiologist
	}
	return ""
}

type FulfillmentService struct {
	repo        fulfillment.Repository
	userRepo    UserRepository
	patientRepo patient.Repository
	auditSvc    *AuditService
	notifier    notification.Notifier
	metrics     *metrics.Collector
	log         *zap.Logger
}

func NewFulfillmentService(
	repo fulfillment.Repository,
	userRepo UserRepository,
	patientRepo patient.Repository,
	auditSvc *AuditService,
	notifier notification.Notifier,
	m *metrics.Collector,
	log *zap.Logger,
) *FulfillmentService {
	return &FulfillmentService{
		repo:        repo,
		userRepo:    userRepo,
		patientRepo: patientRepo,
		auditSvc:    auditSvc,
		notifier:    notifier,
		metrics:     m,
		log:         log,
	}
}

// Create opens a new fulfillment request. Called by prescription issuance and
// by admins; rejects a second active medication request for the same
// prescription and patient.
func (s *FulfillmentService) Create(ctx context.Context, cmd *fulfillment.CreateRequestCommand, caller *domain.Claims, ip string) (*fulfillment.Request, error) {
	if caller.Role != domain.RoleDoctor && caller.Role != domain.RoleAdmin {
		return nil, ErrForbidden
	}

	p, err := s.patientRepo.GetByID(ctx, cmd.PatientID)
	if err != nil {
		return nil, fmt.Errorf("verifying patient: %w", err)
	}
	if !p.IsActive() {
		return nil, patient.ErrPatientInactive
	}

	if err := s.verifyProvider(ctx, cmd.AssignedProviderID, cmd.Type); err != nil {
		return nil, err
	}

	if cmd.Type == fulfillment.TypeMedication && cmd.PrescriptionID != nil {
		exists, err := s.repo.HasActiveForPrescription(ctx, *cmd.PrescriptionID, cmd.PatientID)
		if err != nil {
			return nil, fmt.Errorf("checking duplicate requests: %w", err)
		}
		if exists {
			s.metrics.DuplicateRejections.Inc()
			return nil, fulfillment.ErrDuplicateRequest
		}
	}

	r, err := fulfillment.New(cmd)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, r); err != nil {
		s.log.Error("failed to create fulfillment request", zap.Error(err))
		return nil, fmt.Errorf("creating fulfillment request: %w", err)
	}

	s.metrics.FulfillmentCreated.WithLabelValues(string(r.Type)).Inc()

	s.notifier.Notify(ctx, notification.Notification{
		Recipient:        r.AssignedProviderID,
		Kind:             notification.AssignmentKind(string(r.Type)),
		RelatedRequestID: r.ID,
		RelatedType:      string(r.Type),
	})

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: caller.UserID.String(), UserRole: string(caller.Role),
		Action: "create", ResourceType: "fulfillment_request", ResourceID: r.ID.String(), IPAddress: ip,
	})

	return r, nil
}

// Fulfill is the assigned provider's entry point: an availability report, an
// explicit status change, or both at once.
func (s *FulfillmentService) Fulfill(ctx context.Context, id uuid.UUID, cmd *fulfillment.FulfillCommand, caller *domain.Claims, ip string) (*fulfillment.Request, error) {
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.requireAssignedProvider(r, caller); err != nil {
		return nil, err
	}

	from := r.Status

	switch {
	case len(cmd.Items) > 0:
		err = r.ApplyReport(cmd.Items, cmd.Status, cmd.Feedback)
	case cmd.Status != nil:
		err = r.ApplyStatus(*cmd.Status, cmd.Feedback)
	default:
		err = fulfillment.ErrNothingToApply
	}
	if err != nil {
		return nil, err
	}

	if cmd.ResultFileURL != "" {
		r.ResultFileURL = cmd.ResultFileURL
	}

	if err := s.repo.Update(ctx, r); err != nil {
		return nil, fmt.Errorf("updating fulfillment request: %w", err)
	}

	if r.Status != from {
		s.metrics.FulfillmentTransitions.WithLabelValues(string(from), string(r.Status)).Inc()
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: caller.UserID.String(), UserRole: string(caller.Role),
		Action: "update", ResourceType: "fulfillment_request", ResourceID: r.ID.String(), IPAddress: ip,
		Changes: fmt.Sprintf(`{"status":{"from":%q,"to":%q}}`, from, r.Status),
	})

	return r, nil
}

// ConfirmPartial is the patient accepting a partially available request; the
// assigned provider is notified so preparation can proceed.
func (s *FulfillmentService) ConfirmPartial(ctx context.Context, id uuid.UUID, caller *domain.Claims, ip string) (*fulfillment.Request, error) {
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.requireOwningPatient(r, caller); err != nil {
		return nil, err
	}

	if err := r.ConfirmPartial(); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, r); err != nil {
		return nil, fmt.Errorf("updating fulfillment request: %w", err)
	}

	s.metrics.FulfillmentTransitions.WithLabelValues(
		string(fulfillment.StatusPendingPatientConfirmation), string(r.Status),
	).Inc()

	s.notifier.Notify(ctx, notification.Notification{
		Recipient:        r.AssignedProviderID,
		Kind:             notification.KindPatientConfirmedPartial,
		RelatedRequestID: r.ID,
		RelatedType:      string(r.Type),
	})

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: caller.UserID.String(), UserRole: string(caller.Role),
		Action: "update", ResourceType: "fulfillment_request", ResourceID: r.ID.String(), IPAddress: ip,
		Changes: `{"action":"confirm_partial"}`,
	})

	return r, nil
}

// Cancel is the patient's terminal exit from the workflow.
func (s *FulfillmentService) Cancel(ctx context.Context, id uuid.UUID, caller *domain.Claims, ip string) (*fulfillment.Request, error) {
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.requireOwningPatient(r, caller); err != nil {
		return nil, err
	}

	from := r.Status
	if err := r.Cancel(); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, r); err != nil {
		return nil, fmt.Errorf("updating fulfillment request: %w", err)
	}

	s.metrics.FulfillmentTransitions.WithLabelValues(string(from), string(r.Status)).Inc()

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: caller.UserID.String(), UserRole: string(caller.Role),
		Action: "update", ResourceType: "fulfillment_request", ResourceID: r.ID.String(), IPAddress: ip,
		Changes: fmt.Sprintf(`{"status":{"from":%q,"to":"cancelled"}}`, from),
	})

	return r, nil
}

// Reassign hands a partially or fully unavailable request to a new provider
// of the matching kind and notifies them of the assignment.
func (s *FulfillmentService) Reassign(ctx context.Context, id uuid.UUID, newProviderID uuid.UUID, caller *domain.Claims, ip string) (*fulfillment.Request, error) {
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.requireOwningPatient(r, caller); err != nil {
		return nil, err
	}

	if err := s.verifyProvider(ctx, newProviderID, r.Type); err != nil {
		return nil, err
	}

	from := r.Status
	if err := r.Reassign(newProviderID); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, r); err != nil {
		return nil, fmt.Errorf("updating fulfillment request: %w", err)
	}

	s.metrics.ReassignmentsTotal.Inc()
	s.metrics.FulfillmentTransitions.WithLabelValues(string(from), string(r.Status)).Inc()

	s.notifier.Notify(ctx, notification.Notification{
		Recipient:        newProviderID,
		Kind:             notification.AssignmentKind(string(r.Type)),
		RelatedRequestID: r.ID,
		RelatedType:      string(r.Type),
	})

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: caller.UserID.String(), UserRole: string(caller.Role),
		Action: "update", ResourceType: "fulfillment_request", ResourceID: r.ID.String(), IPAddress: ip,
		Changes: fmt.Sprintf(`{"action":"reassign","new_provider":%q}`, newProviderID),
	})

	return r, nil
}

func (s *FulfillmentService) GetRequest(ctx context.Context, id uuid.UUID, caller *domain.Claims) (*fulfillment.Request, error) {
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	switch {
	case caller.Role == domain.RoleAdmin || caller.Role == domain.RoleDoctor:
	case caller.Role == domain.RolePatient:
		if caller.PatientID == nil || *caller.PatientID != r.PatientID {
			return nil, ErrForbidden
		}
	case caller.Role.IsProvider():
		if caller.ProviderID == nil || *caller.ProviderID != r.AssignedProviderID {
			return nil, ErrForbidden
		}
	default:
		return nil, ErrForbidden
	}

	return r, nil
}

// ListRequests scopes the query to what the caller may see: patients their
// own requests, providers their assigned ones.
func (s *FulfillmentService) ListRequests(ctx context.Context, q *fulfillment.ListRequestsQuery, caller *domain.Claims) (*fulfillment.PagedRequests, error) {
	switch {
	case caller.Role == domain.RolePatient:
		if caller.PatientID == nil {
			return nil, ErrForbidden
		}
		q.PatientID = caller.PatientID
		q.ProviderID = nil
	case caller.Role.IsProvider():
		if caller.ProviderID == nil {
			return nil, ErrForbidden
		}
		q.ProviderID = caller.ProviderID
		q.PatientID = nil
	}

	if q.PageSize <= 0 || q.PageSize > 100 {
		q.PageSize = 20
	}
	if q.Page <= 0 {
		q.Page = 1
	}
	return s.repo.List(ctx, q)
}

// requireAssignedProvider rejects any provider action not coming from the
// account currently responsible for the request.
func (s *FulfillmentService) requireAssignedProvider(r *fulfillment.Request, caller *domain.Claims) error {
	if !caller.Role.IsProvider() || caller.ProviderID == nil {
		return ErrForbidden
	}
	if roleKind(caller.Role) != r.Type.ProviderKind() {
		return ErrForbidden
	}
	if *caller.ProviderID != r.AssignedProviderID {
		return ErrForbidden
	}
	return nil
}

func (s *FulfillmentService) requireOwningPatient(r *fulfillment.Request, caller *domain.Claims) error {
	if caller.Role != domain.RolePatient || caller.PatientID == nil || *caller.PatientID != r.PatientID {
		return ErrForbidden
	}
	return nil
}

// verifyProvider confirms the target provider account exists, is active, and
// holds the capability the request type demands.
func (s *FulfillmentService) verifyProvider(ctx context.Context, providerID uuid.UUID, t fulfillment.RequestType) error {
	if providerID == uuid.Nil {
		return fulfillment.ErrProviderRequired
	}
	u, err := s.userRepo.GetByProviderID(ctx, providerID)
	if err != nil {
		return fmt.Errorf("verifying provider: %w", err)
	}
	if !u.IsActive || roleKind(u.Role) != t.ProviderKind() {
		return fulfillment.ErrProviderRequired
	}
	return nil
}
