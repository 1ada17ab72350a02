package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/carefill/carefill/internal/domain"
	"github.com/carefill/carefill/internal/domain/fulfillment"
	"github.com/carefill/carefill/internal/domain/patient"
	"github.com/carefill/carefill/internal/domain/prescription"
	"github.com/carefill/carefill/pkg/metrics"
)

type PrescriptionService struct {
	repo           prescription.Repository
	patientRepo    patient.Repository
	fulfillmentSvc *FulfillmentService
	auditSvc       *AuditService
	metrics        *metrics.Collector
	log            *zap.Logger
}

func NewPrescriptionService(
	repo prescription.Repository,
	patientRepo patient.Repository,
	fulfillmentSvc *FulfillmentService,
	auditSvc *AuditService,
	m *metrics.Collector,
	log *zap.Logger,
) *PrescriptionService {
	return &PrescriptionService{
		repo:           repo,
		patientRepo:    patientRepo,
		fulfillmentSvc: fulfillmentSvc,
		auditSvc:       auditSvc,
		metrics:        m,
		log:            log,
	}
}

// Issue creates a prescription and spawns one fulfillment request per ordered
// component class, each assigned to the named provider. Only doctors can
// prescribe.
func (s *PrescriptionService) Issue(ctx context.Context, cmd *prescription.CreatePrescriptionCommand, caller *domain.Claims, ip string) (*prescription.Prescription, error) {
	if caller.Role != domain.RoleDoctor && caller.Role != domain.RoleAdmin {
		return nil, ErrForbidden
	}

	if len(cmd.Medications) == 0 && len(cmd.LabTests) == 0 && len(cmd.Exams) == 0 {
		return nil, prescription.ErrNoComponents
	}
	if !cmd.ExpiresAt.After(cmd.IssuedAt) {
		return nil, prescription.ErrInvalidExpiry
	}
	if (len(cmd.Medications) > 0 && cmd.PharmacyID == nil) ||
		(len(cmd.LabTests) > 0 && cmd.LabID == nil) ||
		(len(cmd.Exams) > 0 && cmd.RadiologistID == nil) {
		return nil, prescription.ErrProviderMissing
	}

	if _, err := s.patientRepo.GetByID(ctx, cmd.PatientID); err != nil {
		return nil, fmt.Errorf("verifying patient: %w", err)
	}

	p := &prescription.Prescription{
		PatientID:    cmd.PatientID,
		DoctorID:     cmd.DoctorID,
		Medications:  cmd.Medications,
		LabTests:     cmd.LabTests,
		Exams:        cmd.Exams,
		Diagnosis:    cmd.Diagnosis,
		Instructions: cmd.Instructions,
		IssuedAt:     cmd.IssuedAt,
		ExpiresAt:    cmd.ExpiresAt,
		Status:       prescription.StatusActive,
		CreatedBy:    cmd.CreatedBy,
	}

	if err := s.repo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("creating prescription: %w", err)
	}

	s.metrics.PrescriptionsIssued.Inc()

	for _, spawn := range s.componentRequests(p, cmd) {
		if _, err := s.fulfillmentSvc.Create(ctx, spawn, caller, ip); err != nil {
			// The prescription stands; the failed request is surfaced so the
			// caller can retry it through the fulfillment API.
			s.log.Error("failed to spawn fulfillment request",
				zap.String("prescription_id", p.ID.String()),
				zap.String("type", string(spawn.Type)),
				zap.Error(err),
			)
			return nil, fmt.Errorf("spawning %s request: %w", spawn.Type, err)
		}
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: caller.UserID.String(), UserRole: string(caller.Role),
		Action: "create", ResourceType: "prescription", ResourceID: p.ID.String(), IPAddress: ip,
	})

	return p, nil
}

// componentRequests translates the prescription's component classes into
// fulfillment request creation commands.
func (s *PrescriptionService) componentRequests(p *prescription.Prescription, cmd *prescription.CreatePrescriptionCommand) []*fulfillment.CreateRequestCommand {
	var out []*fulfillment.CreateRequestCommand

	if len(p.Medications) > 0 {
		items := make([]fulfillment.ItemReport, len(p.Medications))
		for i, m := range p.Medications {
			m := m
			items[i] = fulfillment.ItemReport{
				Name:      m.Name,
				Dosage:    &m.Dosage,
				Frequency: &m.Frequency,
				Duration:  &m.Duration,
			}
		}
		out = append(out, &fulfillment.CreateRequestCommand{
			Type:               fulfillment.TypeMedication,
			PatientID:          p.PatientID,
			AssignedProviderID: *cmd.PharmacyID,
			PrescriptionID:     &p.ID,
			Items:              items,
			CreatedBy:          cmd.CreatedBy,
		})
	}

	if len(p.LabTests) > 0 {
		out = append(out, &fulfillment.CreateRequestCommand{
			Type:               fulfillment.TypeLabResult,
			PatientID:          p.PatientID,
			AssignedProviderID: *cmd.LabID,
			PrescriptionID:     &p.ID,
			Items:              testItems(p.LabTests),
			CreatedBy:          cmd.CreatedBy,
		})
	}

	if len(p.Exams) > 0 {
		out = append(out, &fulfillment.CreateRequestCommand{
			Type:               fulfillment.TypeImaging,
			PatientID:          p.PatientID,
			AssignedProviderID: *cmd.RadiologistID,
			PrescriptionID:     &p.ID,
			Items:              testItems(p.Exams),
			CreatedBy:          cmd.CreatedBy,
		})
	}

	return out
}

func testItems(components []prescription.TestComponent) []fulfillment.ItemReport {
	items := make([]fulfillment.ItemReport, len(components))
	for i, c := range components {
		c := c
		items[i] = fulfillment.ItemReport{Name: c.Name, Notes: &c.Notes}
	}
	return items
}

func (s *PrescriptionService) GetPrescription(ctx context.Context, id uuid.UUID, caller *domain.Claims, ip string) (*prescription.Prescription, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if caller.Role == domain.RolePatient {
		if caller.PatientID == nil || *caller.PatientID != p.PatientID {
			return nil, ErrForbidden
		}
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: caller.UserID.String(), UserRole: string(caller.Role),
		Action: "read", ResourceType: "prescription", ResourceID: id.String(), IPAddress: ip,
	})

	return p, nil
}

func (s *PrescriptionService) ListPrescriptions(ctx context.Context, q *prescription.ListPrescriptionsQuery, caller *domain.Claims) (*prescription.PagedPrescriptions, error) {
	if caller.Role == domain.RolePatient {
		if caller.PatientID == nil {
			return nil, ErrForbidden
		}
		q.PatientID = caller.PatientID
	}
	if q.PageSize <= 0 || q.PageSize > 100 {
		q.PageSize = 20
	}
	return s.repo.List(ctx, q)
}
