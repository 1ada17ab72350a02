package repository

import (
	"context"
	"errors"
	"math"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/carefill/carefill/internal/domain/fulfillment"
)

type FulfillmentRepository struct {
	db *gorm.DB
}

func NewFulfillmentRepository(db *gorm.DB) *FulfillmentRepository {
	return &FulfillmentRepository{db: db}
}

func (r *FulfillmentRepository) Create(ctx context.Context, req *fulfillment.Request) error {
	err := r.db.WithContext(ctx).Create(req).Error
	if err != nil && isUniqueViolation(err) {
		// The partial unique index on (prescription_id, patient_id) for
		// active medication requests fired.
		return fulfillment.ErrDuplicateRequest
	}
	return err
}

func (r *FulfillmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*fulfillment.Request, error) {
	var req fulfillment.Request
	err := r.db.WithContext(ctx).
		Where("id = ? AND deleted_at IS NULL", id).
		First(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fulfillment.ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// Update writes the aggregate back under compare-and-swap on the version
// column, making each workflow operation an atomic read-modify-write.
func (r *FulfillmentRepository) Update(ctx context.Context, req *fulfillment.Request) error {
	expected := req.Version
	req.Version = expected + 1

	res := r.db.WithContext(ctx).
		Model(&fulfillment.Request{}).
		Where("id = ? AND version = ?", req.ID, expected).
		Select("status", "items", "feedback", "result_file_url",
			"assigned_provider_id", "awaiting_report", "version").
		Updates(req)
	if res.Error != nil {
		req.Version = expected
		return res.Error
	}
	if res.RowsAffected == 0 {
		req.Version = expected
		return fulfillment.ErrVersionConflict
	}
	return nil
}

func (r *FulfillmentRepository) List(ctx context.Context, q *fulfillment.ListRequestsQuery) (*fulfillment.PagedRequests, error) {
	db := r.db.WithContext(ctx).
		Model(&fulfillment.Request{}).
		Where("deleted_at IS NULL")

	if q.PatientID != nil {
		db = db.Where("patient_id = ?", *q.PatientID)
	}
	if q.ProviderID != nil {
		db = db.Where("assigned_provider_id = ?", *q.ProviderID)
	}
	if q.Type != nil {
		db = db.Where("type = ?", *q.Type)
	}
	if q.Status != nil {
		db = db.Where("status = ?", *q.Status)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, err
	}

	var requests []*fulfillment.Request
	err := db.Order("created_at DESC").
		Offset((q.Page - 1) * q.PageSize).
		Limit(q.PageSize).
		Find(&requests).Error
	if err != nil {
		return nil, err
	}

	return &fulfillment.PagedRequests{
		Requests:   requests,
		TotalCount: total,
		Page:       q.Page,
		PageSize:   q.PageSize,
		TotalPages: int(math.Ceil(float64(total) / float64(q.PageSize))),
	}, nil
}

func (r *FulfillmentRepository) HasActiveForPrescription(ctx context.Context, prescriptionID, patientID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&fulfillment.Request{}).
		Where("prescription_id = ? AND patient_id = ? AND type = ? AND status <> ? AND deleted_at IS NULL",
			prescriptionID, patientID, fulfillment.TypeMedication, fulfillment.StatusCancelled).
		Count(&count).Error
	return count > 0, err
}
