package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/carefill/carefill/internal/domain/fulfillment"
	"github.com/carefill/carefill/internal/service"
)

type FulfillmentHandler struct {
	svc *service.FulfillmentService
}

func NewFulfillmentHandler(svc *service.FulfillmentService) *FulfillmentHandler {
	return &FulfillmentHandler{svc: svc}
}

type createRequestBody struct {
	Type               fulfillment.RequestType  `json:"type" binding:"required"`
	PatientID          uuid.UUID                `json:"patientId" binding:"required"`
	AssignedProviderID uuid.UUID                `json:"assignedProviderId" binding:"required"`
	PrescriptionID     *uuid.UUID               `json:"prescriptionId,omitempty"`
	Items              []fulfillment.ItemReport `json:"items" binding:"required"`
}

// Create opens a fulfillment request directly, outside prescription issuance.
func (h *FulfillmentHandler) Create(c *gin.Context) {
	claims, ok := callerClaims(c)
	if !ok {
		return
	}

	var body createRequestBody
	if !bindJSON(c, &body) {
		return
	}

	r, err := h.svc.Create(c.Request.Context(), &fulfillment.CreateRequestCommand{
		Type:               body.Type,
		PatientID:          body.PatientID,
		AssignedProviderID: body.AssignedProviderID,
		PrescriptionID:     body.PrescriptionID,
		Items:              body.Items,
		CreatedBy:          claims.UserID,
	}, claims, c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondCreated(c, r)
}

func (h *FulfillmentHandler) Get(c *gin.Context) {
	claims, ok := callerClaims(c)
	if !ok {
		return
	}
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	r, err := h.svc.GetRequest(c.Request.Context(), id, claims)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, r)
}

func (h *FulfillmentHandler) List(c *gin.Context) {
	claims, ok := callerClaims(c)
	if !ok {
		return
	}

	q := &fulfillment.ListRequestsQuery{
		Page:     parseQueryInt(c, "page", 1),
		PageSize: parseQueryInt(c, "page_size", 20),
	}
	if raw := c.Query("status"); raw != "" {
		status := fulfillment.Status(raw)
		q.Status = &status
	}
	if raw := c.Query("type"); raw != "" {
		t := fulfillment.RequestType(raw)
		q.Type = &t
	}

	page, err := h.svc.ListRequests(c.Request.Context(), q, claims)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, page)
}

type fulfillBody struct {
	Status   *fulfillment.Status      `json:"status,omitempty"`
	Feedback string                   `json:"feedback,omitempty"`
	Items    []fulfillment.ItemReport `json:"items,omitempty"`
	// Lab and radiology clients post their line items under these keys.
	Tests         []fulfillment.ItemReport `json:"tests,omitempty"`
	Exams         []fulfillment.ItemReport `json:"exams,omitempty"`
	ResultFileURL string                   `json:"resultFileUrl,omitempty"`
}

// items flattens the three client-specific item keys into one report batch.
func (b *fulfillBody) items() []fulfillment.ItemReport {
	out := b.Items
	out = append(out, b.Tests...)
	out = append(out, b.Exams...)
	return out
}

// Fulfill is the assigned provider reporting availability or advancing the
// status explicitly.
func (h *FulfillmentHandler) Fulfill(c *gin.Context) {
	claims, ok := callerClaims(c)
	if !ok {
		return
	}
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	var body fulfillBody
	if !bindJSON(c, &body) {
		return
	}

	r, err := h.svc.Fulfill(c.Request.Context(), id, &fulfillment.FulfillCommand{
		Items:         body.items(),
		Status:        body.Status,
		Feedback:      body.Feedback,
		ResultFileURL: body.ResultFileURL,
	}, claims, c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, r)
}

// Confirm is the patient accepting partial fulfillment.
func (h *FulfillmentHandler) Confirm(c *gin.Context) {
	claims, ok := callerClaims(c)
	if !ok {
		return
	}
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	r, err := h.svc.ConfirmPartial(c.Request.Context(), id, claims, c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, r)
}

func (h *FulfillmentHandler) Cancel(c *gin.Context) {
	claims, ok := callerClaims(c)
	if !ok {
		return
	}
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	r, err := h.svc.Cancel(c.Request.Context(), id, claims, c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, r)
}

type reassignBody struct {
	NewProviderID uuid.UUID `json:"newProviderId" binding:"required"`
}

func (h *FulfillmentHandler) Reassign(c *gin.Context) {
	claims, ok := callerClaims(c)
	if !ok {
		return
	}
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	var body reassignBody
	if !bindJSON(c, &body) {
		return
	}

	r, err := h.svc.Reassign(c.Request.Context(), id, body.NewProviderID, claims, c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, r)
}
