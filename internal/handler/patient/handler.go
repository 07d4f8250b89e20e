package patient

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/codeveda/records-api/internal/handler"
	"github.com/codeveda/records-api/internal/middleware"
	"github.com/codeveda/records-api/internal/model"
	"github.com/codeveda/records-api/internal/service/audit"
	"github.com/codeveda/records-api/internal/service/consent"
	"github.com/codeveda/records-api/internal/service/visit"
	apperrors "github.com/codeveda/records-api/pkg/errors"
	"github.com/codeveda/records-api/pkg/httputil"
)

type Handler struct {
	visits   visit.VisitServicer
	consents consent.ConsentServicer
	auditor  audit.Recorder
}

func NewHandler(visits visit.VisitServicer, consents consent.ConsentServicer, auditor audit.Recorder) *Handler {
	return &Handler{visits: visits, consents: consents, auditor: auditor}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, authn gin.HandlerFunc) {
	g := r.Group("/patients", authn, middleware.NoStore())
	{
		readAudit := middleware.AuditRead(h.auditor, model.AuditResourceVisit)

		visits := g.Group("/visits")
		visits.GET("", h.ListVisits)
		visits.POST("", middleware.RequireDoctor(), h.CreateVisit)
		visits.GET("/:id", readAudit, h.GetVisit)
		visits.PUT("/:id", h.UpdateVisit)
		visits.DELETE("/:id", h.DeleteVisit)
		visits.GET("/:id/history", readAudit, h.History)
		visits.GET("/:id/history/:version", readAudit, h.Version)
		visits.GET("/:id/fhir", readAudit, h.FHIR)

		g.GET("/stats/visits", middleware.RequireDoctor(), h.Stats)

		g.GET("/:patient_id/consents", h.ListConsents)
		g.POST("/:patient_id/consents", h.CreateConsent)
		g.PUT("/:patient_id/consents/:consent_id", h.UpdateConsent)
	}
}

func optionalUUID(c *gin.Context, param string) (*uuid.UUID, bool) {
	v := c.Query(param)
	if v == "" {
		return nil, true
	}
	id, err := uuid.Parse(v)
	if err != nil {
		handler.Fail(c, apperrors.BadRequest("Invalid "+param+" format", err))
		return nil, false
	}
	return &id, true
}

func (h *Handler) ListVisits(c *gin.Context) {
	page := httputil.ParsePage(c, httputil.DefaultLimit)
	patientID, ok := optionalUUID(c, "patient_id")
	if !ok {
		return
	}
	doctorID, ok := optionalUUID(c, "doctor_id")
	if !ok {
		return
	}

	filter := model.VisitFilter{
		PatientID: patientID,
		DoctorID:  doctorID,
		Status:    model.VisitStatus(c.Query("status")),
		Limit:     page.Limit,
		Offset:    page.Offset(),
	}
	visits, total, err := h.visits.List(c.Request.Context(), middleware.ActorFrom(c), filter)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithPagination(c, "Visits retrieved successfully", visits, page, total)
}

func (h *Handler) GetVisit(c *gin.Context) {
	id, ok := handler.ParseID(c, "id", "visit")
	if !ok {
		return
	}
	v, err := h.visits.Get(c.Request.Context(), middleware.ActorFrom(c), id)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, "Visit retrieved successfully", v)
}

func (h *Handler) CreateVisit(c *gin.Context) {
	var req model.CreateVisitRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	v, err := h.visits.Create(c.Request.Context(), middleware.ActorFrom(c), req)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithCreated(c, "Visit created successfully", v)
}

func (h *Handler) UpdateVisit(c *gin.Context) {
	id, ok := handler.ParseID(c, "id", "visit")
	if !ok {
		return
	}
	var req model.VisitUpdate
	if !handler.BindJSON(c, &req) {
		return
	}
	v, err := h.visits.Update(c.Request.Context(), middleware.ActorFrom(c), id, req)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, "Visit updated successfully", v)
}

func (h *Handler) DeleteVisit(c *gin.Context) {
	id, ok := handler.ParseID(c, "id", "visit")
	if !ok {
		return
	}
	if err := h.visits.Cancel(c.Request.Context(), middleware.ActorFrom(c), id); err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, "Visit cancelled successfully", nil)
}

func (h *Handler) History(c *gin.Context) {
	id, ok := handler.ParseID(c, "id", "visit")
	if !ok {
		return
	}
	versions, err := h.visits.History(c.Request.Context(), middleware.ActorFrom(c), id)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, "Visit history retrieved successfully", versions)
}

func (h *Handler) Version(c *gin.Context) {
	id, ok := handler.ParseID(c, "id", "visit")
	if !ok {
		return
	}
	version, err := strconv.Atoi(c.Param("version"))
	if err != nil || version < 1 {
		handler.Fail(c, apperrors.BadRequest("Invalid version number", err))
		return
	}
	vv, err := h.visits.Version(c.Request.Context(), middleware.ActorFrom(c), id, version)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, "Visit version retrieved successfully", vv)
}

func (h *Handler) FHIR(c *gin.Context) {
	id, ok := handler.ParseID(c, "id", "visit")
	if !ok {
		return
	}
	v, err := h.visits.Get(c.Request.Context(), middleware.ActorFrom(c), id)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, v.ToFHIR())
}

func (h *Handler) Stats(c *gin.Context) {
	period, ok := handler.ParseDateRange(c)
	if !ok {
		return
	}
	stats, err := h.visits.Stats(c.Request.Context(), middleware.ActorFrom(c), period)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, "Visit statistics retrieved successfully", stats)
}

func (h *Handler) ListConsents(c *gin.Context) {
	patientID, ok := handler.ParseID(c, "patient_id", "patient")
	if !ok {
		return
	}
	consents, err := h.consents.List(c.Request.Context(), middleware.ActorFrom(c), patientID)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, "Consents retrieved successfully", consents)
}

func (h *Handler) CreateConsent(c *gin.Context) {
	patientID, ok := handler.ParseID(c, "patient_id", "patient")
	if !ok {
		return
	}
	var req model.CreateConsentRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	consent, err := h.consents.Create(c.Request.Context(), middleware.ActorFrom(c), patientID, req)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithCreated(c, "Consent recorded successfully", consent)
}

func (h *Handler) UpdateConsent(c *gin.Context) {
	patientID, ok := handler.ParseID(c, "patient_id", "patient")
	if !ok {
		return
	}
	consentID, ok := handler.ParseID(c, "consent_id", "consent")
	if !ok {
		return
	}
	var req model.ConsentUpdate
	if !handler.BindJSON(c, &req) {
		return
	}
	consent, err := h.consents.Update(c.Request.Context(), middleware.ActorFrom(c), patientID, consentID, req)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, "Consent updated successfully", consent)
}
