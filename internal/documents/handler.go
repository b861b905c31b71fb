package documents

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"docreview/review-portal/review-portal-backend/internal/auth"
	apperrors "docreview/review-portal/review-portal-backend/internal/errors"
	"docreview/review-portal/review-portal-backend/internal/export"
	"docreview/review-portal/review-portal-backend/internal/feedback"
	"docreview/review-portal/review-portal-backend/internal/notifications/websocket"
)

type Handler struct {
	service Service
	events  *websocket.Manager
	logger  *zap.Logger
}

// NewHandler creates the documents handler. events may be nil, which disables the event stream.
func NewHandler(service Service, events *websocket.Manager, logger *zap.Logger) *Handler {
	return &Handler{service: service, events: events, logger: logger}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	docs := rg.Group("/documents")
	{
		docs.POST("", h.Create)
		docs.GET("/:id", h.Get)
		docs.GET("/:id/verify", h.Verify)
		docs.GET("/:id/audit", h.AuditTrail)
		docs.GET("/:id/export", h.Export)
		docs.GET("/:id/events", h.Events)

		docs.GET("/:id/workflow", h.GetWorkflow)
		docs.POST("/:id/workflow/advance", h.Advance)
		docs.POST("/:id/workflow/backward", h.Backward)
		docs.POST("/:id/workflow/reset", h.Reset)
		docs.GET("/:id/workflow/history", h.History)

		docs.POST("/:id/feedback", h.SubmitFeedback)
		docs.GET("/:id/feedback", h.ListFeedback)
		docs.POST("/:id/feedback/batch", h.ApplyBatch)
		docs.POST("/:id/feedback/:feedbackId/merge", h.Merge)
		docs.POST("/:id/feedback/:feedbackId/reject", h.Reject)

		docs.GET("/:id/conflicts", h.Conflicts)
		docs.POST("/:id/conflicts/:conflictKey/resolve", h.Resolve)
	}
}

// respondError renders domain errors with the status of their code.
func (h *Handler) respondError(c *gin.Context, err error, extra gin.H) {
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{
			"code":    apperrors.CodeInternal,
			"message": "internal error",
		}})
		return
	}

	body := gin.H{"error": gin.H{
		"code":     appErr.Code,
		"message":  appErr.Message,
		"metadata": appErr.Metadata,
	}}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(appErr.Code.HTTPStatus(), body)
}

func (h *Handler) actor(c *gin.Context) (auth.Actor, bool) {
	actor, ok := auth.ActorFromContext(c.Request.Context())
	if !ok {
		h.respondError(c, apperrors.New(apperrors.CodePermissionDenied, "request is not authenticated"), nil)
		return auth.Actor{}, false
	}
	return actor, true
}

func (h *Handler) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		h.respondError(c, apperrors.Wrap(apperrors.CodeValidation, "invalid request body", err), nil)
		return false
	}
	return true
}

func (h *Handler) Create(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req CreateRequest
	if !h.bind(c, &req) {
		return
	}

	doc, err := h.service.CreateDocument(c.Request.Context(), actor, req)
	if err != nil {
		h.respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusCreated, doc)
}

func (h *Handler) Get(c *gin.Context) {
	doc, err := h.service.GetDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *Handler) Verify(c *gin.Context) {
	res, err := h.service.VerifyDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) AuditTrail(c *gin.Context) {
	entries, err := h.service.GetAuditTrail(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, entries)
}

// Export renders the review package. The format query parameter selects xlsx (default), csv or pdf.
func (h *Handler) Export(c *gin.Context) {
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		h.respondError(c, err, nil)
		return
	}
	ctx := c.Request.Context()
	doc, err := h.service.GetDocument(ctx, c.Param("id"))
	if err != nil {
		h.respondError(c, err, nil)
		return
	}
	entries, err := h.service.GetAuditTrail(ctx, doc.ID)
	if err != nil {
		h.respondError(c, err, nil)
		return
	}

	review := export.Review{
		DocumentID:  doc.ID,
		Title:       doc.Title,
		Content:     doc.Content,
		Items:       doc.Items,
		Changes:     doc.Changes,
		Positions:   doc.Positions,
		Entries:     entries,
		GeneratedAt: time.Now().UTC(),
	}
	if inst, ok := doc.Workflow.Active(); ok {
		review.Stage = string(inst.CurrentStage)
	}

	var buf bytes.Buffer
	switch format {
	case export.FormatCSV:
		err = export.WriteAuditCSV(&buf, review)
	case export.FormatPDF:
		err = export.WritePDF(&buf, review)
	default:
		err = export.WriteExcel(&buf, review)
	}
	if err != nil {
		h.respondError(c, fmt.Errorf("failed to export document %s: %w", doc.ID, err), nil)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, review.Filename(format)))
	c.Data(http.StatusOK, format.ContentType(), buf.Bytes())
}

func (h *Handler) Events(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	if h.events == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": gin.H{"code": apperrors.CodeInternal, "message": "event stream disabled"}})
		return
	}
	doc, err := h.service.GetDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err, nil)
		return
	}
	if _, err := h.events.HandleConnection(c.Writer, c.Request, doc.ID, actor.UserID); err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("document_id", doc.ID), zap.Error(err))
	}
}

func (h *Handler) GetWorkflow(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	view, err := h.service.GetWorkflow(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		h.respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) Advance(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req TransitionRequest
	if !h.bind(c, &req) {
		return
	}

	res, err := h.service.AdvanceWorkflow(c.Request.Context(), c.Param("id"), actor, req)
	if err != nil {
		h.respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Backward(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req TransitionRequest
	if !h.bind(c, &req) {
		return
	}

	res, err := h.service.MoveWorkflowBackward(c.Request.Context(), c.Param("id"), actor, req)
	if err != nil {
		h.respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Reset(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if c.Request.ContentLength > 0 && !h.bind(c, &req) {
		return
	}

	res, err := h.service.ResetWorkflow(c.Request.Context(), c.Param("id"), actor, req.Reason)
	if err != nil {
		h.respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) History(c *gin.Context) {
	history, err := h.service.GetHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, history)
}

func (h *Handler) SubmitFeedback(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req feedback.SubmitRequest
	if !h.bind(c, &req) {
		return
	}

	item, err := h.service.SubmitFeedback(c.Request.Context(), c.Param("id"), actor, req)
	if err != nil {
		h.respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (h *Handler) ListFeedback(c *gin.Context) {
	var filter feedback.Filter
	if err := c.ShouldBindQuery(&filter); err != nil {
		h.respondError(c, apperrors.Wrap(apperrors.CodeValidation, "invalid filter", err), nil)
		return
	}
	filter.Severity = feedback.NormalizeSeverity(string(filter.Severity))

	items, err := h.service.ListFeedback(c.Request.Context(), c.Param("id"), filter)
	if err != nil {
		h.respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (h *Handler) Merge(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req struct {
		Mode string `json:"mode"`
	}
	if c.Request.ContentLength > 0 && !h.bind(c, &req) {
		return
	}

	res, err := h.service.MergeFeedback(c.Request.Context(), c.Param("id"), c.Param("feedbackId"), actor, req.Mode)
	if err != nil {
		h.respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Reject(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if c.Request.ContentLength > 0 && !h.bind(c, &req) {
		return
	}

	item, err := h.service.RejectFeedback(c.Request.Context(), c.Param("id"), c.Param("feedbackId"), actor, req.Reason)
	if err != nil {
		h.respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *Handler) ApplyBatch(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req BatchRequest
	if !h.bind(c, &req) {
		return
	}

	res, err := h.service.ApplyBatch(c.Request.Context(), c.Param("id"), actor, req)
	if err != nil {
		var extra gin.H
		if res != nil {
			extra = gin.H{"result": res}
		}
		h.respondError(c, err, extra)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Conflicts(c *gin.Context) {
	groups, err := h.service.GetConflicts(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, groups)
}

func (h *Handler) Resolve(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req ResolveRequest
	if !h.bind(c, &req) {
		return
	}

	change, err := h.service.ResolveConflict(c.Request.Context(), c.Param("id"), c.Param("conflictKey"), actor, req)
	if err != nil {
		h.respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, change)
}
