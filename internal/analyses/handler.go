package analyses

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"proposal-backend/internal/billing"
	"proposal-backend/internal/extract"
	"proposal-backend/internal/shared/server/middleware"
	"proposal-backend/internal/shared/server/respond"
	"proposal-backend/internal/usage"
)

const maxProposalUploadBytes = 10 << 20

// Handler wires HTTP handlers to the analyses service.
type Handler struct {
	Svc      *Service
	UsageSvc *usage.Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service, usageSvc *usage.Service) *Handler {
	return &Handler{Svc: svc, UsageSvc: usageSvc}
}

// RegisterRoutes attaches analysis routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/analyses", h.startAnalysis)
	rg.GET("/analyses", h.listAnalyses)
	rg.GET("/analyses/:id", h.getAnalysis)
	rg.GET("/analyses/:id/usage", h.getAnalysisUsage)
}

type startAnalysisRequest struct {
	ProposalText string `json:"proposalText"`
}

func (h *Handler) startAnalysis(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	proposalText, ok := h.proposalFromRequest(c)
	if !ok {
		return
	}

	analysis, err := h.Svc.Start(c.Request.Context(), proposalText, userID)
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrInsufficientBalance):
			respond.Error(c, http.StatusPaymentRequired, "insufficient_balance", "Your balance is too low to run an analysis.", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to start analysis", nil)
		}
		return
	}

	respond.JSON(c, http.StatusAccepted, gin.H{
		"analysisId": analysis.ID,
		"status":     analysis.Status,
	})
}

// proposalFromRequest reads the proposal either from a JSON body or from an
// uploaded PDF/plain-text file.
func (h *Handler) proposalFromRequest(c *gin.Context) (string, bool) {
	if fileHeader, err := c.FormFile("proposal"); err == nil {
		if fileHeader.Size > maxProposalUploadBytes {
			respond.Error(c, http.StatusRequestEntityTooLarge, "validation_error", "proposal file too large", nil)
			return "", false
		}
		f, err := fileHeader.Open()
		if err != nil {
			respond.Error(c, http.StatusBadRequest, "validation_error", "unreadable proposal file", nil)
			return "", false
		}
		defer f.Close()
		raw, err := io.ReadAll(io.LimitReader(f, maxProposalUploadBytes))
		if err != nil {
			respond.Error(c, http.StatusBadRequest, "validation_error", "unreadable proposal file", nil)
			return "", false
		}
		text, err := extract.Text(c.Request.Context(), raw, fileHeader.Header.Get("Content-Type"), fileHeader.Filename)
		if err != nil {
			respond.Error(c, http.StatusUnprocessableEntity, "validation_error", "could not extract text from proposal file", nil)
			return "", false
		}
		return text, true
	}

	var req startAnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ProposalText == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "proposalText or a proposal file is required", nil)
		return "", false
	}
	return req.ProposalText, true
}

func (h *Handler) getAnalysis(c *gin.Context) {
	analysis, ok := h.ownedAnalysis(c)
	if !ok {
		return
	}

	resp := gin.H{
		"id":        analysis.ID,
		"status":    analysis.Status,
		"createdAt": analysis.CreatedAt,
	}
	if analysis.Status == StatusCompleted && analysis.Result != nil {
		resp["result"] = analysis.Result
	}
	if analysis.Status == StatusFailed {
		resp["errorCode"] = analysis.ErrorCode
	}
	respond.JSON(c, http.StatusOK, resp)
}

func (h *Handler) getAnalysisUsage(c *gin.Context) {
	analysis, ok := h.ownedAnalysis(c)
	if !ok {
		return
	}

	summary, err := h.UsageSvc.SummaryByAnalysis(c.Request.Context(), analysis.ID)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch usage", nil)
		return
	}
	respond.OK(c, summary)
}

func (h *Handler) listAnalyses(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	analyses, err := h.Svc.List(c.Request.Context(), userID, limit, offset)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list analyses", nil)
		return
	}
	respond.OK(c, gin.H{"analyses": analyses})
}

func (h *Handler) ownedAnalysis(c *gin.Context) (Analysis, bool) {
	analysisID := c.Param("id")
	if analysisID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "analysis id is required", nil)
		return Analysis{}, false
	}

	analysis, err := h.Svc.Get(c.Request.Context(), analysisID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "analysis not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch analysis", nil)
		}
		return Analysis{}, false
	}
	if analysis.UserID != middleware.UserIDFromContext(c) {
		respond.Error(c, http.StatusNotFound, "not_found", "analysis not found", nil)
		return Analysis{}, false
	}
	return analysis, true
}
