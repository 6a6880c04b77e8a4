package rest

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/offmarket/offmarket/internal/domain"
	"github.com/offmarket/offmarket/internal/usecase"
	"go.uber.org/zap"
)

type EvaluationTrigger interface {
	TriggerNow(ctx context.Context) (usecase.RunReport, error)
	Status() usecase.RunStatus
}

type Handlers struct {
	alertUC   *usecase.AlertUsecase
	catalogUC *usecase.CatalogUsecase
	trigger   EvaluationTrigger
	logger    *zap.Logger
}

func NewHandlers(alertUC *usecase.AlertUsecase, catalogUC *usecase.CatalogUsecase, trigger EvaluationTrigger, logger *zap.Logger) *Handlers {
	return &Handlers{alertUC: alertUC, catalogUC: catalogUC, trigger: trigger, logger: logger}
}

func (h *Handlers) CreateAlert(c *gin.Context) {
	uid, err := userID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}

	var req createAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, &domain.ValidationError{Field: "body", Reason: err.Error()})
		return
	}
	if !req.TargetPrice.Valid {
		h.writeError(c, &domain.ValidationError{Field: "target_price", Reason: "is required"})
		return
	}

	alert, err := h.alertUC.AddAlert(c.Request.Context(), uid, req.ProductID, req.TargetPrice.Decimal, req.Radius.Ptr())
	if err != nil {
		h.logger.Warn("create alert failed", zap.Uint("user_id", uid), zap.Error(err))
		h.writeError(c, err)
		return
	}
	h.logger.Info("create alert complete", zap.Uint("user_id", uid), zap.Uint("alert_id", alert.ID))
	c.JSON(http.StatusCreated, mapAlert(*alert))
}

func (h *Handlers) ListAlerts(c *gin.Context) {
	uid, err := userID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}

	views, err := h.alertUC.ListAlerts(c.Request.Context(), uid)
	if err != nil {
		h.writeError(c, err)
		return
	}
	resp := make([]alertResponse, 0, len(views))
	for _, view := range views {
		resp = append(resp, mapAlertView(view))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handlers) ToggleAlert(c *gin.Context) {
	uid, err := userID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	alertID, err := ParseID(c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	alert, err := h.alertUC.ToggleAlert(c.Request.Context(), uid, alertID)
	if err != nil {
		h.logger.Warn("toggle alert failed", zap.Uint("user_id", uid), zap.Uint("alert_id", alertID), zap.Error(err))
		h.writeError(c, err)
		return
	}
	h.logger.Info("toggle alert complete", zap.Uint("user_id", uid), zap.Uint("alert_id", alertID), zap.Bool("active", alert.Active))
	c.JSON(http.StatusOK, mapAlert(*alert))
}

func (h *Handlers) DeleteAlert(c *gin.Context) {
	uid, err := userID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	alertID, err := ParseID(c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	if err := h.alertUC.DeleteAlert(c.Request.Context(), uid, alertID); err != nil {
		h.logger.Warn("delete alert failed", zap.Uint("user_id", uid), zap.Uint("alert_id", alertID), zap.Error(err))
		h.writeError(c, err)
		return
	}
	h.logger.Info("delete alert complete", zap.Uint("user_id", uid), zap.Uint("alert_id", alertID))
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handlers) CheckAlerts(c *gin.Context) {
	report, err := h.trigger.TriggerNow(c.Request.Context())
	if errors.Is(err, domain.ErrRunInProgress) {
		c.JSON(http.StatusConflict, gin.H{
			"error":  err.Error(),
			"kind":   domain.KindConflict,
			"status": h.trigger.Status(),
		})
		return
	}
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Alert check completed", "report": report})
}

func (h *Handlers) CheckStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.trigger.Status())
}

func (h *Handlers) ListStores(c *gin.Context) {
	radius := float64(defaultStoreRadiusKm)
	near, err := parseNearby(c, &radius)
	if err != nil {
		h.writeError(c, err)
		return
	}

	results, err := h.catalogUC.NearbyStores(c.Request.Context(), near)
	if err != nil {
		h.writeError(c, err)
		return
	}
	resp := make([]storeResponse, 0, len(results))
	for _, result := range results {
		resp = append(resp, mapStore(result))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handlers) ListProducts(c *gin.Context) {
	var storeID uint
	if raw := c.Query("storeId"); raw != "" {
		id, err := ParseID(raw)
		if err != nil {
			h.writeError(c, &domain.ValidationError{Field: "storeId", Reason: "must be a positive identifier"})
			return
		}
		storeID = id
	}
	near, err := parseNearby(c, nil)
	if err != nil {
		h.writeError(c, err)
		return
	}

	results, err := h.catalogUC.NearbyProducts(c.Request.Context(), storeID, near)
	if err != nil {
		h.writeError(c, err)
		return
	}
	resp := make([]productResponse, 0, len(results))
	for _, result := range results {
		resp = append(resp, mapProduct(result))
	}
	c.JSON(http.StatusOK, resp)
}
