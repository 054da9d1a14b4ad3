package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/zapcampanha/console/internal/cache"
	"github.com/zapcampanha/console/internal/export"
	"github.com/zapcampanha/console/internal/pkg/response"
)

type AnalyticsHandler struct {
	data *cache.RemoteData
	log  *zap.Logger
}

func NewAnalyticsHandler(data *cache.RemoteData, log *zap.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{data: data, log: log}
}

func (h *AnalyticsHandler) Register(r *gin.RouterGroup) {
	r.GET("/analytics", h.overview)
	r.GET("/analytics/export", h.export)
}

func (h *AnalyticsHandler) overview(c *gin.Context) {
	analytics, err := h.data.Analytics(c.Request.Context(), c.Query("timeRange"))
	if err != nil {
		response.Error(c, http.StatusBadGateway, err)
		return
	}
	response.Success(c, http.StatusOK, analytics)
}

// export monta o relatório para download no formato pedido (csv ou html).
func (h *AnalyticsHandler) export(c *gin.Context) {
	analytics, err := h.data.Analytics(c.Request.Context(), c.Query("timeRange"))
	if err != nil {
		response.Error(c, http.StatusBadGateway, err)
		return
	}

	var artifact export.Artifact
	switch c.DefaultQuery("format", "csv") {
	case "csv":
		artifact, err = export.DailyStatsCSV(analytics.DailyStats, time.Now())
	case "html":
		artifact, err = export.AnalyticsHTML(analytics, time.Now())
	default:
		response.ErrorWithMessage(c, http.StatusBadRequest, "formato de export desconhecido")
		return
	}
	if err != nil {
		response.Error(c, http.StatusInternalServerError, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+artifact.Filename+`"`)
	c.Data(http.StatusOK, artifact.MIME, artifact.Content)
}
