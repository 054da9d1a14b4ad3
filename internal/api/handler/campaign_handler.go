package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/zapcampanha/console/internal/backend"
	"github.com/zapcampanha/console/internal/cache"
	"github.com/zapcampanha/console/internal/export"
	"github.com/zapcampanha/console/internal/pkg/response"
)

type CampaignHandler struct {
	data   *cache.RemoteData
	sender *backend.Client
	log    *zap.Logger
}

func NewCampaignHandler(data *cache.RemoteData, sender *backend.Client, log *zap.Logger) *CampaignHandler {
	return &CampaignHandler{data: data, sender: sender, log: log}
}

func (h *CampaignHandler) Register(r *gin.RouterGroup) {
	r.GET("/campaigns", h.list)
	r.GET("/campaigns/export", h.exportTXT)
	r.POST("/campaigns/send", h.send)
}

func (h *CampaignHandler) list(c *gin.Context) {
	campaigns, err := h.data.Campaigns(c.Request.Context())
	if err != nil {
		response.Error(c, http.StatusBadGateway, err)
		return
	}
	response.Success(c, http.StatusOK, campaigns)
}

// send repassa o disparo para o backend. A validação de entrada acontece
// antes de qualquer requisição sair; mídia segue como multipart.
func (h *CampaignHandler) send(c *gin.Context) {
	var recipients []string
	if raw := c.PostForm("recipients"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &recipients); err != nil {
			response.ErrorWithMessage(c, http.StatusBadRequest, "lista de destinatários inválida")
			return
		}
	}

	in := backend.SendInput{
		AccountID:  c.PostForm("accountId"),
		Recipients: recipients,
		Type:       c.PostForm("type"),
		Text:       c.PostForm("text"),
	}

	if file, err := c.FormFile("media"); err == nil {
		src, err := file.Open()
		if err != nil {
			response.Error(c, http.StatusBadRequest, err)
			return
		}
		defer src.Close()
		in.MediaName = file.Filename
		in.Media = src
	}

	if err := in.Validate(); err != nil {
		response.Error(c, http.StatusBadRequest, err)
		return
	}

	if err := h.sender.Send(c.Request.Context(), in); err != nil {
		response.Error(c, http.StatusBadGateway, err)
		return
	}

	h.data.InvalidateCampaigns(c.Request.Context())
	h.log.Info("campanha disparada",
		zap.String("account_id", in.AccountID),
		zap.Int("recipients", len(recipients)),
	)
	response.Success(c, http.StatusAccepted, gin.H{"queued": true})
}

func (h *CampaignHandler) exportTXT(c *gin.Context) {
	campaigns, err := h.data.Campaigns(c.Request.Context())
	if err != nil {
		response.Error(c, http.StatusBadGateway, err)
		return
	}

	artifact := export.CampaignsTXT(campaigns, time.Now())
	c.Header("Content-Disposition", `attachment; filename="`+artifact.Filename+`"`)
	c.Data(http.StatusOK, artifact.MIME, artifact.Content)
}
