package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/zapcampanha/console/internal/cache"
	"github.com/zapcampanha/console/internal/eventlog"
	"github.com/zapcampanha/console/internal/link"
	"github.com/zapcampanha/console/internal/pkg/response"
)

type AccountHandler struct {
	data       *cache.RemoteData
	controller *link.Controller
	events     *eventlog.Log
	log        *zap.Logger
}

func NewAccountHandler(data *cache.RemoteData, controller *link.Controller, events *eventlog.Log, log *zap.Logger) *AccountHandler {
	return &AccountHandler{data: data, controller: controller, events: events, log: log}
}

func (h *AccountHandler) Register(r *gin.RouterGroup) {
	r.GET("/accounts", h.list)
	r.GET("/accounts/statuses", h.statuses)
	r.GET("/accounts/qr", h.currentQR)
	r.POST("/accounts/connect", h.connect)
	r.POST("/accounts/:id/disconnect", h.disconnect)
	r.DELETE("/accounts/:id", h.delete)
	r.GET("/accounts/:id/qr", h.refreshQR)
	r.GET("/accounts/:id/events", h.listEvents)
}

func (h *AccountHandler) list(c *gin.Context) {
	accounts, err := h.data.Accounts(c.Request.Context())
	if err != nil {
		response.Error(c, http.StatusBadGateway, err)
		return
	}
	response.Success(c, http.StatusOK, accounts)
}

// statuses devolve a projeção local de status por conta, alimentada pelos
// eventos do canal. Pode divergir da lista do backend até o cache expirar.
func (h *AccountHandler) statuses(c *gin.Context) {
	response.Success(c, http.StatusOK, h.controller.Statuses())
}

func (h *AccountHandler) currentQR(c *gin.Context) {
	artifact, ok := h.controller.Artifact()
	if !ok {
		response.ErrorWithMessage(c, http.StatusNotFound, "nenhum QR code em exibição")
		return
	}
	response.Success(c, http.StatusOK, artifact)
}

type connectAccountRequest struct {
	AccountName string `json:"accountName" binding:"required,min=2"`
}

func (h *AccountHandler) connect(c *gin.Context) {
	var req connectAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err)
		return
	}

	account, err := h.controller.StartLinking(c.Request.Context(), req.AccountName)
	if err != nil {
		response.Error(c, http.StatusBadGateway, err)
		return
	}
	response.Success(c, http.StatusAccepted, account)
}

func (h *AccountHandler) disconnect(c *gin.Context) {
	if err := h.controller.Disconnect(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, http.StatusBadGateway, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"requested": true})
}

func (h *AccountHandler) delete(c *gin.Context) {
	accountID := c.Param("id")
	if err := h.controller.Delete(c.Request.Context(), accountID); err != nil {
		response.Error(c, http.StatusBadGateway, err)
		return
	}
	if err := h.events.DeleteByAccount(c.Request.Context(), accountID); err != nil {
		h.log.Warn("falha ao limpar eventos da conta removida",
			zap.String("account_id", accountID),
			zap.Error(err),
		)
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

func (h *AccountHandler) refreshQR(c *gin.Context) {
	artifact, err := h.controller.RefreshQR(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, link.ErrNotConnected) {
			response.ErrorWithMessage(c, http.StatusConflict, "canal realtime desconectado, refresh indisponível")
			return
		}
		response.Error(c, http.StatusBadGateway, err)
		return
	}
	response.Success(c, http.StatusOK, artifact)
}

func (h *AccountHandler) listEvents(c *gin.Context) {
	entries, err := h.events.ListByAccount(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusInternalServerError, err)
		return
	}
	response.Success(c, http.StatusOK, entries)
}
