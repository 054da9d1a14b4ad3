package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/zapcampanha/console/internal/credential"
	"github.com/zapcampanha/console/internal/link"
	"github.com/zapcampanha/console/internal/pkg/response"
)

// SessionHandler gerencia a credencial local e o ciclo de vida da
// assinatura realtime atrelada a ela.
type SessionHandler struct {
	creds      *credential.Store
	controller *link.Controller
	log        *zap.Logger
}

func NewSessionHandler(creds *credential.Store, controller *link.Controller, log *zap.Logger) *SessionHandler {
	return &SessionHandler{creds: creds, controller: controller, log: log}
}

func (h *SessionHandler) Register(r *gin.RouterGroup) {
	r.GET("/session", h.status)
	r.POST("/session", h.open)
	r.DELETE("/session", h.close)
}

type openSessionRequest struct {
	Token string `json:"token" binding:"required"`
}

// open guarda a credencial e ativa a assinatura realtime para a identidade
// extraída dela. Uma sessão anterior é derrubada antes da nova começar.
func (h *SessionHandler) open(c *gin.Context) {
	var req openSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err)
		return
	}

	if err := h.creds.Set(req.Token); err != nil {
		response.Error(c, http.StatusInternalServerError, err)
		return
	}

	userID := h.creds.UserID()
	if userID == "" {
		_ = h.creds.Clear()
		response.ErrorWithMessage(c, http.StatusUnprocessableEntity, "token sem identidade de usuário")
		return
	}

	if err := h.controller.Activate(userID, req.Token); err != nil {
		response.Error(c, http.StatusInternalServerError, err)
		return
	}

	h.log.Info("sessão aberta", zap.String("user_id", userID))
	response.Success(c, http.StatusOK, gin.H{"userId": userID})
}

func (h *SessionHandler) close(c *gin.Context) {
	h.controller.Deactivate()
	if err := h.creds.Clear(); err != nil {
		response.Error(c, http.StatusInternalServerError, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"closed": true})
}

func (h *SessionHandler) status(c *gin.Context) {
	connected, exhausted := h.controller.ChannelState()
	response.Success(c, http.StatusOK, gin.H{
		"userId":    h.creds.UserID(),
		"connected": connected,
		"exhausted": exhausted,
	})
}
