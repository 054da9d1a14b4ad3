package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/zapcampanha/console/internal/notify"
)

func newNotificationRouter(t *testing.T) (*gin.Engine, *notify.Center) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	center, err := notify.NewCenter(time.Hour, zap.NewNop())
	if err != nil {
		t.Fatalf("new center: %v", err)
	}
	t.Cleanup(center.Close)

	router := gin.New()
	NewNotificationHandler(center, zap.NewNop()).Register(router.Group("/api"))
	return router, center
}

func TestListNotifications(t *testing.T) {
	router, center := newNotificationRouter(t)
	center.Push(notify.SeveritySuccess, "conta conectada")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/notifications", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", w.Code)
	}

	var body struct {
		Success bool                  `json:"success"`
		Data    []notify.Notification `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Success || len(body.Data) != 1 {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
	if body.Data[0].Text != "conta conectada" {
		t.Fatalf("unexpected notification: %+v", body.Data[0])
	}
}

func TestDismissNotification(t *testing.T) {
	router, center := newNotificationRouter(t)
	n := center.Push(notify.SeverityInfo, "aviso")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/api/notifications/"+n.ID, nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", w.Code)
	}
	if vis := center.Visible(); len(vis) != 0 {
		t.Fatalf("expected dismissed notification gone, got %d", len(vis))
	}
}
