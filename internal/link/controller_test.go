package link

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/zapcampanha/console/internal/channel"
	"github.com/zapcampanha/console/internal/model"
	"github.com/zapcampanha/console/internal/notify"
)

type stubSession struct {
	handlers  map[string][]channel.Handler
	connected bool
	exhausted bool
	started   bool
	closed    bool

	mu    sync.Mutex
	acked []string
}

func newStubSession() *stubSession {
	return &stubSession{handlers: make(map[string][]channel.Handler)}
}

func (s *stubSession) On(event string, h channel.Handler) {
	s.handlers[event] = append(s.handlers[event], h)
}

func (s *stubSession) RemoveAllHandlers() {
	s.handlers = make(map[string][]channel.Handler)
}

func (s *stubSession) Connected() bool { return s.connected }
func (s *stubSession) Exhausted() bool { return s.exhausted }
func (s *stubSession) Start()          { s.started = true }
func (s *stubSession) Close()          { s.closed = true }

func (s *stubSession) Emit(event string, data map[string]interface{}) error { return nil }

func (s *stubSession) EmitWithAck(event string, data map[string]interface{}, timeout time.Duration) (map[string]interface{}, error) {
	s.mu.Lock()
	s.acked = append(s.acked, event)
	s.mu.Unlock()
	return map[string]interface{}{"ok": true}, nil
}

func (s *stubSession) ackedEvents() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.acked...)
}

func (s *stubSession) fire(event string, data map[string]interface{}) {
	for _, h := range s.handlers[event] {
		h(data)
	}
}

type stubAPI struct {
	account    model.Account
	connectErr error
	qrPayload  string
	qrErr      error

	connected    []string
	disconnected []string
	deleted      []string
	fetched      []string
}

func (a *stubAPI) Connect(ctx context.Context, accountName string) (model.Account, error) {
	a.connected = append(a.connected, accountName)
	if a.connectErr != nil {
		return model.Account{}, a.connectErr
	}
	return a.account, nil
}

func (a *stubAPI) Disconnect(ctx context.Context, accountID string) error {
	a.disconnected = append(a.disconnected, accountID)
	return nil
}

func (a *stubAPI) DeleteAccount(ctx context.Context, accountID string) error {
	a.deleted = append(a.deleted, accountID)
	return nil
}

func (a *stubAPI) FetchQR(ctx context.Context, accountID string) (string, error) {
	a.fetched = append(a.fetched, accountID)
	if a.qrErr != nil {
		return "", a.qrErr
	}
	return a.qrPayload, nil
}

type stubData struct {
	accounts  int
	campaigns int
}

func (d *stubData) InvalidateAccounts(ctx context.Context)  { d.accounts++ }
func (d *stubData) InvalidateCampaigns(ctx context.Context) { d.campaigns++ }

func validQRPayload() string {
	return "iVBOR" + strings.Repeat("A", 60)
}

func realPNGDataURI(t *testing.T) string {
	t.Helper()
	png, err := qrcode.Encode("2@pairing", qrcode.Medium, 128)
	if err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}

func newTestController(t *testing.T) (*Controller, *stubSession, *stubAPI, *stubData, *notify.Center) {
	t.Helper()

	api := &stubAPI{}
	data := &stubData{}
	center, err := notify.NewCenter(time.Hour, zap.NewNop())
	if err != nil {
		t.Fatalf("new center: %v", err)
	}

	var sess *stubSession
	factory := func(token string) Realtime {
		sess = newStubSession()
		return sess
	}

	c := NewController(Options{
		API:        api,
		Data:       data,
		Notify:     center,
		NewSession: factory,
		QRFallback: time.Hour,
		Log:        zap.NewNop(),
	})
	if err := c.Activate("user-1", "token-1"); err != nil {
		t.Fatalf("activate: %v", err)
	}
	t.Cleanup(c.Deactivate)
	t.Cleanup(center.Close)
	return c, sess, api, data, center
}

func lastNotification(t *testing.T, center *notify.Center) notify.Notification {
	t.Helper()
	vis := center.Visible()
	if len(vis) == 0 {
		t.Fatalf("expected at least one notification")
	}
	return vis[len(vis)-1]
}

func TestActivateRequiresIdentity(t *testing.T) {
	c := NewController(Options{Log: zap.NewNop()})
	if err := c.Activate("", "token"); !errors.Is(err, ErrNoIdentity) {
		t.Fatalf("expected ErrNoIdentity got %v", err)
	}
}

func TestActivateRegistersAllEvents(t *testing.T) {
	_, sess, _, _, _ := newTestController(t)

	if !sess.started {
		t.Fatalf("expected session started")
	}

	expected := append([]string{}, qrAliases...)
	expected = append(expected,
		channel.EventConnect, channel.EventConnectError, channel.EventDisconnect,
		evReady, evAuthenticated, evInitializing, evLoading,
		evDisconnected, evAuthFailed, evSessionError, evQRError,
	)
	for _, event := range expected {
		if len(sess.handlers[event]) == 0 {
			t.Fatalf("no handler registered for %s", event)
		}
	}
}

func TestChannelConnectJoinsUserRoom(t *testing.T) {
	_, sess, _, _, center := newTestController(t)
	sess.connected = true

	sess.fire(channel.EventConnect, nil)

	// O join corre em goroutine própria.
	deadline := time.After(2 * time.Second)
	for {
		if acked := sess.ackedEvents(); len(acked) == 1 && acked[0] == evJoinUserRoom {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("join_user_room never emitted, got %v", sess.ackedEvents())
		case <-time.After(5 * time.Millisecond):
		}
	}

	if n := lastNotification(t, center); n.Severity != notify.SeverityInfo {
		t.Fatalf("expected info notification got %+v", n)
	}
}

func TestQRBase64BecomesArtifact(t *testing.T) {
	c, sess, _, _, _ := newTestController(t)
	payload := validQRPayload()

	sess.fire(evQRCode, map[string]interface{}{"accountId": "A1", "qrCode": payload})

	artifact, ok := c.Artifact()
	if !ok {
		t.Fatalf("expected artifact to be set")
	}
	if !strings.HasPrefix(artifact.Payload, "data:image/png;base64,") {
		t.Fatalf("expected png data URI got %q", artifact.Payload[:30])
	}
	if !strings.HasSuffix(artifact.Payload, payload) {
		t.Fatalf("expected original payload as suffix")
	}
	if artifact.AccountID != "A1" {
		t.Fatalf("expected artifact for A1 got %s", artifact.AccountID)
	}
	if got := c.Status("A1"); got != model.AccountStatusConnecting {
		t.Fatalf("expected connecting got %s", got)
	}
}

func TestShortQRRejected(t *testing.T) {
	c, sess, _, _, center := newTestController(t)

	sess.fire(evQRCode, map[string]interface{}{"accountId": "A1", "qrCode": "short"})

	if _, ok := c.Artifact(); ok {
		t.Fatalf("expected no artifact for short payload")
	}
	if n := lastNotification(t, center); n.Severity != notify.SeverityError {
		t.Fatalf("expected error notification got %+v", n)
	}
}

func TestAllQRAliasesShareHandling(t *testing.T) {
	for _, alias := range qrAliases {
		c, sess, _, _, _ := newTestController(t)
		sess.fire(alias, map[string]interface{}{"accountId": "A1", "qrCode": validQRPayload()})
		if _, ok := c.Artifact(); !ok {
			t.Fatalf("alias %s did not produce artifact", alias)
		}
	}
}

// artifactAtNotify captura, no instante da publicação, se o artefato ainda
// estava visível. Usado para garantir que a limpeza vem antes do aviso.
type artifactAtNotify struct {
	c    *Controller
	seen []bool
}

func (s *artifactAtNotify) Notify(n notify.Notification) {
	_, ok := s.c.Artifact()
	s.seen = append(s.seen, ok)
}

func TestReadyClearsArtifactBeforeNotifying(t *testing.T) {
	c, sess, _, data, center := newTestController(t)

	sess.fire(evQRCode, map[string]interface{}{"accountId": "A1", "qrCode": validQRPayload()})
	if _, ok := c.Artifact(); !ok {
		t.Fatalf("expected artifact before ready")
	}

	sink := &artifactAtNotify{c: c}
	center.AddSink(sink)

	sess.fire(evReady, map[string]interface{}{
		"accountId":   "A1",
		"phoneNumber": "+5511999999999",
		"profileName": "Ana",
	})

	if _, ok := c.Artifact(); ok {
		t.Fatalf("expected artifact cleared on ready")
	}
	if got := c.Status("A1"); got != model.AccountStatusReady {
		t.Fatalf("expected ready got %s", got)
	}
	if len(sink.seen) != 1 || sink.seen[0] {
		t.Fatalf("notification published before artifact was cleared: %v", sink.seen)
	}

	n := lastNotification(t, center)
	if n.Severity != notify.SeveritySuccess {
		t.Fatalf("expected success notification got %+v", n)
	}
	if !strings.Contains(n.Text, "Ana") || !strings.Contains(n.Text, "+5511999999999") {
		t.Fatalf("expected phone/profile in text got %q", n.Text)
	}
	if data.accounts == 0 {
		t.Fatalf("expected accounts cache invalidated")
	}
}

func TestTerminalEventsAlwaysClearArtifact(t *testing.T) {
	events := []struct {
		name   string
		status model.AccountStatus
	}{
		{evDisconnected, model.AccountStatusDisconnected},
		{evAuthFailed, model.AccountStatusError},
		{evSessionError, model.AccountStatusError},
	}

	for _, tc := range events {
		c, sess, _, data, center := newTestController(t)
		sess.fire(evQRCode, map[string]interface{}{"accountId": "A1", "qrCode": validQRPayload()})

		sess.fire(tc.name, map[string]interface{}{"accountId": "A1", "reason": "test"})

		if _, ok := c.Artifact(); ok {
			t.Fatalf("%s: expected artifact cleared", tc.name)
		}
		if got := c.Status("A1"); got != tc.status {
			t.Fatalf("%s: expected %s got %s", tc.name, tc.status, got)
		}
		if n := lastNotification(t, center); n.Severity != notify.SeverityError {
			t.Fatalf("%s: expected error notification got %+v", tc.name, n)
		}
		if data.accounts == 0 {
			t.Fatalf("%s: expected cache invalidated", tc.name)
		}
	}
}

func TestLateQRIgnoredForResolvedAccount(t *testing.T) {
	c, sess, _, _, _ := newTestController(t)

	sess.fire(evReady, map[string]interface{}{"accountId": "A1"})
	sess.fire(evQRCode, map[string]interface{}{"accountId": "A1", "qrCode": validQRPayload()})

	if _, ok := c.Artifact(); ok {
		t.Fatalf("late QR for resolved account must be ignored")
	}
	if got := c.Status("A1"); got != model.AccountStatusReady {
		t.Fatalf("expected ready got %s", got)
	}
}

func TestAuthenticatedKeepsArtifactVisible(t *testing.T) {
	c, sess, _, _, _ := newTestController(t)

	sess.fire(evQRCode, map[string]interface{}{"accountId": "A1", "qrCode": validQRPayload()})
	sess.fire(evAuthenticated, map[string]interface{}{"accountId": "A1"})

	if _, ok := c.Artifact(); !ok {
		t.Fatalf("authenticated must keep artifact visible")
	}
	if got := c.Status("A1"); got != model.AccountStatusAuthenticated {
		t.Fatalf("expected authenticated got %s", got)
	}
}

func TestChannelDisconnectClearsArtifact(t *testing.T) {
	c, sess, _, _, center := newTestController(t)

	sess.fire(evQRCode, map[string]interface{}{"accountId": "A1", "qrCode": validQRPayload()})
	sess.fire(channel.EventDisconnect, map[string]interface{}{"reason": "going away"})

	if _, ok := c.Artifact(); ok {
		t.Fatalf("expected artifact cleared on channel disconnect")
	}
	n := lastNotification(t, center)
	if n.Severity != notify.SeverityError || !strings.Contains(n.Text, "going away") {
		t.Fatalf("expected error with reason got %+v", n)
	}
}

func TestStartLinkingArmsFallbackTimer(t *testing.T) {
	c, _, api, _, _ := newTestController(t)
	api.account = model.Account{ID: "A1", AccountName: "vendas"}

	if _, err := c.StartLinking(context.Background(), "vendas"); err != nil {
		t.Fatalf("start linking: %v", err)
	}

	c.mu.Lock()
	armed := c.fallback != nil && c.fallbackAcct == "A1"
	c.mu.Unlock()
	if !armed {
		t.Fatalf("expected fallback timer armed for A1")
	}
	if got := c.Status("A1"); got != model.AccountStatusConnecting {
		t.Fatalf("expected connecting got %s", got)
	}
}

func TestQREventCancelsFallbackTimer(t *testing.T) {
	c, sess, api, _, _ := newTestController(t)
	api.account = model.Account{ID: "A1"}

	if _, err := c.StartLinking(context.Background(), "vendas"); err != nil {
		t.Fatalf("start linking: %v", err)
	}
	sess.fire(evQRCode, map[string]interface{}{"accountId": "A1", "qrCode": validQRPayload()})

	c.mu.Lock()
	armed := c.fallback != nil
	c.mu.Unlock()
	if armed {
		t.Fatalf("expected fallback timer cancelled by QR event")
	}
}

func TestFallbackFetchesViaREST(t *testing.T) {
	c, sess, api, _, _ := newTestController(t)
	sess.connected = true
	api.account = model.Account{ID: "A1"}
	api.qrPayload = realPNGDataURI(t)

	if _, err := c.StartLinking(context.Background(), "vendas"); err != nil {
		t.Fatalf("start linking: %v", err)
	}

	c.fallbackFired("A1")

	if len(api.fetched) != 1 || api.fetched[0] != "A1" {
		t.Fatalf("expected REST fetch for A1 got %v", api.fetched)
	}
	artifact, ok := c.Artifact()
	if !ok || artifact.AccountID != "A1" {
		t.Fatalf("expected artifact from fallback fetch")
	}
}

func TestRefreshQRRequiresConnectedChannel(t *testing.T) {
	c, sess, _, _, _ := newTestController(t)
	sess.connected = false

	if _, err := c.RefreshQR(context.Background(), "A1"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected got %v", err)
	}
}

func TestRefreshQRRejectsCorruptedImage(t *testing.T) {
	c, sess, api, _, center := newTestController(t)
	sess.connected = true
	api.qrPayload = "data:image/png;base64," + strings.Repeat("A", 60)

	if _, err := c.RefreshQR(context.Background(), "A1"); err == nil {
		t.Fatalf("expected corrupted image to be rejected")
	}
	if _, ok := c.Artifact(); ok {
		t.Fatalf("rejected refresh must not set artifact")
	}
	if n := lastNotification(t, center); n.Severity != notify.SeverityError {
		t.Fatalf("expected error notification got %+v", n)
	}
}

func TestStartLinkingFailureNotifies(t *testing.T) {
	c, _, api, _, center := newTestController(t)
	api.connectErr = errors.New("backend fora do ar")

	if _, err := c.StartLinking(context.Background(), "vendas"); err == nil {
		t.Fatalf("expected error")
	}
	if n := lastNotification(t, center); n.Severity != notify.SeverityError {
		t.Fatalf("expected error notification got %+v", n)
	}
}

func TestDeactivateDiscardsState(t *testing.T) {
	c, sess, _, _, _ := newTestController(t)
	sess.fire(evQRCode, map[string]interface{}{"accountId": "A1", "qrCode": validQRPayload()})

	c.Deactivate()

	if !sess.closed {
		t.Fatalf("expected session closed")
	}
	if len(sess.handlers) != 0 {
		t.Fatalf("expected handlers removed")
	}
	if _, ok := c.Artifact(); ok {
		t.Fatalf("expected artifact discarded")
	}
	if len(c.Statuses()) != 0 {
		t.Fatalf("expected statuses discarded")
	}
}

func TestDeleteDropsLocalProjection(t *testing.T) {
	c, sess, api, _, _ := newTestController(t)
	sess.fire(evQRCode, map[string]interface{}{"accountId": "A1", "qrCode": validQRPayload()})

	if err := c.Delete(context.Background(), "A1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(api.deleted) != 1 || api.deleted[0] != "A1" {
		t.Fatalf("expected REST delete got %v", api.deleted)
	}
	if _, ok := c.Artifact(); ok {
		t.Fatalf("expected artifact cleared on delete")
	}
	if got := c.Status("A1"); got != "" {
		t.Fatalf("expected status dropped got %s", got)
	}
}
