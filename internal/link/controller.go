package link

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/zapcampanha/console/internal/channel"
	"github.com/zapcampanha/console/internal/model"
	"github.com/zapcampanha/console/internal/notify"
	"github.com/zapcampanha/console/internal/qr"
)

// Nomes de evento do contrato do backend. O backend emite o QR sob vários
// apelidos; todos recebem o mesmo tratamento.
const (
	evQRCode        = "qr_code"
	evWhatsAppQR    = "whatsapp_qr"
	evQRGenerated   = "qr_generated"
	evQRReady       = "qr_ready"
	evQRCodeDirect  = "qr_code_direct"
	evWhatsAppQRDir = "whatsapp_qr_direct"
	evReady         = "whatsapp_ready"
	evAuthenticated = "whatsapp_authenticated"
	evInitializing  = "whatsapp_initializing"
	evLoading       = "whatsapp_loading"
	evDisconnected  = "whatsapp_disconnected"
	evAuthFailed    = "whatsapp_auth_failed"
	evSessionError  = "whatsapp_error"
	evQRError       = "qr_error"
	evJoinUserRoom  = "join_user_room"
)

var qrAliases = []string{
	evQRCode, evWhatsAppQR, evQRGenerated, evQRReady, evQRCodeDirect, evWhatsAppQRDir,
}

var (
	ErrNoIdentity   = errors.New("link: identidade de usuário ausente")
	ErrNotConnected = errors.New("link: canal não conectado")
)

// Realtime é o pedaço da sessão de canal que o controller enxerga.
type Realtime interface {
	On(event string, h channel.Handler)
	RemoveAllHandlers()
	Connected() bool
	Exhausted() bool
	Start()
	Close()
	Emit(event string, data map[string]interface{}) error
	EmitWithAck(event string, data map[string]interface{}, timeout time.Duration) (map[string]interface{}, error)
}

// SessionFactory cria uma sessão nova autenticada com o token informado.
// Sessões nunca são reaproveitadas entre ativações.
type SessionFactory func(token string) Realtime

// API é o subconjunto do client REST coordenado pelo controller.
type API interface {
	Connect(ctx context.Context, accountName string) (model.Account, error)
	Disconnect(ctx context.Context, accountID string) error
	DeleteAccount(ctx context.Context, accountID string) error
	FetchQR(ctx context.Context, accountID string) (string, error)
}

// DataInvalidator descarta listas em cache quando um evento muda status de conta.
type DataInvalidator interface {
	InvalidateAccounts(ctx context.Context)
	InvalidateCampaigns(ctx context.Context)
}

// Recorder persiste os eventos classificados. Pode ser nil.
type Recorder interface {
	Append(ctx context.Context, entry model.EventLog) (model.EventLog, error)
}

type Options struct {
	API            API
	Data           DataInvalidator
	Notify         *notify.Center
	Events         Recorder
	NewSession     SessionFactory
	QRMinLength    int
	QRFallback     time.Duration
	JoinAckTimeout time.Duration
	Log            *zap.Logger
}

// Controller é o dono da assinatura realtime da sessão de usuário ativa.
// Classifica eventos do canal em transições de status de conta, mantém o
// artefato QR exibível e publica notificações. Exatamente uma sessão de
// canal existe por ativação; trocar de identidade derruba a anterior.
type Controller struct {
	opts Options
	log  *zap.Logger

	mu           sync.Mutex
	session      Realtime
	userID       string
	statuses     map[string]model.AccountStatus
	artifact     *model.QRArtifact
	fallback     *time.Timer
	fallbackAcct string
}

func NewController(opts Options) *Controller {
	if opts.QRMinLength <= 0 {
		opts.QRMinLength = qr.DefaultMinLength
	}
	if opts.QRFallback <= 0 {
		opts.QRFallback = 10 * time.Second
	}
	if opts.JoinAckTimeout <= 0 {
		opts.JoinAckTimeout = 5 * time.Second
	}
	return &Controller{
		opts:     opts,
		log:      opts.Log,
		statuses: make(map[string]model.AccountStatus),
	}
}

// Activate cria a assinatura realtime para a identidade informada. Uma
// ativação anterior é derrubada por inteiro antes da nova começar.
func (c *Controller) Activate(userID, token string) error {
	if userID == "" {
		return ErrNoIdentity
	}

	c.Deactivate()

	s := c.opts.NewSession(token)
	c.registerHandlers(s)

	c.mu.Lock()
	c.session = s
	c.userID = userID
	c.mu.Unlock()

	s.Start()
	c.log.Info("link: sessão ativada", zap.String("user_id", userID))
	return nil
}

// Deactivate encerra a assinatura atual e descarta todo o estado em memória.
// É idempotente; sem sessão ativa não faz nada.
func (c *Controller) Deactivate() {
	c.mu.Lock()
	s := c.session
	c.session = nil
	c.userID = ""
	c.statuses = make(map[string]model.AccountStatus)
	c.artifact = nil
	c.stopFallbackLocked()
	c.mu.Unlock()

	if s != nil {
		s.RemoveAllHandlers()
		s.Close()
		c.log.Info("link: sessão desativada")
	}
}

func (c *Controller) registerHandlers(s Realtime) {
	s.On(channel.EventConnect, c.onChannelConnect)
	s.On(channel.EventConnectError, c.onChannelConnectError)
	s.On(channel.EventDisconnect, c.onChannelDisconnect)

	for _, alias := range qrAliases {
		event := alias
		s.On(event, func(data map[string]interface{}) { c.onQR(event, data) })
	}

	s.On(evReady, c.onReady)
	s.On(evAuthenticated, c.onAuthenticated)
	s.On(evInitializing, c.onInitializing)
	s.On(evLoading, c.onLoading)
	s.On(evDisconnected, c.onDisconnected)
	s.On(evAuthFailed, c.onAuthFailed)
	s.On(evSessionError, c.onSessionError)
	s.On(evQRError, c.onQRError)
}

func (c *Controller) onChannelConnect(_ map[string]interface{}) {
	c.mu.Lock()
	s := c.session
	userID := c.userID
	c.mu.Unlock()

	c.opts.Notify.Push(notify.SeverityInfo, "Conectado ao servidor em tempo real")

	if s == nil || userID == "" {
		return
	}

	// O ack chega pelo mesmo loop de leitura que despacha este handler;
	// aguardar aqui travaria a sessão, então o join corre à parte.
	go func() {
		if _, err := s.EmitWithAck(evJoinUserRoom, map[string]interface{}{"userId": userID}, c.opts.JoinAckTimeout); err != nil {
			c.log.Warn("link: join da sala do usuário sem confirmação",
				zap.String("user_id", userID),
				zap.Error(err),
			)
			return
		}
		c.log.Info("link: entrou na sala do usuário", zap.String("user_id", userID))
	}()
}

func (c *Controller) onChannelConnectError(data map[string]interface{}) {
	detail := cast.ToString(data["error"])
	c.log.Warn("link: falha de conexão do canal", zap.String("error", detail))
	c.opts.Notify.Push(notify.SeverityError, "Falha na conexão em tempo real")
}

func (c *Controller) onChannelDisconnect(data map[string]interface{}) {
	reason := cast.ToString(data["reason"])

	c.mu.Lock()
	c.artifact = nil
	c.stopFallbackLocked()
	c.mu.Unlock()

	text := "Conexão em tempo real perdida"
	if reason != "" {
		text = fmt.Sprintf("Conexão em tempo real perdida: %s", reason)
	}
	c.opts.Notify.Push(notify.SeverityError, text)
}

// onQR trata todos os apelidos de evento de QR com a mesma lógica, chaveada
// pelo accountId: um QR atrasado para conta já resolvida é ignorado.
func (c *Controller) onQR(event string, data map[string]interface{}) {
	accountID := cast.ToString(data["accountId"])
	payload := cast.ToString(data["qrCode"])

	c.record(accountID, event, data)

	c.mu.Lock()
	status := c.statuses[accountID]
	c.mu.Unlock()

	if status.Terminal() {
		c.log.Debug("link: QR tardio ignorado",
			zap.String("event", event),
			zap.String("account_id", accountID),
			zap.String("status", string(status)),
		)
		return
	}

	uri, err := qr.Normalize(payload, c.opts.QRMinLength)
	if err != nil {
		c.log.Warn("link: QR rejeitado",
			zap.String("event", event),
			zap.String("account_id", accountID),
			zap.Int("payload_len", len(payload)),
			zap.Error(err),
		)
		c.opts.Notify.Push(notify.SeverityError, "QR code inválido recebido")
		return
	}

	c.mu.Lock()
	c.artifact = &model.QRArtifact{
		AccountID:  accountID,
		Payload:    uri,
		ReceivedAt: time.Now(),
	}
	if c.statuses[accountID].CanStartLinking() {
		c.statuses[accountID] = model.AccountStatusConnecting
	}
	// O evento resolveu a espera; o timer de fallback não pode mais disparar.
	c.stopFallbackLocked()
	c.mu.Unlock()

	c.log.Info("link: QR recebido",
		zap.String("event", event),
		zap.String("account_id", accountID),
	)
}

func (c *Controller) onReady(data map[string]interface{}) {
	accountID := cast.ToString(data["accountId"])
	c.record(accountID, evReady, data)

	c.applyTerminal(accountID, model.AccountStatusReady)
	c.invalidate()

	text := "WhatsApp conectado!"
	phone := cast.ToString(data["phoneNumber"])
	profile := cast.ToString(data["profileName"])
	switch {
	case phone != "" && profile != "":
		text = fmt.Sprintf("WhatsApp conectado! %s (%s)", profile, phone)
	case phone != "":
		text = fmt.Sprintf("WhatsApp conectado! %s", phone)
	}
	c.opts.Notify.Push(notify.SeveritySuccess, text)
}

func (c *Controller) onAuthenticated(data map[string]interface{}) {
	accountID := cast.ToString(data["accountId"])
	c.record(accountID, evAuthenticated, data)

	// Autenticado ainda não é terminal; o QR exibido continua válido até
	// o backend confirmar ready.
	c.mu.Lock()
	if !c.statuses[accountID].Terminal() {
		c.statuses[accountID] = model.AccountStatusAuthenticated
	}
	c.mu.Unlock()

	c.opts.Notify.Push(notify.SeverityInfo, "WhatsApp autenticado, finalizando conexão...")
}

func (c *Controller) onInitializing(data map[string]interface{}) {
	accountID := cast.ToString(data["accountId"])
	c.record(accountID, evInitializing, data)

	c.mu.Lock()
	if c.statuses[accountID].CanStartLinking() {
		c.statuses[accountID] = model.AccountStatusConnecting
	}
	c.mu.Unlock()

	c.opts.Notify.Push(notify.SeverityInfo, "Inicializando sessão do WhatsApp...")
}

func (c *Controller) onLoading(data map[string]interface{}) {
	accountID := cast.ToString(data["accountId"])
	percent := cast.ToInt(data["percent"])

	c.mu.Lock()
	if c.statuses[accountID].CanStartLinking() {
		c.statuses[accountID] = model.AccountStatusConnecting
	}
	c.mu.Unlock()

	if percent > 0 {
		c.opts.Notify.Push(notify.SeverityInfo, fmt.Sprintf("Carregando WhatsApp... %d%%", percent))
		return
	}
	c.opts.Notify.Push(notify.SeverityInfo, "Carregando WhatsApp...")
}

func (c *Controller) onDisconnected(data map[string]interface{}) {
	accountID := cast.ToString(data["accountId"])
	c.record(accountID, evDisconnected, data)

	c.applyTerminal(accountID, model.AccountStatusDisconnected)
	c.invalidate()

	reason := cast.ToString(data["reason"])
	text := "WhatsApp desconectado"
	if reason != "" {
		text = fmt.Sprintf("WhatsApp desconectado: %s", reason)
	}
	c.opts.Notify.Push(notify.SeverityError, text)
}

func (c *Controller) onAuthFailed(data map[string]interface{}) {
	accountID := cast.ToString(data["accountId"])
	c.record(accountID, evAuthFailed, data)

	c.applyTerminal(accountID, model.AccountStatusError)
	c.invalidate()

	c.opts.Notify.Push(notify.SeverityError, "Falha na autenticação do WhatsApp")
}

func (c *Controller) onSessionError(data map[string]interface{}) {
	accountID := cast.ToString(data["accountId"])
	c.record(accountID, evSessionError, data)

	c.applyTerminal(accountID, model.AccountStatusError)
	c.invalidate()

	detail := cast.ToString(data["error"])
	if detail == "" {
		detail = cast.ToString(data["message"])
	}
	text := "Erro na sessão do WhatsApp"
	if detail != "" {
		text = fmt.Sprintf("Erro na sessão do WhatsApp: %s", detail)
	}
	c.opts.Notify.Push(notify.SeverityError, text)
}

func (c *Controller) onQRError(data map[string]interface{}) {
	accountID := cast.ToString(data["accountId"])
	c.record(accountID, evQRError, data)

	c.mu.Lock()
	c.clearArtifactLocked(accountID)
	c.mu.Unlock()

	c.opts.Notify.Push(notify.SeverityError, "Erro ao gerar QR code")
}

// applyTerminal aplica um status terminal e limpa o artefato QR da conta.
// A limpeza é incondicional: nenhum QR sobrevive à saída do fluxo de vínculo.
func (c *Controller) applyTerminal(accountID string, status model.AccountStatus) {
	c.mu.Lock()
	c.statuses[accountID] = status
	c.clearArtifactLocked(accountID)
	if c.fallbackAcct == accountID {
		c.stopFallbackLocked()
	}
	c.mu.Unlock()
}

func (c *Controller) clearArtifactLocked(accountID string) {
	if c.artifact == nil {
		return
	}
	if accountID == "" || c.artifact.AccountID == accountID {
		c.artifact = nil
	}
}

func (c *Controller) invalidate() {
	if c.opts.Data == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c.opts.Data.InvalidateAccounts(ctx)
	c.opts.Data.InvalidateCampaigns(ctx)
}

// record persiste o evento classificado, quando há gravador configurado.
func (c *Controller) record(accountID, event string, data map[string]interface{}) {
	if c.opts.Events == nil {
		return
	}
	payload, err := json.Marshal(data)
	if err != nil {
		payload = []byte("{}")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := c.opts.Events.Append(ctx, model.EventLog{
		AccountID: accountID,
		Type:      event,
		Payload:   string(payload),
	}); err != nil {
		c.log.Warn("link: falha ao gravar evento", zap.String("event", event), zap.Error(err))
	}
}

// StartLinking dispara uma nova tentativa de vínculo via REST e arma o
// timer de fallback que busca o QR por REST caso nenhum evento chegue.
func (c *Controller) StartLinking(ctx context.Context, accountName string) (model.Account, error) {
	account, err := c.opts.API.Connect(ctx, accountName)
	if err != nil {
		c.opts.Notify.Push(notify.SeverityError, fmt.Sprintf("Falha ao iniciar conexão: %s", err))
		return model.Account{}, err
	}

	c.mu.Lock()
	if account.ID != "" {
		current := c.statuses[account.ID]
		if current.CanStartLinking() {
			c.statuses[account.ID] = model.AccountStatusConnecting
		}
		c.armFallbackLocked(account.ID)
	}
	c.mu.Unlock()

	c.invalidate()
	c.opts.Notify.Push(notify.SeverityInfo, fmt.Sprintf("Conectando conta %s...", accountName))
	return account, nil
}

// Disconnect derruba o vínculo via REST. O status final chega pelo canal;
// sucesso REST não é tratado como mudança imediata.
func (c *Controller) Disconnect(ctx context.Context, accountID string) error {
	if err := c.opts.API.Disconnect(ctx, accountID); err != nil {
		c.opts.Notify.Push(notify.SeverityError, fmt.Sprintf("Falha ao desconectar: %s", err))
		return err
	}
	c.invalidate()
	c.opts.Notify.Push(notify.SeverityInfo, "Desconexão solicitada")
	return nil
}

func (c *Controller) Delete(ctx context.Context, accountID string) error {
	if err := c.opts.API.DeleteAccount(ctx, accountID); err != nil {
		c.opts.Notify.Push(notify.SeverityError, fmt.Sprintf("Falha ao remover conta: %s", err))
		return err
	}

	c.mu.Lock()
	delete(c.statuses, accountID)
	c.clearArtifactLocked(accountID)
	if c.fallbackAcct == accountID {
		c.stopFallbackLocked()
	}
	c.mu.Unlock()

	c.invalidate()
	c.opts.Notify.Push(notify.SeveritySuccess, "Conta removida")
	return nil
}

// RefreshQR busca um artefato fresco via REST, substituindo o atual. Só é
// permitido com o canal conectado; fora disso o evento que resolveria o QR
// nunca chegaria e o refresh mascararia o problema real.
func (c *Controller) RefreshQR(ctx context.Context, accountID string) (model.QRArtifact, error) {
	c.mu.Lock()
	s := c.session
	c.mu.Unlock()

	if s == nil || !s.Connected() {
		return model.QRArtifact{}, ErrNotConnected
	}

	payload, err := c.opts.API.FetchQR(ctx, accountID)
	if err != nil {
		c.opts.Notify.Push(notify.SeverityError, fmt.Sprintf("Falha ao buscar QR code: %s", err))
		return model.QRArtifact{}, err
	}

	uri, err := qr.Normalize(payload, c.opts.QRMinLength)
	if err == nil {
		err = qr.DecodeCheck(uri)
	}
	if err != nil {
		c.log.Warn("link: QR buscado via REST rejeitado",
			zap.String("account_id", accountID),
			zap.Error(err),
		)
		c.opts.Notify.Push(notify.SeverityError, "QR code inválido recebido")
		return model.QRArtifact{}, err
	}

	artifact := model.QRArtifact{
		AccountID:  accountID,
		Payload:    uri,
		ReceivedAt: time.Now(),
	}

	c.mu.Lock()
	c.artifact = &artifact
	if c.statuses[accountID].CanStartLinking() {
		c.statuses[accountID] = model.AccountStatusConnecting
	}
	c.stopFallbackLocked()
	c.mu.Unlock()

	return artifact, nil
}

// armFallbackLocked agenda a busca de QR por REST. Existe no máximo um timer
// de fallback; armar de novo cancela o anterior.
func (c *Controller) armFallbackLocked(accountID string) {
	c.stopFallbackLocked()
	c.fallbackAcct = accountID
	c.fallback = time.AfterFunc(c.opts.QRFallback, func() { c.fallbackFired(accountID) })
}

func (c *Controller) stopFallbackLocked() {
	if c.fallback != nil {
		c.fallback.Stop()
		c.fallback = nil
	}
	c.fallbackAcct = ""
}

func (c *Controller) fallbackFired(accountID string) {
	c.mu.Lock()
	stale := c.fallbackAcct != accountID
	hasArtifact := c.artifact != nil && c.artifact.AccountID == accountID
	status := c.statuses[accountID]
	c.fallback = nil
	c.fallbackAcct = ""
	c.mu.Unlock()

	if stale || hasArtifact || status.Terminal() {
		return
	}

	c.log.Info("link: nenhum evento de QR chegou, buscando via REST",
		zap.String("account_id", accountID),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := c.RefreshQR(ctx, accountID); err != nil {
		c.log.Warn("link: fallback de QR falhou",
			zap.String("account_id", accountID),
			zap.Error(err),
		)
	}
}

// Status devolve a projeção de status conhecida para a conta.
func (c *Controller) Status(accountID string) model.AccountStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statuses[accountID]
}

// Statuses devolve uma cópia de todas as projeções de status.
func (c *Controller) Statuses() map[string]model.AccountStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]model.AccountStatus, len(c.statuses))
	for id, s := range c.statuses {
		out[id] = s
	}
	return out
}

// Artifact devolve o QR atualmente exibível, se houver.
func (c *Controller) Artifact() (model.QRArtifact, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.artifact == nil {
		return model.QRArtifact{}, false
	}
	return *c.artifact, true
}

// ChannelState resume a saúde do canal para o indicador de status.
func (c *Controller) ChannelState() (connected, exhausted bool) {
	c.mu.Lock()
	s := c.session
	c.mu.Unlock()
	if s == nil {
		return false, false
	}
	return s.Connected(), s.Exhausted()
}
