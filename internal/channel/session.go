package channel

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Eventos de ciclo de vida do próprio canal, despachados localmente para os
// mesmos handlers que recebem eventos do servidor.
const (
	EventConnect      = "connect"
	EventConnectError = "connect_error"
	EventDisconnect   = "disconnect"
)

const (
	maxFrameSize = 1 << 20
	pongWait     = 60 * time.Second
)

var ErrNotConnected = errors.New("channel: não conectado")

type Handler func(data map[string]interface{})

type frame struct {
	Event string                 `json:"event"`
	Data  map[string]interface{} `json:"data,omitempty"`
	AckID int64                  `json:"ackId,omitempty"`
}

type Options struct {
	URL               string
	Token             string
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	ReconnectDelayMax time.Duration
	ConnectTimeout    time.Duration
	PingInterval      time.Duration
	WriteTimeout      time.Duration
	Log               *zap.Logger
}

// Session é dona de exatamente uma conexão realtime. Criada por identidade
// de usuário e destruída junto com ela; nunca é reaproveitada depois de
// fechada. A reconexão é automática e limitada: esgotado o teto de
// tentativas, a sessão fica marcada como esgotada e só uma nova Session
// volta a conectar.
type Session struct {
	opts Options
	log  *zap.Logger

	mu        sync.RWMutex
	handlers  map[string][]Handler
	conn      *websocket.Conn
	connected bool
	closed    bool

	acks    map[int64]chan map[string]interface{}
	nextAck int64

	exhausted atomic.Bool
	send      chan frame
	done      chan struct{}
	wg        sync.WaitGroup
}

func NewSession(opts Options) *Session {
	if opts.ReconnectAttempts <= 0 {
		opts.ReconnectAttempts = 10
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = time.Second
	}
	if opts.ReconnectDelayMax <= 0 {
		opts.ReconnectDelayMax = 5 * time.Second
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 20 * time.Second
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 25 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	return &Session{
		opts:     opts,
		log:      opts.Log,
		handlers: make(map[string][]Handler),
		acks:     make(map[int64]chan map[string]interface{}),
		send:     make(chan frame, 64),
		done:     make(chan struct{}),
	}
}

// On registra um handler para um evento. Handlers são invocados em sequência
// na goroutine de leitura da sessão; nunca dois ao mesmo tempo.
func (s *Session) On(event string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[event] = append(s.handlers[event], h)
}

// RemoveAllHandlers descarta todos os handlers registrados.
func (s *Session) RemoveAllHandlers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = make(map[string][]Handler)
}

func (s *Session) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// Exhausted informa se o teto de reconexões foi atingido.
func (s *Session) Exhausted() bool {
	return s.exhausted.Load()
}

// Start inicia a conexão e o ciclo de reconexão em background.
func (s *Session) Start() {
	s.wg.Add(1)
	go s.run()
}

func (s *Session) run() {
	defer s.wg.Done()

	attempt := 0
	for {
		select {
		case <-s.done:
			return
		default:
		}

		attempt++
		conn, err := s.dial()
		if err != nil {
			s.log.Warn("channel: falha ao conectar",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", s.opts.ReconnectAttempts),
				zap.Error(err),
			)
			s.dispatch(EventConnectError, map[string]interface{}{"error": err.Error()})

			if attempt >= s.opts.ReconnectAttempts {
				s.exhausted.Store(true)
				s.log.Error("channel: teto de reconexões atingido, desistindo",
					zap.Int("attempts", attempt),
				)
				return
			}

			select {
			case <-time.After(s.backoff(attempt)):
			case <-s.done:
				return
			}
			continue
		}

		// Conexão estabelecida zera a contagem de tentativas.
		attempt = 0

		s.mu.Lock()
		s.conn = conn
		s.connected = true
		s.mu.Unlock()

		s.log.Info("channel: conectado", zap.String("url", s.opts.URL))

		writerDone := make(chan struct{})
		s.wg.Add(1)
		go s.writePump(conn, writerDone)

		s.dispatch(EventConnect, nil)

		reason := s.readLoop(conn)

		close(writerDone)
		conn.Close()

		s.mu.Lock()
		s.conn = nil
		s.connected = false
		s.mu.Unlock()

		select {
		case <-s.done:
			return
		default:
		}

		s.log.Warn("channel: desconectado", zap.String("reason", reason))
		s.dispatch(EventDisconnect, map[string]interface{}{"reason": reason})
	}
}

func (s *Session) dial() (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: s.opts.ConnectTimeout}
	header := http.Header{}
	if s.opts.Token != "" {
		header.Set("Authorization", "Bearer "+s.opts.Token)
	}

	conn, resp, err := dialer.Dial(s.opts.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("channel: dial: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("channel: dial: %w", err)
	}
	return conn, nil
}

// backoff cresce exponencialmente a partir do delay base, limitado ao máximo.
func (s *Session) backoff(attempt int) time.Duration {
	d := s.opts.ReconnectDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= s.opts.ReconnectDelayMax {
			return s.opts.ReconnectDelayMax
		}
	}
	if d > s.opts.ReconnectDelayMax {
		d = s.opts.ReconnectDelayMax
	}
	return d
}

func (s *Session) readLoop(conn *websocket.Conn) (reason string) {
	conn.SetReadLimit(maxFrameSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				return err.Error()
			}
			return "connection closed"
		}

		var f frame
		if err := json.Unmarshal(message, &f); err != nil {
			s.log.Warn("channel: frame inválido", zap.Error(err))
			continue
		}

		if f.AckID != 0 && f.Event == "ack" {
			s.resolveAck(f.AckID, f.Data)
			continue
		}

		s.dispatch(f.Event, f.Data)
	}
}

func (s *Session) writePump(conn *websocket.Conn, done chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-s.done:
			conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case f := <-s.send:
			conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if err := conn.WriteJSON(f); err != nil {
				s.log.Warn("channel: falha ao enviar frame",
					zap.String("event", f.Event),
					zap.Error(err),
				)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Session) dispatch(event string, data map[string]interface{}) {
	s.mu.RLock()
	handlers := make([]Handler, len(s.handlers[event]))
	copy(handlers, s.handlers[event])
	s.mu.RUnlock()

	for _, h := range handlers {
		h(data)
	}
}

// Emit envia um evento sem esperar confirmação.
func (s *Session) Emit(event string, data map[string]interface{}) error {
	if !s.Connected() {
		return ErrNotConnected
	}
	select {
	case s.send <- frame{Event: event, Data: data}:
		return nil
	case <-s.done:
		return ErrNotConnected
	}
}

// EmitWithAck envia um evento e aguarda a confirmação de entrega do servidor.
func (s *Session) EmitWithAck(event string, data map[string]interface{}, timeout time.Duration) (map[string]interface{}, error) {
	if !s.Connected() {
		return nil, ErrNotConnected
	}

	s.mu.Lock()
	s.nextAck++
	id := s.nextAck
	ch := make(chan map[string]interface{}, 1)
	s.acks[id] = ch
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.acks, id)
		s.mu.Unlock()
	}()

	select {
	case s.send <- frame{Event: event, Data: data, AckID: id}:
	case <-s.done:
		return nil, ErrNotConnected
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("channel: timeout aguardando ack de %q", event)
	case <-s.done:
		return nil, ErrNotConnected
	}
}

func (s *Session) resolveAck(id int64, data map[string]interface{}) {
	s.mu.Lock()
	ch, ok := s.acks[id]
	delete(s.acks, id)
	s.mu.Unlock()

	if ok {
		select {
		case ch <- data:
		default:
		}
	}
}

// Close encerra a sessão definitivamente. Exatamente um Close tem efeito;
// chamadas seguintes são ignoradas.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	conn := s.conn
	s.mu.Unlock()

	close(s.done)
	if conn != nil {
		conn.Close()
	}
	s.wg.Wait()

	s.RemoveAllHandlers()
	s.log.Info("channel: sessão encerrada")
}
