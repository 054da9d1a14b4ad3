package notify

import (
	"sort"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
)

type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
	SeverityInfo    Severity = "info"
)

type Notification struct {
	ID        string    `json:"id"`
	Severity  Severity  `json:"severity"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// Sink recebe notificações no momento em que são publicadas.
type Sink interface {
	Notify(n Notification)
}

// Center mantém a fila de notificações visíveis. Cada notificação expira
// sozinha após a duração de exibição, independente das que chegarem depois.
type Center struct {
	log     *zap.Logger
	node    *snowflake.Node
	display time.Duration
	now     func() time.Time
	after   func(time.Duration, func()) *time.Timer

	mu      sync.Mutex
	visible map[string]Notification
	timers  map[string]*time.Timer
	sinks   []Sink
}

func NewCenter(display time.Duration, log *zap.Logger) (*Center, error) {
	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, err
	}
	if display <= 0 {
		display = 4 * time.Second
	}
	return &Center{
		log:     log,
		node:    node,
		display: display,
		now:     time.Now,
		after:   time.AfterFunc,
		visible: make(map[string]Notification),
		timers:  make(map[string]*time.Timer),
	}, nil
}

func (c *Center) AddSink(s Sink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sinks = append(c.sinks, s)
}

// Push publica uma notificação e agenda sua expiração.
func (c *Center) Push(sev Severity, text string) Notification {
	n := Notification{
		ID:        c.node.Generate().String(),
		Severity:  sev,
		Text:      text,
		CreatedAt: c.now(),
	}

	c.mu.Lock()
	c.visible[n.ID] = n
	c.timers[n.ID] = c.after(c.display, func() { c.expire(n.ID) })
	sinks := make([]Sink, len(c.sinks))
	copy(sinks, c.sinks)
	c.mu.Unlock()

	c.log.Debug("notificação publicada",
		zap.String("id", n.ID),
		zap.String("severity", string(sev)),
		zap.String("text", text),
	)

	for _, s := range sinks {
		s.Notify(n)
	}
	return n
}

func (c *Center) expire(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.visible, id)
	delete(c.timers, id)
}

// Dismiss remove uma notificação antes do prazo.
func (c *Center) Dismiss(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.timers[id]; ok {
		t.Stop()
	}
	delete(c.visible, id)
	delete(c.timers, id)
}

// Visible retorna as notificações ainda exibíveis, em ordem de criação.
// IDs snowflake são monotônicos, então a ordenação lexicográfica por
// valor numérico preserva a ordem de chegada.
func (c *Center) Visible() []Notification {
	c.mu.Lock()
	out := make([]Notification, 0, len(c.visible))
	for _, n := range c.visible {
		out = append(out, n)
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if len(out[i].ID) != len(out[j].ID) {
			return len(out[i].ID) < len(out[j].ID)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Close cancela todos os timers pendentes.
func (c *Center) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, t := range c.timers {
		t.Stop()
		delete(c.timers, id)
	}
	c.visible = make(map[string]Notification)
}
