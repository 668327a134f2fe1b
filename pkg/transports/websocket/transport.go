// Package websocket serves a single chat client over a websocket. The client
// sends user lines as text frames and receives assistant replies as JSON.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/harunnryd/hearth/pkg/metrics"
	"github.com/harunnryd/hearth/pkg/transports"
)

var errQueueFull = errors.New("websocket send queue full")

type Config struct {
	ServerAddr     string   `mapstructure:"server_addr"`
	ChatPath       string   `mapstructure:"chat_path"`
	AllowAnyOrigin bool     `mapstructure:"allow_any_origin"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

func (c Config) withDefaults() Config {
	if c.ServerAddr == "" {
		c.ServerAddr = ":8080"
	}
	if c.ChatPath == "" {
		c.ChatPath = "/chat"
	}
	if !c.AllowAnyOrigin && len(c.AllowedOrigins) == 0 {
		c.AllowAnyOrigin = true
	}
	return c
}

// Inbound is the optional JSON form of a user frame. Plain text frames are
// taken as the line itself.
type Inbound struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// Outbound is every frame the server writes.
type Outbound struct {
	Type     string `json:"type"`
	Role     string `json:"role,omitempty"`
	Content  string `json:"content,omitempty"`
	ClientID string `json:"client_id,omitempty"`
}

const (
	TypeReady = "ready"
	TypeReply = "reply"
	TypeUser  = "user"
)

type Option func(*Transport)

func WithObserver(obs metrics.Observer) Option {
	return func(t *Transport) { t.obs = obs }
}

func WithLogger(l *slog.Logger) Option {
	return func(t *Transport) {
		if l != nil {
			t.log = l
		}
	}
}

// Transport accepts one client at a time. Lines queue across reconnects, so a
// client that drops mid-turn can come back to the same conversation.
type Transport struct {
	cfg      Config
	server   *http.Server
	listener net.Listener
	upgrader websocket.Upgrader
	lines    chan string
	done     chan struct{}

	obs metrics.Observer
	log *slog.Logger

	mu     sync.Mutex
	busy   bool
	active *client

	draining atomic.Bool
	stopOnce sync.Once
}

func New(cfg Config, opts ...Option) *Transport {
	cfg = cfg.withDefaults()
	t := &Transport{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		lines: make(chan string, 64),
		done:  make(chan struct{}),
		log:   slog.Default(),
	}
	t.upgrader.CheckOrigin = t.checkOrigin
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Transport) Name() string { return "websocket" }

func (t *Transport) ReadyFields() map[string]any {
	return map[string]any{
		"listen_addr": t.Addr(),
		"chat_path":   t.cfg.ChatPath,
	}
}

// Addr is the bound listen address once Start has returned.
func (t *Transport) Addr() string {
	if t.listener != nil {
		return t.listener.Addr().String()
	}
	return t.cfg.ServerAddr
}

// Handler exposes the routes without binding a listener.
func (t *Transport) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(t.cfg.ChatPath, t)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func (t *Transport) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ln, err := net.Listen("tcp", t.cfg.ServerAddr)
	if err != nil {
		return err
	}
	t.listener = ln
	t.server = &http.Server{
		ReadHeaderTimeout: 5 * time.Second,
		Handler:           t.Handler(),
	}
	go func() {
		select {
		case <-ctx.Done():
			_ = t.Stop()
		case <-t.done:
		}
	}()
	go func() {
		if err := t.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.log.Error("websocket_transport_server_error", "error", err.Error())
		}
	}()
	return nil
}

func (t *Transport) Stop() error {
	t.stopOnce.Do(func() {
		t.draining.Store(true)
		close(t.done)
		if t.server != nil {
			_ = t.server.Close()
		}
		t.mu.Lock()
		c := t.active
		t.active = nil
		t.mu.Unlock()
		if c != nil {
			_ = c.close()
		}
	})
	return nil
}

func (t *Transport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if t.draining.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	t.mu.Lock()
	if t.busy {
		t.mu.Unlock()
		http.Error(w, transports.ErrSessionBusy.Error(), http.StatusConflict)
		return
	}
	t.busy = true
	t.mu.Unlock()

	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.release(nil)
		return
	}
	c := t.attach(conn)
	defer t.release(c)

	for {
		kind, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		select {
		case t.lines <- decodeLine(msg):
		case <-t.done:
			return
		}
	}
}

// ReadLine blocks until a connected client sends a line. It returns io.EOF
// once the transport is stopped.
func (t *Transport) ReadLine(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line := <-t.lines:
		return line, nil
	case <-t.done:
		return "", io.EOF
	}
}

// WriteReply sends to the connected client. A reply that cannot be queued
// for a live client is dropped and logged.
func (t *Transport) WriteReply(text string) error {
	if t.draining.Load() {
		return transports.ErrClosed
	}
	t.mu.Lock()
	c := t.active
	t.mu.Unlock()
	if c == nil {
		t.dropReply("", "no_client")
		return nil
	}
	err := c.enqueue(Outbound{Type: TypeReply, Role: "assistant", Content: text})
	switch {
	case errors.Is(err, errQueueFull):
		t.dropReply(c.id, "queue_full")
		return nil
	case errors.Is(err, transports.ErrClosed) && !t.draining.Load():
		// released between the lookup and the send
		t.dropReply(c.id, "client_released")
		return nil
	}
	return err
}

func (t *Transport) dropReply(clientID, reason string) {
	t.log.Warn("websocket_reply_dropped", "reason", reason, "client_id", clientID)
	metrics.Emit(t.obs, metrics.EventReplyDropped, 1, map[string]string{"transport": t.Name(), "reason": reason}, nil)
}

func (t *Transport) attach(conn *websocket.Conn) *client {
	c := &client{
		id:     uuid.NewString(),
		conn:   conn,
		sendCh: make(chan []byte, 64),
	}
	t.mu.Lock()
	t.active = c
	t.mu.Unlock()
	go c.loop()
	_ = c.enqueue(Outbound{Type: TypeReady, ClientID: c.id})
	t.log.Info("websocket_client_connected", "client_id", c.id)
	metrics.Emit(t.obs, metrics.EventClientConnected, 1, map[string]string{"transport": t.Name()}, map[string]any{"client_id": c.id})
	return c
}

func (t *Transport) release(c *client) {
	t.mu.Lock()
	if c != nil && t.active == c {
		t.active = nil
	}
	t.busy = false
	t.mu.Unlock()
	if c == nil {
		return
	}
	_ = c.close()
	t.log.Info("websocket_client_disconnected", "client_id", c.id)
	metrics.Emit(t.obs, metrics.EventClientDisconnected, 1, map[string]string{"transport": t.Name()}, map[string]any{"client_id": c.id})
}

func (t *Transport) checkOrigin(r *http.Request) bool {
	if t.cfg.AllowAnyOrigin {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	origin = strings.TrimRight(origin, "/")
	originHost := strings.TrimPrefix(origin, "https://")
	originHost = strings.TrimPrefix(originHost, "http://")
	for _, allowed := range t.cfg.AllowedOrigins {
		a := strings.TrimRight(strings.TrimSpace(allowed), "/")
		if a == "" {
			continue
		}
		if strings.HasPrefix(a, "http://") || strings.HasPrefix(a, "https://") {
			if strings.EqualFold(a, origin) {
				return true
			}
			continue
		}
		if strings.EqualFold(a, originHost) {
			return true
		}
	}
	return false
}

func decodeLine(msg []byte) string {
	var in Inbound
	if err := json.Unmarshal(msg, &in); err == nil && in.Type == TypeUser {
		return transports.TrimLine(in.Content)
	}
	return transports.TrimLine(string(msg))
}

type client struct {
	id     string
	conn   *websocket.Conn
	mu     sync.Mutex
	sendCh chan []byte
	closed bool
}

func (c *client) enqueue(msg Outbound) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return transports.ErrClosed
	}
	select {
	case c.sendCh <- b:
		return nil
	default:
		return errQueueFull
	}
}

func (c *client) loop() {
	for msg := range c.sendCh {
		_ = c.conn.WriteMessage(websocket.TextMessage, msg)
	}
}

func (c *client) close() error {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.sendCh)
	}
	c.mu.Unlock()
	return c.conn.Close()
}

var _ transports.LineTransport = (*Transport)(nil)
