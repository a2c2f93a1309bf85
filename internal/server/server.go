// Package server exposes the simulation to browsers: an HTTP server with a
// static canvas viewer, and a websocket endpoint that streams frames out
// and accepts pointer/mode commands in.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/flocksim/flocksim/internal/core/events/bus"
	"github.com/flocksim/flocksim/internal/core/geom"
	"github.com/flocksim/flocksim/internal/core/observability/log"
	"github.com/flocksim/flocksim/internal/core/sim"
)

// Config holds viewer server configuration.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`

	// StaticDir is the directory holding the browser viewer.
	StaticDir string `yaml:"static_dir"`

	// ClientBuffer is the per-client frame queue length; slow clients
	// drop frames beyond it.
	ClientBuffer int `yaml:"client_buffer"`

	ReadTimeout     time.Duration `yaml:"-"`
	ShutdownTimeout time.Duration `yaml:"-"`
}

// DefaultConfig returns the default viewer server configuration.
func DefaultConfig() Config {
	return Config{
		ListenAddr:      "127.0.0.1:8080",
		StaticDir:       "web/static",
		ClientBuffer:    8,
		ReadTimeout:     10 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

// command is the envelope of inbound websocket messages.
type command struct {
	Type    string  `json:"type"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Wrapped bool    `json:"wrapped"`
}

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// Server streams simulation frames to websocket viewers and applies their
// pointer and mode commands to the engine.
type Server struct {
	cfg    Config
	engine *sim.Engine
	events bus.EventBus
	logger log.Log
	hub    *wsHub

	httpServer *http.Server
	frameSub   bus.Subscription
}

// New wires a viewer server to an engine and its event bus.
func New(cfg Config, engine *sim.Engine, events bus.EventBus, logger log.Log) *Server {
	if logger == nil {
		logger = log.Provide()
	}
	if cfg.ClientBuffer < 1 {
		cfg.ClientBuffer = DefaultConfig().ClientBuffer
	}
	return &Server{
		cfg:    cfg,
		engine: engine,
		events: events,
		logger: logger.With(log.String("component", "server")),
		hub:    newHub(),
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	sub, err := s.events.Subscribe(sim.EventFrame, s.onFrame)
	if err != nil {
		return err
	}
	s.frameSub = sub

	s.httpServer = &http.Server{
		Addr:        s.cfg.ListenAddr,
		Handler:     s.handler(),
		ReadTimeout: s.cfg.ReadTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("viewer server listening", log.String("addr", s.cfg.ListenAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	s.hub.closeAll()
	_ = s.events.Unsubscribe(s.frameSub)
	return s.httpServer.Shutdown(shutdownCtx)
}

// handler builds the HTTP routing table.
func (s *Server) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveWS)
	mux.HandleFunc("/restart", s.serveRestart)
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(s.cfg.StaticDir))))
	mux.HandleFunc("/", s.serveIndex)
	return mux
}

// onFrame pushes a freshly published frame to every viewer.
func (s *Server) onFrame(ev bus.Event) error {
	frame, ok := ev.Data().(*sim.Frame)
	if !ok {
		return nil
	}
	b, err := frame.Encode()
	if err != nil {
		return err
	}
	if dropped := s.hub.broadcast(b); dropped > 0 {
		s.logger.Debug("slow viewers dropped a frame", log.Int("dropped", dropped))
	}
	return nil
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", log.Error(err))
		return
	}

	client := newWSClient(conn, s.cfg.ClientBuffer)
	s.hub.add(client)
	s.logger.Info("viewer connected",
		log.String("remote_addr", r.RemoteAddr),
		log.Int("viewers", s.hub.count()))

	go client.writePump()

	// Send the current frame immediately so a new viewer does not wait
	// for the next world change.
	if b, err := s.engine.Frame().Encode(); err == nil {
		client.enqueue(b)
	}

	go s.readPump(client, r.RemoteAddr)
}

// readPump applies inbound viewer commands until the connection drops.
func (s *Server) readPump(client *wsClient, remote string) {
	defer func() {
		s.hub.remove(client)
		s.logger.Info("viewer disconnected",
			log.String("remote_addr", remote),
			log.Int("viewers", s.hub.count()))
	}()

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd command
		if err := json.Unmarshal(data, &cmd); err != nil {
			s.logger.Debug("bad viewer command", log.Error(err))
			continue
		}
		switch cmd.Type {
		case "target":
			s.engine.SetTarget(geom.Point{X: cmd.X, Y: cmd.Y})
		case "mode":
			s.engine.SetWrapped(cmd.Wrapped)
		case "restart":
			s.engine.Restart()
		default:
			s.logger.Debug("unknown viewer command", log.String("type", cmd.Type))
		}
	}
}

func (s *Server) serveRestart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	s.engine.Restart()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, s.cfg.StaticDir+"/index.html")
}
