package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/guidoenr/soundcircle/internal/engine"
	"github.com/guidoenr/soundcircle/internal/params"
	"github.com/guidoenr/soundcircle/internal/render"
)

const (
	defaultInterval = 100 * time.Millisecond
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = 54 * time.Second
	shutdownWait    = 2 * time.Second
	maxBodyBytes    = 1 << 16
)

// Status is what the running visualizer reports to remote clients.
type Status struct {
	Snapshot engine.Snapshot
	FPS      float64
	Source   string
	Palette  string
}

// Config wires a Server to the visualizer. Store and Status are required.
type Config struct {
	Addr   string
	Store  *params.Store
	Status func() Status
	// SetPalette switches the terminal palette; nil disables the endpoint.
	SetPalette func(name string) error
	// Interval is the websocket push period.
	Interval time.Duration
	Log      *log.Logger
}

// Server exposes the live parameters over HTTP and pushes status to
// websocket clients.
type Server struct {
	cfg      Config
	log      *log.Logger
	upgrader websocket.Upgrader

	register   chan *websocketClient
	unregister chan *websocketClient
	broadcast  chan []byte

	startOnce sync.Once
	started   atomic.Bool
	done      <-chan struct{}
	clients   atomic.Int64
}

type websocketClient struct {
	conn   *websocket.Conn
	send   chan []byte
	server *Server
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Phase   string  `json:"phase"`
	Peak    float64 `json:"peak"`
	Points  int     `json:"points"`
	Settled bool    `json:"settled"`
	FPS     float64 `json:"fps"`
	Source  string  `json:"source"`
	Palette string  `json:"palette"`
}

type statusMessage struct {
	StatusResponse
	Radii []float64 `json:"radii"`
}

// ParamsPatch is a partial parameter update; nil fields are left alone.
type ParamsPatch struct {
	BaseRadius       *float64 `json:"baseRadius,omitempty"`
	MaxDistortion    *float64 `json:"maxDistortion,omitempty"`
	PointCount       *int     `json:"pointCount,omitempty"`
	AudioDecayRate   *float64 `json:"audioDecayRate,omitempty"`
	CircleDecayRate  *float64 `json:"circleDecayRate,omitempty"`
	PulseTime        *float64 `json:"pulseTime,omitempty"`
	PointyDistortion *bool    `json:"pointyDistortion,omitempty"`
	Fill             *bool    `json:"fill,omitempty"`
	MinAudioLevel    *float64 `json:"minAudioLevel,omitempty"`
	MaxAudioLevel    *float64 `json:"maxAudioLevel,omitempty"`
	StrokeWidth      *float64 `json:"strokeWidth,omitempty"`
	Color            *string  `json:"color,omitempty"`
}

// OptionsResponse is the body of GET /api/options.
type OptionsResponse struct {
	Options  []params.Option `json:"options"`
	Palettes []string        `json:"palettes"`
}

type paletteRequest struct {
	Palette string `json:"palette"`
}

// NewServer validates cfg and builds a server. Call Run, or Start and
// Handler when serving elsewhere.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("web: params store is required")
	}
	if cfg.Status == nil {
		return nil, errors.New("web: status func is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.Log == nil {
		cfg.Log = log.New(io.Discard, "", 0)
	}
	return &Server{
		cfg:        cfg,
		log:        cfg.Log,
		register:   make(chan *websocketClient),
		unregister: make(chan *websocketClient),
		broadcast:  make(chan []byte, 16),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}, nil
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/params", s.handleGetParams)
	mux.HandleFunc("POST /api/params", s.handleUpdateParams)
	mux.HandleFunc("GET /api/options", s.handleOptions)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/palette", s.handlePalette)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	return mux
}

// Start runs the websocket hub and status feed until ctx is cancelled.
func (s *Server) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		s.done = ctx.Done()
		s.started.Store(true)
		go s.runHub(ctx)
		go s.statusLoop(ctx)
	})
}

// Run serves on cfg.Addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.Start(ctx)

	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Printf("[web] server starting on http://%s", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("web server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWait)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("web shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("web server: %w", err)
	}
	return nil
}

// Clients returns the number of connected websocket clients.
func (s *Server) Clients() int {
	return int(s.clients.Load())
}

func (s *Server) handleGetParams(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Store.Params())
}

func (s *Server) handleUpdateParams(w http.ResponseWriter, r *http.Request) {
	var patch ParamsPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if patch.Color != nil {
		if _, err := params.ParseColor(*patch.Color); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	p := s.cfg.Store.Update(patch.apply)
	s.log.Printf("[web] parameters updated")
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, OptionsResponse{
		Options:  params.Options(),
		Palettes: render.PaletteNames(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse(s.cfg.Status()))
}

func (s *Server) handlePalette(w http.ResponseWriter, r *http.Request) {
	if s.cfg.SetPalette == nil {
		http.Error(w, "palette switching unavailable", http.StatusNotImplemented)
		return
	}
	var req paletteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.cfg.SetPalette(req.Palette); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.started.Load() {
		http.Error(w, "status feed not running", http.StatusServiceUnavailable)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Printf("[web] websocket upgrade error: %v", err)
		return
	}

	client := &websocketClient{
		conn:   conn,
		send:   make(chan []byte, 256),
		server: s,
	}

	select {
	case s.register <- client:
	case <-s.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// runHub owns the client set.
func (s *Server) runHub(ctx context.Context) {
	clients := make(map[*websocketClient]struct{})
	drop := func(c *websocketClient) {
		if _, ok := clients[c]; ok {
			delete(clients, c)
			close(c.send)
			s.clients.Add(-1)
		}
	}
	for {
		select {
		case <-ctx.Done():
			for c := range clients {
				drop(c)
			}
			return
		case c := <-s.register:
			clients[c] = struct{}{}
			s.clients.Add(1)
		case c := <-s.unregister:
			drop(c)
		case message := <-s.broadcast:
			for c := range clients {
				select {
				case c.send <- message:
				default:
					drop(c)
				}
			}
		}
	}
}

func (s *Server) statusLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.clients.Load() == 0 {
				continue
			}
			st := s.cfg.Status()
			data, err := json.Marshal(statusMessage{
				StatusResponse: statusResponse(st),
				Radii:          st.Snapshot.Radii,
			})
			if err != nil {
				s.log.Printf("[web] encode status: %v", err)
				continue
			}
			select {
			case s.broadcast <- data:
			default:
				// drop if channel full (non-blocking)
			}
		}
	}
}

func (c *websocketClient) readPump() {
	defer func() {
		select {
		case c.server.unregister <- c:
		case <-c.server.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxBodyBytes)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (c *websocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (p ParamsPatch) apply(dst *params.Parameters) {
	setFloat := func(dst *float64, v *float64) {
		if v != nil {
			*dst = *v
		}
	}
	setBool := func(dst *bool, v *bool) {
		if v != nil {
			*dst = *v
		}
	}
	setFloat(&dst.BaseRadius, p.BaseRadius)
	setFloat(&dst.MaxDistortion, p.MaxDistortion)
	setFloat(&dst.AudioDecayRate, p.AudioDecayRate)
	setFloat(&dst.CircleDecayRate, p.CircleDecayRate)
	setFloat(&dst.PulseTime, p.PulseTime)
	setFloat(&dst.MinAudioLevel, p.MinAudioLevel)
	setFloat(&dst.MaxAudioLevel, p.MaxAudioLevel)
	setFloat(&dst.StrokeWidth, p.StrokeWidth)
	setBool(&dst.PointyDistortion, p.PointyDistortion)
	setBool(&dst.Fill, p.Fill)
	if p.PointCount != nil {
		dst.PointCount = *p.PointCount
	}
	if p.Color != nil {
		dst.Color = *p.Color
	}
}

func statusResponse(st Status) StatusResponse {
	return StatusResponse{
		Phase:   st.Snapshot.PhaseName,
		Peak:    st.Snapshot.Peak,
		Points:  st.Snapshot.Points,
		Settled: st.Snapshot.Settled,
		FPS:     st.FPS,
		Source:  st.Source,
		Palette: st.Palette,
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
