package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"EffortLab/pkg/logger"

	"github.com/gorilla/websocket"
)

var (
	ErrNotConnected = errors.New("device not connected")
	ErrStaleReading = errors.New("device reading is stale")
)

// frame is one reading pushed by the device bridge. Bridges may also send
// a bare number.
type frame struct {
	Value *float64 `json:"v"`
}

// WebsocketSource keeps the latest reading pushed by a device bridge over
// a websocket. Sample never waits on the network.
type WebsocketSource struct {
	url            string
	reconnectDelay time.Duration
	staleAfter     time.Duration
	pingInterval   time.Duration
	dialer         *websocket.Dialer
	log            *logger.Logger
	now            func() time.Time

	mu        sync.RWMutex
	latest    float64
	at        time.Time
	connected bool
	ready     chan struct{}
	readyOnce sync.Once
}

type SourceOption func(*WebsocketSource)

func WithReconnectDelay(d time.Duration) SourceOption {
	return func(s *WebsocketSource) {
		if d > 0 {
			s.reconnectDelay = d
		}
	}
}

// WithStaleAfter sets how old the latest reading may be before Sample fails.
func WithStaleAfter(d time.Duration) SourceOption {
	return func(s *WebsocketSource) {
		if d > 0 {
			s.staleAfter = d
		}
	}
}

func WithPingInterval(d time.Duration) SourceOption {
	return func(s *WebsocketSource) {
		if d > 0 {
			s.pingInterval = d
		}
	}
}

func WithSourceLogger(l *logger.Logger) SourceOption {
	return func(s *WebsocketSource) {
		if l != nil {
			s.log = l
		}
	}
}

func NewWebsocketSource(url string, opts ...SourceOption) *WebsocketSource {
	s := &WebsocketSource{
		url:            url,
		reconnectDelay: 2 * time.Second,
		staleAfter:     time.Second,
		pingInterval:   15 * time.Second,
		dialer:         websocket.DefaultDialer,
		log:            logger.Nop(),
		now:            time.Now,
		ready:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sample returns the most recent reading.
func (s *WebsocketSource) Sample() (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.connected {
		return 0, ErrNotConnected
	}
	if s.at.IsZero() || s.now().Sub(s.at) > s.staleAfter {
		return 0, ErrStaleReading
	}
	return s.latest, nil
}

// WaitReady blocks until the first reading arrives.
func (s *WebsocketSource) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connected reports whether a connection is currently open.
func (s *WebsocketSource) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// Run connects and reads until ctx is cancelled, reconnecting after
// reconnectDelay whenever the connection drops.
func (s *WebsocketSource) Run(ctx context.Context) error {
	for {
		err := s.session(ctx)
		s.setConnected(false)
		if ctx.Err() != nil {
			return nil
		}
		s.log.Warn("device connection lost",
			logger.String("url", s.url),
			logger.Error(err))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.reconnectDelay):
		}
	}
}

func (s *WebsocketSource) session(ctx context.Context) error {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.url, err)
	}
	defer conn.Close()

	s.setConnected(true)
	s.log.Info("device connected", logger.String("url", s.url))

	deadline := func() time.Time { return time.Now().Add(2 * s.pingInterval) }
	_ = conn.SetReadDeadline(deadline())
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(deadline())
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(s.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				// Unblocks ReadMessage.
				_ = conn.Close()
				return
			case <-ticker.C:
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second))
			}
		}
	}()

	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		_ = conn.SetReadDeadline(deadline())
		v, ok := parseFrame(b)
		if !ok {
			continue
		}
		s.store(v)
	}
}

func (s *WebsocketSource) store(v float64) {
	s.mu.Lock()
	s.latest = v
	s.at = s.now()
	s.mu.Unlock()
	s.readyOnce.Do(func() { close(s.ready) })
}

func (s *WebsocketSource) setConnected(c bool) {
	s.mu.Lock()
	s.connected = c
	s.mu.Unlock()
}

func parseFrame(b []byte) (float64, bool) {
	text := strings.TrimSpace(string(b))
	if v, err := strconv.ParseFloat(text, 64); err == nil {
		return v, true
	}
	var f frame
	if err := json.Unmarshal(b, &f); err != nil || f.Value == nil {
		return 0, false
	}
	return *f.Value, true
}
