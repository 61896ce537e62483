// Package client keeps a resilient push channel to the offer server: it dials,
// decodes envelopes, and reconnects with capped exponential backoff after an
// unexpected close.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/offerstream/internal/domain"
	"github.com/alanyoungcy/offerstream/internal/metrics"
	"github.com/jpillora/backoff"
)

// State is the connection lifecycle state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
	Disconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case Disconnecting:
		return "disconnecting"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

const (
	DefaultBaseDelay   = time.Second
	DefaultMaxDelay    = 30 * time.Second
	DefaultMaxAttempts = 10
	DefaultDialTimeout = 15 * time.Second
)

// Delay returns the reconnect delay for a zero-based attempt number using the
// default schedule: 1s doubling up to 30s.
func Delay(attempt int) time.Duration {
	return delayFor(attempt, DefaultBaseDelay, DefaultMaxDelay)
}

func delayFor(attempt int, base, max time.Duration) time.Duration {
	b := &backoff.Backoff{Min: base, Max: max, Factor: 2}
	return b.ForAttempt(float64(attempt))
}

// Listener receives the manager's outputs. Callbacks run on the goroutine
// that produced them, one at a time, in production order.
type Listener interface {
	OnEvent(ev domain.OfferEvent)
	OnStatus(s State)
	OnReconnected()
}

// Options tunes reconnection. Zero fields take their defaults.
type Options struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
	DialTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.BaseDelay <= 0 {
		o.BaseDelay = DefaultBaseDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = DefaultMaxDelay
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = DefaultDialTimeout
	}
	return o
}

type notificationKind int

const (
	notifyStatus notificationKind = iota
	notifyEvent
	notifyReconnected
)

type notification struct {
	kind  notificationKind
	state State
	event domain.OfferEvent
}

// Manager owns a single push channel and its reconnect timer.
//
// epoch is bumped by every explicit Start and Stop; timers and dials started
// under an older epoch are ignored when they complete.
type Manager struct {
	dialer   Dialer
	listener Listener
	opts     Options
	logger   *slog.Logger

	mu            sync.Mutex
	state         State
	conn          Conn
	autoReconnect bool
	attempts      int
	timer         *time.Timer
	epoch         uint64
	life          context.Context
	cancelLife    context.CancelFunc
	pending       []notification

	flushMu sync.Mutex
}

// NewManager creates a disconnected manager.
func NewManager(dialer Dialer, listener Listener, opts Options, logger *slog.Logger) *Manager {
	return &Manager{
		dialer:   dialer,
		listener: listener,
		opts:     opts.withDefaults(),
		logger:   logger.With(slog.String("component", "client")),
		state:    Disconnected,
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Attempts returns the number of automatic reconnect attempts made since the
// last successful connection.
func (m *Manager) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// Start connects the push channel. It is a no-op while connected or
// connecting. An explicit Start cancels any pending reconnect and resets the
// attempt counter. A failed dial is returned and no reconnect is scheduled.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.state == Connected || m.state == Connecting {
		m.mu.Unlock()
		return nil
	}
	m.autoReconnect = true
	m.stopTimerLocked()
	m.attempts = 0
	m.epoch++
	epoch := m.epoch
	if m.cancelLife == nil {
		m.life, m.cancelLife = context.WithCancel(context.Background())
	}
	life := m.life
	m.setStateLocked(Connecting)
	m.mu.Unlock()
	m.flush()

	dctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(life, cancel)
	defer stop()

	return m.connect(dctx, epoch, false)
}

// Stop disables auto-reconnect, cancels any pending timer and in-flight dial,
// and closes the channel.
func (m *Manager) Stop() error {
	m.mu.Lock()
	m.autoReconnect = false
	m.epoch++
	m.stopTimerLocked()
	m.attempts = 0
	if m.cancelLife != nil {
		m.cancelLife()
		m.cancelLife = nil
		m.life = nil
	}
	conn := m.conn
	m.conn = nil
	if conn != nil {
		m.setStateLocked(Disconnecting)
		m.setStateLocked(Disconnected)
	} else if m.state != Disconnected {
		m.setStateLocked(Disconnected)
	}
	m.mu.Unlock()
	m.flush()

	if conn != nil {
		if err := conn.Close(); err != nil {
			return fmt.Errorf("client: stop: %w", err)
		}
	}
	return nil
}

// connect dials and, on success, installs the connection and starts its read
// loop. The caller has already moved the state to Connecting.
func (m *Manager) connect(ctx context.Context, epoch uint64, reconnect bool) error {
	dctx, cancel := context.WithTimeout(ctx, m.opts.DialTimeout)
	conn, err := m.dialer.Dial(dctx)
	cancel()

	m.mu.Lock()
	if epoch != m.epoch {
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		if err != nil {
			return fmt.Errorf("client: connect: %w", err)
		}
		return fmt.Errorf("client: connect: %w", domain.ErrStopped)
	}
	if err != nil {
		m.setStateLocked(Disconnected)
		m.mu.Unlock()
		m.flush()
		return fmt.Errorf("client: connect: %w", err)
	}

	m.conn = conn
	m.attempts = 0
	m.setStateLocked(Connected)
	if reconnect {
		m.pending = append(m.pending, notification{kind: notifyReconnected})
	}
	m.mu.Unlock()
	m.flush()

	m.logger.Info("client: connected", slog.Bool("reconnect", reconnect))
	go m.readLoop(conn)
	return nil
}

func (m *Manager) readLoop(conn Conn) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			m.handleClose(conn, err)
			return
		}

		ev, err := domain.DecodeEvent(data)
		if err != nil {
			m.logger.Warn("client: dropping malformed message", slog.String("error", err.Error()))
			continue
		}

		m.mu.Lock()
		if m.conn != conn {
			m.mu.Unlock()
			return
		}
		m.pending = append(m.pending, notification{kind: notifyEvent, event: ev})
		m.mu.Unlock()
		m.flush()
	}
}

// handleClose reacts to a read failure. Closes initiated by Stop have already
// detached the connection and are ignored.
func (m *Manager) handleClose(conn Conn, cause error) {
	m.mu.Lock()
	if m.conn != conn {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.setStateLocked(Disconnected)
	m.logger.Warn("client: connection closed", slog.String("error", cause.Error()))
	if m.autoReconnect {
		m.scheduleLocked()
	}
	m.mu.Unlock()
	m.flush()

	_ = conn.Close()
}

// scheduleLocked arms the reconnect timer unless the attempt ceiling has been
// reached. Caller holds m.mu.
func (m *Manager) scheduleLocked() {
	if m.attempts >= m.opts.MaxAttempts {
		m.logger.Warn("client: giving up reconnecting", slog.Int("attempts", m.attempts))
		return
	}
	delay := delayFor(m.attempts, m.opts.BaseDelay, m.opts.MaxDelay)
	epoch := m.epoch
	m.logger.Info("client: reconnect scheduled",
		slog.Duration("delay", delay),
		slog.Int("attempt", m.attempts+1),
		slog.Int("max_attempts", m.opts.MaxAttempts),
	)
	m.setStateLocked(Reconnecting)
	m.timer = time.AfterFunc(delay, func() { m.fire(epoch) })
}

func (m *Manager) fire(epoch uint64) {
	m.mu.Lock()
	if epoch != m.epoch || !m.autoReconnect || m.timer == nil {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	m.attempts++
	attempt := m.attempts
	life := m.life
	m.setStateLocked(Connecting)
	m.mu.Unlock()
	m.flush()

	err := m.connect(life, epoch, true)
	if err == nil {
		metrics.ClientReconnectAttempts.WithLabelValues("success").Inc()
		return
	}
	metrics.ClientReconnectAttempts.WithLabelValues("failure").Inc()
	if errors.Is(err, domain.ErrStopped) || errors.Is(err, context.Canceled) {
		return
	}
	m.logger.Warn("client: reconnect attempt failed",
		slog.Int("attempt", attempt),
		slog.String("error", err.Error()),
	)

	m.mu.Lock()
	if epoch == m.epoch && m.autoReconnect && m.timer == nil && m.conn == nil {
		m.scheduleLocked()
	}
	m.mu.Unlock()
	m.flush()
}

// stopTimerLocked cancels the pending reconnect, if any. Caller holds m.mu.
func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// setStateLocked records a transition and queues its notification. Caller
// holds m.mu.
func (m *Manager) setStateLocked(s State) {
	m.state = s
	m.pending = append(m.pending, notification{kind: notifyStatus, state: s})
}

// flush delivers queued notifications in order. Only one goroutine delivers at
// a time; a goroutine that finds delivery in progress leaves its entries for
// the active flusher, which re-checks the queue before returning.
func (m *Manager) flush() {
	for {
		if !m.flushMu.TryLock() {
			return
		}
		for {
			m.mu.Lock()
			batch := m.pending
			m.pending = nil
			m.mu.Unlock()
			if len(batch) == 0 {
				break
			}
			for _, n := range batch {
				m.deliver(n)
			}
		}
		m.flushMu.Unlock()

		m.mu.Lock()
		empty := len(m.pending) == 0
		m.mu.Unlock()
		if empty {
			return
		}
	}
}

func (m *Manager) deliver(n notification) {
	if m.listener == nil {
		return
	}
	switch n.kind {
	case notifyStatus:
		m.listener.OnStatus(n.state)
	case notifyEvent:
		m.listener.OnEvent(n.event)
	case notifyReconnected:
		m.listener.OnReconnected()
	}
}

// ListenerFuncs adapts optional callbacks to the Listener interface.
type ListenerFuncs struct {
	Event       func(domain.OfferEvent)
	Status      func(State)
	Reconnected func()
}

func (l ListenerFuncs) OnEvent(ev domain.OfferEvent) {
	if l.Event != nil {
		l.Event(ev)
	}
}

func (l ListenerFuncs) OnStatus(s State) {
	if l.Status != nil {
		l.Status(s)
	}
}

func (l ListenerFuncs) OnReconnected() {
	if l.Reconnected != nil {
		l.Reconnected()
	}
}
