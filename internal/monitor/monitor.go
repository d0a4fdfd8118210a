// Package monitor live-updates the tracking message of every registered
// download until the task reaches a terminal state.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dnslin/aria2-tg-bot/internal/aria2"
	"github.com/dnslin/aria2-tg-bot/internal/history"
	"github.com/dnslin/aria2-tg-bot/internal/telegram"
)

// maxConcurrentChecks bounds the tellStatus fan-out per tick.
const maxConcurrentChecks = 8

// Engine is the slice of the aria2 client the monitor needs.
type Engine interface {
	TellStatus(ctx context.Context, gid string) (aria2.Snapshot, error)
}

// Messenger edits tracking messages.
type Messenger interface {
	EditMessage(ctx context.Context, chatID, messageID int64, html string, keyboard *telegram.InlineKeyboardMarkup) error
}

// Store receives terminal outcomes.
type Store interface {
	Upsert(ctx context.Context, rec history.Record) (int64, error)
}

type taskKey struct {
	chatID    int64
	messageID int64
}

// Monitor polls registered tasks on a fixed cadence and edits their chat
// messages. Safe for concurrent use.
type Monitor struct {
	engine    Engine
	messenger Messenger
	store     Store
	render    func(aria2.Snapshot) string
	keyboard  func(gid string) *telegram.InlineKeyboardMarkup
	interval  time.Duration
	logger    *slog.Logger
	sleep     func(ctx context.Context, d time.Duration)
	tickHook  func(elapsed time.Duration)

	mu          sync.Mutex
	tasks       map[taskKey]string
	lastContent map[taskKey]string

	runMu   sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithInterval sets the polling cadence.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) { m.interval = d }
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

// WithTickHook installs a callback observing each tick's duration.
func WithTickHook(f func(elapsed time.Duration)) Option {
	return func(m *Monitor) { m.tickHook = f }
}

// WithKeyboard sets the control-keyboard builder attached to live updates.
func WithKeyboard(f func(gid string) *telegram.InlineKeyboardMarkup) Option {
	return func(m *Monitor) { m.keyboard = f }
}

// New creates a Monitor. render produces the message body for a snapshot.
func New(engine Engine, messenger Messenger, store Store, render func(aria2.Snapshot) string, opts ...Option) *Monitor {
	m := &Monitor{
		engine:      engine,
		messenger:   messenger,
		store:       store,
		render:      render,
		keyboard:    func(string) *telegram.InlineKeyboardMarkup { return nil },
		interval:    5 * time.Second,
		logger:      nopLogger,
		tasks:       make(map[taskKey]string),
		lastContent: make(map[taskKey]string),
	}
	m.sleep = func(ctx context.Context, d time.Duration) {
		select {
		case <-ctx.Done():
		case <-time.After(d):
		}
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register starts monitoring gid through the given chat message. A new gid
// for the same message replaces the old one and clears the content cache.
func (m *Monitor) Register(chatID, messageID int64, gid string) {
	key := taskKey{chatID, messageID}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tasks[key] == gid {
		return
	}
	m.tasks[key] = gid
	delete(m.lastContent, key)
	m.logger.Info("task registered", "chat", chatID, "message", messageID, "gid", gid)
}

// Unregister stops monitoring the given chat message.
func (m *Monitor) Unregister(chatID, messageID int64) {
	key := taskKey{chatID, messageID}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropLocked(key)
}

// UnregisterGID stops monitoring gid across all chats.
func (m *Monitor) UnregisterGID(gid string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, g := range m.tasks {
		if g == gid {
			m.dropLocked(key)
		}
	}
}

// FinalizeGID writes a last message to every chat tracking gid, strips the
// keyboard, and stops monitoring it. Used when a command retires the task
// out of band, so the tracked detail view never shows stale live progress.
func (m *Monitor) FinalizeGID(ctx context.Context, gid, html string) {
	m.mu.Lock()
	var keys []taskKey
	for key, g := range m.tasks {
		if g == gid {
			keys = append(keys, key)
		}
	}
	m.mu.Unlock()

	for _, key := range keys {
		m.editFinal(ctx, key, html)
		m.Unregister(key.chatID, key.messageID)
	}
}

func (m *Monitor) dropLocked(key taskKey) {
	if gid, ok := m.tasks[key]; ok {
		delete(m.tasks, key)
		delete(m.lastContent, key)
		m.logger.Info("task unregistered", "chat", key.chatID, "message", key.messageID, "gid", gid)
	}
}

// Start launches the polling loop. Calling Start on a running monitor is a
// no-op.
func (m *Monitor) Start() {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running = true
	go m.loop(ctx)
	m.logger.Info("monitor started", "interval", m.interval)
}

// Stop cancels the loop and waits for the in-flight tick to finish.
func (m *Monitor) Stop() {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if !m.running {
		return
	}
	m.cancel()
	<-m.done
	m.running = false
	m.logger.Info("monitor stopped")
}

func (m *Monitor) loop(ctx context.Context) {
	defer close(m.done)
	for {
		start := time.Now()
		pause := m.interval
		err := m.tick(ctx)
		if m.tickHook != nil {
			m.tickHook(time.Since(start))
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.logger.Error("monitor tick failed", "error", err)
			pause = 2 * m.interval
		} else {
			pause -= time.Since(start)
			if pause < 0 {
				pause = 0
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(pause):
		}
	}
}

// tick checks every registered task once, with a bounded concurrent
// tellStatus fan-out.
func (m *Monitor) tick(ctx context.Context) error {
	m.mu.Lock()
	current := make(map[taskKey]string, len(m.tasks))
	for k, g := range m.tasks {
		current[k] = g
	}
	m.mu.Unlock()

	if len(current) == 0 {
		return nil
	}

	g := new(errgroup.Group)
	g.SetLimit(maxConcurrentChecks)
	for key, gid := range current {
		key, gid := key, gid
		g.Go(func() (err error) {
			// A panic in one check (render, edit path) must not kill the
			// process; surface it as a tick error so the loop backs off.
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("task check panicked",
						"gid", gid, "panic", r, "stack", string(debug.Stack()))
					err = fmt.Errorf("check %s: panic: %v", gid, r)
				}
			}()
			m.check(ctx, key, gid)
			return nil
		})
	}
	return g.Wait()
}

func (m *Monitor) check(ctx context.Context, key taskKey, gid string) {
	snap, err := m.engine.TellStatus(ctx, gid)

	// The entry may have been replaced or removed while the status call
	// was in flight.
	m.mu.Lock()
	still := m.tasks[key] == gid
	m.mu.Unlock()
	if !still {
		return
	}

	// Removal outcomes are recorded by the command that removed the task;
	// the monitor only persists downloads that finished on their own.
	switch {
	case errors.Is(err, aria2.ErrTaskNotFound), err == nil && snap.Status == aria2.StatusRemoved:
		text := fmt.Sprintf("Task <code>%s</code> has completed or was removed.", gid)
		m.editFinal(ctx, key, text)
		m.Unregister(key.chatID, key.messageID)
		return
	case err != nil:
		m.logger.Warn("status check failed", "gid", gid, "error", err)
		return
	}

	if snap.Terminal() {
		m.editFinal(ctx, key, m.render(snap))
		m.Unregister(key.chatID, key.messageID)
		if _, err := m.store.Upsert(ctx, recordFrom(snap)); err != nil {
			m.logger.Error("history write failed", "gid", gid, "error", err)
		}
		return
	}

	text := m.render(snap)
	m.mu.Lock()
	unchanged := m.lastContent[key] == text
	m.mu.Unlock()
	if unchanged {
		return
	}
	m.editLive(ctx, key, gid, text)
}

// editLive pushes a live update and maintains the content cache. Flood
// control is retried once after the advertised wait.
func (m *Monitor) editLive(ctx context.Context, key taskKey, gid, text string) {
	kb := m.keyboard(gid)
	err := m.messenger.EditMessage(ctx, key.chatID, key.messageID, text, kb)
	if wait, ok := telegram.IsRetryAfter(err); ok {
		m.logger.Warn("flood control on edit", "gid", gid, "wait", wait)
		m.sleep(ctx, wait)
		err = m.messenger.EditMessage(ctx, key.chatID, key.messageID, text, kb)
	}
	switch {
	case err == nil, telegram.IsNotModified(err):
		m.mu.Lock()
		if m.tasks[key] == gid {
			m.lastContent[key] = text
		}
		m.mu.Unlock()
	case telegram.IsMessageGone(err):
		m.logger.Warn("tracking message gone", "gid", gid, "chat", key.chatID, "message", key.messageID)
		m.Unregister(key.chatID, key.messageID)
	default:
		m.logger.Warn("live edit failed", "gid", gid, "error", err)
	}
}

// editFinal writes the last state of a finished task and strips the
// keyboard. Failures here are logged only.
func (m *Monitor) editFinal(ctx context.Context, key taskKey, text string) {
	err := m.messenger.EditMessage(ctx, key.chatID, key.messageID, text, nil)
	if wait, ok := telegram.IsRetryAfter(err); ok {
		m.sleep(ctx, wait)
		err = m.messenger.EditMessage(ctx, key.chatID, key.messageID, text, nil)
	}
	if err != nil && !telegram.IsNotModified(err) && !telegram.IsMessageGone(err) {
		m.logger.Warn("final edit failed", "chat", key.chatID, "message", key.messageID, "error", err)
	}
}

// recordFrom converts a terminal snapshot into a history record.
func recordFrom(snap aria2.Snapshot) history.Record {
	status := history.StatusError
	if snap.Status == aria2.StatusComplete {
		status = history.StatusCompleted
	}
	rec := history.Record{
		GID:          snap.GID,
		Name:         snap.Name,
		Status:       status,
		Timestamp:    time.Now(),
		Size:         snap.TotalLength,
		ErrorMessage: snap.ErrorMessage,
	}
	if code, err := strconv.Atoi(snap.ErrorCode); err == nil {
		rec.ErrorCode = code
	}
	if len(snap.Files) > 0 {
		if blob, err := json.Marshal(snap.Files); err == nil {
			rec.Files = blob
		}
	}
	return rec
}

var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
