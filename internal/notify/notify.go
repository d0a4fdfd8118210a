// Package notify pushes completion and failure notices for terminal
// history records that have not been announced yet.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/dnslin/aria2-tg-bot/internal/history"
)

// Store is the slice of the history store the notifier needs.
type Store interface {
	ListUnnotifiedTerminal(ctx context.Context) ([]history.Record, error)
	MarkNotified(ctx context.Context, gid string) (bool, error)
}

// Notifier periodically reconciles unnotified terminal records against the
// configured recipients. A record is marked notified once at least one
// recipient received it, so crashes re-deliver rather than drop.
type Notifier struct {
	store      Store
	send       func(ctx context.Context, chatID int64, html string) error
	render     func(history.Record) string
	recipients []int64
	interval   time.Duration
	enabled    bool
	limiter    *rate.Limiter
	logger     *slog.Logger

	runMu   sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithInterval sets the reconciliation cadence.
func WithInterval(d time.Duration) Option {
	return func(n *Notifier) { n.interval = d }
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *slog.Logger) Option {
	return func(n *Notifier) { n.logger = l }
}

// WithEnabled toggles delivery; a disabled notifier ticks but does nothing.
func WithEnabled(enabled bool) Option {
	return func(n *Notifier) { n.enabled = enabled }
}

// New creates a Notifier. send delivers one rendered message; render
// produces the notification body for a record.
func New(store Store, send func(ctx context.Context, chatID int64, html string) error,
	render func(history.Record) string, recipients []int64, opts ...Option) *Notifier {
	n := &Notifier{
		store:      store,
		send:       send,
		render:     render,
		recipients: recipients,
		interval:   60 * time.Second,
		enabled:    true,
		limiter:    rate.NewLimiter(1, 1),
		logger:     nopLogger,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Start launches the reconciliation loop. No-op when already running.
func (n *Notifier) Start() {
	n.runMu.Lock()
	defer n.runMu.Unlock()
	if n.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel
	n.done = make(chan struct{})
	n.running = true
	go n.loop(ctx)
	n.logger.Info("notifier started", "interval", n.interval, "enabled", n.enabled, "recipients", len(n.recipients))
}

// Stop cancels the loop and waits for the in-flight pass to finish.
func (n *Notifier) Stop() {
	n.runMu.Lock()
	defer n.runMu.Unlock()
	if !n.running {
		return
	}
	n.cancel()
	<-n.done
	n.running = false
	n.logger.Info("notifier stopped")
}

func (n *Notifier) loop(ctx context.Context) {
	defer close(n.done)
	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := n.tick(ctx); err != nil && ctx.Err() == nil {
				n.logger.Error("notification pass failed", "error", err)
			}
		}
	}
}

// tick delivers every pending record once.
func (n *Notifier) tick(ctx context.Context) error {
	if !n.enabled || len(n.recipients) == 0 {
		return nil
	}
	pending, err := n.store.ListUnnotifiedTerminal(ctx)
	if err != nil {
		return err
	}
	for _, rec := range pending {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n.deliver(ctx, rec)
	}
	return nil
}

func (n *Notifier) deliver(ctx context.Context, rec history.Record) {
	text := n.render(rec)
	delivered := 0
	for _, chatID := range n.recipients {
		if err := n.limiter.Wait(ctx); err != nil {
			return
		}
		if err := n.send(ctx, chatID, text); err != nil {
			n.logger.Warn("notification send failed", "gid", rec.GID, "chat", chatID, "error", err)
			continue
		}
		delivered++
	}
	if delivered == 0 {
		// Every recipient failed; leave the record pending for the next pass.
		return
	}
	ok, err := n.store.MarkNotified(ctx, rec.GID)
	if err != nil {
		n.logger.Error("mark notified failed", "gid", rec.GID, "error", err)
		return
	}
	if !ok {
		n.logger.Warn("record vanished before mark", "gid", rec.GID)
	}
	n.logger.Info("notification delivered", "gid", rec.GID, "status", rec.Status, "recipients", delivered)
}

var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
