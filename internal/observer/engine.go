package observer

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/dnslin/aria2-tg-bot/internal/aria2"
)

// Engine wraps an aria2 client and reports every RPC as a span plus an
// engine.calls counter increment tagged with method and outcome.
type Engine struct {
	inner *aria2.Client
	inst  *Instruments
}

// WrapEngine instruments an aria2 client.
func WrapEngine(inner *aria2.Client, inst *Instruments) *Engine {
	return &Engine{inner: inner, inst: inst}
}

func (e *Engine) observe(ctx context.Context, method string, fn func(context.Context) error) error {
	ctx, span := e.inst.Tracer.Start(ctx, method)
	defer span.End()
	err := fn(ctx)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		span.SetStatus(codes.Error, err.Error())
	}
	e.inst.EngineCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("outcome", outcome),
	))
	return err
}

func (e *Engine) AddURI(ctx context.Context, uris []string, options map[string]any) (gid string, err error) {
	err = e.observe(ctx, "aria2.addUri", func(ctx context.Context) error {
		gid, err = e.inner.AddURI(ctx, uris, options)
		return err
	})
	return gid, err
}

func (e *Engine) TellStatus(ctx context.Context, gid string) (snap aria2.Snapshot, err error) {
	err = e.observe(ctx, "aria2.tellStatus", func(ctx context.Context) error {
		snap, err = e.inner.TellStatus(ctx, gid)
		return err
	})
	return snap, err
}

func (e *Engine) TellActive(ctx context.Context) (snaps []aria2.Snapshot, err error) {
	err = e.observe(ctx, "aria2.tellActive", func(ctx context.Context) error {
		snaps, err = e.inner.TellActive(ctx)
		return err
	})
	return snaps, err
}

func (e *Engine) TellWaiting(ctx context.Context, offset, limit int) (snaps []aria2.Snapshot, err error) {
	err = e.observe(ctx, "aria2.tellWaiting", func(ctx context.Context) error {
		snaps, err = e.inner.TellWaiting(ctx, offset, limit)
		return err
	})
	return snaps, err
}

func (e *Engine) TellStopped(ctx context.Context, limit int) (snaps []aria2.Snapshot, err error) {
	err = e.observe(ctx, "aria2.tellStopped", func(ctx context.Context) error {
		snaps, err = e.inner.TellStopped(ctx, limit)
		return err
	})
	return snaps, err
}

func (e *Engine) Pause(ctx context.Context, gid string) error {
	return e.observe(ctx, "aria2.pause", func(ctx context.Context) error {
		return e.inner.Pause(ctx, gid)
	})
}

func (e *Engine) Unpause(ctx context.Context, gid string) error {
	return e.observe(ctx, "aria2.unpause", func(ctx context.Context) error {
		return e.inner.Unpause(ctx, gid)
	})
}

func (e *Engine) Remove(ctx context.Context, gid string) error {
	return e.observe(ctx, "aria2.forceRemove", func(ctx context.Context) error {
		return e.inner.Remove(ctx, gid)
	})
}

func (e *Engine) PauseAll(ctx context.Context) error {
	return e.observe(ctx, "aria2.pauseAll", func(ctx context.Context) error {
		return e.inner.PauseAll(ctx)
	})
}

func (e *Engine) UnpauseAll(ctx context.Context) error {
	return e.observe(ctx, "aria2.unpauseAll", func(ctx context.Context) error {
		return e.inner.UnpauseAll(ctx)
	})
}

func (e *Engine) GlobalStat(ctx context.Context) (gs aria2.GlobalStat, err error) {
	err = e.observe(ctx, "aria2.getGlobalStat", func(ctx context.Context) error {
		gs, err = e.inner.GlobalStat(ctx)
		return err
	})
	return gs, err
}
