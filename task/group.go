// Package task runs fire-and-forget work. A failure or panic in one task is
// logged and never reaches the caller or other tasks.
package task

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

type Group struct {
	wg  sync.WaitGroup
	log *slog.Logger
}

func NewGroup(logger *slog.Logger) *Group {
	if logger == nil {
		logger = slog.Default()
	}
	return &Group{log: logger}
}

// Go starts fn in its own goroutine. ctx is detached from the caller's
// cancellation so the task outlives the message that started it.
func (g *Group) Go(ctx context.Context, name string, fn func(ctx context.Context) error) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		if err := Run(context.WithoutCancel(ctx), fn); err != nil {
			g.log.Error("background task failed", "task", name, "err", err)
		}
	}()
}

// Wait blocks until every started task has returned.
func (g *Group) Wait() {
	g.wg.Wait()
}

// Run calls fn, turning a panic into an error.
func Run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return fn(ctx)
}
