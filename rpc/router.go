package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nicebartender/claudio-bot/chat"
	"github.com/nicebartender/claudio-bot/ws"
)

// Engine is what bridge events are routed to.
type Engine interface {
	HandleMessage(ctx context.Context, msg chat.Message)
	HandleTyping(ctx context.Context, userID, channelID uint64)
}

type Router struct {
	Hub    *ws.Hub
	Engine Engine
}

func NewRouter(hub *ws.Hub, engine Engine) *Router {
	r := &Router{Hub: hub, Engine: engine}
	hub.EventRouter = r.Handle
	return r
}

func (r *Router) Handle(ctx context.Context, client *ws.Client, evt ws.Event) {
	slog.Debug("event", "event", evt.Name, "bridge", client.BridgeID())

	var err error
	switch evt.Name {
	case EventMessageCreate:
		err = r.handleMessageCreate(ctx, evt.Payload)
	case EventTypingStart:
		err = r.handleTypingStart(ctx, evt.Payload)
	case EventTick:
	default:
		slog.Debug("unknown event", "event", evt.Name)
	}
	if err != nil {
		slog.Warn("bad event payload", "event", evt.Name, "bridge", client.BridgeID(), "err", err)
	}
}

func (r *Router) handleMessageCreate(ctx context.Context, payload json.RawMessage) error {
	var m MessageCreate
	if err := json.Unmarshal(payload, &m); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	if m.Channel.ID == 0 || m.Author.ID == 0 {
		return fmt.Errorf("message %d without channel or author", m.ID)
	}
	r.Engine.HandleMessage(ctx, m.Message())
	return nil
}

func (r *Router) handleTypingStart(ctx context.Context, payload json.RawMessage) error {
	var t TypingStart
	if err := json.Unmarshal(payload, &t); err != nil {
		return fmt.Errorf("decode typing: %w", err)
	}
	r.Engine.HandleTyping(ctx, t.UserID, t.ChannelID)
	return nil
}
