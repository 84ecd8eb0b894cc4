// Package sink adapts in-process consumers to the router's EventSink
// contract.
package sink

import (
	"chat-presence/contract"
	"chat-presence/domain"
	"chat-presence/domain/event"
	"context"
	"log/slog"
)

// IndexSink feeds user-authored room messages into the full-text index.
// System announcements and private messages are not indexed.
type IndexSink struct {
	index contract.IMessageIndex
	log   *slog.Logger
}

func NewIndexSink(index contract.IMessageIndex, log *slog.Logger) IndexSink {
	return IndexSink{index: index, log: log}
}

func (s IndexSink) Consume(_ context.Context, e event.Event) error {
	broadcast, ok := e.(event.MessageBroadcast)
	if !ok {
		return nil
	}
	msg := broadcast.Message
	if msg.Type != domain.MessageText && msg.Type != domain.MessageFile {
		return nil
	}
	if err := s.index.Index(msg); err != nil {
		s.log.Error("message not indexed", "message_id", msg.ID, "error", err)
		return err
	}
	return nil
}
