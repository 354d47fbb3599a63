package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"
)

// Watcher renews mailbox push notification delivery.
type Watcher interface {
	Watch(ctx context.Context, mailbox, topicName string) error
}

// WatchHandler re-registers the mailbox watch on a schedule. Watches expire
// after seven days, so the schedule fires daily.
type WatchHandler struct {
	watcher   Watcher
	mailbox   string
	topicName string
}

func NewWatchHandler(watcher Watcher, mailbox, topicName string) (*WatchHandler, error) {
	if watcher == nil {
		return nil, errors.New("handler: watcher must not be nil")
	}
	if mailbox == "" || topicName == "" {
		return nil, errors.New("handler: mailbox and topic name are required")
	}
	return &WatchHandler{watcher: watcher, mailbox: mailbox, topicName: topicName}, nil
}

func (h *WatchHandler) Handle(ctx context.Context, event events.CloudWatchEvent) error {
	if err := h.watcher.Watch(ctx, h.mailbox, h.topicName); err != nil {
		return fmt.Errorf("handler: renew watch: %w", err)
	}
	slog.Info("mailbox watch renewed", "mailbox", h.mailbox, "topic", h.topicName, "trigger", event.ID)
	return nil
}
