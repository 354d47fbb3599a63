package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"

	"support-mail-agent/internal/usecase"
)

// pushNotification is the JSON payload of one mailbox push notification,
// base64-transported inside the SNS message body.
type pushNotification struct {
	EmailAddress string      `json:"emailAddress"`
	HistoryID    json.Number `json:"historyId"`
}

// Service is the processing surface the handler drives.
type Service interface {
	Process(ctx context.Context, in usecase.ProcessInput) (usecase.ProcessOutput, error)
}

// Handler adapts SNS-delivered push notifications to the processing service.
type Handler struct {
	service Service
}

func NewHandler(service Service) (*Handler, error) {
	if service == nil {
		return nil, errors.New("handler: service must not be nil")
	}
	return &Handler{service: service}, nil
}

// Handle processes every record in the event. A returned error makes the
// delivery mechanism redeliver the whole event, which is safe: the dedup gate
// blocks reprocessing of anything already handled.
func (h *Handler) Handle(ctx context.Context, event events.SNSEvent) error {
	for _, record := range event.Records {
		if err := h.handleRecord(ctx, record); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) handleRecord(ctx context.Context, record events.SNSEventRecord) error {
	note, err := decodeNotification(record.SNS.Message)
	if err != nil {
		// A payload that cannot be decoded will not decode on redelivery
		// either.
		slog.Error("dropping undecodable notification", "messageId", record.SNS.MessageID, "err", err)
		return nil
	}

	out, err := h.service.Process(ctx, usecase.ProcessInput{
		Mailbox:   note.EmailAddress,
		HistoryID: note.HistoryID.String(),
	})
	if err != nil {
		var usecaseErr *usecase.Error
		if errors.As(err, &usecaseErr) && usecaseErr.Code == usecase.ErrorMalformedMessage {
			slog.Error("malformed message, aborting without reply", "mailbox", note.EmailAddress, "err", err)
			return nil
		}
		return fmt.Errorf("handler: process notification: %w", err)
	}

	slog.Info("notification processed", "mailbox", note.EmailAddress,
		"outcome", string(out.Outcome), "threadId", out.ThreadID, "replied", out.Replied)
	return nil
}

func decodeNotification(message string) (pushNotification, error) {
	data, err := base64.StdEncoding.DecodeString(message)
	if err != nil {
		return pushNotification{}, fmt.Errorf("decode base64 payload: %w", err)
	}
	var note pushNotification
	if err := json.Unmarshal(data, &note); err != nil {
		return pushNotification{}, fmt.Errorf("unmarshal payload: %w", err)
	}
	if note.EmailAddress == "" {
		return pushNotification{}, errors.New("payload missing emailAddress")
	}
	return note, nil
}
