package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"support-mail-agent/internal/domain"
	"support-mail-agent/internal/integrations/gmail"
)

const (
	defaultMaxInputLen       = 256
	topicConfidenceThreshold = 0.5
)

// Store is the persistence surface the processing service needs: the dedup
// gate, the per-thread session queue, and the knowledge base.
type Store interface {
	AdmitMessage(ctx context.Context, messageID string) (bool, error)
	LoadQueueState(ctx context.Context, threadID string) (domain.QueueState, error)
	SaveQueueState(ctx context.Context, threadID string, state domain.QueueState) error
	LookupDocumentation(ctx context.Context, topic string) (string, error)
}

// MailClient is the mail transport surface.
type MailClient interface {
	LatestMessageID(ctx context.Context, mailbox string) (string, error)
	MessageInfo(ctx context.Context, mailbox, id string) (domain.MessageInfo, error)
	SendReply(ctx context.Context, threadID, rfc822 string) error
}

// NLUClient executes one turn against the NLU backend.
type NLUClient interface {
	DetectIntent(ctx context.Context, sessionID, utterance string) (domain.Turn, error)
}

// TextService is the preprocessing and classification surface.
type TextService interface {
	ExtractSignature(ctx context.Context, body string) (signature, cleanBody string, err error)
	SegmentSentences(ctx context.Context, body string) ([]string, error)
	ClassifyTopics(ctx context.Context, body string) ([]domain.TopicScore, error)
}

type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeNoMessage Outcome = "no_message"
)

type ProcessInput struct {
	Mailbox   string
	HistoryID string
}

type ProcessOutput struct {
	Outcome   Outcome
	ThreadID  string
	Replied   bool
	Responses []domain.ResponseUnit
}

// ProcessService advances a thread's conversation by exactly one step per
// inbound notification.
type ProcessService struct {
	store       Store
	mail        MailClient
	nlu         NLUClient
	text        TextService
	subjectKey  string
	maxInputLen int
}

func NewProcessService(store Store, mail MailClient, nlu NLUClient, text TextService, subjectKey string, maxInputLen int) (*ProcessService, error) {
	if store == nil {
		return nil, errors.New("usecase: store must not be nil")
	}
	if mail == nil {
		return nil, errors.New("usecase: mail client must not be nil")
	}
	if nlu == nil {
		return nil, errors.New("usecase: nlu client must not be nil")
	}
	if text == nil {
		return nil, errors.New("usecase: text service must not be nil")
	}
	if strings.TrimSpace(subjectKey) == "" {
		return nil, errors.New("usecase: subject key must not be empty")
	}
	if maxInputLen <= 0 {
		maxInputLen = defaultMaxInputLen
	}
	return &ProcessService{
		store:       store,
		mail:        mail,
		nlu:         nlu,
		text:        text,
		subjectKey:  subjectKey,
		maxInputLen: maxInputLen,
	}, nil
}

// Process handles one inbound notification end to end. The queue state save
// is the terminal mutation: a failure at any earlier step leaves the thread
// exactly as the last successful invocation left it, so redelivery of a new
// event is always safe to run from scratch.
func (s *ProcessService) Process(ctx context.Context, in ProcessInput) (ProcessOutput, error) {
	mailbox := strings.TrimSpace(in.Mailbox)
	if mailbox == "" {
		return ProcessOutput{}, newError(ErrorInternal, "empty_mailbox", nil)
	}

	messageID, err := s.mail.LatestMessageID(ctx, mailbox)
	if err != nil {
		return ProcessOutput{}, newError(ErrorBackend, "mail_list_error", err)
	}
	if messageID == "" {
		return ProcessOutput{Outcome: OutcomeNoMessage}, nil
	}

	admitted, err := s.store.AdmitMessage(ctx, messageID)
	if err != nil {
		return ProcessOutput{}, newError(ErrorStoreUnavailable, "dedup_error", err)
	}
	if !admitted {
		slog.Info("duplicate delivery, nothing to do", "messageId", messageID)
		return ProcessOutput{Outcome: OutcomeDuplicate}, nil
	}

	info, err := s.mail.MessageInfo(ctx, mailbox, messageID)
	if err != nil {
		if errors.Is(err, gmail.ErrMalformed) {
			return ProcessOutput{}, newError(ErrorMalformedMessage, "message_parse_error", err)
		}
		return ProcessOutput{}, newError(ErrorBackend, "mail_get_error", err)
	}

	info.Signature, info.CleanBody, err = s.text.ExtractSignature(ctx, info.Body)
	if err != nil {
		return ProcessOutput{}, newError(ErrorBackend, "signature_extract_error", err)
	}

	state, err := s.store.LoadQueueState(ctx, info.ThreadID)
	if err != nil {
		return ProcessOutput{}, newError(ErrorStoreUnavailable, "queue_load_error", err)
	}
	slog.Info("loaded queue state", "threadId", info.ThreadID,
		"activeSession", state.ActiveSession, "pending", len(state.Pending))

	var units []domain.ResponseUnit
	if state.ActiveSession == "" {
		// Topic classification and sentence-level intent matching only
		// apply when no session is awaiting a follow-up.
		info.Sentences, err = s.text.SegmentSentences(ctx, info.CleanBody)
		if err != nil {
			return ProcessOutput{}, newError(ErrorBackend, "sentence_segment_error", err)
		}
		topicUnit, topicErr := s.topicResponse(ctx, info.CleanBody)
		if topicErr != nil {
			return ProcessOutput{}, topicErr
		}
		if topicUnit != nil {
			units = append(units, *topicUnit)
		}
	}

	res, err := s.dispatch(ctx, state, info)
	if err != nil {
		return ProcessOutput{}, newError(ErrorBackend, "nlu_turn_error", err)
	}

	newState, turnUnits := s.advanceQueue(state, res)
	units = append(units, turnUnits...)

	if err := s.store.SaveQueueState(ctx, info.ThreadID, newState); err != nil {
		return ProcessOutput{}, newError(ErrorStoreUnavailable, "queue_save_error", err)
	}
	slog.Info("saved queue state", "threadId", info.ThreadID,
		"activeSession", newState.ActiveSession, "pending", len(newState.Pending))

	out := ProcessOutput{Outcome: OutcomeProcessed, ThreadID: info.ThreadID, Responses: units}

	// Only subject-tagged threads get a reply; everything else is processed
	// silently.
	if !strings.Contains(info.Subject, s.subjectKey) {
		return out, nil
	}
	if err := s.mail.SendReply(ctx, info.ThreadID, buildReply(info, units, newState)); err != nil {
		return ProcessOutput{}, newError(ErrorBackend, "mail_send_error", err)
	}
	out.Replied = true
	return out, nil
}

// topicResponse classifies the message and resolves documentation links for
// confident topics. Topics without a knowledge-base entry are dropped.
func (s *ProcessService) topicResponse(ctx context.Context, cleanBody string) (*domain.ResponseUnit, error) {
	scores, err := s.text.ClassifyTopics(ctx, cleanBody)
	if err != nil {
		return nil, newError(ErrorBackend, "topic_classify_error", err)
	}

	var topics []domain.Topic
	for _, score := range scores {
		if score.Score <= topicConfidenceThreshold {
			continue
		}
		url, err := s.store.LookupDocumentation(ctx, score.Name)
		if err != nil {
			return nil, newError(ErrorStoreUnavailable, "knowledge_lookup_error", err)
		}
		if url == "" {
			continue
		}
		topics = append(topics, domain.Topic{Name: score.Name, DocURL: url})
	}
	if len(topics) == 0 {
		return nil, nil
	}

	var b strings.Builder
	b.WriteString("We have identified the following topics and related resources by using ML to classify your message. <br>")
	for _, t := range topics {
		fmt.Fprintf(&b, "<a href=%q>%s</a><br>", t.DocURL, t.Name)
	}
	return &domain.ResponseUnit{Response: b.String()}, nil
}
