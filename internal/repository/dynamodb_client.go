package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"support-mail-agent/internal/domain"
)

const (
	skDedup = "DEDUP#"
	skQueue = "QUEUE#"
	skDoc   = "DOC#"
)

// ErrStateConflict is returned by SaveQueueState when the conditional write
// fails because another invocation saved the thread after our load. The
// caller aborts and relies on redelivery to re-derive from the winning state.
var ErrStateConflict = errors.New("repository: queue state version conflict")

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// Store defines the persistence operations consumed by the processing service.
type Store interface {
	AdmitMessage(ctx context.Context, messageID string) (bool, error)
	LoadQueueState(ctx context.Context, threadID string) (domain.QueueState, error)
	SaveQueueState(ctx context.Context, threadID string, state domain.QueueState) error
	LookupDocumentation(ctx context.Context, topic string) (string, error)
}

// Client wraps a DynamoDB table holding delivery dedup markers, per-thread
// session queue state, and the knowledge base.
type Client struct {
	api       dynamodbAPI
	tableName string
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName}, nil
}

func msgPK(messageID string) string {
	return "MSG#" + messageID
}

func threadPK(threadID string) string {
	return "THREAD#" + threadID
}

func topicPK(topic string) string {
	return "KB#" + topic
}

// AdmitMessage records messageID as processed and reports whether this caller
// won. The conditional put makes the check-and-create atomic: exactly one of
// any number of concurrent callers for the same id gets true.
func (c *Client) AdmitMessage(ctx context.Context, messageID string) (bool, error) {
	if messageID == "" {
		return false, errors.New("repository: AdmitMessage: message id is required")
	}

	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item: map[string]types.AttributeValue{
			"PK":     &types.AttributeValueMemberS{Value: msgPK(messageID)},
			"SK":     &types.AttributeValueMemberS{Value: skDedup},
			"seenAt": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
		},
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return false, nil
		}
		return false, fmt.Errorf("repository: AdmitMessage: %w", err)
	}
	return true, nil
}

// LoadQueueState reads the session queue for a thread. A thread that has never
// been written loads as the zero state with Version 0.
func (c *Client) LoadQueueState(ctx context.Context, threadID string) (domain.QueueState, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: threadPK(threadID)},
			"SK": &types.AttributeValueMemberS{Value: skQueue},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.QueueState{}, fmt.Errorf("repository: LoadQueueState: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.QueueState{}, nil
	}
	return itemToQueueState(out.Item)
}

// SaveQueueState rewrites the full queue state for a thread. The write is
// conditioned on the version read at load time so that two admitted
// invocations for the same thread cannot silently overwrite each other.
func (c *Client) SaveQueueState(ctx context.Context, threadID string, state domain.QueueState) error {
	if threadID == "" {
		return errors.New("repository: SaveQueueState: thread id is required")
	}

	in := &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      queueItem(threadID, state),
	}
	if state.Version == 0 {
		in.ConditionExpression = aws.String("attribute_not_exists(PK)")
	} else {
		in.ConditionExpression = aws.String("version = :v")
		in.ExpressionAttributeValues = map[string]types.AttributeValue{
			":v": &types.AttributeValueMemberN{Value: strconv.FormatInt(state.Version, 10)},
		}
	}

	_, err := c.api.PutItem(ctx, in)
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return fmt.Errorf("repository: SaveQueueState thread %q: %w", threadID, ErrStateConflict)
		}
		return fmt.Errorf("repository: SaveQueueState: %w", err)
	}
	return nil
}

// LookupDocumentation returns the knowledge-base URL for a classified topic,
// or empty when the topic has no entry.
func (c *Client) LookupDocumentation(ctx context.Context, topic string) (string, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: topicPK(topic)},
			"SK": &types.AttributeValueMemberS{Value: skDoc},
		},
	})
	if err != nil {
		return "", fmt.Errorf("repository: LookupDocumentation: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return "", nil
	}
	url, err := strAttr(out.Item, "url")
	if err != nil {
		return "", fmt.Errorf("repository: LookupDocumentation: %w", err)
	}
	return url, nil
}

func queueItem(threadID string, state domain.QueueState) map[string]types.AttributeValue {
	pending := make([]types.AttributeValue, 0, len(state.Pending))
	for _, p := range state.Pending {
		pending = append(pending, &types.AttributeValueMemberM{
			Value: map[string]types.AttributeValue{
				"session":  &types.AttributeValueMemberS{Value: p.Session},
				"response": &types.AttributeValueMemberS{Value: p.Response},
			},
		})
	}
	return map[string]types.AttributeValue{
		"PK":            &types.AttributeValueMemberS{Value: threadPK(threadID)},
		"SK":            &types.AttributeValueMemberS{Value: skQueue},
		"activeSession": &types.AttributeValueMemberS{Value: state.ActiveSession},
		"pending":       &types.AttributeValueMemberL{Value: pending},
		"version":       &types.AttributeValueMemberN{Value: strconv.FormatInt(state.Version+1, 10)},
		"updatedAt":     &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
	}
}

func itemToQueueState(item map[string]types.AttributeValue) (domain.QueueState, error) {
	active, err := strAttr(item, "activeSession")
	if err != nil {
		return domain.QueueState{}, fmt.Errorf("repository: LoadQueueState: %w", err)
	}
	version, err := intAttr(item, "version")
	if err != nil {
		return domain.QueueState{}, fmt.Errorf("repository: LoadQueueState: %w", err)
	}

	state := domain.QueueState{ActiveSession: active, Version: version}

	raw, ok := item["pending"]
	if !ok {
		return state, nil
	}
	list, ok := raw.(*types.AttributeValueMemberL)
	if !ok {
		return domain.QueueState{}, errors.New("repository: LoadQueueState: attribute \"pending\" is not a list")
	}
	for _, entry := range list.Value {
		m, ok := entry.(*types.AttributeValueMemberM)
		if !ok {
			return domain.QueueState{}, errors.New("repository: LoadQueueState: pending entry is not a map")
		}
		session, err := strAttr(m.Value, "session")
		if err != nil {
			return domain.QueueState{}, fmt.Errorf("repository: LoadQueueState: %w", err)
		}
		response, err := strAttr(m.Value, "response")
		if err != nil {
			return domain.QueueState{}, fmt.Errorf("repository: LoadQueueState: %w", err)
		}
		state.Pending = append(state.Pending, domain.PendingSession{Session: session, Response: response})
	}
	return state, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("attribute %q is not a string", key)
	}
	return s.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int64, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("attribute %q is not a number", key)
	}
	parsed, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
