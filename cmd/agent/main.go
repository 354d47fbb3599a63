package main

import (
	"context"
	"log/slog"
	"os"
	"strconv"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"support-mail-agent/handler"
	"support-mail-agent/internal/integrations/dialogflow"
	"support-mail-agent/internal/integrations/gmail"
	"support-mail-agent/internal/integrations/mlservice"
	"support-mail-agent/internal/integrations/paramstore"
	"support-mail-agent/internal/repository"
	"support-mail-agent/internal/usecase"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	stateTable := mustEnv("STATE_TABLE")
	paramPrefix := mustEnv("PARAM_PREFIX")
	project := mustEnv("GCP_PROJECT")
	location := mustEnv("LOCATION")
	agentID := mustEnv("AGENT_ID")
	subjectKey := mustEnv("SUBJECT_KEY")
	signatureModelID := mustEnv("ENTITY_EXTRACT_MODEL_ID")
	topicModelID := mustEnv("TOPIC_CLASSIFY_MODEL_ID")
	maxInputLen := envInt("MAX_INPUT_LENGTH", 256)

	// ---- AWS SDK config ----
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(cfg))
	if err != nil {
		slog.Error("failed to create SSM client", "err", err)
		os.Exit(1)
	}
	store, err := repository.New(awsdynamodb.NewFromConfig(cfg), stateTable)
	if err != nil {
		slog.Error("failed to create state store", "err", err)
		os.Exit(1)
	}
	mailClient, err := gmail.NewClient(ssmClient, paramPrefix)
	if err != nil {
		slog.Error("failed to create mail client", "err", err)
		os.Exit(1)
	}
	nluClient, err := dialogflow.NewClient(ssmClient, paramPrefix, project, location, agentID)
	if err != nil {
		slog.Error("failed to create NLU client", "err", err)
		os.Exit(1)
	}
	textClient, err := mlservice.NewClient(ssmClient, paramPrefix, project, location, signatureModelID, topicModelID)
	if err != nil {
		slog.Error("failed to create prediction client", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	service, err := usecase.NewProcessService(store, mailClient, nluClient, textClient, subjectKey, maxInputLen)
	if err != nil {
		slog.Error("failed to create process service", "err", err)
		os.Exit(1)
	}

	h, err := handler.NewHandler(service)
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
