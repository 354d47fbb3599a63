package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"support-mail-agent/handler"
	"support-mail-agent/internal/integrations/gmail"
	"support-mail-agent/internal/integrations/paramstore"
)

func main() {
	// ---- Configuration (read only here) ----
	paramPrefix := mustEnv("PARAM_PREFIX")
	mailbox := mustEnv("GMAIL_ID")
	topicName := "projects/" + mustEnv("GCP_PROJECT") + "/topics/" + mustEnv("PUBSUB_TOPIC")

	cfg, err := config.LoadDefaultConfig(context.Background())
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	ssmClient, err := paramstore.New(awsssm.NewFromConfig(cfg))
	if err != nil {
		slog.Error("failed to create SSM client", "err", err)
		os.Exit(1)
	}
	mailClient, err := gmail.NewClient(ssmClient, paramPrefix)
	if err != nil {
		slog.Error("failed to create mail client", "err", err)
		os.Exit(1)
	}

	h, err := handler.NewWatchHandler(mailClient, mailbox, topicName)
	if err != nil {
		slog.Error("failed to create watch handler", "err", err)
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
