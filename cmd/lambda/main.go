// Command lambda runs the service on AWS Lambda. LAMBDA_ROLE=api serves the HTTP API
// behind API Gateway; LAMBDA_ROLE=worker consumes job messages from SQS.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/rs/zerolog"

	"github.com/cyderes/employee-batch-service/internal/auth"
	"github.com/cyderes/employee-batch-service/internal/config"
	"github.com/cyderes/employee-batch-service/internal/ingestion"
	"github.com/cyderes/employee-batch-service/internal/queue"
	"github.com/cyderes/employee-batch-service/internal/server"
	"github.com/cyderes/employee-batch-service/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	logger := config.NewLogger(cfg.Logging)

	// created once per container
	store, err := storage.NewStorage(context.Background(), cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize storage")
	}

	role := os.Getenv("LAMBDA_ROLE")
	switch role {
	case "", "api":
		handler, err := apiHandler(cfg, store, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize api")
		}
		lambda.Start(handler)
	case "worker":
		svc := ingestion.NewService(cfg.Ingestion, store, logger, ingestion.WithJobTTL(cfg.Storage.JobTTL))
		lambda.Start(queue.NewWorker(svc, cfg.Ingestion.MaxDuration, logger).Handle)
	default:
		logger.Fatal().Str("role", role).Msg("unknown LAMBDA_ROLE")
	}
}

// apiHandler serves the routes behind an HTTP API with a JWT authorizer. Processing
// must leave the invocation: a detached goroutine is frozen with the container once the
// response is returned, so the API role requires the sqs launcher.
func apiHandler(cfg *config.Config, store storage.Storage, logger zerolog.Logger) (func(context.Context, events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error), error) {
	if cfg.Ingestion.Launcher != "sqs" {
		return nil, fmt.Errorf("INGEST_LAUNCHER=sqs is required in Lambda, got %q", cfg.Ingestion.Launcher)
	}
	launcher, err := queue.NewSQSLauncher(context.Background(), cfg.Queue.URL, cfg.Storage.Region, logger)
	if err != nil {
		return nil, err
	}

	svc := ingestion.NewService(cfg.Ingestion, store, logger,
		ingestion.WithJobTTL(cfg.Storage.JobTTL),
		ingestion.WithLauncher(launcher),
	)
	srv := server.NewServer(cfg.Server, svc, logger,
		server.WithAuth(auth.AuthorizerMiddleware(cfg.Auth.TenantClaim)),
	)

	adapter := httpadapter.NewV2(srv.Handler())
	return adapter.ProxyWithContext, nil
}
