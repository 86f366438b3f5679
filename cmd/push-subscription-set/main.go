// Package main implements the PushSubscription/set Lambda handler, the
// exemplar §4.5 fixes as the general Set contract. It is invoked
// directly (Lambda-to-Lambda), the same invocationRequest/
// invocationResponse shape internal/dispatch.LambdaMethodInvoker sends
// to every other per-method function, matching the teacher's
// one-handler-per-method deployment.
package main

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/jarrod-lowe/jmap-service-libs/tracing"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-lambda-go/otellambda"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-lambda-go/otellambda/xrayconfig"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"
	"go.opentelemetry.io/otel"

	"github.com/jarrod-lowe/jmap-service-core/internal/jmaperr"
	"github.com/jarrod-lowe/jmap-service-core/internal/jmaptypes"
	"github.com/jarrod-lowe/jmap-service-core/internal/push"
	"github.com/jarrod-lowe/jmap-service-core/internal/storage"
	"github.com/jarrod-lowe/jmap-service-core/internal/value"
	"github.com/jarrod-lowe/jmap-service-core/internal/wire"
)

var logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
	Level: slog.LevelInfo,
}))

// invocationRequest mirrors internal/dispatch.LambdaMethodInvoker's wire
// shape exactly, since that is the caller this function answers to.
type invocationRequest struct {
	AccountID string         `json:"accountId"`
	Method    string         `json:"method"`
	Args      map[string]any `json:"args"`
	ClientID  string         `json:"clientId"`
}

type methodResponse struct {
	Name     string         `json:"name"`
	Args     map[string]any `json:"args"`
	ClientID string         `json:"clientId"`
}

type invocationResponse struct {
	MethodResponse methodResponse `json:"methodResponse"`
}

// handler holds the already-warmed pipeline, built once at cold start.
type handler struct {
	pipeline *push.Pipeline
}

// handle processes one PushSubscription/set invocation.
func (h *handler) handle(ctx context.Context, req invocationRequest) (invocationResponse, error) {
	tracer := tracing.Tracer("jmap-push-subscription-set")
	ctx, span := tracer.Start(ctx, "PushSubscriptionSetHandler")
	defer span.End()

	if req.Method != "PushSubscription/set" {
		return errorResponse(req.ClientID, "unknownMethod", "this handler only supports PushSubscription/set"), nil
	}

	account, ok := wire.ParseID(req.AccountID)
	if !ok {
		return errorResponse(req.ClientID, "invalidArguments", "accountId must be a numeric id"), nil
	}

	resp, err := h.pipeline.Process(ctx, decodeRequest(account, req.Args), nil)
	if err != nil {
		logger.ErrorContext(ctx, "PushSubscription/set failed",
			slog.String("account_id", req.AccountID),
			slog.String("error", err.Error()),
		)
		return errorResponse(req.ClientID, "serverFail", err.Error()), nil
	}

	logger.InfoContext(ctx, "PushSubscription/set completed",
		slog.String("account_id", req.AccountID),
		slog.Int("created_count", len(resp.Created)),
		slog.Int("updated_count", len(resp.Updated)),
		slog.Int("destroyed_count", len(resp.Destroyed)),
	)

	return invocationResponse{
		MethodResponse: methodResponse{
			Name:     "PushSubscription/set",
			Args:     encodeResponse(account, resp),
			ClientID: req.ClientID,
		},
	}, nil
}

// decodeRequest converts the raw args object into a push.Request,
// splitting create/update/destroy the same way cmd/jmap-api's
// decodeCall does for any other Set-kind method (§4.5's create is keyed
// by client-chosen local id, update by a real Id).
func decodeRequest(account jmaptypes.Id, args map[string]any) *push.Request {
	req := &push.Request{Account: account}
	if createRaw, ok := args["create"].(map[string]any); ok {
		req.Create = make(map[string]*value.Object, len(createRaw))
		for localID, itemRaw := range createRaw {
			if item, ok := itemRaw.(map[string]any); ok {
				req.Create[localID] = wire.DecodeObject(item)
			}
		}
	}
	if updateRaw, ok := args["update"].(map[string]any); ok {
		req.Update = wire.DecodeIDKeyedObjects(updateRaw)
	}
	if destroyRaw, ok := args["destroy"].([]any); ok {
		for _, d := range destroyRaw {
			if s, ok := d.(string); ok {
				if id, ok := wire.ParseID(s); ok {
					req.Destroy = append(req.Destroy, id)
				}
			}
		}
	}
	return req
}

// encodeResponse renders a push.Response into the wire args object
// Mailbox/set's own Lambda renders (see cmd/jmap-api's encodeSetOutcome,
// duplicated here in plain map form since this function answers a
// Lambda-to-Lambda invoke directly rather than going through the batch
// evaluator).
func encodeResponse(account jmaptypes.Id, resp *push.Response) map[string]any {
	created := make(map[string]any, len(resp.Created))
	for localID, id := range resp.Created {
		created[localID] = map[string]any{"id": id.String()}
	}
	notCreated := make(map[string]any, len(resp.NotCreated))
	for localID, setErr := range resp.NotCreated {
		notCreated[localID] = encodeSetError(setErr)
	}
	updated := make(map[string]any, len(resp.Updated))
	for id := range resp.Updated {
		updated[id.String()] = nil
	}
	notUpdated := make(map[string]any, len(resp.NotUpdated))
	for id, setErr := range resp.NotUpdated {
		notUpdated[id.String()] = encodeSetError(setErr)
	}
	destroyed := make([]string, len(resp.Destroyed))
	for i, id := range resp.Destroyed {
		destroyed[i] = id.String()
	}
	notDestroyed := make(map[string]any, len(resp.NotDestroyed))
	for id, setErr := range resp.NotDestroyed {
		notDestroyed[id.String()] = encodeSetError(setErr)
	}

	return map[string]any{
		"accountId":    account.String(),
		"created":      created,
		"notCreated":   notCreated,
		"updated":      updated,
		"notUpdated":   notUpdated,
		"destroyed":    destroyed,
		"notDestroyed": notDestroyed,
	}
}

func encodeSetError(e *jmaperr.SetError) map[string]any {
	out := map[string]any{"type": string(e.Type)}
	if e.Description != "" {
		out["description"] = e.Description
	}
	if len(e.Properties) > 0 {
		props := make([]string, len(e.Properties))
		for i, p := range e.Properties {
			props[i] = p.String()
		}
		out["properties"] = props
	}
	return out
}

func errorResponse(clientID, errorType, description string) invocationResponse {
	return invocationResponse{
		MethodResponse: methodResponse{
			Name:     "error",
			Args:     map[string]any{"type": errorType, "description": description},
			ClientID: clientID,
		},
	}
}

func main() {
	ctx := context.Background()

	tp, err := tracing.Init(ctx)
	if err != nil {
		logger.Error("FATAL: failed to initialize tracer provider", slog.String("error", err.Error()))
		panic(err)
	}
	otel.SetTracerProvider(tp)

	tableName := os.Getenv("DYNAMODB_TABLE")
	if tableName == "" {
		logger.Error("FATAL: DYNAMODB_TABLE environment variable is required")
		panic("DYNAMODB_TABLE environment variable is required")
	}
	maxPushSubscriptions, _ := strconv.Atoi(os.Getenv("MAX_PUSH_SUBSCRIPTIONS"))
	if maxPushSubscriptions == 0 {
		maxPushSubscriptions = 100
	}

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		logger.Error("FATAL: failed to load AWS config", slog.String("error", err.Error()))
		panic(err)
	}
	otelaws.AppendMiddlewares(&cfg.APIOptions)

	dynamoClient := dynamodb.NewFromConfig(cfg)

	warmCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	_, _ = dynamoClient.GetItem(warmCtx, &dynamodb.GetItemInput{
		TableName: aws.String(tableName),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: "WARMUP"},
			"sk": &types.AttributeValueMemberS{Value: "WARMUP"},
		},
	})
	cancel()

	store := storage.NewDynamoDBStore(dynamoClient, tableName)
	h := &handler{pipeline: push.NewPipeline(store, maxPushSubscriptions)}

	lambda.Start(otellambda.InstrumentHandler(h.handle, xrayconfig.WithRecommendedOptions(tp)...))
}
