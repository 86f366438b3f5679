// Package main implements the JMAP batch-request ingress Lambda: decode
// the RFC 8620 envelope off an API Gateway proxy event, authenticate the
// caller, run it through the batch evaluator, and render the result back
// to wire JSON. This is the one end-to-end entry point this core ships
// (the per-data-type method bodies themselves are external collaborators
// reached through internal/dispatch.LambdaMethodInvoker); it is not a
// general transport layer.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	lambdasvc "github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jarrod-lowe/jmap-service-libs/tracing"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-lambda-go/otellambda"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-lambda-go/otellambda/xrayconfig"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"
	"go.opentelemetry.io/otel"

	"github.com/jarrod-lowe/jmap-service-core/internal/auth"
	"github.com/jarrod-lowe/jmap-service-core/internal/batch"
	"github.com/jarrod-lowe/jmap-service-core/internal/broadcast"
	"github.com/jarrod-lowe/jmap-service-core/internal/dispatch"
	"github.com/jarrod-lowe/jmap-service-core/internal/jmaperr"
	"github.com/jarrod-lowe/jmap-service-core/internal/jmaptypes"
	"github.com/jarrod-lowe/jmap-service-core/internal/push"
	"github.com/jarrod-lowe/jmap-service-core/internal/request"
	"github.com/jarrod-lowe/jmap-service-core/internal/response"
	"github.com/jarrod-lowe/jmap-service-core/internal/storage"
	"github.com/jarrod-lowe/jmap-service-core/internal/value"
	"github.com/jarrod-lowe/jmap-service-core/internal/wire"
)

var logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
	Level: slog.LevelInfo,
}))

var jsonHeaders = map[string]string{"Content-Type": "application/json"}

// Dependencies holds everything the handler needs, built once at cold
// start and reused across invocations (injectable for testing).
type Dependencies struct {
	Evaluator     *batch.Evaluator
	CognitoClient *cognitoidentityprovider.Client
	UserPoolID    string
	Store         storage.Store
}

var deps *Dependencies

// handler decodes one JMAP batch request, evaluates it, and renders the
// response. Per-call failures never reach here as Go errors — the
// evaluator always converts them to MethodError entries (§4.3) — so this
// function's own error return is reserved for malformed envelopes and
// authentication failures that abort the whole request (§7's
// RequestError class).
func handler(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	tracer := tracing.Tracer("jmap-api")
	ctx, span := tracer.Start(ctx, "JmapApiHandler")
	defer span.End()

	primaryID, sub, err := extractIdentity(req)
	if err != nil {
		logger.WarnContext(ctx, "failed to extract caller identity", slog.String("error", err.Error()))
		return events.APIGatewayProxyResponse{StatusCode: 401, Headers: jsonHeaders, Body: `{"error":"Unauthorized"}`}, nil
	}

	var envelope map[string]any
	if err := json.Unmarshal([]byte(req.Body), &envelope); err != nil {
		return requestErrorResponse(400, jmaperr.RequestErrorNotRequest, "request body is not valid JSON"), nil
	}

	jmapReq, err := decodeRequest(envelope)
	if err != nil {
		return requestErrorResponse(400, jmaperr.RequestErrorNotRequest, err.Error()), nil
	}

	token, err := deps.buildToken(ctx, sub, primaryID)
	if err != nil {
		logger.ErrorContext(ctx, "failed to resolve access token", slog.String("error", err.Error()))
		return events.APIGatewayProxyResponse{StatusCode: 500, Headers: jsonHeaders, Body: `{"error":"Internal server error"}`}, nil
	}

	resp := deps.Evaluator.Evaluate(ctx, jmapReq, token)

	body, err := json.Marshal(encodeResponse(resp, primaryID))
	if err != nil {
		logger.ErrorContext(ctx, "failed to marshal response", slog.String("error", err.Error()))
		return events.APIGatewayProxyResponse{StatusCode: 500, Headers: jsonHeaders, Body: `{"error":"Internal server error"}`}, nil
	}

	return events.APIGatewayProxyResponse{StatusCode: 200, Headers: jsonHeaders, Body: string(body)}, nil
}

func (d *Dependencies) buildToken(ctx context.Context, sub string, primaryID jmaptypes.Id) (*auth.CognitoAccessToken, error) {
	state, err := d.Store.CurrentState(ctx, primaryID)
	if err != nil {
		return nil, fmt.Errorf("resolve account state: %w", err)
	}
	return auth.NewCognitoAccessToken(ctx, d.CognitoClient, d.UserPoolID, sub, primaryID, state)
}

// decodeRequest converts the decoded JSON envelope into a Request. A
// malformed method call aborts the whole request with notRequest (§7),
// matching Stalwart's all-or-nothing envelope validation — individual
// call failures only happen after this point, inside the evaluator.
func decodeRequest(envelope map[string]any) (*request.Request, error) {
	rawCalls, _ := envelope["methodCalls"].([]any)
	calls := make([]request.Call, 0, len(rawCalls))
	for i, raw := range rawCalls {
		call, err := decodeCall(raw)
		if err != nil {
			return nil, fmt.Errorf("methodCalls[%d]: %w", i, err)
		}
		calls = append(calls, call)
	}

	createdIDsRaw, hasCreatedIDs := envelope["createdIds"]
	createdIDs := make(map[string]jmaptypes.Id)
	if hasCreatedIDs {
		if m, ok := createdIDsRaw.(map[string]any); ok {
			for localID, v := range m {
				if s, ok := v.(string); ok {
					if id, ok := wire.ParseID(s); ok {
						createdIDs[localID] = id
					}
				}
			}
		}
	}

	return request.NewRequest(calls, createdIDs, hasCreatedIDs), nil
}

// decodeCall converts one [name, args, callId] tuple into a Call,
// additionally splitting the Set contract's create/update/destroy
// sections out of the arguments object for "/set" methods (§4.5).
func decodeCall(raw any) (request.Call, error) {
	tuple, ok := raw.([]any)
	if !ok || len(tuple) != 3 {
		return request.Call{}, fmt.Errorf("a method call must be a 3-element array")
	}
	methodName, ok := tuple[0].(string)
	if !ok || methodName == "" {
		return request.Call{}, fmt.Errorf("method name must be a non-empty string")
	}
	argsRaw, ok := tuple[1].(map[string]any)
	if !ok {
		return request.Call{}, fmt.Errorf("method arguments must be an object")
	}
	callID, ok := tuple[2].(string)
	if !ok {
		return request.Call{}, fmt.Errorf("call id must be a string")
	}

	call := request.Call{
		CallID:       callID,
		MethodName:   methodName,
		Arguments:    wire.DecodeObject(argsRaw),
		RawArguments: argsRaw,
	}

	if strings.HasSuffix(methodName, "/set") {
		if createRaw, ok := argsRaw["create"].(map[string]any); ok {
			call.Create = make(map[string]*value.Object, len(createRaw))
			for localID, itemRaw := range createRaw {
				if item, ok := itemRaw.(map[string]any); ok {
					call.Create[localID] = wire.DecodeObject(item)
				}
			}
		}
		if updateRaw, ok := argsRaw["update"].(map[string]any); ok {
			call.Update = wire.DecodeIDKeyedObjects(updateRaw)
		}
		if destroyRaw, ok := argsRaw["destroy"].([]any); ok {
			for _, d := range destroyRaw {
				if s, ok := d.(string); ok {
					if id, ok := wire.ParseID(s); ok {
						call.Destroy = append(call.Destroy, id)
					}
				}
			}
		}
	}

	return call, nil
}

// extractIdentity resolves the caller's primary account id and the raw
// Cognito sub, the same claims-from-authorizer pattern
// other_examples/.../cmd-jmap-api-main.go.go's extractAccountID uses,
// adapted to this core's numeric Id rather than an opaque string
// account. Mapping a Cognito identity to a provisioned account is
// ordinarily a lookup against an account-provisioning service (an
// external collaborator, spec.md §1); absent one here, a custom claim
// takes priority and an FNV-1a hash of the sub is the deterministic
// fallback so the same caller always lands on the same account.
func extractIdentity(req events.APIGatewayProxyRequest) (jmaptypes.Id, string, error) {
	authorizer := req.RequestContext.Authorizer
	if authorizer == nil {
		return 0, "", fmt.Errorf("no authorizer context")
	}
	claims, ok := authorizer["claims"].(map[string]any)
	if !ok {
		return 0, "", fmt.Errorf("no claims in authorizer")
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return 0, "", fmt.Errorf("sub claim not found or empty")
	}

	if accountClaim, ok := claims["custom:accountId"].(string); ok {
		if id, ok := wire.ParseID(accountClaim); ok {
			return id, sub, nil
		}
	}
	return hashSubToID(sub), sub, nil
}

func hashSubToID(sub string) jmaptypes.Id {
	h := fnv.New64a()
	_, _ = h.Write([]byte(sub))
	return jmaptypes.NewId(h.Sum64())
}

func requestErrorResponse(status int, t jmaperr.RequestErrorType, detail string) events.APIGatewayProxyResponse {
	body, _ := json.Marshal(map[string]any{"type": string(t), "status": status, "detail": detail})
	return events.APIGatewayProxyResponse{StatusCode: status, Headers: jsonHeaders, Body: string(body)}
}

// encodeResponse renders a Response into the RFC 8620 methodResponses
// shape. account is used for the accountId every Set-kind result embeds;
// this core is single-tenant-per-token, so the token's own primary
// account is always the right value even for the PushSubscription
// exemplar, which ignores any accountId the client supplied (§6).
func encodeResponse(resp *response.Response, account jmaptypes.Id) map[string]any {
	methodResponses := make([][]any, 0, len(resp.Entries))
	for _, e := range resp.Entries {
		switch {
		case e.Error != nil:
			methodResponses = append(methodResponses, []any{"error", map[string]any{
				"type":        string(e.Error.Type),
				"description": e.Error.Description,
			}, e.CallID})
		case e.Set != nil:
			methodResponses = append(methodResponses, []any{e.MethodName, encodeSetOutcome(e.Set, account), e.CallID})
		default:
			methodResponses = append(methodResponses, []any{e.MethodName, wire.EncodeObject(e.Result), e.CallID})
		}
	}

	out := map[string]any{
		"methodResponses": methodResponses,
		"sessionState":    resp.State,
	}
	if len(resp.CreatedIDs) > 0 {
		created := make(map[string]string, len(resp.CreatedIDs))
		for localID, id := range resp.CreatedIDs {
			created[localID] = id.String()
		}
		out["createdIds"] = created
	}
	return out
}

func encodeSetOutcome(set *response.SetOutcome, account jmaptypes.Id) map[string]any {
	created := make(map[string]any, len(set.Created))
	for localID, id := range set.Created {
		created[localID] = map[string]any{"id": id.String()}
	}
	notCreated := make(map[string]any, len(set.NotCreated))
	for localID, setErr := range set.NotCreated {
		notCreated[localID] = encodeSetError(setErr)
	}
	updated := make(map[string]any, len(set.Updated))
	for id := range set.Updated {
		updated[id.String()] = nil
	}
	notUpdated := make(map[string]any, len(set.NotUpdated))
	for id, setErr := range set.NotUpdated {
		notUpdated[id.String()] = encodeSetError(setErr)
	}
	destroyed := make([]string, len(set.Destroyed))
	for i, id := range set.Destroyed {
		destroyed[i] = id.String()
	}
	notDestroyed := make(map[string]any, len(set.NotDestroyed))
	for id, setErr := range set.NotDestroyed {
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

// functionNamesFromEnv loads the method-name -> Lambda-function-name
// routing table LambdaMethodInvoker proxies to, the JSON-object
// equivalent of the real jmap-service-core's DynamoDB-backed
// plugin.Registry (internal/plugin in that binary); this core keeps it
// as simple environment configuration since the exemplar's own storage
// layer has nothing to do with routing metadata.
func functionNamesFromEnv() map[string]string {
	raw := os.Getenv("METHOD_FUNCTION_NAMES")
	if raw == "" {
		return map[string]string{}
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		logger.Error("invalid METHOD_FUNCTION_NAMES", slog.String("error", err.Error()))
		return map[string]string{}
	}
	return m
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
	userPoolID := os.Getenv("COGNITO_USER_POOL_ID")
	queueURL := os.Getenv("BROADCAST_QUEUE_URL")

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

	ddbClient := dynamodb.NewFromConfig(cfg)
	warmupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	_, _ = ddbClient.GetItem(warmupCtx, &dynamodb.GetItemInput{
		TableName: &tableName,
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: "WARMUP"},
			"sk": &types.AttributeValueMemberS{Value: "WARMUP"},
		},
	})
	cancel()

	store := storage.NewDynamoDBStore(ddbClient, tableName)
	pipeline := push.NewPipeline(store, maxPushSubscriptions)

	lambdaClient := lambdasvc.NewFromConfig(cfg)
	sqsClient := sqs.NewFromConfig(cfg)
	// The only local handler (PushSubscription/set) never produces a
	// subscribable state change (see internal/push's doc comment), so
	// today every StateChange the evaluator forwards originates from a
	// proxied function via LambdaMethodInvoker.
	broadcaster := broadcast.NewSQSBroadcaster(sqsClient, queueURL)

	dispatcher := &dispatch.Dispatcher{
		Handlers: map[string]dispatch.Handler{
			push.Collection + "/set": &dispatch.PushSetHandler{Pipeline: pipeline},
		},
		Fallback: &dispatch.LambdaMethodInvoker{
			Client:        lambdaClient,
			FunctionNames: functionNamesFromEnv(),
		},
		PrincipalLookupsAllowed: os.Getenv("PRINCIPAL_LOOKUPS_ALLOWED") == "true",
	}

	deps = &Dependencies{
		Evaluator:     &batch.Evaluator{Dispatcher: dispatcher, Broadcaster: broadcaster},
		CognitoClient: cognitoidentityprovider.NewFromConfig(cfg),
		UserPoolID:    userPoolID,
		Store:         store,
	}

	lambda.Start(otellambda.InstrumentHandler(handler, xrayconfig.WithRecommendedOptions(tp)...))
}
