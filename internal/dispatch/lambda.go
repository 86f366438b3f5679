package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/service/lambda"

	"github.com/jarrod-lowe/jmap-service-core/internal/broadcast"
	"github.com/jarrod-lowe/jmap-service-core/internal/jmaperr"
	"github.com/jarrod-lowe/jmap-service-core/internal/jmaptypes"
	"github.com/jarrod-lowe/jmap-service-core/internal/reference"
	"github.com/jarrod-lowe/jmap-service-core/internal/request"
	"github.com/jarrod-lowe/jmap-service-core/internal/wire"
)

// LambdaInvoker is the subset of *lambda.Client LambdaMethodInvoker needs,
// narrowed for testability (the same dbclient-style thin-interface
// pattern the teacher uses everywhere it touches an AWS SDK client).
type LambdaInvoker interface {
	Invoke(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

// invocationRequest is the payload shape the per-method Lambda functions
// expect, matching the real jmap-service-core's
// plugin.PluginInvocationRequest.
type invocationRequest struct {
	AccountID string         `json:"accountId"`
	Method    string         `json:"method"`
	Args      map[string]any `json:"args"`
	ClientID  string         `json:"clientId"`
}

type invocationResponse struct {
	MethodResponse struct {
		Name     string         `json:"name"`
		Args     map[string]any `json:"args"`
		ClientID string         `json:"clientId"`
	} `json:"methodResponse"`
	// StateChange is populated by a proxied Set/ImportEmail/Copy function
	// when its write advanced the account's state (§4.6); absent for
	// read-only methods and for writes a function chooses not to publish.
	StateChange *stateChangePayload `json:"stateChange,omitempty"`
}

type stateChangePayload struct {
	AccountID string `json:"accountId"`
	TypeState string `json:"typeState"`
	NewState  string `json:"newState"`
}

// LambdaMethodInvoker proxies any method name not handled locally to an
// external per-method Lambda function, one function name per method
// name, matching the teacher's one-handler-per-method deployment shape.
// It forwards the call's RawArguments without resolving references in
// them, setting only their accountId to the dispatched account, and
// decodes the invocation response's method name, arguments (via
// wire.DecodeObject) and optional stateChange into a Result.
type LambdaMethodInvoker struct {
	Client        LambdaInvoker
	FunctionNames map[string]string
}

// Handle implements Handler.
func (inv *LambdaMethodInvoker) Handle(ctx context.Context, account jmaptypes.Id, call request.Call, lookup reference.Lookup) (*Result, *jmaperr.MethodError) {
	functionName, ok := inv.FunctionNames[call.MethodName]
	if !ok {
		return nil, jmaperr.NewMethodError(jmaperr.MethodErrorUnknownMethod, "no function registered for "+call.MethodName)
	}

	args := call.RawArguments
	if args == nil {
		args = make(map[string]any)
	}
	args["accountId"] = account.String()

	payload, jsonErr := json.Marshal(invocationRequest{
		AccountID: account.String(),
		Method:    call.MethodName,
		Args:      args,
		ClientID:  call.CallID,
	})
	if jsonErr != nil {
		return nil, jmaperr.ServerFail(fmt.Sprintf("marshal invocation payload: %v", jsonErr))
	}

	out, err := inv.Client.Invoke(ctx, &lambda.InvokeInput{
		FunctionName: &functionName,
		Payload:      payload,
	})
	if err != nil {
		return nil, jmaperr.ServerFail(fmt.Sprintf("invoke %s: %v", functionName, err))
	}
	if out.FunctionError != nil {
		return nil, jmaperr.ServerFail(fmt.Sprintf("%s returned an error: %s", functionName, *out.FunctionError))
	}

	var decoded invocationResponse
	if err := json.Unmarshal(out.Payload, &decoded); err != nil {
		return nil, jmaperr.ServerFail(fmt.Sprintf("decode response from %s: %v", functionName, err))
	}
	if decoded.MethodResponse.Name == "error" {
		description, _ := decoded.MethodResponse.Args["description"].(string)
		return nil, jmaperr.ServerFail(description)
	}

	result := &Result{MethodName: decoded.MethodResponse.Name, Object: wire.DecodeObject(decoded.MethodResponse.Args)}
	if decoded.StateChange != nil {
		sc, err := decodeStateChange(decoded.StateChange)
		if err != nil {
			return nil, jmaperr.ServerFail(fmt.Sprintf("%s returned an invalid stateChange: %v", functionName, err))
		}
		result.StateChange = sc
	}
	return result, nil
}

func decodeStateChange(p *stateChangePayload) (*broadcast.StateChange, error) {
	accountID, err := strconv.ParseUint(p.AccountID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("accountId: %w", err)
	}
	typeState, err := jmaptypes.ParseTypeState(p.TypeState)
	if err != nil {
		return nil, err
	}
	return &broadcast.StateChange{
		AccountID: jmaptypes.NewId(accountID),
		TypeState: typeState,
		NewState:  p.NewState,
	}, nil
}
