package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/lambda"

	"github.com/jarrod-lowe/jmap-service-core/internal/jmaptypes"
	"github.com/jarrod-lowe/jmap-service-core/internal/request"
)

type fakeLambdaInvoker struct {
	gotInput *lambda.InvokeInput
	output   *lambda.InvokeOutput
	err      error
}

func (f *fakeLambdaInvoker) Invoke(ctx context.Context, params *lambda.InvokeInput, opts ...func(*lambda.Options)) (*lambda.InvokeOutput, error) {
	f.gotInput = params
	if f.err != nil {
		return nil, f.err
	}
	return f.output, nil
}

func invokeOutputFor(name string, args map[string]any) *lambda.InvokeOutput {
	payload, _ := json.Marshal(map[string]any{
		"methodResponse": map[string]any{
			"name":     name,
			"args":     args,
			"clientId": "c1",
		},
	})
	return &lambda.InvokeOutput{Payload: payload}
}

func TestLambdaMethodInvokerReturnsUnknownMethodWhenUnregistered(t *testing.T) {
	inv := &LambdaMethodInvoker{Client: &fakeLambdaInvoker{}, FunctionNames: map[string]string{}}
	call := request.Call{CallID: "c1", MethodName: "Mailbox/get"}
	_, methodErr := inv.Handle(context.Background(), jmaptypes.NewId(1), call, nil)
	if methodErr == nil {
		t.Fatal("expected an error for an unregistered method")
	}
}

func TestLambdaMethodInvokerInvokesAndDecodesResponse(t *testing.T) {
	client := &fakeLambdaInvoker{output: invokeOutputFor("Mailbox/get", map[string]any{"accountId": "1"})}
	inv := &LambdaMethodInvoker{Client: client, FunctionNames: map[string]string{"Mailbox/get": "mailbox-get-fn"}}

	call := request.Call{CallID: "c1", MethodName: "Mailbox/get", RawArguments: map[string]any{"ids": nil}}
	result, methodErr := inv.Handle(context.Background(), jmaptypes.NewId(1), call, nil)
	if methodErr != nil {
		t.Fatalf("unexpected error: %v", methodErr)
	}
	if result.MethodName != "Mailbox/get" {
		t.Errorf("method name = %q", result.MethodName)
	}
	accountID, _ := result.Object.Get(jmaptypes.PropertyAccountID).AsId()
	if accountID != jmaptypes.NewId(1) {
		t.Errorf("decoded accountId = %v", accountID)
	}
	if *client.gotInput.FunctionName != "mailbox-get-fn" {
		t.Errorf("invoked function = %q", *client.gotInput.FunctionName)
	}
}

func TestLambdaMethodInvokerPropagatesInvokeError(t *testing.T) {
	client := &fakeLambdaInvoker{err: errors.New("lambda unavailable")}
	inv := &LambdaMethodInvoker{Client: client, FunctionNames: map[string]string{"Mailbox/get": "mailbox-get-fn"}}
	call := request.Call{CallID: "c1", MethodName: "Mailbox/get"}
	_, methodErr := inv.Handle(context.Background(), jmaptypes.NewId(1), call, nil)
	if methodErr == nil {
		t.Fatal("expected invoke error to propagate")
	}
}

func TestLambdaMethodInvokerDecodesStateChange(t *testing.T) {
	payload, _ := json.Marshal(map[string]any{
		"methodResponse": map[string]any{
			"name":     "Mailbox/set",
			"args":     map[string]any{},
			"clientId": "c1",
		},
		"stateChange": map[string]any{
			"accountId": "1",
			"typeState": "Mailbox",
			"newState":  "5",
		},
	})
	client := &fakeLambdaInvoker{output: &lambda.InvokeOutput{Payload: payload}}
	inv := &LambdaMethodInvoker{Client: client, FunctionNames: map[string]string{"Mailbox/set": "mailbox-set-fn"}}

	call := request.Call{CallID: "c1", MethodName: "Mailbox/set"}
	result, methodErr := inv.Handle(context.Background(), jmaptypes.NewId(1), call, nil)
	if methodErr != nil {
		t.Fatalf("unexpected error: %v", methodErr)
	}
	if result.StateChange == nil {
		t.Fatal("expected a decoded StateChange")
	}
	if result.StateChange.AccountID != jmaptypes.NewId(1) {
		t.Errorf("StateChange.AccountID = %v", result.StateChange.AccountID)
	}
	if result.StateChange.TypeState != jmaptypes.TypeStateMailbox {
		t.Errorf("StateChange.TypeState = %v", result.StateChange.TypeState)
	}
	if result.StateChange.NewState != "5" {
		t.Errorf("StateChange.NewState = %q", result.StateChange.NewState)
	}
}

func TestLambdaMethodInvokerReturnsServerFailOnFunctionError(t *testing.T) {
	payload, _ := json.Marshal(map[string]any{"methodResponse": map[string]any{"name": "error", "args": map[string]any{"description": "boom"}}})
	funcErr := "Unhandled"
	client := &fakeLambdaInvoker{output: &lambda.InvokeOutput{Payload: payload, FunctionError: &funcErr}}
	inv := &LambdaMethodInvoker{Client: client, FunctionNames: map[string]string{"Mailbox/get": "mailbox-get-fn"}}
	call := request.Call{CallID: "c1", MethodName: "Mailbox/get"}
	_, methodErr := inv.Handle(context.Background(), jmaptypes.NewId(1), call, nil)
	if methodErr == nil {
		t.Fatal("expected a serverFail error when the function reports FunctionError")
	}
}
