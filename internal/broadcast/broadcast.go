// Package broadcast notifies subscribed clients that an account's data
// changed (§4.6, §6). It is fire-and-forget: the evaluator hands off a
// StateChange and moves on without waiting on delivery.
package broadcast

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/jarrod-lowe/jmap-service-core/internal/jmaptypes"
)

// StateChange is the notification a Set/ImportEmail/Copy handler may
// emit, forwarded to the broadcaster exactly once in handler-completion
// order (§4.6).
type StateChange struct {
	AccountID jmaptypes.Id
	TypeState jmaptypes.TypeState
	NewState  string
}

// Broadcaster is the external collaborator's contract (§6):
// broadcast_state_change, fire-and-forget.
type Broadcaster interface {
	BroadcastStateChange(ctx context.Context, change StateChange) error
}

// SQSSender abstracts the SQS send operation for dependency inversion,
// mirroring internal/searchindex.SQSSender in the teacher.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSBroadcaster publishes state changes to an SQS queue that fans out to
// connected EventSource/WebSocket clients — an external collaborator this
// core does not implement. Send errors are returned to the caller;
// batch.Evaluator calls it from a goroutine and discards that error, so a
// failed send neither blocks nor fails the method call.
type SQSBroadcaster struct {
	client   SQSSender
	queueURL string
}

// NewSQSBroadcaster wraps an already-configured SQS client.
func NewSQSBroadcaster(client SQSSender, queueURL string) *SQSBroadcaster {
	return &SQSBroadcaster{client: client, queueURL: queueURL}
}

type stateChangeMessage struct {
	AccountID string `json:"accountId"`
	TypeState string `json:"typeState"`
	NewState  string `json:"newState"`
}

// BroadcastStateChange sends change to the configured queue and returns
// any marshal or send error. batch.Evaluator runs it in its own goroutine
// and drops that error without logging it, so a failure never surfaces as
// a method error.
func (b *SQSBroadcaster) BroadcastStateChange(ctx context.Context, change StateChange) error {
	body, err := json.Marshal(stateChangeMessage{
		AccountID: change.AccountID.String(),
		TypeState: string(change.TypeState),
		NewState:  change.NewState,
	})
	if err != nil {
		return err
	}
	bodyStr := string(body)
	_, err = b.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    &b.queueURL,
		MessageBody: &bodyStr,
	})
	return err
}
