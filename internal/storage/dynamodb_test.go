package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jarrod-lowe/jmap-service-core/internal/jmaptypes"
	"github.com/jarrod-lowe/jmap-service-core/internal/value"
)

// mockDynamoDBClient implements the DynamoDBClient interface for testing,
// mirroring the teacher's function-field mock style.
type mockDynamoDBClient struct {
	queryFunc              func(ctx context.Context, input *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	getItemFunc            func(ctx context.Context, input *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	updateItemFunc         func(ctx context.Context, input *dynamodb.UpdateItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	transactWriteItemsFunc func(ctx context.Context, input *dynamodb.TransactWriteItemsInput, opts ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

func (m *mockDynamoDBClient) Query(ctx context.Context, input *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	if m.queryFunc != nil {
		return m.queryFunc(ctx, input, opts...)
	}
	return &dynamodb.QueryOutput{}, nil
}

func (m *mockDynamoDBClient) GetItem(ctx context.Context, input *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if m.getItemFunc != nil {
		return m.getItemFunc(ctx, input, opts...)
	}
	return &dynamodb.GetItemOutput{}, nil
}

func (m *mockDynamoDBClient) UpdateItem(ctx context.Context, input *dynamodb.UpdateItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	if m.updateItemFunc != nil {
		return m.updateItemFunc(ctx, input, opts...)
	}
	return &dynamodb.UpdateItemOutput{}, nil
}

func (m *mockDynamoDBClient) TransactWriteItems(ctx context.Context, input *dynamodb.TransactWriteItemsInput, opts ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	if m.transactWriteItemsFunc != nil {
		return m.transactWriteItemsFunc(ctx, input, opts...)
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func TestGetDocumentIDsSkipsCounterItemAndParsesSuffix(t *testing.T) {
	client := &mockDynamoDBClient{
		queryFunc: func(ctx context.Context, input *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
			return &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{
				{"pk": &types.AttributeValueMemberS{Value: "ACCOUNT#1"}, "sk": &types.AttributeValueMemberS{Value: "Mailbox#COUNTER"}},
				{"pk": &types.AttributeValueMemberS{Value: "ACCOUNT#1"}, "sk": &types.AttributeValueMemberS{Value: "Mailbox#3"}},
				{"pk": &types.AttributeValueMemberS{Value: "ACCOUNT#1"}, "sk": &types.AttributeValueMemberS{Value: "Mailbox#7"}},
			}}, nil
		},
	}
	store := NewDynamoDBStore(client, "table")

	ids, err := store.GetDocumentIDs(context.Background(), jmaptypes.NewId(1), "Mailbox")
	if err != nil {
		t.Fatalf("GetDocumentIDs: %v", err)
	}
	if len(ids) != 2 || ids[0] != 3 || ids[1] != 7 {
		t.Errorf("ids = %v, want [3 7]", ids)
	}
}

func TestGetPropertyRoundTripsEncodedObject(t *testing.T) {
	obj := value.NewObject(1)
	obj.Append(jmaptypes.PropertyDeviceClientId, value.Text("device-1"))
	encoded := value.EncodeObject(obj)

	client := &mockDynamoDBClient{
		getItemFunc: func(ctx context.Context, input *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
			return &dynamodb.GetItemOutput{Item: map[string]types.AttributeValue{
				"pk":    &types.AttributeValueMemberS{Value: "ACCOUNT#1"},
				"sk":    &types.AttributeValueMemberS{Value: "Mailbox#3"},
				"value": &types.AttributeValueMemberB{Value: encoded},
			}}, nil
		},
	}
	store := NewDynamoDBStore(client, "table")

	got, ok, err := store.GetProperty(context.Background(), jmaptypes.NewId(1), "Mailbox", 3)
	if err != nil {
		t.Fatalf("GetProperty: %v", err)
	}
	if !ok {
		t.Fatal("expected the document to be found")
	}
	deviceID, _ := got.Get(jmaptypes.PropertyDeviceClientId).AsText()
	if deviceID != "device-1" {
		t.Errorf("deviceClientId = %q", deviceID)
	}
}

func TestGetPropertyReportsNotFound(t *testing.T) {
	client := &mockDynamoDBClient{
		getItemFunc: func(ctx context.Context, input *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
			return &dynamodb.GetItemOutput{Item: nil}, nil
		},
	}
	store := NewDynamoDBStore(client, "table")

	_, ok, err := store.GetProperty(context.Background(), jmaptypes.NewId(1), "Mailbox", 99)
	if err != nil {
		t.Fatalf("GetProperty: %v", err)
	}
	if ok {
		t.Error("expected ok=false for a missing document")
	}
}

func TestAssignDocumentIDReturnsUpdatedCounterValue(t *testing.T) {
	client := &mockDynamoDBClient{
		updateItemFunc: func(ctx context.Context, input *dynamodb.UpdateItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
			return &dynamodb.UpdateItemOutput{Attributes: map[string]types.AttributeValue{
				"value": &types.AttributeValueMemberN{Value: "4"},
			}}, nil
		},
	}
	store := NewDynamoDBStore(client, "table")

	docID, err := store.AssignDocumentID(context.Background(), jmaptypes.NewId(1), "Mailbox")
	if err != nil {
		t.Fatalf("AssignDocumentID: %v", err)
	}
	if docID != 4 {
		t.Errorf("docID = %d, want 4", docID)
	}
}

func TestWriteBatchSkipsTransactWhenEmpty(t *testing.T) {
	called := false
	client := &mockDynamoDBClient{
		transactWriteItemsFunc: func(ctx context.Context, input *dynamodb.TransactWriteItemsInput, opts ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
			called = true
			return &dynamodb.TransactWriteItemsOutput{}, nil
		},
	}
	store := NewDynamoDBStore(client, "table")

	if err := store.WriteBatch(context.Background(), NewBatchBuilder(jmaptypes.NewId(1))); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}
	if called {
		t.Error("an empty batch must not issue a TransactWriteItems call")
	}
}

func TestWriteBatchBuildsPutAndDeleteItems(t *testing.T) {
	var gotInput *dynamodb.TransactWriteItemsInput
	client := &mockDynamoDBClient{
		transactWriteItemsFunc: func(ctx context.Context, input *dynamodb.TransactWriteItemsInput, opts ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
			gotInput = input
			return &dynamodb.TransactWriteItemsOutput{}, nil
		},
	}
	store := NewDynamoDBStore(client, "table")

	b := NewBatchBuilder(jmaptypes.NewId(1))
	b.Put("Mailbox", 1, value.NewObject(0))
	b.Delete("Mailbox", 2)

	if err := store.WriteBatch(context.Background(), b); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}
	if len(gotInput.TransactItems) != 3 {
		t.Fatalf("want 3 transact items (state counter + put + delete), got %d", len(gotInput.TransactItems))
	}
	if gotInput.TransactItems[0].Update == nil {
		t.Error("first item should be the state counter Update")
	}
	if gotInput.TransactItems[1].Put == nil {
		t.Error("second item should be a Put")
	}
	if gotInput.TransactItems[2].Delete == nil {
		t.Error("third item should be a Delete")
	}
}

func TestCurrentStateDefaultsToZeroWhenCounterMissing(t *testing.T) {
	client := &mockDynamoDBClient{
		getItemFunc: func(ctx context.Context, input *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
			return &dynamodb.GetItemOutput{Item: nil}, nil
		},
	}
	store := NewDynamoDBStore(client, "table")

	got, err := store.CurrentState(context.Background(), jmaptypes.NewId(1))
	if err != nil {
		t.Fatalf("CurrentState: %v", err)
	}
	if got != "0" {
		t.Errorf("CurrentState = %q, want %q", got, "0")
	}
}

func TestCurrentStateReadsCounterValue(t *testing.T) {
	client := &mockDynamoDBClient{
		getItemFunc: func(ctx context.Context, input *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
			return &dynamodb.GetItemOutput{Item: map[string]types.AttributeValue{
				"pk":    &types.AttributeValueMemberS{Value: "ACCOUNT#1"},
				"sk":    &types.AttributeValueMemberS{Value: "STATE"},
				"value": &types.AttributeValueMemberN{Value: "7"},
			}}, nil
		},
	}
	store := NewDynamoDBStore(client, "table")

	got, err := store.CurrentState(context.Background(), jmaptypes.NewId(1))
	if err != nil {
		t.Fatalf("CurrentState: %v", err)
	}
	if got != "7" {
		t.Errorf("CurrentState = %q, want %q", got, "7")
	}
}

func TestGetPropertiesConcurrentOmitsMissingDocuments(t *testing.T) {
	present := value.NewObject(1)
	present.Append(jmaptypes.PropertyDeviceClientId, value.Text("device-1"))
	encoded := value.EncodeObject(present)

	client := &mockDynamoDBClient{
		getItemFunc: func(ctx context.Context, input *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
			sk := input.Key["sk"].(*types.AttributeValueMemberS).Value
			if sk == "Mailbox#1" {
				return &dynamodb.GetItemOutput{Item: map[string]types.AttributeValue{
					"pk":    &types.AttributeValueMemberS{Value: "ACCOUNT#1"},
					"sk":    &types.AttributeValueMemberS{Value: sk},
					"value": &types.AttributeValueMemberB{Value: encoded},
				}}, nil
			}
			return &dynamodb.GetItemOutput{Item: nil}, nil
		},
	}
	store := NewDynamoDBStore(client, "table")

	results, err := store.GetPropertiesConcurrent(context.Background(), jmaptypes.NewId(1), "Mailbox", []uint32{1, 2})
	if err != nil {
		t.Fatalf("GetPropertiesConcurrent: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("want 1 result, got %d", len(results))
	}
	if _, ok := results[1]; !ok {
		t.Error("doc 1 should be present")
	}
	if _, ok := results[2]; ok {
		t.Error("doc 2 is missing and must be omitted, not errored")
	}
}

func TestWriteBatchPropagatesTransactError(t *testing.T) {
	client := &mockDynamoDBClient{
		transactWriteItemsFunc: func(ctx context.Context, input *dynamodb.TransactWriteItemsInput, opts ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
			return nil, errors.New("transaction conflict")
		},
	}
	store := NewDynamoDBStore(client, "table")

	b := NewBatchBuilder(jmaptypes.NewId(1))
	b.Put("Mailbox", 1, value.NewObject(0))

	if err := store.WriteBatch(context.Background(), b); err == nil {
		t.Fatal("expected the transact error to propagate")
	}
}
