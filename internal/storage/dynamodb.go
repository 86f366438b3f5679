package storage

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"golang.org/x/sync/errgroup"

	"github.com/jarrod-lowe/jmap-service-core/internal/dynamo"
	"github.com/jarrod-lowe/jmap-service-core/internal/jmaptypes"
	"github.com/jarrod-lowe/jmap-service-core/internal/value"
)

// maxConcurrentDocumentLoads bounds the fan-out GetPropertiesConcurrent
// uses, mirroring cmd/thread-get's errgroup.SetLimit pattern so a single
// request cannot exhaust the DynamoDB connection pool.
const maxConcurrentDocumentLoads = 8

// DynamoDBClient narrows *dynamodb.Client to the four operations this
// store issues, the same dbclient-style thin interface the teacher uses
// in internal/email/repository.go and internal/state/repository.go so a
// fake can stand in for tests without a live table.
type DynamoDBClient interface {
	Query(ctx context.Context, input *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	GetItem(ctx context.Context, input *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, input *dynamodb.UpdateItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	TransactWriteItems(ctx context.Context, input *dynamodb.TransactWriteItemsInput, opts ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// DynamoDBStore implements Store over a single DynamoDB table using the
// key layout in internal/dynamo.
type DynamoDBStore struct {
	client    DynamoDBClient
	tableName string
}

// NewDynamoDBStore wraps an already-configured DynamoDB client.
func NewDynamoDBStore(client DynamoDBClient, tableName string) *DynamoDBStore {
	return &DynamoDBStore{client: client, tableName: tableName}
}

type counterItem struct {
	PK    string `dynamodbav:"pk"`
	SK    string `dynamodbav:"sk"`
	Value uint32 `dynamodbav:"value"`
}

func (s *DynamoDBStore) GetDocumentIDs(ctx context.Context, account jmaptypes.Id, collection string) ([]uint32, error) {
	pk := dynamo.AccountPK(account)
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("#pk = :pk AND begins_with(#sk, :prefix)"),
		ExpressionAttributeNames: map[string]string{
			"#pk": dynamo.AttrPK,
			"#sk": dynamo.AttrSK,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: pk},
			":prefix": &types.AttributeValueMemberS{Value: collection + "#"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("storage: query document ids for %s/%s: %w", pk, collection, err)
	}

	ids := make([]uint32, 0, len(out.Items))
	for _, item := range out.Items {
		var doc documentItem
		if err := attributevalue.UnmarshalMap(item, &doc); err != nil {
			return nil, fmt.Errorf("storage: unmarshal document item: %w", err)
		}
		if doc.SK == dynamo.CounterSK(collection) {
			continue
		}
		suffix := strings.TrimPrefix(doc.SK, collection+"#")
		docID, err := strconv.ParseUint(suffix, 10, 32)
		if err != nil {
			continue
		}
		ids = append(ids, uint32(docID))
	}
	return ids, nil
}

type documentItem struct {
	PK    string `dynamodbav:"pk"`
	SK    string `dynamodbav:"sk"`
	Value []byte `dynamodbav:"value"`
}

func (s *DynamoDBStore) GetProperty(ctx context.Context, account jmaptypes.Id, collection string, docID uint32) (*value.Object, bool, error) {
	key, err := attributevalue.MarshalMap(struct {
		PK string `dynamodbav:"pk"`
		SK string `dynamodbav:"sk"`
	}{
		PK: dynamo.AccountPK(account),
		SK: dynamo.DocumentSK(collection, docID),
	})
	if err != nil {
		return nil, false, fmt.Errorf("storage: marshal key: %w", err)
	}

	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       key,
	})
	if err != nil {
		return nil, false, fmt.Errorf("storage: get item %s/%s/%d: %w", dynamo.AccountPK(account), collection, docID, err)
	}
	if out.Item == nil {
		return nil, false, nil
	}

	var doc documentItem
	if err := attributevalue.UnmarshalMap(out.Item, &doc); err != nil {
		return nil, false, fmt.Errorf("storage: unmarshal document item: %w", err)
	}
	obj, ok := value.DecodeObject(doc.Value)
	if !ok {
		return nil, false, fmt.Errorf("storage: corrupt value blob at %s/%s/%d", dynamo.AccountPK(account), collection, docID)
	}
	return obj, true, nil
}

// GetPropertiesConcurrent loads several documents in one round of bounded
// fan-out, grounded on cmd/thread-get/main.go's errgroup usage. Absent
// documents are simply omitted from the result map rather than erroring,
// matching GetProperty's not-found semantics.
func (s *DynamoDBStore) GetPropertiesConcurrent(ctx context.Context, account jmaptypes.Id, collection string, docIDs []uint32) (map[uint32]*value.Object, error) {
	results := make(map[uint32]*value.Object, len(docIDs))
	var mu sync.Mutex
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(maxConcurrentDocumentLoads)
	for _, id := range docIDs {
		id := id
		eg.Go(func() error {
			obj, ok, err := s.GetProperty(egCtx, account, collection, id)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			mu.Lock()
			results[id] = obj
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *DynamoDBStore) AssignDocumentID(ctx context.Context, account jmaptypes.Id, collection string) (uint32, error) {
	key, err := attributevalue.MarshalMap(struct {
		PK string `dynamodbav:"pk"`
		SK string `dynamodbav:"sk"`
	}{
		PK: dynamo.AccountPK(account),
		SK: dynamo.CounterSK(collection),
	})
	if err != nil {
		return 0, fmt.Errorf("storage: marshal counter key: %w", err)
	}

	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(s.tableName),
		Key:              key,
		UpdateExpression: aws.String("ADD #v :one"),
		ExpressionAttributeNames: map[string]string{
			"#v": "value",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, fmt.Errorf("storage: increment document-id counter for %s/%s: %w", dynamo.AccountPK(account), collection, err)
	}

	var counter struct {
		Value uint32 `dynamodbav:"value"`
	}
	if err := attributevalue.UnmarshalMap(out.Attributes, &counter); err != nil {
		return 0, fmt.Errorf("storage: unmarshal counter result: %w", err)
	}
	return counter.Value, nil
}

// CurrentState reads account's state counter (§6). A missing item means
// the account has never committed a change through WriteBatch, so the
// initial state is "0" — the same starting point AssignDocumentID's
// counters implicitly have before their first ADD.
func (s *DynamoDBStore) CurrentState(ctx context.Context, account jmaptypes.Id) (string, error) {
	key, err := attributevalue.MarshalMap(struct {
		PK string `dynamodbav:"pk"`
		SK string `dynamodbav:"sk"`
	}{
		PK: dynamo.AccountPK(account),
		SK: dynamo.StateSK(),
	})
	if err != nil {
		return "", fmt.Errorf("storage: marshal state key: %w", err)
	}

	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       key,
	})
	if err != nil {
		return "", fmt.Errorf("storage: get state counter for %s: %w", dynamo.AccountPK(account), err)
	}
	if out.Item == nil {
		return "0", nil
	}

	var counter struct {
		Value uint32 `dynamodbav:"value"`
	}
	if err := attributevalue.UnmarshalMap(out.Item, &counter); err != nil {
		return "", fmt.Errorf("storage: unmarshal state counter: %w", err)
	}
	return strconv.FormatUint(uint64(counter.Value), 10), nil
}

func (s *DynamoDBStore) WriteBatch(ctx context.Context, b *BatchBuilder) error {
	if b.IsEmpty() {
		return nil
	}

	items := make([]types.TransactWriteItem, 0, len(b.ops)+1)
	stateKey, err := attributevalue.MarshalMap(struct {
		PK string `dynamodbav:"pk"`
		SK string `dynamodbav:"sk"`
	}{
		PK: dynamo.AccountPK(b.account),
		SK: dynamo.StateSK(),
	})
	if err != nil {
		return fmt.Errorf("storage: marshal state key: %w", err)
	}
	items = append(items, types.TransactWriteItem{
		Update: &types.Update{
			TableName:        aws.String(s.tableName),
			Key:              stateKey,
			UpdateExpression: aws.String("ADD #v :one"),
			ExpressionAttributeNames: map[string]string{
				"#v": "value",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":one": &types.AttributeValueMemberN{Value: "1"},
			},
		},
	})
	for _, op := range b.ops {
		pk := dynamo.AccountPK(b.account)
		sk := dynamo.DocumentSK(op.collection, op.docID)

		if op.flags&FClear != 0 {
			key, err := attributevalue.MarshalMap(struct {
				PK string `dynamodbav:"pk"`
				SK string `dynamodbav:"sk"`
			}{PK: pk, SK: sk})
			if err != nil {
				return fmt.Errorf("storage: marshal delete key: %w", err)
			}
			items = append(items, types.TransactWriteItem{
				Delete: &types.Delete{TableName: aws.String(s.tableName), Key: key},
			})
			continue
		}

		item, err := attributevalue.MarshalMap(documentItem{
			PK:    pk,
			SK:    sk,
			Value: value.EncodeObject(op.object),
		})
		if err != nil {
			return fmt.Errorf("storage: marshal put item: %w", err)
		}
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{TableName: aws.String(s.tableName), Item: item},
		})
	}

	if _, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	}); err != nil {
		return fmt.Errorf("storage: write batch for %s: %w", dynamo.AccountPK(b.account), err)
	}
	return nil
}
