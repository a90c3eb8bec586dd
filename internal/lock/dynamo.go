package lock

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shutterhaus/drivesync/internal/model"
)

// DynamoAPI is the subset of *dynamodb.Client used by LockManager.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// LockManager implements Locker on a DynamoDB table keyed by lock_key,
// with expires_at configured as the table's TTL attribute.
type LockManager struct {
	client      DynamoAPI
	tableName   string
	ttlDuration time.Duration
	now         func() time.Time
}

// NewLockManager creates a new LockManager.
func NewLockManager(client DynamoAPI, tableName string) *LockManager {
	return &LockManager{
		client:      client,
		tableName:   tableName,
		ttlDuration: DefaultTTL,
		now:         time.Now,
	}
}

func lockKey(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"lock_key": &types.AttributeValueMemberS{Value: key},
	}
}

func unixAttr(t int64) *types.AttributeValueMemberN {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(t, 10)}
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

func (m *LockManager) AcquireLock(ctx context.Context, key, owner string) (*model.FolderLock, error) {
	now := m.now().Unix()
	l := model.FolderLock{
		Key:       key,
		Owner:     owner,
		ExpiresAt: now + int64(m.ttlDuration.Seconds()),
	}

	item, err := attributevalue.MarshalMap(l)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lock: %w", err)
	}

	// DynamoDB TTL deletion is lazy, so an expired row can still be present.
	_, err = m.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(m.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(lock_key) OR expires_at < :now OR #owner = :owner"),
		ExpressionAttributeNames: map[string]string{
			"#owner": "owner",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now":   unixAttr(now),
			":owner": &types.AttributeValueMemberS{Value: owner},
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}

	return &l, nil
}

func (m *LockManager) Heartbeat(ctx context.Context, key, owner string) (*model.FolderLock, error) {
	expiresAt := m.now().Unix() + int64(m.ttlDuration.Seconds())

	out, err := m.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(m.tableName),
		Key:                 lockKey(key),
		UpdateExpression:    aws.String("SET expires_at = :expires_at"),
		ConditionExpression: aws.String("#owner = :owner"),
		ExpressionAttributeNames: map[string]string{
			"#owner": "owner",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":expires_at": unixAttr(expiresAt),
			":owner":      &types.AttributeValueMemberS{Value: owner},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		if isConditionFailed(err) {
			return nil, ErrNotOwner
		}
		return nil, fmt.Errorf("failed to send heartbeat: %w", err)
	}

	var l model.FolderLock
	if err := attributevalue.UnmarshalMap(out.Attributes, &l); err != nil {
		return nil, fmt.Errorf("failed to unmarshal lock: %w", err)
	}
	return &l, nil
}

func (m *LockManager) ReleaseLock(ctx context.Context, key, owner string) error {
	_, err := m.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(m.tableName),
		Key:                 lockKey(key),
		ConditionExpression: aws.String("#owner = :owner"),
		ExpressionAttributeNames: map[string]string{
			"#owner": "owner",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":owner": &types.AttributeValueMemberS{Value: owner},
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return ErrNotOwner
		}
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

func (m *LockManager) GetLockStatus(ctx context.Context, key string) (*model.FolderLock, error) {
	out, err := m.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(m.tableName),
		Key:            lockKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get lock status: %w", err)
	}
	if out.Item == nil {
		return nil, nil
	}

	var l model.FolderLock
	if err := attributevalue.UnmarshalMap(out.Item, &l); err != nil {
		return nil, fmt.Errorf("failed to unmarshal lock: %w", err)
	}
	if l.ExpiresAt < m.now().Unix() {
		return nil, nil
	}
	return &l, nil
}

var _ Locker = (*LockManager)(nil)
