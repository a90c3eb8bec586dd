package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shutterhaus/drivesync/internal/model"
)

// DynamoAPI is the subset of *dynamodb.Client used by DynamoStore.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// DynamoStore stores credentials in a DynamoDB table keyed by user_id.
type DynamoStore struct {
	client    DynamoAPI
	tableName string
	now       func() time.Time
}

// NewDynamoStore creates a new DynamoStore.
func NewDynamoStore(client DynamoAPI, tableName string) *DynamoStore {
	return &DynamoStore{client: client, tableName: tableName, now: time.Now}
}

func userKey(userID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"user_id": &types.AttributeValueMemberS{Value: userID},
	}
}

func (s *DynamoStore) Get(ctx context.Context, userID string) (*model.Credential, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            userKey(userID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get item from DynamoDB: %w", err)
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}

	var cred model.Credential
	if err := attributevalue.UnmarshalMap(out.Item, &cred); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credential: %w", err)
	}
	return &cred, nil
}

// Upsert uses UpdateItem so a missing refresh token leaves the stored one untouched.
func (s *DynamoStore) Upsert(ctx context.Context, cred model.Credential) error {
	expiresAt, err := attributevalue.Marshal(cred.ExpiresAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to marshal expires_at: %w", err)
	}
	updatedAt, err := attributevalue.Marshal(s.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to marshal updated_at: %w", err)
	}

	expr := "SET access_token = :at, expires_at = :exp, updated_at = :now"
	values := map[string]types.AttributeValue{
		":at":  &types.AttributeValueMemberS{Value: cred.AccessToken},
		":exp": expiresAt,
		":now": updatedAt,
	}
	if cred.RefreshToken != "" {
		expr += ", refresh_token = :rt"
		values[":rt"] = &types.AttributeValueMemberS{Value: cred.RefreshToken}
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.tableName),
		Key:                       userKey(cred.UserID),
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeValues: values,
	})
	if err != nil {
		return fmt.Errorf("failed to save credential to DynamoDB: %w", err)
	}
	return nil
}

func (s *DynamoStore) UpdateAccessToken(ctx context.Context, userID, accessToken string, expiresAt time.Time) error {
	exp, err := attributevalue.Marshal(expiresAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to marshal expires_at: %w", err)
	}
	now, err := attributevalue.Marshal(s.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to marshal updated_at: %w", err)
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.tableName),
		Key:                 userKey(userID),
		UpdateExpression:    aws.String("SET access_token = :at, expires_at = :exp, updated_at = :now"),
		ConditionExpression: aws.String("attribute_exists(user_id)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":at":  &types.AttributeValueMemberS{Value: accessToken},
			":exp": exp,
			":now": now,
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to update access token: %w", err)
	}
	return nil
}

func (s *DynamoStore) Delete(ctx context.Context, userID string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       userKey(userID),
	})
	if err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return nil
}

var _ Store = (*DynamoStore)(nil)
