package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-equity-auth/internal/domain"
)

// CodesAPI is the subset of the DynamoDB client used by CodeStore.
type CodesAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// codeItem is the stored form of a record. TTL is epoch seconds, read by
// DynamoDB's background expiry.
type codeItem struct {
	domain.VerificationRecord
	TTL int64 `dynamodbav:"ttl"`
}

// CodeStore keeps verification records in a table keyed by email.
// PK: email
type CodeStore struct {
	client    CodesAPI
	tableName string
	retention time.Duration
	now       func() time.Time
}

// NewCodeStore returns a store whose items expire retention after the code
// itself expires, so expired records still read as expired for a while.
func NewCodeStore(client CodesAPI, tableName string, retention time.Duration) *CodeStore {
	return &CodeStore{client: client, tableName: tableName, retention: retention, now: time.Now}
}

func (s *CodeStore) Set(ctx context.Context, email string, rec domain.VerificationRecord) error {
	rec.Email = domain.NormalizeEmail(email)
	item, err := attributevalue.MarshalMap(codeItem{
		VerificationRecord: rec,
		TTL:                rec.ExpiresAt.Add(s.retention).Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshal code: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put code: %w", err)
	}
	return nil
}

func (s *CodeStore) Get(ctx context.Context, email string) (*domain.VerificationRecord, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            strKey(fieldEmail, domain.NormalizeEmail(email)),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get code: %w", err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("code not found: %w", domain.ErrNotFound)
	}
	var item codeItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshal code: %w", err)
	}
	// TTL deletion lags by up to two days.
	if item.TTL > 0 && s.now().Unix() >= item.TTL {
		return nil, fmt.Errorf("code not found: %w", domain.ErrNotFound)
	}
	return &item.VerificationRecord, nil
}

func (s *CodeStore) Delete(ctx context.Context, email string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       strKey(fieldEmail, domain.NormalizeEmail(email)),
	})
	if err != nil {
		return fmt.Errorf("delete code: %w", err)
	}
	return nil
}

func (s *CodeStore) ResetAttempts(ctx context.Context, email string) error {
	ue, err := buildUpdateExpr(map[string]interface{}{fieldAttempts: 0})
	if err != nil {
		return err
	}
	ue.Names["#pk"] = fieldEmail
	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.tableName),
		Key:                       strKey(fieldEmail, domain.NormalizeEmail(email)),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String("attribute_exists(#pk)"),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	if err != nil && !isConditionFailed(err) {
		return fmt.Errorf("reset attempts: %w", err)
	}
	return nil
}

// RecordAttempt increments the counter server-side and returns the new value.
// A missing record, or one that no longer holds code, yields
// domain.ErrNotFound rather than being touched.
func (s *CodeStore) RecordAttempt(ctx context.Context, email, code string) (int, error) {
	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.tableName),
		Key:                 strKey(fieldEmail, domain.NormalizeEmail(email)),
		UpdateExpression:    aws.String("ADD #a :one"),
		ConditionExpression: aws.String("#c = :code"),
		ExpressionAttributeNames: map[string]string{
			"#a": fieldAttempts,
			"#c": fieldCode,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one":  &types.AttributeValueMemberN{Value: "1"},
			":code": &types.AttributeValueMemberS{Value: code},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if isConditionFailed(err) {
		return 0, fmt.Errorf("code not found: %w", domain.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("record attempt: %w", err)
	}
	var n int
	if err := attributevalue.Unmarshal(out.Attributes[fieldAttempts], &n); err != nil {
		return 0, fmt.Errorf("unmarshal attempts: %w", err)
	}
	return n, nil
}

// CompareAndDelete removes the record only while it still holds code, so a
// concurrent re-issue is never consumed by a stale verification.
func (s *CodeStore) CompareAndDelete(ctx context.Context, email, code string) (bool, error) {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                 aws.String(s.tableName),
		Key:                       strKey(fieldEmail, domain.NormalizeEmail(email)),
		ConditionExpression:       aws.String("#c = :c"),
		ExpressionAttributeNames:  map[string]string{"#c": fieldCode},
		ExpressionAttributeValues: map[string]types.AttributeValue{":c": &types.AttributeValueMemberS{Value: code}},
	})
	if isConditionFailed(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("compare and delete code: %w", err)
	}
	return true, nil
}
