package dynamo

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"
)

// TableAdmin is the subset of the DynamoDB client used at startup.
type TableAdmin interface {
	CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	UpdateTimeToLive(ctx context.Context, in *dynamodb.UpdateTimeToLiveInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateTimeToLiveOutput, error)
}

// Bootstrap creates the verification code table if it doesn't already exist
// and enables native TTL on it. Safe to call on every startup; TTL is
// requested even for an existing table so one created by hand still expires
// its items.
func Bootstrap(ctx context.Context, client TableAdmin, codesTable string, log *zap.Logger) {
	createTable(ctx, client, &dynamodb.CreateTableInput{
		TableName:   aws.String(codesTable),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(fieldEmail), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(fieldEmail), KeyType: types.KeyTypeHash},
		},
	}, log)
	enableTTL(ctx, client, codesTable, fieldTTL, log)
}

func createTable(ctx context.Context, client TableAdmin, input *dynamodb.CreateTableInput, log *zap.Logger) bool {
	_, err := client.CreateTable(ctx, input)
	if err != nil {
		// ResourceInUseException means the table already exists.
		var riue *types.ResourceInUseException
		if !errors.As(err, &riue) {
			log.Warn("could not create table", zap.String("table", *input.TableName), zap.Error(err))
		}
		return false
	}
	log.Info("created table", zap.String("table", *input.TableName))
	return true
}

func enableTTL(ctx context.Context, client TableAdmin, tableName, ttlAttr string, log *zap.Logger) {
	_, err := client.UpdateTimeToLive(ctx, &dynamodb.UpdateTimeToLiveInput{
		TableName: aws.String(tableName),
		TimeToLiveSpecification: &types.TimeToLiveSpecification{
			Enabled:       aws.Bool(true),
			AttributeName: aws.String(ttlAttr),
		},
	})
	if err == nil {
		log.Info("enabled TTL", zap.String("table", tableName), zap.String("attribute", ttlAttr))
		return
	}
	// DynamoDB answers ValidationException when TTL is already on.
	var ae smithy.APIError
	if errors.As(err, &ae) && ae.ErrorCode() == "ValidationException" {
		log.Debug("TTL already enabled", zap.String("table", tableName), zap.Error(err))
		return
	}
	log.Warn("could not enable TTL", zap.String("table", tableName), zap.Error(err))
}
