package s3

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/hupe1980/botfs/blobstore"
)

// DDBClient is the subset of the DynamoDB API used by DDBCatalog.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DDBCatalog implements blobstore.Catalog on a DynamoDB table. Conditional
// writes make concurrent backups of the same volume safe: exactly one writer
// wins each version.
//
// Table schema:
//   - Partition key: volume (string)
//   - Sort key: version (number)
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name botfs-backups \
//	  --attribute-definitions AttributeName=volume,AttributeType=S AttributeName=version,AttributeType=N \
//	  --key-schema AttributeName=volume,KeyType=HASH AttributeName=version,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
type DDBCatalog struct {
	client DDBClient
	table  string
}

// NewDDBCatalog returns a catalog stored in table.
func NewDDBCatalog(client DDBClient, table string) *DDBCatalog {
	return &DDBCatalog{client: client, table: table}
}

// Commit implements blobstore.Catalog.
func (c *DDBCatalog) Commit(ctx context.Context, volume string, version uint64, name string) error {
	if version == 0 {
		return errors.New("s3: version must be positive")
	}
	_, err := c.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.table),
		Item: map[string]types.AttributeValue{
			"volume":  &types.AttributeValueMemberS{Value: volume},
			"version": &types.AttributeValueMemberN{Value: strconv.FormatUint(version, 10)},
			"archive": &types.AttributeValueMemberS{Value: name},
		},
		ConditionExpression: aws.String("attribute_not_exists(version)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return blobstore.ErrConcurrentModification
		}
		return fmt.Errorf("s3: commit backup %d of %q: %w", version, volume, err)
	}
	return nil
}

// Latest implements blobstore.Catalog.
func (c *DDBCatalog) Latest(ctx context.Context, volume string) (uint64, string, error) {
	resp, err := c.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(c.table),
		KeyConditionExpression: aws.String("volume = :v"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":v": &types.AttributeValueMemberS{Value: volume},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return 0, "", fmt.Errorf("s3: query backups of %q: %w", volume, err)
	}
	if len(resp.Items) == 0 {
		return 0, "", fmt.Errorf("%w: no backup of %q", blobstore.ErrNotFound, volume)
	}

	item := resp.Items[0]
	versionAttr, ok := item["version"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, "", errors.New("s3: invalid version attribute")
	}
	archiveAttr, ok := item["archive"].(*types.AttributeValueMemberS)
	if !ok {
		return 0, "", errors.New("s3: invalid archive attribute")
	}
	version, err := strconv.ParseUint(versionAttr.Value, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("s3: parse version: %w", err)
	}
	return version, archiveAttr.Value, nil
}
