package dynamodb

import (
	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// NewClientFromConfig returns a DynamoDB client. When cfg carries a BaseEndpoint
// (LocalStack) the client targets it.
func NewClientFromConfig(cfg sdkaws.Config) *dynamodb.Client {
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if cfg.BaseEndpoint != nil {
			o.BaseEndpoint = cfg.BaseEndpoint
		}
	})
}
