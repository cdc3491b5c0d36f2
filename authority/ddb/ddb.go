// Package ddb implements an authority on DynamoDB.
//
// Every (partition, namespace) pair owns one item holding the next free
// counter. A grant is a single conditional UpdateItem that advances the
// counter by the block size, so concurrent processes never receive
// overlapping blocks and no claim can be lost halfway.
//
// Table schema:
//   - Partition key: counter_key (string) - "<prefix>/<partition>/<namespace>"
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name graphid-blocks \
//	  --attribute-definitions AttributeName=counter_key,AttributeType=S \
//	  --key-schema AttributeName=counter_key,KeyType=HASH \
//	  --billing-mode PAY_PER_REQUEST
package ddb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/hupe1980/graphid/authority"
)

const (
	attrKey  = "counter_key"
	attrNext = "next_start"
)

// Client is the interface for DynamoDB operations.
type Client interface {
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// Authority grants blocks from DynamoDB counters.
type Authority struct {
	authority.Base

	client Client
	table  string
	prefix string
	logger *slog.Logger
}

// Option configures an Authority.
type Option func(*Authority)

// WithPrefix namespaces counter keys, so one table can serve several graphs.
func WithPrefix(prefix string) Option {
	return func(a *Authority) {
		a.prefix = prefix
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Authority) {
		a.logger = l
	}
}

// New returns an authority using table.
func New(client Client, table string, optFns ...Option) *Authority {
	a := &Authority{
		client: client,
		table:  table,
		prefix: "graphid",
	}
	for _, fn := range optFns {
		fn(a)
	}
	if a.logger == nil {
		a.logger = slog.New(slog.DiscardHandler)
	}
	return a
}

// NewFromConfig loads the default AWS configuration and returns an authority.
func NewFromConfig(ctx context.Context, table string, optFns ...Option) (*Authority, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("ddb: load aws config: %w", err)
	}
	return New(dynamodb.NewFromConfig(cfg), table, optFns...), nil
}

func (a *Authority) key(partition, namespace uint32) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrKey: &types.AttributeValueMemberS{Value: fmt.Sprintf("%s/%d/%d", a.prefix, partition, namespace)},
	}
}

func number(v uint64) *types.AttributeValueMemberN {
	return &types.AttributeValueMemberN{Value: strconv.FormatUint(v, 10)}
}

// GetIDBlock implements authority.Authority.
func (a *Authority) GetIDBlock(ctx context.Context, partition, namespace uint32) (authority.Block, error) {
	sizer, err := a.Sizer()
	if err != nil {
		return authority.Block{}, err
	}
	size := sizer.BlockSize(namespace)
	upper := sizer.UpperBound(namespace)
	if size == 0 {
		return authority.Block{}, authority.Permanent(fmt.Errorf("ddb: zero block size for namespace %d", namespace))
	}
	if upper <= 1 {
		return authority.Block{}, fmt.Errorf("%w: namespace %d has upper bound %d", authority.ErrExhausted, namespace, upper)
	}

	// The stored value is the next free counter. Absent items start at 1.
	out, err := a.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(a.table),
		Key:                 a.key(partition, namespace),
		UpdateExpression:    aws.String("SET next_start = if_not_exists(next_start, :one) + :size"),
		ConditionExpression: aws.String("attribute_not_exists(next_start) OR next_start < :upper"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one":   number(1),
			":size":  number(size),
			":upper": number(upper),
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return authority.Block{}, classify(err, namespace, upper)
	}

	end, err := readNext(out.Attributes)
	if err != nil {
		return authority.Block{}, err
	}
	if end < size+1 {
		return authority.Block{}, authority.Permanent(fmt.Errorf("ddb: counter %d below block size %d", end, size))
	}
	b := authority.Block{Start: end - size, End: min(end, upper)}

	a.logger.Debug("granted id block", "partition", partition, "namespace", namespace, "block", b.String())
	return b, nil
}

// Current returns the next free counter of (partition, namespace), or 1 if
// nothing was granted yet.
func (a *Authority) Current(ctx context.Context, partition, namespace uint32) (uint64, error) {
	out, err := a.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(a.table),
		Key:            a.key(partition, namespace),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return 0, classify(err, namespace, 0)
	}
	if out.Item == nil {
		return 1, nil
	}
	return readNext(out.Item)
}

func readNext(item map[string]types.AttributeValue) (uint64, error) {
	attr, ok := item[attrNext].(*types.AttributeValueMemberN)
	if !ok {
		return 0, authority.Permanent(errors.New("ddb: invalid next_start attribute"))
	}
	v, err := strconv.ParseUint(attr.Value, 10, 64)
	if err != nil {
		return 0, authority.Permanent(fmt.Errorf("ddb: parse next_start: %w", err))
	}
	return v, nil
}

var temporaryCodes = map[string]bool{
	"ProvisionedThroughputExceededException": true,
	"ThrottlingException":                    true,
	"RequestLimitExceeded":                   true,
	"TransactionConflictException":           true,
	"InternalServerError":                    true,
	"ServiceUnavailable":                     true,
}

func classify(err error, namespace uint32, upper uint64) error {
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return fmt.Errorf("%w: namespace %d reached upper bound %d", authority.ErrExhausted, namespace, upper)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return authority.Temporary(err)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if temporaryCodes[apiErr.ErrorCode()] || apiErr.ErrorFault() == smithy.FaultServer {
			return authority.Temporary(err)
		}
		return authority.Permanent(err)
	}
	// Transport errors.
	return authority.Temporary(err)
}

// Close implements authority.Authority.
func (a *Authority) Close() error {
	a.MarkClosed()
	return nil
}
