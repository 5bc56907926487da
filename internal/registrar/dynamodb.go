package registrar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"

	"camera-node/internal/config"
)

// ItemPutter - часть клиента DynamoDB, нужная регистратору
type ItemPutter interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DeviceRecord - строка таблицы: путь ключа и его значение
type DeviceRecord struct {
	Path      string      `dynamodbav:"path"`
	Value     interface{} `dynamodbav:"value"`
	UpdatedAt int64       `dynamodbav:"updated_at"`
}

// DynamoDB хранит пути ключей как partition key таблицы
type DynamoDB struct {
	client ItemPutter
	table  string
	logger *zap.Logger
}

// NewDynamoDB загружает стандартную конфигурацию AWS (env, ~/.aws, IMDS)
func NewDynamoDB(ctx context.Context, cfg config.RegistrarConfig, logger *zap.Logger) (*DynamoDB, error) {
	if cfg.DynamoDB.Table == "" {
		return nil, errors.New("registrar.dynamodb.table is required")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.DynamoDB.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.DynamoDB.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS SDK config: %w", err)
	}

	return NewDynamoDBWithClient(dynamodb.NewFromConfig(awsCfg), cfg.DynamoDB.Table, logger), nil
}

// NewDynamoDBWithClient создает бэкенд поверх готового клиента
func NewDynamoDBWithClient(client ItemPutter, table string, logger *zap.Logger) *DynamoDB {
	return &DynamoDB{client: client, table: table, logger: logger.Named("dynamodb")}
}

// Name возвращает имя бэкенда
func (d *DynamoDB) Name() string { return "dynamodb" }

// Pump ничего не делает: учетные данные AWS подписывают каждый запрос
func (d *DynamoDB) Pump(context.Context) {}

// Ready всегда true после создания клиента
func (d *DynamoDB) Ready() bool { return d.client != nil }

// Set выполняет PutItem; повторная запись того же пути перезаписывает строку
func (d *DynamoDB) Set(ctx context.Context, path string, value interface{}) error {
	item, err := attributevalue.MarshalMap(DeviceRecord{
		Path:      path,
		Value:     value,
		UpdatedAt: time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.table),
		Item:      item,
	})
	if err != nil {
		var respErr *awshttp.ResponseError
		if errors.As(err, &respErr) {
			return &Error{Code: respErr.HTTPStatusCode(), Message: respErr.Error()}
		}
		return &Error{Code: transportErrorCode, Message: err.Error()}
	}

	d.logger.Debug("Item stored", zap.String("table", d.table), zap.String("path", path))
	return nil
}

// Close ничего не делает
func (d *DynamoDB) Close() error { return nil }
