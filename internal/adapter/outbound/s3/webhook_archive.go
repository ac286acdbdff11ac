package s3

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/paylink/reconciler/internal/model"
	"github.com/paylink/reconciler/internal/port/outbound"
)

// ObjectPutter is the subset of the S3 client the archive needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// webhookArchive implements outbound.WebhookArchivePort.
type webhookArchive struct {
	client ObjectPutter
	bucket string
	prefix string
}

// NewWebhookArchive creates an archive writing raw payloads under prefix in bucket.
func NewWebhookArchive(client ObjectPutter, bucket, prefix string) outbound.WebhookArchivePort {
	return &webhookArchive{client: client, bucket: bucket, prefix: prefix}
}

func (a *webhookArchive) Put(ctx context.Context, delivery *model.WebhookDelivery, payload []byte) (string, error) {
	key := a.objectKey(delivery)

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(payload),
		ContentLength: aws.Int64(int64(len(payload))),
		ContentType:   aws.String("application/json"),
		Metadata: map[string]string{
			"rail":        string(delivery.Rail),
			"leg":         string(delivery.Leg),
			"delivery-id": delivery.ID.String(),
		},
	})
	if err != nil {
		return "", fmt.Errorf("put webhook payload %s: %w", key, err)
	}
	return key, nil
}

// objectKey lays payloads out as <prefix>/<rail>/<leg>/<yyyy>/<mm>/<dd>/<id>.json.
func (a *webhookArchive) objectKey(delivery *model.WebhookDelivery) string {
	received := delivery.CreatedAt.UTC()
	return path.Join(
		a.prefix,
		string(delivery.Rail),
		string(delivery.Leg),
		received.Format("2006/01/02"),
		delivery.ID.String()+".json",
	)
}

// Compile-time check
var _ outbound.WebhookArchivePort = (*webhookArchive)(nil)
