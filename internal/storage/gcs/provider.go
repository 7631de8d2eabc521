// Package gcs implements the artifact store on Google Cloud Storage.
package gcs

import (
	"context"
	"fmt"

	gstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"
)

// Provider writes artifacts to a GCS bucket.
type Provider struct {
	client *gstorage.Client
	bucket string
	logger *zap.Logger
}

// New initializes a GCS client and verifies the bucket is reachable, so a
// misconfigured deployment fails at startup instead of at first provision.
// Authentication is handled via Application Default Credentials.
func New(ctx context.Context, bucket string, logger *zap.Logger) (*Provider, error) {
	if bucket == "" {
		return nil, fmt.Errorf("artifacts.bucket is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := gstorage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}
	if _, err := client.Bucket(bucket).Attrs(ctx); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("close GCS client after attrs failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("get GCS bucket %q attributes: %w", bucket, err)
	}
	return &Provider{client: client, bucket: bucket, logger: logger}, nil
}

// Ref returns the gs:// URI of the bucket.
func (p *Provider) Ref() string {
	return "gs://" + p.bucket
}

// Save uploads the data to the object path in the bucket.
func (p *Provider) Save(ctx context.Context, objectName string, data []byte) error {
	wc := p.client.Bucket(p.bucket).Object(objectName).NewWriter(ctx)
	if _, err := wc.Write(data); err != nil {
		if closeErr := wc.Close(); closeErr != nil {
			p.logger.Warn("close GCS writer after write failure", zap.Error(closeErr))
		}
		return fmt.Errorf("write GCS object %s: %w", objectName, err)
	}
	// Close finalizes the upload and flushes buffered data.
	if err := wc.Close(); err != nil {
		return fmt.Errorf("close GCS writer for object %s: %w", objectName, err)
	}
	return nil
}

// Close releases the underlying client.
func (p *Provider) Close() error {
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("close GCS client: %w", err)
	}
	return nil
}
