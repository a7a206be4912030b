// Package proof turns stored proof-of-payment references into short-lived
// links reviewers can open.
package proof

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"regdesk/internal/payment/models"
	"regdesk/internal/platform/config"
)

// Linker presigns GET requests against an S3-compatible bucket.
type Linker struct {
	presign *s3.PresignClient
	bucket  string
	ttl     time.Duration
}

// New returns nil when no bucket is configured.
func New(ctx context.Context, cfg config.ProofConfig) (*Linker, error) {
	if cfg.Bucket == "" {
		return nil, nil
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load proof storage config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	ttl := cfg.URLTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Linker{presign: s3.NewPresignClient(client), bucket: cfg.Bucket, ttl: ttl}, nil
}

// URL returns a presigned link for ref. Free-submission markers have no
// object and yield "". References that are already absolute URLs are
// returned unchanged.
func (l *Linker) URL(ctx context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "" || models.IsFreeMarker(ref):
		return "", nil
	case strings.HasPrefix(ref, "https://") || strings.HasPrefix(ref, "http://"):
		return ref, nil
	}
	if l == nil {
		return "", errors.New("proof linker is not configured")
	}
	req, err := l.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(l.bucket),
		Key:    aws.String(strings.TrimPrefix(ref, "/")),
	}, s3.WithPresignExpires(l.ttl))
	if err != nil {
		return "", fmt.Errorf("presign proof %q: %w", ref, err)
	}
	return req.URL, nil
}
