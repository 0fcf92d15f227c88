package audio

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig holds S3-compatible storage settings.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	// Region is set explicitly so presigning needs no location lookup.
	Region    string
	UseSSL    bool
	URLExpiry time.Duration
}

// Minio stores clips in a bucket and hands out presigned GET URLs.
type Minio struct {
	client *minio.Client
	cfg    MinioConfig
}

// NewMinio creates the client. No request is made until first use.
func NewMinio(cfg MinioConfig) (*Minio, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("audio: minio store requires MINIO_ENDPOINT and MINIO_BUCKET")
	}
	if cfg.URLExpiry <= 0 {
		cfg.URLExpiry = time.Hour
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("audio: create minio client: %w", err)
	}
	return &Minio{client: client, cfg: cfg}, nil
}

// EnsureBucket creates the bucket when it does not exist.
func (m *Minio) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("audio: check bucket %s: %w", m.cfg.Bucket, err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, m.cfg.Bucket, minio.MakeBucketOptions{Region: m.cfg.Region}); err != nil {
		return fmt.Errorf("audio: create bucket %s: %w", m.cfg.Bucket, err)
	}
	return nil
}

// Save uploads wav and returns a presigned URL valid for URLExpiry.
func (m *Minio) Save(ctx context.Context, wav []byte) (Stored, error) {
	name := objectName(time.Now())
	_, err := m.client.PutObject(ctx, m.cfg.Bucket, name, bytes.NewReader(wav), int64(len(wav)), minio.PutObjectOptions{
		ContentType: "audio/wav",
	})
	if err != nil {
		return Stored{}, fmt.Errorf("audio: upload %s: %w", name, err)
	}
	u, err := m.presign(ctx, name)
	if err != nil {
		return Stored{}, err
	}
	return Stored{URL: u}, nil
}

func (m *Minio) presign(ctx context.Context, name string) (string, error) {
	u, err := m.client.PresignedGetObject(ctx, m.cfg.Bucket, name, m.cfg.URLExpiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("audio: presign %s: %w", name, err)
	}
	return u.String(), nil
}

// Ping checks that the bucket is reachable.
func (m *Minio) Ping(ctx context.Context) error {
	if _, err := m.client.BucketExists(ctx, m.cfg.Bucket); err != nil {
		return fmt.Errorf("audio: minio ping: %w", err)
	}
	return nil
}
