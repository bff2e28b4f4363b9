// Package publish uploads finished session reports to an S3-compatible
// object store.
package publish

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config is disabled when Endpoint is empty.
type Config struct {
	Endpoint  string `json:"endpoint,omitempty"`
	Bucket    string `json:"bucket,omitempty"`
	AccessKey string `json:"accessKey,omitempty"`
	SecretKey string `json:"-"`
	Region    string `json:"region,omitempty"`
	UseSSL    bool   `json:"useSSL,omitempty"`
	Prefix    string `json:"prefix,omitempty"`
}

func (c Config) Enabled() bool { return strings.TrimSpace(c.Endpoint) != "" }

func (c Config) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return errors.New("bucket is required")
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("access key is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("secret key is required")
	}
	return nil
}

type Object struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

func (o Object) String() string { return o.Bucket + "/" + o.Key }

type Publisher interface {
	Publish(ctx context.Context, runID string, reportPath string) (Object, error)
}

// Nop drops every report.
type Nop struct{}

func (Nop) Publish(context.Context, string, string) (Object, error) { return Object{}, nil }

// New returns Nop for a disabled config.
func New(cfg Config) (Publisher, error) {
	if !cfg.Enabled() {
		return Nop{}, nil
	}
	return NewMinIOPublisher(cfg)
}

// ObjectKey names a report object: <prefix>/<runID>/<report file>.
func ObjectKey(prefix string, runID string, reportPath string) string {
	parts := []string{}
	if p := strings.Trim(prefix, "/"); p != "" {
		parts = append(parts, p)
	}
	parts = append(parts, runID, filepath.Base(reportPath))
	return path.Join(parts...)
}

type MinIOPublisher struct {
	cfg    Config
	client *minio.Client

	bucketReady bool
}

func NewMinIOPublisher(cfg Config) (*MinIOPublisher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, err
	}
	return &MinIOPublisher{cfg: cfg, client: client}, nil
}

// Publish creates the bucket on first use. Not safe for concurrent use.
func (p *MinIOPublisher) Publish(ctx context.Context, runID string, reportPath string) (Object, error) {
	if !p.bucketReady {
		if err := p.ensureBucket(ctx); err != nil {
			return Object{}, fmt.Errorf("ensure bucket %s: %w", p.cfg.Bucket, err)
		}
		p.bucketReady = true
	}
	obj := Object{Bucket: p.cfg.Bucket, Key: ObjectKey(p.cfg.Prefix, runID, reportPath)}
	if _, err := p.client.FPutObject(ctx, obj.Bucket, obj.Key, reportPath, minio.PutObjectOptions{ContentType: "application/json"}); err != nil {
		return Object{}, fmt.Errorf("upload %s: %w", obj, err)
	}
	return obj, nil
}

func (p *MinIOPublisher) ensureBucket(ctx context.Context) error {
	exists, err := p.client.BucketExists(ctx, p.cfg.Bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return p.client.MakeBucket(ctx, p.cfg.Bucket, minio.MakeBucketOptions{Region: p.cfg.Region})
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
