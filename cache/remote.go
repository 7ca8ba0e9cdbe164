package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/transfermanager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// RemoteMirror is a shared, team-wide package cache layer backed by
// object storage, used ahead of a channel's own origin server: a package
// already fetched by one teammate/CI run does not need to cross the
// internet again. Grounded on the teacher's storage.S3, generalized from
// "storage for a package registry to serve" into "a pull-through mirror
// a client cache checks before hitting the channel".
type RemoteMirror interface {
	// Stat reports size/existence without downloading.
	Stat(ctx context.Context, fn string) (size int64, exists bool, err error)
	// Get downloads fn to destPath (a path in the local writable
	// layer), returning nil on success.
	Get(ctx context.Context, fn, destPath string) error
	// Put uploads a validated local tarball so future installs (by this
	// client or teammates) can skip the origin fetch.
	Put(ctx context.Context, fn, srcPath string) error
}

// S3Mirror implements RemoteMirror against an S3-compatible bucket.
type S3Mirror struct {
	client   *s3.Client
	uploader *transfermanager.Client
	bucket   string
	prefix   string
}

// S3MirrorConfig mirrors the teacher's storage.S3Config: bucket, region,
// endpoint (for MinIO-compatible stores), and optional static
// credentials, falling back to the default AWS credential chain / IAM
// role when unset.
type S3MirrorConfig struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	ForcePathStyle  bool
}

func NewS3Mirror(ctx context.Context, cfg S3MirrorConfig) (*S3Mirror, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})
	return &S3Mirror{
		client:   client,
		uploader: transfermanager.New(client),
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
	}, nil
}

func (m *S3Mirror) key(fn string) string {
	return filepath.Join(m.prefix, fn)
}

func (m *S3Mirror) Stat(ctx context.Context, fn string) (size int64, exists bool, err error) {
	out, err := m.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(m.key(fn)),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	if out.ContentLength == nil {
		return 0, true, nil
	}
	return *out.ContentLength, true, nil
}

func (m *S3Mirror) Get(ctx context.Context, fn, destPath string) error {
	out, err := m.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(m.key(fn)),
	})
	if err != nil {
		return err
	}
	defer out.Body.Close()
	return writeAtomic(destPath, out.Body)
}

func (m *S3Mirror) Put(ctx context.Context, fn, srcPath string) error {
	f, err := openForRead(srcPath)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = m.uploader.UploadObject(ctx, &transfermanager.UploadObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(m.key(fn)),
		Body:   f,
	})
	return err
}

// writeAtomic and openForRead are tiny indirections kept so tests can
// substitute an in-memory RemoteMirror without touching the real
// filesystem helpers used by the S3 implementation.
var writeAtomic = func(destPath string, r io.Reader) error {
	return atomicWriteFile(destPath, r)
}

var openForRead = func(path string) (io.ReadCloser, error) {
	return openFile(path)
}
