package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	cfg "github.com/masgolf/assetsync/internal/config"
	"github.com/masgolf/assetsync/internal/model"
)

// S3 limits DeleteObjects to 1000 keys per request.
const s3DeleteBatch = 1000

// S3Store implements ObjectStore for S3-compatible storage.
// Works with AWS S3, MinIO, Supabase Storage, Cloudflare R2, etc.
type S3Store struct {
	client    *s3.Client
	bucket    string
	publicURL string // base URL for generating public URLs, without trailing slash
	pageSize  int32
}

// S3Config holds configuration for S3 storage
type S3Config struct {
	Region        string
	Bucket        string
	AccessKey     string
	SecretKey     string
	Endpoint      string // Optional: for S3-compatible services
	PublicBaseURL string // Optional: e.g. https://x.supabase.co/storage/v1/object/public
	PageSize      int
}

// New creates the bucket adapter from app config, wrapped so that
// idempotent reads are retried.
func New(c *cfg.Config) (ObjectStore, error) {
	slog.Info("initializing S3 storage",
		"bucket", c.S3Bucket,
		"region", c.S3Region,
		"endpoint", c.S3Endpoint,
	)
	store, err := NewS3Store(S3Config{
		Region:        c.S3Region,
		Bucket:        c.S3Bucket,
		AccessKey:     c.S3AccessKey,
		SecretKey:     c.S3SecretKey,
		Endpoint:      c.S3Endpoint,
		PublicBaseURL: c.StoragePublicBaseURL,
		PageSize:      c.StorageListPageSize,
	})
	if err != nil {
		return nil, err
	}
	return NewRetryingStore(store, RetryConfig{
		MaxRetries: c.StorageReadRetries,
		Base:       c.StorageRetryBase,
	}), nil
}

// NewS3Store creates a new S3 storage instance
func NewS3Store(c S3Config) (*S3Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var opts []func(*config.LoadOptions) error
	opts = append(opts, config.WithRegion(c.Region))

	// Add static credentials if provided
	if c.AccessKey != "" && c.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKey, c.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var client *s3.Client
	if c.Endpoint != "" {
		client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(c.Endpoint)
			o.UsePathStyle = true // Required for MinIO, Supabase and some S3-compatible services
		})
	} else {
		client = s3.NewFromConfig(awsCfg)
	}

	var publicURL string
	switch {
	case c.PublicBaseURL != "":
		publicURL = strings.TrimSuffix(c.PublicBaseURL, "/") + "/" + c.Bucket
	case c.Endpoint != "":
		publicURL = strings.TrimSuffix(c.Endpoint, "/") + "/" + c.Bucket
	default:
		publicURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", c.Bucket, c.Region)
	}

	pageSize := c.PageSize
	if pageSize <= 0 || pageSize > 1000 {
		pageSize = 1000
	}

	store := &S3Store{
		client:    client,
		bucket:    c.Bucket,
		publicURL: publicURL,
		pageSize:  int32(pageSize),
	}

	if err := store.checkBucket(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// checkBucket verifies the bucket is reachable. Unlike an upload service,
// a reconciliation job must never create an empty bucket and then report
// every index row as a ghost.
func (s *S3Store) checkBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return fmt.Errorf("bucket %q is not reachable: %w", s.bucket, err)
	}
	return nil
}

// List pages through ListObjectsV2 until the last page. Non-recursive
// listing uses the "/" delimiter so only immediate children are returned.
func (s *S3Store) List(ctx context.Context, prefix string, opts ListOptions) ([]model.Asset, error) {
	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		MaxKeys: aws.Int32(s.pageSize),
	}
	if p := strings.TrimSuffix(prefix, "/"); p != "" {
		input.Prefix = aws.String(p + "/")
	}
	if !opts.Recursive {
		input.Delimiter = aws.String("/")
	}

	var assets []model.Asset
	paginator := s3.NewListObjectsV2Paginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list %q: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, "/") {
				continue // folder placeholder
			}
			assets = append(assets, model.Asset{
				Path:      key,
				PublicURL: s.PublicURL(key),
				Size:      aws.ToInt64(obj.Size),
				ETag:      strings.Trim(aws.ToString(obj.ETag), `"`),
				CreatedAt: aws.ToTime(obj.LastModified),
			})
		}
	}

	return assets, nil
}

func (s *S3Store) Stat(ctx context.Context, path string) (*model.Asset, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, &ObjectNotFoundError{Path: path}
		}
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	return &model.Asset{
		Path:        path,
		PublicURL:   s.PublicURL(path),
		Size:        aws.ToInt64(out.ContentLength),
		ContentType: aws.ToString(out.ContentType),
		ETag:        strings.Trim(aws.ToString(out.ETag), `"`),
		CreatedAt:   aws.ToTime(out.LastModified),
	}, nil
}

// Upload stores body at path. Without Upsert the request is conditional on
// the key not existing yet.
func (s *S3Store) Upload(ctx context.Context, path string, body []byte, contentType string, opts UploadOptions) (*model.Asset, error) {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(path),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	}
	if !opts.Upsert {
		input.IfNoneMatch = aws.String("*")
	}

	out, err := s.client.PutObject(ctx, input)
	if err != nil {
		if isPreconditionFailed(err) {
			return nil, fmt.Errorf("%w: %s", ErrObjectExists, path)
		}
		return nil, fmt.Errorf("failed to upload to S3: %w", err)
	}

	return &model.Asset{
		Path:        path,
		PublicURL:   s.PublicURL(path),
		Size:        int64(len(body)),
		ContentType: contentType,
		ETag:        strings.Trim(aws.ToString(out.ETag), `"`),
		CreatedAt:   time.Now(),
	}, nil
}

func (s *S3Store) Download(ctx context.Context, path string) ([]byte, string, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, "", &ObjectNotFoundError{Path: path}
		}
		return nil, "", fmt.Errorf("failed to download %s: %w", path, err)
	}
	defer func() { _ = out.Body.Close() }()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return body, aws.ToString(out.ContentType), nil
}

// Copy uses the native server-side copy. MetadataDirective COPY keeps the
// source content type.
func (s *S3Store) Copy(ctx context.Context, src, dst string) error {
	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:            aws.String(s.bucket),
		Key:               aws.String(dst),
		CopySource:        aws.String(s.bucket + "/" + escapeKey(src)),
		MetadataDirective: types.MetadataDirectiveCopy,
	})
	if err != nil {
		if isNotFound(err) {
			return &ObjectNotFoundError{Path: src}
		}
		return fmt.Errorf("failed to copy in S3: %w", err)
	}
	return nil
}

// Delete removes paths in batches of 1000. A failed request marks every
// path of its batch as failed; per-key errors mark only that key.
func (s *S3Store) Delete(ctx context.Context, paths []string) []DeleteResult {
	results := make([]DeleteResult, 0, len(paths))

	for start := 0; start < len(paths); start += s3DeleteBatch {
		batch := paths[start:min(start+s3DeleteBatch, len(paths))]

		ids := make([]types.ObjectIdentifier, 0, len(batch))
		for _, p := range batch {
			ids = append(ids, types.ObjectIdentifier{Key: aws.String(p)})
		}

		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			for _, p := range batch {
				results = append(results, DeleteResult{Path: p, Err: fmt.Errorf("failed to delete from S3: %w", err)})
			}
			continue
		}

		failed := make(map[string]error, len(out.Errors))
		for _, e := range out.Errors {
			failed[aws.ToString(e.Key)] = fmt.Errorf("%s: %s", aws.ToString(e.Code), aws.ToString(e.Message))
		}
		for _, p := range batch {
			results = append(results, DeleteResult{Path: p, Err: failed[p]})
		}
	}

	return results
}

func (s *S3Store) PublicURL(path string) string {
	return s.publicURL + "/" + path
}

func (s *S3Store) PathFromURL(u string) (string, bool) {
	return pathFromURL(s.publicURL, u)
}

func escapeKey(key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	if errors.As(err, &nf) || errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && (apiErr.ErrorCode() == "NotFound" || apiErr.ErrorCode() == "NoSuchKey")
}

func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "PreconditionFailed"
}
