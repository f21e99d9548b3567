package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/tierstore/tierstore/interfaces"
)

// S3Config configures the object store backend.
type S3Config struct {
	Bucket    string
	KeyPrefix string
	Region    string
	// Endpoint overrides the AWS endpoint for S3-compatible services such as
	// MinIO. Those services usually also need ForcePathStyle.
	Endpoint       string
	AccessKey      string
	SecretKey      string
	ForcePathStyle bool
	// RequestTimeout bounds every network call. Exceeding it surfaces as a
	// transient error, never an indefinite block. Defaults to 30s.
	RequestTimeout time.Duration
	// StorageClass selects the object storage class (STANDARD, STANDARD_IA,
	// GLACIER_IR, ...). Empty uses the bucket default.
	StorageClass string
}

// S3Backend implements a storage backend on Amazon S3 or a compatible object
// store. Version operations use the bucket's native object versioning when it
// is enabled; on an unversioned bucket ListVersions returns an empty list.
type S3Backend struct {
	client       *s3.S3
	bucket       string
	prefix       string
	storageClass string
	log          *slog.Logger
	locationURI  string
}

// NewS3Backend creates an object store backend. Credentials may be omitted to
// use the ambient AWS credential chain.
func NewS3Backend(cfg S3Config, log *slog.Logger) (*S3Backend, error) {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: s3 backend requires a bucket", interfaces.ErrInvalidLocationURI)
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	awsCfg := aws.Config{
		Region:           aws.String(cfg.Region),
		S3ForcePathStyle: aws.Bool(cfg.ForcePathStyle),
		HTTPClient:       &http.Client{Timeout: timeout},
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}

	sess, err := session.NewSession(&awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	uri := fmt.Sprintf("s3://%s/%s?region=%s", cfg.Bucket, cfg.KeyPrefix, cfg.Region)
	if cfg.Endpoint != "" {
		uri += fmt.Sprintf("&endpoint=%s", cfg.Endpoint)
	}

	return &S3Backend{
		client:       s3.New(sess),
		bucket:       cfg.Bucket,
		prefix:       strings.Trim(cfg.KeyPrefix, "/"),
		storageClass: cfg.StorageClass,
		log:          log,
		locationURI:  uri,
	}, nil
}

// objectKey maps a locator to its bucket key.
func (b *S3Backend) objectKey(locator string) string {
	if b.prefix == "" {
		return locator
	}
	return path.Join(b.prefix, locator)
}

// contentTypeFor infers a content type from the locator extension.
func contentTypeFor(locator string) string {
	if ct := mime.TypeByExtension(path.Ext(locator)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// mapS3Error translates AWS failures into the storage error taxonomy,
// preserving the original error for logs.
func mapS3Error(locator string, err error) error {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound", "NoSuchBucket":
			return fmt.Errorf("s3: %s: %w", locator, interfaces.ErrNotFound)
		case "NoSuchVersion", "InvalidVersion":
			return fmt.Errorf("s3: %s: %w", locator, interfaces.ErrVersionNotFound)
		case "AccessDenied", "Forbidden":
			return fmt.Errorf("s3: %s: %w: %v", locator, interfaces.ErrPermissionDenied, err)
		case "EntityTooLarge":
			return fmt.Errorf("s3: %s: %w", locator, interfaces.ErrContentTooLarge)
		}
	}
	// Some S3-compatible services return bare 404s.
	if strings.Contains(err.Error(), "status code: 404") {
		return fmt.Errorf("s3: %s: %w", locator, interfaces.ErrNotFound)
	}
	return fmt.Errorf("s3: %s: %w: %v", locator, interfaces.ErrTransient, err)
}

// Write uploads content with descriptive object metadata and an inferred
// content type.
func (b *S3Backend) Write(ctx context.Context, locator string, content []byte) (*interfaces.Envelope, error) {
	now := time.Now()
	input := &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(b.objectKey(locator)),
		Body:        bytes.NewReader(content),
		ContentType: aws.String(contentTypeFor(locator)),
		Metadata: map[string]*string{
			"locator-id": aws.String(locator),
			"stored-at":  aws.String(now.UTC().Format(time.RFC3339)),
			"backend":    aws.String(b.Name()),
		},
	}
	if b.storageClass != "" {
		input.StorageClass = aws.String(b.storageClass)
	}

	out, err := b.client.PutObjectWithContext(ctx, input)
	if err != nil {
		return nil, mapS3Error(locator, err)
	}

	env := &interfaces.Envelope{
		Locator:  locator,
		Size:     int64(len(content)),
		StoredAt: now,
		Backend:  b.Name(),
		Bucket:   b.bucket,
		Key:      b.objectKey(locator),
	}
	if out.ETag != nil {
		env.ETag = strings.Trim(*out.ETag, `"`)
	}
	if out.VersionId != nil {
		env.VersionID = *out.VersionId
	}
	return env, nil
}

// Read downloads the content stored at the locator.
func (b *S3Backend) Read(ctx context.Context, locator string) ([]byte, error) {
	out, err := b.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(locator)),
	})
	if err != nil {
		return nil, mapS3Error(locator, err)
	}
	defer out.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(out.Body); err != nil {
		return nil, fmt.Errorf("s3: %s: %w: %v", locator, interfaces.ErrTransient, err)
	}
	return buf.Bytes(), nil
}

// Delete removes the object. S3 deletes are idempotent already; a missing key
// is success.
func (b *S3Backend) Delete(ctx context.Context, locator string) error {
	_, err := b.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(locator)),
	})
	if err != nil {
		mapped := mapS3Error(locator, err)
		if errors.Is(mapped, interfaces.ErrNotFound) {
			return nil
		}
		return mapped
	}
	return nil
}

// Exists reports whether the object is present. Ambiguous errors report
// false.
func (b *S3Backend) Exists(ctx context.Context, locator string) bool {
	_, err := b.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(locator)),
	})
	return err == nil
}

// Stat issues a HEAD request; no content is transferred.
func (b *S3Backend) Stat(ctx context.Context, locator string) (*interfaces.Envelope, error) {
	out, err := b.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(locator)),
	})
	if err != nil {
		return nil, mapS3Error(locator, err)
	}

	env := &interfaces.Envelope{
		Locator: locator,
		Backend: b.Name(),
		Bucket:  b.bucket,
		Key:     b.objectKey(locator),
	}
	if out.ContentLength != nil {
		env.Size = *out.ContentLength
	}
	if out.LastModified != nil {
		env.StoredAt = *out.LastModified
	}
	if out.ETag != nil {
		env.ETag = strings.Trim(*out.ETag, `"`)
	}
	if out.VersionId != nil {
		env.VersionID = *out.VersionId
	}
	return env, nil
}

// CreateVersion uploads the content and returns the native version ID the
// bucket assigned. On an unversioned bucket the write still succeeds and the
// record carries an empty version ID.
func (b *S3Backend) CreateVersion(ctx context.Context, locator string, content []byte, message string) (string, *interfaces.VersionRecord, error) {
	env, err := b.Write(ctx, locator, content)
	if err != nil {
		return "", nil, err
	}
	if env.VersionID == "" {
		b.log.Debug("Bucket versioning disabled, version has no native ID",
			slog.String("bucket", b.bucket),
			slog.String("locator", locator))
	}

	record := &interfaces.VersionRecord{
		VersionID:     env.VersionID,
		CreatedAt:     env.StoredAt,
		Size:          env.Size,
		CommitMessage: message,
		Backend:       b.Name(),
		ETag:          env.ETag,
		IsLatest:      true,
	}
	return env.VersionID, record, nil
}

// ListVersions returns the object's native versions, newest first. An
// unversioned bucket yields an empty list rather than an error.
func (b *S3Backend) ListVersions(ctx context.Context, locator string) ([]interfaces.VersionRecord, error) {
	key := b.objectKey(locator)
	records := make([]interfaces.VersionRecord, 0)

	input := &s3.ListObjectVersionsInput{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(key),
	}
	for {
		out, err := b.client.ListObjectVersionsWithContext(ctx, input)
		if err != nil {
			return nil, mapS3Error(locator, err)
		}
		for _, v := range out.Versions {
			if v.Key == nil || *v.Key != key {
				continue
			}
			record := interfaces.VersionRecord{Backend: b.Name()}
			if v.VersionId != nil && *v.VersionId != "null" {
				record.VersionID = *v.VersionId
			}
			if v.LastModified != nil {
				record.CreatedAt = *v.LastModified
			}
			if v.Size != nil {
				record.Size = *v.Size
			}
			if v.ETag != nil {
				record.ETag = strings.Trim(*v.ETag, `"`)
			}
			if v.IsLatest != nil {
				record.IsLatest = *v.IsLatest
			}
			records = append(records, record)
		}

		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		input.KeyMarker = out.NextKeyMarker
		input.VersionIdMarker = out.NextVersionIdMarker
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

// GetVersion downloads a specific native version.
func (b *S3Backend) GetVersion(ctx context.Context, locator, versionID string) ([]byte, error) {
	if versionID == "" {
		return nil, fmt.Errorf("s3: %s: empty version id: %w", locator, interfaces.ErrInvalidVersion)
	}

	out, err := b.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket:    aws.String(b.bucket),
		Key:       aws.String(b.objectKey(locator)),
		VersionId: aws.String(versionID),
	})
	if err != nil {
		mapped := mapS3Error(locator, err)
		if errors.Is(mapped, interfaces.ErrNotFound) {
			return nil, fmt.Errorf("s3: %s@%s: %w", locator, versionID, interfaces.ErrVersionNotFound)
		}
		return nil, mapped
	}
	defer out.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(out.Body); err != nil {
		return nil, fmt.Errorf("s3: %s: %w: %v", locator, interfaces.ErrTransient, err)
	}
	return buf.Bytes(), nil
}

// Copy duplicates src under dst server-side.
func (b *S3Backend) Copy(ctx context.Context, src, dst string) (*interfaces.Envelope, error) {
	out, err := b.client.CopyObjectWithContext(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(b.bucket),
		Key:        aws.String(b.objectKey(dst)),
		CopySource: aws.String(path.Join(b.bucket, b.objectKey(src))),
	})
	if err != nil {
		return nil, mapS3Error(src, err)
	}

	env := &interfaces.Envelope{
		Locator:  dst,
		StoredAt: time.Now(),
		Backend:  b.Name(),
		Bucket:   b.bucket,
		Key:      b.objectKey(dst),
	}
	if out.CopyObjectResult != nil && out.CopyObjectResult.ETag != nil {
		env.ETag = strings.Trim(*out.CopyObjectResult.ETag, `"`)
	}
	if stat, err := b.Stat(ctx, dst); err == nil {
		env.Size = stat.Size
	}
	return env, nil
}

// GeneratePresignedURL issues a time-bounded URL granting direct GET or PUT
// access to the object without routing bytes through this service.
func (b *S3Backend) GeneratePresignedURL(ctx context.Context, locator, method string, expiresIn time.Duration) (string, error) {
	var req *request.Request
	switch strings.ToUpper(method) {
	case http.MethodGet:
		req, _ = b.client.GetObjectRequest(&s3.GetObjectInput{
			Bucket: aws.String(b.bucket),
			Key:    aws.String(b.objectKey(locator)),
		})
	case http.MethodPut:
		req, _ = b.client.PutObjectRequest(&s3.PutObjectInput{
			Bucket:      aws.String(b.bucket),
			Key:         aws.String(b.objectKey(locator)),
			ContentType: aws.String(contentTypeFor(locator)),
		})
	default:
		return "", fmt.Errorf("unsupported presign method %q", method)
	}

	url, err := req.Presign(expiresIn)
	if err != nil {
		return "", mapS3Error(locator, err)
	}
	return url, nil
}

// Available reports whether the bucket answers a HEAD request.
func (b *S3Backend) Available(ctx context.Context) bool {
	_, err := b.client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(b.bucket),
	})
	if err != nil {
		b.log.Debug("S3 bucket unavailable",
			slog.String("bucket", b.bucket), "err", err)
		return false
	}
	return true
}

// Name returns the backend identifier.
func (b *S3Backend) Name() string {
	return interfaces.KindS3.String()
}

// LocationURI returns the URI of this backend.
func (b *S3Backend) LocationURI() string {
	return b.locationURI
}
