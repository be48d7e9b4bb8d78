package upload

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/docker/go-units"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ethpandaops/stressoor/pkg/config"
)

// DefaultPrefix is used when no key prefix is configured.
const DefaultPrefix = "stressoor/results"

// publishedExts are the file types a report links to.
var publishedExts = map[string]struct{}{
	".html": {},
	".txt":  {},
	".json": {},
	".yaml": {},
}

// s3Uploader implements Uploader for S3-compatible storage.
type s3Uploader struct {
	log    logrus.FieldLogger
	cfg    *config.S3UploadConfig
	client *s3.Client
}

// Ensure interface compliance.
var _ Uploader = (*s3Uploader)(nil)

// NewS3Uploader creates a new S3 uploader from the given configuration.
func NewS3Uploader(
	log logrus.FieldLogger,
	cfg *config.S3UploadConfig,
) (Uploader, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	return &s3Uploader{
		log:    log.WithField("component", "s3-uploader"),
		cfg:    cfg,
		client: newS3Client(cfg),
	}, nil
}

func newS3Client(cfg *config.S3UploadConfig) *s3.Client {
	return s3.New(s3.Options{}, func(o *s3.Options) {
		if cfg.Region != "" {
			o.Region = cfg.Region
		} else {
			o.Region = "us-east-1"
		}

		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
		}

		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}

		if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
			o.Credentials = credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID, cfg.SecretAccessKey, "",
			)
		}
	})
}

// Preflight verifies S3 connectivity by writing a small test object.
func (u *s3Uploader) Preflight(ctx context.Context) error {
	content := fmt.Sprintf("stressoor write test: %s", time.Now().UTC().Format(time.RFC3339))

	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.cfg.Bucket),
		Key:         aws.String(".stressoor-write-test"),
		Body:        strings.NewReader(content),
		ContentType: aws.String("text/plain"),
	})
	if err != nil {
		return fmt.Errorf("writing test object to s3://%s: %w", u.cfg.Bucket, err)
	}

	return nil
}

// localFile is one file scheduled for upload.
type localFile struct {
	path string
	key  string
	size int64
}

// collectFiles lists the publishable files below root with their keys.
func collectFiles(root, prefix string) ([]localFile, error) {
	var files []localFile

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			return nil
		}

		if _, ok := publishedExts[strings.ToLower(filepath.Ext(path))]; !ok {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("computing relative path: %w", err)
		}

		files = append(files, localFile{
			path: path,
			key:  prefix + "/" + filepath.ToSlash(relPath),
			size: info.Size(),
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory %s: %w", root, err)
	}

	return files, nil
}

// Publish uploads the report pages below root with bounded parallelism.
func (u *s3Uploader) Publish(ctx context.Context, root string) (int, error) {
	prefix := u.resolvePrefix(filepath.Base(filepath.Clean(root)))

	files, err := collectFiles(root, prefix)
	if err != nil {
		return 0, err
	}

	concurrency := u.cfg.Concurrency
	if concurrency < 1 {
		concurrency = config.DefaultUploadConcurrency
	}

	var (
		count int64
		total int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, f := range files {
		g.Go(func() error {
			if err := u.uploadFile(gctx, f.path, f.key); err != nil {
				return fmt.Errorf("uploading %s: %w", f.path, err)
			}

			atomic.AddInt64(&count, 1)
			atomic.AddInt64(&total, f.size)

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return int(atomic.LoadInt64(&count)), err
	}

	u.log.WithFields(logrus.Fields{
		"files":  count,
		"size":   units.HumanSize(float64(total)),
		"bucket": u.cfg.Bucket,
		"prefix": prefix,
	}).Info("Upload completed")

	return int(count), nil
}

// PutReport stores a rendered report under the folder's prefix.
func (u *s3Uploader) PutReport(
	ctx context.Context, root, name string, data []byte, contentType string,
) (string, error) {
	key := u.resolvePrefix(filepath.Base(filepath.Clean(root))) + "/" + name

	input := &s3.PutObjectInput{
		Bucket:      aws.String(u.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	}
	u.applyObjectOptions(input)

	if _, err := u.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("putting object %q: %w", key, err)
	}

	u.log.WithFields(logrus.Fields{
		"key":  key,
		"size": units.HumanSize(float64(len(data))),
	}).Info("Report uploaded")

	return key, nil
}

// uploadFile uploads a single file to S3.
func (u *s3Uploader) uploadFile(ctx context.Context, localPath, key string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("opening file: %w", err)
	}
	defer func() { _ = f.Close() }()

	input := &s3.PutObjectInput{
		Bucket:      aws.String(u.cfg.Bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(detectContentType(localPath)),
	}
	u.applyObjectOptions(input)

	u.log.WithFields(logrus.Fields{
		"key":    key,
		"bucket": u.cfg.Bucket,
	}).Debug("Uploading file")

	if _, err := u.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("PutObject: %w", err)
	}

	return nil
}

func (u *s3Uploader) applyObjectOptions(input *s3.PutObjectInput) {
	if u.cfg.StorageClass != "" {
		input.StorageClass = s3types.StorageClass(u.cfg.StorageClass)
	}

	if u.cfg.ACL != "" {
		input.ACL = s3types.ObjectCannedACL(u.cfg.ACL)
	}
}

// resolvePrefix builds the S3 key prefix for a result folder.
func (u *s3Uploader) resolvePrefix(baseName string) string {
	prefix := u.cfg.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}

	return strings.TrimRight(prefix, "/") + "/" + baseName
}

// detectContentType returns a MIME type based on file extension.
func detectContentType(path string) string {
	ext := filepath.Ext(path)
	if ext == "" {
		return "application/octet-stream"
	}

	ct := mime.TypeByExtension(ext)
	if ct == "" {
		return "application/octet-stream"
	}

	return ct
}
