package output

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dd0wney/netharness/pkg/logging"
	"github.com/dd0wney/netharness/pkg/validation"
)

// S3Config says where runs are archived.
type S3Config struct {
	Bucket string
	Prefix string
	Region string
	// Endpoint overrides the S3 endpoint, e.g. for MinIO; it implies
	// path-style addressing.
	Endpoint string
	// AccessKeyID and SecretAccessKey replace the default credential chain
	// when both are set.
	AccessKeyID     string
	SecretAccessKey string
}

// Validate checks the settings.
func (c *S3Config) Validate() error {
	return validation.NewConfigValidator("s3").
		Required("bucket", c.Bucket).
		When(c.AccessKeyID != "" || c.SecretAccessKey != "", func(cv *validation.ConfigValidator) {
			cv.Required("accessKeyId", c.AccessKeyID).
				Required("secretAccessKey", c.SecretAccessKey)
		}).
		Validate()
}

// ObjectPutter is the part of the S3 client the archiver needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver uploads finished run directories.
type S3Archiver struct {
	client ObjectPutter
	bucket string
	prefix string
	logger logging.Logger
}

// NewS3Archiver builds an archiver from the AWS shared configuration.
func NewS3Archiver(ctx context.Context, cfg S3Config, logger logging.Logger) (*S3Archiver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var loadOpts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3ArchiverWithClient(client, cfg.Bucket, cfg.Prefix, logger), nil
}

// NewS3ArchiverWithClient builds an archiver around an existing client.
func NewS3ArchiverWithClient(client ObjectPutter, bucket, prefix string, logger logging.Logger) *S3Archiver {
	return &S3Archiver{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		logger: logging.OrNop(logger),
	}
}

// Key returns the object key of a run file.
func (a *S3Archiver) Key(runDir, file string) string {
	return path.Join(a.prefix, filepath.Base(runDir), file)
}

// Archive uploads every file of the controller's run directory under
// <prefix>/<run directory name>/ and returns the number of objects written.
// Streams should be closed first.
func (a *S3Archiver) Archive(ctx context.Context, c *Controller) (int, error) {
	files, err := c.Files()
	if err != nil {
		return 0, err
	}
	timer := logging.StartTimer(a.logger, "run archived",
		logging.String("bucket", a.bucket),
		logging.Path(c.Dir()))

	for i, name := range files {
		if err := a.put(ctx, c.Dir(), name, c.RunID()); err != nil {
			timer.EndError(err)
			return i, err
		}
	}
	timer.End(logging.Count(len(files)))
	return len(files), nil
}

func (a *S3Archiver) put(ctx context.Context, dir, name, runID string) error {
	f, err := os.Open(filepath.Join(dir, filepath.FromSlash(name)))
	if err != nil {
		return err
	}
	defer f.Close()

	key := a.Key(dir, name)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType(name)),
		Metadata:    map[string]string{"run-id": runID},
	})
	if err != nil {
		return fmt.Errorf("upload s3://%s/%s: %w", a.bucket, key, err)
	}
	return nil
}

func contentType(name string) string {
	switch path.Ext(name) {
	case ".tsv":
		return "text/tab-separated-values"
	case ".sz":
		return "application/x-snappy-framed"
	case ".yaml", ".yml":
		return "application/yaml"
	default:
		return "text/plain"
	}
}
