package media

import (
	"bytes"
	"context"
	"io"
	"io/ioutil"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
)

const defaultS3Region = "us-east-1"

// S3Config identifies a bucket on AWS S3 or on an S3-compatible service.
type S3Config struct {
	Bucket          string `mapstructure:"s3_bucket"`
	Region          string `mapstructure:"s3_region"`
	Endpoint        string `mapstructure:"s3_endpoint"`
	AccessKeyID     string `mapstructure:"s3_access_key_id"`
	SecretAccessKey string `mapstructure:"s3_secret_access_key"`
	// Prefix is prepended to every storage key inside the bucket.
	Prefix string `mapstructure:"s3_prefix"`
}

// S3Store is a Storer backed by an S3 bucket.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Store builds an S3 client from cfg. A non-empty Endpoint switches
// the client to path-style addressing, which S3-compatible services
// (MinIO, Backblaze, Oracle Cloud) expect.
func NewS3Store(cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = defaultS3Region
	}
	opts := s3.Options{
		Region: region,
	}
	if cfg.AccessKeyID != "" {
		opts.Credentials = aws.NewCredentialsCache(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""))
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
		opts.UsePathStyle = true
	}
	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &S3Store{
		client: s3.New(opts),
		bucket: cfg.Bucket,
		prefix: prefix,
	}, nil
}

func (s *S3Store) objectKey(key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return s.prefix + key, nil
}

func isS3NotFound(err error) bool {
	var re *awshttp.ResponseError
	return errors.As(err, &re) && re.HTTPStatusCode() == http.StatusNotFound
}

// Upload buffers data so the request body is seekable and can be signed,
// then puts it as a single object.
func (s *S3Store) Upload(ctx context.Context, key string, data io.Reader) error {
	obj, err := s.objectKey(key)
	if err != nil {
		return err
	}
	contents, err := ioutil.ReadAll(data)
	if err != nil {
		return storageErr("upload", key, err)
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(obj),
		Body:          bytes.NewReader(contents),
		ContentLength: aws.Int64(int64(len(contents))),
		ContentType:   aws.String(mimetype.Detect(contents).String()),
	})
	if err != nil {
		return storageErr("upload", key, err)
	}
	return nil
}

func (s *S3Store) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.objectKey(key)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(obj),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, ErrNotFound
		}
		return nil, storageErr("download", key, err)
	}
	return out.Body, nil
}

// Delete checks for the object first, since S3 reports success when
// deleting a key that does not exist.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	obj, err := s.objectKey(key)
	if err != nil {
		return err
	}
	if _, err := s.Size(ctx, key); err != nil {
		return err
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(obj),
	})
	if err != nil {
		if isS3NotFound(err) {
			return ErrNotFound
		}
		return storageErr("delete", key, err)
	}
	return nil
}

func (s *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.Size(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *S3Store) Size(ctx context.Context, key string) (int64, error) {
	obj, err := s.objectKey(key)
	if err != nil {
		return 0, err
	}
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(obj),
	})
	if err != nil {
		if isS3NotFound(err) {
			return 0, ErrNotFound
		}
		return 0, storageErr("stat", key, err)
	}
	return aws.ToInt64(out.ContentLength), nil
}
