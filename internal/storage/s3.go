package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Config holds the configuration for S3-mirrored storage.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // Optional: for custom S3-compatible endpoints
	AccessKeyID     string // Optional: AWS access key ID
	SecretAccessKey string // Optional: AWS secret access key
}

// S3Store wraps LocalStore and mirrors produced frames to S3.
// It uses LocalStore for staging and artifact directories; S3 holds a copy
// of each frame under frames/<videoID>/ for direct bucket serving.
type S3Store struct {
	*LocalStore
	client *s3.Client
	bucket string
	region string
}

var _ ArtifactStore = (*S3Store)(nil)

// NewS3Store creates an S3Store over the given local directories.
// The cfg parameter contains the S3 configuration.
func NewS3Store(stagingDir, outputDir string, cfg S3Config) (*S3Store, error) {
	local, err := NewLocalStore(stagingDir, outputDir)
	if err != nil {
		return nil, err
	}

	var configOpts []func(*config.LoadOptions) error
	configOpts = append(configOpts, config.WithRegion(cfg.Region))

	// Use static credentials if provided
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		configOpts = append(configOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(), configOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var clientOpts []func(*s3.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, clientOpts...)

	return &S3Store{
		LocalStore: local,
		client:     client,
		bucket:     cfg.Bucket,
		region:     cfg.Region,
	}, nil
}

// MirrorFrames uploads the given frame files under frames/<videoID>/ and
// returns their public object URLs in input order.
func (s *S3Store) MirrorFrames(ctx context.Context, videoID string, framePaths []string) ([]string, error) {
	if !validSegment(videoID) {
		return nil, ErrInvalidID
	}

	urls := make([]string, 0, len(framePaths))
	for _, framePath := range framePaths {
		key := path.Join("frames", videoID, filepath.Base(framePath))
		if err := s.putFile(ctx, key, framePath); err != nil {
			return nil, err
		}
		urls = append(urls, fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key))
	}
	return urls, nil
}

func (s *S3Store) putFile(ctx context.Context, key, filePath string) error {
	f, err := os.Open(filePath) // #nosec G304 - path comes from our own extractor
	if err != nil {
		return fmt.Errorf("open frame %s: %w", filePath, err)
	}
	defer func() { _ = f.Close() }()

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("image/jpeg"),
	})
	if err != nil {
		return fmt.Errorf("upload frame %s: %w", key, err)
	}
	return nil
}

// Remove deletes the local artifact directory and every mirrored object
// under the video's S3 prefix. S3 failures surface to the caller so a retry
// can finish the cleanup; the local removal is idempotent either way.
func (s *S3Store) Remove(ctx context.Context, videoID string) error {
	if err := s.LocalStore.Remove(ctx, videoID); err != nil {
		return err
	}

	if err := s.removePrefix(ctx, path.Join("frames", videoID)+"/"); err != nil {
		return fmt.Errorf("remove mirrored frames: %w", err)
	}
	return nil
}

// removePrefix deletes every object under the given key prefix, paging
// through the listing until the prefix is empty.
func (s *S3Store) removePrefix(ctx context.Context, prefix string) error {
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket: aws.String(s.bucket),
			Prefix: aws.String(prefix),
		})
		if err != nil {
			return fmt.Errorf("list objects: %w", err)
		}
		if len(out.Contents) == 0 {
			return nil
		}

		objects := make([]types.ObjectIdentifier, 0, len(out.Contents))
		for _, obj := range out.Contents {
			objects = append(objects, types.ObjectIdentifier{Key: obj.Key})
		}

		_, err = s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("delete objects: %w", err)
		}

		if out.IsTruncated == nil || !*out.IsTruncated {
			return nil
		}
	}
}
