package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// MaxAvatarSize is the maximum decoded avatar size (5MB).
	MaxAvatarSize = 5 * 1024 * 1024
	// FolderAvatars is the S3 prefix for space avatars.
	FolderAvatars = "avatars"
)

// AllowedAvatarTypes maps accepted image MIME types to object extensions.
var AllowedAvatarTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/jpg":  ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// S3Config holds S3 client configuration.
type S3Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	AvatarsBucket   string
}

// S3 uploads space avatars.
type S3 struct {
	client   *s3.Client
	uploader *manager.Uploader
	cfg      S3Config
	logger   *zap.Logger
}

// NewS3 creates an S3 client using credentials from config or .env (AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY).
func NewS3(ctx context.Context, cfg S3Config, logger *zap.Logger) (*S3, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	accessKey := cfg.AccessKeyID
	secretKey := cfg.SecretAccessKey
	if accessKey == "" || secretKey == "" {
		accessKey = os.Getenv("AWS_ACCESS_KEY_ID")
		secretKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	}
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if accessKey != "" && secretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKey, secretKey, "",
		)))
		logger.Info("S3 client using credentials from .env/config", zap.String("region", cfg.Region), zap.String("avatars_bucket", cfg.AvatarsBucket))
	} else {
		logger.Warn("S3 client using default credential chain (AWS_ACCESS_KEY_ID/AWS_SECRET_ACCESS_KEY not set)")
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)
	return &S3{
		client:   client,
		uploader: manager.NewUploader(client),
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// IsDataURL reports whether s looks like a base64 data URL rather than a plain link.
func IsDataURL(s string) bool {
	return strings.HasPrefix(s, "data:")
}

// DecodeDataURL splits "data:<type>;base64,<payload>" into its content type
// and decoded bytes. Only allowed avatar types under MaxAvatarSize are accepted.
func DecodeDataURL(s string) (contentType string, data []byte, err error) {
	if !IsDataURL(s) {
		return "", nil, fmt.Errorf("not a data url")
	}
	meta, payload, ok := strings.Cut(strings.TrimPrefix(s, "data:"), ",")
	if !ok {
		return "", nil, fmt.Errorf("malformed data url")
	}
	contentType, enc, _ := strings.Cut(meta, ";")
	if enc != "base64" {
		return "", nil, fmt.Errorf("data url must be base64 encoded")
	}
	contentType = strings.ToLower(contentType)
	if _, ok := AllowedAvatarTypes[contentType]; !ok {
		return "", nil, fmt.Errorf("unsupported avatar type %q", contentType)
	}
	if base64.StdEncoding.DecodedLen(len(payload)) > MaxAvatarSize {
		return "", nil, fmt.Errorf("avatar exceeds %d bytes", MaxAvatarSize)
	}
	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode avatar: %w", err)
	}
	return contentType, data, nil
}

// AvatarKey returns the S3 object key: avatars/{space_id}/{object_id}{ext}.
func AvatarKey(spaceID uuid.UUID, contentType string) string {
	return path.Join(FolderAvatars, spaceID.String(), uuid.NewString()+AllowedAvatarTypes[contentType])
}

// PutAvatar uploads a base64 data URL as the space's avatar and returns its public URL.
func (s *S3) PutAvatar(ctx context.Context, spaceID uuid.UUID, dataURL string) (string, error) {
	contentType, data, err := DecodeDataURL(dataURL)
	if err != nil {
		return "", err
	}
	return s.Upload(ctx, s.cfg.AvatarsBucket, AvatarKey(spaceID, contentType), contentType, bytes.NewReader(data), int64(len(data)))
}

// PublicObjectURL returns the public URL for an object.
func (s *S3) PublicObjectURL(bucket, key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucket, s.cfg.Region, key)
}

// Upload streams a reader to S3 as a public-read object.
func (s *S3) Upload(ctx context.Context, bucket, key, contentType string, body io.Reader, contentLength int64) (string, error) {
	var contentLengthPtr *int64
	if contentLength > 0 {
		contentLengthPtr = &contentLength
	}
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentType:   aws.String(contentType),
		ContentLength: contentLengthPtr,
		ACL:           types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	s.logger.Debug("avatar uploaded", zap.String("bucket", bucket), zap.String("key", key))
	return s.PublicObjectURL(bucket, key), nil
}
