package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"reelrender/internal/adapters/storage/gdrive"
	"reelrender/internal/adapters/storage/localfs"
	"reelrender/internal/adapters/storage/s3store"
	"reelrender/internal/util"
)

type Config struct {
	Provider  string
	LocalRoot string

	GDriveClientID     string
	GDriveClientSecret string
	GDriveRefreshToken string
	GDriveFolderID     string

	S3Bucket    string
	S3Prefix    string
	S3Region    string
	S3Endpoint  string
	S3PathStyle bool
}

// ConfigFromEnv reads STORAGE_*, GDRIVE_* and S3_* variables.
func ConfigFromEnv() Config {
	return Config{
		Provider:           util.Env("STORAGE_PROVIDER", "localfs"),
		LocalRoot:          util.Env("STORAGE_LOCAL_ROOT", "./data/renders"),
		GDriveClientID:     util.Env("GDRIVE_CLIENT_ID", ""),
		GDriveClientSecret: util.Env("GDRIVE_CLIENT_SECRET", ""),
		GDriveRefreshToken: util.Env("GDRIVE_REFRESH_TOKEN", ""),
		GDriveFolderID:     util.Env("GDRIVE_FOLDER_ID", ""),
		S3Bucket:           util.Env("S3_BUCKET", ""),
		S3Prefix:           util.Env("S3_PREFIX", "renders"),
		S3Region:           util.Env("S3_REGION", "us-east-1"),
		S3Endpoint:         util.Env("S3_ENDPOINT", ""),
		S3PathStyle:        util.BoolEnv("S3_PATH_STYLE", false),
	}
}

// Validate rejects a local root that overlaps workDir: publishing renames
// into the root and must never collide with in-flight job files.
func (c Config) Validate(workDir string) error {
	if c.Provider != "localfs" {
		return nil
	}
	if strings.TrimSpace(c.LocalRoot) == "" {
		return fmt.Errorf("STORAGE_LOCAL_ROOT is required for localfs")
	}
	root, err := filepath.Abs(c.LocalRoot)
	if err != nil {
		return err
	}
	work, err := filepath.Abs(workDir)
	if err != nil {
		return err
	}
	if root == work {
		return fmt.Errorf("STORAGE_LOCAL_ROOT must differ from WORK_DIR (%s)", work)
	}
	return nil
}

func NewProvider(ctx context.Context, cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "", "localfs":
		return localfs.New(cfg.LocalRoot), nil
	case "gdrive":
		return newGDriveProvider(ctx, cfg)
	case "s3":
		return newS3Provider(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage provider: %s", cfg.Provider)
	}
}

func newGDriveProvider(ctx context.Context, cfg Config) (Provider, error) {
	for k, v := range map[string]string{
		"GDRIVE_CLIENT_ID":     cfg.GDriveClientID,
		"GDRIVE_CLIENT_SECRET": cfg.GDriveClientSecret,
		"GDRIVE_REFRESH_TOKEN": cfg.GDriveRefreshToken,
	} {
		if v == "" {
			return nil, fmt.Errorf("missing env: %s", k)
		}
	}

	conf := &oauth2.Config{
		ClientID:     cfg.GDriveClientID,
		ClientSecret: cfg.GDriveClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{drive.DriveFileScope},
	}

	tok := &oauth2.Token{RefreshToken: cfg.GDriveRefreshToken}
	httpClient := conf.Client(ctx, tok)

	srv, err := drive.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, err
	}

	return gdrive.NewClient(srv, cfg.GDriveFolderID), nil
}

// newS3Provider uses the default AWS credential chain. S3_ENDPOINT and
// S3_PATH_STYLE target MinIO and other compatible stores.
func newS3Provider(ctx context.Context, cfg Config) (Provider, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("missing env: S3_BUCKET")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.S3Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		o.UsePathStyle = cfg.S3PathStyle
	})
	return s3store.NewClient(api, cfg.S3Bucket, cfg.S3Prefix), nil
}
