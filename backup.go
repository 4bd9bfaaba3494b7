package main

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/transfermanager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// objectStore is the slice of S3 the backup and restore commands use.
type objectStore interface {
	Upload(ctx context.Context, key string, r io.Reader) error
	Download(ctx context.Context, key string, w io.Writer) error
	List(ctx context.Context, prefix string) ([]string, error)
}

type s3Store struct {
	client *s3.Client
	bucket string
}

func newS3Store(ctx context.Context, region, bucket string) (*s3Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return &s3Store{client: s3.NewFromConfig(cfg), bucket: bucket}, nil
}

// Upload streams r to the bucket using the transfer manager.
func (s *s3Store) Upload(ctx context.Context, key string, r io.Reader) error {
	tm := transfermanager.New(s.client)
	_, err := tm.UploadObject(ctx, &transfermanager.UploadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   r,
	})
	if err != nil {
		return fmt.Errorf("uploading to s3://%s/%s: %w", s.bucket, key, err)
	}
	return nil
}

// PathSlug converts a directory path to a slug for S3 keys.
// e.g. "/srv/hideout/data" -> "srv-hideout-data"
func PathSlug(dir string) string {
	cleaned := filepath.Clean(dir)
	cleaned = strings.TrimPrefix(cleaned, "/")
	return strings.ReplaceAll(cleaned, "/", "-")
}

// S3Key builds the full S3 object key.
func S3Key(hostname, dir string, t time.Time) string {
	return SnapshotKey(hostname, dir, t.UTC().Format("2006-01-02T15-04-05Z"))
}

// CreateArchive creates a tar.gz archive of dir and writes it to w.
// Paths inside the archive are relative to dir's parent. Access and change
// times are dropped so unchanged data produces identical bytes.
func CreateArchive(w io.Writer, dir string) error {
	gw := gzip.NewWriter(w)
	defer gw.Close()

	tw := tar.NewWriter(gw)
	defer tw.Close()

	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(filepath.Dir(dir), path)
		if err != nil {
			return err
		}

		var link string
		if info.Mode()&os.ModeSymlink != 0 {
			if link, err = os.Readlink(path); err != nil {
				return err
			}
		}

		header, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(rel)
		header.AccessTime = time.Time{}
		header.ChangeTime = time.Time{}

		if err := tw.WriteHeader(header); err != nil {
			return err
		}

		if !info.Mode().IsRegular() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		_, err = io.Copy(tw, f)
		return err
	})
}

// BackupResult describes what a backup run did.
type BackupResult struct {
	Key      string
	Checksum string
	Skipped  bool
}

// BackupDataDir archives dir and uploads it under a timestamped key. The
// upload is skipped when the archive checksum matches the last uploaded one
// recorded in stateFile. A nil store means dry run: nothing is uploaded and
// the state file is left alone.
func BackupDataDir(ctx context.Context, store objectStore, b BackupConfig, dir string, now time.Time, logger *zap.Logger) (BackupResult, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return BackupResult{}, fmt.Errorf("accessing directory: %w", err)
	}
	if !info.IsDir() {
		return BackupResult{}, fmt.Errorf("%s is not a directory", dir)
	}

	// S3 multipart upload needs a seekable reader, so archive to a temp file.
	tmpFile, err := os.CreateTemp("", "hideout-backup-*.tar.gz")
	if err != nil {
		return BackupResult{}, fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmpFile.Name())
	defer tmpFile.Close()

	h := sha256.New()
	if err := CreateArchive(io.MultiWriter(tmpFile, h), dir); err != nil {
		return BackupResult{}, fmt.Errorf("creating archive: %w", err)
	}

	res := BackupResult{
		Key:      S3Key(b.Hostname, dir, now),
		Checksum: hex.EncodeToString(h.Sum(nil)),
	}

	slug := PathSlug(dir)
	sums := LoadChecksums(b.StateFile, logger)
	if sums[slug] == res.Checksum {
		logger.Info("data unchanged since last backup", zap.String("dir", dir), zap.String("checksum", res.Checksum))
		res.Skipped = true
		return res, nil
	}

	if store == nil {
		logger.Info("[dry-run] would upload", zap.String("dir", dir), zap.String("bucket", b.Bucket), zap.String("key", res.Key))
		return res, nil
	}

	if _, err := tmpFile.Seek(0, io.SeekStart); err != nil {
		return BackupResult{}, fmt.Errorf("seeking temp file: %w", err)
	}
	logger.Info("backing up", zap.String("dir", dir), zap.String("bucket", b.Bucket), zap.String("key", res.Key))
	if err := store.Upload(ctx, res.Key, tmpFile); err != nil {
		return BackupResult{}, err
	}

	sums[slug] = res.Checksum
	if err := SaveChecksums(b.StateFile, sums); err != nil {
		return BackupResult{}, fmt.Errorf("recording checksum: %w", err)
	}
	return res, nil
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Archive the data directory and upload it to S3",
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		cfg := appConfig
		if err := cfg.Backup.Validate(); err != nil {
			return err
		}

		ctx := cmd.Context()
		var store objectStore
		if !dryRun {
			if err := requireAWSCredentials(); err != nil {
				return err
			}
			s, err := newS3Store(ctx, cfg.Backup.Region, cfg.Backup.Bucket)
			if err != nil {
				return err
			}
			store = s
		}

		res, err := BackupDataDir(ctx, store, cfg.Backup, cfg.DataDir, time.Now(), logger)
		if err != nil {
			return fmt.Errorf("backing up %s: %w", cfg.DataDir, err)
		}
		if !res.Skipped && store != nil {
			logger.Info("backup complete", zap.String("key", res.Key))
		}
		return nil
	},
}

func init() {
	backupCmd.Flags().Bool("dry-run", false, "log the planned upload without uploading")
}

func requireAWSCredentials() error {
	if os.Getenv("AWS_ACCESS_KEY_ID") == "" || os.Getenv("AWS_SECRET_ACCESS_KEY") == "" {
		return fmt.Errorf("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set")
	}
	return nil
}
