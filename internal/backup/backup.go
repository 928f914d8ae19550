// Package backup snapshots the SQLite database and ships the snapshot to
// S3-compatible object storage. It runs on the shared cron runner, so a
// failed night is retried the next night rather than immediately.
package backup

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	"github.com/netebla/Milky-Tarot/internal/metrics"
)

// ObjectPutter is the slice of the S3 API the runner needs. Satisfied by
// *s3.Client.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// NewS3Client builds an S3 client with static credentials and an optional
// custom endpoint, which covers Yandex Object Storage and MinIO alike.
func NewS3Client(ctx context.Context, region, endpoint, accessKey, secretKey string) (*s3.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	if err != nil {
		return nil, fmt.Errorf("could not load object storage config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return client, nil
}

// Runner produces database snapshots and uploads them.
type Runner struct {
	db     *sql.DB
	client ObjectPutter
	bucket string
	dbPath string
	tmpDir string
	now    func() time.Time
}

// NewRunner creates a new Runner for the database at dbPath.
func NewRunner(db *sql.DB, client ObjectPutter, bucket, dbPath string) *Runner {
	return &Runner{
		db:     db,
		client: client,
		bucket: bucket,
		dbPath: dbPath,
		tmpDir: os.TempDir(),
		now:    time.Now,
	}
}

// Run takes one snapshot, uploads it under backups/<year>/, and removes the
// local snapshot file.
func (r *Runner) Run(ctx context.Context) error {
	key, size, err := r.upload(ctx)
	if err != nil {
		metrics.BackupResults.WithLabelValues("error").Inc()
		return err
	}
	metrics.BackupResults.WithLabelValues("ok").Inc()
	log.Info().Str("key", key).Int64("size_bytes", size).Msg("Database backup uploaded")
	return nil
}

func (r *Runner) upload(ctx context.Context) (string, int64, error) {
	stamp := r.now().Format("20060102150405")
	base := strings.TrimSuffix(filepath.Base(r.dbPath), ".db")
	tmpPath := filepath.Join(r.tmpDir, fmt.Sprintf("%s-%s.db", base, stamp))

	// VACUUM INTO refuses to overwrite, so the target must not exist yet.
	// The snapshot is a consistent copy even while the bot keeps writing.
	if _, err := r.db.ExecContext(ctx, "VACUUM INTO ?", tmpPath); err != nil {
		return "", 0, fmt.Errorf("could not snapshot database: %w", err)
	}
	defer os.Remove(tmpPath)

	f, err := os.Open(tmpPath)
	if err != nil {
		return "", 0, fmt.Errorf("could not open snapshot: %w", err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return "", 0, fmt.Errorf("could not stat snapshot: %w", err)
	}

	key := fmt.Sprintf("backups/%d/%s-%s.db", r.now().Year(), base, stamp)
	_, err = r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(r.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(fi.Size()),
	})
	if err != nil {
		return "", 0, fmt.Errorf("could not upload snapshot to %s: %w", r.bucket, err)
	}
	return key, fi.Size(), nil
}
