package cttso_pieriandx_gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// AWSS3Service handles every object-storage concern: shipping sequencing
// outputs to the diagnostics service's transfer bucket, housing the tracking
// workbook, and holding the reconcile lease object. The client is recreated
// whenever the credential session window lapses.
type AWSS3Service struct {
	profile         string
	region          string
	sessionStart    time.Time
	sessionDuration float64
	client          *s3.Client
}

func NewAWSS3Service(profile, region string, sessionDuration float64) *AWSS3Service {
	return &AWSS3Service{profile: profile, region: region, sessionDuration: sessionDuration}
}

// UploadRunOutputs uploads a staged sequencing run directory to a
// run-scoped prefix, then writes the done marker last. The marker must not
// appear before every data file has landed; the diagnostics service treats
// it as the transfer-complete signal.
func (a *AWSS3Service) UploadRunOutputs(ctx context.Context, bucket, runPrefix, localDir string) error {
	s3Client, err := a.getClient(ctx)
	if err != nil {
		return fmt.Errorf("Failed to get s3 client: '%s': %q", runPrefix, err)
	}
	err = filepath.WalkDir(localDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() == DoneMarkerFile {
			return nil
		}
		rel, err := filepath.Rel(localDir, path)
		if err != nil {
			return err
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		key := fmt.Sprintf("%s/%s", runPrefix, filepath.ToSlash(rel))
		return putObject(ctx, s3Client, content, bucket, key, "application/octet-stream")
	})
	if err != nil {
		return S3UploadError{Key: runPrefix, Err: err}
	}
	doneKey := fmt.Sprintf("%s/%s", runPrefix, DoneMarkerFile)
	if err := putObject(ctx, s3Client, []byte{}, bucket, doneKey, "text/plain"); err != nil {
		return S3UploadError{Key: doneKey, Err: err}
	}
	return nil
}

func (a *AWSS3Service) PutObject(ctx context.Context, bucket, key string, content []byte, contentType string) error {
	s3Client, err := a.getClient(ctx)
	if err != nil {
		return fmt.Errorf("Failed to get s3 client %s:%s: %q", bucket, key, err)
	}
	return putObject(ctx, s3Client, content, bucket, key, contentType)
}

func (a *AWSS3Service) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	s3Client, err := a.getClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("Failed to get s3 client %s:%s: %q", bucket, key, err)
	}
	input := &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	output, err := s3Client.GetObject(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("Failed to get object %s:%s: %v", bucket, key, err)
	}
	defer output.Body.Close()
	data, err := io.ReadAll(output.Body)
	if err != nil {
		return nil, fmt.Errorf("Failed to read object %s:%s: %v", bucket, key, err)
	}
	return data, nil
}

func (a *AWSS3Service) DeleteObject(ctx context.Context, bucket, key string) error {
	s3Client, err := a.getClient(ctx)
	if err != nil {
		return fmt.Errorf("Failed to get s3 client %s:%s: %q", bucket, key, err)
	}
	input := &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if _, err = s3Client.DeleteObject(ctx, input); err != nil {
		return fmt.Errorf("Failed to delete object, %v", err)
	}
	return nil
}

// ErrLeaseHeld is returned when another reconciliation pass holds the
// tracking-store lease.
var ErrLeaseHeld = errors.New("reconcile lease is held by another pass")

type leaseRecord struct {
	Holder     string    `json:"holder"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// AcquireLease writes the lease object guarding the tracking-store
// diff-and-write step. A live lease younger than ttl belongs to another
// pass; a stale one is overwritten. Best effort, not atomic, but strictly
// better than no exclusion at all.
func (a *AWSS3Service) AcquireLease(ctx context.Context, bucket, key, holder string, ttl time.Duration, clock Clock) error {
	data, err := a.GetObject(ctx, bucket, key)
	if err == nil {
		existing, err := UnmarshalT[leaseRecord](data)
		if err == nil && clock.Now().Sub(existing.AcquiredAt) < ttl {
			return fmt.Errorf("%w: held by '%s' since %s", ErrLeaseHeld, existing.Holder, existing.AcquiredAt.Format(time.RFC3339))
		}
	}
	record := leaseRecord{Holder: holder, AcquiredAt: clock.Now()}
	content, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("Failed to marshal lease record: %q", err)
	}
	return a.PutObject(ctx, bucket, key, content, "application/json")
}

func (a *AWSS3Service) ReleaseLease(ctx context.Context, bucket, key string) error {
	return a.DeleteObject(ctx, bucket, key)
}

func putObject(ctx context.Context, client *s3.Client, content []byte, bucket, key, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(content),
		ContentType: aws.String(contentType),
	}
	if _, err := client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("Failed to upload object, %v", err)
	}
	return nil
}

// ObjectExists reports whether an object is present without fetching it.
func (a *AWSS3Service) ObjectExists(ctx context.Context, bucket, key string) (bool, error) {
	s3Client, err := a.getClient(ctx)
	if err != nil {
		return false, fmt.Errorf("Failed to get s3 client %s:%s: %q", bucket, key, err)
	}
	input := &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if _, err := s3Client.HeadObject(ctx, input); err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("Failed to head object %s:%s: %v", bucket, key, err)
	}
	return true, nil
}

func createClient(ctx context.Context, credsProfile, region string) (*s3.Client, error) {
	var client *s3.Client
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithSharedConfigProfile(credsProfile))
	if err != nil {
		return client, fmt.Errorf("Failed to load SDK configuration: %v", err)
	}
	return s3.NewFromConfig(cfg), nil
}

func (a *AWSS3Service) getClient(ctx context.Context) (*s3.Client, error) {
	if a.client == nil || a.sessionIsExpired() {
		s3Client, err := createClient(ctx, a.profile, a.region)
		if err != nil {
			return nil, fmt.Errorf("Failed to create S3 client: %q", err)
		}
		a.sessionStart = time.Now()
		a.client = s3Client
	}
	return a.client, nil
}

func (a *AWSS3Service) sessionIsExpired() bool {
	if a.sessionDuration <= 0 {
		return false
	}
	return time.Since(a.sessionStart).Seconds() >= a.sessionDuration
}
