package spese

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Original statement files can be archived to S3 after a successful ingest
// so a re-download of the source export is never needed. Disabled unless
// SPESE_S3_ENABLED is set.

const (
	speseS3Prefix        = "statements/"
	speseS3DefaultRegion = "eu-south-1"
)

func s3Enabled() bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv("SPESE_S3_ENABLED")))
	return v == "1" || v == "true" || v == "yes"
}

func s3Bucket() string {
	return strings.TrimSpace(os.Getenv("SPESE_S3_BUCKET"))
}

func s3Region() string {
	if r := strings.TrimSpace(os.Getenv("SPESE_S3_REGION")); r != "" {
		return r
	}
	return speseS3DefaultRegion
}

func detectContentType(data []byte) string {
	if len(data) == 0 {
		return "application/octet-stream"
	}
	if len(data) > 512 {
		return http.DetectContentType(data[:512])
	}
	return http.DetectContentType(data)
}

func buildArchiveKey(filename, batchID string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		ext = ".bin"
	}
	return fmt.Sprintf("%s%s%s", speseS3Prefix, batchID, ext)
}

// archiveUpload stores the original file bytes under the batch id. Returns
// the object URL, or "" when archiving is disabled.
func archiveUpload(ctx context.Context, fileBytes []byte, filename, batchID string) (string, error) {
	if !s3Enabled() {
		return "", nil
	}
	bucket := s3Bucket()
	if bucket == "" {
		return "", fmt.Errorf("SPESE_S3_BUCKET not set")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(s3Region()))
	if err != nil {
		return "", fmt.Errorf("load AWS config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	key := buildArchiveKey(filename, batchID)
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(fileBytes),
		ContentType: aws.String(detectContentType(fileBytes)),
	})
	if err != nil {
		return "", fmt.Errorf("upload to s3 (bucket %s, key %s): %w", bucket, key, err)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucket, s3Region(), key), nil
}
