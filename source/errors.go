package source

import "errors"

var (
	// ErrEmptyLocation is returned when no location is given.
	ErrEmptyLocation = errors.New("empty import location")

	// ErrS3NotConfigured is returned for s3:// locations without an S3 client.
	ErrS3NotConfigured = errors.New("s3 client not configured")

	// ErrInvalidS3URL is returned for s3:// locations lacking a bucket or key.
	ErrInvalidS3URL = errors.New("invalid s3 location, want s3://bucket/key")

	// ErrNoExportData is returned when an HTML export carries no jsonData script.
	ErrNoExportData = errors.New("no conversation data found in html export")
)
