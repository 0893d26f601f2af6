package evidence

import (
	"context"
	"fmt"
	"os"
)

// Open selects a Store implementation using environment variables.
//
//	ESCROWCORE_EVIDENCE_DRIVER: fs|s3|memory (default fs)
//	ESCROWCORE_EVIDENCE_FS_ROOT: directory root when driver=fs (default ./evidencedata)
//	(S3 specific variables documented in s3.go)
func Open(ctx context.Context) (Store, error) {
	driver := os.Getenv("ESCROWCORE_EVIDENCE_DRIVER")
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		root := os.Getenv("ESCROWCORE_EVIDENCE_FS_ROOT")
		return NewFilesystem(root)
	case DriverS3:
		return OpenS3FromEnv(ctx)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown evidence driver %s", driver)
	}
}
