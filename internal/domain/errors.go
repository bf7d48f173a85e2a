package domain

import "errors"

// Error taxonomy for the serving layer. Handlers map these onto HTTP
// statuses in one place; services only ever wrap them with %w.
var (
	// ErrArtifactMissing means the backing file for an artifact does not
	// exist. The fix is offline (rerun the training pipeline), so callers
	// see service-unavailable rather than a client error.
	ErrArtifactMissing = errors.New("artifact missing")

	// ErrArtifactCorrupt means the backing file exists but could not be
	// deserialized.
	ErrArtifactCorrupt = errors.New("artifact corrupt")

	// ErrDataUnavailable means the feature table has not been produced
	// yet. Retryable by the caller once the offline pipeline has run.
	ErrDataUnavailable = errors.New("feature data unavailable")

	// ErrNotFound is a normal negative result: the request was valid but
	// no matching record exists.
	ErrNotFound = errors.New("not found")

	// ErrSchemaMismatch means a feature vector is missing columns the
	// model requires. Indicates drift between the offline pipeline and
	// the serving schema; never silently coerced.
	ErrSchemaMismatch = errors.New("feature schema mismatch")
)
