package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (wrapped) so
// the pipeline can classify failures without knowing which backend produced
// them:
// - ErrTimeout: the operation exceeded its execution time limit
// - ErrUnavailable: the backend failed for any other reason (connectivity, server error)
var (
	ErrTimeout     = errors.New("operation exceeded time limit")
	ErrUnavailable = errors.New("unavailable")
)
