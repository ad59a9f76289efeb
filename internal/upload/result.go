package upload

import "bulkput/internal/storage"

// Status classifies the terminal outcome of one upload task
type Status string

const (
	StatusSuccess        Status = "success"
	StatusSkipped        Status = "skipped"
	StatusFailedToFinish Status = "failed_to_finish"
)

// Result is the outcome record of a single task execution. Success carries
// the finalized object and no error; Skipped and FailedToFinish carry the
// triggering error for diagnostics.
type Result struct {
	Object   storage.ObjectRef
	Status   Status
	Uploaded *storage.ObjectInfo
	Err      error
}
