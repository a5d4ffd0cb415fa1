package domain

import "errors"

// ErrDocumentNotFound is returned when a key does not exist in the document store.
var ErrDocumentNotFound = errors.New("document not found")

// ErrNoFlowData is returned when a document has no navigable flow.
var ErrNoFlowData = errors.New("no call flow data available")

// ErrNodeNotFound is returned when a node id is absent from the graph.
var ErrNodeNotFound = errors.New("node not found")

// ErrInvalidNodeID is returned when a new node id is empty.
var ErrInvalidNodeID = errors.New("node id must not be empty")

// ErrDuplicateNode is returned when a new node id already exists.
var ErrDuplicateNode = errors.New("node id already exists")

// ErrBranchNotFound is returned when a branch index is out of range.
var ErrBranchNotFound = errors.New("branch not found")

// ErrNotEditing is returned by mutations issued outside edit mode.
var ErrNotEditing = errors.New("edit mode is not active")

// ErrUnsavedChanges is returned when the user declines to discard unsaved edits.
var ErrUnsavedChanges = errors.New("unsaved changes")

// ErrVersionConflict is returned when a compare-and-swap precondition fails.
var ErrVersionConflict = errors.New("version conflict")

// ErrUnauthorized is returned when the store rejects the write credential.
var ErrUnauthorized = errors.New("invalid or expired credential")

// ErrCredentialRequired is returned when no credential is available for a write.
var ErrCredentialRequired = errors.New("credential required")

// ErrSaveInFlight is returned when a save is triggered while another one runs.
var ErrSaveInFlight = errors.New("save already in progress")

// ErrInvalidLocation is returned for malformed location tokens.
var ErrInvalidLocation = errors.New("invalid location")

// ErrSessionNotFound is returned when a session id is unknown to the manager.
var ErrSessionNotFound = errors.New("session not found")

// ConflictError carries the versions involved in a failed precondition.
type ConflictError struct {
	Key      string
	Expected string
	Current  string
}

func (e *ConflictError) Error() string {
	if e.Expected == "" {
		return "version conflict: " + e.Key + " already exists"
	}
	return "version conflict: " + e.Key + " changed since it was loaded"
}

// Is makes errors.Is(err, ErrVersionConflict) hold.
func (e *ConflictError) Is(target error) bool {
	return target == ErrVersionConflict
}

// Describe converts an error into the text shown to the user.
func Describe(err error) string {
	var conflict *ConflictError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &conflict):
		return "Save failed: this flow was changed elsewhere. Reload to get the latest version."
	case errors.Is(err, ErrUnauthorized):
		return "Save failed: the access credential was rejected. Enter a new one and save again."
	case errors.Is(err, ErrCredentialRequired):
		return "Save cancelled: an access credential is required."
	case errors.Is(err, ErrSaveInFlight):
		return "A save is already in progress."
	case errors.Is(err, ErrDuplicateNode):
		return "A node with that id already exists."
	case errors.Is(err, ErrInvalidNodeID):
		return "Node id cannot be empty."
	case errors.Is(err, ErrNoFlowData):
		return "No call flow data available for this lead."
	case errors.Is(err, ErrDocumentNotFound):
		return "Could not load lead."
	case errors.Is(err, ErrUnsavedChanges):
		return "You have unsaved changes."
	default:
		return err.Error()
	}
}
