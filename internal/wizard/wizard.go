// Package wizard implements the three wizard steps: source acquisition, range
// selection, and mapping with generation. Every operation loads the typed
// session state, applies one change and persists it before returning.
package wizard

import (
	"context"
	"errors"

	"DF-WIZARD/internal/backend"
	"DF-WIZARD/internal/models"
	"DF-WIZARD/internal/session"
	"DF-WIZARD/internal/storage"
)

// Banner messages shown when the backend gives no message of its own.
const (
	MsgMissingFiles      = "Please upload both template and data files"
	MsgUploadFailed      = "Error uploading files. Please try again."
	MsgLoadFailed        = "Error loading template and data file information."
	MsgEmptyMapping      = "Please map at least one placeholder to a header"
	MsgGenerateFailed    = "Error generating documents"
	MsgGenerated         = "Documents generated and downloaded successfully!"
	MsgInvalidRange      = "End row must be greater than or equal to start row"
	MsgStagedFileGone    = "The selected file is no longer available. Please select it again."
	MsgUnsupportedFormat = "Unsupported output format"
)

// ArchiveFilename is the name the generated archive is saved under,
// whatever output format was chosen.
const ArchiveFilename = "generated_documents.zip"

// ErrMissingSources means a step was entered before both files were uploaded.
// Callers redirect to the first step.
var ErrMissingSources = errors.New("wizard: template or data file not uploaded")

// UserError carries the message rendered in the step's error banner.
type UserError struct {
	Message string
	Err     error
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *UserError) Unwrap() error {
	return e.Err
}

func userError(msg string, err error) *UserError {
	return &UserError{Message: msg, Err: err}
}

// Gateway is the subset of the backend client the wizard needs.
type Gateway interface {
	UploadTemplate(ctx context.Context, file backend.Upload) (string, error)
	UploadDataFile(ctx context.Context, file backend.Upload) (string, error)
	Placeholders(ctx context.Context, templateID string) ([]string, error)
	Headers(ctx context.Context, dataFileID string) ([]string, error)
	CreateGeneration(ctx context.Context, req backend.GenerationRequest) (string, error)
	GenerateDocuments(ctx context.Context, generationID string) (*backend.Archive, error)
}

// HistoryRecorder stores one entry per generation attempt.
type HistoryRecorder interface {
	Record(ctx context.Context, entry *models.GenerationLog)
}

type Wizard struct {
	store   session.Store
	stager  storage.Stager
	gateway Gateway
	history HistoryRecorder
}

func New(store session.Store, stager storage.Stager, gateway Gateway, history HistoryRecorder) *Wizard {
	if history == nil {
		history = nopRecorder{}
	}
	return &Wizard{
		store:   store,
		stager:  stager,
		gateway: gateway,
		history: history,
	}
}

// State loads the session without enforcing any precondition.
func (w *Wizard) State(ctx context.Context, sid string) (*session.State, error) {
	return session.Load(ctx, w.store, sid)
}

// TakeFlash returns and clears the pending notification.
func (w *Wizard) TakeFlash(ctx context.Context, sid string) (string, error) {
	return session.TakeFlash(ctx, w.store, sid)
}

func (w *Wizard) save(ctx context.Context, sid string, st *session.State) error {
	return session.Save(ctx, w.store, sid, st)
}

// requireSources loads the state and fails with ErrMissingSources when step 1
// has not completed.
func (w *Wizard) requireSources(ctx context.Context, sid string) (*session.State, error) {
	st, err := session.Load(ctx, w.store, sid)
	if err != nil {
		return nil, err
	}
	if !st.HasSources() {
		return nil, ErrMissingSources
	}
	return st, nil
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, *models.GenerationLog) {}
