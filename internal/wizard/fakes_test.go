package wizard

import (
	"context"
	"io"
	"sync"
	"testing"

	"DF-WIZARD/internal/backend"
	"DF-WIZARD/internal/models"
	"DF-WIZARD/internal/session"
	"DF-WIZARD/internal/storage"

	"github.com/stretchr/testify/require"
)

type uploadCall struct {
	Name string
	Body string
}

// fakeGateway records every call and answers from its fields.
type fakeGateway struct {
	mu sync.Mutex

	templateID string
	dataFileID string
	uploadErr  error

	placeholders    []string
	headers         []string
	placeholdersErr error
	headersErr      error

	jobID       string
	createErr   error
	archive     *backend.Archive
	generateErr error
	// onGenerate runs while a generation is in flight
	onGenerate  func()

	templateUploads []uploadCall
	dataUploads     []uploadCall
	fetches         int
	requests        []backend.GenerationRequest
}

func (f *fakeGateway) UploadTemplate(_ context.Context, file backend.Upload) (string, error) {
	body, _ := io.ReadAll(file.Body)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	f.templateUploads = append(f.templateUploads, uploadCall{Name: file.Name, Body: string(body)})
	return f.templateID, nil
}

func (f *fakeGateway) UploadDataFile(_ context.Context, file backend.Upload) (string, error) {
	body, _ := io.ReadAll(file.Body)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	f.dataUploads = append(f.dataUploads, uploadCall{Name: file.Name, Body: string(body)})
	return f.dataFileID, nil
}

func (f *fakeGateway) Placeholders(context.Context, string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	return f.placeholders, f.placeholdersErr
}

func (f *fakeGateway) Headers(context.Context, string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	return f.headers, f.headersErr
}

func (f *fakeGateway) CreateGeneration(_ context.Context, req backend.GenerationRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.jobID, f.createErr
}

func (f *fakeGateway) GenerateDocuments(context.Context, string) (*backend.Archive, error) {
	if f.onGenerate != nil {
		f.onGenerate()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.archive, f.generateErr
}

func (f *fakeGateway) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.templateUploads) + len(f.dataUploads) + f.fetches + len(f.requests)
}

type memoryRecorder struct {
	mu      sync.Mutex
	entries []*models.GenerationLog
}

func (r *memoryRecorder) Record(_ context.Context, e *models.GenerationLog) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

type fixture struct {
	wizard   *Wizard
	store    *session.MemoryStore
	stager   *storage.LocalStager
	gateway  *fakeGateway
	recorder *memoryRecorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	stager, err := storage.NewLocalStager(t.TempDir())
	require.NoError(t, err)
	f := &fixture{
		store:  session.NewMemoryStore(),
		stager: stager,
		gateway: &fakeGateway{
			templateID:   "T1",
			dataFileID:   "D1",
			placeholders: []string{"name", "amount"},
			headers:      []string{"Name", "Amount", "Date"},
			jobID:        "G1",
			archive:      &backend.Archive{ContentType: "application/zip", Data: []byte("PK\x03\x04")},
		},
		recorder: &memoryRecorder{},
	}
	f.wizard = New(f.store, f.stager, f.gateway, f.recorder)
	return f
}

// withSources seeds a session that already completed step 1 and has the
// fixture's placeholders and headers cached.
func (f *fixture) withSources(t *testing.T, sid string) {
	t.Helper()
	st := &session.State{
		TemplateID:      "T1",
		TemplateFile:    &session.FileInfo{Name: "invoice_template.docx", ID: "T1"},
		DataFileID:      "D1",
		DataFile:        &session.FileInfo{Name: "customers.xlsx", ID: "D1"},
		ProcessAll:      true,
		OutputFormat:    session.DefaultOutputFormat,
		FilenamePattern: session.DefaultFilenamePattern,
		FieldMapping:    map[string]string{},
		Placeholders:    f.gateway.placeholders,
		Headers:         f.gateway.headers,
	}
	require.NoError(t, session.Save(context.Background(), f.store, sid, st))
}
