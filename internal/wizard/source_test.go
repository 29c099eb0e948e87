package wizard

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"DF-WIZARD/internal/backend"
	"DF-WIZARD/internal/session"
	"DF-WIZARD/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func file(name, body string) SourceFile {
	return SourceFile{Name: name, Size: int64(len(body)), Body: strings.NewReader(body)}
}

func TestSelectRejectsWithoutBackendCall(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.wizard.SelectTemplate(ctx, "s1", file("notes.txt", "hi"))
	var ue *UserError
	require.ErrorAs(t, err, &ue)
	assert.Contains(t, ue.Message, "Invalid file type")

	_, err = f.wizard.SelectDataFile(ctx, "s1", SourceFile{Name: "big.xlsx", Size: MaxFileSize + 1, Body: strings.NewReader("")})
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "File size cannot exceed 5MB", ue.Message)

	assert.Zero(t, f.gateway.calls())
	st, err := f.wizard.State(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, st.PendingTemplate)
	assert.Nil(t, st.PendingDataFile)
}

func TestSelectRejectsUnderstatedSize(t *testing.T) {
	f := newFixture(t)
	big := strings.Repeat("x", int(MaxFileSize)+10)

	_, err := f.wizard.SelectTemplate(context.Background(), "s1", SourceFile{Name: "a.docx", Size: 10, Body: strings.NewReader(big)})
	var ue *UserError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "File size cannot exceed 5MB", ue.Message)
}

func TestRejectedSelectionKeepsPriorSelection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.wizard.SelectTemplate(ctx, "s1", file("good.docx", "docx"))
	require.NoError(t, err)
	_, err = f.wizard.SelectTemplate(ctx, "s1", file("bad.pdf", "pdf"))
	require.Error(t, err)

	st, err := f.wizard.State(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "good.docx", st.TemplateName())
}

func TestContinueRequiresBothFiles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.wizard.SelectTemplate(ctx, "s1", file("a.docx", "docx"))
	require.NoError(t, err)

	_, err = f.wizard.ContinueSource(ctx, "s1")
	var ue *UserError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, MsgMissingFiles, ue.Message)
	assert.Zero(t, f.gateway.calls())
}

func TestContinueUploadsAndStoresIdentifiers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.wizard.SelectTemplate(ctx, "s1", file("invoice_template.docx", "template-bytes"))
	require.NoError(t, err)
	_, err = f.wizard.SelectDataFile(ctx, "s1", file("customers.xlsx", "sheet-bytes"))
	require.NoError(t, err)

	st, err := f.wizard.ContinueSource(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, st.HasSources())

	require.Len(t, f.gateway.templateUploads, 1)
	assert.Equal(t, uploadCall{Name: "invoice_template.docx", Body: "template-bytes"}, f.gateway.templateUploads[0])
	require.Len(t, f.gateway.dataUploads, 1)
	assert.Equal(t, "sheet-bytes", f.gateway.dataUploads[0].Body)

	v, _, _ := f.store.Get(ctx, "s1", session.KeyTemplateID)
	assert.Equal(t, "T1", v)
	v, _, _ = f.store.Get(ctx, "s1", session.KeyDataFileInfo)
	assert.JSONEq(t, `{"name":"customers.xlsx","id":"D1"}`, v)
	_, ok, _ := f.store.Get(ctx, "s1", session.KeyPendingTemplate)
	assert.False(t, ok)
}

func TestContinueSkipsAlreadyUploadedFiles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.withSources(t, "s1")

	_, err := f.wizard.ContinueSource(ctx, "s1")
	require.NoError(t, err)
	assert.Zero(t, f.gateway.calls())
}

func TestReselectingTemplateForcesReupload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.withSources(t, "s1")

	st, err := f.wizard.SelectTemplate(ctx, "s1", file("v2.docx", "new-template"))
	require.NoError(t, err)
	assert.Empty(t, st.TemplateID)
	assert.Equal(t, "D1", st.DataFileID, "data file identifier survives")

	_, ok, _ := f.store.Get(ctx, "s1", session.KeyTemplateID)
	assert.False(t, ok)
	_, ok, _ = f.store.Get(ctx, "s1", session.KeyTemplateFileInfo)
	assert.False(t, ok)

	f.gateway.templateID = "T2"
	st, err = f.wizard.ContinueSource(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "T2", st.TemplateID)
	assert.Len(t, f.gateway.templateUploads, 1)
	assert.Empty(t, f.gateway.dataUploads)
}

func TestContinueSurfacesBackendMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.wizard.SelectTemplate(ctx, "s1", file("a.docx", "x"))
	require.NoError(t, err)
	_, err = f.wizard.SelectDataFile(ctx, "s1", file("b.xlsx", "y"))
	require.NoError(t, err)

	f.gateway.uploadErr = &backend.APIError{StatusCode: 400, Message: "Unsupported file format."}
	_, err = f.wizard.ContinueSource(ctx, "s1")
	var ue *UserError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "Unsupported file format.", ue.Message)

	f.gateway.uploadErr = errors.New("connection refused")
	_, err = f.wizard.ContinueSource(ctx, "s1")
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, MsgUploadFailed, ue.Message)

	st, err := f.wizard.State(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, st.HasSources())
	assert.NotNil(t, st.PendingTemplate, "selection kept for retry")
}

func TestContinueWithMissingStagedFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	st, err := f.wizard.SelectTemplate(ctx, "s1", file("a.docx", "x"))
	require.NoError(t, err)
	_, err = f.wizard.SelectDataFile(ctx, "s1", file("b.xlsx", "y"))
	require.NoError(t, err)
	require.NoError(t, f.stager.Delete(ctx, st.PendingTemplate.Key))

	_, err = f.wizard.ContinueSource(ctx, "s1")
	var ue *UserError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, MsgStagedFileGone, ue.Message)

	st, err = f.wizard.State(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, st.PendingTemplate)
}

type typeRecordingStager struct {
	*storage.LocalStager
	contentTypes []string
}

func (s *typeRecordingStager) Put(ctx context.Context, name, contentType string, r io.Reader) (string, int64, error) {
	s.contentTypes = append(s.contentTypes, contentType)
	return s.LocalStager.Put(ctx, name, contentType, r)
}

func TestSelectStagesWithSniffedContentType(t *testing.T) {
	f := newFixture(t)
	stager := &typeRecordingStager{LocalStager: f.stager}
	w := New(f.store, stager, f.gateway, nil)

	st, err := w.SelectTemplate(context.Background(), "s1", file("a.docx", "PK\x03\x04 not really a zip"))
	require.NoError(t, err)

	require.Len(t, stager.contentTypes, 1)
	assert.NotEmpty(t, stager.contentTypes[0])
	assert.Equal(t, stager.contentTypes[0], st.PendingTemplate.ContentType)
}
