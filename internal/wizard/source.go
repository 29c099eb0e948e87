package wizard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"DF-WIZARD/internal/backend"
	"DF-WIZARD/internal/logger"
	"DF-WIZARD/internal/session"
	"DF-WIZARD/internal/storage"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
)

// sniffLen is how much of a file is read to detect its content type.
const sniffLen = 3072

// SourceFile is a file picked by the user in step 1.
type SourceFile struct {
	Name string
	Size int64
	Body io.Reader
}

type sourceKind struct {
	label      string
	extensions []string
	pending    func(st *session.State) **session.StagedFile
	clear      func(st *session.State)
}

var (
	templateKind = sourceKind{
		label:      "template",
		extensions: TemplateExtensions,
		pending:    func(st *session.State) **session.StagedFile { return &st.PendingTemplate },
		clear: func(st *session.State) {
			st.TemplateID = ""
			st.TemplateFile = nil
			st.Placeholders = nil
		},
	}
	dataFileKind = sourceKind{
		label:      "data file",
		extensions: DataFileExtensions,
		pending:    func(st *session.State) **session.StagedFile { return &st.PendingDataFile },
		clear: func(st *session.State) {
			st.DataFileID = ""
			st.DataFile = nil
			st.Headers = nil
		},
	}
)

// SelectTemplate validates and stages a template. An accepted file replaces
// the previous selection and drops the stored template identifier so the next
// Continue uploads it again. A rejected file leaves the session untouched.
func (w *Wizard) SelectTemplate(ctx context.Context, sid string, f SourceFile) (*session.State, error) {
	return w.selectSource(ctx, sid, f, templateKind)
}

// SelectDataFile is SelectTemplate for the data file.
func (w *Wizard) SelectDataFile(ctx context.Context, sid string, f SourceFile) (*session.State, error) {
	return w.selectSource(ctx, sid, f, dataFileKind)
}

func (w *Wizard) selectSource(ctx context.Context, sid string, f SourceFile, kind sourceKind) (*session.State, error) {
	if err := ValidateFile(f.Name, f.Size, kind.extensions); err != nil {
		return nil, err
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f.Body, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("failed to read %s: %w", kind.label, err)
	}
	head = head[:n]
	contentType := mimetype.Detect(head).String()

	// the declared size can lie, so stage at most one byte past the limit
	body := io.LimitReader(io.MultiReader(bytes.NewReader(head), f.Body), MaxFileSize+1)
	key, size, err := w.stager.Put(ctx, f.Name, contentType, body)
	if err != nil {
		return nil, fmt.Errorf("failed to stage %s: %w", kind.label, err)
	}
	if size > MaxFileSize {
		w.discard(ctx, key)
		return nil, ValidateFile(f.Name, size, kind.extensions)
	}

	st, err := session.Load(ctx, w.store, sid)
	if err != nil {
		w.discard(ctx, key)
		return nil, err
	}
	slot := kind.pending(st)
	if *slot != nil {
		w.discard(ctx, (*slot).Key)
	}
	*slot = &session.StagedFile{Name: f.Name, Key: key, Size: size, ContentType: contentType}
	kind.clear(st)

	if err := w.save(ctx, sid, st); err != nil {
		return nil, err
	}
	logger.Log.Info("source file selected",
		zap.String("session", sid),
		zap.String("kind", kind.label),
		zap.String("name", f.Name),
		zap.Int64("size", size),
		zap.String("content_type", contentType))
	return st, nil
}

// ContinueSource uploads every selected file that has no backend identifier
// yet. Files uploaded on an earlier visit are not sent again. Each successful
// upload is persisted at once, so a later failure does not lose it.
func (w *Wizard) ContinueSource(ctx context.Context, sid string) (*session.State, error) {
	st, err := session.Load(ctx, w.store, sid)
	if err != nil {
		return nil, err
	}
	if (st.TemplateID == "" && st.PendingTemplate == nil) || (st.DataFileID == "" && st.PendingDataFile == nil) {
		return st, userError(MsgMissingFiles, nil)
	}

	if st.TemplateID == "" {
		id, err := w.uploadStaged(ctx, st.PendingTemplate, w.gateway.UploadTemplate)
		if err != nil {
			return st, w.uploadFailure(ctx, sid, st, &st.PendingTemplate, err)
		}
		st.TemplateID = id
		st.TemplateFile = &session.FileInfo{Name: st.PendingTemplate.Name, ID: id}
		w.discard(ctx, st.PendingTemplate.Key)
		st.PendingTemplate = nil
		if err := w.save(ctx, sid, st); err != nil {
			return st, err
		}
	}

	if st.DataFileID == "" {
		id, err := w.uploadStaged(ctx, st.PendingDataFile, w.gateway.UploadDataFile)
		if err != nil {
			return st, w.uploadFailure(ctx, sid, st, &st.PendingDataFile, err)
		}
		st.DataFileID = id
		st.DataFile = &session.FileInfo{Name: st.PendingDataFile.Name, ID: id}
		w.discard(ctx, st.PendingDataFile.Key)
		st.PendingDataFile = nil
		if err := w.save(ctx, sid, st); err != nil {
			return st, err
		}
	}

	logger.Log.Info("source files registered",
		zap.String("session", sid),
		zap.String("template_id", st.TemplateID),
		zap.String("data_file_id", st.DataFileID))
	return st, nil
}

func (w *Wizard) uploadStaged(ctx context.Context, staged *session.StagedFile, upload func(context.Context, backend.Upload) (string, error)) (string, error) {
	rc, err := w.stager.Open(ctx, staged.Key)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	return upload(ctx, backend.Upload{Name: staged.Name, ContentType: staged.ContentType, Body: rc})
}

func (w *Wizard) uploadFailure(ctx context.Context, sid string, st *session.State, slot **session.StagedFile, err error) error {
	logger.Log.Warn("source upload failed", zap.String("session", sid), zap.Error(err))
	if errors.Is(err, storage.ErrNotStaged) {
		*slot = nil
		if saveErr := w.save(ctx, sid, st); saveErr != nil {
			return saveErr
		}
		return userError(MsgStagedFileGone, err)
	}
	return userError(backend.Message(err, MsgUploadFailed), err)
}

func (w *Wizard) discard(ctx context.Context, key string) {
	if err := w.stager.Delete(ctx, key); err != nil {
		logger.Log.Warn("failed to delete staged file", zap.String("key", key), zap.Error(err))
	}
}
