package wizard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"DF-WIZARD/internal/backend"
	"DF-WIZARD/internal/logger"
	"DF-WIZARD/internal/models"
	"DF-WIZARD/internal/session"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// TaskView is what step 3 renders: the restored state plus the freshly
// fetched placeholders and headers.
type TaskView struct {
	State        *session.State
	Placeholders []string
	Headers      []string
	Error        string
}

// CanGenerate mirrors the enabled state of the generate action: at least one
// mapping must match the lists on screen.
func (v *TaskView) CanGenerate() bool {
	return len(validMapping(v.State.FieldMapping, v.Placeholders, v.Headers)) > 0
}

// EnterTask restores step 3 and fetches placeholders and headers in
// parallel. Both must succeed; if either fails the view carries an error and
// no lists. The fetch is bound to ctx, so a caller that goes away abandons it
// and nothing is written back.
func (w *Wizard) EnterTask(ctx context.Context, sid string) (*TaskView, error) {
	st, err := w.requireSources(ctx, sid)
	if err != nil {
		return nil, err
	}
	view := &TaskView{State: st, Placeholders: []string{}, Headers: []string{}}

	var placeholders, headers []string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		placeholders, err = w.gateway.Placeholders(gctx, st.TemplateID)
		return err
	})
	g.Go(func() error {
		var err error
		headers, err = w.gateway.Headers(gctx, st.DataFileID)
		return err
	})
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Log.Warn("failed to load placeholders and headers", zap.String("session", sid), zap.Error(err))
		view.Error = backend.Message(err, MsgLoadFailed)
		return view, nil
	}

	view.Placeholders = placeholders
	view.Headers = headers
	st.Placeholders = placeholders
	st.Headers = headers
	if dropped := pruneMapping(st.FieldMapping, placeholders, headers); len(dropped) > 0 {
		logger.Log.Info("dropped stale field mappings", zap.String("session", sid), zap.Strings("placeholders", dropped))
	}
	if err := w.save(ctx, sid, st); err != nil {
		return nil, err
	}
	return view, nil
}

func (w *Wizard) SetOutputFormat(ctx context.Context, sid, format string) (*session.State, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if !validOutputFormat(format) {
		return nil, userError(MsgUnsupportedFormat, nil)
	}
	return w.updateTask(ctx, sid, func(st *session.State) error {
		st.OutputFormat = format
		return nil
	})
}

// SetMapping upserts one placeholder to header assignment. An empty header
// removes the placeholder from the mapping.
func (w *Wizard) SetMapping(ctx context.Context, sid, placeholder, header string) (*session.State, error) {
	return w.updateTask(ctx, sid, func(st *session.State) error {
		if placeholder == "" {
			return userError("Select a placeholder to map", nil)
		}
		if header == "" {
			delete(st.FieldMapping, placeholder)
			return nil
		}
		if len(st.Placeholders) > 0 && !slices.Contains(st.Placeholders, placeholder) {
			return userError(fmt.Sprintf("Unknown placeholder %q", placeholder), nil)
		}
		if len(st.Headers) > 0 && !slices.Contains(st.Headers, header) {
			return userError(fmt.Sprintf("Unknown column %q", header), nil)
		}
		st.FieldMapping[placeholder] = header
		return nil
	})
}

func (w *Wizard) SetFilenamePattern(ctx context.Context, sid, pattern string) (*session.State, error) {
	return w.updateTask(ctx, sid, func(st *session.State) error {
		st.FilenamePattern = pattern
		return nil
	})
}

// AppendPlaceholderToken appends {{name}} to the filename pattern. The name
// is not checked here; Generate validates the whole pattern.
func (w *Wizard) AppendPlaceholderToken(ctx context.Context, sid, name string) (*session.State, error) {
	name = strings.TrimSpace(name)
	return w.updateTask(ctx, sid, func(st *session.State) error {
		if name == "" {
			return nil
		}
		st.FilenamePattern += "{{" + name + "}}"
		return nil
	})
}

func (w *Wizard) updateTask(ctx context.Context, sid string, apply func(st *session.State) error) (*session.State, error) {
	st, err := w.requireSources(ctx, sid)
	if err != nil {
		return nil, err
	}
	if err := apply(st); err != nil {
		return st, err
	}
	if err := w.save(ctx, sid, st); err != nil {
		return nil, err
	}
	return st, nil
}

// BuildGenerationRequest resolves the generation payload from the session.
// Rows are sent only when not processing every row; a row that does not
// parse is sent as null.
func BuildGenerationRequest(st *session.State) backend.GenerationRequest {
	req := backend.GenerationRequest{
		Template:        st.TemplateID,
		DataFile:        st.DataFileID,
		Mapping:         st.FieldMapping,
		OutputFormat:    st.OutputFormat,
		ProcessAll:      st.ProcessAll,
		FilenamePattern: st.FilenamePattern,
	}
	if !st.ProcessAll {
		if n, ok := parseRow(st.StartRow); ok {
			req.StartRow = &n
		}
		if n, ok := parseRow(st.EndRow); ok {
			req.EndRow = &n
		}
	}
	return req
}

// Generate creates a generation job, runs it and returns the archive. The
// archive is all-or-nothing; any failure is returned as a UserError and the
// session is left as it was so the user can retry.
func (w *Wizard) Generate(ctx context.Context, sid string) (*backend.Archive, error) {
	st, err := w.requireSources(ctx, sid)
	if err != nil {
		return nil, err
	}
	// only mappings that match the fetched lists are sent; without a cached
	// fetch nothing can be checked, so nothing is sent
	mapping := validMapping(st.FieldMapping, st.Placeholders, st.Headers)
	if len(mapping) == 0 {
		return nil, userError(MsgEmptyMapping, nil)
	}
	if unknown := UnknownTokens(st.FilenamePattern, st.Placeholders); len(unknown) > 0 {
		return nil, unknownTokensError(unknown)
	}

	req := BuildGenerationRequest(st)
	req.Mapping = mapping
	entry := newGenerationLog(sid, req)
	start := time.Now()

	archive, err := w.runGeneration(ctx, req, entry)
	entry.DurationMs = time.Since(start).Milliseconds()
	if err != nil {
		entry.Status = models.GenerationStatusFailed
		entry.Error = err.Error()
		w.history.Record(ctx, entry)
		logger.Log.Warn("document generation failed", zap.String("session", sid), zap.Error(err))
		return nil, userError(backend.Message(err, MsgGenerateFailed), err)
	}

	entry.Status = models.GenerationStatusCompleted
	entry.ArchiveSize = int64(len(archive.Data))
	w.history.Record(ctx, entry)

	st.Flash = MsgGenerated
	if err := w.save(ctx, sid, st); err != nil {
		logger.Log.Warn("failed to store generation notice", zap.String("session", sid), zap.Error(err))
	}
	logger.Log.Info("documents generated",
		zap.String("session", sid),
		zap.String("job", entry.JobID),
		zap.String("format", req.OutputFormat),
		zap.Int64("bytes", entry.ArchiveSize))
	return archive, nil
}

func (w *Wizard) runGeneration(ctx context.Context, req backend.GenerationRequest, entry *models.GenerationLog) (*backend.Archive, error) {
	jobID, err := w.gateway.CreateGeneration(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create generation: %w", err)
	}
	entry.JobID = jobID

	archive, err := w.gateway.GenerateDocuments(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("generate documents: %w", err)
	}
	if archive == nil || len(archive.Data) == 0 {
		return nil, errors.New("backend returned an empty archive")
	}
	return archive, nil
}

// pruneMapping removes entries whose placeholder or header is not in the
// fetched lists and returns the removed placeholders.
func pruneMapping(mapping map[string]string, placeholders, headers []string) []string {
	var dropped []string
	for p, h := range mapping {
		if !slices.Contains(placeholders, p) || !slices.Contains(headers, h) {
			delete(mapping, p)
			dropped = append(dropped, p)
		}
	}
	slices.Sort(dropped)
	return dropped
}

func validMapping(mapping map[string]string, placeholders, headers []string) map[string]string {
	valid := make(map[string]string, len(mapping))
	for p, h := range mapping {
		if slices.Contains(placeholders, p) && slices.Contains(headers, h) {
			valid[p] = h
		}
	}
	return valid
}

func newGenerationLog(sid string, req backend.GenerationRequest) *models.GenerationLog {
	mapping, _ := json.Marshal(req.Mapping)
	return &models.GenerationLog{
		ID:              uuid.New().String(),
		SessionID:       sid,
		TemplateID:      req.Template,
		DataFileID:      req.DataFile,
		OutputFormat:    req.OutputFormat,
		ProcessAll:      req.ProcessAll,
		StartRow:        req.StartRow,
		EndRow:          req.EndRow,
		FilenamePattern: req.FilenamePattern,
		Mapping:         string(mapping),
	}
}
