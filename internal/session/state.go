package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"DF-WIZARD/internal/logger"

	"go.uber.org/zap"
)

// Persisted keys. The first block is the wizard's public contract; the rest
// support server-side staging and caching.
const (
	KeyTemplateID       = "templateId"
	KeyTemplateFileInfo = "templateFileInfo"
	KeyDataFileID       = "dataFileId"
	KeyDataFileInfo     = "dataFileInfo"
	KeyProcessAll       = "processAll"
	KeyStartRow         = "startRow"
	KeyEndRow           = "endRow"
	KeyOutputFormat     = "outputFormat"
	KeyFieldMapping     = "fieldMapping"
	KeyFilenamePattern  = "filenamePattern"

	KeyPendingTemplate = "pendingTemplate"
	KeyPendingDataFile = "pendingDataFile"
	KeyPlaceholders    = "placeholders"
	KeyHeaders         = "headers"
	KeyFlash           = "flash"
)

const (
	DefaultOutputFormat    = "docx"
	DefaultFilenamePattern = "document_{{id}}"
)

// FileInfo describes a file the backend already holds.
type FileInfo struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// StagedFile is a selected file held locally until step 1 continues.
type StagedFile struct {
	Name        string `json:"name"`
	Key         string `json:"key"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type,omitempty"`
}

// State is the typed view of everything the wizard keeps per session.
type State struct {
	TemplateID      string
	TemplateFile    *FileInfo
	DataFileID      string
	DataFile        *FileInfo
	PendingTemplate *StagedFile
	PendingDataFile *StagedFile

	ProcessAll bool
	StartRow   string
	EndRow     string

	OutputFormat    string
	FieldMapping    map[string]string
	FilenamePattern string

	Placeholders []string
	Headers      []string
	Flash        string

	// loaded holds the encoded values as last read or written, so Save can
	// skip keys this request did not touch.
	loaded map[string]string
}

// HasSources reports whether both source files have backend identifiers.
func (s *State) HasSources() bool {
	return s.TemplateID != "" && s.DataFileID != ""
}

// TemplateName is the display name of the selected or uploaded template.
func (s *State) TemplateName() string {
	if s.PendingTemplate != nil {
		return s.PendingTemplate.Name
	}
	if s.TemplateFile != nil {
		return s.TemplateFile.Name
	}
	return ""
}

func (s *State) DataFileName() string {
	if s.PendingDataFile != nil {
		return s.PendingDataFile.Name
	}
	if s.DataFile != nil {
		return s.DataFile.Name
	}
	return ""
}

// Load reads every key of the session into a State. Malformed values are
// logged and treated as absent.
func Load(ctx context.Context, store Store, sid string) (*State, error) {
	raw := make(map[string]string)
	for _, key := range allKeys {
		v, ok, err := store.Get(ctx, sid, key)
		if err != nil {
			return nil, fmt.Errorf("failed to load session key %s: %w", key, err)
		}
		if ok {
			raw[key] = v
		}
	}

	st := &State{
		TemplateID:      raw[KeyTemplateID],
		DataFileID:      raw[KeyDataFileID],
		ProcessAll:      true,
		StartRow:        raw[KeyStartRow],
		EndRow:          raw[KeyEndRow],
		OutputFormat:    DefaultOutputFormat,
		FilenamePattern: DefaultFilenamePattern,
		FieldMapping:    map[string]string{},
		Flash:           raw[KeyFlash],
	}

	if v, ok := raw[KeyProcessAll]; ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			logMalformed(sid, KeyProcessAll, err)
		} else {
			st.ProcessAll = b
		}
	}
	if v := raw[KeyOutputFormat]; v != "" {
		st.OutputFormat = v
	}
	if v := raw[KeyFilenamePattern]; v != "" {
		st.FilenamePattern = v
	}

	if !decode(sid, raw, KeyTemplateFileInfo, &st.TemplateFile) {
		st.TemplateFile = nil
	}
	if !decode(sid, raw, KeyDataFileInfo, &st.DataFile) {
		st.DataFile = nil
	}
	if !decode(sid, raw, KeyPendingTemplate, &st.PendingTemplate) {
		st.PendingTemplate = nil
	}
	if !decode(sid, raw, KeyPendingDataFile, &st.PendingDataFile) {
		st.PendingDataFile = nil
	}
	if !decode(sid, raw, KeyFieldMapping, &st.FieldMapping) || st.FieldMapping == nil {
		st.FieldMapping = map[string]string{}
	}
	if !decode(sid, raw, KeyPlaceholders, &st.Placeholders) {
		st.Placeholders = nil
	}
	if !decode(sid, raw, KeyHeaders, &st.Headers) {
		st.Headers = nil
	}
	st.TemplateID, st.TemplateFile = reconcile(st.TemplateID, st.TemplateFile)
	st.DataFileID, st.DataFile = reconcile(st.DataFileID, st.DataFile)

	loaded, err := st.values()
	if err != nil {
		return nil, err
	}
	st.loaded = loaded
	return st, nil
}

// Save writes the fields that changed since the state was loaded, so two
// requests working on the same session only overwrite the keys each one
// touched. A State that was never loaded writes every key. Empty fields are
// removed rather than stored, so a later Load falls back to defaults.
func Save(ctx context.Context, store Store, sid string, st *State) error {
	values, err := st.values()
	if err != nil {
		return err
	}
	for _, key := range allKeys {
		v := values[key]
		if prev, ok := st.loaded[key]; ok && prev == v {
			continue
		}
		if v == "" {
			err = store.Remove(ctx, sid, key)
		} else {
			err = store.Set(ctx, sid, key, v)
		}
		if err != nil {
			return fmt.Errorf("failed to save session key %s: %w", key, err)
		}
	}
	st.loaded = values
	return nil
}

func (s *State) values() (map[string]string, error) {
	values := map[string]string{
		KeyTemplateID:      s.TemplateID,
		KeyDataFileID:      s.DataFileID,
		KeyProcessAll:      strconv.FormatBool(s.ProcessAll),
		KeyStartRow:        s.StartRow,
		KeyEndRow:          s.EndRow,
		KeyOutputFormat:    s.OutputFormat,
		KeyFilenamePattern: s.FilenamePattern,
		KeyFlash:           s.Flash,
	}

	var err error
	if values[KeyTemplateFileInfo], err = encode(s.TemplateFile); err != nil {
		return nil, err
	}
	if values[KeyDataFileInfo], err = encode(s.DataFile); err != nil {
		return nil, err
	}
	if values[KeyPendingTemplate], err = encode(s.PendingTemplate); err != nil {
		return nil, err
	}
	if values[KeyPendingDataFile], err = encode(s.PendingDataFile); err != nil {
		return nil, err
	}
	if values[KeyPlaceholders], err = encode(s.Placeholders); err != nil {
		return nil, err
	}
	if values[KeyHeaders], err = encode(s.Headers); err != nil {
		return nil, err
	}
	// an empty mapping is still stored so that clearing it survives a reload
	if values[KeyFieldMapping], err = encodeMapping(s.FieldMapping); err != nil {
		return nil, err
	}
	return values, nil
}

// TakeFlash returns and clears the one-shot notification.
func TakeFlash(ctx context.Context, store Store, sid string) (string, error) {
	v, ok, err := store.Get(ctx, sid, KeyFlash)
	if err != nil || !ok {
		return "", err
	}
	if err := store.Remove(ctx, sid, KeyFlash); err != nil {
		return "", err
	}
	return v, nil
}

var allKeys = []string{
	KeyTemplateID,
	KeyTemplateFileInfo,
	KeyDataFileID,
	KeyDataFileInfo,
	KeyProcessAll,
	KeyStartRow,
	KeyEndRow,
	KeyOutputFormat,
	KeyFieldMapping,
	KeyFilenamePattern,
	KeyPendingTemplate,
	KeyPendingDataFile,
	KeyPlaceholders,
	KeyHeaders,
	KeyFlash,
}

// reconcile keeps the identifier key and its info record in agreement.
func reconcile(id string, info *FileInfo) (string, *FileInfo) {
	switch {
	case id == "" && info != nil && info.ID != "":
		return info.ID, info
	case id == "" && info != nil:
		return "", nil
	case id != "" && info == nil:
		return id, &FileInfo{ID: id}
	case id != "":
		info.ID = id
	}
	return id, info
}

// decode reports false when a stored value could not be parsed.
func decode(sid string, raw map[string]string, key string, dst any) bool {
	v, ok := raw[key]
	if !ok || v == "" {
		return true
	}
	if err := json.Unmarshal([]byte(v), dst); err != nil {
		logMalformed(sid, key, err)
		return false
	}
	return true
}

func encode(v any) (string, error) {
	switch x := v.(type) {
	case *FileInfo:
		if x == nil {
			return "", nil
		}
	case *StagedFile:
		if x == nil {
			return "", nil
		}
	case []string:
		if len(x) == 0 {
			return "", nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode session value: %w", err)
	}
	return string(b), nil
}

func encodeMapping(m map[string]string) (string, error) {
	if m == nil {
		m = map[string]string{}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to encode field mapping: %w", err)
	}
	return string(b), nil
}

func logMalformed(sid, key string, err error) {
	logger.Log.Warn("ignoring malformed session value",
		zap.String("session", sid), zap.String("key", key), zap.Error(err))
}
