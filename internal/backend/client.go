package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"DF-WIZARD/internal/logger"

	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "http://localhost:8000"

	templateField = "template_file"
	dataFileField = "data_file"
)

// Client is the typed gateway to the document generation backend.
type Client struct {
	baseURL string
	http    *http.Client
}

// Upload is a file sent to the backend as a multipart part.
type Upload struct {
	Name        string
	ContentType string
	Body        io.Reader
}

// GenerationRequest is the payload of a generation job.
type GenerationRequest struct {
	Template        string            `json:"template"`
	DataFile        string            `json:"data_file"`
	Mapping         map[string]string `json:"mapping"`
	OutputFormat    string            `json:"output_format"`
	ProcessAll      bool              `json:"process_all"`
	StartRow        *int              `json:"start_row"`
	EndRow          *int              `json:"end_row"`
	FilenamePattern string            `json:"filename_pattern"`
}

// Archive is the binary payload returned by a generation run.
type Archive struct {
	ContentType string
	Data        []byte
}

type idResponse struct {
	ID json.RawMessage `json:"id"`
}

type placeholdersResponse struct {
	Placeholders []string `json:"placeholders"`
}

type headersResponse struct {
	Headers []string `json:"headers"`
}

// NewClient builds a gateway client. A zero timeout leaves the transport
// default in place.
func NewClient(baseURL string, timeout time.Duration) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) UploadTemplate(ctx context.Context, file Upload) (string, error) {
	return c.upload(ctx, "/api/templates/", templateField, file)
}

func (c *Client) UploadDataFile(ctx context.Context, file Upload) (string, error) {
	return c.upload(ctx, "/api/datafiles/", dataFileField, file)
}

func (c *Client) Placeholders(ctx context.Context, templateID string) ([]string, error) {
	var out placeholdersResponse
	path := "/api/templates/" + url.PathEscape(templateID) + "/extract_placeholders/"
	if err := c.doJSON(ctx, http.MethodPost, path, nil, &out); err != nil {
		return nil, err
	}
	return nonNil(out.Placeholders), nil
}

func (c *Client) Headers(ctx context.Context, dataFileID string) ([]string, error) {
	var out headersResponse
	path := "/api/datafiles/" + url.PathEscape(dataFileID) + "/get_headers/"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return nonNil(out.Headers), nil
}

func (c *Client) CreateGeneration(ctx context.Context, req GenerationRequest) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to encode generation request: %w", err)
	}
	var out idResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/generations/", payload, &out); err != nil {
		return "", err
	}
	return parseID(out.ID)
}

// GenerateDocuments runs a generation job and returns the archive bytes.
func (c *Client) GenerateDocuments(ctx context.Context, generationID string) (*Archive, error) {
	path := "/api/generations/" + url.PathEscape(generationID) + "/generate_documents/"
	resp, err := c.send(ctx, http.MethodPost, path, "application/json", bytes.NewReader([]byte("{}")))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read generated archive: %w", err)
	}
	return &Archive{ContentType: resp.Header.Get("Content-Type"), Data: data}, nil
}

func (c *Client) upload(ctx context.Context, path, field string, file Upload) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, field, escapeQuotes(file.Name)))
	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)

	part, err := mw.CreatePart(h)
	if err != nil {
		return "", fmt.Errorf("failed to create multipart part: %w", err)
	}
	if _, err := io.Copy(part, file.Body); err != nil {
		return "", fmt.Errorf("failed to copy %s: %w", file.Name, err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart body: %w", err)
	}

	resp, err := c.send(ctx, http.MethodPost, path, mw.FormDataContentType(), &buf)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out idResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode upload response: %w", err)
	}
	return parseID(out.ID)
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload []byte, out any) error {
	var body io.Reader
	contentType := ""
	if payload != nil {
		body = bytes.NewReader(payload)
		contentType = "application/json"
	}
	resp, err := c.send(ctx, method, path, contentType, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

// send issues the request and converts non-2xx answers into *APIError. The
// caller owns the body of a successful response.
func (c *Client) send(ctx context.Context, method, path, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s %s: %w", method, path, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json, application/zip, */*")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		logger.Log.Warn("backend request failed",
			zap.String("method", method), zap.String("path", path), zap.Error(err))
		return nil, fmt.Errorf("backend %s %s: %w", method, path, err)
	}
	logger.Log.Debug("backend request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, readAPIError(resp.StatusCode, resp.Body)
	}
	return resp, nil
}

// parseID accepts both string and numeric identifiers.
func parseID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", fmt.Errorf("backend response has no id")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return "", fmt.Errorf("backend response has an empty id")
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("unexpected id %s: %w", string(raw), err)
	}
	return n.String(), nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
