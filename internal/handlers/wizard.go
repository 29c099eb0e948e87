package handlers

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"

	"DF-WIZARD/internal/backend"
	"DF-WIZARD/internal/logger"
	"DF-WIZARD/internal/middleware"
	"DF-WIZARD/internal/session"
	"DF-WIZARD/internal/wizard"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

const msgUnexpected = "An unexpected error occurred"

// Templates parses the wizard pages.
func Templates() *template.Template {
	return template.Must(template.ParseFS(templateFS, "templates/*.html"))
}

type WizardHandler struct {
	wizard *wizard.Wizard
}

func NewWizardHandler(w *wizard.Wizard) *WizardHandler {
	return &WizardHandler{wizard: w}
}

func (h *WizardHandler) Register(r gin.IRouter) {
	r.GET("/", h.SourcePage)
	r.POST("/source/template", h.SelectTemplate)
	r.POST("/source/datafile", h.SelectDataFile)
	r.POST("/source/continue", h.ContinueSource)

	r.GET("/conditions", h.ConditionsPage)
	r.POST("/conditions", h.SubmitConditions)

	r.GET("/task", h.TaskPage)
	r.POST("/task/format", h.SetOutputFormat)
	r.POST("/task/mapping", h.SetMapping)
	r.POST("/task/pattern", h.SetFilenamePattern)
	r.POST("/task/pattern/token", h.AppendPlaceholderToken)
	r.POST("/task/back", h.TaskBack)
	r.POST("/task/generate", h.Generate)
}

// Step 1

func (h *WizardHandler) SourcePage(c *gin.Context) {
	h.renderSource(c, http.StatusOK, "")
}

func (h *WizardHandler) SelectTemplate(c *gin.Context) {
	h.selectFile(c, h.wizard.SelectTemplate)
}

func (h *WizardHandler) SelectDataFile(c *gin.Context) {
	h.selectFile(c, h.wizard.SelectDataFile)
}

func (h *WizardHandler) selectFile(c *gin.Context, sel func(ctx context.Context, sid string, f wizard.SourceFile) (*session.State, error)) {
	header, err := c.FormFile("file")
	if err != nil {
		h.renderSource(c, http.StatusBadRequest, "Please choose a file")
		return
	}
	file, err := header.Open()
	if err != nil {
		h.fail(c, err)
		return
	}
	defer file.Close()

	_, err = sel(c.Request.Context(), middleware.SessionID(c), wizard.SourceFile{
		Name: header.Filename,
		Size: header.Size,
		Body: file,
	})
	if err != nil {
		h.sourceError(c, err)
		return
	}
	c.Redirect(http.StatusSeeOther, "/")
}

func (h *WizardHandler) ContinueSource(c *gin.Context) {
	if _, err := h.wizard.ContinueSource(c.Request.Context(), middleware.SessionID(c)); err != nil {
		h.sourceError(c, err)
		return
	}
	c.Redirect(http.StatusSeeOther, "/conditions")
}

func (h *WizardHandler) sourceError(c *gin.Context, err error) {
	var ue *wizard.UserError
	if errors.As(err, &ue) {
		h.renderSource(c, statusFor(ue), ue.Message)
		return
	}
	h.fail(c, err)
}

func (h *WizardHandler) renderSource(c *gin.Context, status int, errMsg string) {
	ctx := c.Request.Context()
	sid := middleware.SessionID(c)
	st, err := h.wizard.State(ctx, sid)
	if err != nil {
		h.fail(c, err)
		return
	}
	hasTemplate := st.TemplateID != "" || st.PendingTemplate != nil
	hasData := st.DataFileID != "" || st.PendingDataFile != nil

	c.HTML(status, "source.html", gin.H{
		"Title":            "Source files",
		"Step":             1,
		"Flash":            h.flash(c),
		"Error":            errMsg,
		"TemplateName":     st.TemplateName(),
		"TemplateUploaded": st.PendingTemplate == nil && st.TemplateID != "",
		"DataFileName":     st.DataFileName(),
		"DataFileUploaded": st.PendingDataFile == nil && st.DataFileID != "",
		"CanContinue":      hasTemplate && hasData,
	})
}

// Step 2

func (h *WizardHandler) ConditionsPage(c *gin.Context) {
	st, err := h.wizard.EnterConditions(c.Request.Context(), middleware.SessionID(c))
	if errors.Is(err, wizard.ErrMissingSources) {
		c.Redirect(http.StatusFound, "/")
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	h.renderConditions(c, http.StatusOK, wizard.RangeSelection{
		ProcessAll: st.ProcessAll,
		StartRow:   st.StartRow,
		EndRow:     st.EndRow,
	}, "")
}

func (h *WizardHandler) SubmitConditions(c *gin.Context) {
	ctx := c.Request.Context()
	sid := middleware.SessionID(c)
	sel := wizard.RangeSelection{
		ProcessAll: c.PostForm("mode") != "range",
		StartRow:   c.PostForm("start_row"),
		EndRow:     c.PostForm("end_row"),
	}

	if c.PostForm("action") == "back" {
		_, err := h.wizard.SaveRange(ctx, sid, sel)
		if err != nil && !errors.Is(err, wizard.ErrMissingSources) {
			h.fail(c, err)
			return
		}
		c.Redirect(http.StatusSeeOther, "/")
		return
	}

	_, err := h.wizard.ContinueRange(ctx, sid, sel)
	var ue *wizard.UserError
	switch {
	case errors.Is(err, wizard.ErrMissingSources):
		c.Redirect(http.StatusSeeOther, "/")
	case errors.As(err, &ue):
		h.renderConditions(c, http.StatusUnprocessableEntity, sel, "")
	case err != nil:
		h.fail(c, err)
	default:
		c.Redirect(http.StatusSeeOther, "/task")
	}
}

func (h *WizardHandler) renderConditions(c *gin.Context, status int, sel wizard.RangeSelection, errMsg string) {
	c.HTML(status, "conditions.html", gin.H{
		"Title":      "Conditions",
		"Step":       2,
		"Flash":      h.flash(c),
		"Error":      errMsg,
		"ProcessAll": sel.ProcessAll,
		"StartRow":   sel.StartRow,
		"EndRow":     sel.EndRow,
		"RangeError": wizard.RangeError(sel.ProcessAll, sel.StartRow, sel.EndRow),
	})
}

// Step 3

type mappingRow struct {
	Placeholder string
	Header      string
}

func (h *WizardHandler) TaskPage(c *gin.Context) {
	h.renderTask(c, http.StatusOK, "")
}

func (h *WizardHandler) SetOutputFormat(c *gin.Context) {
	_, err := h.wizard.SetOutputFormat(c.Request.Context(), middleware.SessionID(c), c.PostForm("format"))
	h.afterTaskEdit(c, err)
}

func (h *WizardHandler) SetMapping(c *gin.Context) {
	_, err := h.wizard.SetMapping(c.Request.Context(), middleware.SessionID(c), c.PostForm("placeholder"), c.PostForm("header"))
	h.afterTaskEdit(c, err)
}

func (h *WizardHandler) SetFilenamePattern(c *gin.Context) {
	_, err := h.wizard.SetFilenamePattern(c.Request.Context(), middleware.SessionID(c), c.PostForm("pattern"))
	h.afterTaskEdit(c, err)
}

func (h *WizardHandler) AppendPlaceholderToken(c *gin.Context) {
	_, err := h.wizard.AppendPlaceholderToken(c.Request.Context(), middleware.SessionID(c), c.PostForm("token"))
	h.afterTaskEdit(c, err)
}

// TaskBack returns to step 2. Every step 3 edit is already persisted.
func (h *WizardHandler) TaskBack(c *gin.Context) {
	c.Redirect(http.StatusSeeOther, "/conditions")
}

func (h *WizardHandler) Generate(c *gin.Context) {
	archive, err := h.wizard.Generate(c.Request.Context(), middleware.SessionID(c))
	if err != nil {
		h.afterTaskEdit(c, err)
		return
	}
	c.Header("Content-Description", "File Transfer")
	c.Header("Content-Transfer-Encoding", "binary")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", wizard.ArchiveFilename))
	c.Data(http.StatusOK, "application/zip", archive.Data)
}

func (h *WizardHandler) afterTaskEdit(c *gin.Context, err error) {
	var ue *wizard.UserError
	switch {
	case err == nil:
		c.Redirect(http.StatusSeeOther, "/task")
	case errors.Is(err, wizard.ErrMissingSources):
		c.Redirect(http.StatusSeeOther, "/")
	case errors.As(err, &ue):
		h.renderTask(c, statusFor(ue), ue.Message)
	default:
		h.fail(c, err)
	}
}

func (h *WizardHandler) renderTask(c *gin.Context, status int, errMsg string) {
	view, err := h.wizard.EnterTask(c.Request.Context(), middleware.SessionID(c))
	if errors.Is(err, wizard.ErrMissingSources) {
		c.Redirect(http.StatusFound, "/")
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	if errMsg == "" {
		errMsg = view.Error
	}

	st := view.State
	placeholders := view.Placeholders
	rows := make([]mappingRow, 0, len(placeholders))
	for _, p := range placeholders {
		rows = append(rows, mappingRow{Placeholder: p, Header: st.FieldMapping[p]})
	}

	c.HTML(status, "task.html", gin.H{
		"Title":           "Mapping",
		"Step":            3,
		"Flash":           h.flash(c),
		"Error":           errMsg,
		"Formats":         wizard.OutputFormats,
		"OutputFormat":    st.OutputFormat,
		"Rows":            rows,
		"Placeholders":    placeholders,
		"Headers":         view.Headers,
		"FilenamePattern": st.FilenamePattern,
		"CanGenerate":     view.CanGenerate(),
	})
}

// shared

func (h *WizardHandler) flash(c *gin.Context) string {
	msg, err := h.wizard.TakeFlash(c.Request.Context(), middleware.SessionID(c))
	if err != nil {
		logger.Log.Warn("failed to read flash", zap.Error(err))
	}
	return msg
}

func (h *WizardHandler) fail(c *gin.Context, err error) {
	_ = c.Error(err)
	logger.Log.Error("wizard request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
	c.HTML(http.StatusInternalServerError, "source.html", gin.H{
		"Title": "Error",
		"Step":  0,
		"Error": msgUnexpected,
	})
}

// statusFor maps a UserError to a response code: failures that came from the
// backend call are 502, everything else is a validation failure.
func statusFor(ue *wizard.UserError) int {
	if ue.Err == nil {
		return http.StatusUnprocessableEntity
	}
	var apiErr *backend.APIError
	if errors.As(ue.Err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError {
		return http.StatusUnprocessableEntity
	}
	return http.StatusBadGateway
}
