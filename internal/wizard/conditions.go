package wizard

import (
	"context"
	"strings"

	"DF-WIZARD/internal/session"
)

// RangeSelection is the step 2 form.
type RangeSelection struct {
	ProcessAll bool
	StartRow   string
	EndRow     string
}

func (r RangeSelection) Valid() bool {
	return ValidRange(r.ProcessAll, r.StartRow, r.EndRow)
}

// EnterConditions loads step 2. It fails with ErrMissingSources when step 1
// has not completed.
func (w *Wizard) EnterConditions(ctx context.Context, sid string) (*session.State, error) {
	return w.requireSources(ctx, sid)
}

// SaveRange persists the selection as entered, valid or not, so moving
// between steps never loses an edit.
func (w *Wizard) SaveRange(ctx context.Context, sid string, sel RangeSelection) (*session.State, error) {
	st, err := w.requireSources(ctx, sid)
	if err != nil {
		return nil, err
	}
	st.ProcessAll = sel.ProcessAll
	st.StartRow = strings.TrimSpace(sel.StartRow)
	st.EndRow = strings.TrimSpace(sel.EndRow)
	if err := w.save(ctx, sid, st); err != nil {
		return nil, err
	}
	return st, nil
}

// ContinueRange persists the selection and reports a UserError when the
// range does not allow moving on to step 3.
func (w *Wizard) ContinueRange(ctx context.Context, sid string, sel RangeSelection) (*session.State, error) {
	st, err := w.SaveRange(ctx, sid, sel)
	if err != nil {
		return nil, err
	}
	if !sel.Valid() {
		return st, userError(RangeError(sel.ProcessAll, sel.StartRow, sel.EndRow), nil)
	}
	return st, nil
}
