package wizard

import (
	"context"
	"testing"

	"DF-WIZARD/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConditionsRequireSources(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.wizard.EnterConditions(ctx, "s1")
	assert.ErrorIs(t, err, ErrMissingSources)
	_, err = f.wizard.SaveRange(ctx, "s1", RangeSelection{ProcessAll: true})
	assert.ErrorIs(t, err, ErrMissingSources)
}

func TestEnterConditionsDefaultsToAllRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Set(ctx, "s1", session.KeyTemplateID, "T1"))
	require.NoError(t, f.store.Set(ctx, "s1", session.KeyDataFileID, "D1"))

	st, err := f.wizard.EnterConditions(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, st.ProcessAll)
}

func TestSaveRangePersistsInvalidEdits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.withSources(t, "s1")

	_, err := f.wizard.SaveRange(ctx, "s1", RangeSelection{ProcessAll: false, StartRow: "5", EndRow: "3"})
	require.NoError(t, err)

	st, err := f.wizard.EnterConditions(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, st.ProcessAll)
	assert.Equal(t, "5", st.StartRow)
	assert.Equal(t, "3", st.EndRow)
}

func TestContinueRangeBlocksInvalidRange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.withSources(t, "s1")

	_, err := f.wizard.ContinueRange(ctx, "s1", RangeSelection{StartRow: "5", EndRow: "3"})
	var ue *UserError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, MsgInvalidRange, ue.Message)
	assert.Zero(t, f.gateway.calls())

	st, err := f.wizard.ContinueRange(ctx, "s1", RangeSelection{StartRow: "2", EndRow: "8"})
	require.NoError(t, err)
	assert.Equal(t, "2", st.StartRow)
}

func TestSaveRangeClearsRowsWhenEmptied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.withSources(t, "s1")

	_, err := f.wizard.SaveRange(ctx, "s1", RangeSelection{StartRow: "1", EndRow: "4"})
	require.NoError(t, err)
	_, err = f.wizard.SaveRange(ctx, "s1", RangeSelection{ProcessAll: true})
	require.NoError(t, err)

	_, ok, _ := f.store.Get(ctx, "s1", session.KeyStartRow)
	assert.False(t, ok)
	v, _, _ := f.store.Get(ctx, "s1", session.KeyProcessAll)
	assert.Equal(t, "true", v)
}
