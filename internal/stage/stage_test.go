package stage_test

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xia2/xia2-go/internal/driver"
	"github.com/xia2/xia2-go/internal/errors"
	"github.com/xia2/xia2-go/internal/logparse"
	"github.com/xia2/xia2-go/internal/stage"
)

type fakeImpl struct {
	id stage.ID
}

func (impl fakeImpl) ID() stage.ID { return impl.id }

func (impl fakeImpl) Run(context.Context, *stage.Job) (*logparse.Record, error) {
	return logparse.NewRecord(impl.id.String(), nil), nil
}

func available(id stage.ID, calls *atomic.Int32) stage.Entry {
	return stage.Entry{ID: id, New: func(context.Context, stage.Env) stage.Attempt {
		if calls != nil {
			calls.Add(1)
		}

		return stage.AvailableAttempt(fakeImpl{id: id})
	}}
}

func unavailable(id stage.ID, calls *atomic.Int32) stage.Entry {
	return stage.Entry{ID: id, New: func(context.Context, stage.Env) stage.Attempt {
		if calls != nil {
			calls.Add(1)
		}

		return stage.UnavailableAttempt(&driver.NotAvailableError{Executable: id.Name()})
	}}
}

func failing(id stage.ID) stage.Entry {
	return stage.Entry{ID: id, New: func(context.Context, stage.Env) stage.Attempt {
		return stage.FailedAttempt(errors.New("broken installation"))
	}}
}

func TestSelectFallbackOrder(t *testing.T) {
	t.Parallel()

	var laterCalls atomic.Int32

	table, err := stage.NewTable(stage.Indexer,
		unavailable(stage.IndexerDials, nil),
		available(stage.IndexerXDS, nil),
		available(stage.IndexerXDSII, &laterCalls),
	)
	require.NoError(t, err)

	for range 10 {
		selection, err := table.Select(context.Background(), stage.None, stage.Env{})
		require.NoError(t, err)
		assert.Equal(t, stage.Selected, selection.Outcome)
		assert.Equal(t, stage.IndexerXDS, selection.ID)
		assert.Equal(t, stage.IndexerXDS, selection.Impl.ID())
		require.Len(t, selection.Tried, 1)
		assert.Equal(t, stage.IndexerDials, selection.Tried[0].ID)
	}

	assert.Zero(t, laterCalls.Load())
}

func TestSelectPreferenceNeverSubstitutes(t *testing.T) {
	t.Parallel()

	var otherCalls atomic.Int32

	table, err := stage.NewTable(stage.Scaler,
		available(stage.ScalerDials, &otherCalls),
		unavailable(stage.ScalerCCP4A, nil),
		available(stage.ScalerXDSA, &otherCalls),
	)
	require.NoError(t, err)

	selection, err := table.Select(context.Background(), stage.ScalerCCP4A, stage.Env{})

	var preselected *stage.PreselectedNotAvailableError
	require.ErrorAs(t, err, &preselected)
	assert.Equal(t, "preselected scaler ccp4a not available", err.Error())
	assert.Nil(t, selection.Impl)
	assert.Equal(t, stage.NoneAvailable, selection.Outcome)
	assert.Zero(t, otherCalls.Load())

	var notAvailable *driver.NotAvailableError
	assert.ErrorAs(t, err, &notAvailable)

	selection, err = table.Select(context.Background(), stage.ScalerXDSA, stage.Env{})
	require.NoError(t, err)
	assert.Equal(t, stage.ScalerXDSA, selection.ID)
}

func TestSelectNoneAvailable(t *testing.T) {
	t.Parallel()

	table, err := stage.NewTable(stage.Refiner,
		unavailable(stage.RefinerDials, nil),
		unavailable(stage.RefinerXDS, nil),
	)
	require.NoError(t, err)

	selection, err := table.Select(context.Background(), stage.None, stage.Env{})
	require.NoError(t, err)
	assert.Equal(t, stage.NoneAvailable, selection.Outcome)
	assert.Nil(t, selection.Impl)
	assert.Len(t, selection.Tried, 2)
}

func TestSelectConstructionFailureStops(t *testing.T) {
	t.Parallel()

	var laterCalls atomic.Int32

	table, err := stage.NewTable(stage.Integrater,
		failing(stage.IntegraterDials),
		available(stage.IntegraterMosflmR, &laterCalls),
	)
	require.NoError(t, err)

	_, err = table.Select(context.Background(), stage.None, stage.Env{})

	var constructionErr *stage.ConstructionError
	require.ErrorAs(t, err, &constructionErr)
	assert.Equal(t, stage.IntegraterDials, constructionErr.ID)
	assert.Zero(t, laterCalls.Load())
}

func TestSelectImplies(t *testing.T) {
	t.Parallel()

	mosflm := available(stage.IntegraterMosflmR, nil)
	mosflm.Implies = stage.Preferences{Scaler: stage.ScalerCCP4A}

	table, err := stage.NewTable(stage.Integrater, mosflm)
	require.NoError(t, err)

	selection, err := table.Select(context.Background(), stage.None, stage.Env{})
	require.NoError(t, err)
	assert.Equal(t, stage.ScalerCCP4A, selection.Implies.Scaler)

	prefs := stage.Preferences{}.Fill(selection.Implies)
	assert.Equal(t, stage.ScalerCCP4A, prefs.Scaler)

	explicit := stage.Preferences{Scaler: stage.ScalerXDSA}.Fill(selection.Implies)
	assert.Equal(t, stage.ScalerXDSA, explicit.Scaler)
}

func TestNewTableValidates(t *testing.T) {
	t.Parallel()

	_, err := stage.NewTable(stage.Indexer, available(stage.ScalerDials, nil))
	require.Error(t, err)

	_, err = stage.NewTable(stage.Indexer, available(stage.IndexerDials, nil), available(stage.IndexerDials, nil))
	require.Error(t, err)

	table, err := stage.NewTable(stage.Indexer, available(stage.IndexerDials, nil))
	require.NoError(t, err)

	_, err = table.Select(context.Background(), stage.IndexerXDS, stage.Env{})

	var unknown *stage.UnknownCandidateError
	require.ErrorAs(t, err, &unknown)

	_, err = table.Select(context.Background(), stage.ScalerDials, stage.Env{})
	require.Error(t, err)
}

func TestParseID(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		kind     stage.Kind
		name     string
		expected stage.ID
		wantErr  bool
	}{
		{stage.Indexer, "DIALS", stage.IndexerDials, false},
		{stage.Integrater, "mosflmr", stage.IntegraterMosflmR, false},
		{stage.Scaler, "", stage.None, false},
		{stage.Refiner, "ccp4a", stage.None, true},
	}

	for _, tc := range testCases {
		t.Run(tc.kind.String()+"/"+tc.name, func(t *testing.T) {
			t.Parallel()

			id, err := stage.ParseID(tc.kind, tc.name)
			if tc.wantErr {
				var unknown *stage.UnknownCandidateError
				require.ErrorAs(t, err, &unknown)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.expected, id)
		})
	}

	var id stage.ID
	require.NoError(t, id.UnmarshalText([]byte("scaler/ccp4a")))
	assert.Equal(t, stage.ScalerCCP4A, id)

	text, err := stage.IntegraterXDSR.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "integrater/xdsr", string(text))
}

func TestPresets(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		expected stage.Preferences
	}{
		{"3dii", stage.Preferences{Indexer: stage.IndexerXDSII, Refiner: stage.RefinerXDS, Integrater: stage.IntegraterXDSR, Scaler: stage.ScalerXDSA}},
		{"dials-aimless", stage.Preferences{Indexer: stage.IndexerDials, Refiner: stage.RefinerDials, Integrater: stage.IntegraterDials, Scaler: stage.ScalerCCP4A}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			prefs, err := stage.Preset(tc.name)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, prefs)
			require.NoError(t, prefs.Validate())
		})
	}

	_, err := stage.Preset("2d")
	require.Error(t, err)

	filled := stage.Preferences{Indexer: stage.IndexerXDS}.Fill(stage.Preferences{Indexer: stage.IndexerDials, Scaler: stage.ScalerDials})
	assert.Equal(t, stage.IndexerXDS, filled.Indexer)
	assert.Equal(t, stage.ScalerDials, filled.Scaler)
}

func TestCatalogCheckAvailability(t *testing.T) {
	t.Parallel()

	indexers, err := stage.NewTable(stage.Indexer, unavailable(stage.IndexerDials, nil), available(stage.IndexerXDS, nil))
	require.NoError(t, err)

	scalers, err := stage.NewTable(stage.Scaler, available(stage.ScalerDials, nil))
	require.NoError(t, err)

	catalog, err := stage.NewCatalog(indexers, scalers)
	require.NoError(t, err)
	assert.Empty(t, catalog.Table(stage.Refiner).Entries())

	results, err := catalog.CheckAvailability(context.Background(), stage.Env{}, 2)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, stage.IndexerDials, results[0].ID)
	assert.Equal(t, stage.Unavailable, results[0].Status)
	assert.Equal(t, stage.Available, results[1].Status)
	assert.Equal(t, stage.ScalerDials, results[2].ID)
}
