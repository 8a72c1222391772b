package storage

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/lorenz/internal/dynamo"
	"github.com/san-kum/lorenz/internal/sim"
)

type recordingIndex struct {
	runs []RunMetadata
	err  error
}

func (r *recordingIndex) Record(_ context.Context, meta RunMetadata) error {
	r.runs = append(r.runs, meta)
	return r.err
}

func testResult() *sim.Result {
	return &sim.Result{
		Samples: []sim.Sample{
			{Step: 1, T: 0.005, Y: dynamo.State{0.61, 0.66, 0.69}, HDid: 0.005, HNext: 0.02, Rejected: 0},
			{Step: 2, T: 0.025, Y: dynamo.State{0.65, 0.71, 0.68}, HDid: 0.02, HNext: 0.018, Rejected: 1},
		},
		Initial:     dynamo.State{0.6, 0.65, 0.7},
		Final:       dynamo.State{0.65, 0.71, 0.68},
		T:           0.025,
		StepsTaken:  2,
		Rejections:  1,
		Evaluations: 33,
		Params:      map[string]float64{"r": 25},
		Metrics:     map[string]float64{"mean_step": 0.0125},
		Stopped:     sim.StopSteps,
	}
}

func TestStoreSaveLoad(t *testing.T) {
	st := New(t.TempDir())
	require.NoError(t, st.Init())

	res := testResult()
	meta := NewMetadata("lorenz", sim.DefaultConfig(), res)
	runID, err := st.Save(context.Background(), meta, res.Samples)
	require.NoError(t, err)

	_, err = uuid.Parse(runID)
	assert.NoError(t, err, "run id should be a uuid")

	loaded, err := st.Load(runID)
	require.NoError(t, err)
	assert.Equal(t, runID, loaded.ID)
	assert.Equal(t, "lorenz", loaded.Model)
	assert.Equal(t, 2e-5, loaded.Tolerance)
	assert.Equal(t, 2, loaded.Steps)
	assert.Equal(t, 1, loaded.Rejections)
	assert.Equal(t, "max-steps", loaded.Stopped)
	assert.Equal(t, 25.0, loaded.Params["r"])
	assert.Equal(t, 0.0125, loaded.Metrics["mean_step"])

	trace, err := st.LoadTrace(runID)
	require.NoError(t, err)
	require.Len(t, trace, 3)

	assert.Equal(t, 0.0, trace[0].T)
	assert.Equal(t, dynamo.State{0.6, 0.65, 0.7}, trace[0].Y)
	assert.Equal(t, 0.005, trace[0].HNext)
	for i, want := range res.Samples {
		got := trace[i+1]
		assert.Equal(t, want.Step, got.Step)
		assert.Equal(t, want.T, got.T)
		assert.Equal(t, want.Y, got.Y)
		assert.Equal(t, want.HDid, got.HDid)
		assert.Equal(t, want.HNext, got.HNext)
		assert.Equal(t, want.Rejected, got.Rejected)
	}
}

func TestStoreList(t *testing.T) {
	dir := t.TempDir()
	st := New(dir)

	runs, err := st.List()
	require.NoError(t, err)
	assert.Empty(t, runs)

	missing := New(filepath.Join(dir, "nope"))
	runs, err = missing.List()
	require.NoError(t, err)
	assert.Empty(t, runs)

	res := testResult()
	first, err := st.Save(context.Background(), NewMetadata("lorenz", sim.DefaultConfig(), res), res.Samples)
	require.NoError(t, err)
	second, err := st.Save(context.Background(), NewMetadata("rossler", sim.DefaultConfig(), res), res.Samples)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	// Stray files and directories without metadata are skipped.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "empty"), 0755))

	runs, err = st.List()
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestStoreSaveFailureLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	st := New(dir)

	res := testResult()
	meta := NewMetadata("lorenz", sim.DefaultConfig(), res)
	meta.Metrics = map[string]float64{"mean_step": math.NaN()}

	runID, err := st.Save(context.Background(), meta, res.Samples)
	require.Error(t, err)
	assert.Empty(t, runID)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "failed save must not leave a run directory")

	runs, err := st.List()
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestStoreListSkipsHiddenDirs(t *testing.T) {
	dir := t.TempDir()
	st := New(dir)

	res := testResult()
	_, err := st.Save(context.Background(), NewMetadata("lorenz", sim.DefaultConfig(), res), res.Samples)
	require.NoError(t, err)

	hidden := filepath.Join(dir, ".half-written")
	require.NoError(t, os.Mkdir(hidden, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(hidden, "metadata.json"), []byte(`{"id":"x"}`), 0644))

	runs, err := st.List()
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestStoreFileStructure(t *testing.T) {
	dir := t.TempDir()
	st := New(dir)

	res := testResult()
	runID, err := st.Save(context.Background(), NewMetadata("lorenz", sim.DefaultConfig(), res), res.Samples)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dir, runID, "metadata.json"))
	assert.FileExists(t, filepath.Join(dir, runID, "states.csv"))

	data, err := os.ReadFile(filepath.Join(dir, runID, "states.csv"))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("time,x0,x1,x2,hdid,hnext,rejected\n")))
}

func TestStoreNotFound(t *testing.T) {
	st := New(t.TempDir())

	_, err := st.Load("missing")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = st.LoadTrace("missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestStoreIndex(t *testing.T) {
	idx := &recordingIndex{}
	st := New(t.TempDir()).WithIndex(idx)

	res := testResult()
	runID, err := st.Save(context.Background(), NewMetadata("lorenz", sim.DefaultConfig(), res), res.Samples)
	require.NoError(t, err)
	require.Len(t, idx.runs, 1)
	assert.Equal(t, runID, idx.runs[0].ID)

	idx.err = errors.New("disk full")
	runID, err = st.Save(context.Background(), NewMetadata("lorenz", sim.DefaultConfig(), res), res.Samples)
	assert.Error(t, err)
	assert.NotEmpty(t, runID, "files are written even when indexing fails")
}

func TestReadTraceErrors(t *testing.T) {
	_, err := ReadTrace(bytes.NewBufferString("time,hdid,hnext\n1,2,3\n"))
	assert.Error(t, err, "header without state columns")

	_, err = ReadTrace(bytes.NewBufferString("time,x0,hdid,hnext,rejected\n0,abc,0,0,0\n"))
	assert.Error(t, err)

	samples, err := ReadTrace(bytes.NewBufferString("time,x0,hdid,hnext,rejected\n"))
	require.NoError(t, err)
	assert.Empty(t, samples)
}

func TestWriteTraceEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTrace(&buf, nil))
	assert.Zero(t, buf.Len())
}
