package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/eco-portal/internal/logging"
	"github.com/yourusername/eco-portal/internal/retention"
)

type fakeRunner struct {
	ids []uint
	err error
}

func (f *fakeRunner) Run(_ context.Context, id uint) error {
	f.ids = append(f.ids, id)
	return f.err
}

type fakeRebuilder struct {
	filter, locations int
	err               error
}

func (f *fakeRebuilder) RebuildFilter(context.Context) error {
	f.filter++
	return f.err
}

func (f *fakeRebuilder) RebuildLocations(context.Context) error {
	f.locations++
	return f.err
}

type fakeSweeper struct {
	days []int
}

func (f *fakeSweeper) Sweep(_ context.Context, days int) (retention.Report, error) {
	f.days = append(f.days, days)
	return retention.Report{}, nil
}

func TestHandleExport(t *testing.T) {
	runner := &fakeRunner{}
	w := NewWorker(runner, &fakeRebuilder{}, &fakeSweeper{}, 7, logging.Discard())

	task, err := NewExportTask(15)
	require.NoError(t, err)
	require.NoError(t, w.handleExport(context.Background(), task))
	assert.Equal(t, []uint{15}, runner.ids)

	runner.err = errors.New("no data found for requested categories")
	assert.EqualError(t, w.handleExport(context.Background(), task), "no data found for requested categories")

	bad := asynq.NewTask(TypeExport, []byte("{"))
	assert.ErrorIs(t, w.handleExport(context.Background(), bad), asynq.SkipRetry)

	missing := asynq.NewTask(TypeExport, []byte(`{}`))
	assert.ErrorIs(t, w.handleExport(context.Background(), missing), asynq.SkipRetry)
}

func TestHandleRebuild(t *testing.T) {
	rb := &fakeRebuilder{}
	w := NewWorker(&fakeRunner{}, rb, &fakeSweeper{}, 7, logging.Discard())

	tasks := NewRebuildTasks()
	require.Len(t, tasks, 2)
	require.NoError(t, w.handleRebuildFilter(context.Background(), tasks[0]))
	require.NoError(t, w.handleRebuildLocations(context.Background(), tasks[1]))
	assert.Equal(t, 1, rb.filter)
	assert.Equal(t, 1, rb.locations)

	rb.err = errors.New("redis down")
	assert.Error(t, w.handleRebuildFilter(context.Background(), tasks[0]))
}

func TestHandleSweepUsesPayloadDays(t *testing.T) {
	sw := &fakeSweeper{}
	w := NewWorker(&fakeRunner{}, &fakeRebuilder{}, sw, 7, logging.Discard())

	task, err := NewSweepTask(30)
	require.NoError(t, err)
	require.NoError(t, w.handleSweep(context.Background(), task))

	zero, err := NewSweepTask(0)
	require.NoError(t, err)
	require.NoError(t, w.handleSweep(context.Background(), zero))

	assert.Equal(t, []int{30, 7}, sw.days)
}

func TestNewExportTask(t *testing.T) {
	_, err := NewExportTask(0)
	assert.Error(t, err)

	task, err := NewExportTask(3)
	require.NoError(t, err)
	assert.Equal(t, TypeExport, task.Type())

	var payload ExportPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, uint(3), payload.RequestID)
}
