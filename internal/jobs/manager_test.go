package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/eco-portal/internal/config"
	"github.com/yourusername/eco-portal/internal/logging"
	"github.com/yourusername/eco-portal/internal/observation"
)

type fakeClient struct {
	types []string
	err   error
}

func (f *fakeClient) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.types = append(f.types, task.Type())
	return &asynq.TaskInfo{ID: "task-" + task.Type()}, nil
}

func (f *fakeClient) Close() error { return nil }

func newTestManager(client *fakeClient) *Manager {
	return &Manager{
		cfg:    &config.Config{RetentionDays: 7, RetentionCron: "0 3 * * *"},
		client: client,
		logger: logging.Discard(),
	}
}

func TestEnqueueExport(t *testing.T) {
	client := &fakeClient{}
	m := newTestManager(client)

	id, err := m.EnqueueExport(context.Background(), 8)
	require.NoError(t, err)
	assert.Equal(t, "task-download:export", id)
	assert.Equal(t, []string{TypeExport}, client.types)
}

func TestObservationChangedSchedulesBothRebuilds(t *testing.T) {
	client := &fakeClient{}
	m := newTestManager(client)

	m.ObservationChanged(context.Background(), observation.ChangeEvent{Table: "api_weather", Op: observation.OpCreate})
	m.ObservationChanged(context.Background(), observation.ChangeEvent{Table: "api_location", Op: observation.OpDelete})

	assert.Equal(t, []string{
		TypeRebuildFilter, TypeRebuildLocations,
		TypeRebuildFilter, TypeRebuildLocations,
	}, client.types)
}

func TestObservationChangedSwallowsEnqueueErrors(t *testing.T) {
	m := newTestManager(&fakeClient{err: errors.New("redis: connection refused")})
	assert.NotPanics(t, func() {
		m.ObservationChanged(context.Background(), observation.ChangeEvent{Table: "api_weather", Op: observation.OpUpdate})
	})
	assert.Error(t, m.EnqueueCacheRebuild(context.Background()))
}

func TestNewManagerRejectsBadRedisURL(t *testing.T) {
	_, err := NewManager(&config.Config{QueueRedisURL: "://bad"}, logging.Discard())
	assert.Error(t, err)

	_, err = NewManager(nil, nil)
	assert.Error(t, err)
}
