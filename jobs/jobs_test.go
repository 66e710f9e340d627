package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-campus/internal/elections"
	jobmetrics "github.com/odyssey-erp/odyssey-campus/internal/jobs"
	"github.com/odyssey-erp/odyssey-campus/internal/shared"
)

type fakeSyncer struct {
	calls []time.Time
	err   error
}

func (f *fakeSyncer) SyncStatuses(ctx context.Context, now time.Time) (elections.SyncReport, error) {
	f.calls = append(f.calls, now)
	return elections.SyncReport{Activated: []string{"e-1"}}, f.err
}

type fakeReconciler struct {
	single   []string
	statuses []elections.Status
	repair   bool
	reports  map[string]elections.ReconcileReport
	err      error
}

func (f *fakeReconciler) Reconcile(ctx context.Context, id string, repair bool) (elections.ReconcileReport, error) {
	f.single = append(f.single, id)
	f.repair = repair
	if f.err != nil {
		return elections.ReconcileReport{}, f.err
	}
	return f.reports[id], nil
}

func (f *fakeReconciler) ReconcileAll(ctx context.Context, status elections.Status, repair bool) ([]elections.ReconcileReport, error) {
	f.statuses = append(f.statuses, status)
	f.repair = repair
	return []elections.ReconcileReport{{ElectionID: "all-" + string(status)}}, f.err
}

func TestStatusSyncJobUsesClock(t *testing.T) {
	syncer := &fakeSyncer{}
	job := NewStatusSyncJob(syncer, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	job.clock = func() time.Time { return fixed }

	require.NoError(t, job.Handle(context.Background(), NewSyncStatusTask()))
	assert.Equal(t, []time.Time{fixed}, syncer.calls)

	syncer.err = errors.New("db down")
	assert.Error(t, job.Handle(context.Background(), NewSyncStatusTask()))
}

func TestReconcileJobSingleElection(t *testing.T) {
	rec := &fakeReconciler{reports: map[string]elections.ReconcileReport{
		"e-1": {ElectionID: "e-1", Drifts: []elections.Drift{{CandidateID: "c-1", Stored: 3, Counted: 2}, {Stored: 3, Counted: 2}}, Repaired: true},
	}}
	job := NewReconcileJob(rec, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	task, err := NewReconcileTask(ReconcilePayload{ElectionID: "e-1", Repair: true})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, []string{"e-1"}, rec.single)
	assert.True(t, rec.repair)
	assert.Empty(t, rec.statuses)
}

func TestReconcileJobAllElections(t *testing.T) {
	rec := &fakeReconciler{reports: map[string]elections.ReconcileReport{}}
	job := NewReconcileJob(rec, nil, nil)

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskVotesReconcile, nil)))
	assert.Equal(t, []elections.Status{elections.StatusActive, elections.StatusCompleted}, rec.statuses)
	assert.False(t, rec.repair)
}

func TestReconcileJobSkipsRetryForBadInput(t *testing.T) {
	job := NewReconcileJob(&fakeReconciler{}, nil, nil)
	err := job.Handle(context.Background(), asynq.NewTask(TaskVotesReconcile, []byte("{not json")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	missing := &fakeReconciler{err: shared.ErrNotFound}
	job = NewReconcileJob(missing, nil, nil)
	task, err := NewReconcileTask(ReconcilePayload{ElectionID: "gone"})
	require.NoError(t, err)
	err = job.Handle(context.Background(), task)
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func TestHealthHandler(t *testing.T) {
	cases := []struct {
		name      string
		inspector QueueInspector
		status    int
		pending   int
	}{
		{name: "no inspector", status: http.StatusOK},
		{name: "queue info", inspector: stubInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 4}}, status: http.StatusOK, pending: 4},
		{name: "redis down", inspector: stubInspector{err: errors.New("dial tcp")}, status: http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := chi.NewRouter()
			r.Route("/jobs", NewHandler(tc.inspector, nil).MountRoutes)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
			require.Equal(t, tc.status, rec.Code)
			if tc.status != http.StatusOK {
				return
			}
			var env struct {
				Data queueHealth `json:"data"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
			assert.Equal(t, QueueDefault, env.Data.Queue)
			assert.Equal(t, tc.pending, env.Data.Pending)
		})
	}
}

func TestClientEnqueuesTasks(t *testing.T) {
	mr := miniredis.RunT(t)
	client := NewClient(asynq.RedisClientOpt{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	info, err := client.EnqueueReconcile(context.Background(), ReconcilePayload{ElectionID: "e-1", Repair: true})
	require.NoError(t, err)
	assert.Equal(t, TaskVotesReconcile, info.Type)
	assert.Equal(t, QueueDefault, info.Queue)

	var payload ReconcilePayload
	require.NoError(t, json.Unmarshal(info.Payload, &payload))
	assert.Equal(t, ReconcilePayload{ElectionID: "e-1", Repair: true}, payload)

	info, err = client.EnqueueSyncStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, TaskElectionsSyncStatus, info.Type)
	assert.Equal(t, 3, info.MaxRetry)
}
