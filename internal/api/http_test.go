package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rowqueue/rowq/internal/queue/adapter"
	"github.com/rowqueue/rowq/internal/queue/store/sqlite"
	"github.com/rowqueue/rowq/pkg/client"
)

func newTestServer(t *testing.T) *client.Client {
	t.Helper()

	s, err := sqlite.Open(filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ts := httptest.NewServer(Handler(adapter.New(s, 30*time.Second)))
	t.Cleanup(ts.Close)

	return client.New(ts.URL)
}

func TestQueueLifecycleOverHTTP(t *testing.T) {
	c := newTestServer(t)
	ctx := context.Background()

	exists, err := c.Exists(ctx, "jobs")
	require.NoError(t, err)
	assert.False(t, exists)

	created, err := c.CreateQueue(ctx, "jobs", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = c.CreateQueue(ctx, "jobs", 30*time.Second)
	require.NoError(t, err)
	assert.False(t, created)

	exists, err = c.Exists(ctx, "jobs")
	require.NoError(t, err)
	assert.True(t, exists)

	names, err := c.Queues(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"jobs"}, names)

	ok, err := c.DeleteQueue(ctx, "jobs")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.DeleteQueue(ctx, "jobs")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSendReceiveDeleteOverHTTP(t *testing.T) {
	c := newTestServer(t)
	ctx := context.Background()

	_, err := c.CreateQueue(ctx, "jobs", 0)
	require.NoError(t, err)

	sent, err := c.Send(ctx, "jobs", "  payload  ")
	require.NoError(t, err)
	assert.Equal(t, "payload", sent.Body)
	assert.Nil(t, sent.Handle)

	n, err := c.Count(ctx, "jobs")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	batch, err := c.Receive(ctx, "jobs", 5, time.Minute)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	require.NotNil(t, batch[0].Handle)
	assert.Equal(t, "payload", batch[0].Body)

	ok, err := c.DeleteMessage(ctx, *batch[0].Handle)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.DeleteMessage(ctx, *batch[0].Handle)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSendToMissingQueue(t *testing.T) {
	c := newTestServer(t)

	_, err := c.Send(context.Background(), "missing", "payload")
	assert.Error(t, err)
}

func TestPurgeOverHTTP(t *testing.T) {
	c := newTestServer(t)
	ctx := context.Background()

	_, err := c.CreateQueue(ctx, "jobs", 0)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		_, err := c.Send(ctx, "jobs", "payload")
		require.NoError(t, err)
	}

	n, err := c.Purge(ctx, "jobs")
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)

	count, err := c.Count(ctx, "jobs")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestCapabilitiesOverHTTP(t *testing.T) {
	c := newTestServer(t)

	caps, err := c.Capabilities(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &client.Capabilities{
		Create:        true,
		Delete:        true,
		Send:          true,
		Receive:       true,
		DeleteMessage: true,
		GetQueues:     true,
		Count:         true,
		IsExists:      true,
	}, caps)
}

func TestHealthz(t *testing.T) {
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ts := httptest.NewServer(Handler(adapter.New(s, 30*time.Second)))
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
