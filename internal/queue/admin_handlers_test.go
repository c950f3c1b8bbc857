package queue_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/harborline/backend-tracking/internal/queue"
)

func TestDLQReplay(t *testing.T) {
	client := newQueueRedis(t)

	store := newMemoryStore()
	handler := queue.AdminHandler{
		Store:             store,
		Queue:             queue.Enqueuer{R: client, Prefix: "adm", DedupTTL: time.Minute, MaxAttempts: 5},
		PageSize:          10,
		VisibilityTimeout: 60 * time.Second,
	}

	raw, err := json.Marshal(struct {
		Kind        string `json:"kind"`
		Key         string `json:"key"`
		Payload     []byte `json:"payload"`
		Attempt     int    `json:"attempt"`
		MaxAttempts int    `json:"max_attempts"`
		AvailableAt int64  `json:"available_at"`
	}{
		Kind:        queue.KindRefresh,
		Key:         "MAEU1234567:container",
		Payload:     []byte(`{"trackingNumber":"MAEU1234567","kind":"container"}`),
		Attempt:     2,
		MaxAttempts: 3,
		AvailableAt: time.Now().UnixNano(),
	})
	require.NoError(t, err)

	entry := queue.DLQEntry{
		Kind:           queue.KindRefresh,
		IdempotencyKey: "MAEU1234567:container",
		Payload:        raw,
		Attempts:       2,
		CreatedAt:      time.Now(),
	}
	id, err := store.Insert(context.Background(), entry)
	require.NoError(t, err)

	body := bytes.NewBufferString(`{"ids":["` + id.String() + `"]}`)
	req := httptest.NewRequest(http.MethodPost, "/internal/queue/dlq/replay", body)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()

	handler.ReplayDLQ(rr, req)

	res := rr.Result()
	require.Equal(t, http.StatusOK, res.StatusCode)
	defer func() { _ = res.Body.Close() }()

	var resp struct {
		Replayed []string          `json:"replayed"`
		Failed   map[string]string `json:"failed"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&resp))
	require.Contains(t, resp.Replayed, id.String())
	require.Empty(t, resp.Failed)

	depth, err := client.ZCard(context.Background(), "adm:queue:"+queue.KindRefresh).Result()
	require.NoError(t, err)
	require.Equal(t, int64(1), depth)

	_, err = store.Get(context.Background(), id)
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestListDLQFiltersByKind(t *testing.T) {
	client := newQueueRedis(t)

	store := newMemoryStore()
	handler := queue.AdminHandler{
		Store:    store,
		Queue:    queue.Enqueuer{R: client, Prefix: "adm"},
		PageSize: 10,
	}

	msg, err := json.Marshal(map[string]any{
		"kind":         queue.KindRefresh,
		"key":          "MSCU7654321:auto",
		"payload":      []byte(`{"trackingNumber":"MSCU7654321"}`),
		"attempt":      3,
		"max_attempts": 3,
	})
	require.NoError(t, err)
	_, err = store.Insert(context.Background(), queue.DLQEntry{
		Kind:           queue.KindRefresh,
		IdempotencyKey: "MSCU7654321:auto",
		Payload:        msg,
		Attempts:       3,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/internal/queue/dlq?kind="+queue.KindRefresh, nil)
	rr := httptest.NewRecorder()
	handler.ListDLQ(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp struct {
		Data  []map[string]any `json:"data"`
		Total int64            `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.EqualValues(t, 1, resp.Total)
	require.Len(t, resp.Data, 1)
	require.Equal(t, queue.KindRefresh, resp.Data[0]["kind"])
}
