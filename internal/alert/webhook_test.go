package alert

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilupskalvis/branchd/internal/models"
)

func TestNewWebhookNotifier_NilWithoutURLs(t *testing.T) {
	assert.Nil(t, NewWebhookNotifier(nil, nil))
	assert.Nil(t, NewWebhookNotifier(&WebhookConfig{}, nil))
}

func TestWebhookNotifier_DeliversPayload(t *testing.T) {
	received := make(chan *models.AlertPayload, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var payload models.AlertPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		received <- &payload
	}))
	defer srv.Close()

	wn := NewWebhookNotifier(&WebhookConfig{URLs: []string{srv.URL}}, nil)
	wn.Notify(&models.AlertPayload{
		Type:         "indexing_failure",
		BranchName:   "feature-x",
		ErrorMessage: "embedding service timeout",
		Severity:     models.AuditError,
	})

	select {
	case payload := <-received:
		assert.Equal(t, "indexing_failure", payload.Type)
		assert.Equal(t, "feature-x", payload.BranchName)
	case <-time.After(5 * time.Second):
		t.Fatal("webhook was never delivered")
	}
}

func TestWebhookNotifier_NoRetryOnClientError(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	wn := NewWebhookNotifier(&WebhookConfig{URLs: []string{srv.URL}}, nil)

	err := wn.post(srv.URL, []byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestWebhookNotifier_RetriesOnServerError(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	wn := NewWebhookNotifier(&WebhookConfig{URLs: []string{srv.URL}}, nil)

	err := wn.post(srv.URL, []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))
}

func TestWebhookNotifier_NilReceiverIsSafe(t *testing.T) {
	var wn *WebhookNotifier
	wn.Notify(&models.AlertPayload{Type: "indexing_failure"})
}

func TestMulti_SkipsNilNotifiers(t *testing.T) {
	delivered := 0
	m := NewMulti(nil, notifierFunc(func(*models.AlertPayload) { delivered++ }), nil)
	m.Notify(&models.AlertPayload{Type: "indexing_failure"})
	assert.Equal(t, 1, delivered)
}

type notifierFunc func(*models.AlertPayload)

func (f notifierFunc) Notify(p *models.AlertPayload) { f(p) }
