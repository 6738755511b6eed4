package notify

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
)

func newTestDaemon(webhookURL string) *Daemon {
	return &Daemon{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: time.Second},
	}
}

func TestForwardPostsToWebhook(t *testing.T) {
	var received []byte

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	daemon := newTestDaemon(ts.URL)
	payload := []byte(`{"type":"went_live","session_key":"f1","content_key":"f1","at":"2026-08-29T20:00:00Z"}`)

	err := daemon.forward(&nats.Msg{Data: payload})
	assert.Nil(t, err)
	assert.Equal(t, payload, received)
}

func TestForwardWithoutWebhookOnlyLogs(t *testing.T) {
	daemon := newTestDaemon("")

	err := daemon.forward(&nats.Msg{Data: []byte(`{"type":"ended","session_key":"f1"}`)})
	assert.Nil(t, err)
}

func TestForwardWebhookFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	daemon := newTestDaemon(ts.URL)

	err := daemon.forward(&nats.Msg{Data: []byte(`{"type":"ended","session_key":"f1"}`)})
	assert.NotNil(t, err)
}

func TestForwardMalformedPayload(t *testing.T) {
	daemon := newTestDaemon("")

	err := daemon.forward(&nats.Msg{Data: []byte(`{broken`)})
	assert.NotNil(t, err)
}
