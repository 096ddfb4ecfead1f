package scanner

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitSendsCallbackHeaderAndBody(t *testing.T) {
	var gotCallback string
	var gotBody SubmitRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCallback = r.Header.Get("X-Callback-Url")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL, CallbackURL: "http://callback.example/hook", ConnectTimeout: time.Second})

	err := client.Submit(context.Background(), SubmitRequest{
		Targets:  []string{"example.com"},
		ScanType: "default",
		ScanID:   "11111111-1111-1111-1111-111111111111",
	})
	require.NoError(t, err)

	assert.Equal(t, "http://callback.example/hook", gotCallback)
	assert.Equal(t, []string{"example.com"}, gotBody.Targets)
	assert.Equal(t, "default", gotBody.ScanType)
}

func TestSubmitReturnsErrorOnNonAcceptedStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL, CallbackURL: "http://callback.example/hook", ConnectTimeout: time.Second})

	err := client.Submit(context.Background(), SubmitRequest{Targets: []string{"example.com"}, ScanType: "default", ScanID: "x"})
	require.Error(t, err)
}

func TestSubmitReturnsErrorOnUnreachableServer(t *testing.T) {
	client := New(Config{BaseURL: "http://127.0.0.1:1", CallbackURL: "http://callback.example/hook", ConnectTimeout: 500 * time.Millisecond})

	err := client.Submit(context.Background(), SubmitRequest{Targets: []string{"example.com"}, ScanType: "default", ScanID: "x"})
	require.Error(t, err)
}
