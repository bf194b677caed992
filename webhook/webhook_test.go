package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestSignVerify(t *testing.T) {
	body := []byte(`{"type":"cluster.completed"}`)
	sig := Sign("s3cret", body)
	if !Verify("s3cret", body, sig) {
		t.Error("valid signature rejected")
	}
	if Verify("other", body, sig) {
		t.Error("signature accepted with wrong secret")
	}
	if Verify("s3cret", body, sig[len("sha256="):]) {
		t.Error("signature without prefix accepted")
	}
}

func TestDeliver_SignsBody(t *testing.T) {
	var got Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if !Verify("key", body, r.Header.Get(SignatureHeader)) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.Unmarshal(body, &got)
	}))
	defer srv.Close()

	ev := NewEvent(EventClusterCompleted, "job-1", map[string]int{"clusters": 3})
	if err := NewNotifier(time.Second, nil).Deliver(context.Background(), srv.URL, "key", ev); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if got.Type != EventClusterCompleted || got.JobID != "job-1" {
		t.Errorf("received %+v", got)
	}
}

func TestDeliverAsync_Retries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	n := NewNotifier(time.Second, []time.Duration{0, time.Millisecond, time.Millisecond})
	if err := <-n.DeliverAsync(srv.URL, "", NewEvent(EventClusterFailed, "job-2", nil)); err != nil {
		t.Fatalf("DeliverAsync: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("attempts = %d, want 3", calls.Load())
	}
}

func TestDeliverAsync_Exhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := NewNotifier(time.Second, []time.Duration{0, 0})
	if err := <-n.DeliverAsync(srv.URL, "", NewEvent(EventClusterFailed, "job-3", nil)); err == nil {
		t.Error("expected error after exhausting retries")
	}
}
