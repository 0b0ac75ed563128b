package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDispatchUnconfigured(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer srv.Close()

	var recorded []Result
	d := NewDispatcher("", 5*time.Second, func(payloadType string, result Result, subject, fileName string) {
		recorded = append(recorded, result)
	})

	if d.Configured() {
		t.Fatal("Configured() = true for empty webhook URL")
	}

	got := d.Dispatch(context.Background(), Payload{Type: "payment.recorded"})
	if got.Success {
		t.Error("Dispatch succeeded with no webhook configured")
	}
	if got.Error == "" {
		t.Error("Dispatch returned empty error detail")
	}
	if hits != 0 {
		t.Errorf("server hits = %d, want 0", hits)
	}
	if len(recorded) != 1 || recorded[0].Success {
		t.Errorf("recorded attempts = %+v, want one failed attempt", recorded)
	}
}

func TestDispatchSuccess(t *testing.T) {
	var gotType string
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		var p Payload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("payload not JSON: %v", err)
		}
		gotType = p.Type
		fmt.Fprint(w, `{"success":true}`)
	}))
	defer srv.Close()

	d := NewDispatcher(srv.URL, 5*time.Second, nil)
	got := d.Dispatch(context.Background(), Payload{
		Type: "payment.recorded",
		Data: map[string]string{"order_id": "ord-1"},
	})

	if !got.Success {
		t.Errorf("Dispatch = %+v, want success", got)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want exactly 1", attempts)
	}
	if gotType != "payment.recorded" {
		t.Errorf("payload type = %q", gotType)
	}
}

func TestDispatchReportedFailureIsNotRetried(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		fmt.Fprint(w, `{"success":false,"error":"mail quota exceeded"}`)
	}))
	defer srv.Close()

	d := NewDispatcher(srv.URL, 5*time.Second, nil)
	got := d.Dispatch(context.Background(), Payload{Type: "payment.recorded"})

	if got.Success {
		t.Error("Dispatch succeeded, want reported failure passed through")
	}
	if got.Error != "mail quota exceeded" {
		t.Errorf("error = %q", got.Error)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want exactly 1", attempts)
	}
}

func TestDispatchNon2xx(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	d := NewDispatcher(srv.URL, 5*time.Second, nil)
	got := d.Dispatch(context.Background(), Payload{Type: "payment.recorded"})

	if got.Success {
		t.Error("Dispatch succeeded on 502")
	}
	if got.Error == "" {
		t.Error("error detail missing on 502")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want exactly 1", attempts)
	}
}

func TestDispatchUnparseable2xxCountsAsDelivered(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "OK")
	}))
	defer srv.Close()

	d := NewDispatcher(srv.URL, 5*time.Second, nil)
	got := d.Dispatch(context.Background(), Payload{Type: "payment.recorded"})

	if !got.Success {
		t.Errorf("Dispatch = %+v, want delivered on 2xx with non-JSON body", got)
	}
}

func TestDispatchRecorderSeesEveryAttempt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success":true}`)
	}))
	defer srv.Close()

	var types []string
	d := NewDispatcher(srv.URL, 5*time.Second, func(payloadType string, result Result, subject, fileName string) {
		types = append(types, payloadType)
	})

	d.Dispatch(context.Background(), Payload{Type: "payment.recorded", Subject: "s", FileName: "r.jpg"})
	d.Dispatch(context.Background(), Payload{Type: "payment.recorded"})

	if len(types) != 2 {
		t.Errorf("recorder saw %d attempts, want 2", len(types))
	}
}
