package telephony

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCallStatus_Terminal(t *testing.T) {
	terminal := []CallStatus{StatusAnswered, StatusCompleted, StatusBusy, StatusFailed, StatusNoAnswer, StatusCanceled}
	live := []CallStatus{StatusQueued, StatusInitiated, StatusRinging, StatusInProgress}

	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("CallStatus(%q).Terminal() = false; want true", s)
		}
	}
	for _, s := range live {
		if s.Terminal() {
			t.Errorf("CallStatus(%q).Terminal() = true; want false", s)
		}
	}
}

func TestVoiceDocument(t *testing.T) {
	doc := VoiceDocument("Fire at 12 Main St.", "Stay on the line.")
	for _, want := range []string{"<Response>", "<Say>Fire at 12 Main St.</Say>", `<Pause length="2"/>`, "<Say>Stay on the line.</Say>"} {
		if !strings.Contains(doc, want) {
			t.Errorf("VoiceDocument missing %q:\n%s", want, doc)
		}
	}

	escaped := VoiceDocument("a < b & c")
	if !strings.Contains(escaped, "a &lt; b &amp; c") {
		t.Errorf("VoiceDocument did not escape markup: %s", escaped)
	}
}

func TestCallService_Create(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s; want POST", r.Method)
		}
		if !strings.HasSuffix(r.URL.Path, "/Accounts/AC123/Calls.json") {
			t.Errorf("path = %s", r.URL.Path)
		}
		if user, pass, ok := r.BasicAuth(); !ok || user != "AC123" || pass != "tok" {
			t.Errorf("basic auth = %s/%s", user, pass)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		if got := r.PostForm.Get("To"); got != "+15550001111" {
			t.Errorf("To = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{"sid": "CA1", "status": "queued", "to": "+15550001111"})
	}))
	defer srv.Close()

	client := NewClient("AC123", WithAuthToken("tok"), WithBaseURL(srv.URL))
	call, err := client.Calls.Create(context.Background(), &CallRequest{
		To:     "+15550001111",
		From:   "+15559990000",
		Script: VoiceDocument("test"),
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if call.SID != "CA1" || call.Status != StatusQueued {
		t.Errorf("Create() = %+v", call)
	}
}

func TestCallService_Get_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{"code": 20404, "message": "not found"})
	}))
	defer srv.Close()

	client := NewClient("AC123", WithAuthToken("tok"), WithBaseURL(srv.URL))
	_, err := client.Calls.Get(context.Background(), "CAmissing")
	apiErr, ok := err.(*Error)
	if !ok {
		t.Fatalf("Get() error = %T(%v); want *Error", err, err)
	}
	if apiErr.Code != 20404 || apiErr.HTTPStatus != http.StatusNotFound {
		t.Errorf("Get() error = %+v", apiErr)
	}
}

func TestClient_Configured(t *testing.T) {
	if NewClient("", WithAuthToken("")).Configured() {
		t.Error("empty client should not be configured")
	}
	if !NewClient("AC1", WithAuthToken("tok")).Configured() {
		t.Error("client with creds should be configured")
	}
}
