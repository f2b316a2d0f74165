package dispatch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"lifeline/internal/domain"
	"lifeline/internal/ports"
)

func TestProcessSendsTurnAndDecodesReply(t *testing.T) {
	t.Parallel()

	var got turnRequestBody
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/emergency/turn" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer token-1" {
			t.Errorf("missing bearer token")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode failed: %v", err)
		}
		json.NewEncoder(w).Encode(turnResponseBody{
			SessionID:   "sess-4",
			AIReplyText: "Stay calm, help is coming.",
			Extracted:   domain.ExtractedFields{EmergencyType: "flood"},
			ShouldRoute: true,
		})
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL + "/", AuthToken: "token-1"})
	res, err := client.Process(context.Background(), ports.TurnRequest{
		Utterance:      "my basement is flooding",
		Transcript:     []domain.Turn{{Sender: domain.SenderUser, Text: "my basement is flooding"}},
		CallCenterType: domain.CallCenterMain,
	})
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}

	if got.UserUtterance != "my basement is flooding" {
		t.Fatalf("utterance not sent: %+v", got)
	}
	if len(got.TranscriptSoFar) != 1 {
		t.Fatalf("transcript not sent: %+v", got)
	}
	if res.SessionID != "sess-4" || !res.ShouldRoute {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Extracted.EmergencyType != "flood" {
		t.Fatalf("extracted fields lost: %+v", res.Extracted)
	}
}

func TestProcessReportsServerError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "backend on fire", http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})
	_, err := client.Process(context.Background(), ports.TurnRequest{Utterance: "help"})
	if err == nil {
		t.Fatalf("expected an error on 502")
	}
}

func TestUploadPostsMultipartAudio(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/emergency/audio" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse failed: %v", err)
		}
		if r.FormValue("sessionId") != "sess-4" {
			t.Errorf("session id missing: %q", r.FormValue("sessionId"))
		}
		file, _, err := r.FormFile("audio")
		if err != nil {
			t.Errorf("audio part missing: %v", err)
		} else {
			data, _ := io.ReadAll(file)
			if string(data) != "pcm-bytes" {
				t.Errorf("audio payload mangled: %q", data)
			}
		}
		json.NewEncoder(w).Encode(map[string]string{"audioUrl": "https://cdn.example/a/4"})
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})
	ref, err := client.Upload(context.Background(), "sess-4", []byte("pcm-bytes"))
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if ref != "https://cdn.example/a/4" {
		t.Fatalf("unexpected reference: %q", ref)
	}
}

func TestFinalizePostsRecordAndReturnsID(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/emergency/records" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var rec domain.EmergencyRecord
		if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
			t.Errorf("decode failed: %v", err)
		}
		if rec.Summary != "Emergency call: flood" {
			t.Errorf("summary missing: %+v", rec)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"id": "rec-11"})
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})
	id, err := client.Finalize(context.Background(), domain.EmergencyRecord{
		SessionID: "sess-4",
		Summary:   "Emergency call: flood",
		Priority:  "high",
	})
	if err != nil {
		t.Fatalf("finalize failed: %v", err)
	}
	if id != "rec-11" {
		t.Fatalf("unexpected id: %q", id)
	}
}

func TestFinalizeRejectsMissingID(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{})
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})
	if _, err := client.Finalize(context.Background(), domain.EmergencyRecord{}); err == nil {
		t.Fatalf("expected an error for an empty record id")
	}
}
