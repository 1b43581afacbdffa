package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWriteError_Envelope(t *testing.T) {
	rr := httptest.NewRecorder()
	NotFound(rr, "CHALLENGE_NOT_FOUND", "no challenge", "rid-1")

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	var body ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != "CHALLENGE_NOT_FOUND" || body.Error.RequestID != "rid-1" {
		t.Fatalf("unexpected envelope: %+v", body.Error)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("unexpected content type %q", ct)
	}
}

func TestDecodeJSON_RejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"completed":true,"extra":1}`))
	var v struct {
		Completed bool `json:"completed"`
	}
	if err := DecodeJSON(req, &v); err == nil {
		t.Fatal("expected error for unknown field")
	}
}
