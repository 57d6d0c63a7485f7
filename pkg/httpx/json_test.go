package httpx

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWriteError(t *testing.T) {
	rr := httptest.NewRecorder()

	WriteError(rr, http.StatusConflict, "request_in_progress", "busy")

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
	if got := rr.Header().Get("Content-Type"); got != "application/json" {
		t.Fatalf("unexpected content type %q", got)
	}
	var body ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Code != "request_in_progress" || body.Message != "busy" {
		t.Fatalf("unexpected error body %#v", body)
	}
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Item string `json:"item"`
	}

	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{name: "valid", body: `{"item":"widget"}`},
		{name: "unknown field", body: `{"item":"widget","price":3}`, wantErr: true},
		{name: "trailing object", body: `{"item":"a"}{"item":"b"}`, wantErr: true},
		{name: "not json", body: `item=widget`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var dst payload
			err := DecodeJSON(req, &dst)
			if tt.wantErr && err == nil {
				t.Fatalf("expected error for %q", tt.body)
			}
			if !tt.wantErr && (err != nil || dst.Item != "widget") {
				t.Fatalf("unexpected decode result %#v err=%v", dst, err)
			}
		})
	}
}
