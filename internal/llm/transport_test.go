package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestClipNoteShortPassthrough(t *testing.T) {
	note := "a short note\nwith two lines"
	if got := clipNote(note); got != note {
		t.Errorf("clipNote altered a note under the limit: %q", got)
	}
}

func TestClipNoteLongNote(t *testing.T) {
	line := strings.Repeat("x", 100) + "\n"
	note := strings.Repeat(line, maxNoteBytes/len(line)+10)

	got := clipNote(note)
	if len(got) > maxNoteBytes+len("\n\n[note truncated]") {
		t.Errorf("clipped note still %d bytes", len(got))
	}
	if !strings.HasSuffix(got, "[note truncated]") {
		t.Errorf("clipped note missing truncation marker: %q", got[len(got)-40:])
	}
	// The cut lands on a line boundary, never mid-line.
	body := strings.TrimSuffix(got, "\n\n[note truncated]")
	if !strings.HasSuffix(body, strings.Repeat("x", 100)) {
		t.Errorf("clip tore a line: %q", body[len(body)-20:])
	}
}

func TestOllamaRequestShape(t *testing.T) {
	var got ollamaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(ollamaResponse{Response: "compressed"})
	}))
	defer srv.Close()

	o := NewOllama(srv.URL, "llama3.2")
	resp, err := o.Complete(context.Background(), "the note body")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "compressed" || resp.Provider != "ollama" {
		t.Errorf("resp = %+v", resp)
	}

	if got.Model != "llama3.2" || got.Prompt != "the note body" || got.Stream {
		t.Errorf("request = %+v", got)
	}
	if got.Options.Temperature != compressionTemperature {
		t.Errorf("temperature = %v, want %v", got.Options.Temperature, compressionTemperature)
	}
	if got.Options.NumPredict != compressionMaxTokens {
		t.Errorf("num_predict = %d, want %d", got.Options.NumPredict, compressionMaxTokens)
	}
	// Long notes overflow the local default window, so the request pins
	// one wide enough for the largest clipped prompt.
	if got.Options.NumCtx != 32768 {
		t.Errorf("num_ctx = %d", got.Options.NumCtx)
	}
}
