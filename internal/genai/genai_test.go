package genai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	t.Setenv("TEST_GENAI_KEY", "secret")
	return NewClient(Options{
		BaseURL:            srv.URL,
		APIKeyEnv:          "TEST_GENAI_KEY",
		Model:              "test-model",
		ImageModel:         "test-image",
		TranscriptionModel: "test-whisper",
	})
}

func TestCompleteReturnsFirstChoice(t *testing.T) {
	var gotBody map[string]any
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("missing auth header, got %q", got)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": "hello"}},
			},
		})
	})

	out, err := c.Complete(context.Background(), "be brief", "say hi", 50)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "hello" {
		t.Errorf("got %q, want hello", out)
	}
	messages := gotBody["messages"].([]any)
	if len(messages) != 2 {
		t.Fatalf("expected system + user message, got %d", len(messages))
	}
	if role := messages[0].(map[string]any)["role"]; role != "system" {
		t.Errorf("first message role = %v, want system", role)
	}
}

func TestCompleteOmitsEmptySystemPrompt(t *testing.T) {
	var gotBody map[string]any
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"content": "ok"}}},
		})
	})

	if _, err := c.Complete(context.Background(), "", "prompt", 0); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got := len(gotBody["messages"].([]any)); got != 1 {
		t.Errorf("expected a single user message, got %d", got)
	}
}

func TestCompleteErrorStatus(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})
	if _, err := c.Complete(context.Background(), "", "prompt", 0); err == nil {
		t.Fatal("expected error on non-200 status")
	}
}

func TestCompleteRequiresAPIKey(t *testing.T) {
	t.Setenv("EMPTY_KEY", "")
	c := NewClient(Options{APIKeyEnv: "EMPTY_KEY"})
	if c.IsConfigured() {
		t.Fatal("client without key reports configured")
	}
	if _, err := c.Complete(context.Background(), "", "prompt", 0); err == nil {
		t.Fatal("expected error without API key")
	}
}

func TestTranscribeUploadsFile(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parsing form: %v", err)
		}
		if got := r.FormValue("model"); got != "test-whisper" {
			t.Errorf("model field = %q", got)
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("file part: %v", err)
		}
		f.Close()
		json.NewEncoder(w).Encode(map[string]string{"text": "transcribed words"})
	})

	audio := filepath.Join(t.TempDir(), "talk.mp3")
	if err := os.WriteFile(audio, []byte("fake audio"), 0o644); err != nil {
		t.Fatalf("write audio: %v", err)
	}

	text, err := c.Transcribe(context.Background(), audio)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "transcribed words" {
		t.Errorf("got %q", text)
	}
}

func TestGenerateImageDecodesBase64(t *testing.T) {
	raw := []byte{0x89, 'P', 'N', 'G'}
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/images/generations" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]string{{"b64_json": base64.StdEncoding.EncodeToString(raw)}},
		})
	})

	img, err := c.GenerateImage(context.Background(), "a cover")
	if err != nil {
		t.Fatalf("GenerateImage: %v", err)
	}
	if string(img) != string(raw) {
		t.Errorf("image bytes mismatch")
	}
}

func TestCompetenceAnalyze(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req)
		if req["text"] != "transcript text" {
			t.Errorf("unexpected payload: %v", req)
		}
		w.Write([]byte(`{"learning_outcomes": {"skills": []}}`))
	}))
	defer srv.Close()

	c := NewCompetenceClient(srv.URL, 0)
	out, err := c.Analyze(context.Background(), "transcript text")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !json.Valid(out) {
		t.Error("response not valid JSON")
	}
}

func TestCompetenceAnalyzeRejectsInvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>oops</html>"))
	}))
	defer srv.Close()

	c := NewCompetenceClient(srv.URL, 0)
	if _, err := c.Analyze(context.Background(), "text"); err == nil {
		t.Fatal("expected error for non-JSON response")
	}
}

func TestParseJSONResponsePlain(t *testing.T) {
	result, err := ParseJSONResponse(`{"title": "My Talk", "num": 42}`)
	if err != nil {
		t.Fatalf("ParseJSONResponse: %v", err)
	}
	if result["title"] != "My Talk" {
		t.Errorf("title = %v", result["title"])
	}
	if result["num"] != float64(42) {
		t.Errorf("num = %v", result["num"])
	}
}

func TestParseJSONResponseWithCodeFence(t *testing.T) {
	for _, text := range []string{
		"```json\n{\"title\": \"My Talk\"}\n```",
		"```\n{\"title\": \"My Talk\"}\n```",
		"  \n```json\n{\"title\": \"My Talk\"}\n```\n  ",
	} {
		result, err := ParseJSONResponse(text)
		if err != nil {
			t.Fatalf("ParseJSONResponse(%q): %v", text, err)
		}
		if result["title"] != "My Talk" {
			t.Errorf("title = %v for %q", result["title"], text)
		}
	}
}

func TestParseJSONResponseInvalid(t *testing.T) {
	if _, err := ParseJSONResponse("not json"); err == nil {
		t.Error("expected error for invalid JSON")
	}
	if _, err := ParseJSONResponse(""); err == nil {
		t.Error("expected error for empty input")
	}
}
