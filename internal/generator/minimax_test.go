package generator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGenerateBuildsMultipartRequest(t *testing.T) {
	var form map[string][]string
	var hadReference bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/image_generation" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer mm-key" {
			t.Errorf("auth = %q", got)
		}
		if err := r.ParseMultipartForm(8 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		form = r.MultipartForm.Value
		_, hadReference = r.MultipartForm.File["subject_reference[0]"]
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data":      map[string]interface{}{"image_urls": []string{"https://img.example/1", "https://img.example/2"}},
			"base_resp": map[string]interface{}{"status_code": 0, "status_msg": "success"},
		})
	}))
	defer srv.Close()

	c := New(Config{APIKey: "mm-key", BaseURL: srv.URL}, srv.Client(), nil)

	urls, err := c.Generate(context.Background(), Request{
		Prompt:        "vintage concert poster",
		Count:         2,
		Reference:     strings.NewReader("ref-bytes"),
		ReferenceName: "ref.png",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(urls) != 2 || urls[0] != "https://img.example/1" {
		t.Errorf("urls = %v", urls)
	}

	expect := map[string]string{
		"model":            "image-01",
		"prompt":           "vintage concert poster",
		"aspect_ratio":     "1:1",
		"response_format":  "url",
		"n":                "2",
		"prompt_optimizer": "true",
	}
	for field, want := range expect {
		if got := first(form[field]); got != want {
			t.Errorf("form[%s] = %q, want %q", field, got, want)
		}
	}
	if !hadReference {
		t.Error("subject reference part missing")
	}
}

func TestGenerateClampsCount(t *testing.T) {
	var n string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseMultipartForm(1 << 20)
		n = first(r.MultipartForm.Value["n"])
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{"image_urls": []string{"https://img.example/1"}},
		})
	}))
	defer srv.Close()

	c := New(Config{APIKey: "k", BaseURL: srv.URL}, srv.Client(), nil)

	if _, err := c.Generate(context.Background(), Request{Prompt: "prompt", Count: 0}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if n != "1" {
		t.Errorf("n = %q, want 1 for zero count", n)
	}

	if _, err := c.Generate(context.Background(), Request{Prompt: "prompt", Count: 99}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if n != "6" {
		t.Errorf("n = %q, want clamped to 6", n)
	}
}

func TestGenerateProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data":      map[string]interface{}{"image_urls": []string{}},
			"base_resp": map[string]interface{}{"status_code": 1008, "status_msg": "insufficient balance"},
		})
	}))
	defer srv.Close()

	c := New(Config{APIKey: "k", BaseURL: srv.URL}, srv.Client(), nil)

	_, err := c.Generate(context.Background(), Request{Prompt: "prompt"})
	if err == nil || !strings.Contains(err.Error(), "insufficient balance") {
		t.Fatalf("err = %v, want provider message surfaced", err)
	}
}

func TestGenerateRequiresPrompt(t *testing.T) {
	c := New(Config{APIKey: "k"}, nil, nil)
	if _, err := c.Generate(context.Background(), Request{Prompt: "   "}); err == nil {
		t.Error("blank prompt accepted")
	}
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
