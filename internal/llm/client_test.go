package llm

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lucerna/catalog-engine/internal/config"
	"github.com/lucerna/catalog-engine/internal/domain"
)

func testPage() domain.PageUnit {
	img := image.NewRGBA(image.Rect(0, 0, 40, 60))
	for y := 0; y < 60; y++ {
		for x := 0; x < 40; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 6), G: uint8(y * 4), B: 128, A: 255})
		}
	}
	return domain.PageUnit{Number: 3, Text: "LX-200 Orbit Pendant 3120,00", Image: img}
}

func chatResponse(content string) []byte {
	resp := Response{
		ID: "gen-1",
		Choices: []Choice{
			{Message: ChatMessage{Role: "assistant", Content: content}, FinishReason: "stop"},
		},
	}
	b, _ := json.Marshal(resp)
	return b
}

func testClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := NewClient(config.LLMConfig{
		BaseURL:        url,
		APIKey:         "test-key",
		Model:          "test-model",
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		RequestTimeout: 5 * time.Second,
	}, nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestExtractProductsRetriesTransientFailures(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Authorization = %q", auth)
		}
		switch calls {
		case 1:
			w.WriteHeader(http.StatusTooManyRequests)
		case 2:
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.Write(chatResponse(`[{"codes":["LX-200"],"name":"Orbit Pendant","price":3120.00,"currency":"EUR"}]`))
		}
	}))
	defer srv.Close()

	recs, err := testClient(t, srv.URL).ExtractProducts(context.Background(), testPage())
	if err != nil {
		t.Fatalf("ExtractProducts: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	if recs[0].Codes[0] != "LX-200" || recs[0].PageNumber != 3 {
		t.Errorf("unexpected record: %+v", recs[0])
	}
}

func TestExtractProductsRetriesMalformedPayload(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Write(chatResponse("Sorry, I cannot read this page."))
			return
		}
		w.Write(chatResponse("```json\n[{\"codes\":[\"AC-9\"],\"name\":\"Canopy\"}]\n```"))
	}))
	defer srv.Close()

	recs, err := testClient(t, srv.URL).ExtractProducts(context.Background(), testPage())
	if err != nil {
		t.Fatalf("ExtractProducts: %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if len(recs) != 1 || recs[0].Codes[0] != "AC-9" {
		t.Errorf("unexpected records: %+v", recs)
	}
}

func TestExtractProductsExhaustsAttempts(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := testClient(t, srv.URL).ExtractProducts(context.Background(), testPage())
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if !domain.IsType(err, domain.ErrorTypeExtraction) {
		t.Errorf("expected page-local extraction error, got %v", err)
	}
	if !domain.IsType(err, domain.ErrorTypeAPI) {
		t.Errorf("expected wrapped API error, got %v", err)
	}
}

func TestExtractProductsSchemaInvalidCountsAsAttempt(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		// Entries without identity never reach the caller.
		w.Write(chatResponse(`[{"price":10.0}]`))
	}))
	defer srv.Close()

	_, err := testClient(t, srv.URL).ExtractProducts(context.Background(), testPage())
	if err == nil {
		t.Fatal("expected error for schema-invalid payload")
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if !domain.IsType(err, domain.ErrorTypeValidation) {
		t.Errorf("expected wrapped validation error, got %v", err)
	}
}

func TestExtractProductsHonorsCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testClient(t, srv.URL).ExtractProducts(ctx, testPage())
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestDescribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "test-model" {
			t.Errorf("model = %q", req.Model)
		}
		w.Write(chatResponse("Black metal pendant lamp with a spherical glass diffuser."))
	}))
	defer srv.Close()

	caption, err := testClient(t, srv.URL).Describe(context.Background(), testPage().Image)
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if caption == "" {
		t.Error("empty caption")
	}
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient(config.LLMConfig{BaseURL: "http://localhost"}, nil)
	if err == nil {
		t.Fatal("expected error for missing API key")
	}
	if !domain.IsType(err, domain.ErrorTypeConfig) {
		t.Errorf("expected config error, got %v", err)
	}
}

func TestCalculateBackoff(t *testing.T) {
	initial := time.Second
	max := 30 * time.Second
	for i, want := range []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
		16 * time.Second, 30 * time.Second, 30 * time.Second,
	} {
		if got := calculateBackoff(i, initial, max); got != want {
			t.Errorf("calculateBackoff(%d) = %v, want %v", i, got, want)
		}
	}
}

func TestEncodeImageDataURLDownscales(t *testing.T) {
	big := image.NewRGBA(image.Rect(0, 0, 4096, 2048))
	url, err := encodeImageDataURL(big)
	if err != nil {
		t.Fatalf("encodeImageDataURL: %v", err)
	}
	const prefix = "data:image/jpeg;base64,"
	if len(url) <= len(prefix) || url[:len(prefix)] != prefix {
		t.Fatalf("unexpected data URL prefix: %.40s", url)
	}

	scaled := downscale(big, 1024)
	b := scaled.Bounds()
	if b.Dx() != 1024 || b.Dy() != 512 {
		t.Errorf("downscaled to %dx%d, want 1024x512", b.Dx(), b.Dy())
	}

	small := image.NewRGBA(image.Rect(0, 0, 100, 100))
	if got := downscale(small, 1024); got != image.Image(small) {
		t.Error("image within bounds should be returned unchanged")
	}
}
