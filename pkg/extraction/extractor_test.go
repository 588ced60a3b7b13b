package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/menta2k/entity-extractor/pkg/client"
	"github.com/menta2k/entity-extractor/pkg/types"
)

const catalogReply = `{"entities":[{"name":"dog","category":"animals","confidence":"high","location":"center","description":"brown dog","count":1}],"summary":{"total_entities":1,"categories_found":["animals"],"scene_description":"a dog on grass"}}`

// fakeClient answers from a per-URL table and counts calls
type fakeClient struct {
	mu       sync.Mutex
	calls    int32
	replies  map[string]string
	errs     map[string]error
	fallback string
	seen     []types.ImageRef
	prompts  []string
}

func (f *fakeClient) Name() string { return "fake" }

func (f *fakeClient) Complete(ctx context.Context, opts client.Options, prompt string, img types.ImageRef) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	f.seen = append(f.seen, img)
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()

	if err, ok := f.errs[img.URL]; ok {
		return "", err
	}
	if r, ok := f.replies[img.URL]; ok {
		return r, nil
	}
	return f.fallback, nil
}

func (f *fakeClient) callCount() int {
	return int(atomic.LoadInt32(&f.calls))
}

type countingRecorder struct {
	mu          sync.Mutex
	completions int
	successes   int
	failures    int
	warnings    int
}

func (r *countingRecorder) ObserveCompletion(string, time.Duration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completions++
}

func (r *countingRecorder) ObserveResult(_ string, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if success {
		r.successes++
	} else {
		r.failures++
	}
}

func (r *countingRecorder) ObserveWarnings(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnings += n
}

func writeTestPNG(t *testing.T, width, height int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 64, 255})
		}
	}
	path := filepath.Join(t.TempDir(), "photo.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBuildPromptIsConstant(t *testing.T) {
	a, b := BuildPrompt(), BuildPrompt()
	if a != b {
		t.Error("Expected identical prompts")
	}
	for _, c := range types.Categories {
		if !strings.Contains(a, "- "+c+":") {
			t.Errorf("prompt is missing category %s", c)
		}
	}
	if !strings.Contains(a, "Return ONLY a valid JSON object") {
		t.Error("prompt must demand a JSON-only reply")
	}
}

func TestExtractFromPathMissingFile(t *testing.T) {
	fc := &fakeClient{fallback: catalogReply}
	e := NewExtractor(fc, client.Options{Model: "gpt-4.1"})

	result := e.ExtractFromPath(context.Background(), "missing.jpg")
	if result.Success {
		t.Fatal("Expected failure for missing file")
	}
	if result.Error != "Image file not found: missing.jpg" {
		t.Errorf("unexpected error %q", result.Error)
	}
	if result.Entities != nil {
		t.Error("Expected no entities")
	}
	if result.ImageInfo != nil {
		t.Error("Expected no image info")
	}
	if !errors.Is(result.Err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound kind, got %v", result.Err)
	}
	if fc.callCount() != 0 {
		t.Errorf("Expected no model calls, got %d", fc.callCount())
	}
}

func TestExtractFromPathSuccess(t *testing.T) {
	path := writeTestPNG(t, 32, 24)
	fc := &fakeClient{fallback: "Here it is:\n" + catalogReply + "\nEnjoy."}
	rec := &countingRecorder{}
	e := NewExtractor(fc, client.Options{Model: "gpt-4.1"}, WithRecorder(rec))

	result := e.ExtractFromPath(context.Background(), path)
	if !result.Success {
		t.Fatalf("Expected success, got error %q", result.Error)
	}
	if result.Error != "" {
		t.Errorf("Expected empty error, got %q", result.Error)
	}
	if result.ImageInfo == nil || result.ImageInfo.Width != 32 || result.ImageInfo.Height != 24 {
		t.Fatalf("unexpected image info %+v", result.ImageInfo)
	}
	if result.ImageInfo.SizeBytes <= 0 {
		t.Error("Expected positive size_bytes")
	}
	if result.EntityCount() != 1 {
		t.Errorf("Expected 1 entity, got %d", result.EntityCount())
	}
	if result.Catalog == nil || result.Catalog.Entities[0].Name != "dog" || result.Catalog.Entities[0].Count != 1 {
		t.Errorf("unexpected catalog %+v", result.Catalog)
	}
	if len(result.Warnings) != 0 {
		t.Errorf("Expected no warnings, got %+v", result.Warnings)
	}

	if fc.callCount() != 1 {
		t.Fatalf("Expected exactly one model call, got %d", fc.callCount())
	}
	if !fc.seen[0].Inline || !strings.HasPrefix(fc.seen[0].URL, "data:image/png;base64,") {
		t.Errorf("Expected inline data URI, got %.40s", fc.seen[0].URL)
	}
	if fc.prompts[0] != BuildPrompt() {
		t.Error("Expected the extraction prompt to be sent")
	}
	if rec.completions != 1 || rec.successes != 1 {
		t.Errorf("unexpected recorder state %+v", rec)
	}
}

func TestExtractFromPathParseFailureKeepsImageInfo(t *testing.T) {
	path := writeTestPNG(t, 16, 16)
	fc := &fakeClient{fallback: "I'm sorry, I can't help with that."}
	e := NewExtractor(fc, client.Options{Model: "gpt-4.1"})

	result := e.ExtractFromPath(context.Background(), path)
	if result.Success {
		t.Fatal("Expected failure")
	}
	if !errors.Is(result.Err, ErrParse) {
		t.Errorf("Expected ErrParse kind, got %v", result.Err)
	}
	if result.Error != "Could not parse JSON from response" {
		t.Errorf("unexpected error %q", result.Error)
	}
	if result.ImageInfo == nil || result.ImageInfo.Width != 16 {
		t.Errorf("Expected image info on failure, got %+v", result.ImageInfo)
	}
}

func TestExtractFromPathCorruptImageStillCallsModel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "odd.jpg")
	if err := os.WriteFile(path, []byte("definitely not an image"), 0o644); err != nil {
		t.Fatal(err)
	}
	fc := &fakeClient{fallback: catalogReply}
	e := NewExtractor(fc, client.Options{Model: "gpt-4.1"})

	result := e.ExtractFromPath(context.Background(), path)
	if !result.Success {
		t.Fatalf("Metadata failure must not fail extraction, got %q", result.Error)
	}
	if result.ImageInfo == nil || *result.ImageInfo != (types.ImageInfo{}) {
		t.Errorf("Expected empty image info, got %+v", result.ImageInfo)
	}
}

func TestExtractFromURLUpstreamError(t *testing.T) {
	u := "https://example.com/a.jpg"
	fc := &fakeClient{errs: map[string]error{u: fmt.Errorf("server returned status 429: Rate limit reached")}}
	e := NewExtractor(fc, client.Options{Model: "gpt-4.1"})

	result := e.ExtractFromURL(context.Background(), u)
	if result.Success {
		t.Fatal("Expected failure")
	}
	if result.Error != "server returned status 429: Rate limit reached" {
		t.Errorf("Expected upstream message preserved, got %q", result.Error)
	}
	if !errors.Is(result.Err, ErrUpstream) {
		t.Errorf("Expected ErrUpstream kind, got %v", result.Err)
	}
	if result.ImageInfo == nil || result.ImageInfo.Source != "url" || result.ImageInfo.URL != u {
		t.Errorf("Expected url image info, got %+v", result.ImageInfo)
	}
	if fc.callCount() != 1 {
		t.Errorf("Expected no retries, got %d calls", fc.callCount())
	}
}

func TestExtractFromURLPassesURLThrough(t *testing.T) {
	u := "https://example.com/b.png?x=1"
	fc := &fakeClient{fallback: catalogReply}
	e := NewExtractor(fc, client.Options{Model: "gpt-4.1"})

	result := e.ExtractFromURL(context.Background(), u)
	if !result.Success {
		t.Fatalf("Expected success, got %q", result.Error)
	}
	if fc.seen[0].URL != u || fc.seen[0].Inline {
		t.Errorf("Expected URL to be forwarded unchanged, got %+v", fc.seen[0])
	}
}

func TestExtractReportsSchemaWarnings(t *testing.T) {
	fc := &fakeClient{fallback: `{"entities":[{"name":"ufo","category":"aliens","confidence":"certain","count":"2"}]}`}
	rec := &countingRecorder{}
	e := NewExtractor(fc, client.Options{Model: "gpt-4.1"}, WithRecorder(rec))

	result := e.ExtractFromURL(context.Background(), "https://example.com/sky.jpg")
	if !result.Success {
		t.Fatalf("Warnings must not fail extraction, got %q", result.Error)
	}
	if len(result.Warnings) == 0 {
		t.Fatal("Expected schema warnings")
	}
	// the payload is passed through uncorrected
	entity := result.Entities["entities"].([]any)[0].(map[string]any)
	if entity["category"] != "aliens" {
		t.Errorf("payload must not be coerced, got %v", entity["category"])
	}
	if result.Catalog == nil || result.Catalog.Entities[0].Count != 2 {
		t.Errorf("Expected lax count decode, got %+v", result.Catalog)
	}
	if rec.warnings != len(result.Warnings) {
		t.Errorf("Expected %d recorded warnings, got %d", len(result.Warnings), rec.warnings)
	}
}

func TestExtractBatchMixedOutcomes(t *testing.T) {
	a, b := "https://example.com/a.jpg", "https://example.com/b.jpg"
	fc := &fakeClient{
		replies: map[string]string{a: catalogReply},
		errs:    map[string]error{b: errors.New("connection reset by peer")},
	}
	e := NewExtractor(fc, client.Options{Model: "gpt-4.1"})

	batch := e.ExtractBatch(context.Background(), []string{a, b})
	if batch.TotalProcessed != 2 || batch.Successful != 1 || batch.Failed != 1 {
		t.Fatalf("unexpected counts %+v", batch)
	}
	if len(batch.Results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(batch.Results))
	}
	if !batch.Results[0].Success || batch.Results[1].Success {
		t.Errorf("Expected [success, failure], got [%v, %v]", batch.Results[0].Success, batch.Results[1].Success)
	}
	if batch.Results[1].Error != "connection reset by peer" {
		t.Errorf("unexpected error %q", batch.Results[1].Error)
	}
}

func TestExtractBatchPreservesOrderConcurrently(t *testing.T) {
	const n = 20
	urls := make([]string, n)
	replies := map[string]string{}
	errs := map[string]error{}
	for i := range urls {
		urls[i] = fmt.Sprintf("https://example.com/%02d.jpg", i)
		if i%3 == 0 {
			errs[urls[i]] = fmt.Errorf("upstream failure %d", i)
		} else {
			replies[urls[i]] = fmt.Sprintf(`{"entities":[],"summary":{"scene_description":"%d"}}`, i)
		}
	}
	fc := &fakeClient{replies: replies, errs: errs}
	e := NewExtractor(fc, client.Options{Model: "gpt-4.1"}, WithBatchConcurrency(4))

	batch := e.ExtractBatch(context.Background(), urls)
	if batch.TotalProcessed != n || batch.Successful+batch.Failed != n || len(batch.Results) != n {
		t.Fatalf("unexpected counts %+v", batch)
	}
	for i, r := range batch.Results {
		if r.ImageInfo == nil || r.ImageInfo.URL != urls[i] {
			t.Fatalf("result %d out of order: %+v", i, r.ImageInfo)
		}
		if i%3 == 0 {
			if r.Success || r.Error != fmt.Sprintf("upstream failure %d", i) {
				t.Errorf("result %d: expected failure, got %+v", i, r)
			}
			continue
		}
		summary := r.Entities["summary"].(map[string]any)
		if summary["scene_description"] != fmt.Sprint(i) {
			t.Errorf("result %d carries payload %v", i, summary["scene_description"])
		}
	}
	if fc.callCount() != n {
		t.Errorf("Expected %d calls, got %d", n, fc.callCount())
	}
}

type panickyClient struct{ fakeClient }

func (p *panickyClient) Complete(ctx context.Context, opts client.Options, prompt string, img types.ImageRef) (string, error) {
	if strings.HasSuffix(img.URL, "boom.jpg") {
		panic("unexpected nil pointer")
	}
	return p.fakeClient.Complete(ctx, opts, prompt, img)
}

func TestExtractBatchIsolatesPanics(t *testing.T) {
	pc := &panickyClient{fakeClient{fallback: catalogReply}}
	e := NewExtractor(pc, client.Options{Model: "gpt-4.1"})

	urls := []string{"https://example.com/boom.jpg", "https://example.com/ok.jpg"}
	batch := e.ExtractBatch(context.Background(), urls)
	if batch.Successful != 1 || batch.Failed != 1 {
		t.Fatalf("unexpected counts %+v", batch)
	}
	first := batch.Results[0]
	if first.Success || first.Error != "unexpected nil pointer" {
		t.Errorf("unexpected first result %+v", first)
	}
	if first.ImageInfo == nil || first.ImageInfo.Source != "url" || first.ImageInfo.URL != urls[0] {
		t.Errorf("Expected url image info on panic, got %+v", first.ImageInfo)
	}
	if !batch.Results[1].Success {
		t.Error("Second item must still succeed")
	}
}

func TestExtractBatchEmpty(t *testing.T) {
	e := NewExtractor(&fakeClient{}, client.Options{Model: "gpt-4.1"})
	batch := e.ExtractBatch(context.Background(), nil)
	if batch.TotalProcessed != 0 || len(batch.Results) != 0 {
		t.Errorf("unexpected batch %+v", batch)
	}
}

func TestSaveResult(t *testing.T) {
	fc := &fakeClient{fallback: catalogReply}
	e := NewExtractor(fc, client.Options{Model: "gpt-4.1"})
	result := e.ExtractFromURL(context.Background(), "https://example.com/a.jpg")

	out := filepath.Join(t.TempDir(), "nested", "result.json")
	if err := SaveResult(result, out); err != nil {
		t.Fatalf("SaveResult failed: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	var saved map[string]any
	if err := json.Unmarshal(data, &saved); err != nil {
		t.Fatalf("saved file is not JSON: %v", err)
	}
	for _, key := range []string{"success", "entities", "error", "image_info", "timestamp"} {
		if _, ok := saved[key]; !ok {
			t.Errorf("saved result missing %q", key)
		}
	}
	if saved["error"] != nil {
		t.Errorf("Expected null error, got %v", saved["error"])
	}
	if _, err := time.Parse(time.RFC3339Nano, saved["timestamp"].(string)); err != nil {
		t.Errorf("timestamp is not ISO-8601: %v", err)
	}
}
