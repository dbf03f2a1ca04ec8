package batch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/imgmark/imgmark/internal/settings"
	"github.com/imgmark/imgmark/internal/upload"
)

// newImageServer serves fixed bytes for any path.
func newImageServer(t *testing.T, body []byte) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(body)
	}))
}

// newAPIServer accepts uploads and returns a hosted URL on its own origin,
// derived from the uploaded filename.
func newAPIServer(t *testing.T) *httptest.Server {
	t.Helper()
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, header, err := r.FormFile("image")
		if err != nil {
			t.Errorf("form field image: %v", err)
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		fmt.Fprintf(w, `{"data":{"url":"%s/hosted/%s"}}`, server.URL, header.Filename)
	}))
	return server
}

func testSettings(apiURL string) settings.Settings {
	s := settings.Default()
	s.APIURL = apiURL
	s.EnableAutoWidth = false
	return s
}

func TestRunNoReferences(t *testing.T) {
	orch := New(testSettings("http://api.test/upload"), nil)

	text := "just prose, no images"
	result, err := orch.Run(context.Background(), text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != text {
		t.Errorf("text changed: %q", result.Text)
	}
	if result.Changed {
		t.Error("expected Changed=false")
	}
	if result.Progress.Current != 0 {
		t.Errorf("expected 0 processed, got %d", result.Progress.Current)
	}
}

func TestRunNotConfigured(t *testing.T) {
	orch := New(settings.Default(), nil)

	_, err := orch.Run(context.Background(), "![](http://img.example/a.png)")
	if !errors.Is(err, upload.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestRunEndToEnd(t *testing.T) {
	imgServer := newImageServer(t, []byte("png-bytes"))
	defer imgServer.Close()
	apiServer := newAPIServer(t)
	defer apiServer.Close()

	text := fmt.Sprintf("![](%s/a.png) text ![](%s/b.png)", imgServer.URL, imgServer.URL)

	orch := New(testSettings(apiServer.URL+"/upload"), nil)
	result, err := orch.Run(context.Background(), text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := fmt.Sprintf("![](%s/hosted/a.png) text ![](%s/hosted/b.png)", apiServer.URL, apiServer.URL)
	if result.Text != want {
		t.Errorf("rewritten text:\n got %q\nwant %q", result.Text, want)
	}
	if !result.Changed {
		t.Error("expected Changed=true")
	}
	if result.Progress.Success != 2 || result.Progress.Failed != 0 {
		t.Errorf("unexpected counts: %+v", result.Progress)
	}
	if !strings.Contains(result.Summary, "2 uploaded") {
		t.Errorf("unexpected summary: %q", result.Summary)
	}
}

func TestRunBlacklisted(t *testing.T) {
	s := testSettings("http://api.test/upload")
	s.BlacklistDomains = []string{"img.example"}
	orch := New(s, nil)

	text := "![](http://img.example/a.png)"
	result, err := orch.Run(context.Background(), text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != text {
		t.Errorf("blacklisted markup changed: %q", result.Text)
	}
	if result.Progress.Blacklisted != 1 || result.Progress.Success != 0 {
		t.Errorf("unexpected counts: %+v", result.Progress)
	}
}

// Running the pipeline over a document already rewritten to the API's own
// origin uploads nothing the second time.
func TestRunIdempotent(t *testing.T) {
	imgServer := newImageServer(t, []byte("png-bytes"))
	defer imgServer.Close()
	apiServer := newAPIServer(t)
	defer apiServer.Close()

	text := fmt.Sprintf("![](%s/a.png)", imgServer.URL)
	orch := New(testSettings(apiServer.URL+"/upload"), nil)

	first, err := orch.Run(context.Background(), text)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.Progress.Success != 1 {
		t.Fatalf("first run counts: %+v", first.Progress)
	}

	second, err := orch.Run(context.Background(), first.Text)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.Progress.Success != 0 || second.Progress.Skipped != 1 {
		t.Errorf("second run counts: %+v", second.Progress)
	}
	if second.Text != first.Text {
		t.Errorf("second run changed text: %q", second.Text)
	}
}

func TestRunTotalFailureLeavesDocument(t *testing.T) {
	imgServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer imgServer.Close()
	apiServer := newAPIServer(t)
	defer apiServer.Close()

	text := fmt.Sprintf("![](%s/a.png) and ![](%s/b.png)", imgServer.URL, imgServer.URL)
	orch := New(testSettings(apiServer.URL+"/upload"), nil)

	result, err := orch.Run(context.Background(), text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Changed {
		t.Error("expected Changed=false on total failure")
	}
	if result.Text != text {
		t.Errorf("document changed on total failure: %q", result.Text)
	}
	if result.Progress.Failed != 2 {
		t.Errorf("unexpected counts: %+v", result.Progress)
	}
	if len(result.Progress.Errors) != 2 {
		t.Fatalf("expected 2 recorded errors, got %d", len(result.Progress.Errors))
	}
	if result.Progress.Errors[0].Error != "HTTP 404" {
		t.Errorf("unexpected error detail: %q", result.Progress.Errors[0].Error)
	}
}

func TestRunMixedOutcomes(t *testing.T) {
	imgServer := newImageServer(t, []byte("png-bytes"))
	defer imgServer.Close()
	apiServer := newAPIServer(t)
	defer apiServer.Close()

	s := testSettings(apiServer.URL + "/upload")
	s.BlacklistDomains = []string{"blocked.example"}
	orch := New(s, nil)

	text := fmt.Sprintf("![](%s/a.png)\n![](http://blocked.example/x.png)\n![](%s/hosted/old.png)",
		imgServer.URL, apiServer.URL)

	result, err := orch.Run(context.Background(), text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p := result.Progress
	if p.Success != 1 || p.Blacklisted != 1 || p.Skipped != 1 || p.Failed != 0 {
		t.Errorf("unexpected counts: %+v", p)
	}
	if !strings.Contains(result.Text, apiServer.URL+"/hosted/a.png") {
		t.Errorf("successful upload not rewritten: %q", result.Text)
	}
	if !strings.Contains(result.Text, "http://blocked.example/x.png") {
		t.Errorf("blacklisted markup changed: %q", result.Text)
	}
}

func TestRunConcurrencyBound(t *testing.T) {
	const limit = 2

	var inFlight, peak atomic.Int32
	imgServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("png-bytes"))
	}))
	defer imgServer.Close()
	apiServer := newAPIServer(t)
	defer apiServer.Close()

	var sb strings.Builder
	for i := 0; i < 6; i++ {
		fmt.Fprintf(&sb, "![](%s/img-%d.png)\n", imgServer.URL, i)
	}

	s := testSettings(apiServer.URL + "/upload")
	s.Concurrency = limit
	orch := New(s, nil)

	result, err := orch.Run(context.Background(), sb.String())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Progress.Success != 6 {
		t.Errorf("unexpected counts: %+v", result.Progress)
	}
	if got := peak.Load(); got > limit {
		t.Errorf("concurrency bound exceeded: peak %d > limit %d", got, limit)
	}
}

func TestRunProgressSink(t *testing.T) {
	imgServer := newImageServer(t, []byte("png-bytes"))
	defer imgServer.Close()
	apiServer := newAPIServer(t)
	defer apiServer.Close()

	var mu sync.Mutex
	var snapshots []Progress
	sink := func(p Progress) {
		mu.Lock()
		snapshots = append(snapshots, p)
		mu.Unlock()
	}

	text := fmt.Sprintf("![](%s/a.png) ![](%s/b.png) ![](%s/c.png)",
		imgServer.URL, imgServer.URL, imgServer.URL)
	orch := New(testSettings(apiServer.URL+"/upload"), sink)

	if _, err := orch.Run(context.Background(), text); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(snapshots) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(snapshots))
	}
	final := snapshots[len(snapshots)-1]
	if final.Current != 3 || final.Total != 3 || final.Success != 3 {
		t.Errorf("unexpected final snapshot: %+v", final)
	}
}

func TestSummarizeTruncatesURLs(t *testing.T) {
	p := Progress{
		Total:   1,
		Current: 1,
		Failed:  1,
		Errors: []ItemError{
			{URL: "http://img.example/very/long/path/to/image.png", Error: "HTTP 500"},
		},
	}
	s := Summarize(p)
	if !strings.Contains(s, "http://img.example/v...") {
		t.Errorf("expected truncated URL preview in summary: %q", s)
	}
	if !strings.Contains(s, "HTTP 500") {
		t.Errorf("expected error detail in summary: %q", s)
	}
	if strings.Contains(s, "/to/image.png") {
		t.Errorf("URL not truncated: %q", s)
	}
}

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}
