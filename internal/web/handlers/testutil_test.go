package handlers

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/photo-triage/internal/catalog"
	"github.com/kozaktomas/photo-triage/internal/config"
	dbmock "github.com/kozaktomas/photo-triage/internal/database/mock"
	embmock "github.com/kozaktomas/photo-triage/internal/embedding/mock"
	"github.com/kozaktomas/photo-triage/internal/logging"
	"github.com/kozaktomas/photo-triage/internal/processing"
	"github.com/kozaktomas/photo-triage/internal/quality"
)

// testConfig creates a minimal config for testing
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Processing.UploadDir = filepath.Join(t.TempDir(), "uploads")
	return cfg
}

type testEnv struct {
	cfg     *config.Config
	orch    *processing.Orchestrator
	gateway *embmock.MockGateway
	index   *dbmock.MockVectorIndex
}

// newTestEnv builds an orchestrator backed by in-memory mocks
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		cfg:     testConfig(t),
		gateway: embmock.NewMockGateway(),
		index:   dbmock.NewMockVectorIndex(),
	}
	orch, err := processing.New(processing.OptionsFromConfig(env.cfg), processing.Deps{
		Engine:  quality.NewEngine(env.cfg.Quality),
		Gateway: env.gateway,
		Index:   env.index,
		Catalog: catalog.New(nil),
		Logger:  logging.Discard(),
	})
	if err != nil {
		t.Fatalf("failed to create orchestrator: %v", err)
	}
	t.Cleanup(func() { orch.Close() })
	env.orch = orch
	return env
}

// checkerboard is sharp and well exposed, so it qualifies
func checkerboard(size, cell int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := range size {
		for x := range size {
			v := uint8(40)
			if (x/cell+y/cell)%2 == 0 {
				v = 215
			}
			img.Set(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "img.png")
	writePNG(t, path, img)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read png: %v", err)
	}
	return data
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode %s: %v", path, err)
	}
}

// photoFolder writes one qualified and one blurred photo
func photoFolder(t *testing.T) (dir, sharp string) {
	t.Helper()
	dir = t.TempDir()
	sharp = filepath.Join(dir, "sharp.png")
	writePNG(t, sharp, checkerboard(64, 4))
	flat := image.NewGray(image.Rect(0, 0, 64, 64))
	for i := range flat.Pix {
		flat.Pix[i] = 128
	}
	writePNG(t, filepath.Join(dir, "flat.png"), flat)
	return dir, sharp
}

// processFolder runs a task to completion
func (e *testEnv) processFolder(t *testing.T, dir string) processing.TaskSnapshot {
	t.Helper()
	id, err := e.orch.Submit(context.Background(), dir, processing.SubmitOptions{})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	snap, err := e.orch.Wait(ctx, id)
	if err != nil {
		t.Fatalf("task did not finish: %v", err)
	}
	return snap
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
