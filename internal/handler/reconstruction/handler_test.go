package reconstruction

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/mri-lab/mri-console/internal/handler/ws"
	"github.com/mri-lab/mri-console/internal/middleware"
	model "github.com/mri-lab/mri-console/internal/model/reconstruction"
	reconService "github.com/mri-lab/mri-console/internal/service/reconstruction"
)

type recordingPublisher struct {
	mu     sync.Mutex
	users  []string
	events []ws.Event
}

func (p *recordingPublisher) SendUser(username string, ev ws.Event) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.users = append(p.users, username)
	p.events = append(p.events, ev)
	return 1
}

func setupRouter() (*chi.Mux, *recordingPublisher) {
	pub := &recordingPublisher{}
	handler := New(reconService.NewService(), pub, nil)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(middleware.WithPrincipal(r.Context(), middleware.Principal{Username: "doctor"})))
		})
	})
	handler.RegisterRoutes(r)
	return r, pub
}

func upload(r http.Handler, modelID string, data []byte) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile("file", "knee.png")
	part.Write(data)
	mw.WriteField("model_id", modelID)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/reconstruction/", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestReconstructPublishesEvents(t *testing.T) {
	r, pub := setupRouter()

	resp := upload(r, "unet", []byte("kspace"))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var result model.Result
	json.NewDecoder(resp.Body).Decode(&result)
	if !result.Success || result.ResultID == "" {
		t.Fatalf("unexpected result %+v", result)
	}

	var types []string
	for _, ev := range pub.events {
		types = append(types, ev.Type)
	}
	want := []string{ws.TypeModelLoaded, ws.TypeProgressUpdate, ws.TypeProgressUpdate, ws.TypeReconstructionComplete}
	if len(types) != len(want) {
		t.Fatalf("expected %v, got %v", want, types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, types)
		}
	}
	if last := pub.events[3]; last.ResultID != result.ResultID || pub.users[3] != "doctor" {
		t.Fatalf("unexpected completion event %+v for %s", last, pub.users[3])
	}

	req := httptest.NewRequest(http.MethodGet, "/reconstruction/results/"+result.ResultID, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/reconstruction-history?page=1&page_size=5", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	var page model.HistoryPage
	json.NewDecoder(rec.Body).Decode(&page)
	if page.Total != 1 || len(page.Records) != 1 || page.Records[0].Filename != "knee.png" {
		t.Fatalf("unexpected history %+v", page)
	}
}

func TestReconstructUnknownModel(t *testing.T) {
	r, pub := setupRouter()

	resp := upload(r, "missing", []byte("kspace"))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	if ev := pub.events[0]; ev.Type != ws.TypeModelLoaded || ev.Success == nil || *ev.Success {
		t.Fatalf("expected failed model_loaded event, got %+v", ev)
	}
}

func TestModels(t *testing.T) {
	r, _ := setupRouter()

	req := httptest.NewRequest(http.MethodGet, "/reconstruction/models", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	var models []model.Model
	json.NewDecoder(resp.Body).Decode(&models)
	if len(models) == 0 {
		t.Fatal("expected seeded models")
	}

	req = httptest.NewRequest(http.MethodGet, "/models/nope", nil)
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}
