package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"recordimages/internal/images"
	"recordimages/internal/models"
	"recordimages/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type memRepo struct {
	mu      sync.Mutex
	records map[uuid.UUID]models.Record
}

func newMemRepo() *memRepo {
	return &memRepo{records: make(map[uuid.UUID]models.Record)}
}

func (r *memRepo) CreateRecord(_ context.Context, rec *models.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	rec.CreatedAt = time.Now()
	rec.UpdatedAt = rec.CreatedAt
	stored := *rec
	stored.Files = nil
	r.records[rec.ID] = stored
	return nil
}

func (r *memRepo) GetRecord(_ context.Context, id uuid.UUID) (*models.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, storage.ErrRecordNotFound
	}
	return &rec, nil
}

func (r *memRepo) UpdateRecord(_ context.Context, rec *models.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[rec.ID]; !ok {
		return storage.ErrRecordNotFound
	}
	rec.UpdatedAt = time.Now()
	stored := *rec
	stored.Files = nil
	r.records[rec.ID] = stored
	return nil
}

func (r *memRepo) DeleteRecord(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[id]; !ok {
		return storage.ErrRecordNotFound
	}
	delete(r.records, id)
	return nil
}

type testServer struct {
	srv  *Server
	repo *memRepo
	root string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := &models.Config{
		StoragePath:   t.TempDir(),
		MaxUploadSize: "1MB",
		Fields: []models.FieldConfig{
			{Name: "avatar", Attribute: "avatar", Width: 200, Height: 200},
			{Name: "gallery", Attribute: "gallery", Multiple: true},
		},
	}
	if err := cfg.Finalize(); err != nil {
		t.Fatalf("Finalize() failed: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	b, err := images.New(cfg.Images(), images.WithLogger(logger))
	if err != nil {
		t.Fatalf("images.New() failed: %v", err)
	}

	repo := newMemRepo()
	return &testServer{
		srv:  NewServer(cfg, repo, b, logger),
		repo: repo,
		root: cfg.StoragePath,
	}
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(w, req)
	return w
}

type upload struct {
	field string
	name  string
	data  []byte
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: 200, G: 30, B: 30, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func multipartRequest(t *testing.T, method, target, title string, uploads ...upload) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if title != "" {
		if err := mw.WriteField("title", title); err != nil {
			t.Fatal(err)
		}
	}
	for _, u := range uploads {
		fw, err := mw.CreateFormFile(u.field, u.name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write(u.data); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(method, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

type recordResponse struct {
	ID     string              `json:"id"`
	Title  string              `json:"title"`
	Images map[string][]string `json:"images"`
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func (ts *testServer) create(t *testing.T, uploads ...upload) recordResponse {
	t.Helper()
	w := ts.do(multipartRequest(t, http.MethodPost, "/records", "first", uploads...))
	if w.Code != http.StatusCreated {
		t.Fatalf("POST /records = %d: %s", w.Code, w.Body.String())
	}
	return decode[recordResponse](t, w)
}

func TestCreateRecordStoresUploads(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.create(t,
		upload{"avatar", "me.png", pngBytes(t, 400, 100)},
		upload{"gallery", "a.png", pngBytes(t, 20, 20)},
		upload{"gallery", "b.png", pngBytes(t, 20, 20)},
	)
	if rec.Title != "first" {
		t.Errorf("title = %q", rec.Title)
	}

	dir := images.Folder(rec.ID)
	web := "/files/" + filepath.ToSlash(dir)
	want := map[string][]string{
		"avatar":  {web + "/avatar.jpg"},
		"gallery": {web + "/gallery_1.jpg", web + "/gallery_2.jpg"},
	}
	for field, links := range want {
		got := rec.Images[field]
		if len(got) != len(links) {
			t.Fatalf("images[%s] = %v, want %v", field, got, links)
		}
		for i := range links {
			if got[i] != links[i] {
				t.Errorf("images[%s][%d] = %q, want %q", field, i, got[i], links[i])
			}
		}
	}

	if _, err := os.Stat(filepath.Join(ts.root, dir, "avatar.jpg")); err != nil {
		t.Errorf("avatar not on disk: %v", err)
	}
}

func TestCreateRecordRejectsNonImage(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(multipartRequest(t, http.MethodPost, "/records", "x",
		upload{"avatar", "notes.txt", []byte("just some text, not an image")}))
	if w.Code != http.StatusUnsupportedMediaType {
		t.Errorf("status = %d, want %d: %s", w.Code, http.StatusUnsupportedMediaType, w.Body.String())
	}
	if len(ts.repo.records) != 0 {
		t.Error("record created despite rejected upload")
	}
}

func TestCreateRecordWithoutUploads(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/records", nil)
	w := ts.do(req)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	rec := decode[recordResponse](t, w)
	if len(rec.Images) != 0 {
		t.Errorf("images = %v, want none", rec.Images)
	}
}

func TestGetImageGeneratesVariant(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.create(t, upload{"avatar", "me.png", pngBytes(t, 400, 100)})

	w := ts.do(httptest.NewRequest(http.MethodGet, "/records/"+rec.ID+"/images/avatar?w=100&h=100", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	got := decode[struct {
		URL string `json:"url"`
	}](t, w)
	wantURL := "/files/" + filepath.ToSlash(images.Folder(rec.ID)) + "/avatar.100x100.jpg"
	if got.URL != wantURL {
		t.Errorf("url = %q, want %q", got.URL, wantURL)
	}

	// the link is served from the storage root
	w = ts.do(httptest.NewRequest(http.MethodGet, got.URL, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GET %s = %d", got.URL, w.Code)
	}
	img, _, err := image.DecodeConfig(w.Body)
	if err != nil {
		t.Fatalf("served file is not an image: %v", err)
	}
	if img.Width != 100 || img.Height != 25 {
		t.Errorf("variant size = %dx%d, want 100x25", img.Width, img.Height)
	}

	w = ts.do(httptest.NewRequest(http.MethodGet, "/records/"+rec.ID+"/images/avatar?w=100&h=100&redirect=1", nil))
	if w.Code != http.StatusFound {
		t.Fatalf("redirect status = %d", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != wantURL {
		t.Errorf("Location = %q, want %q", loc, wantURL)
	}
}

func TestGetImageErrors(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.create(t, upload{"avatar", "me.png", pngBytes(t, 40, 40)})

	tests := []struct {
		name   string
		target string
		want   int
	}{
		{"bad id", "/records/not-a-uuid/images/avatar", http.StatusBadRequest},
		{"unknown record", "/records/" + uuid.NewString() + "/images/avatar", http.StatusNotFound},
		{"unknown field", "/records/" + rec.ID + "/images/banner", http.StatusNotFound},
		{"width only", "/records/" + rec.ID + "/images/avatar?w=10", http.StatusBadRequest},
		{"bad width", "/records/" + rec.ID + "/images/avatar?w=ten&h=10", http.StatusBadRequest},
		{"bad stretch", "/records/" + rec.ID + "/images/avatar?w=10&h=10&stretch=maybe", http.StatusBadRequest},
		{"no original", "/records/" + rec.ID + "/images/gallery_1", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(httptest.NewRequest(http.MethodGet, tt.target, nil))
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestUpdateReplacesImages(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.create(t,
		upload{"gallery", "a.png", pngBytes(t, 20, 20)},
		upload{"gallery", "b.png", pngBytes(t, 20, 20)},
		upload{"gallery", "c.png", pngBytes(t, 20, 20)},
	)

	w := ts.do(multipartRequest(t, http.MethodPut, "/records/"+rec.ID, "second",
		upload{"gallery", "d.png", pngBytes(t, 30, 30)}))
	if w.Code != http.StatusOK {
		t.Fatalf("PUT = %d: %s", w.Code, w.Body.String())
	}
	updated := decode[recordResponse](t, w)
	if updated.Title != "second" {
		t.Errorf("title = %q", updated.Title)
	}

	w = ts.do(httptest.NewRequest(http.MethodGet, "/records/"+rec.ID+"/images?field=gallery", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d: %s", w.Code, w.Body.String())
	}
	list := decode[struct {
		URLs []string `json:"urls"`
	}](t, w)
	want := "/files/" + filepath.ToSlash(images.Folder(rec.ID)) + "/gallery_1.jpg"
	if len(list.URLs) != 1 || list.URLs[0] != want {
		t.Errorf("urls = %v, want [%s]", list.URLs, want)
	}
}

func TestUpdateWithoutUploadsKeepsImages(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.create(t, upload{"avatar", "me.png", pngBytes(t, 40, 40)})

	w := ts.do(multipartRequest(t, http.MethodPut, "/records/"+rec.ID, "renamed"))
	if w.Code != http.StatusOK {
		t.Fatalf("PUT = %d: %s", w.Code, w.Body.String())
	}
	got := decode[recordResponse](t, w)
	if got.Title != "renamed" || len(got.Images["avatar"]) != 1 {
		t.Errorf("record = %+v", got)
	}
}

func TestListImagesRequiresField(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.create(t)

	w := ts.do(httptest.NewRequest(http.MethodGet, "/records/"+rec.ID+"/images", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestDeleteRemovesDirectory(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.create(t,
		upload{"avatar", "me.png", pngBytes(t, 40, 40)},
		upload{"gallery", "a.png", pngBytes(t, 20, 20)},
	)
	ts.do(httptest.NewRequest(http.MethodGet, "/records/"+rec.ID+"/images/avatar?w=10&h=10", nil))

	w := ts.do(httptest.NewRequest(http.MethodDelete, "/records/"+rec.ID, nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("DELETE = %d: %s", w.Code, w.Body.String())
	}
	if _, err := os.Stat(filepath.Join(ts.root, images.Folder(rec.ID))); !os.IsNotExist(err) {
		t.Errorf("record directory still present: %v", err)
	}

	w = ts.do(httptest.NewRequest(http.MethodGet, "/records/"+rec.ID, nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("GET after delete = %d, want 404", w.Code)
	}
	w = ts.do(httptest.NewRequest(http.MethodDelete, "/records/"+rec.ID, nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("second DELETE = %d, want 404", w.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{images.ErrInvalidVariant, http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", images.ErrInvalidKey), http.StatusBadRequest},
		{images.ErrUnknownField, http.StatusNotFound},
		{storage.ErrRecordNotFound, http.StatusNotFound},
		{&images.DecodeError{Path: "x", Err: io.ErrUnexpectedEOF}, http.StatusUnprocessableEntity},
		{&http.MaxBytesError{Limit: 1}, http.StatusRequestEntityTooLarge},
		{&images.StoreError{Op: "write", Path: "x", Err: os.ErrPermission}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
