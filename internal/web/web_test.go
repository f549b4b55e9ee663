package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/ivlev/prompt2video/internal/config"
	"github.com/ivlev/prompt2video/internal/jobs"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	store  *jobs.Store
	worker *jobs.Worker
	router *gin.Engine
}

func newTestServer(t *testing.T, run jobs.RunFunc) *testServer {
	t.Helper()
	store, err := jobs.Open(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	if run == nil {
		run = func(ctx context.Context, job *jobs.Job, progress func(stage, message string)) (string, error) {
			return "", nil
		}
	}
	broker := jobs.NewBroker()
	worker := jobs.NewWorker(store, broker, run, nil)
	return &testServer{store: store, worker: worker, router: NewServer(store, worker, broker, nil).Router()}
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func TestHealthAndIndex(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "ok") {
		t.Errorf("Health: %d %s", w.Code, w.Body.String())
	}

	w = ts.do(httptest.NewRequest(http.MethodGet, "/", nil))
	body := w.Body.String()
	if w.Code != http.StatusOK {
		t.Fatalf("Index: %d", w.Code)
	}
	for _, want := range []string{`name="prompt"`, `value="happy"`, `<option value="anime" selected>`, `<option value="realistic">`} {
		if !strings.Contains(body, want) {
			t.Errorf("Index missing %s", want)
		}
	}
}

func TestCreateJobForm(t *testing.T) {
	ts := newTestServer(t, nil)

	form := url.Values{"prompt": {"  a fox  "}}
	req := httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := ts.do(req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d: %s", w.Code, w.Body.String())
	}
	var job jobs.Job
	json.Unmarshal(w.Body.Bytes(), &job)
	if job.Prompt != "a fox" || job.Emotion != "happy" || job.Style != "anime" || job.Status != jobs.StatusPending {
		t.Errorf("Unexpected job %+v", job)
	}

	w = ts.do(httptest.NewRequest(http.MethodGet, "/api/jobs/"+job.ID, nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), job.ID) {
		t.Errorf("Get: %d %s", w.Code, w.Body.String())
	}
}

func TestCreateJobJSON(t *testing.T) {
	ts := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(`{"prompt":"a city","emotion":"sad","style":"pixar"}`))
	req.Header.Set("Content-Type", "application/json")
	w := ts.do(req)
	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", w.Code)
	}
	var job jobs.Job
	json.Unmarshal(w.Body.Bytes(), &job)
	if job.Emotion != "sad" || job.Style != "pixar" {
		t.Errorf("Unexpected job %+v", job)
	}

	w = ts.do(httptest.NewRequest(http.MethodGet, "/api/jobs", nil))
	var list struct {
		Jobs []jobs.Job `json:"jobs"`
	}
	json.Unmarshal(w.Body.Bytes(), &list)
	if len(list.Jobs) != 1 {
		t.Errorf("Expected 1 job in list, got %d", len(list.Jobs))
	}
}

func TestCreateJobRequiresPrompt(t *testing.T) {
	ts := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(`{"prompt":"   "}`))
	req.Header.Set("Content-Type", "application/json")
	if w := ts.do(req); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}

func TestJobNotFound(t *testing.T) {
	ts := newTestServer(t, nil)
	for _, path := range []string{"/api/jobs/missing", "/api/jobs/missing/video", "/api/jobs/missing/events"} {
		if w := ts.do(httptest.NewRequest(http.MethodGet, path, nil)); w.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", path, w.Code)
		}
	}
}

func TestVideo(t *testing.T) {
	ts := newTestServer(t, nil)
	ctx := context.Background()
	job, _ := ts.store.Create(ctx, "x", "happy", "anime")

	if w := ts.do(httptest.NewRequest(http.MethodGet, "/api/jobs/"+job.ID+"/video", nil)); w.Code != http.StatusConflict {
		t.Errorf("Pending job video: expected 409, got %d", w.Code)
	}

	out := filepath.Join(t.TempDir(), job.ID+".mp4")
	os.WriteFile(out, []byte("mp4data"), 0644)
	ts.store.Complete(ctx, job.ID, out)

	w := ts.do(httptest.NewRequest(http.MethodGet, "/api/jobs/"+job.ID+"/video", nil))
	if w.Code != http.StatusOK || w.Body.String() != "mp4data" {
		t.Errorf("Video: %d %q", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "video/mp4" {
		t.Errorf("Unexpected content type %s", ct)
	}
}

func TestEventsWebsocket(t *testing.T) {
	release := make(chan struct{})
	ts := newTestServer(t, func(ctx context.Context, job *jobs.Job, progress func(stage, message string)) (string, error) {
		<-release
		progress("image", "image 1/6")
		return "/out/" + job.ID + ".mp4", nil
	})
	srv := httptest.NewServer(ts.router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	job, err := ts.worker.Submit(ctx, "ocean", "calm", "anime")
	if err != nil {
		t.Fatal(err)
	}

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/jobs/" + job.ID + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first jobs.Update
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatal(err)
	}
	if first.Status != jobs.StatusPending {
		t.Errorf("First message must be the current state, got %+v", first)
	}

	go ts.worker.Start(ctx)
	close(release)

	var last jobs.Update
	for !last.Status.Terminal() {
		if err := conn.ReadJSON(&last); err != nil {
			t.Fatalf("Read failed before completion: %v", err)
		}
	}
	if last.Status != jobs.StatusCompleted || last.Output != "/out/"+job.ID+".mp4" {
		t.Errorf("Unexpected final update %+v", last)
	}
}

func TestWatchDoesNotMissCompletion(t *testing.T) {
	ts := newTestServer(t, nil)
	broker := jobs.NewBroker()
	srv := NewServer(ts.store, ts.worker, broker, nil)
	ctx := context.Background()

	// Задача завершается одновременно с подпиской: финальный статус приходит
	// либо в снимке, либо в канале, но не теряется между ними
	for i := 0; i < 20; i++ {
		job, err := ts.store.Create(ctx, "x", "happy", "anime")
		if err != nil {
			t.Fatal(err)
		}
		done := make(chan struct{})
		go func() {
			defer close(done)
			ts.store.Complete(ctx, job.ID, "/out.mp4")
			broker.Publish(jobs.Update{JobID: job.ID, Status: jobs.StatusCompleted, Output: "/out.mp4"})
		}()

		snapshot, updates, stop, err := srv.watch(ctx, job.ID)
		if err != nil {
			t.Fatal(err)
		}
		if !snapshot.Status.Terminal() {
			select {
			case u := <-updates:
				if u.Status != jobs.StatusCompleted {
					t.Errorf("Unexpected update %+v", u)
				}
			case <-time.After(2 * time.Second):
				t.Fatalf("Completion of job %d was lost", i)
			}
		}
		stop()
		<-done
	}
}

func TestWatchUnknownJob(t *testing.T) {
	ts := newTestServer(t, nil)
	broker := jobs.NewBroker()
	srv := NewServer(ts.store, ts.worker, broker, nil)
	if _, _, _, err := srv.watch(context.Background(), "missing"); !errors.Is(err, jobs.ErrJobNotFound) {
		t.Errorf("Expected ErrJobNotFound, got %v", err)
	}
}

func TestEventsCompletedJob(t *testing.T) {
	ts := newTestServer(t, nil)
	srv := httptest.NewServer(ts.router)
	defer srv.Close()

	ctx := context.Background()
	job, _ := ts.store.Create(ctx, "x", "happy", "anime")
	ts.store.Complete(ctx, job.ID, "/out/done.mp4")

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/jobs/"+job.ID+"/events", nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var u jobs.Update
	if err := conn.ReadJSON(&u); err != nil {
		t.Fatal(err)
	}
	if u.Status != jobs.StatusCompleted || u.Output != "/out/done.mp4" {
		t.Errorf("Finished job must report its final state, got %+v", u)
	}
}

func TestJobConfig(t *testing.T) {
	base := config.Default()
	base.Music = "auto"
	base.StoryboardIn = "old.yaml"
	job := &jobs.Job{ID: "abc", Prompt: "p", Emotion: "sad", Style: "pixar"}

	cfg := JobConfig(base, job, "/srv/videos")
	if !cfg.Animate || cfg.Music != "none" {
		t.Error("Web jobs always animate without music")
	}
	if cfg.Output != filepath.Join("/srv/videos", "abc.mp4") {
		t.Errorf("Unexpected output %s", cfg.Output)
	}
	if cfg.StoryboardIn != "" || cfg.Prompt != "p" || cfg.Style != "pixar" {
		t.Errorf("Unexpected config %+v", cfg)
	}
	if base.Music != "auto" {
		t.Error("Base config must not change")
	}
}
