package jobs

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	job, err := s.Create(ctx, "a dragon", "happy", "anime")
	if err != nil {
		t.Fatal(err)
	}
	if job.ID == "" || job.Status != StatusPending {
		t.Fatalf("Unexpected new job %+v", job)
	}

	if err := s.SetRunning(ctx, job.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.SetMessage(ctx, job.ID, "image 1/6"); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusRunning || got.Message != "image 1/6" {
		t.Errorf("Unexpected job %+v", got)
	}
	if got.Prompt != "a dragon" || got.Style != "anime" {
		t.Errorf("Fields lost: %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt not stored")
	}

	if err := s.Complete(ctx, job.ID, "/out/x.mp4"); err != nil {
		t.Fatal(err)
	}
	got, _ = s.Get(ctx, job.ID)
	if got.Status != StatusCompleted || got.Output != "/out/x.mp4" || !got.Status.Terminal() {
		t.Errorf("Unexpected completed job %+v", got)
	}
}

func TestStoreNotFound(t *testing.T) {
	s := openStore(t)
	if _, err := s.Get(context.Background(), "nope"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Expected ErrJobNotFound, got %v", err)
	}
	if err := s.SetMessage(context.Background(), "nope", "x"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Expected ErrJobNotFound on update, got %v", err)
	}
}

func TestStoreListNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	first, _ := s.Create(ctx, "first", "happy", "anime")
	second, _ := s.Create(ctx, "second", "happy", "anime")

	list, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != second.ID || list[1].ID != first.ID {
		t.Errorf("Unexpected order: %v, %v", list[0].Prompt, list[1].Prompt)
	}
}

func TestStoreRecover(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	running, _ := s.Create(ctx, "running", "happy", "anime")
	s.SetRunning(ctx, running.ID)
	pending, _ := s.Create(ctx, "pending", "happy", "anime")

	ids, err := s.Recover(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != pending.ID {
		t.Errorf("Expected pending job requeued, got %v", ids)
	}
	got, _ := s.Get(ctx, running.ID)
	if got.Status != StatusFailed || got.Error == "" {
		t.Errorf("Interrupted job must fail, got %+v", got)
	}
}

func waitTerminal(t *testing.T, s *Store, id string) *Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := s.Get(context.Background(), id)
		if err == nil && job.Status.Terminal() {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Job %s did not finish", id)
	return nil
}

func TestWorkerRunsJobsInOrder(t *testing.T) {
	s := openStore(t)
	var mu sync.Mutex
	var order []string

	run := func(ctx context.Context, job *Job, progress func(stage, message string)) (string, error) {
		progress("image", "working on "+job.Prompt)
		mu.Lock()
		order = append(order, job.Prompt)
		mu.Unlock()
		if job.Prompt == "bad" {
			return "", errors.New("tts crashed")
		}
		return "/out/" + job.ID + ".mp4", nil
	}
	broker := NewBroker()
	w := NewWorker(s, broker, run, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ok, err := w.Submit(ctx, "good", "happy", "anime")
	if err != nil {
		t.Fatal(err)
	}
	updates, stop := broker.Subscribe(ok.ID)
	defer stop()
	bad, _ := w.Submit(ctx, "bad", "happy", "anime")

	go w.Start(ctx)

	if job := waitTerminal(t, s, ok.ID); job.Status != StatusCompleted || job.Output != "/out/"+ok.ID+".mp4" {
		t.Errorf("Unexpected good job %+v", job)
	}
	if job := waitTerminal(t, s, bad.ID); job.Status != StatusFailed || job.Error != "tts crashed" {
		t.Errorf("Unexpected bad job %+v", job)
	}

	mu.Lock()
	if len(order) != 2 || order[0] != "good" || order[1] != "bad" {
		t.Errorf("Jobs must run in submission order, got %v", order)
	}
	mu.Unlock()

	var statuses []Status
	for len(statuses) < 3 {
		select {
		case u := <-updates:
			statuses = append(statuses, u.Status)
		case <-time.After(time.Second):
			t.Fatalf("Missing updates, got %v", statuses)
		}
	}
	if statuses[2] != StatusCompleted {
		t.Errorf("Last update must be completed, got %v", statuses)
	}
}

func TestWorkerRecoversPanic(t *testing.T) {
	s := openStore(t)
	w := NewWorker(s, NewBroker(), func(ctx context.Context, job *Job, progress func(stage, message string)) (string, error) {
		panic("boom")
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	job, _ := w.Submit(ctx, "x", "happy", "anime")
	go w.Start(ctx)

	if got := waitTerminal(t, s, job.ID); got.Status != StatusFailed || got.Error != "panic: boom" {
		t.Errorf("Unexpected job %+v", got)
	}
}

func TestBrokerUnsubscribe(t *testing.T) {
	b := NewBroker()
	ch, stop := b.Subscribe("a")
	stop()
	stop()
	b.Publish(Update{JobID: "a", Status: StatusRunning})
	select {
	case u := <-ch:
		t.Errorf("Unexpected update after unsubscribe: %+v", u)
	default:
	}
}

func TestBrokerNeverDropsTerminalUpdate(t *testing.T) {
	b := NewBroker()
	ch, stop := b.Subscribe("a")
	defer stop()

	// Подписчик не читает: буфер заполняется промежуточными сообщениями
	for i := 0; i < 40; i++ {
		b.Publish(Update{JobID: "a", Status: StatusRunning, Message: "step"})
	}
	b.Publish(Update{JobID: "a", Status: StatusCompleted, Output: "/out/a.mp4"})

	var last Update
	n := 0
	for {
		select {
		case u := <-ch:
			last = u
			n++
			continue
		default:
		}
		break
	}
	if last.Status != StatusCompleted || last.Output != "/out/a.mp4" {
		t.Errorf("Terminal update lost, last was %+v", last)
	}
	if n != 32 {
		t.Errorf("Expected a full buffer of 32 updates, got %d", n)
	}
}
