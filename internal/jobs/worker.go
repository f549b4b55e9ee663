package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

var ErrQueueFull = errors.New("job queue is full")

// Update is pushed to subscribers whenever a job moves forward.
type Update struct {
	JobID   string `json:"job_id"`
	Status  Status `json:"status"`
	Stage   string `json:"stage,omitempty"`
	Message string `json:"message,omitempty"`
	Output  string `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
}

// RunFunc produces the video for a job and returns its path. progress may be
// called from any goroutine.
type RunFunc func(ctx context.Context, job *Job, progress func(stage, message string)) (string, error)

// Broker fans job updates out to websocket listeners.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan Update]struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[chan Update]struct{})}
}

// Subscribe returns a channel of updates for job id and a func to stop.
func (b *Broker) Subscribe(id string) (<-chan Update, func()) {
	ch := make(chan Update, 32)
	b.mu.Lock()
	if b.subs[id] == nil {
		b.subs[id] = make(map[chan Update]struct{})
	}
	b.subs[id][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[id], ch)
			if len(b.subs[id]) == 0 {
				delete(b.subs, id)
			}
			b.mu.Unlock()
		})
	}
}

// Publish не блокируется: медленный подписчик теряет промежуточные сообщения,
// но финальное обновление доходит всегда, вытесняя самое старое из очереди.
func (b *Broker) Publish(u Update) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[u.JobID] {
		select {
		case ch <- u:
			continue
		default:
		}
		if !u.Status.Terminal() {
			continue
		}
		// Отправляет только Publish под b.mu, так что после вытеснения место есть
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- u:
		default:
		}
	}
}

// Worker runs queued jobs strictly one after another: the GPU tools behind
// the pipeline cannot share the card.
type Worker struct {
	Store  *Store
	Broker *Broker
	Run    RunFunc
	Logger *zap.Logger

	queue chan string
}

func NewWorker(store *Store, broker *Broker, run RunFunc, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		Store:  store,
		Broker: broker,
		Run:    run,
		Logger: logger,
		queue:  make(chan string, 100),
	}
}

// Submit stores a new job and queues it.
func (w *Worker) Submit(ctx context.Context, prompt, emotion, style string) (*Job, error) {
	job, err := w.Store.Create(ctx, prompt, emotion, style)
	if err != nil {
		return nil, err
	}
	if err := w.enqueue(job.ID); err != nil {
		w.Store.Fail(ctx, job.ID, err)
		return nil, err
	}
	w.Logger.Info("Job queued", zap.String("id", job.ID), zap.String("prompt", prompt))
	return job, nil
}

func (w *Worker) enqueue(id string) error {
	select {
	case w.queue <- id:
		return nil
	default:
		return ErrQueueFull
	}
}

// Resume requeues jobs left pending by a previous run. Call it before Start
// and before the server accepts new jobs.
func (w *Worker) Resume(ctx context.Context) error {
	pending, err := w.Store.Recover(ctx)
	if err != nil {
		return err
	}
	for _, id := range pending {
		if err := w.enqueue(id); err != nil {
			w.Logger.Warn("Pending job dropped", zap.String("id", id), zap.Error(err))
		}
	}
	if len(pending) > 0 {
		w.Logger.Info("Pending jobs resumed", zap.Int("count", len(pending)))
	}
	return nil
}

// Start processes the queue until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case id := <-w.queue:
			w.process(ctx, id)
		}
	}
}

func (w *Worker) process(ctx context.Context, id string) {
	logger := w.Logger.With(zap.String("job", id))

	job, err := w.Store.Get(ctx, id)
	if err != nil {
		logger.Error("Job lookup failed", zap.Error(err))
		return
	}
	if job.Status != StatusPending {
		logger.Warn("Job is not pending, skipped", zap.String("status", string(job.Status)))
		return
	}
	if err := w.Store.SetRunning(ctx, id); err != nil {
		logger.Error("Job update failed", zap.Error(err))
		return
	}
	w.Broker.Publish(Update{JobID: id, Status: StatusRunning, Message: "started"})
	logger.Info("Job started")

	progress := func(stage, message string) {
		if err := w.Store.SetMessage(ctx, id, message); err != nil {
			logger.Warn("Progress not saved", zap.Error(err))
		}
		w.Broker.Publish(Update{JobID: id, Status: StatusRunning, Stage: stage, Message: message})
	}

	output, err := w.runSafe(ctx, job, progress)
	if err != nil {
		logger.Error("Job failed", zap.Error(err))
		// Отмена контекста не должна помешать записать ошибку
		if uerr := w.Store.Fail(context.WithoutCancel(ctx), id, err); uerr != nil {
			logger.Error("Job update failed", zap.Error(uerr))
		}
		w.Broker.Publish(Update{JobID: id, Status: StatusFailed, Error: err.Error()})
		return
	}

	if err := w.Store.Complete(ctx, id, output); err != nil {
		logger.Error("Job update failed", zap.Error(err))
	}
	w.Broker.Publish(Update{JobID: id, Status: StatusCompleted, Message: "done", Output: output})
	logger.Info("Job completed", zap.String("output", output))
}

func (w *Worker) runSafe(ctx context.Context, job *Job, progress func(stage, message string)) (output string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return w.Run(ctx, job, progress)
}
