// Package web serves the browser form and the JSON/websocket API for
// generation jobs.
package web

import (
	"context"
	"errors"
	"html/template"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ivlev/prompt2video/internal/jobs"
)

var Styles = []string{"anime", "pixar", "realistic"}

type Server struct {
	Store  *jobs.Store
	Worker *jobs.Worker
	Broker *jobs.Broker
	Logger *zap.Logger

	upgrader websocket.Upgrader
}

func NewServer(store *jobs.Store, worker *jobs.Worker, broker *jobs.Broker, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		Store:  store,
		Worker: worker,
		Broker: broker,
		Logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	r.SetHTMLTemplate(template.Must(template.New("index").Parse(indexHTML)))

	r.GET("/", s.handleIndex)

	api := r.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
		api.POST("/jobs", s.handleCreateJob)
		api.GET("/jobs", s.handleListJobs)
		api.GET("/jobs/:id", s.handleGetJob)
		api.GET("/jobs/:id/video", s.handleVideo)
		api.GET("/jobs/:id/events", s.handleEvents)
	}
	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.Logger.Debug("http",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)),
		)
	}
}

func (s *Server) handleIndex(c *gin.Context) {
	c.HTML(http.StatusOK, "index", gin.H{"Styles": Styles})
}

type createJobRequest struct {
	Prompt  string `form:"prompt" json:"prompt"`
	Emotion string `form:"emotion" json:"emotion"`
	Style   string `form:"style" json:"style"`
}

func (s *Server) handleCreateJob(c *gin.Context) {
	var req createJobRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.Prompt == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "prompt is required"})
		return
	}
	if req.Emotion == "" {
		req.Emotion = "happy"
	}
	if req.Style == "" {
		req.Style = "anime"
	}

	job, err := s.Worker.Submit(c.Request.Context(), req.Prompt, req.Emotion, req.Style)
	if errors.Is(err, jobs.ErrQueueFull) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, job)
}

func (s *Server) handleListJobs(c *gin.Context) {
	list, err := s.Store.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": list})
}

// lookup пишет ответ сам, если задачи нет.
func (s *Server) lookup(c *gin.Context) (*jobs.Job, bool) {
	job, err := s.Store.Get(c.Request.Context(), c.Param("id"))
	return s.found(c, job, err)
}

func (s *Server) found(c *gin.Context, job *jobs.Job, err error) (*jobs.Job, bool) {
	if errors.Is(err, jobs.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return nil, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	return job, true
}

func (s *Server) handleGetJob(c *gin.Context) {
	if job, ok := s.lookup(c); ok {
		c.JSON(http.StatusOK, job)
	}
}

func (s *Server) handleVideo(c *gin.Context) {
	job, ok := s.lookup(c)
	if !ok {
		return
	}
	if job.Status != jobs.StatusCompleted {
		c.JSON(http.StatusConflict, gin.H{"error": "job is " + string(job.Status)})
		return
	}
	if _, err := os.Stat(job.Output); err != nil {
		c.JSON(http.StatusGone, gin.H{"error": "video file is gone"})
		return
	}
	c.Header("Content-Type", "video/mp4")
	c.File(job.Output)
}

// watch подписывается на обновления задачи и только потом читает её
// состояние: обновление, пришедшее между ними, попадёт в канал.
func (s *Server) watch(ctx context.Context, id string) (*jobs.Job, <-chan jobs.Update, func(), error) {
	updates, stop := s.Broker.Subscribe(id)
	job, err := s.Store.Get(ctx, id)
	if err != nil {
		stop()
		return nil, nil, nil, err
	}
	return job, updates, stop, nil
}

func (s *Server) handleEvents(c *gin.Context) {
	job, updates, stop, err := s.watch(c.Request.Context(), c.Param("id"))
	if _, ok := s.found(c, job, err); !ok {
		return
	}
	defer stop()

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	// Читаем, чтобы заметить закрытие со стороны браузера
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	current := jobs.Update{
		JobID:   job.ID,
		Status:  job.Status,
		Message: job.Message,
		Output:  job.Output,
		Error:   job.Error,
	}
	if err := conn.WriteJSON(current); err != nil || job.Status.Terminal() {
		return
	}

	for {
		select {
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		case u := <-updates:
			if err := conn.WriteJSON(u); err != nil {
				return
			}
			if u.Status.Terminal() {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(u.Status)))
				return
			}
		}
	}
}
