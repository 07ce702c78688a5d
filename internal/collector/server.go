package collector

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/posectl/internal/capture"
	"github.com/danmuck/posectl/internal/config"
	"github.com/danmuck/posectl/internal/observability"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const (
	IngestPath = "/upload/camera"
	version    = "0.1.0"
)

// Server is a reference collector that accepts uploaded capture sessions.
type Server struct {
	ID       string
	Addr     string
	Appeared time.Time

	router  *gin.Engine
	store   Store
	jobs    *JobRegistry
	maxBody int64
	now     func() time.Time
}

type uploadRequest struct {
	User      string          `json:"user"`
	Label     string          `json:"label"`
	SessionID string          `json:"session_id"`
	Frames    []capture.Frame `json:"frames"`
}

type uploadResponse struct {
	Success     bool   `json:"success"`
	TaskID      string `json:"task_id"`
	Status      string `json:"status"`
	TotalFrames int    `json:"total_frames"`
	Filename    string `json:"filename"`
}

type jobResponse struct {
	JobID  string         `json:"job_id"`
	Status string         `json:"status"`
	Result map[string]any `json:"result,omitempty"`
}

func Appear(cfg config.CollectorConfig, store Store) *Server {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(cfg.Name))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CorsOrigins),
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "User-Agent"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	return &Server{
		ID:       cfg.Name,
		Addr:     cfg.Addr,
		Appeared: time.Now(),
		router:   r,
		store:    store,
		jobs:     NewJobRegistry(),
		maxBody:  cfg.MaxBodyBytes,
		now:      time.Now,
	}
}

func (s *Server) HTTPRouter() *gin.Engine {
	return s.router
}

func (s *Server) Jobs() *JobRegistry {
	return s.jobs
}

func (s *Server) RegisterRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.Appeared).String(),
			"service": s.ID,
			"version": version,
		})
	})

	s.router.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"ready":   s.store != nil,
			"uptime":  time.Since(s.Appeared).String(),
			"service": s.ID,
			"version": version,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.POST(IngestPath, s.handleUpload)
	s.router.GET("/jobs/:id", s.handleJob)
}

func (s *Server) Serve() error {
	s.RegisterRoutes()
	return s.router.Run(s.Addr)
}

func (s *Server) handleUpload(c *gin.Context) {
	if s.maxBody > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxBody)
	}
	var req uploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"detail": "payload too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid json: " + err.Error()})
		return
	}
	if detail := validateUpload(req); detail != "" {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": detail})
		return
	}

	name, err := s.store.Save(StoredSession{
		User:       strings.TrimSpace(req.User),
		Label:      strings.TrimSpace(req.Label),
		SessionID:  strings.TrimSpace(req.SessionID),
		ReceivedAt: s.now().UTC(),
		Frames:     normalizeFrames(req.Frames),
	})
	if err != nil {
		log.Error().Str("collector", s.ID).Str("session_id", req.SessionID).Err(err).Msg("session store failed")
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "failed to store session"})
		return
	}
	observability.RecordStoredSession(s.ID, s.store.Format(), len(req.Frames))

	job := Job{
		TaskID:      uuid.NewString(),
		Status:      JobStatusDone,
		Filename:    name,
		TotalFrames: len(req.Frames),
		User:        req.User,
		Label:       req.Label,
		SessionID:   req.SessionID,
		CreatedAt:   s.now(),
	}
	s.jobs.Upsert(job)
	log.Info().
		Str("collector", s.ID).
		Str("session_id", job.SessionID).
		Str("task_id", job.TaskID).
		Int("frames", job.TotalFrames).
		Str("filename", name).
		Msg("session stored")

	c.JSON(http.StatusOK, uploadResponse{
		Success:     true,
		TaskID:      job.TaskID,
		Status:      job.Status,
		TotalFrames: job.TotalFrames,
		Filename:    job.Filename,
	})
}

func (s *Server) handleJob(c *gin.Context) {
	job, ok := s.jobs.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "job not found"})
		return
	}
	c.JSON(http.StatusOK, jobResponse{
		JobID:  job.TaskID,
		Status: job.Status,
		Result: map[string]any{
			"filename":     job.Filename,
			"total_frames": job.TotalFrames,
			"user":         job.User,
			"label":        job.Label,
			"session_id":   job.SessionID,
		},
	})
}

func validateUpload(req uploadRequest) string {
	switch {
	case strings.TrimSpace(req.User) == "":
		return "user is required"
	case strings.TrimSpace(req.Label) == "":
		return "label is required"
	case strings.TrimSpace(req.SessionID) == "":
		return "session_id is required"
	case len(req.Frames) == 0:
		return "frames must not be empty"
	}
	for i := 1; i < len(req.Frames); i++ {
		if req.Frames[i].TimestampMS < req.Frames[i-1].TimestampMS {
			return "frame timestamps must not decrease"
		}
	}
	if req.Frames[0].TimestampMS < 0 {
		return "frame timestamps must not be negative"
	}
	return ""
}

// normalizeFrames turns null point lists into empty ones before storage.
func normalizeFrames(frames []capture.Frame) []capture.Frame {
	for i := range frames {
		lm := &frames[i].Landmarks
		if lm.Pose == nil {
			lm.Pose = []capture.Point{}
		}
		if lm.LeftHand == nil {
			lm.LeftHand = []capture.Point{}
		}
		if lm.RightHand == nil {
			lm.RightHand = []capture.Point{}
		}
	}
	return frames
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
