package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/paperscore/paperscore/internal/config"
	"github.com/paperscore/paperscore/internal/consensus"
	apperrors "github.com/paperscore/paperscore/internal/errors"
	"github.com/paperscore/paperscore/internal/grading"
	"github.com/paperscore/paperscore/internal/imaging"
	"github.com/paperscore/paperscore/internal/monitoring"
	"github.com/paperscore/paperscore/internal/orchestrator"
	"github.com/paperscore/paperscore/internal/provider"
	"github.com/paperscore/paperscore/internal/provider/gemini"
	"github.com/paperscore/paperscore/internal/provider/openaic"
	"github.com/paperscore/paperscore/internal/ratelimit"
	"github.com/paperscore/paperscore/internal/reports"
	"github.com/paperscore/paperscore/internal/resilience"
	"github.com/paperscore/paperscore/internal/rubric"
	"github.com/paperscore/paperscore/internal/structure"
	"github.com/paperscore/paperscore/internal/tasks"
)

type gradeRequest struct {
	PaperID string         `json:"paper_id"`
	Rubric  []rubric.Entry `json:"rubric" binding:"required"`
	Page    pagePayload    `json:"page" binding:"required"`
}

type pagePayload struct {
	Width       int               `json:"width" binding:"required"`
	Height      int               `json:"height" binding:"required"`
	Tokens      []structure.Token `json:"tokens"`
	ImageBase64 string            `json:"image_base64"`
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	appLogger := monitoring.NewLogger()
	appMetrics := monitoring.NewMetrics()

	limiter := ratelimit.NewProviderLimiter(ratelimit.DefaultConfig())
	providers := buildProviders(cfg, limiter)
	if len(providers) == 0 {
		slog.Warn("No grading providers enabled; every question will consolidate to zero voters")
	}

	policy := orchestrator.Policy{
		MaxConcurrent:  cfg.Grading.MaxConcurrent,
		AttemptTimeout: cfg.Grading.AttemptTimeout,
		RetryTimeout:   cfg.Grading.RetryTimeout,
		Consensus: consensus.Options{
			MalformedWeight:       cfg.Grading.MalformedWeight,
			DisagreementThreshold: cfg.Grading.DisagreementThreshold,
			MalformedPenalty:      cfg.Grading.MalformedPenalty,
			LowConfidenceCap:      cfg.Grading.LowConfidenceCap,
		},
		Imaging: imaging.Options{
			MaxDimension: cfg.Grading.MaxImageDimension,
			JPEGQuality:  cfg.Grading.JPEGQuality,
			PaddingPx:    cfg.Grading.RegionPaddingPx,
		},
	}
	structureOpts := structure.Options{
		ColumnGapFraction:  cfg.Structure.ColumnGapFraction,
		LeftMarginFraction: cfg.Structure.LeftMarginFraction,
		HeaderBandFraction: cfg.Structure.HeaderBandFraction,
	}

	engine := grading.New(providers, limiter, appLogger, appMetrics, policy, structureOpts)
	registry := tasks.NewRegistry(cfg.Tasks.Retention)

	store, err := reports.NewStore(cfg.Reports.Dir, cfg.Reports.CacheTTL)
	if err != nil {
		slog.Error("Failed to initialize report store", "error", err, "dir", cfg.Reports.Dir)
		os.Exit(1)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           time.Duration(cfg.CORS.MaxAge) * time.Second,
	}))
	r.MaxMultipartMemory = cfg.Server.MaxUploadBytes

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().Format(time.RFC3339),
			"providers": engine.Providers(),
		})
	})

	api := r.Group("/api/v1")

	api.POST("/grade", func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, cfg.Server.MaxUploadBytes)

		var req gradeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			appErr := apperrors.NewValidationError("invalid grade request: " + err.Error())
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		page := structure.Page{
			Width:  req.Page.Width,
			Height: req.Page.Height,
			Tokens: req.Page.Tokens,
		}
		if req.Page.ImageBase64 != "" {
			raw, err := base64.StdEncoding.DecodeString(req.Page.ImageBase64)
			if err != nil {
				appErr := apperrors.NewValidationError("image_base64 is not valid base64")
				c.JSON(appErr.HTTPStatus, appErr)
				return
			}
			img, _, err := image.Decode(bytes.NewReader(raw))
			if err != nil {
				appErr := apperrors.NewValidationError("page image is not a decodable JPEG or PNG")
				c.JSON(appErr.HTTPStatus, appErr)
				return
			}
			page.Raster = img
		}

		rb := rubric.Rubric{Entries: req.Rubric}
		if err := rb.Validate(); err != nil {
			appErr := apperrors.ToGradingError(err)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		taskID := registry.Create()
		paperID := req.PaperID

		go func() {
			registry.SetProgress(taskID, 0, "grading started")

			sess, err := engine.GradePaper(context.Background(), paperID, page, rb, func(done, total int) {
				percent := 0
				if total > 0 {
					percent = done * 100 / total
				}
				registry.SetProgress(taskID, percent, "grading questions")
			})
			if err != nil {
				slog.Error("Grading failed", "task_id", taskID, "paper_id", paperID, "error", err)
				registry.Fail(taskID, err.Error())
				return
			}

			if _, err := store.Save(sess); err != nil {
				slog.Error("Failed to persist grading report", "paper_id", sess.PaperID, "error", err)
			}
			registry.Complete(taskID, sess)
		}()

		c.JSON(http.StatusAccepted, gin.H{
			"task_id": taskID,
			"status":  tasks.StatusPending,
		})
	})

	api.GET("/tasks/:id", func(c *gin.Context) {
		task, ok := registry.Get(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
			return
		}
		c.JSON(http.StatusOK, task)
	})

	api.GET("/reports/:paperID", func(c *gin.Context) {
		data, err := store.Load(c.Param("paperID"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
			return
		}
		c.Data(http.StatusOK, "application/json", data)
	})

	api.GET("/providers", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"providers": engine.Providers()})
	})

	api.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, engine.Metrics().Snapshot())
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		slog.Info("Starting server", "address", cfg.Server.Address, "providers", len(providers))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	registry.Stop()
	store.Close()

	slog.Info("Server exited")
}

// buildProviders assembles the enabled backends and installs their rate
// budgets. Providers without credentials are still registered so the
// availability endpoint can report them; the engine skips them only when
// their calls fail.
func buildProviders(cfg *config.Config, limiter *ratelimit.ProviderLimiter) []provider.Provider {
	var providers []provider.Provider

	if cfg.Providers.Gemini.Enabled {
		providers = append(providers, gemini.New("gemini", cfg.Providers.Gemini.APIKey, cfg.Providers.Gemini.Model))
		limiter.Configure("gemini", ratelimit.Config{
			RequestsPerMinute: cfg.Providers.Gemini.RequestsPerMinute,
			Burst:             cfg.Providers.Gemini.Burst,
		})
	}

	breaker := resilience.CircuitBreakerConfig{
		FailureThreshold: cfg.Grading.CircuitFailureThreshold,
		RecoveryTimeout:  cfg.Grading.CircuitRecoveryTimeout,
	}

	for id, pc := range map[string]config.ProviderConfig{
		"qwen": cfg.Providers.Qwen,
		"glm":  cfg.Providers.GLM,
	} {
		if !pc.Enabled {
			continue
		}
		providers = append(providers, openaic.New(openaic.Config{
			ID:        id,
			BaseURL:   pc.BaseURL,
			APIKey:    pc.APIKey,
			Model:     pc.Model,
			MaxTokens: pc.MaxTokens,
			Breaker:   breaker,
		}))
		limiter.Configure(id, ratelimit.Config{
			RequestsPerMinute: pc.RequestsPerMinute,
			Burst:             pc.Burst,
		})
	}

	return providers
}
