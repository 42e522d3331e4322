package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	qrcode "github.com/skip2/go-qrcode"

	"presence/internal/absence"
	"presence/internal/auth"
	"presence/internal/campus"
	"presence/internal/checkin"
	"presence/internal/config"
	"presence/internal/docstore"
	"presence/internal/geo"
	"presence/internal/httpmiddleware"
	"presence/internal/queue"
	"presence/internal/session"
	"presence/internal/store"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("db connect failed: %w", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "presence:absences")
	}

	directory := campus.NewSQLDirectory(db.Client)
	schedule := campus.NewSQLSchedule(db.Client)
	roster := campus.NewResolver(schedule, directory)
	gate := geo.NewGate(cfg.OpenCutoff, cfg.WindowTTL, cfg.GeofenceRadiusM)

	checkinRepo := checkin.NewRepository(db.Client)
	checkins := checkin.NewService(checkinRepo, schedule, directory, roster, gate)

	absenceRepo := absence.NewRepository(db.Client)
	absences := absence.NewService(absenceRepo, roster, checkinRepo, q)

	sessionRepo := session.NewRepository(db.Client)
	sessions := session.NewService(schedule, sessionRepo, absences, cfg.ValidationGrace)

	// Document storage client (nil when not configured)
	var docs *docstore.Client
	if cfg.CloudinaryCloudName != "" && cfg.CloudinaryAPIKey != "" && cfg.CloudinaryAPISecret != "" {
		docs = docstore.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		log.Println("document storage configured:", cfg.CloudinaryCloudName)
	} else {
		log.Println("document storage not configured (CLOUDINARY_CLOUD_NAME / API_KEY / API_SECRET not set)")
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db.Client.PingContext(c.Request.Context()) == nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	authed := r.Group("/v1", auth.UserAuth(cfg.JWTSigningKey, cfg.JWTIssuer))
	professors := authed.Group("", auth.Require(auth.RoleProfessor))
	students := authed.Group("", auth.Require(auth.RoleStudent))
	admins := authed.Group("", auth.Require(auth.RoleAdmin))

	professors.POST("/sessions/:id/window", func(c *gin.Context) {
		var req struct {
			Lat float64 `json:"lat" binding:"required"`
			Lon float64 `json:"lon" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		claims := auth.FromContext(c)
		w, err := checkins.OpenWindow(c.Request.Context(), c.Param("id"), claims.Subject,
			geo.Coord{Lat: req.Lat, Lon: req.Lon}, time.Now().UTC())
		if err != nil {
			respondErr(c, err)
			return
		}

		// QR of the code so the professor can project it
		png, err := qrcode.Encode(w.Code, qrcode.Medium, 256)
		if err != nil {
			log.Printf("qr encode failed for window %s: %v", w.ID, err)
		}

		c.JSON(http.StatusCreated, gin.H{
			"code":       w.Code,
			"expires_at": w.ExpiresAt,
			"qr_png":     base64.StdEncoding.EncodeToString(png),
		})
	})

	professors.GET("/sessions/live-roster", func(c *gin.Context) {
		claims := auth.FromContext(c)
		entries, err := checkins.LiveRoster(c.Request.Context(), claims.Subject, time.Now().UTC())
		if err != nil {
			respondErr(c, err)
			return
		}
		if entries == nil {
			entries = []checkin.RosterEntry{}
		}
		c.JSON(http.StatusOK, gin.H{"roster": entries})
	})

	students.POST("/checkins", func(c *gin.Context) {
		var req struct {
			Code string  `json:"code" binding:"required"`
			Lat  float64 `json:"lat" binding:"required"`
			Lon  float64 `json:"lon" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		claims := auth.FromContext(c)
		res, err := checkins.Redeem(c.Request.Context(), req.Code, claims.Subject,
			geo.Coord{Lat: req.Lat, Lon: req.Lon}, time.Now().UTC())
		if err != nil {
			respondErr(c, err)
			return
		}

		status := "recorded"
		code := http.StatusCreated
		if res.AlreadyRecorded {
			status = "already_recorded"
			code = http.StatusOK
		}
		c.JSON(code, gin.H{"status": status})
	})

	professors.PUT("/sessions/:id/validate", func(c *gin.Context) {
		claims := auth.FromContext(c)
		res, err := sessions.ValidateByProfessor(c.Request.Context(), c.Param("id"), claims.Subject, time.Now().UTC())
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"absences_created": res.Created})
	})

	admins.PUT("/sessions/:id/validate-admin", func(c *gin.Context) {
		if err := sessions.ValidateByAdmin(c.Request.Context(), c.Param("id")); err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "validated"})
	})

	admins.PUT("/sessions/:id/reset-validation", func(c *gin.Context) {
		if err := sessions.ResetValidation(c.Request.Context(), c.Param("id")); err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "reset"})
	})

	admins.POST("/sessions/:id/reconcile", func(c *gin.Context) {
		res, err := sessions.Reconcile(c.Request.Context(), c.Param("id"), time.Now().UTC())
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"absences_created": res.Created, "already_done": res.AlreadyDone})
	})

	admins.GET("/absences", func(c *gin.Context) {
		recs, err := absences.ListAll(c.Request.Context())
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"absences": recs})
	})

	students.GET("/absences/mine", func(c *gin.Context) {
		claims := auth.FromContext(c)
		recs, err := absences.ListForStudent(c.Request.Context(), claims.Subject)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"absences": recs})
	})

	students.POST("/absences/:id/justify", func(c *gin.Context) {
		claims := auth.FromContext(c)
		text, docURL, ok := readJustification(c, docs)
		if !ok {
			return // readJustification already responded
		}

		rec, err := absences.Submit(c.Request.Context(), c.Param("id"), claims.Subject, text, docURL, time.Now().UTC())
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, rec)
	})

	admins.POST("/absences/:id/approve", func(c *gin.Context) {
		rec, err := absences.Approve(c.Request.Context(), c.Param("id"), time.Now().UTC())
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, rec)
	})

	admins.POST("/absences/:id/reject", func(c *gin.Context) {
		rec, err := absences.Reject(c.Request.Context(), c.Param("id"), time.Now().UTC())
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, rec)
	})

	// Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

// readJustification pulls text and an optional document from either a JSON
// body or a multipart form. Uploaded files go to the docstore and only the
// resulting URL travels further.
func readJustification(c *gin.Context, docs *docstore.Client) (text, docURL string, ok bool) {
	if c.ContentType() == "multipart/form-data" {
		text = c.PostForm("text")
		file, header, err := c.Request.FormFile("document")
		if err != nil {
			return text, "", true // text-only form is fine
		}
		defer file.Close()

		if docs == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "document storage not configured"})
			return "", "", false
		}
		data, err := io.ReadAll(file)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "read file failed"})
			return "", "", false
		}
		result, err := docs.UploadDocument(data, header.Filename)
		if err != nil {
			log.Printf("justification upload failed: %v", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "document upload failed"})
			return "", "", false
		}
		return text, result.SecureURL, true
	}

	var body struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", "", false
	}
	return body.Text, "", true
}

// respondErr maps domain errors to HTTP statuses and machine-readable codes.
func respondErr(c *gin.Context, err error) {
	type mapping struct {
		status int
		code   string
	}
	for target, m := range map[error]mapping{
		campus.ErrSessionNotFound:   {http.StatusNotFound, "session_not_found"},
		checkin.ErrForbidden:        {http.StatusForbidden, "forbidden"},
		checkin.ErrOutOfWindow:      {http.StatusForbidden, "out_of_window"},
		checkin.ErrNotFound:         {http.StatusNotFound, "not_found"},
		checkin.ErrNotEnrolled:      {http.StatusForbidden, "not_enrolled"},
		geo.ErrExpired:              {http.StatusGone, "expired"},
		geo.ErrTooFar:               {http.StatusForbidden, "too_far"},
		session.ErrForbidden:        {http.StatusForbidden, "forbidden"},
		session.ErrAlreadyValidated: {http.StatusConflict, "already_validated"},
		session.ErrTooEarly:         {http.StatusUnprocessableEntity, "too_early"},
		session.ErrTooLate:          {http.StatusUnprocessableEntity, "too_late"},
		absence.ErrNotFound:         {http.StatusNotFound, "not_found"},
		absence.ErrInvalid:          {http.StatusBadRequest, "invalid"},
		absence.ErrForbidden:        {http.StatusForbidden, "forbidden"},
		absence.ErrClosed:           {http.StatusConflict, "closed"},
	} {
		if errors.Is(err, target) {
			c.JSON(m.status, gin.H{"error": err.Error(), "code": m.code})
			return
		}
	}
	log.Printf("internal error on %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "code": "server_error"})
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
