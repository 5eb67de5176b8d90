package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"otpattend/internal/auth"
	"otpattend/internal/checkin"
	"otpattend/internal/config"
	"otpattend/internal/fault"
	"otpattend/internal/httpmiddleware"
	"otpattend/internal/metrics"
	"otpattend/internal/otp"
	"otpattend/internal/render"
	"otpattend/internal/store"
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
	ctx := context.Background()

	db, err := store.NewDB(ctx, cfg.DBPath, cfg.DBConnectRetries, cfg.DBConnectBackoff)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if err := store.RunMigrations(db.Writer); err != nil {
		return err
	}

	repo := checkin.NewRepository(db)

	// Secret bootstrap must complete before any validation traffic.
	boot, err := checkin.Bootstrap(ctx, repo)
	if err != nil {
		return err
	}
	if boot.Generated {
		log.Println("WARNING: otp secret was generated at startup; back it up before taking production traffic")
	}
	secret, err := checkin.LoadSecret(ctx, repo)
	if err != nil {
		return err
	}
	if len(secret) < otp.RecommendedSecretBytes {
		log.Printf("WARNING: otp secret is shorter than %d bytes", otp.RecommendedSecretBytes)
	}

	collector := metrics.New(prometheus.DefaultRegisterer)

	engine, err := otp.New(secret, cfg.OTPWindow, otp.WithMetrics(collector))
	if err != nil {
		return err
	}

	svc, err := checkin.NewService(repo, engine,
		checkin.WithTimestampSkew(cfg.TimestampSkew),
		checkin.WithMetrics(collector),
	)
	if err != nil {
		return err
	}

	// Renderer is optional: without a target phone the API still validates,
	// it just cannot project codes into delivery payloads.
	var renderer *render.Renderer
	if cfg.TargetPhone != "" {
		renderer, err = render.New(cfg.TargetPhone, cfg.MessageTemplate)
		if err != nil {
			return err
		}
		log.Println("delivery rendering configured for", renderer.Phone())
	} else {
		log.Println("delivery rendering not configured (TARGET_PHONE not set)")
	}

	redisClient := store.NewRedis(cfg.RedisAddr)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())

	if cfg.RateLimitBackend == "redis" {
		r.Use(httpmiddleware.NewRedisFixedWindow(redisClient.Client, cfg.RateLimitPerMin, "").GinMiddleware())
	} else {
		r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		dbHealthy := db.Reader.PingContext(c.Request.Context()) == nil
		redisHealthy := redisClient.Healthy(c.Request.Context())
		status := http.StatusOK
		if !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "db": dbHealthy, "redis": redisHealthy})
	})

	r.POST("/v1/stations/register", func(c *gin.Context) {
		var req struct {
			StationID string `json:"station_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		pair, err := auth.Issue(req.StationID, "station", cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"access_token":       pair.AccessToken,
			"refresh_token":      pair.RefreshToken,
			"expires_at":         pair.AccessExp.Unix(),
			"refresh_expires_at": pair.RefreshExp.Unix(),
		})
	})

	r.POST("/v1/stations/refresh", func(c *gin.Context) {
		var req struct {
			RefreshToken string `json:"refresh_token" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		claims, err := auth.Parse(req.RefreshToken, cfg.JWTSigningKey, cfg.JWTIssuer)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
			return
		}

		pair, err := auth.Issue(claims.Subject, claims.Role, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"access_token":       pair.AccessToken,
			"refresh_token":      pair.RefreshToken,
			"expires_at":         pair.AccessExp.Unix(),
			"refresh_expires_at": pair.RefreshExp.Unix(),
		})
	})

	authGroup := r.Group("/v1", auth.StationAuth(cfg.JWTSigningKey, cfg.JWTIssuer))

	authGroup.POST("/checkins", func(c *gin.Context) {
		var req struct {
			SubjectID     string `json:"subject_id" binding:"required"`
			PresentedCode string `json:"presented_code" binding:"required"`
			Timestamp     string `json:"timestamp"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		var ts time.Time
		if req.Timestamp != "" {
			parsed, perr := time.Parse(time.RFC3339, req.Timestamp)
			if perr != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "timestamp must be RFC 3339"})
				return
			}
			ts = parsed
		}

		res, err := svc.Submit(c.Request.Context(), req.SubjectID, req.PresentedCode, ts)
		if err != nil {
			c.JSON(fault.HTTPStatus(err), gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"accepted":    res.Accepted,
			"reason_code": res.Reason,
			"record_id":   res.RecordID,
			"timestamp":   res.Timestamp.Format(time.RFC3339),
		})
	})

	authGroup.GET("/otp/current", func(c *gin.Context) {
		cur := svc.CurrentCode()
		resp := gin.H{
			"code":               cur.Code,
			"expires_at":         cur.ExpiresAt.Format(time.RFC3339),
			"expires_in_seconds": cur.ExpiresInSeconds,
			"next_code":          cur.NextCode,
		}
		if renderer != nil {
			resp["link"] = renderer.Link(cur.Code)
		}
		c.JSON(http.StatusOK, resp)
	})

	authGroup.GET("/otp/current/qr", func(c *gin.Context) {
		if renderer == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "delivery rendering not configured"})
			return
		}
		cur := svc.CurrentCode()
		png, err := renderer.QR(cur.Code, render.DefaultQRSize)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Data(http.StatusOK, "image/png", png)
	})

	authGroup.GET("/checkins", func(c *gin.Context) {
		records, err := listCheckins(c, svc)
		if err != nil {
			c.JSON(fault.HTTPStatus(err), gin.H{"error": err.Error()})
			return
		}
		if records == nil {
			records = []checkin.Record{}
		}
		c.JSON(http.StatusOK, gin.H{"records": records})
	})

	authGroup.GET("/checkins/today", func(c *gin.Context) {
		records, err := svc.Today(c.Request.Context())
		if err != nil {
			c.JSON(fault.HTTPStatus(err), gin.H{"error": err.Error()})
			return
		}
		if records == nil {
			records = []checkin.Record{}
		}
		c.JSON(http.StatusOK, gin.H{"records": records})
	})

	authGroup.GET("/checkins/stats", func(c *gin.Context) {
		start, err := parseDayOrTime(c.Query("start"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "start must be a date or RFC 3339 time"})
			return
		}
		end, err := parseDayOrTime(c.Query("end"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "end must be a date or RFC 3339 time"})
			return
		}
		stats, err := svc.StatsRange(c.Request.Context(), start, end)
		if err != nil {
			c.JSON(fault.HTTPStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, stats)
	})

	authGroup.DELETE("/checkins", func(c *gin.Context) {
		days, err := strconv.Atoi(c.Query("older_than_days"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "older_than_days must be an integer"})
			return
		}
		deleted, err := svc.Purge(c.Request.Context(), days)
		if err != nil {
			c.JSON(fault.HTTPStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": deleted})
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

// listCheckins dispatches the /checkins query params: by subject, by single
// date, or by explicit range.
func listCheckins(c *gin.Context, svc *checkin.Service) ([]checkin.Record, error) {
	ctx := c.Request.Context()

	if subject := c.Query("subject_id"); subject != "" {
		limit := 0
		if v := c.Query("limit"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				limit = parsed
			}
		}
		return svc.ByPhone(ctx, subject, limit)
	}

	if day := c.Query("date"); day != "" {
		parsed, err := time.Parse("2006-01-02", day)
		if err != nil {
			return nil, fault.Validation("date must be YYYY-MM-DD")
		}
		return svc.ByDate(ctx, parsed)
	}

	start, err := parseDayOrTime(c.Query("start"))
	if err != nil {
		return nil, fault.Validation("start must be a date or RFC 3339 time")
	}
	end, err := parseDayOrTime(c.Query("end"))
	if err != nil {
		return nil, fault.Validation("end must be a date or RFC 3339 time")
	}
	return svc.ByDateRange(ctx, start, end)
}

func parseDayOrTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
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
