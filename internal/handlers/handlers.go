package handlers

import (
	"embed"
	"errors"
	"io/fs"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/face-login/internal/auth"
	"github.com/example/face-login/internal/usecase"
)

// MaxBodySize bounds a /login request body. Webcam PNG captures are well
// under this once base64 encoded.
const MaxBodySize = 10 << 20

const (
	messageNotRecognized = "Face not recognized"
	messageNoImage       = "No image provided"
	messageInternal      = "Internal error"
	messageTooLarge      = "Image too large"
)

//go:embed static
var staticFiles embed.FS

// RouteOptions carries the optional parts of the HTTP surface.
type RouteOptions struct {
	// AllowedOrigin is the single cross-origin caller accepted on /login.
	// Empty means same-origin only.
	AllowedOrigin string
	// Tokens issues a session token after a successful login. Nil disables it.
	Tokens *auth.Issuer
	// Auth guards the attempt audit routes. Nil leaves them unregistered.
	Auth gin.HandlerFunc
}

type loginRequest struct {
	Image *string `json:"image"`
}

type loginResponse struct {
	Status  string `json:"status"`
	User    string `json:"user,omitempty"`
	Message string `json:"message,omitempty"`
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, uc *usecase.LoginUseCase, opts RouteOptions) {
	assets, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}
	loginPage, err := fs.ReadFile(assets, "login.html")
	if err != nil {
		panic(err)
	}

	router.GET("/", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", loginPage)
	})
	router.StaticFS("/static", http.FS(assets))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	var loginMiddleware []gin.HandlerFunc
	if opts.AllowedOrigin != "" {
		loginMiddleware = append(loginMiddleware, cors.New(cors.Config{
			AllowOrigins:  []string{opts.AllowedOrigin},
			AllowMethods:  []string{http.MethodPost, http.MethodOptions},
			AllowHeaders:  []string{"Content-Type"},
			ExposeHeaders: []string{"X-Session-Token", "X-Request-ID"},
			MaxAge:        12 * time.Hour,
		}))
	}
	login := router.Group("/login", loginMiddleware...)
	login.POST("", loginHandler(uc, opts.Tokens))
	login.OPTIONS("", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	if opts.Auth == nil {
		return
	}
	protected := router.Group("", opts.Auth)
	protected.GET("/attempts/:id", attemptHandler(uc))
	protected.GET("/metrics/summary", summaryHandler(uc))
}

func loginHandler(uc *usecase.LoginUseCase, tokens *auth.Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodySize)

		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				c.JSON(http.StatusRequestEntityTooLarge, loginResponse{Status: "fail", Message: messageTooLarge})
				return
			}
			// malformed JSON carries no usable image
			req.Image = nil
		}

		result := uc.Authenticate(c.Request.Context(), req.Image)
		c.Header("X-Request-ID", result.RequestID)

		if result.Status == usecase.StatusSuccess && tokens != nil {
			if token, err := tokens.Issue(result.UserID); err == nil {
				c.Header("X-Session-Token", token)
			}
		}

		status, body := shapeResponse(result)
		c.JSON(status, body)
	}
}

// shapeResponse maps a login result to its HTTP status and body.
func shapeResponse(result *usecase.LoginResult) (int, loginResponse) {
	switch result.Status {
	case usecase.StatusSuccess:
		return http.StatusOK, loginResponse{Status: "success", User: result.UserID}
	case usecase.StatusNotFound:
		return http.StatusOK, loginResponse{Status: "fail", Message: messageNotRecognized}
	case usecase.StatusInvalidInput:
		return http.StatusBadRequest, loginResponse{Status: "fail", Message: messageNoImage}
	default:
		return http.StatusInternalServerError, loginResponse{Status: "fail", Message: messageInternal}
	}
}

func attemptHandler(uc *usecase.LoginUseCase) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := auth.GetUserID(c.Request.Context())

		attempt, err := uc.GetAttempt(c.Request.Context(), userID, c.Param("id"))
		switch {
		case errors.Is(err, usecase.ErrAuditDisabled):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "attempt history is disabled"})
			return
		case err != nil:
			c.JSON(http.StatusNotFound, gin.H{"error": "attempt not found"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"request_id": attempt.RequestID,
			"user_id":    attempt.UserID,
			"status":     attempt.Status,
			"compared":   attempt.Compared,
			"latency_ms": attempt.LatencyMs,
			"created_at": attempt.CreatedAt,
		})
	}
}

func summaryHandler(uc *usecase.LoginUseCase) gin.HandlerFunc {
	return func(c *gin.Context) {
		summary, err := uc.GetMetricsSummary(c.Request.Context())
		switch {
		case errors.Is(err, usecase.ErrAuditDisabled):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "attempt history is disabled"})
			return
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to aggregate attempts"})
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}
