package httpapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"eventqueue/internal/auth"
	"eventqueue/internal/checkin"
	"eventqueue/internal/httpmiddleware"
)

// HealthCheck reports whether one backing service is reachable.
type HealthCheck func(ctx context.Context) bool

// Deps are the services the HTTP layer exposes.
type Deps struct {
	Registrations *checkin.Registrations
	Registry      *checkin.Registry
	Controller    *checkin.Controller
	Projector     *checkin.Projector
	Intake        *checkin.Intake
	Settings      *checkin.StoredSettings
	Auth          *auth.Issuer
	Limiter       httpmiddleware.Limiter
	Health        map[string]HealthCheck
	PublicBaseURL string
	Logger        *zap.Logger
}

// Server holds the handlers and the open intake stations.
type Server struct {
	Deps
	log       *zap.Logger
	keepAlive time.Duration

	mu       sync.Mutex
	stations map[stationKey]*checkin.ScannerSession
}

// New creates a server.
func New(d Deps) *Server {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		Deps:      d,
		log:       log.Named("http"),
		keepAlive: 25 * time.Second,
		stations:  make(map[stationKey]*checkin.ScannerSession),
	}
}

// Router builds the gin engine.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(cors.New(cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:           24 * time.Hour,
		AllowCredentials: false,
	}))
	r.Use(securityHeaders())
	if s.Limiter != nil {
		r.Use(httpmiddleware.GinMiddleware(s.Limiter, "/healthz", "/metrics", "/queue/:activityId/stream"))
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", s.healthz)

	// Public queue screen.
	r.GET("/queue/:activityId", s.displaySnapshot)
	r.GET("/queue/:activityId/stream", s.displayStream)

	v1 := r.Group("/v1")
	v1.POST("/auth/login", s.login)
	v1.GET("/activities/:id", s.getActivity)
	v1.POST("/activities/:id/registrations", s.register)

	admin := v1.Group("", auth.AdminAuth(s.Auth))
	admin.POST("/activities", s.createActivity)
	admin.GET("/activities/:id/registrations", s.listRegistrations)
	admin.GET("/registrations/:id", s.getRegistration)
	admin.PATCH("/registrations/:id/display-number", s.setDisplayNumber)
	admin.PUT("/profiles/:nationalId", s.linkProfile)
	admin.GET("/activities/:id/display-url", s.displayURL)

	admin.GET("/activities/:id/channels", s.listChannels)
	admin.POST("/activities/:id/channels", s.createChannel)
	admin.GET("/activities/:id/channels/stream", s.channelStream)
	admin.PATCH("/channels/:channelId", s.updateChannel)
	admin.DELETE("/channels/:channelId", s.deleteChannel)
	admin.POST("/channels/:channelId/call-next", s.callNext)
	admin.POST("/channels/:channelId/recall", s.recall)
	admin.POST("/channels/:channelId/insert", s.insertQueue)

	admin.POST("/activities/:id/intake/scan", s.intakeScan)
	admin.POST("/activities/:id/intake/search", s.intakeSearch)
	admin.DELETE("/activities/:id/intake/stations/:stationId", s.closeStation)

	admin.GET("/settings", s.getSettings)
	admin.PUT("/settings", s.putSettings)

	return r
}

// Close releases every intake station.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, st := range s.stations {
		_ = st.Close()
		delete(s.stations, k)
	}
}

func (s *Server) healthz(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range s.Health {
		ok := check(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

func (s *Server) login(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tok, err := s.Auth.Login(req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token": tok.AccessToken,
		"expires_at":   tok.ExpiresAt.Unix(),
	})
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}
