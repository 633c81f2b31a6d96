package server

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"supercv-backend/internal/services/health"
	"supercv-backend/internal/shared/config"
	"supercv-backend/internal/shared/metrics"
	"supercv-backend/internal/shared/server/middleware"
	"supercv-backend/internal/shared/server/respond"
)

// RouteRegistrar attaches a feature's routes to the API group.
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// RouterDeps lists everything the HTTP surface needs. Nil handlers are skipped.
type RouterDeps struct {
	Config config.Config
	Tokens middleware.TokenVerifier

	Analyses    RouteRegistrar
	Claims      RouteRegistrar
	Suggestions RouteRegistrar
	Credits     RouteRegistrar
	Users       RouteRegistrar
	Payments    RouteRegistrar
	GoogleAuth  RouteRegistrar

	DB    *sql.DB
	Redis *redis.Client
}

// Rate limit groups.
const (
	groupUpload = "UPLOAD"
	groupAuth   = "AUTH"
)

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	if !deps.Config.IsDevLike() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	if deps.Config.OTelEnabled {
		r.Use(otelgin.Middleware(deps.Config.ServiceName))
	}
	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		metrics.Middleware(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
	)

	checks := health.NewService()
	if deps.DB != nil {
		checks.Register("postgres", deps.DB.PingContext)
	}
	if deps.Redis != nil {
		checks.Register("redis", func(ctx context.Context) error { return deps.Redis.Ping(ctx).Err() })
	}

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		report := checks.Status(c.Request.Context())
		status := http.StatusOK
		if !report.OK {
			status = http.StatusServiceUnavailable
		}
		respond.JSON(c, status, report)
	})

	api.Use(
		middleware.Auth(deps.Tokens),
		middleware.RateLimit(middleware.RateLimitConfig{
			Rules: map[string]middleware.RateLimitRule{
				groupUpload: {Rate: 0.2, Burst: 5},
				groupAuth:   {Rate: 1, Burst: 10},
			},
			GroupFor: rateLimitGroup,
		}),
	)

	for _, h := range []RouteRegistrar{
		deps.GoogleAuth,
		deps.Users,
		deps.Credits,
		deps.Analyses,
		deps.Claims,
		deps.Suggestions,
		deps.Payments,
	} {
		if h != nil {
			h.RegisterRoutes(api)
		}
	}
	return r
}

// rateLimitGroup buckets uploads and credential endpoints. Status polling has
// its own per-record limiter in the analyses handler.
func rateLimitGroup(c *gin.Context) string {
	switch {
	case c.Request.Method == http.MethodPost && c.FullPath() == "/api/v1/analyses":
		return groupUpload
	case c.Request.Method == http.MethodPost && (c.FullPath() == "/api/v1/auth/login" || c.FullPath() == "/api/v1/auth/register"):
		return groupAuth
	default:
		return ""
	}
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
