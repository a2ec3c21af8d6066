package v1

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/AliceSyndrome285/CradleAI/internal/profile"
	"github.com/AliceSyndrome285/CradleAI/plugin/ai"
	"github.com/AliceSyndrome285/CradleAI/server/internal/observability"
	ratelimit "github.com/AliceSyndrome285/CradleAI/server/middleware"
	"github.com/AliceSyndrome285/CradleAI/server/service/message"
	"github.com/AliceSyndrome285/CradleAI/store"
)

// APIKeyHeader overrides the configured API key for one request.
const APIKeyHeader = "X-API-Key"

type APIV1Service struct {
	Profile        *profile.Profile
	Store          *store.Store
	MessageService *message.Service
	Metrics        *observability.Metrics

	settings    *ai.APISettings
	rateLimiter *ratelimit.RateLimiter
}

func NewAPIV1Service(profile *profile.Profile, store *store.Store, messageService *message.Service, metrics *observability.Metrics) *APIV1Service {
	return &APIV1Service{
		Profile:        profile,
		Store:          store,
		MessageService: messageService,
		Metrics:        metrics,
		settings:       ai.NewAPISettingsFromProfile(profile),
		rateLimiter:    ratelimit.NewRateLimiter(time.Second/10, 20),
	}
}

// RegisterRoutes registers the message API with the given Echo instance.
func (s *APIV1Service) RegisterRoutes(echoServer *echo.Echo) {
	g := echoServer.Group("/api/v1")
	g.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOriginFunc: func(_ string) (bool, error) {
			return true, nil
		},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"*"},
	}))
	g.Use(s.rateLimiter.Middleware())

	g.GET("/conversations/:id/messages", s.ListMessages)
	g.POST("/conversations/:id/messages/:messageId/regenerate", s.RegenerateMessage)
	g.PATCH("/conversations/:id/messages/:messageId", s.EditMessage)
	g.DELETE("/conversations/:id/messages/:messageId", s.DeleteMessage)
	g.GET("/system/metrics", s.GetMetrics)
}

// settingsFor returns the server settings, with the request's API key when
// the client sent one.
func (s *APIV1Service) settingsFor(c echo.Context) *ai.APISettings {
	if key := c.Request().Header.Get(APIKeyHeader); key != "" {
		return s.settings.WithAPIKey(key)
	}
	return s.settings
}
