package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/carefill/carefill/internal/domain"
	"github.com/carefill/carefill/internal/middleware"
	"github.com/carefill/carefill/pkg/auth"
	"github.com/carefill/carefill/pkg/metrics"
)

type RouterDeps struct {
	AuthHandler         *AuthHandler
	FulfillmentHandler  *FulfillmentHandler
	PrescriptionHandler *PrescriptionHandler
	JWTManager          *auth.JWTManager
	Metrics             *metrics.Collector
	Log                 *zap.Logger
}

func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Log))
	r.Use(middleware.Metrics(deps.Metrics))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.MetricsHandler()))

	api := r.Group("/api/v1")

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/login", deps.AuthHandler.Login)
		authGroup.POST("/refresh", deps.AuthHandler.Refresh)
		authGroup.POST("/change-password", middleware.Auth(deps.JWTManager), deps.AuthHandler.ChangePassword)
	}

	authed := api.Group("")
	authed.Use(middleware.Auth(deps.JWTManager))

	providers := []domain.Role{domain.RolePharmacy, domain.RoleLab, domain.RoleRadiologist}

	fulfillment := authed.Group("/fulfillment")
	{
		fulfillment.POST("",
			middleware.RequireRoles(domain.RoleDoctor, domain.RoleAdmin),
			deps.FulfillmentHandler.Create)
		fulfillment.GET("", deps.FulfillmentHandler.List)
		fulfillment.GET("/:id", deps.FulfillmentHandler.Get)
		fulfillment.PATCH("/:id/fulfill",
			middleware.RequireRoles(providers...),
			deps.FulfillmentHandler.Fulfill)
		fulfillment.PATCH("/:id/confirm",
			middleware.RequireRoles(domain.RolePatient),
			deps.FulfillmentHandler.Confirm)
		fulfillment.PATCH("/:id/cancel",
			middleware.RequireRoles(domain.RolePatient),
			deps.FulfillmentHandler.Cancel)
		fulfillment.PATCH("/:id/reassign",
			middleware.RequireRoles(domain.RolePatient),
			deps.FulfillmentHandler.Reassign)
	}

	prescriptions := authed.Group("/prescriptions")
	{
		prescriptions.POST("",
			middleware.RequireRoles(domain.RoleDoctor, domain.RoleAdmin),
			deps.PrescriptionHandler.Issue)
		prescriptions.GET("", deps.PrescriptionHandler.List)
		prescriptions.GET("/:id", deps.PrescriptionHandler.Get)
	}

	return r
}
