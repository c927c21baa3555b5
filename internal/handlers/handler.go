package handlers

import (
	"smokehouse/internal/logger"
	"smokehouse/internal/service"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Handler wires HTTP layer to services and logging.
type Handler struct {
	services *service.Service
	log      *logger.Logger

	signInRate  rate.Limit
	signInBurst int
}

// NewHandler constructs a new HTTP handler with dependencies.
func NewHandler(services *service.Service, log *logger.Logger) *Handler {
	return &Handler{services: services, log: log, signInRate: rate.Inf}
}

// LimitSignIn throttles sign-in attempts per client IP.
func (h *Handler) LimitSignIn(perSec float64, burst int) {
	if perSec <= 0 {
		h.signInRate = rate.Inf
		return
	}
	h.signInRate = rate.Limit(perSec)
	h.signInBurst = max(burst, 1)
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	router.GET("/health", h.health)

	h.registerAuthRoutes(router)
	h.registerAPIRoutes(router)

	// browsers cannot set headers on the upgrade request, so /ws also
	// accepts ?token=
	router.GET("/ws", h.operatorMiddleware, h.wsConnect)

	return router
}

func (h *Handler) registerAuthRoutes(r *gin.Engine) {
	auth := r.Group("/auth")
	{
		auth.POST("/sign-in", rateLimiter(h.signInRate, h.signInBurst), h.signIn)
	}
}

func (h *Handler) registerAPIRoutes(r *gin.Engine) {
	api := r.Group("/api/v1", h.operatorMiddleware)
	{
		h.registerProcessRoutes(api)
		h.registerProfileRoutes(api)
		h.registerMaintenanceRoutes(api)
		h.registerLogRoutes(api)
	}
}

func (h *Handler) registerProcessRoutes(api *gin.RouterGroup) {
	process := api.Group("/process")
	{
		process.GET("/state", h.getState)
		process.GET("/diagnostics", h.getDiagnostics)
		// Body example: {"mode":"AUTO"}
		process.POST("/start", h.startProcess)
		process.POST("/stop", h.stopProcess)
		process.POST("/resume", h.resumeProcess)
		// Body example: {"tset":80,"power":2,"smoke":120,"fan":1}
		process.POST("/manual", h.setManual)
	}
}

func (h *Handler) registerProfileRoutes(api *gin.RouterGroup) {
	profiles := api.Group("/profiles")
	{
		profiles.GET("", h.listProfiles)
		profiles.POST("/select", h.selectProfile)
		profiles.GET("/:name", h.getProfile)
		profiles.PUT("/:name", h.saveProfile)
	}
}

func (h *Handler) registerMaintenanceRoutes(api *gin.RouterGroup) {
	backups := api.Group("/backups")
	{
		backups.GET("", h.listBackups)
		backups.POST("", h.writeBackup)
		backups.POST("/restore", h.restoreBackup)
	}
	sensors := api.Group("/sensors")
	{
		sensors.POST("/assign", h.assignSensors)
		sensors.POST("/autodetect", h.autoDetectSensors)
	}
	api.POST("/storage/remount", h.remountStorage)
}

func (h *Handler) registerLogRoutes(api *gin.RouterGroup) {
	logs := api.Group("/logs")
	{
		logs.GET("", h.getLogs)
		logs.GET("/tail", h.tailLog)
	}
}
