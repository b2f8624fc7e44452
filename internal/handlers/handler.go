package handlers

import (
	"kiln_control/internal/logger"
	"kiln_control/internal/service"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Handler wires HTTP layer to services and logging.
type Handler struct {
	services *service.Service
	log      *logger.Logger
	commands *rate.Limiter
}

// NewHandler constructs a new HTTP handler with dependencies.
// Commands are not throttled until SetCommandRate is called.
func NewHandler(services *service.Service, log *logger.Logger) *Handler {
	return &Handler{
		services: services,
		log:      log,
		commands: rate.NewLimiter(rate.Inf, 1),
	}
}

// SetCommandRate limits POST /api/v1/command to rps requests per second with the given burst.
func (h *Handler) SetCommandRate(rps float64, burst int) {
	if rps <= 0 {
		h.commands = rate.NewLimiter(rate.Inf, 1)
		return
	}
	h.commands = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), h.requestIDMiddleware)

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health endpoint
	router.GET("/health", h.health)

	// Versioned API endpoints (unauthenticated, like the control socket)
	h.registerAPIRoutes(router)

	// Live status push on the same port
	router.GET("/ws", h.wsConnect)

	return router
}

func (h *Handler) registerAPIRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		h.registerKilnRoutes(api)
		h.registerProgramRoutes(api)
		h.registerLogRoutes(api)
	}
}

func (h *Handler) registerKilnRoutes(api *gin.RouterGroup) {
	api.GET("/status", h.getStatus)
	// Body example: {"cmd":"start","p1":7,"p2":0}
	api.POST("/command", h.commandRateLimit, h.sendCommand)
}

func (h *Handler) registerProgramRoutes(api *gin.RouterGroup) {
	programs := api.Group("/programs")
	{
		programs.GET("", h.listPrograms)
		programs.POST("", h.importProgram)
		programs.GET("/:id", h.getProgram)
		programs.DELETE("/:id", h.deleteProgram)
	}
}

func (h *Handler) registerLogRoutes(api *gin.RouterGroup) {
	api.GET("/logs", h.getLogs)
	api.GET("/firings/:id", h.getFiring)
}
