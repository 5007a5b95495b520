package server

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func (s *Server) RegisterRoutes() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger())

	if len(s.config.CORS.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     s.config.CORS.AllowedOrigins,
			AllowMethods:     s.config.CORS.AllowedMethods,
			AllowHeaders:     s.config.CORS.AllowedHeaders,
			AllowCredentials: s.config.CORS.AllowCredentials,
			MaxAge:           time.Duration(s.config.CORS.MaxAge) * time.Second,
		}))
	}

	r.GET("/health", s.onlineHandler)
	r.GET("/ready", s.readyHandler)

	stats := r.Group("/statistics")
	stats.GET("/players", s.playersHandler)
	stats.GET("/players/:id", s.playerHandler)
	stats.GET("/players/:id/weapons", s.playerWeaponsHandler)
	stats.GET("/counts", s.countsHandler)

	r.POST("/reports", s.submitReportHandler)
	r.POST("/reports/batch", s.submitReportsHandler)
	r.POST("/games/:id/finish", s.finishGameHandler)
	r.DELETE("/games/:id", s.deleteGameHandler)
	r.GET("/games/:id/reports", s.gameReportsHandler)

	r.PUT("/match-configs", s.saveMatchConfigHandler)
	r.GET("/match-configs/:id", s.matchConfigHandler)

	r.POST("/bans", s.createBanHandler)

	return r
}
