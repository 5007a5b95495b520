package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) readyHandler(c *gin.Context) {
	res, ready := s.sc.Readiness(c.Request.Context())

	if !ready {
		c.JSON(http.StatusServiceUnavailable, res)
		return
	}

	c.JSON(http.StatusOK, res)
}

func (s *Server) onlineHandler(c *gin.Context) {
	c.String(http.StatusOK, s.sc.Online())
}
