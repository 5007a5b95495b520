package server

import (
	"fmt"
	"net/http"
	"time"

	"matchstats/internal/config"
	"matchstats/internal/controller"
)

type Server struct {
	sc     controller.ServerController
	stc    controller.StatisticsController
	config config.Config
}

func New(config config.Config, sc controller.ServerController, stc controller.StatisticsController) *http.Server {
	server := Server{
		sc:     sc,
		stc:    stc,
		config: config,
	}

	return &http.Server{
		Addr:         fmt.Sprintf(":%v", config.Port),
		Handler:      server.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}
