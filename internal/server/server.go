package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/berfenger/doorbell2mqtt/internal/config"

	"github.com/asynkron/protoactor-go/actor"
	_ "github.com/joho/godotenv/autoload"
)

const DEFAULT_ASK_TIMEOUT = 10 * time.Second

type Server struct {
	port        uint
	httpLog     bool
	profile     string
	askTimeout  time.Duration
	rootContext *actor.RootContext
	supervisor  *actor.PID
}

func NewServer(cfg config.Config, rootContext *actor.RootContext, supervisor *actor.PID) *http.Server {
	NewServer := &Server{
		port:        cfg.Port,
		rootContext: rootContext,
		supervisor:  supervisor,
		httpLog:     cfg.HttpLog,
		profile:     cfg.Profile,
		askTimeout:  DEFAULT_ASK_TIMEOUT,
	}

	// Declare Server config
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", NewServer.port),
		Handler:      NewServer.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return server
}
