// cmd/server/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/jswain/spyfall-service/internal/auth"
	"github.com/jswain/spyfall-service/internal/handlers"
	"github.com/jswain/spyfall-service/internal/middleware"
	"github.com/jswain/spyfall-service/internal/registry"
)

func main() {
	auth.Init()

	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	srv := handlers.NewServer(logger)
	srv.Registry.StartSweeper(context.Background(), registry.SweepInterval, registry.MaxRoomAge)

	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	logger.Infof("Running on %s", addr)
	if err := http.ListenAndServe(addr, middleware.LogMiddleware(logger)(mux)); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
