package main

import (
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/colornodes/client-go/internal/devserver"
)

func main() {
	_ = godotenv.Load()

	log, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	addr := os.Getenv("COLORNODES_DEV_ADDR")
	if addr == "" {
		addr = ":5197"
	}

	srv := devserver.New(log)
	mux := http.NewServeMux()
	mux.Handle("/api/", http.StripPrefix("/api", srv.Routes()))

	log.Info("dev server listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal("listen", zap.Error(err))
	}
}
