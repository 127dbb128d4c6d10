package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docbase.org/internal/httpapi"
	"docbase.org/internal/identity"
	"docbase.org/internal/obs"
	"docbase.org/internal/rbac"
	"docbase.org/internal/schema"
	"docbase.org/internal/store/pg"
)

var version = "0.3.0"

func main() {
	obs.Init()

	dsn := os.Getenv("DOCBASE_PG_DSN")
	if dsn == "" {
		log.Fatal("missing DSN: set DOCBASE_PG_DSN")
	}
	store, err := pg.Open(dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}

	idSvc, err := identity.NewService(store)
	if err != nil {
		log.Fatalf("identity service: %v", err)
	}
	rbacSvc, err := rbac.NewService(store)
	if err != nil {
		log.Fatalf("rbac service: %v", err)
	}
	registry, err := schema.NewRegistry(store)
	if err != nil {
		log.Fatalf("schema registry: %v", err)
	}
	kernel, err := rbac.NewKernel(idSvc, registry, store, registry)
	if err != nil {
		log.Fatalf("rbac kernel: %v", err)
	}

	api := httpapi.New(httpapi.ReadyProbe{DB: store.DB()}, version, idSvc, rbacSvc, registry, kernel)

	handler := httpapi.RequestID(api.Handler())
	handler = httpapi.Logging(handler)
	handler = httpapi.SecurityHeaders(handler)
	handler = httpapi.MaxBodyBytes(handler, 1<<20)
	limCtx, limCancel := context.WithCancel(context.Background())
	defer limCancel()
	handler = httpapi.RateLimit(limCtx, handler, 40, 20)

	addr := os.Getenv("DOCBASE_HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting docbase-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	_ = store.Close()
	log.Println("Stopped")
}
