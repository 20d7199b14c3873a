package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ariefcatur/go-menu-orders.git/internal/config"
	"github.com/ariefcatur/go-menu-orders.git/internal/httpx"
	kafkax "github.com/ariefcatur/go-menu-orders.git/internal/kafka"
	"github.com/ariefcatur/go-menu-orders.git/internal/mongox"
	"github.com/ariefcatur/go-menu-orders.git/internal/notifier"
	"github.com/ariefcatur/go-menu-orders.git/internal/orders"
	"github.com/ariefcatur/go-menu-orders.git/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Mongo
	connectCtx, connectCancel := context.WithTimeout(ctx, 10*time.Second)
	client, err := mongox.Connect(connectCtx, cfg.MongoURI)
	connectCancel()
	if err != nil {
		log.Fatalf("mongo connect: %v", err)
	}
	defer func() { _ = client.Disconnect(context.Background()) }()

	coll := client.Database(cfg.MongoDB).Collection("orders")
	repo := &orders.Repo{Orders: coll}
	if err := repo.EnsureIndexes(ctx); err != nil {
		log.Fatalf("ensure indexes: %v", err)
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producer (one writer, topic per message)
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024)
	prod.Start(ctx)

	// Handlers
	router := httpx.NewRouter()
	oh := &httpx.OrdersHandler{
		Repo:     repo,
		Producer: prod,
		Redis:    rdb,
		Service:  cfg.ServiceName,
	}
	oh.Register(router)

	sh := &httpx.StreamHandler{
		Subs:     &notifier.Notifier{Orders: coll},
		Disabled: cfg.StreamingDisabled,
	}
	sh.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Printf("HTTP listening at %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prod.Close() // close inbox -> flush & close writer
	prod.WaitClosed()
}
