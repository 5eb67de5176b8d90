package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"otpattend/internal/botclient"
	"otpattend/internal/checkin"
	"otpattend/internal/config"
	"otpattend/internal/otp"
	"otpattend/internal/queue"
	"otpattend/internal/render"
	"otpattend/internal/store"
)

// Publisher renders the live code once per window and hands the payload to
// the delivery channel: the queue the external chat bot drains, and
// optionally a direct push to the bot service.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(ctx, cfg.DBPath, cfg.DBConnectRetries, cfg.DBConnectBackoff)
	if err != nil {
		log.Fatalf("store connect failed: %v", err)
	}
	defer db.Close()

	if err := store.RunMigrations(db.Writer); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	repo := checkin.NewRepository(db)
	secret, err := checkin.LoadSecret(ctx, repo)
	if err != nil {
		log.Fatalf("load secret failed: %v", err)
	}

	engine, err := otp.New(secret, cfg.OTPWindow)
	if err != nil {
		log.Fatalf("engine init failed: %v", err)
	}

	renderer, err := render.New(cfg.TargetPhone, cfg.MessageTemplate)
	if err != nil {
		log.Fatalf("renderer init failed: %v", err)
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	var q queue.Queue
	if cfg.QueueBackend == "redis" {
		q = queue.NewRedisQueue(redisClient.Client, "otpattend:delivery")
	} else {
		q = queue.NewInMemory(64)
	}

	bot := botclient.New(cfg.BotServiceURL, !cfg.BotPush)
	if cfg.BotPush {
		if err := bot.Health(ctx); err != nil {
			log.Printf("WARNING: bot service not available: %v", err)
		} else {
			log.Println("bot service connected")
		}
	}

	log.Printf("publisher started, window %s, target %s", cfg.OTPWindow, renderer.Phone())

	for {
		cur := engine.CurrentCode(time.Now())

		payload, err := renderer.Payload(cur.Code, cur.ExpiresAt)
		if err != nil {
			log.Printf("render failed: %v", err)
		} else {
			msg, merr := queue.NewMessage("code", payload)
			if merr != nil {
				log.Printf("message encode failed: %v", merr)
			} else if err := q.Publish(ctx, msg); err != nil {
				log.Printf("queue publish failed: %v", err)
			}
			if cfg.BotPush {
				if err := bot.Send(ctx, payload); err != nil {
					log.Printf("bot push failed: %v", err)
				}
			}
			log.Printf("published code %s, expires in %ds", cur.Code, cur.ExpiresInSeconds)
		}

		// Sleep to the window boundary so the next payload goes out the
		// moment the code rolls over.
		select {
		case <-time.After(time.Until(cur.ExpiresAt)):
		case <-ctx.Done():
			log.Println("publisher stopped")
			return
		}
	}
}
