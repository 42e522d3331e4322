package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"presence/internal/absence"
	"presence/internal/campus"
	"presence/internal/config"
	"presence/internal/notifier"
	"presence/internal/queue"
	"presence/internal/store"
)

// Worker consumes absence messages and delivers notifications through the
// mail gateway. Delivery failures are logged and dropped; reconciliation is
// the source of truth, mail is best-effort.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "presence:absences")
	}

	absenceRepo := absence.NewRepository(db.Client)
	directory := campus.NewSQLDirectory(db.Client)
	mail := notifier.New(cfg.MailGatewayURL, cfg.MailSkip)

	if !cfg.MailSkip {
		if err := mail.Health(ctx); err != nil {
			log.Printf("WARNING: mail gateway not available: %v", err)
			log.Println("worker will retry delivery when messages arrive")
		} else {
			log.Println("mail gateway connected")
		}
	}

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for messages...")
	for msg := range messages {
		if msg.Type != "absence" {
			continue
		}

		id := string(msg.Body)
		rec, err := absenceRepo.Get(ctx, id)
		if err != nil {
			log.Printf("fetch absence %s failed: %v", id, err)
			continue
		}

		student, err := directory.Student(ctx, rec.StudentID)
		if err != nil {
			log.Printf("student lookup for absence %s failed: %v", id, err)
			continue
		}

		err = mail.Send(ctx, notifier.Notification{
			To:       student.Email,
			Name:     student.Name,
			Template: "absence_recorded",
			Data: map[string]string{
				"absence_id": rec.ID,
				"session_id": rec.SessionID,
				"status":     rec.Status,
			},
		})
		if err != nil {
			log.Printf("notification for absence %s failed: %v", id, err)
			continue
		}
		log.Printf("absence %s notified to %s", id, student.Email)
	}

	log.Println("worker stopped")
}
