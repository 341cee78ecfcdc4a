package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/riot-match-ingestor/internal/config"
	"github.com/riot-match-ingestor/internal/domain"
	"github.com/riot-match-ingestor/internal/kafka"
)

func main() {
	// Command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	brokers := flag.String("brokers", "", "Kafka brokers, comma-separated (overrides config)")
	topic := flag.String("topic", "", "Kafka topic (overrides config)")
	group := flag.String("group", "", "Consumer group (overrides config)")
	fromOldest := flag.Bool("from-oldest", false, "Start from the oldest retained event")
	raw := flag.Bool("json", false, "Print events as JSON lines")
	flag.Parse()

	config.LoadDotEnv()
	cfg, _, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *brokers != "" {
		cfg.Kafka.Brokers = strings.Split(*brokers, ",")
	}
	if *topic != "" {
		cfg.Kafka.Topic = *topic
	}
	if *group != "" {
		cfg.Kafka.GroupID = *group
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	}))

	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println("  Match ingestion events")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("  Brokers:          %s\n", strings.Join(cfg.Kafka.Brokers, ","))
	fmt.Printf("  Topic:            %s\n", cfg.Kafka.Topic)
	fmt.Printf("  Group:            %s\n", cfg.Kafka.GroupID)
	fmt.Printf("  From oldest:      %t\n", *fromOldest)
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	var received atomic.Int64
	handle := func(ctx context.Context, event domain.RunEvent) error {
		received.Add(1)
		if *raw {
			data, err := json.Marshal(event)
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}
		fmt.Println(describe(event))
		return nil
	}

	tail, err := kafka.NewTail(&cfg.Kafka, *fromOldest, handle, logger)
	if err != nil {
		logger.Error("failed to create consumer", "error", err)
		os.Exit(1)
	}
	if err := tail.Start(); err != nil {
		logger.Error("failed to start consumer", "error", err)
		os.Exit(1)
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	if err := tail.Stop(); err != nil {
		logger.Error("failed to stop consumer", "error", err)
	}
	fmt.Printf("\n  %d events received\n", received.Load())
}

// describe renders an event as one human readable line
func describe(event domain.RunEvent) string {
	ts := event.Timestamp.Format("15:04:05")
	switch {
	case event.Type == domain.EventMatchIngested && event.Match != nil:
		m := event.Match
		return fmt.Sprintf("%s  %-15s run=%s match=%s player=%s queue=%d patch=%s participants=%d",
			ts, event.Type, event.RunID, m.MatchID, m.Player, m.QueueID, m.GameVersion, m.Participants)
	case event.Type == domain.EventRunCompleted && event.Stats != nil:
		s := event.Stats
		return fmt.Sprintf("%s  %-15s run=%s players=%d found=%d inserted=%d skipped=%d participants=%d errors=%d duration=%s",
			ts, event.Type, event.RunID, s.PlayersProcessed, s.MatchesFound, s.MatchesInserted,
			s.MatchesSkipped, s.ParticipantsInserted, s.Errors, s.Duration())
	default:
		return fmt.Sprintf("%s  %-15s run=%s", ts, event.Type, event.RunID)
	}
}
