// package-event-sim publishes a fake catalog package event so a local
// booking-service can seed its package cache without the catalog service
// running.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/astromitra/astromitra/libs/kafkax"
)

func main() {
	var (
		brokers  = flag.String("brokers", getenv("KAFKA_BROKERS", "localhost:9092"), "comma-separated kafka brokers")
		topic    = flag.String("topic", getenv("KAFKA_TOPIC", "catalog.package.upserted.v1"), "topic to publish to")
		pkgID    = flag.String("package-id", getenv("PACKAGE_ID", ""), "package id")
		name     = flag.String("name", getenv("PACKAGE_NAME", "Vedic consultation"), "package name")
		pkgType  = flag.String("type", getenv("PACKAGE_TYPE", "service"), "package type (service or marriage)")
		duration = flag.Int("duration", mustAtoi(getenv("DURATION_MINUTES", "20")), "slot duration in minutes")
		active   = flag.Bool("active", true, "package is active")
	)
	flag.Parse()

	if *pkgID == "" {
		fatal("PACKAGE_ID is required")
	}
	if *duration <= 0 {
		fatal("duration must be positive")
	}

	payload, err := json.Marshal(map[string]any{
		"package_id":       *pkgID,
		"name":             *name,
		"type":             *pkgType,
		"duration_minutes": *duration,
		"is_active":        *active,
	})
	if err != nil {
		fatal(err.Error())
	}

	writer := &kafka.Writer{
		Addr:     kafka.TCP(kafkax.SplitBrokers(*brokers)...),
		Topic:    *topic,
		Balancer: &kafka.LeastBytes{},
	}
	defer writer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	eventID := uuid.NewString()
	err = writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(*pkgID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(eventID)},
			{Key: "event_type", Value: []byte(*topic)},
		},
	})
	if err != nil {
		fatal(err.Error())
	}
	fmt.Printf("published event_id=%s topic=%s package_id=%s\n", eventID, *topic, *pkgID)
}

func mustAtoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
