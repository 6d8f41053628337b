// Command collector pulls restaurant reviews from the Yelp API for the
// covered cities, outputting structured JSON to stdout or publishing to NATS
// for the ingest worker.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/SweetPickAI/sweetpick/engine/collector"
	"github.com/SweetPickAI/sweetpick/engine/ingest"
	"github.com/SweetPickAI/sweetpick/pkg/natsutil"
)

func main() {
	natsURL := flag.String("nats", "", "NATS URL (if empty, output JSON to stdout)")
	subject := flag.String("subject", ingest.IngestSubject, "NATS subject to publish to")
	cities := flag.String("cities", "Manhattan,Jersey City,Hoboken", "comma-separated cities to collect")
	neighborhood := flag.String("neighborhood", "", "restrict collection to one neighborhood")
	cuisines := flag.String("cuisines", "Italian,Indian,Chinese,American,Mexican", "comma-separated cuisines")
	limit := flag.Int("limit", 50, "restaurants per city/cuisine search")
	interval := flag.Duration("interval", 0, "polling interval (0 = one-shot)")
	flag.Parse()

	apiKey := os.Getenv("YELP_API_KEY")
	if apiKey == "" {
		log.Fatal("YELP_API_KEY is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	yelp := collector.NewYelp(apiKey)

	var nc *nats.Conn
	if *natsURL != "" {
		var err error
		nc, err = nats.Connect(*natsURL)
		if err != nil {
			log.Fatalf("nats connect: %v", err)
		}
		defer nc.Close()
		log.Printf("publishing to NATS subject %s", *subject)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	run := func() error {
		for _, city := range strings.Split(*cities, ",") {
			city = strings.TrimSpace(city)
			if city == "" {
				continue
			}
			opts := collector.CollectOpts{
				City:         city,
				Neighborhood: *neighborhood,
				Cuisines:     splitList(*cuisines),
				MaxPerSearch: *limit,
			}

			count := 0
			for result := range yelp.Collect(ctx, opts) {
				review, err := result.Unwrap()
				if err != nil {
					log.Printf("collect error in %s: %v", city, err)
					continue
				}
				if err := review.Validate(); err != nil {
					continue
				}
				count++

				if nc != nil {
					if err := natsutil.Publish(ctx, nc, *subject, review); err != nil {
						log.Printf("nats publish error: %v", err)
					}
				} else if err := enc.Encode(review); err != nil {
					return err
				}
			}
			log.Printf("collected %d reviews for %s", count, city)
		}
		return nil
	}

	// First run
	if err := run(); err != nil {
		log.Fatalf("collect: %v", err)
	}

	if *interval <= 0 {
		return
	}

	// Poll loop
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Println("shutting down")
			return
		case <-ticker.C:
			if err := run(); err != nil {
				log.Printf("collect error: %v", err)
			}
		}
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
