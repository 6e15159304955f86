// Command replay feeds kill-log lines to a running fragrank instance.
//
// With -file it replays a recorded kill feed line by line; without one
// it generates a synthetic feed, which is handy for smoke testing and
// load testing a local instance.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
)

const (
	defaultNumEvents = 1000
	defaultTimeout   = 10 * time.Second
	defaultRunLimit  = 10 * time.Minute
)

var syntheticPlayers = []string{
	"alice", "bob", "carol", "dave", "erin",
	"frank", "grace", "heidi", "ivan", "judy",
}

type eventBody struct {
	EventID string `json:"event_id"`
	Scope   int64  `json:"scope"`
	Line    string `json:"line"`
	TS      string `json:"ts"`
}

func main() {
	var (
		baseURL = flag.String("url", "http://localhost:9080", "Base URL of the service")
		file    = flag.String("file", "", "Kill-log file to replay; empty generates a synthetic feed")
		scope   = flag.Int64("scope", 0, "Scope id to submit events under")
		events  = flag.Int("events", defaultNumEvents, "Number of synthetic events when no file is given")
		rate    = flag.Int("rate", 0, "Events per second; 0 means as fast as possible")
		timeout = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
	)
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunLimit)
	defer cancel()

	client := &http.Client{Timeout: *timeout}

	lines, err := loadLines(*file, *events)
	if err != nil {
		os.Stderr.WriteString("failed to load kill log: " + err.Error() + "\n")
		os.Exit(1)
	}

	var throttle <-chan time.Time
	if *rate > 0 {
		ticker := time.NewTicker(time.Second / time.Duration(*rate))
		defer ticker.Stop()
		throttle = ticker.C
	}

	start := time.Now()
	accepted, discarded, failed := 0, 0, 0
	for _, line := range lines {
		if throttle != nil {
			select {
			case <-throttle:
			case <-ctx.Done():
				os.Stderr.WriteString("run limit reached\n")
				return
			}
		}

		status, err := postLine(ctx, client, *baseURL, *scope, line)
		switch {
		case err != nil:
			failed++
			os.Stderr.WriteString("post failed: " + err.Error() + "\n")
		case status == http.StatusAccepted:
			accepted++
		default:
			discarded++
		}
	}

	elapsed := time.Since(start)
	fmt.Printf("replayed %d lines in %s: %d accepted, %d discarded, %d failed\n",
		len(lines), elapsed.Round(time.Millisecond), accepted, discarded, failed)
}

// loadLines reads the kill log, or fabricates one when path is empty.
func loadLines(path string, n int) ([]string, error) {
	if path == "" {
		return generateLines(n), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

// generateLines produces a synthetic kill feed with occasional chatter.
func generateLines(n int) []string {
	lines := make([]string, 0, n)
	for i := 0; i < n; i++ {
		if i%25 == 24 {
			lines = append(lines, "server: map rotation in 5 minutes")
			continue
		}
		killer := syntheticPlayers[rand.Intn(len(syntheticPlayers))]
		victim := syntheticPlayers[rand.Intn(len(syntheticPlayers))]
		for victim == killer {
			victim = syntheticPlayers[rand.Intn(len(syntheticPlayers))]
		}
		lines = append(lines, victim+" killed by "+killer)
	}
	return lines
}

func postLine(ctx context.Context, client *http.Client, baseURL string, scope int64, line string) (int, error) {
	body := eventBody{
		EventID: uuid.NewString(),
		Scope:   scope,
		Line:    line,
		TS:      time.Now().UTC().Format(time.RFC3339),
	}
	buf, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/events", bytes.NewReader(buf))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	return resp.StatusCode, nil
}
