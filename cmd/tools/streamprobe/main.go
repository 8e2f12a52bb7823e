// streamprobe exercises the streaming chat endpoint from the command line:
// it posts one message, prints every event, and checks that the chunk deltas
// concatenate to the final fullContent.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type event struct {
	Content     string `json:"content"`
	FullContent string `json:"fullContent"`
	Error       string `json:"error"`
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] no .env file, using system environment: %v", err)
	}

	addr := flag.String("addr", "http://localhost:8080", "base URL of the chat API")
	user := flag.String("user", "probe-user", "value for the X-User-ID header")
	session := flag.String("session", "", "existing session id, empty starts a new conversation")
	message := flag.String("message", "", "user message to send")
	timeout := flag.Duration("timeout", 90*time.Second, "request timeout")
	flag.Parse()

	if strings.TrimSpace(*message) == "" {
		flag.Usage()
		log.Fatal("provide the user message with -message")
	}

	body, err := json.Marshal(map[string]string{
		"sessionId": *session,
		"message":   *message,
	})
	if err != nil {
		log.Fatalf("marshal request: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, *addr+"/api/chat/stream", bytes.NewReader(body))
	if err != nil {
		log.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", *user)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Fatalf("unexpected status: %s", resp.Status)
	}

	var deltas strings.Builder
	var eventName string
	chunks := 0

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			eventName = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			var payload event
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &payload); err != nil {
				log.Fatalf("bad event payload: %v", err)
			}

			switch eventName {
			case "chunk":
				chunks++
				deltas.WriteString(payload.Content)
				fmt.Printf("chunk %3d: %q\n", chunks, payload.Content)
				if deltas.String() != payload.FullContent {
					log.Fatalf("concatenation mismatch after chunk %d:\n deltas: %q\n full:   %q", chunks, deltas.String(), payload.FullContent)
				}
			case "complete":
				fmt.Printf("\ncomplete after %d chunks:\n%s\n", chunks, payload.FullContent)
				if chunks > 0 && deltas.String() != payload.FullContent {
					log.Fatalf("final concatenation mismatch:\n deltas: %q\n full:   %q", deltas.String(), payload.FullContent)
				}
				// The stream carries exactly one terminal event; stop here
				// even if more bytes arrive.
				return
			case "error":
				log.Fatalf("stream error: %s (%s)", payload.Content, payload.Error)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		log.Fatalf("read stream: %v", err)
	}
	log.Fatal("stream ended without a terminal event")
}
