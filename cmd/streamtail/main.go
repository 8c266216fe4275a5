// Command streamtail follows a session's log stream and prints decoded
// events, reconnecting automatically on transport failures. With
// -create it first creates a session (and optionally starts its
// monitor), which makes it a self-contained demo against a running
// streamlogd.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/streamlog/streamlog/client"
)

func main() {
	server := flag.String("server", "http://localhost:8000", "streamlogd base URL")
	sessionID := flag.String("session", "", "Session id to stream (required unless -create)")
	create := flag.Bool("create", false, "Create a new session first")
	monitorFlag := flag.Bool("monitor", false, "Start system monitoring on the session (with -create)")
	baseDelay := flag.Duration("retry-delay", time.Second, "Reconnect backoff unit")
	flag.Parse()

	id := *sessionID
	if *create {
		var err error
		id, err = createSession(*server, *monitorFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "create session: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("session %s\n", id)
	}
	if id == "" {
		fmt.Fprintln(os.Stderr, "either -session or -create is required")
		os.Exit(2)
	}

	s := client.New(*server, id, client.WithBaseDelay(*baseDelay))
	s.Start()
	defer s.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case <-sigCh:
			return
		case msg := <-s.Messages():
			switch m := msg.(type) {
			case client.ConnectedMsg:
				fmt.Println("-- connected --")
			case client.EventMsg:
				e := m.Event
				fmt.Printf("%s [%s] %s: %s\n",
					e.Timestamp.Format(time.TimeOnly), e.Level, e.Origin, e.Message)
			case client.RetryingMsg:
				fmt.Printf("-- connection lost (%v), retry %d in %s --\n", m.Err, m.Attempt, m.Delay)
			case client.ClosedMsg:
				fmt.Printf("-- stream closed: %s --\n", m.Reason)
				return
			case client.FailedMsg:
				fmt.Fprintf(os.Stderr, "stream failed: %v\n", m.Err)
				os.Exit(1)
			}
		}
	}
}

func createSession(server string, startMonitor bool) (string, error) {
	resp, err := http.Post(server+"/api/sessions", "application/json", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("unexpected status %s", resp.Status)
	}

	var body struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}

	if startMonitor {
		url := fmt.Sprintf("%s/api/sessions/%s/start-monitoring", server, body.SessionID)
		resp, err := http.Post(url, "application/json", nil)
		if err != nil {
			return "", err
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("start monitoring: unexpected status %s", resp.Status)
		}
	}

	return body.SessionID, nil
}
