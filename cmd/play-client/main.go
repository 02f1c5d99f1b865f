// Command play-client exercises a running engine end to end: it
// creates a session, starts playback and tails the SSE stream,
// printing every frame until the performance reaches a terminal
// status.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	defaultTimeout = 10 * time.Second
	defaultTempo   = 120
)

type sessionResponse struct {
	ID     string `json:"sessionId"`
	Status string `json:"status"`
}

func main() {
	var (
		baseURL = flag.String("url", "http://localhost:9331", "Base URL of the service")
		pieceID = flag.String("piece", "twinkle", "Piece id to perform")
		tempo   = flag.Int("tempo", defaultTempo, "Tempo in beats per minute")
		hands   = flag.String("hands", "both", "Hand selection: left, right or both")
		since   = flag.Uint64("since", 0, "Replay retained events after this sequence")
		keep    = flag.Bool("keep", false, "Leave the session in place after the run")
	)
	flag.Parse()

	ctx := context.Background()
	client := &http.Client{Timeout: defaultTimeout}

	sess, err := createSession(ctx, client, *baseURL, *pieceID, *tempo, *hands)
	if err != nil {
		fatal("create session: %v", err)
	}
	fmt.Printf("session %s created (piece=%s tempo=%d hands=%s)\n", sess.ID, *pieceID, *tempo, *hands)

	if err := control(ctx, client, *baseURL, sess.ID, "start"); err != nil {
		fatal("start playback: %v", err)
	}
	fmt.Println("playback started, tailing stream...")

	if err := tailStream(ctx, *baseURL, sess.ID, *since); err != nil {
		fatal("stream: %v", err)
	}

	if !*keep {
		if err := deleteSession(ctx, client, *baseURL, sess.ID); err != nil {
			fatal("delete session: %v", err)
		}
		fmt.Println("session deleted")
	}
}

func createSession(ctx context.Context, client *http.Client, baseURL, pieceID string, tempo int, hands string) (*sessionResponse, error) {
	body, err := json.Marshal(map[string]interface{}{
		"pieceId": pieceID,
		"tempo":   tempo,
		"hands":   hands,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/sessions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	var sess sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func control(ctx context.Context, client *http.Client, baseURL, id, command string) error {
	body, err := json.Marshal(map[string]string{"command": command})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/sessions/"+id+"/control", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return nil
}

func deleteSession(ctx context.Context, client *http.Client, baseURL, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, baseURL+"/sessions/"+id, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return nil
}

// tailStream consumes the session's SSE stream and prints each frame.
// It returns once the server closes the stream after the terminal
// status event.
func tailStream(ctx context.Context, baseURL, id string, since uint64) error {
	url := fmt.Sprintf("%s/sessions/%s/stream", baseURL, id)
	if since > 0 {
		url = fmt.Sprintf("%s?since=%d", url, since)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	// No client timeout here: the stream stays open for the whole
	// performance.
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	var eventType, data, lastID string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "id: "):
			lastID = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "event: "):
			eventType = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "":
			if eventType != "" {
				printFrame(lastID, eventType, data)
			}
			eventType, data = "", ""
		}
	}
	return scanner.Err()
}

func printFrame(id, eventType, data string) {
	switch eventType {
	case "ping":
		fmt.Printf("[%s] ping\n", id)
	case "note_frame":
		var envelope struct {
			Payload struct {
				Action   string  `json:"action"`
				Pitch    int     `json:"pitch"`
				Note     string  `json:"note"`
				Velocity int     `json:"velocity"`
				Hand     string  `json:"hand"`
				Beat     float64 `json:"beat"`
			} `json:"payload"`
		}
		if err := json.Unmarshal([]byte(data), &envelope); err != nil {
			fmt.Printf("[%s] note_frame %s\n", id, data)
			return
		}
		f := envelope.Payload
		fmt.Printf("[%s] %-8s %-4s pitch=%d vel=%d hand=%s beat=%.2f\n", id, f.Action, f.Note, f.Pitch, f.Velocity, f.Hand, f.Beat)
	case "status":
		var envelope struct {
			Payload struct {
				Status  string `json:"status"`
				Message string `json:"message"`
			} `json:"payload"`
		}
		if err := json.Unmarshal([]byte(data), &envelope); err != nil {
			fmt.Printf("[%s] status %s\n", id, data)
			return
		}
		fmt.Printf("[%s] status %s %s\n", id, envelope.Payload.Status, envelope.Payload.Message)
	default:
		fmt.Printf("[%s] %s %s\n", id, eventType, data)
	}
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
