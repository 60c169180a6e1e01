// Command chat is a terminal client for the Storepilot chat API. It
// streams assistant text as it arrives and renders action progress lines
// in place.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mossline/storepilot/internal/action"
	"github.com/mossline/storepilot/internal/progress"
	"github.com/mossline/storepilot/internal/tracker"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "Storepilot server URL")
	user := flag.String("user", "", "User id for chat")
	flag.Parse()

	if *user == "" {
		// Each anonymous session gets its own conversation server-side.
		id := "cli-" + uuid.NewString()
		user = &id
	}

	fmt.Println("Storepilot CLI Chat")
	fmt.Printf("Server: %s | User: %s\n", *server, *user)
	fmt.Println("Type 'exit' or 'quit' to leave.")
	fmt.Println("---")

	renderer := progress.NewRenderer(progress.DefaultLabels())

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\n> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			fmt.Println("Bye!")
			return
		}

		sendMessage(*server, *user, input, renderer)
	}
}

// sseEvent mirrors the wire shape of one chat stream event.
type sseEvent struct {
	Type      string                 `json:"type"`
	Text      string                 `json:"text,omitempty"`
	ID        string                 `json:"id,omitempty"`
	Name      string                 `json:"name,omitempty"`
	Success   bool                   `json:"success,omitempty"`
	Message   string                 `json:"message,omitempty"`
	ErrorKind string                 `json:"error_kind,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Reason    string                 `json:"reason,omitempty"`
}

func sendMessage(server, user, content string, renderer *progress.Renderer) {
	body, _ := json.Marshal(map[string]string{
		"caller_id": user,
		"message":   content,
	})

	client := &http.Client{Timeout: 5 * time.Minute}
	resp, err := client.Post(server+"/api/chat", "application/json", bytes.NewReader(body))
	if err != nil {
		printError("Request failed: %v", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		printError("Server error (%d): %s", resp.StatusCode, string(data))
		return
	}

	tr := tracker.New(true)

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err != io.EOF {
				printError("Stream read failed: %v", err)
			}
			break
		}
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		var ev sseEvent
		if jsonErr := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); jsonErr != nil {
			continue
		}

		switch ev.Type {
		case "text-delta":
			fmt.Print(ev.Text)
		case "tool-call":
			state := tr.Apply(tracker.InvocationStarted{ID: ev.ID, Action: ev.Name, At: time.Now()})
			printProgress(renderer, state)
		case "tool-result":
			out := action.Outcome{
				Success:   ev.Success,
				Message:   ev.Message,
				ErrorKind: action.ErrorKind(ev.ErrorKind),
				Data:      ev.Data,
			}
			state := tr.Apply(tracker.InvocationEnded{ID: ev.ID, Outcome: out, At: time.Now()})
			printProgress(renderer, state)
		case "finish":
			fmt.Println()
		case "error":
			state := tr.Apply(tracker.TransportFailed{Err: fmt.Errorf("%s", ev.Message), At: time.Now()})
			printProgress(renderer, state)
			printError("Stream error: %s", ev.Message)
		}
	}
}

func printProgress(renderer *progress.Renderer, state tracker.State) {
	for _, line := range renderer.Render(state) {
		icon := "\033[33m…\033[0m"
		switch {
		case line.Errored:
			icon = "\033[31m✗\033[0m"
		case line.Status == tracker.StatusCompleted:
			icon = "\033[32m✓\033[0m"
		}
		fmt.Printf("\n  %s %s", icon, line.Text)
		if line.Detail != "" {
			fmt.Printf(" — %s", line.Detail)
		}
	}
	fmt.Println()
}

func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "\033[31m"+format+"\033[0m\n", args...)
}
