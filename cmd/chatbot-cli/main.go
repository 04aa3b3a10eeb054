package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/shubhamagrawalwork/langgraph-tavily-chatbot/client"
)

func printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  /new            start a new conversation")
	fmt.Println("  /switch <id>    switch to an existing thread and show its history")
	fmt.Println("  /threads        list threads known to the service")
	fmt.Println("  /history        show the committed history of the active thread")
	fmt.Println("  /quit           exit")
}

func showHistory(ctx context.Context, manager *client.ThreadManager) {
	history, err := manager.History(ctx)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	if len(history) == 0 {
		fmt.Println("(empty thread)")
		return
	}
	for _, msg := range history {
		fmt.Printf("%s: %s\n", msg.Role, msg.Content)
	}
}

func main() {
	// A missing .env is fine for the CLI; CHATBOT_URL has a default.
	_ = godotenv.Load()

	baseURL := os.Getenv("CHATBOT_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8000"
	}

	api := client.NewAPI(baseURL)
	manager := client.NewThreadManager(api)
	renderer := &client.WriterRenderer{Out: os.Stdout}
	ctx := context.Background()

	if err := api.WaitReady(ctx, 5*time.Second); err != nil {
		fmt.Printf("warning: %v\n", err)
	}

	fmt.Printf("Connected to %s, thread %s\n", baseURL, manager.ThreadID)
	printHelp()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case line == "/quit" || line == "/exit":
			return

		case line == "/help":
			printHelp()

		case line == "/new":
			fmt.Printf("New thread %s\n", manager.NewConversation())

		case strings.HasPrefix(line, "/switch"):
			threadID := strings.TrimSpace(strings.TrimPrefix(line, "/switch"))
			if err := manager.SwitchConversation(ctx, threadID); err != nil {
				fmt.Printf("error: %v (still on %s)\n", err, manager.ThreadID)
				continue
			}
			fmt.Printf("Switched to thread %s\n", threadID)
			for _, msg := range manager.MessageHistory {
				fmt.Printf("%s: %s\n", msg.Role, msg.Content)
			}

		case line == "/threads":
			if err := manager.SyncThreads(ctx); err != nil {
				fmt.Printf("error: %v\n", err)
				continue
			}
			threads := manager.KnownThreads()
			if len(threads) == 0 {
				fmt.Println("(no threads)")
				continue
			}
			for _, id := range threads {
				marker := " "
				if id == manager.ThreadID {
					marker = "*"
				}
				fmt.Printf("%s %s\n", marker, id)
			}

		case line == "/history":
			showHistory(ctx, manager)

		case strings.HasPrefix(line, "/"):
			fmt.Printf("unknown command: %s\n", line)
			printHelp()

		default:
			if _, err := manager.Send(ctx, line, renderer); err != nil {
				fmt.Printf("\nturn failed: %v\n", err)
			}
		}
	}
}
