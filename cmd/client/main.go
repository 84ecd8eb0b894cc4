package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"chat-presence/client"
	"chat-presence/domain"
	"chat-presence/domain/event"

	"github.com/Netflix/go-env"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	GatewayURL string `env:"GATEWAY_URL,default=ws://localhost:8080/ws"`
	Token      string `env:"CHAT_TOKEN,required=true"`
	Room       string `env:"CHAT_ROOM,default=general"`
	LogLevel   string `env:"LOG_LEVEL,required=true"`
}

func main() {
	// The main function manages the OS exit code based on run()'s return.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	// 1. Environment
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("environment incomplete: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Gateway connection
	chat := client.NewClient(client.DefaultConfig(config.GatewayURL, config.Token), log)
	chat.OnMessage(func(msg domain.Message) {
		switch msg.Type {
		case domain.MessageSystem:
			color.Gray.Printf("-- %s\n", msg.Content)
		case domain.MessagePrivate:
			color.Magenta.Printf("[private] %s: %s\n", msg.Sender, msg.Content)
		default:
			color.Cyan.Printf("%s: ", msg.Sender)
			fmt.Println(msg.Content)
		}
	})
	chat.OnPresence(func(e event.PresenceUpdate) {
		names := make([]string, len(e.Members))
		for i, member := range e.Members {
			names[i] = member.Name
		}
		color.Gray.Printf("-- in %s: %s\n", e.Room, strings.Join(names, ", "))
	})
	chat.OnTyping(func(e event.TypingUpdate) {
		if len(e.Typing) > 0 {
			color.Gray.Printf("-- typing: %s\n", strings.Join(e.Typing, ", "))
		}
	})
	chat.OnError(func(err error) {
		color.Red.Printf("!! %v\n", err)
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := chat.Connect(ctx); err != nil {
		return exitRuntime, err
	}
	defer chat.Close()

	if err := chat.Join(config.Room); err != nil {
		return exitRuntime, err
	}
	color.Green.Printf("Joined %s. Type to chat, /to <user-id> <text> for a private word, /quit to leave.\n", config.Room)

	// 3. Stdin loop; the reader goroutine ends with the process.
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return exitOK, nil
		case <-chat.Done():
			return exitRuntime, fmt.Errorf("gateway connection closed")
		case line, ok := <-lines:
			if !ok {
				return exitOK, nil
			}
			if err := handleLine(chat, config.Room, line); err != nil {
				if err == errQuit {
					return exitOK, nil
				}
				color.Red.Printf("!! %v\n", err)
			}
		}
	}
}

var errQuit = fmt.Errorf("quit")

func handleLine(chat *client.Client, room, line string) error {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return nil
	case line == "/quit":
		return errQuit
	case strings.HasPrefix(line, "/to "):
		rest := strings.TrimSpace(strings.TrimPrefix(line, "/to "))
		recipient, content, ok := strings.Cut(rest, " ")
		if !ok || strings.TrimSpace(content) == "" {
			return fmt.Errorf("usage: /to <user-id> <text>")
		}
		return chat.SendPrivate(recipient, strings.TrimSpace(content))
	default:
		return chat.Send(room, line)
	}
}
