package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"chat-presence/internal"
	"chat-presence/repositories"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
)

// viewer dumps the stored message log of a room (or of every room) as a
// table, without stopping the running gateway. With -serve it keeps an
// HTML inspection page open instead.
func main() {
	room := flag.String("room", "", "only show messages of this room")
	serve := flag.Bool("serve", false, "serve the HTML inspection page instead of printing")
	flag.Parse()

	_ = godotenv.Load()
	config, err := internal.LoadToolConfig()
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	// BypassLockGuard allows opening while the gateway holds the lock
	opts := badger.DefaultOptions(config.BadgerFilepath).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if *serve {
		color.Green.Printf("Viewer started at http://localhost:%d/inspect\n", config.DebugPort)
		internal.StartDebugServer(db, config.DebugPort, "/inspect", messageMapper, nil)

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop
		return
	}

	prefix := repositories.KeyPrefix
	if *room != "" {
		prefix = fmt.Sprintf("%s%s:", repositories.KeyPrefix, *room)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Time", "Room", "Sender", "Type", "Content", "Reactions"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	count := 0
	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			err := item.Value(func(v []byte) error {
				msg, err := repositories.DecodeStored(v)
				if err != nil {
					// Log the bad entry and keep scanning
					fmt.Printf("Error decoding key %s: %v\n", string(item.Key()), err)
					return nil
				}
				table.Append([]string{
					msg.CreatedAt.Format("15:04:05"),
					string(msg.Room),
					msg.Sender,
					string(msg.Type),
					msg.Content,
					formatReactions(msg.Reactions),
				})
				count++
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}

	color.Cyan.Printf("%d stored message(s)\n", count)
	table.Render()
}

// messageMapper decodes a stored message for the HTML inspection page,
// falling back to the raw key view when the value cannot be decoded.
func messageMapper(key string, val []byte) internal.InspectRow {
	msg, err := repositories.DecodeStored(val)
	if err != nil {
		return internal.DefaultMapper(key, val)
	}
	return internal.InspectRow{
		Key:       key,
		Room:      string(msg.Room),
		Timestamp: msg.CreatedAt.Format("15:04:05"),
		Sender:    msg.Sender,
		Type:      string(msg.Type),
		Content:   msg.Content,
		Reactions: formatReactions(msg.Reactions),
	}
}

func formatReactions(reactions map[string][]string) string {
	if len(reactions) == 0 {
		return "-"
	}
	emojis := make([]string, 0, len(reactions))
	for emoji := range reactions {
		emojis = append(emojis, emoji)
	}
	sort.Strings(emojis)

	parts := make([]string, 0, len(emojis))
	for _, emoji := range emojis {
		parts = append(parts, fmt.Sprintf("%s x%d", emoji, len(reactions[emoji])))
	}
	return strings.Join(parts, " ")
}
