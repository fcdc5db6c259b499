// Command inspect dumps the relay's badger store as tables: live
// sessions with their joined rooms, persisted chatrooms and
// conversations. Read-only, safe to run against a live data directory
// copy.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"

	"chat-relay/domain"
)

func main() {
	dbPath := flag.String("db", "/tmp/chat-relay/badger", "Path to badger DB")
	prefix := flag.String("prefix", "sess:", "Prefix to scan (sess:, room: or chat:)")
	flag.Parse()

	db, err := badger.Open(badger.DefaultOptions(*dbPath).
		WithReadOnly(true).
		WithLoggingLevel(badger.ERROR))
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	switch {
	case strings.HasPrefix(*prefix, "sess"):
		table.SetHeader([]string{"Key", "Session", "User", "Rooms"})
	case strings.HasPrefix(*prefix, "room"):
		table.SetHeader([]string{"Key", "Name", "Activated", "Members", "Protected"})
	case strings.HasPrefix(*prefix, "chat"):
		table.SetHeader([]string{"Key", "Participants", "Deleted By"})
	default:
		log.Fatalf("Unknown prefix %q, expected sess:, room: or chat:", *prefix)
	}

	count := 0
	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			key := string(item.Key())

			// The user index holds raw session IDs, not JSON documents
			if strings.HasPrefix(key, "sessuser:") {
				continue
			}

			err := item.Value(func(v []byte) error {
				row, err := toRow(key, v)
				if err != nil {
					// Log and keep scanning instead of aborting the dump
					fmt.Printf("Error unmarshaling key %s: %v\n", key, err)
					return nil
				}
				table.Append(row)
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
		log.Fatal("Error while scanning: ", err)
	}

	table.Render()
	color.Green.Printf("\n%d entries under prefix %q\n", count, *prefix)
}

func toRow(key string, value []byte) ([]string, error) {
	switch {
	case strings.HasPrefix(key, "sess:"):
		var session domain.Session
		if err := sonic.Unmarshal(value, &session); err != nil {
			return nil, err
		}
		return []string{key, session.ID, session.UserID,
			strings.Join(session.RoomIDs(), ", ")}, nil

	case strings.HasPrefix(key, "room:"):
		var room domain.Room
		if err := sonic.Unmarshal(value, &room); err != nil {
			return nil, err
		}
		return []string{key, room.Name,
			fmt.Sprintf("%t", room.Activated),
			strings.Join(room.Members, ", "),
			fmt.Sprintf("%t", room.PasswordHash != "")}, nil

	case strings.HasPrefix(key, "chat:"):
		var conversation domain.Conversation
		if err := sonic.Unmarshal(value, &conversation); err != nil {
			return nil, err
		}
		return []string{key,
			strings.Join(conversation.Participants, ", "),
			strings.Join(conversation.Deleted, ", ")}, nil
	}
	return nil, fmt.Errorf("no decoder for key %s", key)
}
