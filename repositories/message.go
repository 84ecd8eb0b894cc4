package repositories

import (
	"bytes"
	"chat-presence/domain"
	"chat-presence/errors"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

const keyPrefix = "msg:"

// KeyPrefix is the namespace of message keys in the store, exported for
// inspection tools that scan the database directly.
const KeyPrefix = keyPrefix

// MessageLog is the durable, time-ordered room log backed by BadgerDB.
type MessageLog struct {
	db        *badger.DB
	log       *slog.Logger
	pageLimit *int
}

func NewMessageLog(db *badger.DB, log *slog.Logger, pageLimit *int) MessageLog {
	return MessageLog{db: db, log: log, pageLimit: pageLimit}
}

type diskMessage struct {
	ID        uuid.UUID           `json:"id"`
	Room      string              `json:"room"`
	SenderID  string              `json:"sender_id"`
	Sender    string              `json:"sender"`
	Type      string              `json:"type"`
	Content   string              `json:"content"`
	FileURL   string              `json:"file_url,omitempty"`
	FileType  string              `json:"file_type,omitempty"`
	Reactions map[string][]string `json:"reactions,omitempty"`
	At        time.Time           `json:"at"`
}

// Append persists a message. The key is formatted as
// "msg:{room}:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting using 19-digit zero padding
//     (lexicographical order).
//  2. Prevent data loss by using the message UUID as a collision
//     disconnector if two messages arrive at the same nanosecond.
func (m MessageLog) Append(msg domain.Message) error {
	key := messageKey(msg.Room, msg.CreatedAt, msg.ID)
	raw, err := json.Marshal(lo.ToPtr(fromMessage(msg)))
	if err != nil {
		return err
	}
	return m.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), raw)
	})
}

// Recent retrieves the latest page of a room using a reverse prefix scan,
// returned oldest-first (newest-last). The returned cursor addresses the
// next older page; nil input starts from the newest message.
func (m MessageLog) Recent(room domain.RoomID, cursor *string) ([]domain.Message, *string, error) {
	var rawMessages [][]byte
	var lastKey string
	err := m.db.View(func(txn *badger.Txn) error {
		prefixStr := fmt.Sprintf("%s%s:", keyPrefix, room)
		prefix := []byte(prefixStr)
		prefixLen := len(prefixStr)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Seek past the newest possible position, then walk backwards.
			seekKey = append(prefix, []byte("9999999999999999999")...)
		default:
			seekKey = append(prefix, []byte(*cursor)...)
		}

		it.Seek(seekKey)

		if cursor != nil && it.ValidForPrefix(prefix) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if m.pageLimit != nil && len(rawMessages) == *m.pageLimit {
				m.log.Debug(fmt.Sprintf("Maximum of %d messages reached", *m.pageLimit))
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[prefixLen:])
			err := item.Value(func(value []byte) error {
				rawMessages = append(rawMessages, bytes.Clone(value))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	// Reverse scan yields newest-first; clients expect newest-last.
	messages := make([]domain.Message, 0, len(rawMessages))
	for i := len(rawMessages) - 1; i >= 0; i-- {
		msg, err := decodeMessage(rawMessages[i])
		if err != nil {
			return nil, nil, err
		}
		messages = append(messages, msg)
	}
	// A page without rows marks the end of pagination.
	if len(messages) == 0 {
		return messages, nil, nil
	}
	return messages, &lastKey, nil
}

// UpdateReactions locates a message by id within a room, applies mutate to
// it, and rewrites it in place when mutate reports a change. The reaction
// tally is the only mutable part of a stored message.
func (m MessageLog) UpdateReactions(room domain.RoomID, messageID string,
	mutate func(*domain.Message) bool) (domain.Message, bool, error) {
	var updated domain.Message
	var changed bool
	err := m.db.Update(func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf("%s%s:", keyPrefix, room))
		suffix := []byte(":" + messageID)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			if !bytes.HasSuffix(item.Key(), suffix) {
				continue
			}
			var raw []byte
			if err := item.Value(func(value []byte) error {
				raw = bytes.Clone(value)
				return nil
			}); err != nil {
				return err
			}
			msg, err := decodeMessage(raw)
			if err != nil {
				return err
			}
			changed = mutate(&msg)
			updated = msg
			if !changed {
				return nil
			}
			rewritten, err := json.Marshal(lo.ToPtr(fromMessage(msg)))
			if err != nil {
				return err
			}
			return txn.Set(bytes.Clone(item.Key()), rewritten)
		}
		return errors.ErrMessageNotFound
	})
	if err != nil {
		return domain.Message{}, false, err
	}
	return updated, changed, nil
}

// PurgeOlderThan deletes every message across all rooms whose embedded
// timestamp is older than the given age, and returns how many went away.
func (m MessageLog) PurgeOlderThan(age time.Duration) (int, error) {
	cutoff := time.Now().Add(-age).UnixNano()
	var stale [][]byte

	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().Key()
			at, ok := timestampOf(string(key))
			if !ok {
				m.log.Warn("skipping unparsable log key", "key", string(key))
				continue
			}
			if at < cutoff {
				stale = append(stale, bytes.Clone(key))
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	batch := m.db.NewWriteBatch()
	defer batch.Cancel()
	for _, key := range stale {
		if err := batch.Delete(key); err != nil {
			return 0, err
		}
	}
	if err := batch.Flush(); err != nil {
		return 0, err
	}
	return len(stale), nil
}

func messageKey(room domain.RoomID, at time.Time, id uuid.UUID) string {
	return fmt.Sprintf("%s%s:%019d:%s", keyPrefix, room, at.UnixNano(), id)
}

// timestampOf extracts the padded nanosecond segment of a log key. The room
// segment never contains ':' (the gateway validates room names), so the
// timestamp is always the second-to-last segment.
func timestampOf(key string) (int64, bool) {
	parts := strings.Split(key, ":")
	if len(parts) < 4 {
		return 0, false
	}
	at, err := strconv.ParseInt(parts[len(parts)-2], 10, 64)
	if err != nil {
		return 0, false
	}
	return at, true
}

func fromMessage(msg domain.Message) diskMessage {
	return diskMessage{
		ID:        msg.ID,
		Room:      string(msg.Room),
		SenderID:  msg.SenderID,
		Sender:    msg.Sender,
		Type:      string(msg.Type),
		Content:   msg.Content,
		FileURL:   msg.FileURL,
		FileType:  msg.FileType,
		Reactions: msg.Reactions,
		At:        msg.CreatedAt,
	}
}

// DecodeStored decodes a raw stored value into a message, used by
// inspection tools that scan the database directly.
func DecodeStored(raw []byte) (domain.Message, error) {
	return decodeMessage(raw)
}

func decodeMessage(raw []byte) (domain.Message, error) {
	var dm diskMessage
	if err := json.Unmarshal(raw, &dm); err != nil {
		return domain.Message{}, err
	}
	return domain.Message{
		ID:        dm.ID,
		Room:      domain.RoomID(dm.Room),
		SenderID:  dm.SenderID,
		Sender:    dm.Sender,
		Type:      domain.MessageType(dm.Type),
		Content:   dm.Content,
		FileURL:   dm.FileURL,
		FileType:  dm.FileType,
		Reactions: dm.Reactions,
		CreatedAt: dm.At.UTC(),
	}, nil
}
