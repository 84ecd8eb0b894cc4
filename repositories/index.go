package repositories

import (
	"chat-presence/domain"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/google/uuid"
)

// MessageIndex is the full-text index over persisted room messages, backed
// by Bluge. Indexing is best-effort: a failed index write never blocks
// delivery or persistence of the message itself.
type MessageIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewMessageIndex(writer *bluge.Writer, log *slog.Logger) *MessageIndex {
	return &MessageIndex{writer: writer, log: log}
}

// Index adds or replaces one message document. The timestamp is stored as
// RFC3339Nano so hits can be rebuilt without a lossy decode.
func (i *MessageIndex) Index(msg domain.Message) error {
	doc := bluge.NewDocument(msg.ID.String())
	doc.AddField(bluge.NewKeywordField("room", string(msg.Room)).StoreValue())
	doc.AddField(bluge.NewTextField("content", msg.Content).StoreValue())
	doc.AddField(bluge.NewKeywordField("sender", msg.Sender).StoreValue())
	doc.AddField(bluge.NewKeywordField("sender_id", msg.SenderID).StoreValue())
	doc.AddField(bluge.NewKeywordField("at", msg.CreatedAt.Format(time.RFC3339Nano)).StoreValue())
	return i.writer.Update(doc.ID(), doc)
}

// Search runs a match query over one room's message bodies and rebuilds the
// hits from stored fields, best match first.
func (i *MessageIndex) Search(ctx context.Context, room domain.RoomID,
	terms string, limit int) ([]domain.Message, error) {
	reader, err := i.writer.Reader()
	if err != nil {
		return nil, fmt.Errorf("index reader: %w", err)
	}
	defer func() {
		if err := reader.Close(); err != nil {
			i.log.Warn("index reader not closed", "error", err)
		}
	}()

	query := bluge.NewBooleanQuery().
		AddMust(bluge.NewMatchQuery(terms).SetField("content")).
		AddMust(bluge.NewTermQuery(string(room)).SetField("room"))

	iter, err := reader.Search(ctx, bluge.NewTopNSearch(limit, query))
	if err != nil {
		return nil, fmt.Errorf("index search: %w", err)
	}

	var hits []domain.Message
	for {
		match, err := iter.Next()
		if err != nil {
			return nil, err
		}
		if match == nil {
			break
		}

		var hit domain.Message
		hit.Room = room
		hit.Type = domain.MessageText
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case "_id":
				if id, parseErr := uuid.Parse(string(value)); parseErr == nil {
					hit.ID = id
				}
			case "content":
				hit.Content = string(value)
			case "sender":
				hit.Sender = string(value)
			case "sender_id":
				hit.SenderID = string(value)
			case "at":
				if at, parseErr := time.Parse(time.RFC3339Nano, string(value)); parseErr == nil {
					hit.CreatedAt = at
				}
			}
			return true
		})
		if err != nil {
			return nil, err
		}
		hits = append(hits, hit)
	}
	return hits, nil
}
