package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"

	"github.com/weiawesome/wes-io-live/roomchat/internal/config"
	"github.com/weiawesome/wes-io-live/roomchat/internal/domain"
	"github.com/weiawesome/wes-io-live/roomchat/pkg/idgen"
	"github.com/weiawesome/wes-io-live/roomchat/pkg/log"
)

const cassandraSchema = `CREATE TABLE IF NOT EXISTS messages_by_room (
	room_id text,
	seq timeuuid,
	message_id text,
	sender_id text,
	body text,
	attachment_url text,
	attachment_public_id text,
	attachment_type text,
	created_at timestamp,
	PRIMARY KEY (room_id, seq)
) WITH CLUSTERING ORDER BY (seq DESC)`

// CassandraMessageRepository partitions messages by room, newest first. The
// clustering key is a timeuuid of CreatedAt; message ids come from ids.
type CassandraMessageRepository struct {
	session *gocql.Session
	ids     idgen.Generator
}

func NewCassandraMessageRepository(cfg config.CassandraConfig, ids idgen.Generator) (*CassandraMessageRepository, error) {
	if ids == nil {
		ids = idgen.NewULIDGenerator()
	}

	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Keyspace = cfg.Keyspace
	cluster.Timeout = cfg.Timeout
	cluster.ConnectTimeout = cfg.Timeout

	switch cfg.Consistency {
	case "ONE":
		cluster.Consistency = gocql.One
	case "QUORUM":
		cluster.Consistency = gocql.Quorum
	case "LOCAL_ONE":
		cluster.Consistency = gocql.LocalOne
	default:
		cluster.Consistency = gocql.LocalQuorum
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create cassandra session: %w", err)
	}

	if err := session.Query(cassandraSchema).Exec(); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to create messages table: %w", err)
	}

	return &CassandraMessageRepository{session: session, ids: ids}, nil
}

func (r *CassandraMessageRepository) Append(ctx context.Context, msg *domain.ChatMessage) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	id, err := r.ids.Generate()
	if err != nil {
		return fmt.Errorf("failed to generate message id: %w", err)
	}
	seq := gocql.UUIDFromTime(msg.CreatedAt)

	var url, publicID, kind string
	if msg.Attachment != nil {
		url, publicID, kind = msg.Attachment.URL, msg.Attachment.PublicID, string(msg.Attachment.Type)
	}

	err = r.session.Query(
		`INSERT INTO messages_by_room (room_id, seq, message_id, sender_id, body, attachment_url, attachment_public_id, attachment_type, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.RoomID, seq, id, msg.Sender, msg.Message, url, publicID, kind, msg.CreatedAt,
	).WithContext(ctx).Exec()
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldRoomID, msg.RoomID).Msg("failed to insert chat message")
		return fmt.Errorf("failed to insert chat message: %w", err)
	}

	msg.ID = id
	return nil
}

func (r *CassandraMessageRepository) Recent(ctx context.Context, roomID string, limit int) ([]domain.ChatMessage, error) {
	iter := r.session.Query(
		`SELECT message_id, sender_id, body, attachment_url, attachment_public_id, attachment_type, created_at
		 FROM messages_by_room
		 WHERE room_id = ?
		 LIMIT ?`,
		roomID, limit,
	).WithContext(ctx).Iter()

	var (
		newestFirst []domain.ChatMessage
		id          string
		sender      string
		body        string
		url         string
		publicID    string
		kind        string
		createdAt   time.Time
	)
	for iter.Scan(&id, &sender, &body, &url, &publicID, &kind, &createdAt) {
		msg := domain.ChatMessage{
			ID:        id,
			RoomID:    roomID,
			Sender:    sender,
			Message:   body,
			CreatedAt: createdAt.UTC(),
		}
		if url != "" {
			msg.Attachment = &domain.Attachment{URL: url, PublicID: publicID, Type: domain.AttachmentKind(kind)}
		}
		newestFirst = append(newestFirst, msg)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}

	msgs := make([]domain.ChatMessage, len(newestFirst))
	for i, m := range newestFirst {
		msgs[len(newestFirst)-1-i] = m
	}
	return msgs, nil
}

func (r *CassandraMessageRepository) Close() error {
	r.session.Close()
	return nil
}
