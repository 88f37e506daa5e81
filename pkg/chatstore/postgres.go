package chatstore

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/lo"

	"github.com/dmitrymomot/marketpulse/pkg/pg"
	"github.com/dmitrymomot/marketpulse/pkg/realtime"
)

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Postgres is the production store. It satisfies realtime.ConversationStore,
// realtime.DeliveryStore and notifications.PreferenceChecker; Notifications
// returns the notifications.Storage view.
type Postgres struct {
	db DB
}

// NewPostgres wraps db, usually a *pgxpool.Pool.
func NewPostgres(db DB) *Postgres {
	return &Postgres{db: db}
}

func queryErr(err error) error {
	return errors.Join(ErrQuery, err)
}

const participantsQuery = `SELECT buyer_id, seller_id FROM conversations WHERE id = $1`

func (p *Postgres) conversation(ctx context.Context, conversationID int64) (Conversation, error) {
	c := Conversation{ID: conversationID}
	err := p.db.QueryRow(ctx, participantsQuery, conversationID).Scan(&c.BuyerID, &c.SellerID)
	switch {
	case pg.IsNotFoundError(err):
		return c, ErrConversationNotFound
	case err != nil:
		return c, queryErr(err)
	}
	return c, nil
}

func (p *Postgres) IsParticipant(ctx context.Context, userID, conversationID int64) (bool, error) {
	c, err := p.conversation(ctx, conversationID)
	if err != nil {
		return false, err
	}
	return c.HasParticipant(userID), nil
}

func (p *Postgres) Counterpart(ctx context.Context, conversationID, userID int64) (int64, error) {
	c, err := p.conversation(ctx, conversationID)
	if err != nil {
		return 0, err
	}
	other := c.Counterpart(userID)
	if other == 0 {
		return 0, ErrNotParticipant
	}
	return other, nil
}

// The insert only happens for an active conversation the sender belongs to.
const persistMessageQuery = `
WITH ins AS (
	INSERT INTO messages (conversation_id, sender_id, content, message_type, offer_amount)
	SELECT c.id, $2::bigint, $3::text, $4::text, $5::numeric
	FROM conversations c
	WHERE c.id = $1 AND c.is_active AND $2::bigint IN (c.buyer_id, c.seller_id)
	RETURNING id, conversation_id, sender_id, content, message_type, offer_amount,
		is_delivered, delivered_at, is_read, read_at, created_at
), touch AS (
	UPDATE conversations SET updated_at = now()
	WHERE id IN (SELECT conversation_id FROM ins)
)
SELECT ins.id, ins.conversation_id, ins.sender_id, COALESCE(u.username, '') AS sender_username,
	ins.content, ins.message_type, ins.offer_amount::float8 AS offer_amount,
	ins.is_delivered, ins.delivered_at, ins.is_read, ins.read_at, ins.created_at
FROM ins LEFT JOIN users u ON u.id = ins.sender_id`

func (p *Postgres) PersistMessage(ctx context.Context, msg realtime.NewMessage) (realtime.Payload, error) {
	rows, err := p.db.Query(ctx, persistMessageQuery,
		msg.ConversationID, msg.SenderID, msg.Content, lo.CoalesceOrEmpty(msg.Type, MessageText), msg.OfferAmount,
	)
	if err != nil {
		return nil, queryErr(err)
	}
	stored, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[Message])
	if err == nil {
		return stored.Payload(), nil
	}
	if !pg.IsNotFoundError(err) {
		return nil, queryErr(err)
	}

	// Nothing inserted: find out why.
	c, err := p.conversation(ctx, msg.ConversationID)
	if err != nil {
		return nil, err
	}
	if !c.HasParticipant(msg.SenderID) {
		return nil, ErrNotParticipant
	}
	return nil, ErrConversationClosed
}

const messageStatusQuery = `
SELECT id, conversation_id, sender_id, is_delivered, is_read, delivered_at, read_at
FROM messages WHERE id = $1`

func (p *Postgres) MessageStatus(ctx context.Context, messageID int64) (realtime.DeliveryStatus, error) {
	var st realtime.DeliveryStatus
	err := p.db.QueryRow(ctx, messageStatusQuery, messageID).Scan(
		&st.MessageID, &st.ConversationID, &st.SenderID,
		&st.IsDelivered, &st.IsRead, &st.DeliveredAt, &st.ReadAt,
	)
	switch {
	case pg.IsNotFoundError(err):
		return st, ErrMessageNotFound
	case err != nil:
		return st, queryErr(err)
	}
	return st, nil
}

const unreadMessagesQuery = `
SELECT id, conversation_id, sender_id, is_delivered, is_read, delivered_at, read_at
FROM messages
WHERE conversation_id = $1 AND sender_id <> $2 AND NOT is_read
ORDER BY id`

func (p *Postgres) UnreadMessages(ctx context.Context, conversationID, readerID int64) ([]realtime.DeliveryStatus, error) {
	rows, err := p.db.Query(ctx, unreadMessagesQuery, conversationID, readerID)
	if err != nil {
		return nil, queryErr(err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (realtime.DeliveryStatus, error) {
		var st realtime.DeliveryStatus
		err := row.Scan(&st.MessageID, &st.ConversationID, &st.SenderID,
			&st.IsDelivered, &st.IsRead, &st.DeliveredAt, &st.ReadAt)
		return st, err
	})
	if err != nil {
		return nil, queryErr(err)
	}
	return out, nil
}

// COALESCE keeps stored timestamps; a read receipt also fills delivered_at.
const saveStatusQuery = `
UPDATE messages SET
	is_delivered = is_delivered OR $2 OR $4,
	delivered_at = COALESCE(delivered_at, $3, $5),
	is_read      = is_read OR $4,
	read_at      = COALESCE(read_at, $5)
WHERE id = $1`

func (p *Postgres) SaveStatuses(ctx context.Context, statuses ...realtime.DeliveryStatus) error {
	if len(statuses) == 0 {
		return nil
	}
	b := &pgx.Batch{}
	for _, st := range statuses {
		b.Queue(saveStatusQuery, st.MessageID, st.IsDelivered, st.DeliveredAt, st.IsRead, st.ReadAt)
	}
	if err := p.db.SendBatch(ctx, b).Close(); err != nil {
		return queryErr(err)
	}
	return nil
}

const inAppQuery = `SELECT enable_in_app FROM notification_preferences WHERE user_id = $1`

// InAppEnabled defaults to true when the user has no preferences row.
func (p *Postgres) InAppEnabled(ctx context.Context, userID int64) (bool, error) {
	var enabled bool
	err := p.db.QueryRow(ctx, inAppQuery, userID).Scan(&enabled)
	switch {
	case pg.IsNotFoundError(err):
		return true, nil
	case err != nil:
		return false, queryErr(err)
	}
	return enabled, nil
}
