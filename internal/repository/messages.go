package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/yourorg/messenger/internal/apperr"
	"github.com/yourorg/messenger/internal/models"
)

type MessageRepository struct {
	coll *mongo.Collection
}

func NewMessageRepository(coll *mongo.Collection) *MessageRepository {
	idx := mongo.IndexModel{
		Keys:    bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: 1}},
		Options: options.Index().SetName("conversation_created_idx"),
	}
	_, _ = coll.Indexes().CreateOne(context.Background(), idx)
	return &MessageRepository{coll: coll}
}

func (r *MessageRepository) Insert(ctx context.Context, m *models.Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if m.SeenIDs == nil {
		m.SeenIDs = []string{}
	}
	// sender and seen are hydrated on read, not stored nested
	stored := *m
	stored.Sender = models.User{}
	stored.Seen = nil
	_, err := r.coll.InsertOne(ctx, stored)
	return err
}

func (r *MessageRepository) ByID(ctx context.Context, id string) (*models.Message, error) {
	var m models.Message
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// ListForConversation returns messages in creation order.
func (r *MessageRepository) ListForConversation(ctx context.Context, conversationID string) ([]models.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cur, err := r.coll.Find(ctx, bson.M{"conversation_id": conversationID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []models.Message
	for cur.Next(ctx) {
		var m models.Message
		if err := cur.Decode(&m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, cur.Err()
}

func (r *MessageRepository) Delete(ctx context.Context, id string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// DeleteAllInConversation backs clear-chat.
func (r *MessageRepository) DeleteAllInConversation(ctx context.Context, conversationID string) error {
	_, err := r.coll.DeleteMany(ctx, bson.M{"conversation_id": conversationID})
	return err
}

// MarkSeen adds the user to the seen set of every message in the
// conversation. $addToSet keeps the operation idempotent.
func (r *MessageRepository) MarkSeen(ctx context.Context, conversationID, userID string) error {
	_, err := r.coll.UpdateMany(ctx,
		bson.M{"conversation_id": conversationID},
		bson.M{"$addToSet": bson.M{"seen_ids": userID}},
	)
	return err
}
