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

type ConversationRepository struct {
	coll *mongo.Collection
}

func NewConversationRepository(coll *mongo.Collection) *ConversationRepository {
	idx := mongo.IndexModel{
		Keys:    bson.D{{Key: "user_ids", Value: 1}},
		Options: options.Index().SetName("user_ids_idx"),
	}
	_, _ = coll.Indexes().CreateOne(context.Background(), idx)
	return &ConversationRepository{coll: coll}
}

// FindOrCreateDirect returns the one-on-one conversation between the two
// users, creating it if absent. The bool reports whether it was created.
func (r *ConversationRepository) FindOrCreateDirect(ctx context.Context, userA, userB string) (*models.Conversation, bool, error) {
	filter := bson.M{"is_group": false, "$or": bson.A{
		bson.M{"user_ids": bson.A{userA, userB}},
		bson.M{"user_ids": bson.A{userB, userA}},
	}}
	var c models.Conversation
	err := r.coll.FindOne(ctx, filter).Decode(&c)
	if err == nil {
		return &c, false, nil
	}
	if err != mongo.ErrNoDocuments {
		return nil, false, err
	}
	c = models.Conversation{
		ID:         uuid.NewString(),
		IsGroup:    false,
		UserIDs:    []string{userA, userB},
		MessageIDs: []string{},
		CreatedAt:  time.Now().UTC(),
	}
	if _, err := r.coll.InsertOne(ctx, c); err != nil {
		return nil, false, err
	}
	return &c, true, nil
}

// CreateGroup requires a name and at least two participants besides the
// creator, keeping the group invariant of three or more members.
func (r *ConversationRepository) CreateGroup(ctx context.Context, name, creatorID string, memberIDs []string) (*models.Conversation, error) {
	if name == "" || len(memberIDs) < 2 {
		return nil, apperr.ErrBadRequest
	}
	userIDs := append([]string{creatorID}, memberIDs...)
	c := models.Conversation{
		ID:         uuid.NewString(),
		Name:       name,
		IsGroup:    true,
		UserIDs:    userIDs,
		MessageIDs: []string{},
		CreatedAt:  time.Now().UTC(),
	}
	if _, err := r.coll.InsertOne(ctx, c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *ConversationRepository) ByID(ctx context.Context, id string) (*models.Conversation, error) {
	var c models.Conversation
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&c); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// ListForUser returns the user's conversations newest-activity-first; this is
// the snapshot query backing the bulk fetch.
func (r *ConversationRepository) ListForUser(ctx context.Context, userID string) ([]models.Conversation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "last_message_at", Value: -1}})
	cur, err := r.coll.Find(ctx, bson.M{"user_ids": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []models.Conversation
	for cur.Next(ctx) {
		var c models.Conversation
		if err := cur.Decode(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, cur.Err()
}

func (r *ConversationRepository) Delete(ctx context.Context, id string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// RecordMessage stamps the conversation with a new message id and bumps its
// recency.
func (r *ConversationRepository) RecordMessage(ctx context.Context, conversationID, messageID string, at time.Time) error {
	_, err := r.coll.UpdateByID(ctx, conversationID, bson.M{
		"$push": bson.M{"message_ids": messageID},
		"$set":  bson.M{"last_message_at": at},
	})
	return err
}

// ClearMessages drops every message id from the conversation.
func (r *ConversationRepository) ClearMessages(ctx context.Context, conversationID string) error {
	_, err := r.coll.UpdateByID(ctx, conversationID, bson.M{
		"$set": bson.M{"message_ids": []string{}},
	})
	return err
}
