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

// userDoc adds the credential hash, which never leaves this package as part
// of a models.User.
type userDoc struct {
	models.User    `bson:",inline"`
	HashedPassword []byte `bson:"hashed_password"`
}

type UserRepository struct {
	coll *mongo.Collection
}

func NewUserRepository(coll *mongo.Collection) *UserRepository {
	idx := mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("email_idx"),
	}
	_, _ = coll.Indexes().CreateOne(context.Background(), idx)
	return &UserRepository{coll: coll}
}

func (r *UserRepository) Create(ctx context.Context, u *models.User, hashedPassword []byte) error {
	now := time.Now().UTC()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.CreatedAt = now
	u.UpdatedAt = now
	_, err := r.coll.InsertOne(ctx, userDoc{User: *u, HashedPassword: hashedPassword})
	if mongo.IsDuplicateKeyError(err) {
		return apperr.ErrBadRequest
	}
	return err
}

func (r *UserRepository) ByEmail(ctx context.Context, email string) (*models.User, []byte, error) {
	var doc userDoc
	if err := r.coll.FindOne(ctx, bson.M{"email": email}).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil, apperr.ErrNotFound
		}
		return nil, nil, err
	}
	return &doc.User, doc.HashedPassword, nil
}

func (r *UserRepository) ByID(ctx context.Context, id string) (*models.User, error) {
	var doc userDoc
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return &doc.User, nil
}

// ByIDs returns users keyed by id for snapshot hydration.
func (r *UserRepository) ByIDs(ctx context.Context, ids []string) (map[string]models.User, error) {
	cur, err := r.coll.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := make(map[string]models.User, len(ids))
	for cur.Next(ctx) {
		var doc userDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out[doc.ID] = doc.User
	}
	return out, cur.Err()
}

// List returns everyone except the excluded user, newest first.
func (r *UserRepository) List(ctx context.Context, excludeID string) ([]models.User, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cur, err := r.coll.Find(ctx, bson.M{"_id": bson.M{"$ne": excludeID}}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []models.User
	for cur.Next(ctx) {
		var doc userDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.User)
	}
	return out, cur.Err()
}

func (r *UserRepository) TouchLastSeen(ctx context.Context, id string) error {
	_, err := r.coll.UpdateByID(ctx, id, bson.M{"$set": bson.M{"last_seen": time.Now().UTC()}})
	return err
}
