package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/AnshRaj112/bugtracker-backend/internal/models"
)

const usersCollection = "users"

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrEmailTaken           = errors.New("email already registered")
	ErrRefreshTokenMismatch = errors.New("refresh token does not match")
)

// ProfileUpdate holds the self-service profile fields. Nil means unchanged.
type ProfileUpdate struct {
	Name       *string
	Department *string
	Avatar     *string
}

// AdminUserUpdate holds the fields an admin may change on any account.
type AdminUserUpdate struct {
	Name       *string
	Email      *string
	Role       *models.Role
	Department *string
	IsActive   *bool
}

type UserQuery struct {
	Page     int
	Limit    int
	Role     models.Role
	IsActive *bool
	Search   string
	SortBy   string
	Order    string
}

// sortFields maps accepted sortBy values to document fields.
var sortFields = map[string]string{
	"createdAt": "created_at",
	"updatedAt": "updated_at",
	"name":      "name",
	"email":     "email",
	"role":      "role",
	"lastLogin": "last_login",
}

func (q UserQuery) normalized() UserQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = 10
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
	if _, ok := sortFields[q.SortBy]; !ok {
		q.SortBy = "createdAt"
	}
	if q.Order != "asc" {
		q.Order = "desc"
	}
	return q
}

// UserStore persists user records. Every mutation is a single atomic update
// on one document.
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)

	RecordLoginFailure(ctx context.Context, id string, now time.Time, policy LockoutPolicy) (*models.User, error)
	RecordLoginSuccess(ctx context.Context, id string, now time.Time, refreshToken string) error
	SetRefreshToken(ctx context.Context, id, token string) error
	ClearRefreshToken(ctx context.Context, id string) error
	// RotateRefreshToken replaces presented with next only if presented is
	// still the stored token; otherwise ErrRefreshTokenMismatch.
	RotateRefreshToken(ctx context.Context, id, presented, next string) error
	UpdatePassword(ctx context.Context, id, hash string, changedAt time.Time) error

	UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) (*models.User, error)
	List(ctx context.Context, q UserQuery) ([]models.User, int64, error)
	UpdateByAdmin(ctx context.Context, id string, upd AdminUserUpdate) (*models.User, error)
	SetActive(ctx context.Context, id string, active bool) (*models.User, error)
}

// MongoUserStore is the UserStore backed by the users collection.
type MongoUserStore struct {
	coll *mongo.Collection
	now  func() time.Time
}

func NewMongoUserStore(db *mongo.Database) *MongoUserStore {
	return &MongoUserStore{coll: db.Collection(usersCollection), now: time.Now}
}

// EnsureIndexes creates the unique email index and the role/active index used by listings.
func (s *MongoUserStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "role", Value: 1}, {Key: "is_active", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func objectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, ErrUserNotFound
	}
	return oid, nil
}

func (s *MongoUserStore) Create(ctx context.Context, user *models.User) error {
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	if _, err := s.coll.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *MongoUserStore) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	var user models.User
	if err := s.coll.FindOne(ctx, filter).Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &user, nil
}

func (s *MongoUserStore) FindByID(ctx context.Context, id string) (*models.User, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	return s.findOne(ctx, bson.M{"_id": oid})
}

func (s *MongoUserStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findOne(ctx, bson.M{"email": normalizeEmail(email)})
}

// findOneAndUpdate returns the document after update.
func (s *MongoUserStore) findOneAndUpdate(ctx context.Context, filter bson.M, update interface{}) (*models.User, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var user models.User
	if err := s.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	return &user, nil
}

func (s *MongoUserStore) updateOne(ctx context.Context, filter bson.M, update interface{}) error {
	res, err := s.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *MongoUserStore) RecordLoginFailure(ctx context.Context, id string, now time.Time, policy LockoutPolicy) (*models.User, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	return s.findOneAndUpdate(ctx, bson.M{"_id": oid}, loginFailurePipeline(storeTime(now), policy))
}

func (s *MongoUserStore) RecordLoginSuccess(ctx context.Context, id string, now time.Time, refreshToken string) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	now = storeTime(now)
	return s.updateOne(ctx, bson.M{"_id": oid}, bson.M{
		"$set": bson.M{
			"login_attempts": 0,
			"lock_until":     nil,
			"last_login":     now,
			"refresh_token":  refreshToken,
			"updated_at":     now,
		},
	})
}

func (s *MongoUserStore) SetRefreshToken(ctx context.Context, id, token string) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	return s.updateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": bson.M{"refresh_token": token}})
}

func (s *MongoUserStore) ClearRefreshToken(ctx context.Context, id string) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	return s.updateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": bson.M{"refresh_token": nil}})
}

func (s *MongoUserStore) RotateRefreshToken(ctx context.Context, id, presented, next string) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	if presented == "" {
		return ErrRefreshTokenMismatch
	}
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": oid, "refresh_token": presented},
		bson.M{"$set": bson.M{"refresh_token": next}},
	)
	if err != nil {
		return fmt.Errorf("rotate refresh token: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrRefreshTokenMismatch
	}
	return nil
}

func (s *MongoUserStore) UpdatePassword(ctx context.Context, id, hash string, changedAt time.Time) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	changedAt = storeTime(changedAt)
	return s.updateOne(ctx, bson.M{"_id": oid}, bson.M{
		"$set": bson.M{
			"password":            hash,
			"password_changed_at": changedAt,
			"refresh_token":       nil,
			"updated_at":          changedAt,
		},
	})
}

func (s *MongoUserStore) UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) (*models.User, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	set := bson.M{"updated_at": storeTime(s.now())}
	if upd.Name != nil {
		set["name"] = *upd.Name
	}
	if upd.Department != nil {
		set["department"] = *upd.Department
	}
	if upd.Avatar != nil {
		set["avatar"] = *upd.Avatar
	}
	return s.findOneAndUpdate(ctx, bson.M{"_id": oid}, bson.M{"$set": set})
}

func userFilter(q UserQuery) bson.M {
	filter := bson.M{}
	if q.Role != "" {
		filter["role"] = q.Role
	}
	if q.IsActive != nil {
		filter["is_active"] = *q.IsActive
	}
	if q.Search != "" {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(q.Search), Options: "i"}
		filter["$or"] = bson.A{
			bson.M{"name": pattern},
			bson.M{"email": pattern},
			bson.M{"department": pattern},
		}
	}
	return filter
}

func (s *MongoUserStore) List(ctx context.Context, q UserQuery) ([]models.User, int64, error) {
	q = q.normalized()
	filter := userFilter(q)

	order := -1
	if q.Order == "asc" {
		order = 1
	}
	opts := options.Find().
		SetSort(bson.D{{Key: sortFields[q.SortBy], Value: order}, {Key: "_id", Value: order}}).
		SetSkip(int64((q.Page - 1) * q.Limit)).
		SetLimit(int64(q.Limit))

	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer cursor.Close(ctx)

	users := []models.User{}
	if err := cursor.All(ctx, &users); err != nil {
		return nil, 0, fmt.Errorf("decode users: %w", err)
	}

	total, err := s.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}
	return users, total, nil
}

func (s *MongoUserStore) UpdateByAdmin(ctx context.Context, id string, upd AdminUserUpdate) (*models.User, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	set := bson.M{"updated_at": storeTime(s.now())}
	if upd.Name != nil {
		set["name"] = *upd.Name
	}
	if upd.Email != nil {
		set["email"] = normalizeEmail(*upd.Email)
	}
	if upd.Role != nil {
		set["role"] = *upd.Role
	}
	if upd.Department != nil {
		set["department"] = *upd.Department
	}
	if upd.IsActive != nil {
		set["is_active"] = *upd.IsActive
		if !*upd.IsActive {
			set["refresh_token"] = nil
		}
	}
	return s.findOneAndUpdate(ctx, bson.M{"_id": oid}, bson.M{"$set": set})
}

// SetActive toggles account status. Deactivation also revokes the refresh token.
func (s *MongoUserStore) SetActive(ctx context.Context, id string, active bool) (*models.User, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	set := bson.M{"is_active": active, "updated_at": storeTime(s.now())}
	if !active {
		set["refresh_token"] = nil
	}
	return s.findOneAndUpdate(ctx, bson.M{"_id": oid}, bson.M{"$set": set})
}
