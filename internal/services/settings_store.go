package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/AnshRaj112/bugtracker-backend/internal/models"
)

const settingsCollection = "settings"

var (
	ErrSettingNotFound = errors.New("setting not found")
	ErrSettingKeyTaken = errors.New("setting key already exists")
)

// SettingUpdate carries the fields of a partial update. Nil means unchanged.
type SettingUpdate struct {
	Category    *models.SettingCategory
	Value       *interface{}
	Label       *string
	Description *string
	IsPublic    *bool
	IsEditable  *bool
	DataType    *string
}

type SettingsStore interface {
	// List returns settings sorted by category then key.
	List(ctx context.Context, publicOnly bool) ([]models.Setting, error)
	FindByKey(ctx context.Context, key string) (*models.Setting, error)
	Create(ctx context.Context, setting *models.Setting) error
	Update(ctx context.Context, key string, upd SettingUpdate, by primitive.ObjectID) (*models.Setting, error)
	// SetValueIfEditable writes value only when the setting exists and is
	// editable; otherwise it returns ErrSettingNotFound.
	SetValueIfEditable(ctx context.Context, key string, value interface{}, by primitive.ObjectID) (*models.Setting, error)
	Delete(ctx context.Context, key string) error
}

// plainValue turns the driver's default decodings of embedded documents and
// arrays into maps and slices so settings serialize as ordinary JSON.
func plainValue(v interface{}) interface{} {
	switch t := v.(type) {
	case primitive.D:
		m := make(map[string]interface{}, len(t))
		for _, e := range t {
			m[e.Key] = plainValue(e.Value)
		}
		return m
	case primitive.M:
		m := make(map[string]interface{}, len(t))
		for k, e := range t {
			m[k] = plainValue(e)
		}
		return m
	case primitive.A:
		s := make([]interface{}, len(t))
		for i, e := range t {
			s[i] = plainValue(e)
		}
		return s
	default:
		return v
	}
}

type MongoSettingsStore struct {
	coll *mongo.Collection
}

func NewMongoSettingsStore(db *mongo.Database) *MongoSettingsStore {
	return &MongoSettingsStore{coll: db.Collection(settingsCollection)}
}

func (s *MongoSettingsStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "key", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "category", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create settings indexes: %w", err)
	}
	return nil
}

func (s *MongoSettingsStore) List(ctx context.Context, publicOnly bool) ([]models.Setting, error) {
	filter := bson.M{}
	if publicOnly {
		filter["is_public"] = true
	}
	opts := options.Find().SetSort(bson.D{{Key: "category", Value: 1}, {Key: "key", Value: 1}})
	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	defer cursor.Close(ctx)

	settings := []models.Setting{}
	if err := cursor.All(ctx, &settings); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	for i := range settings {
		settings[i].Value = plainValue(settings[i].Value)
	}
	return settings, nil
}

func (s *MongoSettingsStore) decodeOne(res interface{ Decode(interface{}) error }) (*models.Setting, error) {
	var setting models.Setting
	if err := res.Decode(&setting); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrSettingNotFound
		}
		return nil, fmt.Errorf("decode setting: %w", err)
	}
	setting.Value = plainValue(setting.Value)
	return &setting, nil
}

func (s *MongoSettingsStore) FindByKey(ctx context.Context, key string) (*models.Setting, error) {
	return s.decodeOne(s.coll.FindOne(ctx, bson.M{"key": key}))
}

func (s *MongoSettingsStore) Create(ctx context.Context, setting *models.Setting) error {
	if setting.ID.IsZero() {
		setting.ID = primitive.NewObjectID()
	}
	if _, err := s.coll.InsertOne(ctx, setting); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrSettingKeyTaken
		}
		return fmt.Errorf("insert setting: %w", err)
	}
	return nil
}

func (s *MongoSettingsStore) Update(ctx context.Context, key string, upd SettingUpdate, by primitive.ObjectID) (*models.Setting, error) {
	set := bson.M{"updated_at": storeTime(time.Now()), "updated_by": by}
	if upd.Category != nil {
		set["category"] = *upd.Category
	}
	if upd.Value != nil {
		set["value"] = *upd.Value
	}
	if upd.Label != nil {
		set["label"] = *upd.Label
	}
	if upd.Description != nil {
		set["description"] = *upd.Description
	}
	if upd.IsPublic != nil {
		set["is_public"] = *upd.IsPublic
	}
	if upd.IsEditable != nil {
		set["is_editable"] = *upd.IsEditable
	}
	if upd.DataType != nil {
		set["data_type"] = *upd.DataType
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	return s.decodeOne(s.coll.FindOneAndUpdate(ctx, bson.M{"key": key}, bson.M{"$set": set}, opts))
}

func (s *MongoSettingsStore) SetValueIfEditable(ctx context.Context, key string, value interface{}, by primitive.ObjectID) (*models.Setting, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	return s.decodeOne(s.coll.FindOneAndUpdate(ctx,
		bson.M{"key": key, "is_editable": true},
		bson.M{"$set": bson.M{"value": value, "updated_by": by, "updated_at": storeTime(time.Now())}},
		opts,
	))
}

func (s *MongoSettingsStore) Delete(ctx context.Context, key string) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"key": key})
	if err != nil {
		return fmt.Errorf("delete setting: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrSettingNotFound
	}
	return nil
}

// MemorySettingsStore keeps settings in process.
type MemorySettingsStore struct {
	mu       sync.Mutex
	settings map[string]*models.Setting
}

func NewMemorySettingsStore() *MemorySettingsStore {
	return &MemorySettingsStore{settings: make(map[string]*models.Setting)}
}

func cloneSetting(s *models.Setting) *models.Setting {
	c := *s
	return &c
}

func (m *MemorySettingsStore) List(_ context.Context, publicOnly bool) ([]models.Setting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []models.Setting{}
	for _, s := range m.settings {
		if publicOnly && !s.IsPublic {
			continue
		}
		out = append(out, *cloneSetting(s))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Key < out[j].Key
	})
	return out, nil
}

func (m *MemorySettingsStore) FindByKey(_ context.Context, key string) (*models.Setting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.settings[key]
	if !ok {
		return nil, ErrSettingNotFound
	}
	return cloneSetting(s), nil
}

func (m *MemorySettingsStore) Create(_ context.Context, setting *models.Setting) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.settings[setting.Key]; ok {
		return ErrSettingKeyTaken
	}
	if setting.ID.IsZero() {
		setting.ID = primitive.NewObjectID()
	}
	m.settings[setting.Key] = cloneSetting(setting)
	return nil
}

func (m *MemorySettingsStore) Update(_ context.Context, key string, upd SettingUpdate, by primitive.ObjectID) (*models.Setting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.settings[key]
	if !ok {
		return nil, ErrSettingNotFound
	}
	if upd.Category != nil {
		s.Category = *upd.Category
	}
	if upd.Value != nil {
		s.Value = *upd.Value
	}
	if upd.Label != nil {
		s.Label = *upd.Label
	}
	if upd.Description != nil {
		s.Description = *upd.Description
	}
	if upd.IsPublic != nil {
		s.IsPublic = *upd.IsPublic
	}
	if upd.IsEditable != nil {
		s.IsEditable = *upd.IsEditable
	}
	if upd.DataType != nil {
		s.DataType = *upd.DataType
	}
	s.UpdatedBy = &by
	s.UpdatedAt = storeTime(time.Now())
	return cloneSetting(s), nil
}

func (m *MemorySettingsStore) SetValueIfEditable(_ context.Context, key string, value interface{}, by primitive.ObjectID) (*models.Setting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.settings[key]
	if !ok || !s.IsEditable {
		return nil, ErrSettingNotFound
	}
	s.Value = value
	s.UpdatedBy = &by
	s.UpdatedAt = storeTime(time.Now())
	return cloneSetting(s), nil
}

func (m *MemorySettingsStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.settings[key]; !ok {
		return ErrSettingNotFound
	}
	delete(m.settings, key)
	return nil
}
