package repository

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/solusinc/manylead-cloud-sub003/internal/apperr"
	"github.com/solusinc/manylead-cloud-sub003/internal/models"
)

type MongoMessageStore struct {
	t *TenantManager
}

func NewMongoMessageStore(t *TenantManager) *MongoMessageStore { return &MongoMessageStore{t: t} }

func (s *MongoMessageStore) coll(orgID string) *mongo.Collection {
	return s.t.DB(orgID).Collection(collMessages)
}

func (s *MongoMessageStore) Insert(ctx context.Context, orgID string, m *models.Message) error {
	_, err := s.coll(orgID).InsertOne(ctx, m)
	return err
}

func msgKeyFilter(key models.MessageKey) bson.M {
	return bson.M{"_id": key.ID, "timestamp": key.Timestamp}
}

func (s *MongoMessageStore) FindByKey(ctx context.Context, orgID string, key models.MessageKey) (*models.Message, error) {
	return s.findOne(ctx, orgID, msgKeyFilter(key), nil, key.ID)
}

func (s *MongoMessageStore) FindByID(ctx context.Context, orgID, chatID, id string) (*models.Message, error) {
	return s.findOne(ctx, orgID, bson.M{"_id": id, "chatId": chatID}, nil, id)
}

func (s *MongoMessageStore) ExistsByWhatsappID(ctx context.Context, orgID, waMessageID string) (bool, error) {
	n, err := s.coll(orgID).CountDocuments(ctx, bson.M{"whatsappMessageId": waMessageID}, options.Count().SetLimit(1))
	return n > 0, err
}

func (s *MongoMessageStore) FindByWhatsappID(ctx context.Context, orgID, chatID, waMessageID string) (*models.Message, error) {
	return s.findOne(ctx, orgID, bson.M{"chatId": chatID, "whatsappMessageId": waMessageID}, nil, waMessageID)
}

func (s *MongoMessageStore) CountNonSystem(ctx context.Context, orgID, chatID string) (int64, error) {
	return s.coll(orgID).CountDocuments(ctx, bson.M{
		"chatId": chatID,
		"sender": bson.M{"$ne": models.SenderSystem},
	})
}

func (s *MongoMessageStore) FirstNonSystem(ctx context.Context, orgID, chatID string) (*models.Message, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "timestamp", Value: 1}})
	return s.findOne(ctx, orgID, bson.M{
		"chatId": chatID,
		"sender": bson.M{"$ne": models.SenderSystem},
	}, opts, chatID)
}

func (s *MongoMessageStore) Replace(ctx context.Context, orgID string, m *models.Message) error {
	res, err := s.coll(orgID).ReplaceOne(ctx, msgKeyFilter(m.Key()), m)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound("message", m.ID)
	}
	return nil
}

func (s *MongoMessageStore) MarkAllRead(ctx context.Context, orgID, chatID, agentID string) ([]models.Message, error) {
	filter := bson.M{
		"chatId":   chatID,
		"status":   bson.M{"$ne": models.StatusRead},
		"sender":   bson.M{"$ne": models.SenderSystem},
		"senderId": bson.M{"$ne": agentID},
	}
	cur, err := s.coll(orgID).Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	var updated []models.Message
	if err := cur.All(ctx, &updated); err != nil {
		return nil, err
	}
	if len(updated) == 0 {
		return nil, nil
	}
	if _, err := s.coll(orgID).UpdateMany(ctx, filter, bson.M{"$set": bson.M{"status": models.StatusRead}}); err != nil {
		return nil, err
	}
	for i := range updated {
		updated[i].Status = models.StatusRead
	}
	return updated, nil
}

func (s *MongoMessageStore) FindBySourceID(ctx context.Context, orgID, chatID, sourceMessageID string) (*models.Message, error) {
	return s.findOne(ctx, orgID, bson.M{
		"chatId":                         chatID,
		"metadata." + models.MetaSourceMessageID: sourceMessageID,
	}, nil, sourceMessageID)
}

func (s *MongoMessageStore) findOne(ctx context.Context, orgID string, filter bson.M, opts *options.FindOneOptions, id string) (*models.Message, error) {
	var m models.Message
	var err error
	if opts != nil {
		err = s.coll(orgID).FindOne(ctx, filter, opts).Decode(&m)
	} else {
		err = s.coll(orgID).FindOne(ctx, filter).Decode(&m)
	}
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperr.NotFound("message", id)
		}
		return nil, err
	}
	return &m, nil
}
