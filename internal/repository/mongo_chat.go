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

type MongoChatStore struct {
	t *TenantManager
}

func NewMongoChatStore(t *TenantManager) *MongoChatStore { return &MongoChatStore{t: t} }

func (s *MongoChatStore) coll(orgID string) *mongo.Collection {
	return s.t.DB(orgID).Collection(collChats)
}

func (s *MongoChatStore) Insert(ctx context.Context, orgID string, c *models.Chat) error {
	_, err := s.coll(orgID).InsertOne(ctx, c)
	return err
}

func keyFilter(key models.ChatKey) bson.M {
	return bson.M{"_id": key.ID, "createdAt": key.CreatedAt}
}

func (s *MongoChatStore) FindByKey(ctx context.Context, orgID string, key models.ChatKey) (*models.Chat, error) {
	var c models.Chat
	if err := s.coll(orgID).FindOne(ctx, keyFilter(key)).Decode(&c); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperr.NotFound("chat", key.ID)
		}
		return nil, err
	}
	return &c, nil
}

func (s *MongoChatStore) FindActiveByContact(ctx context.Context, orgID, contactID string, channelID *string) (*models.Chat, error) {
	filter := bson.M{
		"contactId": contactID,
		"status":    bson.M{"$in": []models.ChatStatus{models.ChatOpen, models.ChatPending}},
	}
	if channelID != nil {
		filter["channelId"] = *channelID
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	var c models.Chat
	if err := s.coll(orgID).FindOne(ctx, filter, opts).Decode(&c); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperr.NotFound("chat", contactID)
		}
		return nil, err
	}
	return &c, nil
}

func (s *MongoChatStore) Replace(ctx context.Context, orgID string, c *models.Chat) error {
	res, err := s.coll(orgID).ReplaceOne(ctx, keyFilter(c.Key()), c)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound("chat", c.ID)
	}
	return nil
}

func (s *MongoChatStore) IncrementUnread(ctx context.Context, orgID string, key models.ChatKey, delta int) error {
	_, err := s.coll(orgID).UpdateOne(ctx, keyFilter(key), bson.M{"$inc": bson.M{"unreadCount": delta}})
	if err != nil {
		return err
	}
	// clamp: decrements may not take unreadCount below zero
	if delta < 0 {
		_, err = s.coll(orgID).UpdateOne(ctx,
			bson.M{"_id": key.ID, "createdAt": key.CreatedAt, "unreadCount": bson.M{"$lt": 0}},
			bson.M{"$set": bson.M{"unreadCount": 0}})
	}
	return err
}

func (s *MongoChatStore) IncrementTotalMessages(ctx context.Context, orgID string, key models.ChatKey, delta int64) error {
	_, err := s.coll(orgID).UpdateOne(ctx, keyFilter(key), bson.M{"$inc": bson.M{"totalMessages": delta}})
	return err
}

func (s *MongoChatStore) SetLastMessage(ctx context.Context, orgID string, key models.ChatKey, lm models.LastMessage) error {
	_, err := s.coll(orgID).UpdateOne(ctx, keyFilter(key), bson.M{"$set": bson.M{
		"lastMessageAt":        lm.At,
		"lastMessageContent":   lm.Content,
		"lastMessageSender":    lm.Sender,
		"lastMessageStatus":    lm.Status,
		"lastMessageType":      lm.Type,
		"lastMessageIsDeleted": lm.IsDeleted,
	}})
	return err
}
