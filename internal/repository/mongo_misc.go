package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/solusinc/manylead-cloud-sub003/internal/apperr"
	"github.com/solusinc/manylead-cloud-sub003/internal/models"
)

func decodeOne[T any](res *mongo.SingleResult, entity, id string) (*T, error) {
	var out T
	if err := res.Decode(&out); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperr.NotFound(entity, id)
		}
		return nil, err
	}
	return &out, nil
}

// --- attachments ---

type MongoAttachmentStore struct{ t *TenantManager }

func NewMongoAttachmentStore(t *TenantManager) *MongoAttachmentStore {
	return &MongoAttachmentStore{t: t}
}

func (s *MongoAttachmentStore) coll(orgID string) *mongo.Collection {
	return s.t.DB(orgID).Collection(collAttachments)
}

func (s *MongoAttachmentStore) Insert(ctx context.Context, orgID string, a *models.Attachment) error {
	_, err := s.coll(orgID).InsertOne(ctx, a)
	return err
}

func (s *MongoAttachmentStore) FindByID(ctx context.Context, orgID, id string) (*models.Attachment, error) {
	return decodeOne[models.Attachment](s.coll(orgID).FindOne(ctx, bson.M{"_id": id}), "attachment", id)
}

func (s *MongoAttachmentStore) FindByMessage(ctx context.Context, orgID, messageID string) (*models.Attachment, error) {
	return decodeOne[models.Attachment](s.coll(orgID).FindOne(ctx, bson.M{"messageId": messageID}), "attachment", messageID)
}

func (s *MongoAttachmentStore) Replace(ctx context.Context, orgID string, a *models.Attachment) error {
	res, err := s.coll(orgID).ReplaceOne(ctx, bson.M{"_id": a.ID}, a)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound("attachment", a.ID)
	}
	return nil
}

func (s *MongoAttachmentStore) DeleteByMessage(ctx context.Context, orgID, messageID string) error {
	_, err := s.coll(orgID).DeleteOne(ctx, bson.M{"messageId": messageID})
	return err
}

// --- scheduled messages ---

type MongoScheduledStore struct{ t *TenantManager }

func NewMongoScheduledStore(t *TenantManager) *MongoScheduledStore {
	return &MongoScheduledStore{t: t}
}

func (s *MongoScheduledStore) coll(orgID string) *mongo.Collection {
	return s.t.DB(orgID).Collection(collScheduled)
}

func (s *MongoScheduledStore) Insert(ctx context.Context, orgID string, m *models.ScheduledMessage) error {
	_, err := s.coll(orgID).InsertOne(ctx, m)
	return err
}

func (s *MongoScheduledStore) FindByID(ctx context.Context, orgID, id string) (*models.ScheduledMessage, error) {
	return decodeOne[models.ScheduledMessage](s.coll(orgID).FindOne(ctx, bson.M{"_id": id}), "scheduled message", id)
}

func (s *MongoScheduledStore) Replace(ctx context.Context, orgID string, m *models.ScheduledMessage) error {
	res, err := s.coll(orgID).ReplaceOne(ctx, bson.M{"_id": m.ID}, m)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound("scheduled message", m.ID)
	}
	return nil
}

func (s *MongoScheduledStore) FindDue(ctx context.Context, orgID string, now time.Time, limit int) ([]models.ScheduledMessage, error) {
	opts := options.Find().SetSort(bson.D{{Key: "scheduledAt", Value: 1}}).SetLimit(int64(limit))
	cur, err := s.coll(orgID).Find(ctx, bson.M{
		"status":      models.ScheduledPending,
		"scheduledAt": bson.M{"$lte": now},
	}, opts)
	if err != nil {
		return nil, err
	}
	var out []models.ScheduledMessage
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *MongoScheduledStore) FindPendingByChat(ctx context.Context, orgID, chatID string) ([]models.ScheduledMessage, error) {
	cur, err := s.coll(orgID).Find(ctx, bson.M{"chatId": chatID, "status": models.ScheduledPending})
	if err != nil {
		return nil, err
	}
	var out []models.ScheduledMessage
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// --- participants ---

type MongoParticipantStore struct{ t *TenantManager }

func NewMongoParticipantStore(t *TenantManager) *MongoParticipantStore {
	return &MongoParticipantStore{t: t}
}

func (s *MongoParticipantStore) coll(orgID string) *mongo.Collection {
	return s.t.DB(orgID).Collection(collParticipants)
}

func participantFilter(key models.ChatKey, agentID string) bson.M {
	return bson.M{"chatId": key.ID, "chatCreatedAt": key.CreatedAt, "agentId": agentID}
}

func (s *MongoParticipantStore) Get(ctx context.Context, orgID string, key models.ChatKey, agentID string) (*models.ChatParticipant, error) {
	return decodeOne[models.ChatParticipant](s.coll(orgID).FindOne(ctx, participantFilter(key, agentID)), "participant", agentID)
}

func (s *MongoParticipantStore) Upsert(ctx context.Context, orgID string, p *models.ChatParticipant) error {
	_, err := s.coll(orgID).ReplaceOne(ctx,
		participantFilter(models.ChatKey{ID: p.ChatID, CreatedAt: p.ChatCreatedAt}, p.AgentID),
		p, options.Replace().SetUpsert(true))
	return err
}

func (s *MongoParticipantStore) IncrementUnread(ctx context.Context, orgID string, key models.ChatKey, agentID string, delta int) error {
	_, err := s.coll(orgID).UpdateOne(ctx, participantFilter(key, agentID),
		bson.M{"$inc": bson.M{"unreadCount": delta}},
		options.Update().SetUpsert(true))
	return err
}

func (s *MongoParticipantStore) Reset(ctx context.Context, orgID string, key models.ChatKey, agentID string, at time.Time) error {
	_, err := s.coll(orgID).UpdateOne(ctx, participantFilter(key, agentID),
		bson.M{"$set": bson.M{"unreadCount": 0, "lastReadAt": at}},
		options.Update().SetUpsert(true))
	return err
}

// --- contacts ---

type MongoContactStore struct{ t *TenantManager }

func NewMongoContactStore(t *TenantManager) *MongoContactStore { return &MongoContactStore{t: t} }

func (s *MongoContactStore) coll(orgID string) *mongo.Collection {
	return s.t.DB(orgID).Collection(collContacts)
}

func (s *MongoContactStore) Insert(ctx context.Context, orgID string, c *models.Contact) error {
	_, err := s.coll(orgID).InsertOne(ctx, c)
	return err
}

func (s *MongoContactStore) FindByID(ctx context.Context, orgID, id string) (*models.Contact, error) {
	return decodeOne[models.Contact](s.coll(orgID).FindOne(ctx, bson.M{"_id": id}), "contact", id)
}

func (s *MongoContactStore) FindByPhone(ctx context.Context, orgID, phone string) (*models.Contact, error) {
	return decodeOne[models.Contact](s.coll(orgID).FindOne(ctx, bson.M{"phone": phone}), "contact", phone)
}

func (s *MongoContactStore) UpdateName(ctx context.Context, orgID, id, name string) error {
	_, err := s.coll(orgID).UpdateByID(ctx, id, bson.M{"$set": bson.M{"name": name}})
	return err
}

// --- per-tenant configuration ---

type MongoOrgStore struct{ t *TenantManager }

func NewMongoOrgStore(t *TenantManager) *MongoOrgStore { return &MongoOrgStore{t: t} }

func (s *MongoOrgStore) AgentByID(ctx context.Context, orgID, id string) (*models.Agent, error) {
	return decodeOne[models.Agent](s.t.DB(orgID).Collection(collAgents).FindOne(ctx, bson.M{"_id": id}), "agent", id)
}

func (s *MongoOrgStore) DepartmentByID(ctx context.Context, orgID, id string) (*models.Department, error) {
	return decodeOne[models.Department](s.t.DB(orgID).Collection(collDepartments).FindOne(ctx, bson.M{"_id": id}), "department", id)
}

func (s *MongoOrgStore) EndingByID(ctx context.Context, orgID, id string) (*models.Ending, error) {
	return decodeOne[models.Ending](s.t.DB(orgID).Collection(collEndings).FindOne(ctx, bson.M{"_id": id}), "ending", id)
}

func (s *MongoOrgStore) QuickReplyByID(ctx context.Context, orgID, id string) (*models.QuickReply, error) {
	return decodeOne[models.QuickReply](s.t.DB(orgID).Collection(collQuickReplies).FindOne(ctx, bson.M{"_id": id}), "quick reply", id)
}

func (s *MongoOrgStore) Settings(ctx context.Context, orgID string) (*models.OrgSettings, error) {
	out, err := decodeOne[models.OrgSettings](s.t.DB(orgID).Collection(collSettings).FindOne(ctx, bson.M{"_id": orgID}), "settings", orgID)
	if apperr.IsNotFound(err) {
		return &models.OrgSettings{OrganizationID: orgID}, nil
	}
	return out, err
}

var (
	_ ChatStore        = (*MongoChatStore)(nil)
	_ MessageStore     = (*MongoMessageStore)(nil)
	_ AttachmentStore  = (*MongoAttachmentStore)(nil)
	_ ScheduledStore   = (*MongoScheduledStore)(nil)
	_ ParticipantStore = (*MongoParticipantStore)(nil)
	_ ContactStore     = (*MongoContactStore)(nil)
	_ OrgStore         = (*MongoOrgStore)(nil)
	_ LinkStore        = (*MongoControlStore)(nil)
	_ Registry         = (*MongoControlStore)(nil)
	_ InstanceResolver = (*MongoControlStore)(nil)
)
