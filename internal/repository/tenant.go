package repository

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const (
	collChats        = "chats"
	collMessages     = "messages"
	collAttachments  = "attachments"
	collScheduled    = "scheduled_messages"
	collParticipants = "chat_participants"
	collContacts     = "contacts"
	collAgents       = "agents"
	collDepartments  = "departments"
	collEndings      = "endings"
	collQuickReplies = "quick_replies"
	collSettings     = "settings"

	collOrganizations = "organizations"
	collChatLinks     = "chat_links"
	collOrgPeers      = "org_peers"
	collInstances     = "instances"
)

// TenantManager resolves one database per tenant organization over a shared
// client. Tenant databases are named <prefix><orgID>; each org's indexes are
// created on its first touch in this process.
type TenantManager struct {
	client    *mongo.Client
	prefix    string
	controlDB string
	log       *zap.Logger

	mu      sync.Mutex
	ensured map[string]bool
}

func NewTenantManager(ctx context.Context, uri, prefix, controlDB string, log *zap.Logger) (*TenantManager, error) {
	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(cctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	return &TenantManager{
		client:    client,
		prefix:    prefix,
		controlDB: controlDB,
		log:       log,
		ensured:   map[string]bool{},
	}, nil
}

// DB resolves the tenant database. The first touch of an org bootstraps its
// indexes; a failed bootstrap is logged and retried on the next touch so the
// unique dedup index does not silently stay missing.
func (t *TenantManager) DB(orgID string) *mongo.Database {
	t.mu.Lock()
	first := !t.ensured[orgID]
	if first {
		t.ensured[orgID] = true
	}
	t.mu.Unlock()
	if first {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := t.EnsureIndexes(ctx, orgID); err != nil {
			t.log.Warn("tenant index bootstrap failed", zap.String("org", orgID), zap.Error(err))
			t.mu.Lock()
			delete(t.ensured, orgID)
			t.mu.Unlock()
		}
	}
	return t.client.Database(t.prefix + orgID)
}

func (t *TenantManager) Control() *mongo.Database {
	return t.client.Database(t.controlDB)
}

func (t *TenantManager) Close(ctx context.Context) error {
	return t.client.Disconnect(ctx)
}

// EnsureIndexes creates the compound-key and dedup indexes for one tenant.
// Errors are returned but callers typically log and continue; index creation
// is idempotent.
func (t *TenantManager) EnsureIndexes(ctx context.Context, orgID string) error {
	db := t.client.Database(t.prefix + orgID)
	_, err := db.Collection(collChats).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "_id", Value: 1}, {Key: "createdAt", Value: 1}},
			Options: options.Index().SetName("chat_key_idx"),
		},
		{
			Keys:    bson.D{{Key: "contactId", Value: 1}, {Key: "channelId", Value: 1}, {Key: "status", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("chat_contact_idx"),
		},
	})
	if err != nil {
		return err
	}
	_, err = db.Collection(collMessages).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "chatId", Value: 1}, {Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("message_chat_idx"),
		},
		{
			Keys: bson.D{{Key: "whatsappMessageId", Value: 1}},
			Options: options.Index().SetName("message_wa_id_idx").SetUnique(true).
				SetPartialFilterExpression(bson.M{"whatsappMessageId": bson.M{"$type": "string"}}),
		},
	})
	if err != nil {
		return err
	}
	_, err = db.Collection(collParticipants).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "chatId", Value: 1}, {Key: "chatCreatedAt", Value: 1}, {Key: "agentId", Value: 1}},
		Options: options.Index().SetName("participant_key_idx").SetUnique(true),
	})
	if err != nil {
		return err
	}
	_, err = db.Collection(collScheduled).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "status", Value: 1}, {Key: "scheduledAt", Value: 1}},
		Options: options.Index().SetName("scheduled_due_idx"),
	})
	return err
}
