package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/solusinc/manylead-cloud-sub003/internal/models"
)

// MongoControlStore serves the control-plane collections: the organization
// registry and the cross-org correlation records.
type MongoControlStore struct{ t *TenantManager }

func NewMongoControlStore(t *TenantManager) *MongoControlStore { return &MongoControlStore{t: t} }

func (s *MongoControlStore) db() *mongo.Database { return s.t.Control() }

func (s *MongoControlStore) ListOrganizations(ctx context.Context) ([]models.Organization, error) {
	cur, err := s.db().Collection(collOrganizations).Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	var out []models.Organization
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *MongoControlStore) InsertLink(ctx context.Context, l *models.ChatLink) error {
	_, err := s.db().Collection(collChatLinks).InsertOne(ctx, l)
	return err
}

func (s *MongoControlStore) LinkBySourceChat(ctx context.Context, sourceOrgID, sourceChatID string) (*models.ChatLink, error) {
	return decodeOne[models.ChatLink](s.db().Collection(collChatLinks).FindOne(ctx,
		bson.M{"sourceOrgId": sourceOrgID, "sourceChatId": sourceChatID}), "chat link", sourceChatID)
}

func (s *MongoControlStore) LinkByTargetChat(ctx context.Context, targetOrgID, targetChatID string) (*models.ChatLink, error) {
	return decodeOne[models.ChatLink](s.db().Collection(collChatLinks).FindOne(ctx,
		bson.M{"targetOrgId": targetOrgID, "targetChatId": targetChatID}), "chat link", targetChatID)
}

type instanceRow struct {
	Instance       string `bson:"_id"`
	OrganizationID string `bson:"organizationId"`
}

func (s *MongoControlStore) OrgByInstance(ctx context.Context, instance string) (string, error) {
	row, err := decodeOne[instanceRow](s.db().Collection(collInstances).FindOne(ctx,
		bson.M{"_id": instance}), "instance", instance)
	if err != nil {
		return "", err
	}
	return row.OrganizationID, nil
}

func (s *MongoControlStore) PeerOf(ctx context.Context, orgID string) (*models.OrgPeer, error) {
	return decodeOne[models.OrgPeer](s.db().Collection(collOrgPeers).FindOne(ctx,
		bson.M{"orgId": orgID}), "org peer", orgID)
}
