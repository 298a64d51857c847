package events

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/solusinc/manylead-cloud-sub003/internal/models"
)

const (
	SubjectMessageCreated = "message.created"
	SubjectMessageUpdated = "message.updated"
	SubjectMessageDeleted = "message.deleted"
	SubjectChatCreated    = "chat.created"
	SubjectChatUpdated    = "chat.updated"
	SubjectChatDeleted    = "chat.deleted"
)

type envelope struct {
	OrganizationID string `json:"organizationId"`
	Entity         any    `json:"entity"`
	Context        `json:"context,omitempty"`
}

// NatsPublisher publishes on subjects of the form org.<id>.<event>.
type NatsPublisher struct {
	nc  *nats.Conn
	log *zap.Logger
}

func NewNatsPublisher(url string, log *zap.Logger) (*NatsPublisher, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, err
	}
	return &NatsPublisher{nc: nc, log: log}, nil
}

func (p *NatsPublisher) Close() {
	p.nc.Close()
}

func (p *NatsPublisher) publish(orgID, subject string, entity any, ec Context) error {
	data, err := json.Marshal(envelope{OrganizationID: orgID, Entity: entity, Context: ec})
	if err != nil {
		return err
	}
	if err := p.nc.Publish("org."+orgID+"."+subject, data); err != nil {
		p.log.Error("publish event failed",
			zap.String("subject", subject),
			zap.String("org", orgID),
			zap.Error(err))
		return err
	}
	return nil
}

func (p *NatsPublisher) MessageCreated(_ context.Context, orgID string, msg *models.Message, ec Context) error {
	return p.publish(orgID, SubjectMessageCreated, msg, ec)
}

func (p *NatsPublisher) MessageUpdated(_ context.Context, orgID string, msg *models.Message, ec Context) error {
	return p.publish(orgID, SubjectMessageUpdated, msg, ec)
}

func (p *NatsPublisher) MessageDeleted(_ context.Context, orgID string, msg *models.Message, ec Context) error {
	return p.publish(orgID, SubjectMessageDeleted, msg, ec)
}

func (p *NatsPublisher) ChatCreated(_ context.Context, orgID string, chat *models.Chat, ec Context) error {
	return p.publish(orgID, SubjectChatCreated, chat, ec)
}

func (p *NatsPublisher) ChatUpdated(_ context.Context, orgID string, chat *models.Chat, ec Context) error {
	return p.publish(orgID, SubjectChatUpdated, chat, ec)
}

func (p *NatsPublisher) ChatDeleted(_ context.Context, orgID string, chat *models.Chat, ec Context) error {
	return p.publish(orgID, SubjectChatDeleted, chat, ec)
}
