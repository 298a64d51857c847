package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/solusinc/manylead-cloud-sub003/internal/events"
	"github.com/solusinc/manylead-cloud-sub003/internal/metrics"
	"github.com/solusinc/manylead-cloud-sub003/internal/models"
	"github.com/solusinc/manylead-cloud-sub003/internal/repository"
	"github.com/solusinc/manylead-cloud-sub003/internal/service"
)

// Scheduler polls every organization for due scheduled messages and sends
// them. The pre-send re-read closes the race against auto-cancel: a record
// cancelled between the due query and the send is silently skipped.
type Scheduler struct {
	registry  repository.Registry
	scheduled repository.ScheduledStore
	chats     repository.ChatStore
	contacts  repository.ContactStore
	org       repository.OrgStore
	messages  repository.MessageStore
	sender    service.Sender
	events    events.Publisher
	log       *zap.Logger
	interval  time.Duration
	batchSize int
	now       func() time.Time
	newID     func() string
}

func NewScheduler(
	registry repository.Registry,
	scheduled repository.ScheduledStore,
	chats repository.ChatStore,
	contacts repository.ContactStore,
	org repository.OrgStore,
	messages repository.MessageStore,
	sender service.Sender,
	pub events.Publisher,
	log *zap.Logger,
	interval time.Duration,
	batchSize int,
) *Scheduler {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Scheduler{
		registry:  registry,
		scheduled: scheduled,
		chats:     chats,
		contacts:  contacts,
		org:       org,
		messages:  messages,
		sender:    sender,
		events:    pub,
		log:       log,
		interval:  interval,
		batchSize: batchSize,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Run blocks until the context is cancelled, ticking every poll interval.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one poll round across all organizations. Exposed for tests.
func (s *Scheduler) Tick(ctx context.Context) {
	orgs, err := s.registry.ListOrganizations(ctx)
	if err != nil {
		s.log.Error("organization list failed", zap.Error(err))
		return
	}
	now := s.now().UTC()
	for _, org := range orgs {
		due, err := s.scheduled.FindDue(ctx, org.ID, now, s.batchSize)
		if err != nil {
			s.log.Error("due query failed", zap.String("org", org.ID), zap.Error(err))
			continue
		}
		for i := range due {
			s.dispatch(ctx, org.ID, due[i].ID)
		}
	}
}

func (s *Scheduler) dispatch(ctx context.Context, orgID, id string) {
	// fresh read: the due snapshot may be stale by the time we get here
	sm, err := s.scheduled.FindByID(ctx, orgID, id)
	if err != nil {
		s.log.Error("scheduled lookup failed", zap.String("id", id), zap.Error(err))
		return
	}
	if sm.Status != models.ScheduledPending {
		metrics.ScheduledDispatched.WithLabelValues("skipped").Inc()
		return
	}
	chat, err := s.chats.FindByKey(ctx, orgID, models.ChatKey{ID: sm.ChatID, CreatedAt: sm.ChatCreatedAt})
	if err != nil {
		s.log.Error("scheduled chat lookup failed", zap.String("id", id), zap.Error(err))
		return
	}

	texts, err := s.expand(ctx, orgID, sm)
	if err != nil {
		s.log.Error("scheduled content expansion failed", zap.String("id", id), zap.Error(err))
		return
	}
	for _, text := range texts {
		if err := s.send(ctx, orgID, chat, sm, text); err != nil {
			metrics.ScheduledDispatched.WithLabelValues("failed").Inc()
			s.log.Error("scheduled send failed", zap.String("id", id), zap.Error(err))
			return
		}
	}

	sm.Status = models.ScheduledSent
	if err := s.scheduled.Replace(ctx, orgID, sm); err != nil {
		s.log.Error("scheduled status update failed", zap.String("id", id), zap.Error(err))
		return
	}
	metrics.ScheduledDispatched.WithLabelValues("sent").Inc()
}

// expand resolves the payload: literal content, or the quick reply's message
// list in order.
func (s *Scheduler) expand(ctx context.Context, orgID string, sm *models.ScheduledMessage) ([]string, error) {
	if sm.QuickReplyID == nil {
		return []string{sm.Content}, nil
	}
	qr, err := s.org.QuickReplyByID(ctx, orgID, *sm.QuickReplyID)
	if err != nil {
		return nil, err
	}
	return qr.Messages, nil
}

func (s *Scheduler) send(ctx context.Context, orgID string, chat *models.Chat, sm *models.ScheduledMessage, text string) error {
	msg := &models.Message{
		ID:            s.newID(),
		Timestamp:     s.now().UTC(),
		ChatID:        chat.ID,
		ChatCreatedAt: chat.CreatedAt,
		Sender:        models.SenderAgent,
		SenderID:      &sm.CreatedBy,
		Type:          models.TypeText,
		Content:       text,
		Status:        models.StatusPending,
	}

	// comments stay internal; messages relay out like any agent send
	if sm.ContentType == models.ScheduledMessageContent && chat.MessageSource == models.SourceWhatsApp && chat.ChannelID != nil {
		contact, err := s.contacts.FindByID(ctx, orgID, chat.ContactID)
		if err != nil {
			return err
		}
		res, err := s.sender.SendText(ctx, *chat.ChannelID, contact.Phone, text)
		if err != nil {
			msg.Status = models.StatusFailed
			if msg.Metadata == nil {
				msg.Metadata = map[string]any{}
			}
			msg.Metadata[models.MetaErrorMessage] = err.Error()
		} else {
			msg.Status = models.StatusSent
			msg.WhatsappMessageID = res.Key.ID
		}
	} else {
		msg.Status = models.StatusSent
	}

	if err := s.messages.Insert(ctx, orgID, msg); err != nil {
		return err
	}
	key := chat.Key()
	if sm.ContentType == models.ScheduledMessageContent {
		if err := s.chats.SetLastMessage(ctx, orgID, key, msg.AsLastMessage()); err != nil {
			return err
		}
	}
	if err := s.chats.IncrementTotalMessages(ctx, orgID, key, 1); err != nil {
		return err
	}
	_ = s.events.MessageCreated(ctx, orgID, msg, events.Context{SenderID: sm.CreatedBy})
	return nil
}
