package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/solusinc/manylead-cloud-sub003/internal/apperr"
	"github.com/solusinc/manylead-cloud-sub003/internal/models"
)

// Memory is an in-memory implementation of every store interface. It backs
// unit tests and local development without a mongo deployment. Reads and
// writes copy values so callers never alias stored rows.
type Memory struct {
	mu sync.RWMutex

	orgs         []models.Organization
	chats        map[string]map[string]models.Chat
	messages     map[string][]models.Message
	attachments  map[string]map[string]models.Attachment
	scheduled    map[string]map[string]models.ScheduledMessage
	participants map[string]map[string]models.ChatParticipant
	contacts     map[string]map[string]models.Contact
	agents       map[string]map[string]models.Agent
	departments  map[string]map[string]models.Department
	endings      map[string]map[string]models.Ending
	quickReplies map[string]map[string]models.QuickReply
	settings     map[string]models.OrgSettings
	instances    map[string]string
	links        []models.ChatLink
	peers        []models.OrgPeer
}

func NewMemory() *Memory {
	return &Memory{
		chats:        map[string]map[string]models.Chat{},
		messages:     map[string][]models.Message{},
		attachments:  map[string]map[string]models.Attachment{},
		scheduled:    map[string]map[string]models.ScheduledMessage{},
		participants: map[string]map[string]models.ChatParticipant{},
		contacts:     map[string]map[string]models.Contact{},
		agents:       map[string]map[string]models.Agent{},
		departments:  map[string]map[string]models.Department{},
		endings:      map[string]map[string]models.Ending{},
		quickReplies: map[string]map[string]models.QuickReply{},
		settings:     map[string]models.OrgSettings{},
		instances:    map[string]string{},
	}
}

func ensure[T any](m map[string]map[string]T, org string) map[string]T {
	if m[org] == nil {
		m[org] = map[string]T{}
	}
	return m[org]
}

// --- seeding helpers ---

func (m *Memory) AddOrganization(o models.Organization) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orgs = append(m.orgs, o)
}

func (m *Memory) AddAgent(org string, a models.Agent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ensure(m.agents, org)[a.ID] = a
}

func (m *Memory) AddDepartment(org string, d models.Department) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ensure(m.departments, org)[d.ID] = d
}

func (m *Memory) AddEnding(org string, e models.Ending) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ensure(m.endings, org)[e.ID] = e
}

func (m *Memory) AddQuickReply(org string, q models.QuickReply) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ensure(m.quickReplies, org)[q.ID] = q
}

func (m *Memory) SetSettings(org string, s models.OrgSettings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[org] = s
}

func (m *Memory) AddInstance(instance, orgID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.instances[instance] = orgID
}

func (m *Memory) OrgByInstance(ctx context.Context, instance string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	org, ok := m.instances[instance]
	if !ok {
		return "", apperr.NotFound("instance", instance)
	}
	return org, nil
}

func (m *Memory) AddPeer(p models.OrgPeer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.peers = append(m.peers, p)
}

// --- ChatStore ---

func (m *Memory) Insert(ctx context.Context, org string, c *models.Chat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ensure(m.chats, org)[c.ID] = *c
	return nil
}

func (m *Memory) FindByKey(ctx context.Context, org string, key models.ChatKey) (*models.Chat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.chats[org][key.ID]
	if !ok || !c.CreatedAt.Equal(key.CreatedAt) {
		return nil, apperr.NotFound("chat", key.ID)
	}
	out := c
	return &out, nil
}

func (m *Memory) FindActiveByContact(ctx context.Context, org, contactID string, channelID *string) (*models.Chat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var best *models.Chat
	for _, c := range m.chats[org] {
		if c.ContactID != contactID || !c.Active() {
			continue
		}
		if channelID != nil && (c.ChannelID == nil || *c.ChannelID != *channelID) {
			continue
		}
		c := c
		if best == nil || c.CreatedAt.After(best.CreatedAt) {
			best = &c
		}
	}
	if best == nil {
		return nil, apperr.NotFound("chat", contactID)
	}
	out := *best
	return &out, nil
}

func (m *Memory) Replace(ctx context.Context, org string, c *models.Chat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.chats[org][c.ID]; !ok {
		return apperr.NotFound("chat", c.ID)
	}
	m.chats[org][c.ID] = *c
	return nil
}

func (m *Memory) IncrementUnread(ctx context.Context, org string, key models.ChatKey, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chats[org][key.ID]
	if !ok {
		return apperr.NotFound("chat", key.ID)
	}
	c.UnreadCount += delta
	if c.UnreadCount < 0 {
		c.UnreadCount = 0
	}
	m.chats[org][key.ID] = c
	return nil
}

func (m *Memory) IncrementTotalMessages(ctx context.Context, org string, key models.ChatKey, delta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chats[org][key.ID]
	if !ok {
		return apperr.NotFound("chat", key.ID)
	}
	c.TotalMessages += delta
	m.chats[org][key.ID] = c
	return nil
}

func (m *Memory) SetLastMessage(ctx context.Context, org string, key models.ChatKey, lm models.LastMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chats[org][key.ID]
	if !ok {
		return apperr.NotFound("chat", key.ID)
	}
	c.LastMessage = lm
	m.chats[org][key.ID] = c
	return nil
}

// --- MessageStore ---

func (m *Memory) InsertMessage(ctx context.Context, org string, msg *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[org] = append(m.messages[org], *msg)
	return nil
}

func (m *Memory) FindMessageByKey(ctx context.Context, org string, key models.MessageKey) (*models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, msg := range m.messages[org] {
		if msg.ID == key.ID && msg.Timestamp.Equal(key.Timestamp) {
			out := msg
			return &out, nil
		}
	}
	return nil, apperr.NotFound("message", key.ID)
}

func (m *Memory) FindMessageByID(ctx context.Context, org, chatID, id string) (*models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, msg := range m.messages[org] {
		if msg.ChatID == chatID && msg.ID == id {
			out := msg
			return &out, nil
		}
	}
	return nil, apperr.NotFound("message", id)
}

func (m *Memory) ExistsByWhatsappID(ctx context.Context, org, waID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, msg := range m.messages[org] {
		if msg.WhatsappMessageID == waID {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) FindByWhatsappID(ctx context.Context, org, chatID, waID string) (*models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, msg := range m.messages[org] {
		if msg.ChatID == chatID && msg.WhatsappMessageID == waID {
			out := msg
			return &out, nil
		}
	}
	return nil, apperr.NotFound("message", waID)
}

func (m *Memory) CountNonSystem(ctx context.Context, org, chatID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, msg := range m.messages[org] {
		if msg.ChatID == chatID && msg.Sender != models.SenderSystem {
			n++
		}
	}
	return n, nil
}

func (m *Memory) FirstNonSystem(ctx context.Context, org, chatID string) (*models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var candidates []models.Message
	for _, msg := range m.messages[org] {
		if msg.ChatID == chatID && msg.Sender != models.SenderSystem {
			candidates = append(candidates, msg)
		}
	}
	if len(candidates) == 0 {
		return nil, apperr.NotFound("message", chatID)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Timestamp.Before(candidates[j].Timestamp)
	})
	out := candidates[0]
	return &out, nil
}

func (m *Memory) ReplaceMessage(ctx context.Context, org string, msg *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.messages[org] {
		if existing.ID == msg.ID && existing.Timestamp.Equal(msg.Timestamp) {
			m.messages[org][i] = *msg
			return nil
		}
	}
	return apperr.NotFound("message", msg.ID)
}

func (m *Memory) MarkAllRead(ctx context.Context, org, chatID, agentID string) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var updated []models.Message
	for i, msg := range m.messages[org] {
		if msg.ChatID != chatID || msg.Status == models.StatusRead || msg.Sender == models.SenderSystem {
			continue
		}
		if msg.SenderID != nil && *msg.SenderID == agentID {
			continue
		}
		m.messages[org][i].Status = models.StatusRead
		updated = append(updated, m.messages[org][i])
	}
	return updated, nil
}

func (m *Memory) FindBySourceID(ctx context.Context, org, chatID, sourceID string) (*models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, msg := range m.messages[org] {
		if msg.ChatID != chatID || msg.Metadata == nil {
			continue
		}
		if v, ok := msg.Metadata[models.MetaSourceMessageID]; ok && v == sourceID {
			out := msg
			return &out, nil
		}
	}
	return nil, apperr.NotFound("message", sourceID)
}

// MessagesByChat returns all stored messages for a chat in timestamp order.
// Test-facing helper.
func (m *Memory) MessagesByChat(org, chatID string) []models.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Message
	for _, msg := range m.messages[org] {
		if msg.ChatID == chatID {
			out = append(out, msg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// --- AttachmentStore ---

func (m *Memory) InsertAttachment(ctx context.Context, org string, a *models.Attachment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ensure(m.attachments, org)[a.ID] = *a
	return nil
}

func (m *Memory) FindAttachmentByID(ctx context.Context, org, id string) (*models.Attachment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.attachments[org][id]
	if !ok {
		return nil, apperr.NotFound("attachment", id)
	}
	out := a
	return &out, nil
}

func (m *Memory) FindByMessage(ctx context.Context, org, messageID string) (*models.Attachment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.attachments[org] {
		if a.MessageID == messageID {
			out := a
			return &out, nil
		}
	}
	return nil, apperr.NotFound("attachment", messageID)
}

func (m *Memory) ReplaceAttachment(ctx context.Context, org string, a *models.Attachment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.attachments[org][a.ID]; !ok {
		return apperr.NotFound("attachment", a.ID)
	}
	m.attachments[org][a.ID] = *a
	return nil
}

func (m *Memory) DeleteByMessage(ctx context.Context, org, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, a := range m.attachments[org] {
		if a.MessageID == messageID {
			delete(m.attachments[org], id)
		}
	}
	return nil
}

// --- ScheduledStore ---

func (m *Memory) InsertScheduled(ctx context.Context, org string, s *models.ScheduledMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ensure(m.scheduled, org)[s.ID] = *s
	return nil
}

func (m *Memory) FindScheduledByID(ctx context.Context, org, id string) (*models.ScheduledMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.scheduled[org][id]
	if !ok {
		return nil, apperr.NotFound("scheduled message", id)
	}
	out := s
	return &out, nil
}

func (m *Memory) ReplaceScheduled(ctx context.Context, org string, s *models.ScheduledMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.scheduled[org][s.ID]; !ok {
		return apperr.NotFound("scheduled message", s.ID)
	}
	m.scheduled[org][s.ID] = *s
	return nil
}

func (m *Memory) FindDue(ctx context.Context, org string, now time.Time, limit int) ([]models.ScheduledMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.ScheduledMessage
	for _, s := range m.scheduled[org] {
		if s.Status == models.ScheduledPending && !s.ScheduledAt.After(now) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) FindPendingByChat(ctx context.Context, org, chatID string) ([]models.ScheduledMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.ScheduledMessage
	for _, s := range m.scheduled[org] {
		if s.ChatID == chatID && s.Status == models.ScheduledPending {
			out = append(out, s)
		}
	}
	return out, nil
}

// --- ParticipantStore ---

func participantKey(key models.ChatKey, agentID string) string {
	return key.ID + "|" + agentID
}

func (m *Memory) Get(ctx context.Context, org string, key models.ChatKey, agentID string) (*models.ChatParticipant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.participants[org][participantKey(key, agentID)]
	if !ok {
		return nil, apperr.NotFound("participant", agentID)
	}
	out := p
	return &out, nil
}

func (m *Memory) Upsert(ctx context.Context, org string, p *models.ChatParticipant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := models.ChatKey{ID: p.ChatID, CreatedAt: p.ChatCreatedAt}
	ensure(m.participants, org)[participantKey(key, p.AgentID)] = *p
	return nil
}

func (m *Memory) IncrementParticipantUnread(ctx context.Context, org string, key models.ChatKey, agentID string, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := participantKey(key, agentID)
	p, ok := ensure(m.participants, org)[k]
	if !ok {
		p = models.ChatParticipant{ChatID: key.ID, ChatCreatedAt: key.CreatedAt, AgentID: agentID}
	}
	p.UnreadCount += delta
	if p.UnreadCount < 0 {
		p.UnreadCount = 0
	}
	m.participants[org][k] = p
	return nil
}

func (m *Memory) Reset(ctx context.Context, org string, key models.ChatKey, agentID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := participantKey(key, agentID)
	p, ok := ensure(m.participants, org)[k]
	if !ok {
		p = models.ChatParticipant{ChatID: key.ID, ChatCreatedAt: key.CreatedAt, AgentID: agentID}
	}
	p.UnreadCount = 0
	p.LastReadAt = &at
	m.participants[org][k] = p
	return nil
}

// --- ContactStore ---

func (m *Memory) InsertContact(ctx context.Context, org string, c *models.Contact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ensure(m.contacts, org)[c.ID] = *c
	return nil
}

func (m *Memory) FindContactByID(ctx context.Context, org, id string) (*models.Contact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.contacts[org][id]
	if !ok {
		return nil, apperr.NotFound("contact", id)
	}
	out := c
	return &out, nil
}

func (m *Memory) FindByPhone(ctx context.Context, org, phone string) (*models.Contact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.contacts[org] {
		if c.Phone == phone {
			out := c
			return &out, nil
		}
	}
	return nil, apperr.NotFound("contact", phone)
}

func (m *Memory) UpdateName(ctx context.Context, org, id, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contacts[org][id]
	if !ok {
		return apperr.NotFound("contact", id)
	}
	c.Name = name
	m.contacts[org][id] = c
	return nil
}

// --- OrgStore ---

func (m *Memory) AgentByID(ctx context.Context, org, id string) (*models.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.agents[org][id]
	if !ok {
		return nil, apperr.NotFound("agent", id)
	}
	out := a
	return &out, nil
}

func (m *Memory) DepartmentByID(ctx context.Context, org, id string) (*models.Department, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.departments[org][id]
	if !ok {
		return nil, apperr.NotFound("department", id)
	}
	out := d
	return &out, nil
}

func (m *Memory) EndingByID(ctx context.Context, org, id string) (*models.Ending, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.endings[org][id]
	if !ok {
		return nil, apperr.NotFound("ending", id)
	}
	out := e
	return &out, nil
}

func (m *Memory) QuickReplyByID(ctx context.Context, org, id string) (*models.QuickReply, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.quickReplies[org][id]
	if !ok {
		return nil, apperr.NotFound("quick reply", id)
	}
	out := q
	return &out, nil
}

func (m *Memory) Settings(ctx context.Context, org string) (*models.OrgSettings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.settings[org]
	if !ok {
		return &models.OrgSettings{OrganizationID: org}, nil
	}
	out := s
	return &out, nil
}

// --- LinkStore / Registry ---

func (m *Memory) InsertLink(ctx context.Context, l *models.ChatLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links = append(m.links, *l)
	return nil
}

func (m *Memory) LinkBySourceChat(ctx context.Context, sourceOrgID, sourceChatID string) (*models.ChatLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, l := range m.links {
		if l.SourceOrgID == sourceOrgID && l.SourceChatID == sourceChatID {
			out := l
			return &out, nil
		}
	}
	return nil, apperr.NotFound("chat link", sourceChatID)
}

func (m *Memory) LinkByTargetChat(ctx context.Context, targetOrgID, targetChatID string) (*models.ChatLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, l := range m.links {
		if l.TargetOrgID == targetOrgID && l.TargetChatID == targetChatID {
			out := l
			return &out, nil
		}
	}
	return nil, apperr.NotFound("chat link", targetChatID)
}

func (m *Memory) PeerOf(ctx context.Context, orgID string) (*models.OrgPeer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.peers {
		if p.OrgID == orgID {
			out := p
			return &out, nil
		}
	}
	return nil, apperr.NotFound("org peer", orgID)
}

func (m *Memory) ListOrganizations(ctx context.Context) ([]models.Organization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Organization, len(m.orgs))
	copy(out, m.orgs)
	return out, nil
}
