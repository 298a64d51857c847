package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/solusinc/manylead-cloud-sub003/internal/apperr"
	"github.com/solusinc/manylead-cloud-sub003/internal/metrics"
	"github.com/solusinc/manylead-cloud-sub003/internal/models"
	"github.com/solusinc/manylead-cloud-sub003/internal/processor"
	"github.com/solusinc/manylead-cloud-sub003/internal/repository"
	"github.com/solusinc/manylead-cloud-sub003/internal/service"
	"github.com/solusinc/manylead-cloud-sub003/internal/whatsapp"
)

type Handler struct {
	resolver  repository.InstanceResolver
	processor *processor.Processor
	chats     *service.ChatService
	messages  *service.MessageService
	scheduled *service.ScheduledService
	log       *zap.Logger
}

func NewHandler(
	resolver repository.InstanceResolver,
	proc *processor.Processor,
	chats *service.ChatService,
	messages *service.MessageService,
	scheduled *service.ScheduledService,
	log *zap.Logger,
) *Handler {
	return &Handler{
		resolver:  resolver,
		processor: proc,
		chats:     chats,
		messages:  messages,
		scheduled: scheduled,
		log:       log,
	}
}

func respondErr(c *fiber.Ctx, err error) error {
	switch {
	case apperr.IsValidation(err):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case apperr.IsNotFound(err):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case apperr.IsBreakerOpen(err):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "gateway unavailable"})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
}

type webhookBody struct {
	Messages []whatsapp.WebhookMessage `json:"messages"`
}

// Webhook ingests a gateway delivery. The response is 200 as long as the
// payload decodes and the instance resolves; per-message failures are logged
// so the gateway never retries a partially applied batch.
func (h *Handler) Webhook(c *fiber.Ctx) error {
	instance := c.Params("instance")
	orgID, err := h.resolver.OrgByInstance(c.Context(), instance)
	if err != nil {
		return respondErr(c, err)
	}
	var body webhookBody
	if err := c.BodyParser(&body); err != nil {
		return respondErr(c, apperr.Validation("malformed payload"))
	}
	metrics.WebhooksReceived.WithLabelValues(orgID).Inc()
	for i := range body.Messages {
		if err := h.processor.Process(c.Context(), orgID, instance, &body.Messages[i]); err != nil {
			metrics.WebhookFailures.WithLabelValues(orgID).Inc()
			h.log.Error("webhook message processing failed",
				zap.String("org", orgID),
				zap.String("waMessageId", body.Messages[i].Key.ID),
				zap.Error(err))
		}
	}
	return c.SendStatus(fiber.StatusOK)
}

func chatKeyFrom(c *fiber.Ctx) (models.ChatKey, error) {
	createdAt, err := time.Parse(time.RFC3339Nano, c.Query("createdAt"))
	if err != nil {
		return models.ChatKey{}, apperr.Validation("createdAt query parameter is required in RFC3339 form")
	}
	return models.ChatKey{ID: c.Params("id"), CreatedAt: createdAt}, nil
}

type assignBody struct {
	AgentID string `json:"agentId"`
}

func (h *Handler) AssignChat(c *fiber.Ctx) error {
	key, err := chatKeyFrom(c)
	if err != nil {
		return respondErr(c, err)
	}
	var body assignBody
	if err := c.BodyParser(&body); err != nil || body.AgentID == "" {
		return respondErr(c, apperr.Validation("agentId is required"))
	}
	chat, err := h.chats.Assign(c.Context(), claimsFrom(c).OrganizationID, key, body.AgentID)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(chat)
}

type transferBody struct {
	ToAgentID      *string `json:"toAgentId"`
	ToDepartmentID *string `json:"toDepartmentId"`
}

func (h *Handler) TransferChat(c *fiber.Ctx) error {
	key, err := chatKeyFrom(c)
	if err != nil {
		return respondErr(c, err)
	}
	var body transferBody
	if err := c.BodyParser(&body); err != nil {
		return respondErr(c, apperr.Validation("malformed payload"))
	}
	chat, err := h.chats.Transfer(c.Context(), claimsFrom(c).OrganizationID, key, service.TransferInput{
		ToAgentID:      body.ToAgentID,
		ToDepartmentID: body.ToDepartmentID,
	})
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(chat)
}

type closeBody struct {
	EndingID *string `json:"endingId"`
}

func (h *Handler) CloseChat(c *fiber.Ctx) error {
	key, err := chatKeyFrom(c)
	if err != nil {
		return respondErr(c, err)
	}
	var body closeBody
	if err := c.BodyParser(&body); err != nil {
		return respondErr(c, apperr.Validation("malformed payload"))
	}
	claims := claimsFrom(c)
	chat, err := h.chats.Close(c.Context(), claims.OrganizationID, key, claims.AgentID, body.EndingID)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(chat)
}

func (h *Handler) ReopenChat(c *fiber.Ctx) error {
	key, err := chatKeyFrom(c)
	if err != nil {
		return respondErr(c, err)
	}
	chat, err := h.chats.Reopen(c.Context(), claimsFrom(c).OrganizationID, key)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(chat)
}

type createMessageBody struct {
	Content            string              `json:"content"`
	Media              *createMessageMedia `json:"media"`
	RepliedToMessageID *string             `json:"repliedToMessageId"`
	TempID             string              `json:"tempId"`
}

// createMessageMedia carries an agent upload; Data arrives base64-encoded.
type createMessageMedia struct {
	FileName string `json:"fileName"`
	MimeType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

func (h *Handler) CreateMessage(c *fiber.Ctx) error {
	key, err := chatKeyFrom(c)
	if err != nil {
		return respondErr(c, err)
	}
	var body createMessageBody
	if err := c.BodyParser(&body); err != nil {
		return respondErr(c, apperr.Validation("malformed payload"))
	}
	claims := claimsFrom(c)
	in := service.CreateMessageInput{
		AgentID:            claims.AgentID,
		Content:            body.Content,
		RepliedToMessageID: body.RepliedToMessageID,
		TempID:             body.TempID,
	}
	if body.Media != nil {
		in.Media = &service.MediaInput{
			FileName: body.Media.FileName,
			MimeType: body.Media.MimeType,
			Data:     body.Media.Data,
		}
	}
	msg, err := h.messages.CreateMessage(c.Context(), claims.OrganizationID, key, in)
	if err != nil {
		return respondErr(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

func messageKeyFrom(c *fiber.Ctx) (models.MessageKey, error) {
	ts, err := time.Parse(time.RFC3339Nano, c.Query("timestamp"))
	if err != nil {
		return models.MessageKey{}, apperr.Validation("timestamp query parameter is required in RFC3339 form")
	}
	return models.MessageKey{ID: c.Params("id"), Timestamp: ts}, nil
}

type editMessageBody struct {
	Content string `json:"content"`
}

func (h *Handler) EditMessage(c *fiber.Ctx) error {
	key, err := messageKeyFrom(c)
	if err != nil {
		return respondErr(c, err)
	}
	var body editMessageBody
	if err := c.BodyParser(&body); err != nil {
		return respondErr(c, apperr.Validation("malformed payload"))
	}
	claims := claimsFrom(c)
	msg, err := h.messages.Edit(c.Context(), claims.OrganizationID, key, claims.AgentID, body.Content)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(msg)
}

func (h *Handler) DeleteMessage(c *fiber.Ctx) error {
	key, err := messageKeyFrom(c)
	if err != nil {
		return respondErr(c, err)
	}
	claims := claimsFrom(c)
	if err := h.messages.Delete(c.Context(), claims.OrganizationID, key, claims.AgentID); err != nil {
		return respondErr(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) MarkChatRead(c *fiber.Ctx) error {
	key, err := chatKeyFrom(c)
	if err != nil {
		return respondErr(c, err)
	}
	claims := claimsFrom(c)
	if err := h.messages.MarkAllAsRead(c.Context(), claims.OrganizationID, key, claims.AgentID); err != nil {
		return respondErr(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type createScheduledBody struct {
	ContentType            string    `json:"contentType"`
	Content                string    `json:"content"`
	QuickReplyID           *string   `json:"quickReplyId"`
	ScheduledAt            time.Time `json:"scheduledAt"`
	CancelOnContactMessage bool      `json:"cancelOnContactMessage"`
	CancelOnAgentMessage   bool      `json:"cancelOnAgentMessage"`
	CancelOnChatClose      bool      `json:"cancelOnChatClose"`
}

func (h *Handler) CreateScheduled(c *fiber.Ctx) error {
	key, err := chatKeyFrom(c)
	if err != nil {
		return respondErr(c, err)
	}
	var body createScheduledBody
	if err := c.BodyParser(&body); err != nil {
		return respondErr(c, apperr.Validation("malformed payload"))
	}
	claims := claimsFrom(c)
	sm, err := h.scheduled.Create(c.Context(), claims.OrganizationID, service.CreateScheduledInput{
		ChatKey:                key,
		ContentType:            models.ScheduledContentType(body.ContentType),
		Content:                body.Content,
		QuickReplyID:           body.QuickReplyID,
		ScheduledAt:            body.ScheduledAt,
		CancelOnContactMessage: body.CancelOnContactMessage,
		CancelOnAgentMessage:   body.CancelOnAgentMessage,
		CancelOnChatClose:      body.CancelOnChatClose,
		AgentID:                claims.AgentID,
	})
	if err != nil {
		return respondErr(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(sm)
}

func (h *Handler) CancelScheduled(c *fiber.Ctx) error {
	claims := claimsFrom(c)
	if err := h.scheduled.Cancel(c.Context(), claims.OrganizationID, c.Params("id")); err != nil {
		return respondErr(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
