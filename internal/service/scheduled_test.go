package service

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/solusinc/manylead-cloud-sub003/internal/apperr"
	"github.com/solusinc/manylead-cloud-sub003/internal/models"
	"github.com/solusinc/manylead-cloud-sub003/internal/repository"
)

func newScheduledFixture() (*repository.Memory, *ScheduledService) {
	mem := repository.NewMemory()
	svc := NewScheduledService(mem.Scheduled(), mem.Chats(), mem, zap.NewNop())
	svc.now = func() time.Time { return testNow }
	svc.newID = sequentialIDs("sched")
	return mem, svc
}

func TestCreateScheduledValidation(t *testing.T) {
	mem, svc := newScheduledFixture()
	chat := seedChat(mem, "chat-1", models.ChatOpen)
	ctx := context.Background()

	valid := CreateScheduledInput{
		ChatKey:     chat.Key(),
		ContentType: models.ScheduledMessageContent,
		Content:     "follow up",
		ScheduledAt: testNow.Add(time.Hour),
		AgentID:     "agent-1",
	}

	cases := []struct {
		name   string
		mutate func(*CreateScheduledInput)
	}{
		{"bad content type", func(in *CreateScheduledInput) { in.ContentType = "reminder" }},
		{"neither content nor quick reply", func(in *CreateScheduledInput) { in.Content = "  " }},
		{"scheduled in the past", func(in *CreateScheduledInput) { in.ScheduledAt = testNow.Add(-time.Minute) }},
		{"scheduled exactly now", func(in *CreateScheduledInput) { in.ScheduledAt = testNow }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := valid
			tc.mutate(&in)
			if _, err := svc.Create(ctx, testOrg, in); !apperr.IsValidation(err) {
				t.Fatalf("want validation error, got %v", err)
			}
		})
	}

	t.Run("unknown quick reply", func(t *testing.T) {
		in := valid
		in.Content = ""
		qr := "missing-qr"
		in.QuickReplyID = &qr
		if _, err := svc.Create(ctx, testOrg, in); !apperr.IsNotFound(err) {
			t.Fatalf("want not found, got %v", err)
		}
	})

	t.Run("valid input persists pending", func(t *testing.T) {
		sm, err := svc.Create(ctx, testOrg, valid)
		if err != nil {
			t.Fatal(err)
		}
		if sm.Status != models.ScheduledPending || sm.ChatID != chat.ID {
			t.Fatalf("scheduled: %+v", sm)
		}
		if !sm.ScheduledAt.Equal(testNow.Add(time.Hour)) {
			t.Fatalf("scheduledAt %v", sm.ScheduledAt)
		}
	})
}

func TestCancelOnlyPending(t *testing.T) {
	mem, svc := newScheduledFixture()
	chat := seedChat(mem, "chat-1", models.ChatOpen)
	ctx := context.Background()

	sm, err := svc.Create(ctx, testOrg, CreateScheduledInput{
		ChatKey:     chat.Key(),
		ContentType: models.ScheduledMessageContent,
		Content:     "follow up",
		ScheduledAt: testNow.Add(time.Hour),
		AgentID:     "agent-1",
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.Cancel(ctx, testOrg, sm.ID); err != nil {
		t.Fatal(err)
	}
	stored, _ := mem.FindScheduledByID(ctx, testOrg, sm.ID)
	if stored.Status != models.ScheduledCancelled || stored.CancellationReason != models.CancelManual {
		t.Fatalf("scheduled: %+v", stored)
	}

	// cancelled is terminal
	if err := svc.Cancel(ctx, testOrg, sm.ID); !apperr.IsValidation(err) {
		t.Fatalf("want validation error, got %v", err)
	}
}

func TestCancelPendingHonorsTriggerFlags(t *testing.T) {
	mem, svc := newScheduledFixture()
	chat := seedChat(mem, "chat-1", models.ChatOpen)
	ctx := context.Background()

	seed := func(id string, onContact, onAgent, onClose bool) {
		_ = mem.InsertScheduled(ctx, testOrg, &models.ScheduledMessage{
			ID: id, ChatID: chat.ID, ChatCreatedAt: chat.CreatedAt,
			ContentType: models.ScheduledMessageContent, Content: "x",
			ScheduledAt: testNow.Add(time.Hour), Status: models.ScheduledPending,
			CancelOnContactMessage: onContact,
			CancelOnAgentMessage:   onAgent,
			CancelOnChatClose:      onClose,
		})
	}
	seed("s-contact", true, false, false)
	seed("s-agent", false, true, false)
	seed("s-close", false, false, true)
	seed("s-none", false, false, false)

	n, err := svc.CancelPending(ctx, testOrg, chat.ID, models.CancelContactMessage)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("cancelled %d", n)
	}
	got, _ := mem.FindScheduledByID(ctx, testOrg, "s-contact")
	if got.Status != models.ScheduledCancelled || got.CancellationReason != models.CancelContactMessage {
		t.Fatalf("s-contact: %+v", got)
	}
	for _, id := range []string{"s-agent", "s-close", "s-none"} {
		got, _ := mem.FindScheduledByID(ctx, testOrg, id)
		if got.Status != models.ScheduledPending {
			t.Fatalf("%s unexpectedly %q", id, got.Status)
		}
	}

	// manual reason cancels regardless of flags
	n, err = svc.CancelPending(ctx, testOrg, chat.ID, models.CancelManual)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("cancelled %d", n)
	}
}
