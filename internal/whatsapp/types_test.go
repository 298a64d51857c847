package whatsapp

import "testing"

func TestPhoneFromJid(t *testing.T) {
	cases := []struct {
		jid, alt, want string
	}{
		{"5511999999999@s.whatsapp.net", "", "5511999999999"},
		{"12345@lid", "5511888888888@s.whatsapp.net", "5511888888888"},
		{"12345@lid", "", ""},
		{"123456789@g.us", "", ""},
		{"garbage", "", ""},
	}
	for _, c := range cases {
		if got := PhoneFromJid(c.jid, c.alt); got != c.want {
			t.Errorf("PhoneFromJid(%q, %q) = %q, want %q", c.jid, c.alt, got, c.want)
		}
	}
}

func TestIsGroup(t *testing.T) {
	if !IsGroup("123@g.us") {
		t.Fatal("group jid not detected")
	}
	if IsGroup("123@s.whatsapp.net") {
		t.Fatal("user jid flagged as group")
	}
}

func TestWebhookTimestamp(t *testing.T) {
	wm := WebhookMessage{MessageTimestamp: 1700000000}
	got := wm.Timestamp()
	if got.Unix() != 1700000000 || got.Location().String() != "UTC" {
		t.Fatalf("got %v", got)
	}
}
