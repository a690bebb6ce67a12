package peerref

import "testing"

func TestParseLink(t *testing.T) {
	cases := []struct {
		link  string
		chat  int64
		msgID int
	}{
		{"t.me/c/1234567890/55", 1234567890, 55},
		{"https://telegram.me/c/42/7", 42, 7},
		{"https://t.me/c/42/7?single", 42, 7},
		{"http://t.me/c/42/0", 42, 0},
		{"T.ME/c/1/2", 1, 2},
		{"HTTPS://Telegram.Me/c/42/7", 42, 7},
	}
	for _, tc := range cases {
		ref, msgID, ok := ParseLink(tc.link)
		if !ok {
			t.Fatalf("ParseLink(%q) not recognized", tc.link)
		}
		if ref.ID != tc.chat || msgID != tc.msgID {
			t.Fatalf("ParseLink(%q) = (%d, %d), want (%d, %d)", tc.link, ref.ID, msgID, tc.chat, tc.msgID)
		}
	}
}

func TestParseLinkUnsupported(t *testing.T) {
	for _, link := range []string{
		"https://t.me/somejoke/1",
		"t.me/c/abc/1",
		"t.me/c/1/abc",
		"t.me/c/99999999999999999999999/1",
		"t.me/c/1/99999999999999999999999",
		"https://t.me/+AbCdEf",
		"https://example.com/c/1/2",
		"",
	} {
		if _, _, ok := ParseLink(link); ok {
			t.Fatalf("expected %q to be unrecognized", link)
		}
	}
}

func TestLinkChatID(t *testing.T) {
	if got := LinkChatID(ID(1234567890)); got != -1001234567890 {
		t.Fatalf("unexpected channel chat id %d", got)
	}
	if got := LinkChatID(ID(-1001234567890)); got != -1001234567890 {
		t.Fatalf("expected canonical id to pass through, got %d", got)
	}
}
