package cast

import (
	"testing"
	"time"
)

func validCast() Cast {
	return Cast{
		ID:        "0xabc",
		AuthorID:  "fid:42",
		Handle:    "@tester",
		Text:      "hello",
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Likes:     3,
	}
}

func TestValid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Cast)
		want   bool
	}{
		{"well-formed", func(*Cast) {}, true},
		{"empty text ok", func(c *Cast) { c.Text = "" }, true},
		{"zero engagement ok", func(c *Cast) { c.Likes = 0 }, true},
		{"missing id", func(c *Cast) { c.ID = "" }, false},
		{"missing author", func(c *Cast) { c.AuthorID = "" }, false},
		{"zero timestamp", func(c *Cast) { c.Timestamp = time.Time{} }, false},
		{"negative likes", func(c *Cast) { c.Likes = -1 }, false},
		{"negative reposts", func(c *Cast) { c.Reposts = -5 }, false},
	}
	for _, tt := range tests {
		c := validCast()
		tt.mutate(&c)
		if got := c.Valid(); got != tt.want {
			t.Errorf("%s: Valid() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestEngagement(t *testing.T) {
	c := validCast()
	c.Likes, c.Reposts, c.Replies = 10, 4, 2
	if got := c.Engagement(); got != 16 {
		t.Errorf("Engagement() = %d, want 16", got)
	}
}

func TestSanitize(t *testing.T) {
	good := validCast()
	bad := validCast()
	bad.ID = ""

	clean, dropped := Sanitize([]Cast{good, bad, good})
	if dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}
	if len(clean) != 2 {
		t.Errorf("clean batch = %d casts, want 2", len(clean))
	}
	for _, c := range clean {
		if !c.Valid() {
			t.Errorf("sanitized batch still contains invalid cast %+v", c)
		}
	}
}

func TestSanitizeEmpty(t *testing.T) {
	clean, dropped := Sanitize(nil)
	if len(clean) != 0 || dropped != 0 {
		t.Errorf("Sanitize(nil) = %v, %d", clean, dropped)
	}
}

func TestSignalMinParticipants(t *testing.T) {
	tests := []struct {
		kind SignalKind
		want int
	}{
		{KindSynchrony, 2},
		{KindEcho, 2},
		{KindCascade, 1},
	}
	for _, tt := range tests {
		if got := tt.kind.MinParticipants(); got != tt.want {
			t.Errorf("%s.MinParticipants() = %d, want %d", tt.kind, got, tt.want)
		}
	}
}

func TestSignalIsPathological(t *testing.T) {
	s := Signal{Kind: KindEcho, Strength: 0.9, Variance: 0.1, Autocorr: 0.2}

	if !s.IsPathological(0.08, 0.5) {
		t.Error("variance above threshold not flagged")
	}
	if !s.IsPathological(0.5, 0.1) {
		t.Error("autocorrelation above threshold not flagged")
	}
	if s.IsPathological(0.5, 0.5) {
		t.Error("flagged with both statistics under threshold")
	}
}
