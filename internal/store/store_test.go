package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/abelbrown/castwatch/internal/cast"
	"github.com/abelbrown/castwatch/internal/monitor"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleCasts(base time.Time) []cast.Cast {
	return []cast.Cast{
		{ID: "0x1", AuthorID: "fid:1", Handle: "@alice", Text: "first", Timestamp: base, Likes: 2},
		{ID: "0x2", AuthorID: "fid:2", Handle: "@bob", Text: "second", Timestamp: base.Add(time.Minute), Reposts: 1},
	}
}

func TestOpenInMemory(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	defer s.Close()

	if _, err := s.SaveCasts("ch", sampleCasts(time.Now())); err != nil {
		t.Fatalf("save: %v", err)
	}
	n, err := s.CastCount("ch")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Errorf("cast count = %d, want 2", n)
	}
}

func TestSaveCastsUpsert(t *testing.T) {
	s := openTest(t)
	base := time.Now().UTC().Truncate(time.Second)
	batch := sampleCasts(base)

	if _, err := s.SaveCasts("ch", batch); err != nil {
		t.Fatalf("first save: %v", err)
	}

	// Re-fetch with higher engagement on one cast, lower on the other.
	// Counters only ever rise.
	batch[0].Likes = 10
	batch[1].Reposts = 0
	if _, err := s.SaveCasts("ch", batch); err != nil {
		t.Fatalf("second save: %v", err)
	}

	n, err := s.CastCount("ch")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("cast count after upsert = %d, want 2 (no duplicate rows)", n)
	}

	var likes, reposts int
	if err := s.db.QueryRow(`SELECT likes FROM casts WHERE id = ?`, "0x1").Scan(&likes); err != nil {
		t.Fatal(err)
	}
	if likes != 10 {
		t.Errorf("likes = %d, want raised to 10", likes)
	}
	if err := s.db.QueryRow(`SELECT reposts FROM casts WHERE id = ?`, "0x2").Scan(&reposts); err != nil {
		t.Fatal(err)
	}
	if reposts != 1 {
		t.Errorf("reposts = %d, want kept at 1 despite lower re-fetch", reposts)
	}
}

func TestCastCountPerChannel(t *testing.T) {
	s := openTest(t)
	base := time.Now()

	if _, err := s.SaveCasts("one", sampleCasts(base)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SaveCasts("two", []cast.Cast{
		{ID: "0x9", AuthorID: "fid:9", Timestamp: base},
	}); err != nil {
		t.Fatal(err)
	}

	n, err := s.CastCount("two")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("channel two count = %d, want 1", n)
	}
}

func TestAlertRoundTrip(t *testing.T) {
	s := openTest(t)
	now := time.Now().UTC().Truncate(time.Second)

	alerts := []AlertRecord{
		{ID: "a1", Channel: "hot", CreatedAt: now.Add(-time.Minute), Kinds: []string{"echo"}, Severity: 0.9, Variance: 0.12, Autocorr: 0.7, Summary: "first"},
		{ID: "a2", Channel: "hot", CreatedAt: now, Kinds: []string{"synchrony", "echo"}, Severity: 0.6, Suppressed: 3, Summary: "second"},
		{ID: "a3", Channel: "calm", CreatedAt: now.Add(-time.Hour), Kinds: []string{"cascade"}, Severity: 0.4, Summary: "third"},
	}
	for _, a := range alerts {
		if err := s.SaveAlert(a); err != nil {
			t.Fatalf("save alert %s: %v", a.ID, err)
		}
	}

	got, err := s.RecentAlerts(2)
	if err != nil {
		t.Fatalf("recent alerts: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("recent alerts = %d, want 2", len(got))
	}
	if got[0].ID != "a2" {
		t.Errorf("newest alert = %s, want a2", got[0].ID)
	}
	if len(got[0].Kinds) != 2 || got[0].Kinds[0] != "synchrony" {
		t.Errorf("kinds = %v, want [synchrony echo]", got[0].Kinds)
	}
	if got[0].Suppressed != 3 {
		t.Errorf("suppressed = %d, want 3", got[0].Suppressed)
	}

	counts, err := s.AlertCountByChannel()
	if err != nil {
		t.Fatalf("count by channel: %v", err)
	}
	if counts["hot"] != 2 || counts["calm"] != 1 {
		t.Errorf("counts = %v, want hot:2 calm:1", counts)
	}
}

func TestAlertSinkDeliver(t *testing.T) {
	s := openTest(t)
	sink := NewAlertSink(s)

	alert := monitor.Alert{
		ID:       "sink-1",
		Channel:  "hot",
		Time:     time.Now(),
		Kinds:    []cast.SignalKind{cast.KindEcho, monitor.KindTrend},
		Severity: 0.8,
		Summary:  "channel hot pathological",
	}
	if err := sink.Deliver(context.Background(), alert); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	got, err := s.RecentAlerts(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "sink-1" {
		t.Fatalf("stored alerts = %+v, want the delivered one", got)
	}
	if len(got[0].Kinds) != 2 {
		t.Errorf("kinds = %v, want both kinds stored", got[0].Kinds)
	}
}

func TestOpenCreatesTablesIdempotently(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")

	s1, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s1.SaveCasts("ch", sampleCasts(time.Now())); err != nil {
		t.Fatal(err)
	}
	s1.Close()

	// Reopening an existing database keeps its rows.
	s2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	n, err := s2.CastCount("ch")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("cast count after reopen = %d, want 2", n)
	}
}
