package store_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/birddigital/hotline-ivr/pkg/ivr"
	"github.com/birddigital/hotline-ivr/pkg/messaging"
	"github.com/birddigital/hotline-ivr/pkg/store"
)

func openTestPostgres(t *testing.T) *store.Postgres {
	t.Helper()
	url := os.Getenv("HOTLINE_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("HOTLINE_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pg, err := store.OpenPostgres(ctx, url)
	if err != nil {
		t.Fatalf("OpenPostgres: %v", err)
	}
	t.Cleanup(pg.Close)
	if err := pg.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return pg
}

func TestPostgresSessionRoundTrip(t *testing.T) {
	pg := openTestPostgres(t)
	ctx := context.Background()
	callID := "CA-" + uuid.NewString()

	if _, err := pg.LoadSession(ctx, callID); !errors.Is(err, ivr.ErrSessionNotFound) {
		t.Fatalf("LoadSession(unknown) err = %v", err)
	}

	s := ivr.NewSession(callID, "+33611111111", time.Now().UTC().Truncate(time.Microsecond))
	if err := pg.SaveSession(ctx, s); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	s.Language = ivr.French
	s.State = ivr.StateAwaitingMenuChoice
	if err := pg.SaveSession(ctx, s); err != nil {
		t.Fatalf("SaveSession update: %v", err)
	}

	got, err := pg.LoadSession(ctx, callID)
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if got.Language != ivr.French || got.State != ivr.StateAwaitingMenuChoice || got.Caller != s.Caller {
		t.Fatalf("session = %+v", got)
	}
}

func TestPostgresClaimAndLog(t *testing.T) {
	pg := openTestPostgres(t)
	ctx := context.Background()
	key := "recording:" + uuid.NewString()

	first, err := pg.ClaimTranscription(ctx, key)
	if err != nil || !first {
		t.Fatalf("first claim = %v, %v", first, err)
	}
	if again, _ := pg.ClaimTranscription(ctx, key); again {
		t.Fatal("duplicate claim succeeded")
	}

	rec := messaging.LogRecord{
		ID: uuid.New(), Provider: messaging.ProviderSignalWire, Type: messaging.KindVoicemailReady,
		Direction: messaging.DirectionInbound, From: "+33611111111", Content: "hello",
		Timestamp: time.Now().Add(time.Hour).UTC().Truncate(time.Microsecond),
	}
	if err := pg.Append(ctx, rec); err != nil {
		t.Fatalf("Append: %v", err)
	}
	recent, err := pg.Recent(ctx, 1)
	if err != nil || len(recent) != 1 || recent[0].ID != rec.ID {
		t.Fatalf("Recent = %+v, %v", recent, err)
	}
}

func TestPostgresPurgeKeepsClaimsApart(t *testing.T) {
	pg := openTestPostgres(t)
	ctx := context.Background()
	key := "recording:" + uuid.NewString()
	if first, err := pg.ClaimTranscription(ctx, key); err != nil || !first {
		t.Fatalf("claim = %v, %v", first, err)
	}
	later := time.Now().Add(time.Hour)

	if _, err := pg.PurgeSessions(ctx, later); err != nil {
		t.Fatalf("PurgeSessions: %v", err)
	}
	if again, _ := pg.ClaimTranscription(ctx, key); again {
		t.Fatal("PurgeSessions dropped a transcription claim")
	}
	if _, err := pg.PurgeClaims(ctx, later); err != nil {
		t.Fatalf("PurgeClaims: %v", err)
	}
	if again, _ := pg.ClaimTranscription(ctx, key); !again {
		t.Fatal("claim survived PurgeClaims")
	}
}
