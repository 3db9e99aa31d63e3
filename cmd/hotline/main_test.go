package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/birddigital/hotline-ivr/pkg/config"
	"github.com/birddigital/hotline-ivr/pkg/messaging"
	"github.com/birddigital/hotline-ivr/pkg/store"
)

func testContext(vars map[string]string) *commandContext {
	return &commandContext{loadConfig: func() (config.Config, error) {
		return config.LoadFrom(vars)
	}}
}

func execute(t *testing.T, vars map[string]string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommandWith(testContext(vars))
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

var callerIDs = map[string]string{
	"CALLER_ID":    "+33100000000",
	"CALLER_ID_US": "+12020000000",
}

func TestNormalizeCommandTable(t *testing.T) {
	out, err := execute(t, callerIDs, "normalize", "06 12 34 56 78")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	for _, want := range []string{"+33612345678", "+33100000000", "valid"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestNormalizeCommandJSON(t *testing.T) {
	out, err := execute(t, callerIDs, "normalize", "--json", "212-555-0100")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}

	var got struct {
		E164     string `json:"e164"`
		CallerID string `json:"caller_id"`
		Valid    bool   `json:"valid"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if got.E164 != "+12125550100" || got.CallerID != "+12020000000" || !got.Valid {
		t.Errorf("result = %+v", got)
	}
}

func TestNormalizeCommandRequiresArgument(t *testing.T) {
	if _, err := execute(t, callerIDs, "normalize"); err == nil {
		t.Fatal("expected an error without a number")
	}
}

func TestServeRejectsIncompleteConfig(t *testing.T) {
	_, err := execute(t, map[string]string{}, "serve")
	if err == nil {
		t.Fatal("expected a configuration error")
	}
	if !strings.Contains(err.Error(), "SIGNALWIRE_PROJECT_ID is required") {
		t.Errorf("error = %v", err)
	}
}

func TestLogCommandRequiresDatabase(t *testing.T) {
	_, err := execute(t, map[string]string{}, "log")
	if err == nil || !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Errorf("error = %v", err)
	}
}

func TestPrintLog(t *testing.T) {
	mem := store.NewMemory()
	at := time.Date(2026, 3, 10, 15, 4, 5, 0, time.UTC)
	mem.Append(context.Background(), messaging.LogRecord{
		Type: messaging.KindInboundSMS, Direction: messaging.DirectionInbound,
		From: "+33611111111", To: "+33100000000", Content: "hello\nthere", Timestamp: at,
	})

	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	var out bytes.Buffer
	cmd.SetOut(&out)

	if err := printLog(cmd, mem, 10, false); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"2026-03-10 15:04:05", "sms", "+33611111111", "hello there"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestPrintLogEmpty(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	var out bytes.Buffer
	cmd.SetOut(&out)

	if err := printLog(cmd, store.NewMemory(), 10, true); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out.String()) != "[]" {
		t.Errorf("output = %q", out.String())
	}
}
