package config

import (
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Schedule.BacklogBlock != "BACKLOG" || cfg.Schedule.Quartiles != 4 {
		t.Fatalf("unexpected schedule defaults: %+v", cfg.Schedule)
	}
	d, err := cfg.AutosaveInterval()
	if err != nil || d != 1500*time.Millisecond {
		t.Fatalf("autosave interval %v %v", d, err)
	}
	if !cfg.IsCell("BACKLOG", 0) || cfg.IsCell("BACKLOG", 1) {
		t.Fatalf("backlog sentinel must be quartile 0 only")
	}
	if !cfg.IsCell("ADMIN (2-4PM)", 4) || cfg.IsCell("ADMIN (2-4PM)", 5) || cfg.IsCell("NOPE", 1) {
		t.Fatalf("cell bounds not enforced")
	}
}

func TestRoundTripYAML(t *testing.T) {
	out, err := Default().YAML()
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := FromYAML([]byte(out))
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if got := cfg.BlockNames(); len(got) != 5 || got[0] != "MORNING ROUTINE (5-7AM)" {
		t.Fatalf("unexpected blocks %v", got)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"no blocks": `schedule: {backlog_block: BACKLOG, quartiles: 4}`,
		"collision": `schedule:
  backlog_block: BACKLOG
  quartiles: 4
  time_blocks: [{name: BACKLOG, start: "09:00", end: "10:00"}]`,
		"end before start": `schedule:
  backlog_block: BACKLOG
  quartiles: 4
  time_blocks: [{name: A, start: "10:00", end: "09:00"}]`,
		"bad autosave": `schedule:
  backlog_block: BACKLOG
  quartiles: 4
  time_blocks: [{name: A, start: "09:00", end: "10:00"}]
autosave: {interval: soon}`,
		"webhook without url": `schedule:
  backlog_block: BACKLOG
  quartiles: 4
  time_blocks: [{name: A, start: "09:00", end: "10:00"}]
webhooks: [{events: [task.created]}]`,
		"not yaml": `schedule: [`,
	}
	for name, raw := range cases {
		if _, err := FromYAML([]byte(raw)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestWebhookConfigParsed(t *testing.T) {
	raw := GenerateDefault() + `
webhooks:
  - url: http://localhost:9000/hook
    events: [task.completed]
    secret: s3cret
    timeout_seconds: 3
`
	cfg, err := FromYAML([]byte(raw))
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Webhooks) != 1 || cfg.Webhooks[0].Events[0] != "task.completed" || cfg.Webhooks[0].Enabled != nil {
		t.Fatalf("unexpected webhooks %+v", cfg.Webhooks)
	}
}
