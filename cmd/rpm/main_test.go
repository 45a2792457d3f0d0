package main

import (
	"strings"
	"testing"

	"rpm/internal/config"
)

func TestResolveBlock(t *testing.T) {
	cfg := config.Default()
	cases := []struct {
		in, want string
		wantErr  bool
	}{
		{in: "DEEP WORK (11AM-1PM)", want: "DEEP WORK (11AM-1PM)"},
		{in: "deep", want: "DEEP WORK (11AM-1PM)"},
		{in: "BACKLOG", want: "BACKLOG"},
		{in: "P", want: "PERSONAL (6-8PM)"},
		{in: "nope", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tc := range cases {
		got, err := resolveBlock(cfg, tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%q: expected error, got %q", tc.in, got)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("%q: got %q, %v; want %q", tc.in, got, err, tc.want)
		}
	}
}

func TestTaskPatchOnlyChangedFlags(t *testing.T) {
	cmd := taskUpdateCmd()
	if err := cmd.Flags().Parse([]string{"--status", "completed", "--due", "", "--progress", "40"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	var f taskFlags
	f.status, f.progress = "completed", 40
	p := f.patch(cmd)
	if p.Status == nil || *p.Status != "completed" {
		t.Fatalf("status not patched: %+v", p)
	}
	if p.DueDate == nil || *p.DueDate != "" {
		t.Fatalf("empty --due should clear the date: %+v", p.DueDate)
	}
	if p.Progress == nil || *p.Progress != 40 {
		t.Fatalf("progress not patched: %+v", p.Progress)
	}
	if p.Name != nil || p.Priority != nil || p.DependsOn != nil {
		t.Fatalf("unset flags leaked into patch: %+v", p)
	}
}

func TestRecurringPatchActiveFlag(t *testing.T) {
	cmd := recurringUpdateCmd()
	if err := cmd.Flags().Parse([]string{"--active=false"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	f := recurringFlags{active: false}
	p := f.patch(cmd)
	if p.IsActive == nil || *p.IsActive {
		t.Fatalf("expected is_active=false, got %+v", p.IsActive)
	}
	if p.TimeBlock != nil || p.Quarter != nil || p.ClearQuarter {
		t.Fatalf("unexpected fields: %+v", p)
	}
}

func TestImportText(t *testing.T) {
	got, err := importText("", []string{"call", "mom"}, strings.NewReader("ignored"))
	if err != nil || got != "call mom" {
		t.Fatalf("args: %q %v", got, err)
	}
	got, err = importText("", nil, strings.NewReader("from stdin"))
	if err != nil || got != "from stdin" {
		t.Fatalf("stdin: %q %v", got, err)
	}
	if _, err := importText("", nil, strings.NewReader("  \n")); err == nil {
		t.Fatalf("expected error for blank text")
	}
}
