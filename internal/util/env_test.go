package util

import (
	"strings"
	"testing"
	"time"
)

func TestEnvHelpers(t *testing.T) {
	t.Setenv("RR_STR", "  value ")
	t.Setenv("RR_BOOL", "true")
	t.Setenv("RR_BAD_BOOL", "maybe")
	t.Setenv("RR_INT", "250")
	t.Setenv("RR_NEG", "-4")
	t.Setenv("RR_DUR", "90s")
	t.Setenv("RR_SECS", "45")
	t.Setenv("RR_CSV", "a, b,, c ")

	if got := Env("RR_STR", "x"); got != "value" {
		t.Errorf("Env = %q", got)
	}
	if got := Env("RR_UNSET", "x"); got != "x" {
		t.Errorf("Env default = %q", got)
	}
	if !BoolEnv("RR_BOOL", false) || !BoolEnv("RR_BAD_BOOL", true) {
		t.Error("BoolEnv")
	}
	if IntEnv("RR_INT", 1) != 250 || IntEnv("RR_NEG", 7) != 7 {
		t.Error("IntEnv")
	}
	if DurationEnv("RR_DUR", 0) != 90*time.Second || DurationEnv("RR_SECS", 0) != 45*time.Second {
		t.Error("DurationEnv")
	}
	if DurationEnv("RR_STR", time.Minute) != time.Minute {
		t.Error("DurationEnv should fall back on garbage")
	}
	if got := strings.Join(CSVEnv("RR_CSV", nil), "|"); got != "a|b|c" {
		t.Errorf("CSVEnv = %q", got)
	}
}

func TestIDs(t *testing.T) {
	a, b := NewJobID(), NewJobID()
	if a == b || len(a) != 36 {
		t.Errorf("unexpected job ids %q %q", a, b)
	}
	if id := NewID("req"); !strings.HasPrefix(id, "req_") {
		t.Errorf("NewID = %q", id)
	}
}
