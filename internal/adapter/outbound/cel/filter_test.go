package cel

import (
	"strings"
	"testing"
	"time"

	"github.com/Sentinel-Gate/sessiontrack/internal/domain/session"
)

func testSession() session.Session {
	return session.Session{
		ID:          "7f1c2d4e-0000-4000-8000-000000000001",
		StartTime:   time.UnixMilli(1_700_000_000_000),
		EndTime:     time.UnixMilli(1_700_000_012_000),
		GracePeriod: 15 * time.Second,
	}
}

func TestNewSessionEnvironment(t *testing.T) {
	env, err := NewSessionEnvironment()
	if err != nil {
		t.Fatalf("NewSessionEnvironment() error: %v", err)
	}
	if env == nil {
		t.Fatal("NewSessionEnvironment() returned nil")
	}
}

func TestSessionFilter_Match(t *testing.T) {
	tests := []struct {
		name string
		expr string
		want bool
	}{
		{"length above threshold", `length_ms >= 10000`, true},
		{"length below threshold", `length_ms < 10000`, false},
		{"duration comparison", `length > duration("5s")`, true},
		{"grace period", `grace_period_ms == 15000`, true},
		{"grace period duration", `grace_period == duration("15s")`, true},
		{"id prefix", `session_id.startsWith("7f1c")`, true},
		{"end after start", `end_time > start_time`, true},
		{"timestamp arithmetic", `end_time - start_time == duration("12s")`, true},
		{"string extension", `session_id.upperAscii().startsWith("7F1C")`, true},
		{"literal false", `false`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := CompileSessionFilter(tt.expr)
			if err != nil {
				t.Fatalf("CompileSessionFilter(%q) error: %v", tt.expr, err)
			}
			got, err := f.Match(testSession())
			if err != nil {
				t.Fatalf("Match() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Match() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCompileSessionFilter_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		wantErr string
	}{
		{"empty", "", "empty"},
		{"too long", strings.Repeat("a", maxExpressionLength+1), "too long"},
		{"too deep", strings.Repeat("(", maxNestingDepth+1) + "true" + strings.Repeat(")", maxNestingDepth+1), "nesting too deep"},
		{"syntax error", `length_ms >=`, "compilation failed"},
		{"unknown variable", `tool_name == "x"`, "compilation failed"},
		{"non-bool result", `length_ms + 1`, "must return bool"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileSessionFilter(tt.expr)
			if err == nil {
				t.Fatalf("CompileSessionFilter(%q) expected error", tt.expr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestSessionFilter_String(t *testing.T) {
	f, err := CompileSessionFilter(`length_ms > 0`)
	if err != nil {
		t.Fatal(err)
	}
	if f.String() != `length_ms > 0` {
		t.Errorf("String() = %q", f.String())
	}
}

func TestBuildSessionActivation(t *testing.T) {
	act := BuildSessionActivation(testSession())

	if act["length_ms"] != int64(12000) {
		t.Errorf("length_ms = %v, want 12000", act["length_ms"])
	}
	if act["grace_period_ms"] != int64(15000) {
		t.Errorf("grace_period_ms = %v, want 15000", act["grace_period_ms"])
	}
	if act["length"] != 12*time.Second {
		t.Errorf("length = %v, want 12s", act["length"])
	}
}
