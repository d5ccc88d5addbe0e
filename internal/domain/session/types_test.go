package session

import (
	"testing"
	"time"
)

var t0 = time.UnixMilli(1_700_000_000_000)

func at(ms int64) time.Time {
	return t0.Add(time.Duration(ms) * time.Millisecond)
}

func TestNew(t *testing.T) {
	s := New(0, at(0))

	if s.ID == "" {
		t.Error("New() ID is empty")
	}
	if len(s.ID) != 36 {
		t.Errorf("New() ID len = %d, want 36", len(s.ID))
	}
	if !s.StartTime.Equal(at(0)) {
		t.Errorf("StartTime = %v, want %v", s.StartTime, at(0))
	}
	if s.Ended() {
		t.Error("new session should not be ended")
	}
	if s.GracePeriod != DefaultGracePeriod {
		t.Errorf("GracePeriod = %v, want %v", s.GracePeriod, DefaultGracePeriod)
	}
}

func TestNew_UniqueIDs(t *testing.T) {
	ids := make(map[string]bool)
	for i := 0; i < 100; i++ {
		s := New(0, at(0))
		if ids[s.ID] {
			t.Fatalf("New() generated duplicate ID: %s", s.ID)
		}
		ids[s.ID] = true
	}
}

func TestNew_TruncatesToMillis(t *testing.T) {
	s := New(time.Second, at(0).Add(999*time.Microsecond))
	if !s.StartTime.Equal(at(0)) {
		t.Errorf("StartTime = %v, want %v", s.StartTime, at(0))
	}
}

func TestSession_IsExpired(t *testing.T) {
	tests := []struct {
		name string
		end  int64 // -1 = active
		now  int64
		want bool
	}{
		{name: "active never expires", end: -1, now: 1_000_000, want: false},
		{name: "within grace", end: 1000, now: 10_000, want: false},
		{name: "exactly at boundary", end: 1000, now: 16_000, want: false},
		{name: "one ms past boundary", end: 1000, now: 16_001, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(15*time.Second, at(0))
			if tt.end >= 0 {
				s.End(at(tt.end))
			}
			if got := s.IsExpired(at(tt.now)); got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSession_EndAndResume(t *testing.T) {
	s := New(15*time.Second, at(0))

	s.End(at(1000))
	if !s.EndTime.Equal(at(1000)) {
		t.Errorf("EndTime = %v, want %v", s.EndTime, at(1000))
	}

	s.End(at(2000))
	if !s.EndTime.Equal(at(2000)) {
		t.Errorf("second End() EndTime = %v, want %v", s.EndTime, at(2000))
	}

	s.Resume()
	if s.Ended() {
		t.Error("Resume() should clear EndTime")
	}
	if !s.StartTime.Equal(at(0)) {
		t.Errorf("Resume() changed StartTime to %v", s.StartTime)
	}
}

func TestSession_Length(t *testing.T) {
	s := New(15*time.Second, at(0))

	if got := s.Length(at(5000)); got != 5*time.Second {
		t.Errorf("active Length() = %v, want 5s", got)
	}

	s.End(at(12_000))
	if got := s.Length(at(50_000)); got != 12*time.Second {
		t.Errorf("ended Length() = %v, want 12s", got)
	}
}

func TestSession_State(t *testing.T) {
	s := New(15*time.Second, at(0))
	if got := s.State(at(1)); got != StateActive {
		t.Errorf("State() = %q, want %q", got, StateActive)
	}

	s.End(at(1000))
	if got := s.State(at(2000)); got != StateEnded {
		t.Errorf("State() = %q, want %q", got, StateEnded)
	}
	if got := s.State(at(20_000)); got != StateExpired {
		t.Errorf("State() = %q, want %q", got, StateExpired)
	}
}
