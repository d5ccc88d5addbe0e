package cel

import (
	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/ext"

	"github.com/Sentinel-Gate/sessiontrack/internal/domain/session"
)

// NewSessionEnvironment creates a CEL environment for completed-session filters.
// Variables:
//   - session_id (string)
//   - start_time, end_time (timestamp)
//   - length, grace_period (duration)
//   - length_ms, grace_period_ms (int)
func NewSessionEnvironment() (*cel.Env, error) {
	return cel.NewEnv(
		ext.Strings(),

		cel.Variable("session_id", cel.StringType),
		cel.Variable("start_time", cel.TimestampType),
		cel.Variable("end_time", cel.TimestampType),
		cel.Variable("length", cel.DurationType),
		cel.Variable("length_ms", cel.IntType),
		cel.Variable("grace_period", cel.DurationType),
		cel.Variable("grace_period_ms", cel.IntType),
	)
}

// BuildSessionActivation maps a completed session onto the filter variables.
func BuildSessionActivation(s session.Session) map[string]any {
	length := s.Length(s.EndTime)
	return map[string]any{
		"session_id":      s.ID,
		"start_time":      s.StartTime.UTC(),
		"end_time":        s.EndTime.UTC(),
		"length":          length,
		"length_ms":       length.Milliseconds(),
		"grace_period":    s.GracePeriod,
		"grace_period_ms": s.GracePeriod.Milliseconds(),
	}
}

