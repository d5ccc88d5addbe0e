package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"
)

// record is the persisted form of a Session. Times are epoch milliseconds.
type record struct {
	UUID        *string `json:"uuid"`
	StartTime   *int64  `json:"startTime"`
	EndTime     *int64  `json:"endTime,omitempty"`
	GracePeriod *int64  `json:"sessionExpirationGracePeriod"`
}

// MarshalJSON encodes the session in its persisted record form.
func (s Session) MarshalJSON() ([]byte, error) {
	id := s.ID
	start := s.StartTime.UnixMilli()
	grace := s.GracePeriod.Milliseconds()
	r := record{UUID: &id, StartTime: &start, GracePeriod: &grace}
	if s.Ended() {
		end := s.EndTime.UnixMilli()
		r.EndTime = &end
	}
	return json.Marshal(r)
}

// UnmarshalJSON decodes a persisted record. A missing or null endTime
// yields an active session.
func (s *Session) UnmarshalJSON(data []byte) error {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	switch {
	case r.UUID == nil || *r.UUID == "":
		return errors.New("missing uuid")
	case r.StartTime == nil:
		return errors.New("missing startTime")
	case r.GracePeriod == nil:
		return errors.New("missing sessionExpirationGracePeriod")
	case *r.GracePeriod < 0:
		return errors.New("negative sessionExpirationGracePeriod")
	}

	*s = Session{
		ID:          *r.UUID,
		StartTime:   time.UnixMilli(*r.StartTime),
		GracePeriod: time.Duration(*r.GracePeriod) * time.Millisecond,
	}
	if r.EndTime != nil {
		s.EndTime = time.UnixMilli(*r.EndTime)
	}
	return nil
}

// MarshalSessions encodes sessions as an ordered JSON array.
func MarshalSessions(sessions []Session) ([]byte, error) {
	if sessions == nil {
		sessions = []Session{}
	}
	return json.Marshal(sessions)
}

// UnmarshalSessions decodes a JSON array produced by MarshalSessions.
// An empty blob decodes to no sessions. Malformed input returns a *DecodeError.
func UnmarshalSessions(data []byte) ([]Session, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &DecodeError{Index: -1, Err: err}
	}

	sessions := make([]Session, 0, len(raw))
	for i, msg := range raw {
		var s Session
		if err := json.Unmarshal(msg, &s); err != nil {
			return nil, &DecodeError{Index: i, Err: err}
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}
