package session

import (
	"encoding/json"
	"fmt"
	"time"
)

// roundTripLayout is the sortable form the status endpoint uses when it omits
// the zone designator; such values are taken as UTC.
const roundTripLayout = "2006-01-02T15:04:05.9999999"

// ServerStatus is the body of the warm-up endpoint
type ServerStatus struct {
	Offline        bool
	OfflineMessage string
	ServerUTCTime  time.Time
}

type statusResponse struct {
	Offline        *bool   `json:"Offline"`
	OfflineMessage string  `json:"OffLineMessage"`
	ServerUtcTime  *string `json:"ServerUtcTime"`
}

// ParseServerTime accepts RFC 3339 with any fraction, or the zone-less round
// trip form
func ParseServerTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.ParseInLocation(roundTripLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized server time %q", s)
	}
	return t, nil
}

// DecodeServerStatus parses a warm-up body. Offline is required, and
// ServerUtcTime is required unless the server reports offline.
func DecodeServerStatus(body []byte) (*ServerStatus, error) {
	var r statusResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("failed to decode status: %w", err)
	}
	if r.Offline == nil {
		return nil, fmt.Errorf("status has no Offline field")
	}

	s := &ServerStatus{
		Offline:        *r.Offline,
		OfflineMessage: r.OfflineMessage,
	}
	if s.Offline {
		return s, nil
	}

	if r.ServerUtcTime == nil {
		return nil, fmt.Errorf("status has no ServerUtcTime field")
	}
	t, err := ParseServerTime(*r.ServerUtcTime)
	if err != nil {
		return nil, err
	}
	s.ServerUTCTime = t
	return s, nil
}
