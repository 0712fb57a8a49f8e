package sentinel

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// NewID generates a globally unique, time-sortable UUIDv7 (RFC 9562). Used
// for WebSocket connection ids and spawned child session ids, where the wire
// format is not pinned by the spec.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NewAgentID generates an agent execution identifier of the form
// ag_<timestamp>_<random>, matching the wire format clients observe in
// agent_started / agent_completed broadcasts.
func NewAgentID(now time.Time) string {
	var buf [6]byte
	_, _ = rand.Read(buf[:])
	return "ag_" + formatMillis(now) + "_" + hex.EncodeToString(buf[:])
}

func formatMillis(t time.Time) string {
	return itoa(t.UnixMilli())
}

// itoa avoids pulling in strconv for a single call site; kept trivial and
// allocation-free for the common (positive) case.
func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// NowUnix returns the current time as Unix seconds.
func NowUnix() int64 {
	return time.Now().Unix()
}

// NowMillis returns the current time as Unix milliseconds, the timestamp
// unit used throughout the event and metrics pipeline (§3).
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
