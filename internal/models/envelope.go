package models

// BusEnvelope wraps every message on the bus. seq is strictly monotonic
// within a single publisher (source); consumers must tolerate gaps since
// the low-latency transport is lossy.
type BusEnvelope struct {
	Seq         uint64 `json:"seq"`
	TimestampMs int64  `json:"timestamp_ms"`
	Source      string `json:"source"`
	Topic       string `json:"topic"`
	Payload     []byte `json:"payload"` // typed sum, decoded by the topic's consumer
}
