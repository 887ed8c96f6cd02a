package logevt

import (
	"encoding/json"
	"time"
)

// Event is the canonical structured event emitted by both the coordinator
// and the runtime. Required fields: Timestamp, RunID, Node, EventType,
// Summary. Optional fields use omitempty tags.
type Event struct {
	Seq       uint64          `json:"seq"`
	Timestamp time.Time       `json:"ts"`
	RunID     string          `json:"run_id"`
	Node      string          `json:"node"` // "coordinator" or "runtime"
	EventType string          `json:"event_type"`
	Summary   string          `json:"summary"`
	Tags      []string        `json:"tags,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Event type constants.
const (
	EventBatchSealed        = "batch_sealed"
	EventBatchBroadcast     = "batch_broadcast"
	EventReplicaConnected   = "replica_connected"
	EventReplicaDisconnect  = "replica_disconnected"
	EventReplicaReplayed    = "replica_replayed"
	EventNATOperation       = "nat_operation"
	EventNATPollEvent       = "nat_poll_event"
	EventGuestSpawned       = "guest_spawned"
	EventGuestBlocked       = "guest_blocked"
	EventGuestFinished      = "guest_finished"
	EventGuestQuotaExceeded = "guest_quota_exceeded"
	EventFuelExhausted      = "fuel_exhausted"
	EventRecordDecodeError  = "record_decode_error"
	EventCodecError         = "codec_error"
)

// BatchSealedData is the payload for batch_sealed events.
type BatchSealedData struct {
	Number    uint64 `json:"number"`
	Records   int    `json:"records"`
	Bytes     int    `json:"bytes"`
	ClockNano uint64 `json:"clock_nanos"`
}

// ReplicaEventData is the payload for replica connect/disconnect/replay events.
type ReplicaEventData struct {
	RuntimeID     uint64 `json:"runtime_id"`
	RemoteAddr    string `json:"remote_addr,omitempty"`
	BatchesSent   int    `json:"batches_sent,omitempty"`
	LastProcessed uint64 `json:"last_processed_batch,omitempty"`
}

// NATOperationData is the payload for nat_operation events.
type NATOperationData struct {
	PID      uint64 `json:"pid"`
	Op       string `json:"op"`
	SrcPort  uint16 `json:"src_port"`
	NewPort  uint16 `json:"new_port,omitempty"`
	Accepted bool   `json:"accepted"`
}

// GuestLifecycleData is the payload for guest_spawned/blocked/finished events.
type GuestLifecycleData struct {
	PID          uint64 `json:"pid"`
	BlockReason  string `json:"block_reason,omitempty"`
	FuelRemain   uint64 `json:"fuel_remaining,omitempty"`
	ExitedByQuit bool   `json:"exited_by_quota,omitempty"`
}
