package model

import "time"

// CalloutRecord is the persistent per-callout state kept by the object
// store: the method name and arguments rehydrated when the callout fires.
// The scheduler itself holds only (object, handle).
type CalloutRecord struct {
	ObjectID  uint16    `json:"object_id"`
	Handle    uint16    `json:"handle"`
	Method    string    `json:"method"`
	Args      []any     `json:"args,omitempty"`
	Stored    uint32    `json:"stored"` // stored deadline from admission
	CreatedAt time.Time `json:"created_at"`
}

// CalloutView is the API representation of a pending callout.
type CalloutView struct {
	ObjectID uint16  `json:"object_id"`
	Object   string  `json:"object"`
	Handle   uint16  `json:"handle"`
	Method   string  `json:"method"`
	Left     float64 `json:"left_seconds"`
}

// ScheduleRequest asks the driver to enqueue a callout. DelayMs nil means
// second precision; zero delay fires on the next dispatch.
type ScheduleRequest struct {
	Object   string  `json:"object"`
	Method   string  `json:"method"`
	Args     []any   `json:"args,omitempty"`
	DelaySec int32   `json:"delay_sec"`
	DelayMs  *uint16 `json:"delay_ms,omitempty"`
}

// ScheduleResult reports the handle assigned to a scheduled callout.
type ScheduleResult struct {
	Object string `json:"object"`
	Handle uint16 `json:"handle"`
}
