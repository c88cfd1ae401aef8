package audit

import "time"

// Event is one immutable record of a lifecycle action and its outcome.
// Events are only ever appended; the trail preserves append order.
type Event struct {
	Time   time.Time      `json:"ts"`
	Action string         `json:"action"`
	Status string         `json:"status"`
	Detail map[string]any `json:"detail,omitempty"`
}

// Entry is the persisted JSONL form of an Event, hash-chained so the log
// is tamper-evident. Detail maps marshal with sorted keys, so lines hash
// reproducibly.
type Entry struct {
	Timestamp string         `json:"ts"`
	Action    string         `json:"action"`
	Status    string         `json:"status"`
	Detail    map[string]any `json:"detail,omitempty"`
	PrevHash  string         `json:"prev_hash"`
}

// timeFormat is the on-disk timestamp layout.
const timeFormat = "2006-01-02T15:04:05.000Z"

func toEntry(ev Event) Entry {
	return Entry{
		Timestamp: ev.Time.UTC().Format(timeFormat),
		Action:    ev.Action,
		Status:    ev.Status,
		Detail:    ev.Detail,
	}
}
