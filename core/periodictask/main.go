package periodictask

import (
	"bytes"
	"time"

	"github.com/goccy/go-json"

	"github.com/opengrid/gridctl/util/xmap"
)

// T is an integer representing a periodic state-refresh task polled
// against a remote compute daemon.
type T int

const (
	// Invalid is for invalid task kinds
	Invalid T = iota
	// CCStatus polls the daemon run mode and activity summary.
	CCStatus
	// ClientState polls the full daemon state document.
	ClientState
	// DiskUsage polls the per-project disk usage.
	DiskUsage
	// FileTransfers polls the pending up/downloads.
	FileTransfers
	// Messages polls the daemon message stream, incrementally by seqno.
	Messages
	// Notices polls the daemon notice stream, incrementally by seqno.
	Notices
	// ProjectStatus polls the attached project records.
	ProjectStatus
	// Statistics polls the per-project credit history.
	Statistics
	// Tasks polls the workunit task records.
	Tasks
)

var (
	toString = map[T]string{
		CCStatus:      "cc_status",
		ClientState:   "client_state",
		DiskUsage:     "disk_usage",
		FileTransfers: "file_transfers",
		Messages:      "messages",
		Notices:       "notices",
		ProjectStatus: "project_status",
		Statistics:    "statistics",
		Tasks:         "tasks",
	}

	toID = map[string]T{
		"cc_status":      CCStatus,
		"client_state":   ClientState,
		"disk_usage":     DiskUsage,
		"file_transfers": FileTransfers,
		"messages":       Messages,
		"notices":        Notices,
		"project_status": ProjectStatus,
		"statistics":     Statistics,
		"tasks":          Tasks,
	}

	defaultIntervals = map[T]time.Duration{
		CCStatus:      1 * time.Second,
		ClientState:   1 * time.Second,
		DiskUsage:     60 * time.Second,
		FileTransfers: 1 * time.Second,
		Messages:      1 * time.Second,
		Notices:       60 * time.Second,
		ProjectStatus: 1 * time.Second,
		Statistics:    60 * time.Second,
		Tasks:         1 * time.Second,
	}
)

// All is the closed enumeration of the periodic task kinds.
var All = []T{
	CCStatus,
	ClientState,
	DiskUsage,
	FileTransfers,
	Messages,
	Notices,
	ProjectStatus,
	Statistics,
	Tasks,
}

// Intervals maps each task kind to its polling interval.
type Intervals map[T]time.Duration

func (t T) String() string {
	return toString[t]
}

// New returns a id from its string representation.
func New(s string) T {
	t, ok := toID[s]
	if ok {
		return t
	}
	return Invalid
}

// DefaultIntervals returns a fresh copy of the default polling interval
// table.
func DefaultIntervals() Intervals {
	m := make(Intervals, len(defaultIntervals))
	for k, v := range defaultIntervals {
		m[k] = v
	}
	return m
}

// MarshalJSON marshals the enum as a quoted json string
func (t T) MarshalJSON() ([]byte, error) {
	buffer := bytes.NewBufferString(`"`)
	buffer.WriteString(toString[t])
	buffer.WriteString(`"`)
	return buffer.Bytes(), nil
}

// UnmarshalJSON unmashals a quoted json string to the enum value
func (t *T) UnmarshalJSON(b []byte) error {
	var j string
	err := json.Unmarshal(b, &j)
	if err != nil {
		return err
	}
	*t = toID[j]
	return nil
}

func Names() []string {
	return xmap.Keys(toID)
}
