package rpc

import (
	"bytes"
	"encoding/xml"
	"fmt"

	"github.com/pkg/errors"
)

type (
	// Request is a tagged value describing one daemon operation.
	Request interface {
		// Op returns the daemon operation name, which is also the
		// request element name on the wire.
		Op() string

		// Body returns the inner XML of the request element. An empty
		// body requests the self-closed element form.
		Body() (string, error)
	}
)

// RunMode is the daemon activity mode for tasks, gpu or network.
type RunMode int

const (
	RunModeInvalid RunMode = iota
	RunModeAlways
	RunModeAuto
	RunModeNever
	RunModeRestore
)

var runModeToString = map[RunMode]string{
	RunModeAlways:  "always",
	RunModeAuto:    "auto",
	RunModeNever:   "never",
	RunModeRestore: "restore",
}

var runModeToID = map[string]RunMode{
	"always":  RunModeAlways,
	"auto":    RunModeAuto,
	"never":   RunModeNever,
	"restore": RunModeRestore,
}

func (t RunMode) String() string {
	return runModeToString[t]
}

// NewRunMode returns a mode from its string representation.
func NewRunMode(s string) RunMode {
	t, ok := runModeToID[s]
	if ok {
		return t
	}
	return RunModeInvalid
}

// FileTransferOp is an operation on a pending file transfer.
type FileTransferOp int

const (
	FileTransferOpInvalid FileTransferOp = iota
	FileTransferRetry
	FileTransferAbort
)

var fileTransferOpToOp = map[FileTransferOp]string{
	FileTransferRetry: "retry_file_transfer",
	FileTransferAbort: "abort_file_transfer",
}

// ProjectOp is an operation on an attached project.
type ProjectOp int

const (
	ProjectOpInvalid ProjectOp = iota
	ProjectReset
	ProjectDetach
	ProjectUpdate
	ProjectSuspend
	ProjectResume
	ProjectNoMoreWork
	ProjectAllowMoreWork
)

var projectOpToOp = map[ProjectOp]string{
	ProjectReset:         "project_reset",
	ProjectDetach:        "project_detach",
	ProjectUpdate:        "project_update",
	ProjectSuspend:       "project_suspend",
	ProjectResume:        "project_resume",
	ProjectNoMoreWork:    "project_nomorework",
	ProjectAllowMoreWork: "project_allowmorework",
}

// TaskOp is an operation on a workunit task.
type TaskOp int

const (
	TaskOpInvalid TaskOp = iota
	TaskAbort
	TaskSuspend
	TaskResume
)

var taskOpToOp = map[TaskOp]string{
	TaskAbort:   "abort_result",
	TaskSuspend: "suspend_result",
	TaskResume:  "resume_result",
}

// PrefsMode selects which global preferences document to load.
type PrefsMode int

const (
	PrefsModeInvalid PrefsMode = iota
	PrefsFile
	PrefsWorking
	PrefsOverride
)

var prefsModeToOp = map[PrefsMode]string{
	PrefsFile:     "get_global_prefs_file",
	PrefsWorking:  "get_global_prefs_working",
	PrefsOverride: "get_global_prefs_override",
}

type (
	ExchangeVersionsRequest struct {
		Version Version
	}

	GetCCStatusRequest      struct{}
	GetClientStateRequest   struct{}
	GetDiskUsageRequest     struct{}
	GetFileTransfersRequest struct{}

	GetMessagesRequest struct {
		Seqno uint64
	}

	GetNoticesRequest struct {
		Seqno uint64
	}

	GetProjectStatusRequest struct{}
	GetStatisticsRequest    struct{}

	GetTasksRequest struct {
		ActiveOnly bool
	}

	FileTransferOpRequest struct {
		FileTransferOp FileTransferOp
		MasterURL      string
		Filename       string
	}

	ProjectOpRequest struct {
		ProjectOp ProjectOp
		MasterURL string
	}

	TaskOpRequest struct {
		TaskOp    TaskOp
		MasterURL string
		Name      string
	}

	GetGlobalPrefsRequest struct {
		Mode PrefsMode
	}

	SetGlobalPrefsRequest struct {
		Preferences GlobalPreferences
		Mask        GlobalPreferencesMask
	}

	ReadGlobalPrefsOverrideRequest struct{}

	SetRunModeRequest struct {
		Mode RunMode
		// Duration in seconds; 0 makes the mode permanent.
		Duration float64
	}

	SetGpuModeRequest struct {
		Mode     RunMode
		Duration float64
	}

	SetNetworkModeRequest struct {
		Mode     RunMode
		Duration float64
	}
)

func (t ExchangeVersionsRequest) Op() string { return "exchange_versions" }

func (t ExchangeVersionsRequest) Body() (string, error) {
	return fmt.Sprintf("<major>%d</major><minor>%d</minor><release>%d</release>",
		t.Version.Major, t.Version.Minor, t.Version.Release), nil
}

func (t GetCCStatusRequest) Op() string { return "get_cc_status" }

func (t GetCCStatusRequest) Body() (string, error) { return "", nil }

func (t GetClientStateRequest) Op() string { return "get_state" }

func (t GetClientStateRequest) Body() (string, error) { return "", nil }

func (t GetDiskUsageRequest) Op() string { return "get_disk_usage" }

func (t GetDiskUsageRequest) Body() (string, error) { return "", nil }

func (t GetFileTransfersRequest) Op() string { return "get_file_transfers" }

func (t GetFileTransfersRequest) Body() (string, error) { return "", nil }

func (t GetMessagesRequest) Op() string { return "get_messages" }

func (t GetMessagesRequest) Body() (string, error) {
	return fmt.Sprintf("<seqno>%d</seqno>", t.Seqno), nil
}

func (t GetNoticesRequest) Op() string { return "get_notices" }

func (t GetNoticesRequest) Body() (string, error) {
	return fmt.Sprintf("<seqno>%d</seqno>", t.Seqno), nil
}

func (t GetProjectStatusRequest) Op() string { return "get_project_status" }

func (t GetProjectStatusRequest) Body() (string, error) { return "", nil }

func (t GetStatisticsRequest) Op() string { return "get_statistics" }

func (t GetStatisticsRequest) Body() (string, error) { return "", nil }

func (t GetTasksRequest) Op() string { return "get_results" }

func (t GetTasksRequest) Body() (string, error) {
	return fmt.Sprintf("<active_only>%d</active_only>", boolToInt(t.ActiveOnly)), nil
}

func (t FileTransferOpRequest) Op() string {
	return fileTransferOpToOp[t.FileTransferOp]
}

func (t FileTransferOpRequest) Body() (string, error) {
	if t.Op() == "" {
		return "", errors.New("invalid file transfer operation")
	}
	return fmt.Sprintf("<project_url>%s</project_url><filename>%s</filename>",
		xmlEscape(t.MasterURL), xmlEscape(t.Filename)), nil
}

func (t ProjectOpRequest) Op() string {
	return projectOpToOp[t.ProjectOp]
}

func (t ProjectOpRequest) Body() (string, error) {
	if t.Op() == "" {
		return "", errors.New("invalid project operation")
	}
	return fmt.Sprintf("<project_url>%s</project_url>", xmlEscape(t.MasterURL)), nil
}

func (t TaskOpRequest) Op() string {
	return taskOpToOp[t.TaskOp]
}

func (t TaskOpRequest) Body() (string, error) {
	if t.Op() == "" {
		return "", errors.New("invalid task operation")
	}
	return fmt.Sprintf("<project_url>%s</project_url><name>%s</name>",
		xmlEscape(t.MasterURL), xmlEscape(t.Name)), nil
}

func (t GetGlobalPrefsRequest) Op() string {
	op, ok := prefsModeToOp[t.Mode]
	if !ok {
		return ""
	}
	return op
}

func (t GetGlobalPrefsRequest) Body() (string, error) {
	if t.Op() == "" {
		return "", errors.New("invalid preferences mode")
	}
	return "", nil
}

func (t SetGlobalPrefsRequest) Op() string { return "set_global_prefs_override" }

func (t SetGlobalPrefsRequest) Body() (string, error) {
	b, err := xml.Marshal(t.Preferences.masked(t.Mask))
	if err != nil {
		return "", errors.Wrap(err, "encode global preferences")
	}
	return string(b), nil
}

func (t ReadGlobalPrefsOverrideRequest) Op() string { return "read_global_prefs_override" }

func (t ReadGlobalPrefsOverrideRequest) Body() (string, error) { return "", nil }

func (t SetRunModeRequest) Op() string { return "set_run_mode" }

func (t SetRunModeRequest) Body() (string, error) {
	return runModeBody(t.Mode, t.Duration)
}

func (t SetGpuModeRequest) Op() string { return "set_gpu_mode" }

func (t SetGpuModeRequest) Body() (string, error) {
	return runModeBody(t.Mode, t.Duration)
}

func (t SetNetworkModeRequest) Op() string { return "set_network_mode" }

func (t SetNetworkModeRequest) Body() (string, error) {
	return runModeBody(t.Mode, t.Duration)
}

func runModeBody(mode RunMode, duration float64) (string, error) {
	s, ok := runModeToString[mode]
	if !ok {
		return "", errors.New("invalid run mode")
	}
	return fmt.Sprintf("<%s/><duration>%g</duration>", s, duration), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func xmlEscape(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}
