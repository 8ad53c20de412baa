package rpc

import "encoding/xml"

type (
	// Version identifies a daemon or client release.
	Version struct {
		Major   int `xml:"major" json:"major"`
		Minor   int `xml:"minor" json:"minor"`
		Release int `xml:"release" json:"release"`
	}

	// CCStatus is the daemon activity summary.
	CCStatus struct {
		TaskSuspendReason    int `xml:"task_suspend_reason" json:"task_suspend_reason"`
		GpuSuspendReason     int `xml:"gpu_suspend_reason" json:"gpu_suspend_reason"`
		NetworkSuspendReason int `xml:"network_suspend_reason" json:"network_suspend_reason"`
		TaskMode             int `xml:"task_mode" json:"task_mode"`
		GpuMode              int `xml:"gpu_mode" json:"gpu_mode"`
		NetworkMode          int `xml:"network_mode" json:"network_mode"`
		TaskModePerm         int `xml:"task_mode_perm" json:"task_mode_perm"`
		GpuModePerm          int `xml:"gpu_mode_perm" json:"gpu_mode_perm"`
		NetworkModePerm      int `xml:"network_mode_perm" json:"network_mode_perm"`
	}

	// HostInfo describes the machine the daemon runs on.
	HostInfo struct {
		DomainName string  `xml:"domain_name" json:"domain_name"`
		IPAddr     string  `xml:"ip_addr" json:"ip_addr"`
		OSName     string  `xml:"os_name" json:"os_name"`
		OSVersion  string  `xml:"os_version" json:"os_version"`
		NCpus      int     `xml:"p_ncpus" json:"p_ncpus"`
		FpOps      float64 `xml:"p_fpops" json:"p_fpops"`
		MemBytes   float64 `xml:"m_nbytes" json:"m_nbytes"`
		DiskTotal  float64 `xml:"d_total" json:"d_total"`
		DiskFree   float64 `xml:"d_free" json:"d_free"`
	}

	// Project is an attached project record.
	Project struct {
		MasterURL          string  `xml:"master_url" json:"master_url"`
		ProjectName        string  `xml:"project_name" json:"project_name"`
		UserName           string  `xml:"user_name" json:"user_name"`
		TeamName           string  `xml:"team_name" json:"team_name"`
		UserTotalCredit    float64 `xml:"user_total_credit" json:"user_total_credit"`
		UserExpavgCredit   float64 `xml:"user_expavg_credit" json:"user_expavg_credit"`
		HostTotalCredit    float64 `xml:"host_total_credit" json:"host_total_credit"`
		HostExpavgCredit   float64 `xml:"host_expavg_credit" json:"host_expavg_credit"`
		ResourceShare      float64 `xml:"resource_share" json:"resource_share"`
		MinRPCTime         float64 `xml:"min_rpc_time" json:"min_rpc_time"`
		Suspended          bool    `xml:"suspended_via_gui" json:"suspended_via_gui"`
		DontRequestWork    bool    `xml:"dont_request_more_work" json:"dont_request_more_work"`
		SchedulerRPCInProg bool    `xml:"scheduler_rpc_in_progress" json:"scheduler_rpc_in_progress"`
	}

	// Task is a workunit task record.
	Task struct {
		Name               string  `xml:"name" json:"name"`
		WuName             string  `xml:"wu_name" json:"wu_name"`
		ProjectURL         string  `xml:"project_url" json:"project_url"`
		ReportDeadline     float64 `xml:"report_deadline" json:"report_deadline"`
		ReceivedTime       float64 `xml:"received_time" json:"received_time"`
		FinalCPUTime       float64 `xml:"final_cpu_time" json:"final_cpu_time"`
		FinalElapsedTime   float64 `xml:"final_elapsed_time" json:"final_elapsed_time"`
		State              int     `xml:"state" json:"state"`
		Suspended          bool        `xml:"suspended_via_gui" json:"suspended_via_gui"`
		EstimatedCPUTime   float64     `xml:"estimated_cpu_time_remaining" json:"estimated_cpu_time_remaining"`
		ActiveTask         *ActiveTask `xml:"active_task" json:"active_task,omitempty"`
	}

	// ActiveTask is the running part of a task record.
	ActiveTask struct {
		ActiveTaskState    int     `xml:"active_task_state" json:"active_task_state"`
		SchedulerState     int     `xml:"scheduler_state" json:"scheduler_state"`
		CheckpointCPUTime  float64 `xml:"checkpoint_cpu_time" json:"checkpoint_cpu_time"`
		CurrentCPUTime     float64 `xml:"current_cpu_time" json:"current_cpu_time"`
		FractionDone       float64 `xml:"fraction_done" json:"fraction_done"`
		ElapsedTime        float64 `xml:"elapsed_time" json:"elapsed_time"`
		WorkingSetSizeSmth float64 `xml:"working_set_size_smoothed" json:"working_set_size_smoothed"`
	}

	// FileTransfer is a pending up or download.
	FileTransfer struct {
		Name       string  `xml:"name" json:"name"`
		ProjectURL string  `xml:"project_url" json:"project_url"`
		Nbytes     float64 `xml:"nbytes" json:"nbytes"`
		Status     int     `xml:"status" json:"status"`
		IsUpload   bool    `xml:"is_upload" json:"is_upload"`
	}

	// Message is one entry of the daemon message stream.
	Message struct {
		Project  string  `xml:"project" json:"project"`
		Priority int     `xml:"pri" json:"pri"`
		Seqno    uint64  `xml:"seqno" json:"seqno"`
		Body     string  `xml:"body" json:"body"`
		Time     float64 `xml:"time" json:"time"`
	}

	// Notice is one entry of the daemon notice stream.
	Notice struct {
		Seqno       uint64  `xml:"seqno" json:"seqno"`
		Title       string  `xml:"title" json:"title"`
		Description string  `xml:"description" json:"description"`
		CreateTime  float64 `xml:"create_time" json:"create_time"`
		Category    string  `xml:"category" json:"category"`
		Link        string  `xml:"link" json:"link"`
		ProjectName string  `xml:"project_name" json:"project_name"`
	}

	// ProjectStatistics is the credit history of one project.
	ProjectStatistics struct {
		MasterURL string      `xml:"master_url" json:"master_url"`
		Daily     []DailyStat `xml:"daily_statistics" json:"daily_statistics"`
	}

	// DailyStat is one sample of a project credit history.
	DailyStat struct {
		Day              float64 `xml:"day" json:"day"`
		UserTotalCredit  float64 `xml:"user_total_credit" json:"user_total_credit"`
		UserExpavgCredit float64 `xml:"user_expavg_credit" json:"user_expavg_credit"`
		HostTotalCredit  float64 `xml:"host_total_credit" json:"host_total_credit"`
		HostExpavgCredit float64 `xml:"host_expavg_credit" json:"host_expavg_credit"`
	}

	// DiskUsageSummary is the per-project disk usage report.
	DiskUsageSummary struct {
		Projects  []ProjectDiskUsage `xml:"project" json:"projects"`
		DiskTotal float64            `xml:"d_total" json:"d_total"`
		DiskFree  float64            `xml:"d_free" json:"d_free"`
		DiskBoinc float64            `xml:"d_boinc" json:"d_boinc"`
	}

	// ProjectDiskUsage is the disk usage of one project.
	ProjectDiskUsage struct {
		MasterURL string  `xml:"master_url" json:"master_url"`
		DiskUsage float64 `xml:"disk_usage" json:"disk_usage"`
	}

	// ClientState is the full daemon state document.
	ClientState struct {
		Version   Version        `xml:"core_client_version" json:"core_client_version"`
		HostInfo  HostInfo       `xml:"host_info" json:"host_info"`
		Projects  []Project      `xml:"project" json:"projects"`
		Tasks     []Task         `xml:"result" json:"tasks"`
		Transfers []FileTransfer `xml:"file_transfer" json:"transfers"`
	}

	// GlobalPreferences is the daemon computing preferences document.
	GlobalPreferences struct {
		XMLName            xml.Name `xml:"global_preferences" json:"-"`
		RunOnBatteries     bool     `xml:"run_on_batteries" json:"run_on_batteries"`
		RunIfUserActive    bool     `xml:"run_if_user_active" json:"run_if_user_active"`
		CPUUsageLimit      float64  `xml:"cpu_usage_limit" json:"cpu_usage_limit"`
		MaxNCpusPct        float64  `xml:"max_ncpus_pct" json:"max_ncpus_pct"`
		DiskMaxUsedGB      float64  `xml:"disk_max_used_gb" json:"disk_max_used_gb"`
		DiskMaxUsedPct     float64  `xml:"disk_max_used_pct" json:"disk_max_used_pct"`
		DiskMinFreeGB      float64  `xml:"disk_min_free_gb" json:"disk_min_free_gb"`
		IdleTimeToRun      float64  `xml:"idle_time_to_run" json:"idle_time_to_run"`
		MaxBytesSecUp      float64  `xml:"max_bytes_sec_up" json:"max_bytes_sec_up"`
		MaxBytesSecDown    float64  `xml:"max_bytes_sec_down" json:"max_bytes_sec_down"`
		NetStartHour       float64  `xml:"net_start_hour" json:"net_start_hour"`
		NetEndHour         float64  `xml:"net_end_hour" json:"net_end_hour"`
		StartHour          float64  `xml:"start_hour" json:"start_hour"`
		EndHour            float64  `xml:"end_hour" json:"end_hour"`
		WorkBufMinDays     float64  `xml:"work_buf_min_days" json:"work_buf_min_days"`
		WorkBufAdditional  float64  `xml:"work_buf_additional_days" json:"work_buf_additional_days"`
	}

	// GlobalPreferencesMask flags which preference fields an update
	// carries. Unset fields keep their current daemon-side value.
	GlobalPreferencesMask struct {
		RunOnBatteries    bool `json:"run_on_batteries"`
		RunIfUserActive   bool `json:"run_if_user_active"`
		CPUUsageLimit     bool `json:"cpu_usage_limit"`
		MaxNCpusPct       bool `json:"max_ncpus_pct"`
		DiskMaxUsedGB     bool `json:"disk_max_used_gb"`
		DiskMaxUsedPct    bool `json:"disk_max_used_pct"`
		DiskMinFreeGB     bool `json:"disk_min_free_gb"`
		IdleTimeToRun     bool `json:"idle_time_to_run"`
		MaxBytesSecUp     bool `json:"max_bytes_sec_up"`
		MaxBytesSecDown   bool `json:"max_bytes_sec_down"`
		NetStartHour      bool `json:"net_start_hour"`
		NetEndHour        bool `json:"net_end_hour"`
		StartHour         bool `json:"start_hour"`
		EndHour           bool `json:"end_hour"`
		WorkBufMinDays    bool `json:"work_buf_min_days"`
		WorkBufAdditional bool `json:"work_buf_additional_days"`
	}
)

// masked returns a copy of t with the fields not flagged in mask zeroed,
// so the daemon keeps its current values for them.
func (t GlobalPreferences) masked(mask GlobalPreferencesMask) GlobalPreferences {
	out := t
	if !mask.RunOnBatteries {
		out.RunOnBatteries = false
	}
	if !mask.RunIfUserActive {
		out.RunIfUserActive = false
	}
	if !mask.CPUUsageLimit {
		out.CPUUsageLimit = 0
	}
	if !mask.MaxNCpusPct {
		out.MaxNCpusPct = 0
	}
	if !mask.DiskMaxUsedGB {
		out.DiskMaxUsedGB = 0
	}
	if !mask.DiskMaxUsedPct {
		out.DiskMaxUsedPct = 0
	}
	if !mask.DiskMinFreeGB {
		out.DiskMinFreeGB = 0
	}
	if !mask.IdleTimeToRun {
		out.IdleTimeToRun = 0
	}
	if !mask.MaxBytesSecUp {
		out.MaxBytesSecUp = 0
	}
	if !mask.MaxBytesSecDown {
		out.MaxBytesSecDown = 0
	}
	if !mask.NetStartHour {
		out.NetStartHour = 0
	}
	if !mask.NetEndHour {
		out.NetEndHour = 0
	}
	if !mask.StartHour {
		out.StartHour = 0
	}
	if !mask.EndHour {
		out.EndHour = 0
	}
	if !mask.WorkBufMinDays {
		out.WorkBufMinDays = 0
	}
	if !mask.WorkBufAdditional {
		out.WorkBufAdditional = 0
	}
	return out
}
