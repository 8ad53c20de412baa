package rpc

import (
	"bytes"
	"encoding/xml"
	"strings"

	"github.com/antchfx/xmlquery"
)

// parseReply decodes a daemon reply document for the request that
// produced it. The returned string carries the daemon error message when
// the status is not StatusOK.
func parseReply(req Request, data []byte) (Response, Status, string) {
	doc, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, StatusParseError, err.Error()
	}
	reply := xmlquery.FindOne(doc, "//boinc_gui_rpc_reply")
	if reply == nil {
		return nil, StatusParseError, "missing reply element"
	}
	if n := xmlquery.FindOne(reply, "unauthorized"); n != nil {
		return nil, StatusClientError, "unauthorized"
	}

	switch req.(type) {
	case ExchangeVersionsRequest:
		resp := &ExchangeVersionsResponse{}
		return decodePayload(reply, "server_version", &resp.Version, resp)
	case GetCCStatusRequest:
		resp := &CCStatusResponse{}
		return decodePayload(reply, "cc_status", &resp.CCStatus, resp)
	case GetClientStateRequest:
		resp := &ClientStateResponse{}
		return decodePayload(reply, "client_state", &resp.State, resp)
	case GetDiskUsageRequest:
		resp := &DiskUsageResponse{}
		return decodePayload(reply, "disk_usage_summary", &resp.Summary, resp)
	case GetFileTransfersRequest:
		var l struct {
			Transfers []FileTransfer `xml:"file_transfer"`
		}
		resp := &FileTransfersResponse{}
		r, status, msg := decodePayload(reply, "file_transfers", &l, resp)
		resp.Transfers = l.Transfers
		return r, status, msg
	case GetMessagesRequest:
		var l struct {
			Messages []Message `xml:"msg"`
		}
		resp := &MessagesResponse{}
		r, status, msg := decodePayload(reply, "msgs", &l, resp)
		resp.Messages = l.Messages
		return r, status, msg
	case GetNoticesRequest:
		var l struct {
			Notices []Notice `xml:"notice"`
		}
		resp := &NoticesResponse{}
		r, status, msg := decodePayload(reply, "notices", &l, resp)
		resp.Notices = l.Notices
		return r, status, msg
	case GetProjectStatusRequest:
		var l struct {
			Projects []Project `xml:"project"`
		}
		resp := &ProjectStatusResponse{}
		r, status, msg := decodePayload(reply, "projects", &l, resp)
		resp.Projects = l.Projects
		return r, status, msg
	case GetStatisticsRequest:
		var l struct {
			Statistics []ProjectStatistics `xml:"project_statistics"`
		}
		resp := &StatisticsResponse{}
		r, status, msg := decodePayload(reply, "statistics", &l, resp)
		resp.Statistics = l.Statistics
		return r, status, msg
	case GetTasksRequest:
		var l struct {
			Tasks []Task `xml:"result"`
		}
		resp := &TasksResponse{}
		r, status, msg := decodePayload(reply, "results", &l, resp)
		resp.Tasks = l.Tasks
		return r, status, msg
	case GetGlobalPrefsRequest:
		resp := &GlobalPrefsResponse{}
		return decodePayload(reply, "global_preferences", &resp.Preferences, resp)
	default:
		return parseSuccessReply(reply)
	}
}

// decodePayload finds the payload element and unmarshals it into v. resp
// is the typed response wrapping v.
func decodePayload(reply *xmlquery.Node, element string, v interface{}, resp Response) (Response, Status, string) {
	n := xmlquery.FindOne(reply, element)
	if n == nil {
		if _, status, msg := parseSuccessReply(reply); status == StatusClientError {
			return nil, StatusClientError, msg
		}
		return nil, StatusParseError, "missing " + element + " element"
	}
	if err := xml.Unmarshal([]byte(n.OutputXML(true)), v); err != nil {
		return nil, StatusParseError, err.Error()
	}
	return resp, StatusOK, ""
}

// parseSuccessReply decodes the <success/> or <error> reply of the
// state-mutating operations.
func parseSuccessReply(reply *xmlquery.Node) (Response, Status, string) {
	if n := xmlquery.FindOne(reply, "success"); n != nil {
		return &SuccessResponse{Success: true}, StatusOK, ""
	}
	if n := xmlquery.FindOne(reply, "error"); n != nil {
		reason := strings.TrimSpace(n.InnerText())
		return &SuccessResponse{Reason: reason}, StatusClientError, reason
	}
	if n := xmlquery.FindOne(reply, "status"); n != nil {
		reason := strings.TrimSpace(n.InnerText())
		if reason == "0" {
			return &SuccessResponse{Success: true}, StatusOK, ""
		}
		return &SuccessResponse{Reason: reason}, StatusClientError, "status "+reason
	}
	return nil, StatusParseError, "missing success or error element"
}
