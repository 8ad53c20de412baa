package rpc

// Status is the outcome class of one request/response exchange.
type Status int

const (
	// StatusOK means the exchange succeeded and the response is usable.
	StatusOK Status = iota
	// StatusParseError means the daemon reply could not be decoded.
	StatusParseError
	// StatusClientError means the daemon refused or failed the request.
	StatusClientError
	// StatusDisconnected means the connection is gone.
	StatusDisconnected
	// StatusCancelled means the job was dropped before or during
	// execution, during a worker shutdown.
	StatusCancelled
)

var statusToString = map[Status]string{
	StatusOK:           "ok",
	StatusParseError:   "parse error",
	StatusClientError:  "client error",
	StatusDisconnected: "disconnected",
	StatusCancelled:    "cancelled",
}

func (t Status) String() string {
	return statusToString[t]
}
