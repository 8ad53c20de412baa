// Package rpc implements the request/response protocol spoken by the
// remote compute daemons.
//
// A Client carries one long-lived TCP connection with at most one
// exchange in flight. Requests are XML documents wrapped in a
// <boinc_gui_rpc_request> envelope, replies are terminated by a 0x03
// byte. Authorization is a md5 challenge-response handshake.
package rpc

import (
	"bufio"
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/antchfx/xmlquery"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/opengrid/gridctl/util/funcopt"
)

type (
	// Client is the connection capability consumed by the host workers.
	Client interface {
		// Connect dials the daemon. It may block for seconds on an
		// unresponsive address.
		Connect(ctx context.Context, url string, port int) error

		// Authorize runs the password handshake on the connection.
		Authorize(ctx context.Context, password string) error

		// Execute runs one request/response exchange.
		Execute(ctx context.Context, req Request) (Response, Status)

		// Close tears down the connection.
		Close() error
	}

	// DialClient is the TCP implementation of Client.
	DialClient struct {
		mu      sync.Mutex
		conn    net.Conn
		rd      *bufio.Reader
		log     zerolog.Logger
		timeout time.Duration
	}
)

const (
	// replyTerminator ends every daemon reply.
	replyTerminator = byte(0x03)

	// DefaultPort is the port daemons listen on when not configured
	// otherwise.
	DefaultPort = 31416
)

var clientVersion = Version{Major: 7, Minor: 20, Release: 0}

// NewDialClient allocates a DialClient.
func NewDialClient(opts ...funcopt.O) *DialClient {
	t := &DialClient{
		log:     log.Logger.With().Str("name", "rpc").Logger(),
		timeout: 30 * time.Second,
	}
	if err := funcopt.Apply(t, opts...); err != nil {
		t.log.Error().Err(err).Msg("rpc client funcopt.Apply")
		return nil
	}
	return t
}

// WithLogger sets the client logger.
func WithLogger(l zerolog.Logger) funcopt.O {
	return funcopt.F(func(i interface{}) error {
		t := i.(*DialClient)
		t.log = l
		return nil
	})
}

// WithTimeout sets the dial and exchange timeout.
func WithTimeout(d time.Duration) funcopt.O {
	return funcopt.F(func(i interface{}) error {
		t := i.(*DialClient)
		t.timeout = d
		return nil
	})
}

func (t *DialClient) Connect(ctx context.Context, url string, port int) error {
	if port == 0 {
		port = DefaultPort
	}
	addr := net.JoinHostPort(url, strconv.Itoa(port))
	dialer := net.Dialer{Timeout: t.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "dial %s", addr)
	}
	t.mu.Lock()
	t.conn = conn
	t.rd = bufio.NewReader(conn)
	t.mu.Unlock()

	resp, status := t.Execute(ctx, ExchangeVersionsRequest{Version: clientVersion})
	if status != StatusOK {
		_ = t.Close()
		return errors.Errorf("exchange versions with %s: %s", addr, status)
	}
	if v, ok := resp.(*ExchangeVersionsResponse); ok {
		t.log.Debug().Msgf("connected to %s version %d.%d.%d", addr, v.Version.Major, v.Version.Minor, v.Version.Release)
	}
	return nil
}

func (t *DialClient) Authorize(ctx context.Context, password string) error {
	doc, err := t.exchange(ctx, "<auth1/>")
	if err != nil {
		return errors.Wrap(err, "auth1")
	}
	nonce := xmlquery.FindOne(doc, "//nonce")
	if nonce == nil {
		return errors.New("auth1: missing nonce element")
	}
	sum := md5.Sum([]byte(nonce.InnerText() + password))
	hash := hex.EncodeToString(sum[:])
	doc, err = t.exchange(ctx, fmt.Sprintf("<auth2><nonce_hash>%s</nonce_hash></auth2>", hash))
	if err != nil {
		return errors.Wrap(err, "auth2")
	}
	if xmlquery.FindOne(doc, "//authorized") == nil {
		return ErrUnauthorized
	}
	return nil
}

func (t *DialClient) Execute(ctx context.Context, req Request) (Response, Status) {
	body, err := req.Body()
	if err != nil {
		t.log.Error().Err(err).Str("op", req.Op()).Msg("encode request")
		return nil, StatusClientError
	}
	var element string
	if body == "" {
		element = fmt.Sprintf("<%s/>", req.Op())
	} else {
		element = fmt.Sprintf("<%s>%s</%s>", req.Op(), body, req.Op())
	}
	data, err := t.roundTrip(ctx, element)
	if err != nil {
		if ctx.Err() != nil {
			return nil, StatusCancelled
		}
		t.log.Debug().Err(err).Str("op", req.Op()).Msg("exchange")
		return nil, StatusDisconnected
	}
	resp, status, msg := parseReply(req, data)
	if status != StatusOK {
		t.log.Debug().Str("op", req.Op()).Stringer("status", status).Msg(msg)
	}
	return resp, status
}

func (t *DialClient) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	t.rd = nil
	return err
}

// exchange round-trips a raw request element and parses the reply
// document. Used by the authorization handshake.
func (t *DialClient) exchange(ctx context.Context, element string) (*xmlquery.Node, error) {
	data, err := t.roundTrip(ctx, element)
	if err != nil {
		return nil, err
	}
	doc, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "parse reply")
	}
	return doc, nil
}

// roundTrip writes one framed request and reads the reply up to the
// terminator. The caller context cancels a blocked read or write.
func (t *DialClient) roundTrip(ctx context.Context, element string) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil, errors.New("not connected")
	}

	frame := fmt.Sprintf("<boinc_gui_rpc_request>\n%s\n</boinc_gui_rpc_request>\n%c", element, replyTerminator)

	if t.timeout > 0 {
		_ = t.conn.SetDeadline(time.Now().Add(t.timeout))
	}
	watchdogDone := make(chan struct{})
	defer close(watchdogDone)
	go func() {
		select {
		case <-ctx.Done():
			_ = t.conn.SetDeadline(time.Now())
		case <-watchdogDone:
		}
	}()

	if _, err := t.conn.Write([]byte(frame)); err != nil {
		return nil, errors.Wrap(err, "write request")
	}
	data, err := t.rd.ReadBytes(replyTerminator)
	if err != nil {
		return nil, errors.Wrap(err, "read reply")
	}
	return data[:len(data)-1], nil
}
