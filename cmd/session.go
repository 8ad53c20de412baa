package cmd

import (
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/opengrid/gridctl/controller"
	"github.com/opengrid/gridctl/controller/handlerreg"
	"github.com/opengrid/gridctl/core/periodictask"
	"github.com/opengrid/gridctl/core/rpc"
)

type (
	// session drives a short-lived controller against one configured
	// host, for the one-shot verbs.
	session struct {
		ctrl *controller.T
		host string

		connected  chan struct{}
		authorized chan bool
		results    chan sessionResult
		errs       chan error
	}

	sessionResult struct {
		kind   periodictask.T
		result rpc.Response
	}
)

const sessionTimeout = 30 * time.Second

// OnHostAdded implements handlerreg.HostHandler.
func (s *session) OnHostAdded(string) {}

func (s *session) OnHostConnected(string) {
	select {
	case s.connected <- struct{}{}:
	default:
	}
}

func (s *session) OnHostAuthorized(string) {
	select {
	case s.authorized <- true:
	default:
	}
}

func (s *session) OnHostAuthorizationFailed(string) {
	select {
	case s.authorized <- false:
	default:
	}
}

func (s *session) OnHostError(_ string, err error) {
	select {
	case s.errs <- err:
	default:
	}
}

func (s *session) OnHostRemoved(string) {}

// OnPeriodicResult implements handlerreg.PeriodicTaskHandler.
func (s *session) OnPeriodicResult(_ string, kind periodictask.T, result rpc.Response) {
	select {
	case s.results <- sessionResult{kind: kind, result: result}:
	default:
	}
}

// newSession connects and authorizes a controller session for the
// named host, using the url, port and password from the config file.
func newSession(host string) (*session, error) {
	url := viper.GetString("hosts." + host + ".url")
	if url == "" {
		return nil, errors.Errorf("host %s not found in config", host)
	}
	port := viper.GetInt("hosts." + host + ".port")
	if port == 0 {
		port = rpc.DefaultPort
	}
	password := viper.GetString("hosts." + host + ".password")
	if password == "" {
		var err error
		if password, err = promptPassword(host); err != nil {
			return nil, err
		}
	}

	s := &session{
		host:       host,
		connected:  make(chan struct{}, 1),
		authorized: make(chan bool, 1),
		results:    make(chan sessionResult, 16),
		errs:       make(chan error, 16),
	}
	s.ctrl = controller.New()
	s.ctrl.RegisterHostHandler(s)
	s.ctrl.RegisterPeriodicTaskHandler(s)

	if err := s.ctrl.AddHostWithPassword(host, url, port, password); err != nil {
		s.close()
		return nil, err
	}

	deadline := time.After(sessionTimeout)
	select {
	case <-s.connected:
	case err := <-s.errs:
		s.close()
		return nil, err
	case <-deadline:
		s.close()
		return nil, errors.Errorf("timeout connecting to host %s", host)
	}
	select {
	case ok := <-s.authorized:
		if !ok {
			s.close()
			return nil, errors.Errorf("host %s rejected the password", host)
		}
	case <-deadline:
		s.close()
		return nil, errors.Errorf("timeout authorizing with host %s", host)
	}
	return s, nil
}

// waitResult enables the periodic polling of the host (every kind),
// nudges kind and returns the first result of kind.
func (s *session) waitResult(kind periodictask.T) (rpc.Response, error) {
	if err := s.ctrl.SetSchedulePeriodicTasks(s.host, true); err != nil {
		return nil, err
	}
	if err := s.ctrl.RescheduleNow(s.host, kind); err != nil {
		return nil, err
	}
	deadline := time.After(sessionTimeout)
	for {
		select {
		case r := <-s.results:
			if r.kind == kind {
				return r.result, nil
			}
		case err := <-s.errs:
			return nil, err
		case <-deadline:
			return nil, errors.Errorf("timeout polling %s on host %s", kind, s.host)
		}
	}
}

func (s *session) close() {
	_ = s.ctrl.Shutdown()
	s.ctrl.DeregisterHostHandler(s)
	s.ctrl.DeregisterPeriodicTaskHandler(s)
}

func promptPassword(host string) (string, error) {
	if !term.IsTerminal(int(syscall.Stdin)) {
		return "", errors.Errorf("no password for host %s in config and stdin is not a terminal", host)
	}
	fmt.Fprintf(os.Stderr, "password for %s: ", host)
	b, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ensure the session satisfies the handler interfaces
var (
	_ handlerreg.HostHandler         = (*session)(nil)
	_ handlerreg.PeriodicTaskHandler = (*session)(nil)
)
