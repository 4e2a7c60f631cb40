// Package zhmcgo is a client library for the IBM Z Hardware Management
// Console (HMC) Web Services API. It manages the HTTPS session lifecycle
// (logon, transparent re-logon on token expiry, failover across redundant
// HMCs), asynchronous job completion, the resource model with name-to-URI
// caching and filtering, auto-updated resources fed from the HMC
// notification bus, and a STOMP notification receiver.
//
// The typical entry point is NewSession followed by NewClient:
//
//	session, err := zhmcgo.NewSession([]string{"9.10.11.12"}, "ensadmin", password)
//	if err != nil { ... }
//	defer session.Logoff(ctx)
//	client := zhmcgo.NewClient(session)
//	cpc, err := client.Cpcs().FindByName(ctx, "CPC1")
//
// The core package holds the session and resource engine, notify the STOMP
// receiver, mock an in-process HMC for tests.
package zhmcgo

import (
	"net"

	"github.com/zhmcio/zhmcgo/core"
	"github.com/zhmcio/zhmcgo/notify"
)

// Re-exported core types, so that simple consumers need only this package.
type (
	Session       = core.Session
	SessionOption = core.SessionOption
	Client        = core.Client
	Filter        = core.Filter
	Job           = core.Job
	RequestOption = core.RequestOption
	CertPolicy    = core.CertPolicy
	Logger        = core.Logger
	Notification  = core.Notification
)

// NewSession builds a session against one HMC, or a list of redundant HMCs
// managing the same CPCs. The session is wired to subscribe to the HMC's
// STOMP notification bus when auto-update is enabled; tests substitute the
// mock hub through core.WithNotificationSourceFactory.
func NewSession(hosts []string, userid, password string, opts ...SessionOption) (*Session, error) {
	var s *Session
	factory := func(topic string) (core.NotificationSource, error) {
		return notify.NewReceiver(notify.ReceiverConfig{
			Host:       notificationHost(s.Host()),
			Topics:     []string{topic},
			Userid:     userid,
			Password:   password,
			CertPolicy: s.CertPolicy(),
			Logger:     s.Logger(),
		})
	}
	s, err := core.NewSession(hosts, userid, password,
		append([]SessionOption{core.WithNotificationSourceFactory(factory)}, opts...)...)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// NewClient builds the client facade over a session.
func NewClient(session *Session) *Client {
	return core.NewClient(session)
}

// NewReceiver opens a standalone STOMP notification receiver, independent
// of any session.
func NewReceiver(cfg notify.ReceiverConfig) (*notify.Receiver, error) {
	return notify.NewReceiver(cfg)
}

// NewFilter starts an empty resource filter.
func NewFilter() *Filter {
	return core.NewFilter()
}

// notificationHost strips the Web Services API port off a pinned session
// host; the receiver applies the notification port itself.
func notificationHost(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}
