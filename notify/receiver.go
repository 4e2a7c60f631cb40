// Package notify implements the STOMP notification receiver for the HMC's
// notification bus. A receiver subscribes to one or more topics and
// delivers every message, in arrival order, on a bounded channel of
// core.Notification values. Error frames from the HMC and unparseable
// bodies are delivered in-band; only Close (or an unrecoverable connection
// loss) ends the stream.
package notify

import (
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/gmallard/stompngo"
	"github.com/google/uuid"

	"github.com/zhmcio/zhmcgo/core"
)

// ReceiverConfig configures a notification receiver. A receiver is
// independent of any REST session; it authenticates on its own with basic
// credentials.
type ReceiverConfig struct {
	// Host is the HMC, as host or host:port. The default port is the
	// HMC notification port, 61612.
	Host string

	// Topics are the STOMP topics to subscribe to.
	Topics []string

	// Userid and Password authenticate the STOMP connection.
	Userid   string
	Password string

	// CertPolicy verifies the HMC's certificate. Independent of any
	// session's policy.
	CertPolicy core.CertPolicy

	// Logger receives connection lifecycle output. Defaults to no output.
	Logger core.Logger

	// QueueSize bounds the delivery channel. A full queue blocks the
	// receiving goroutine, which pauses STOMP consumption; the HMC
	// buffers. Defaults to 128.
	QueueSize int

	// ConnectTimeout bounds dialing the notification port. Defaults to
	// 30 seconds.
	ConnectTimeout time.Duration

	// ReconnectRetries is the number of reconnection attempts after the
	// broker connection drops, with exponential backoff. Defaults to 3.
	ReconnectRetries int
}

func (c *ReceiverConfig) withDefaults() ReceiverConfig {
	out := *c
	if _, _, err := net.SplitHostPort(out.Host); err != nil {
		out.Host = net.JoinHostPort(out.Host, strconv.Itoa(core.DefaultNotificationPort))
	}
	if out.Logger == nil {
		out.Logger = &core.NoOpLogger{}
	}
	if out.QueueSize <= 0 {
		out.QueueSize = 128
	}
	if out.ConnectTimeout <= 0 {
		out.ConnectTimeout = 30 * time.Second
	}
	if out.ReconnectRetries <= 0 {
		out.ReconnectRetries = 3
	}
	return out
}

// Receiver is one STOMP connection with its subscriptions. It implements
// core.NotificationSource.
type Receiver struct {
	cfg ReceiverConfig

	mu      sync.Mutex
	conn    *stompngo.Connection
	netconn net.Conn

	out       chan core.Notification
	done      chan struct{}
	closeOnce sync.Once
}

// NewReceiver opens the connection, subscribes to every configured topic
// and starts the background goroutine that drains STOMP frames into the
// delivery channel.
func NewReceiver(cfg ReceiverConfig) (*Receiver, error) {
	r := &Receiver{
		cfg:  cfg.withDefaults(),
		done: make(chan struct{}),
	}
	r.out = make(chan core.Notification, r.cfg.QueueSize)

	merged, err := r.connect()
	if err != nil {
		return nil, err
	}
	go r.run(merged)
	return r, nil
}

// Notifications returns the delivery channel. It yields notifications in
// arrival order per topic and is closed by Close or on unrecoverable
// connection loss.
func (r *Receiver) Notifications() <-chan core.Notification {
	return r.out
}

// Close tears the receiver down: it disconnects, stops the background
// goroutine and closes the delivery channel. Idempotent; only the first
// call has observable effect, and teardown is deterministic.
func (r *Receiver) Close() error {
	r.closeOnce.Do(func() {
		close(r.done)
		r.disconnect()
	})
	return nil
}

// disconnect tears down the current STOMP connection, if any.
func (r *Receiver) disconnect() {
	r.mu.Lock()
	conn, netconn := r.conn, r.netconn
	r.conn, r.netconn = nil, nil
	r.mu.Unlock()
	if conn != nil {
		_ = conn.Disconnect(stompngo.NoDiscReceipt)
	}
	if netconn != nil {
		_ = netconn.Close()
	}
}

// connect dials the notification port, logs on and subscribes every topic.
// It returns one merged channel carrying the frames of all subscriptions.
func (r *Receiver) connect() (<-chan stompngo.MessageData, error) {
	tlsCfg, err := r.cfg.CertPolicy.TLSConfig()
	if err != nil {
		return nil, err
	}
	host, _, _ := net.SplitHostPort(r.cfg.Host)
	tlsCfg.ServerName = host

	dialer := &net.Dialer{Timeout: r.cfg.ConnectTimeout}
	netconn, err := tls.DialWithDialer(dialer, "tcp", r.cfg.Host, tlsCfg)
	if err != nil {
		return nil, &core.ConnectionError{Host: r.cfg.Host, Attempts: 1, Kind: core.ErrConnectTimeout, Err: err}
	}

	conn, err := stompngo.Connect(netconn, stompngo.Headers{
		stompngo.HK_LOGIN, r.cfg.Userid,
		stompngo.HK_PASSCODE, r.cfg.Password,
	})
	if err != nil {
		_ = netconn.Close()
		return nil, &core.AuthError{Host: r.cfg.Host, Client: true, Message: "STOMP logon rejected", Err: err}
	}

	subs := make([]<-chan stompngo.MessageData, 0, len(r.cfg.Topics))
	for _, topic := range r.cfg.Topics {
		sub, err := conn.Subscribe(stompngo.Headers{
			stompngo.HK_DESTINATION, topic,
			stompngo.HK_ID, uuid.NewString(),
		})
		if err != nil {
			_ = conn.Disconnect(stompngo.NoDiscReceipt)
			_ = netconn.Close()
			return nil, fmt.Errorf("subscribing to %s: %w", topic, err)
		}
		subs = append(subs, sub)
	}

	r.mu.Lock()
	r.conn, r.netconn = conn, netconn
	r.mu.Unlock()

	r.cfg.Logger.Info("notification receiver connected", map[string]interface{}{
		"host":   r.cfg.Host,
		"topics": r.cfg.Topics,
	})
	return mergeFrames(subs, r.done), nil
}

// mergeFrames fans the subscription channels into one channel, closed when
// every input closes. The forwarding goroutines also exit on done, so a
// closed receiver with an undrained merged channel leaks nothing.
func mergeFrames(subs []<-chan stompngo.MessageData, done <-chan struct{}) <-chan stompngo.MessageData {
	merged := make(chan stompngo.MessageData)
	var wg sync.WaitGroup
	wg.Add(len(subs))
	for _, sub := range subs {
		go func(in <-chan stompngo.MessageData) {
			defer wg.Done()
			for md := range in {
				select {
				case merged <- md:
				case <-done:
					return
				}
			}
		}(sub)
	}
	go func() {
		wg.Wait()
		close(merged)
	}()
	return merged
}

// run drains STOMP frames into the delivery channel, reconnecting when the
// broker connection drops.
func (r *Receiver) run(merged <-chan stompngo.MessageData) {
	defer close(r.out)
	for {
		lost := r.drain(merged)
		if !lost {
			return
		}

		// Connection lost while the receiver is still open: reconnect
		// with backoff, resubscribing every topic.
		var err error
		merged, err = r.reconnect()
		if err != nil {
			r.deliver(core.Notification{Err: err})
			return
		}
	}
}

// drain forwards frames until the merged channel closes or the receiver is
// closed. It reports whether the connection was lost (true) rather than
// deliberately closed (false).
func (r *Receiver) drain(merged <-chan stompngo.MessageData) (lost bool) {
	for {
		select {
		case <-r.done:
			return false
		case md, ok := <-merged:
			if !ok {
				select {
				case <-r.done:
					return false
				default:
					return true
				}
			}
			if !r.deliver(frameToNotification(md)) {
				return false
			}
		}
	}
}

// deliver blocks on the bounded queue; a closed receiver aborts delivery.
func (r *Receiver) deliver(n core.Notification) bool {
	select {
	case r.out <- n:
		return true
	case <-r.done:
		return false
	}
}

func (r *Receiver) reconnect() (<-chan stompngo.MessageData, error) {
	r.disconnect()
	delay := time.Second
	var lastErr error
	for attempt := 1; attempt <= r.cfg.ReconnectRetries; attempt++ {
		r.cfg.Logger.Warn("notification connection lost, reconnecting", map[string]interface{}{
			"host":    r.cfg.Host,
			"attempt": attempt,
		})
		select {
		case <-time.After(delay):
		case <-r.done:
			return nil, core.ErrSessionClosed
		}
		merged, err := r.connect()
		if err == nil {
			return merged, nil
		}
		lastErr = err
		delay *= 2
	}
	return nil, &core.ConnectionError{
		Host:     r.cfg.Host,
		Attempts: r.cfg.ReconnectRetries,
		Kind:     core.ErrRetriesExceeded,
		Err:      lastErr,
	}
}

// frameToNotification converts one STOMP frame. ERROR frames from the HMC
// become in-band NotificationJMSError values; everything else is parsed as
// a JSON notification body.
func frameToNotification(md stompngo.MessageData) core.Notification {
	if md.Error != nil {
		return core.Notification{Err: fmt.Errorf("notification transport: %w", md.Error)}
	}
	headers := headerMap(md.Message.Headers)
	if md.Message.Command == stompngo.ERROR {
		msg := headers[stompngo.HK_MESSAGE]
		if msg == "" {
			msg = string(md.Message.Body)
		}
		return core.Notification{Headers: headers, Err: &core.NotificationJMSError{
			Headers: headers,
			Message: msg,
		}}
	}
	return core.ParseNotificationBody(headers, md.Message.Body)
}

// headerMap converts stompngo's flat key/value slice.
func headerMap(h stompngo.Headers) map[string]string {
	out := make(map[string]string, len(h)/2)
	for i := 0; i+1 < len(h); i += 2 {
		out[h[i]] = h[i+1]
	}
	return out
}
