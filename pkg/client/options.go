package client

import "time"

type options struct {
	uuid               string
	dialTimeout        time.Duration
	probeTimeout       time.Duration
	probeRetryInterval time.Duration
	failoverTimeout    time.Duration
	requestTimeout     time.Duration
	onMessage          func(Message)
	onSwitch           func(primaryID int)
}

func defaultOptions() options {
	return options{
		dialTimeout:        5 * time.Second,
		probeTimeout:       2 * time.Second,
		probeRetryInterval: 250 * time.Millisecond,
		failoverTimeout:    15 * time.Second,
		requestTimeout:     10 * time.Second,
	}
}

// Option customizes a Client at dial time.
type Option func(*options)

// WithUUID fixes the client uuid instead of generating one. Reconnecting
// under the same uuid lets a replica recognize the client across sessions.
func WithUUID(id string) Option {
	return func(o *options) { o.uuid = id }
}

// WithDialTimeout bounds each initial TCP dial.
func WithDialTimeout(d time.Duration) Option {
	return func(o *options) { o.dialTimeout = d }
}

// WithProbeTimeout bounds each GET_PRIMARY reply read. A replica that does
// not answer within the window is treated as dead and its connection is
// dropped.
func WithProbeTimeout(d time.Duration) Option {
	return func(o *options) { o.probeTimeout = d }
}

// WithFailoverTimeout bounds the total time spent looking for a new primary
// after the current one dies, across all probe rounds.
func WithFailoverTimeout(d time.Duration) Option {
	return func(o *options) { o.failoverTimeout = d }
}

// WithRequestTimeout bounds the wait for each request's reply.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) { o.requestTimeout = d }
}

// WithMessageHandler installs the callback for chat messages pushed by the
// primary. The callback runs on the client's reader goroutine: it must not
// block for long and must not issue requests on the same Client directly
// (spawn a goroutine for that), or it will stall the reply it is holding up.
func WithMessageHandler(fn func(Message)) Option {
	return func(o *options) { o.onMessage = fn }
}

// WithSwitchHandler installs the callback invoked when the client adopts a
// new primary, whether announced by the cluster or discovered by probing.
// It may fire more than once with the same id. The same re-entrancy rules
// as WithMessageHandler apply.
func WithSwitchHandler(fn func(primaryID int)) Option {
	return func(o *options) { o.onSwitch = fn }
}
