package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Transport delivers a rendered message to a customer or operator address.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

// AlertSink delivers operator alerts over a channel other than email.
type AlertSink interface {
	Alert(ctx context.Context, a Alert) error
}

const defaultTimeout = 10 * time.Second

// Dispatcher sends notifications in the background. Sends are attempted once;
// failures are logged and never reported to the caller.
type Dispatcher struct {
	transports    []Transport
	sinks         []AlertSink
	operatorEmail string
	timeout       time.Duration
	logger        *slog.Logger

	wg sync.WaitGroup
}

type DispatcherOption func(*Dispatcher)

func WithTransport(t Transport) DispatcherOption {
	return func(d *Dispatcher) { d.transports = append(d.transports, t) }
}

func WithAlertSink(s AlertSink) DispatcherOption {
	return func(d *Dispatcher) { d.sinks = append(d.sinks, s) }
}

// WithOperatorEmail sets the address that receives operator alerts by email.
func WithOperatorEmail(addr string) DispatcherOption {
	return func(d *Dispatcher) { d.operatorEmail = addr }
}

func WithTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

func NewDispatcher(logger *slog.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		timeout: defaultTimeout,
		logger:  logger.With("component", "notify"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Notify hands c to every transport. A nil c is ignored.
func (d *Dispatcher) Notify(ctx context.Context, c *Content) {
	if c == nil {
		return
	}
	msg, err := c.Message()
	if err != nil {
		d.logger.Error("render notification", "event", c.Event, "error", err)
		return
	}
	for _, t := range d.transports {
		d.deliver(ctx, "event", c.Event, func(ctx context.Context) error {
			return t.Send(ctx, msg)
		})
	}
}

// Alert sends an operator alert by email, when an operator address is set,
// and to every alert sink.
func (d *Dispatcher) Alert(ctx context.Context, a Alert) {
	if d.operatorEmail != "" {
		msg, err := a.Message(d.operatorEmail)
		if err != nil {
			d.logger.Error("render alert", "subject", a.Subject, "error", err)
		} else {
			for _, t := range d.transports {
				d.deliver(ctx, "alert", a.Subject, func(ctx context.Context) error {
					return t.Send(ctx, msg)
				})
			}
		}
	}
	for _, s := range d.sinks {
		d.deliver(ctx, "alert", a.Subject, func(ctx context.Context) error {
			return s.Alert(ctx, a)
		})
	}
}

func (d *Dispatcher) deliver(ctx context.Context, kind, name string, send func(context.Context) error) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		// Outlive the caller's request but not the timeout.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()

		if err := send(ctx); err != nil {
			d.logger.Warn("notification send failed", kind, name, "error", err)
			return
		}
		d.logger.Debug("notification sent", kind, name)
	}()
}

// Wait blocks until every in-flight send has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
