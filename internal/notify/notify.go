// Package notify delivers user notifications without blocking the caller.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Dispatcher hands messages to a Sender on background goroutines. Failures
// are logged and dropped.
type Dispatcher struct {
	sender  Sender
	log     *logrus.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewDispatcher(sender Sender, log *logrus.Logger, timeout time.Duration) *Dispatcher {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{sender: sender, log: log, timeout: timeout}
}

func (d *Dispatcher) Dispatch(msg Message) {
	if msg.To == "" {
		d.log.WithField("subject", msg.Subject).Warn("notification without recipient dropped")
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		if err := d.sender.Send(ctx, msg); err != nil {
			d.log.WithFields(logrus.Fields{
				"to":      msg.To,
				"subject": msg.Subject,
			}).WithError(err).Warn("notification delivery failed")
		}
	}()
}

// Wait blocks until every dispatched message has been attempted.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// LogSender writes notifications to the log.
type LogSender struct {
	log *logrus.Logger
}

func NewLogSender(log *logrus.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.log.WithFields(logrus.Fields{
		"to":      msg.To,
		"subject": msg.Subject,
	}).Info(msg.Body)
	return nil
}
