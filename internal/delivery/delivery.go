// Package delivery pushes notifications to users outside the store: a log
// line, a Redis pub/sub channel, or several of those at once.
package delivery

import (
	"context"
	"errors"
)

// Deliverer sends one rendered notification to address using templateID.
// The boolean reports whether the message was accepted for delivery.
type Deliverer interface {
	Send(ctx context.Context, address, templateID string, args map[string]string) (bool, error)
}

// Multi fans a message out to every deliverer. It reports success when at
// least one deliverer accepted the message.
type Multi []Deliverer

// Send delivers to every member and joins their errors.
func (m Multi) Send(ctx context.Context, address, templateID string, args map[string]string) (bool, error) {
	var (
		accepted bool
		errs     []error
	)
	for _, d := range m {
		ok, err := d.Send(ctx, address, templateID, args)
		if err != nil {
			errs = append(errs, err)
		}
		accepted = accepted || ok
	}
	return accepted, errors.Join(errs...)
}

// Nop accepts and drops every message.
type Nop struct{}

// Send implements Deliverer.
func (Nop) Send(context.Context, string, string, map[string]string) (bool, error) {
	return true, nil
}
