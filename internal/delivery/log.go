package delivery

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogDeliverer writes each message as a structured log entry.
type LogDeliverer struct {
	log *logrus.Logger
}

// NewLogDeliverer returns a deliverer logging through log.
func NewLogDeliverer(log *logrus.Logger) *LogDeliverer {
	return &LogDeliverer{log: log}
}

// Send implements Deliverer.
func (d *LogDeliverer) Send(_ context.Context, address, templateID string, args map[string]string) (bool, error) {
	fields := logrus.Fields{
		"address":  address,
		"template": templateID,
	}
	for k, v := range args {
		fields["arg_"+k] = v
	}
	d.log.WithFields(fields).Info("notification delivered")
	return true, nil
}
