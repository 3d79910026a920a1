// pkg/alerts/natssink.go
package alerts

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/lucid-vigil/warden/pkg/events"
	"github.com/lucid-vigil/warden/pkg/patterns"
)

const (
	SubjectEvents     = "warden.alerts.events"
	SubjectDetections = "warden.alerts.detections"
)

// NATSSink publishes alerts as JSON messages so external responders can
// subscribe without coupling to this process.
type NATSSink struct {
	nc *nats.Conn
}

// NewNATSSink connects to the given NATS URL.
func NewNATSSink(url string) (*NATSSink, error) {
	nc, err := nats.Connect(url, nats.Name("warden-alerts"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSSink{nc: nc}, nil
}

func (s *NATSSink) Name() string { return "nats" }

func (s *NATSSink) NotifyEvent(_ context.Context, ev events.SecurityEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.nc.Publish(SubjectEvents, payload)
}

func (s *NATSSink) NotifyDetection(_ context.Context, det patterns.ThreatDetection) error {
	payload, err := json.Marshal(det)
	if err != nil {
		return err
	}
	return s.nc.Publish(SubjectDetections, payload)
}

// Close drains and closes the connection.
func (s *NATSSink) Close() {
	s.nc.Close()
}
