package notifications

import (
	"rockguard/internal/metrics"
	"rockguard/internal/models"
)

// ChannelSink forwards lifecycle events into an envelope queue. When the
// queue is full the event is dropped rather than stalling the store.
type ChannelSink struct {
	out  chan<- *models.Envelope
	node string
}

// NewChannelSink creates a sink writing envelopes stamped with node.
func NewChannelSink(out chan<- *models.Envelope, node string) *ChannelSink {
	return &ChannelSink{out: out, node: node}
}

func (c *ChannelSink) Emit(session string, event *models.Event) {
	envelope := models.NewEnvelope(event, session, c.node)

	select {
	case c.out <- envelope:
		metrics.EventsEmitted.WithLabelValues(string(event.Kind), "queued").Inc()
	default:
		metrics.EventsEmitted.WithLabelValues(string(event.Kind), "dropped").Inc()
	}
}
