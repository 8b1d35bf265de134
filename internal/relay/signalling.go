package relay

// SignallingRelay forwards call-setup frames (offer/answer/ICE) verbatim
// from one identity's connection to another's. Nothing is stored and no
// acknowledgement is sent; the payload is opaque to the relay.
type SignallingRelay struct {
	registry *Registry
	metrics  *Metrics
}

// NewSignallingRelay creates a signalling relay
func NewSignallingRelay(registry *Registry, metrics *Metrics) *SignallingRelay {
	return &SignallingRelay{
		registry: registry,
		metrics:  metrics,
	}
}

// Relay forwards the frame to the recipient if live, else drops it
// silently. The forwarded frame carries the sender but not the recipient.
func (r *SignallingRelay) Relay(f Frame) {
	recipient, ok := r.registry.Lookup(f.To)
	if !ok {
		r.metrics.SignallingDropped.Inc()
		return
	}
	_ = recipient.Send(Frame{
		Type:      f.Type,
		From:      f.From,
		SDP:       f.SDP,
		Candidate: f.Candidate,
	})
	r.metrics.SignallingRelayed.Inc()
}
