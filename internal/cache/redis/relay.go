package redis

import (
	"context"
	"errors"

	"github.com/alanyoungcy/offerstream/internal/domain"
)

const (
	DefaultRelayChannel = "ch:offers"
	DefaultRelayStream  = "stream:offers"
)

// OfferRelay forwards every broadcast envelope to a pub/sub channel and a
// capped stream so external consumers can follow offer changes.
type OfferRelay struct {
	bus     domain.SignalBus
	channel string
	stream  string
}

// NewOfferRelay creates a relay. Empty channel or stream names take the
// defaults.
func NewOfferRelay(bus domain.SignalBus, channel, stream string) *OfferRelay {
	if channel == "" {
		channel = DefaultRelayChannel
	}
	if stream == "" {
		stream = DefaultRelayStream
	}
	return &OfferRelay{bus: bus, channel: channel, stream: stream}
}

// Name identifies the sink in logs and metrics.
func (r *OfferRelay) Name() string { return "redis" }

// Write publishes data and appends it to the stream. Both are attempted even
// if one fails.
func (r *OfferRelay) Write(ctx context.Context, _ domain.EventType, data []byte) error {
	pubErr := r.bus.Publish(ctx, r.channel, data)
	streamErr := r.bus.StreamAppend(ctx, r.stream, data)
	return errors.Join(pubErr, streamErr)
}
