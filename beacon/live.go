package beacon

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// Feed opens subscriptions to a beacon node event stream.
type Feed interface {
	Subscribe(ctx context.Context, url string) (Stream, error)
}

// Stream yields payload_attributes events in arrival order.
type Stream interface {
	Next() (*PayloadAttributesEvent, error)
	Close() error
}

// LiveSource waits for the consensus layer to announce the next block.
type LiveSource struct {
	feed          Feed
	url           string
	retryInterval time.Duration
	log           zerolog.Logger
}

func NewLiveSource(feed Feed, cfg Config, log zerolog.Logger) *LiveSource {
	retry := cfg.RetryInterval
	if retry <= 0 {
		retry = DefaultRetryInterval
	}
	return &LiveSource{
		feed:          feed,
		url:           cfg.PayloadAttributesURL(),
		retryInterval: retry,
		log:           log,
	}
}

// Acquire returns the attributes of the first payload_attributes event
// observed and drops the subscription. Subscribing is retried until it
// succeeds or ctx is done.
func (s *LiveSource) Acquire(ctx context.Context) (*BlockAttributes, error) {
	stream, err := s.subscribe(ctx)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	ev, err := stream.Next()
	if err != nil {
		return nil, fmt.Errorf("reading payload attributes event: %w", err)
	}
	attrs := ev.Attributes()
	s.log.Info().
		Str("version", ev.Version).
		Uint64("slot", attrs.ProposalSlot).
		Uint64("timestamp", attrs.Timestamp).
		Str("fee_recipient", attrs.SuggestedFeeRecipient.Hex()).
		Msg("Received payload attributes")
	return attrs, nil
}

// The consensus layer endpoint can take a while to come up.
func (s *LiveSource) subscribe(ctx context.Context) (Stream, error) {
	b := backoff.WithContext(backoff.NewConstantBackOff(s.retryInterval), ctx)
	return backoff.RetryNotifyWithData(func() (Stream, error) {
		return s.feed.Subscribe(ctx, s.url)
	}, b, func(err error, next time.Duration) {
		s.log.Warn().Err(err).Str("url", s.url).Dur("retry_in", next).Msg("Failed to subscribe to payload attributes events")
	})
}
