package kafka

import "context"

// NoopProducer discards events. It is used when no brokers are configured.
type NoopProducer struct{}

func (NoopProducer) ProduceMessageEvent(context.Context, *MessageEvent) error { return nil }

func (NoopProducer) Close() error { return nil }
