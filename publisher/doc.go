// Package publisher emits change envelopes to the event bus.
//
// A Publisher serializes each envelope as a JSON array holding exactly that
// one envelope and hands it to a Sink keyed by the changed entity's id, so
// every change to one entity lands on the same partition. Publish never
// retries; a failed publish surfaces as ErrPublish and the polling tick that
// issued it leaves its cursor where it was.
//
// Sinks register themselves by type from the sink package:
//
//	import _ "github.com/maxpert/reactivator/publisher/sink"
//
//	snk, err := publisher.NewSink(&cfg.Config.PubSub)
//	pub := publisher.New(snk, 5*time.Second)
//	err = pub.Publish(ctx, "my-source-change", envelope)
//
// Available sink types:
//
//   - kafka: segmentio/kafka-go writer, synchronous, RequireAll acks
//   - nats:  JetStream publish with the key in a message header
package publisher
