// README: Event publisher selection: Kafka when brokers are configured, otherwise no-op.
package infra

import (
	"github.com/rs/zerolog"

	"ridepool/internal/events"
)

func NewPublisher(brokers []string, topic string, log zerolog.Logger) events.Publisher {
	if len(brokers) == 0 {
		log.Warn().Msg("no kafka brokers configured, ride events are dropped")
		return events.Noop{}
	}
	log.Info().Strs("brokers", brokers).Str("topic", topic).Msg("publishing ride events to kafka")
	return events.NewKafkaPublisher(brokers, topic)
}
