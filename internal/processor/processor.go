package processor

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/mmr-tortoise/weatherflow-collector/internal/events"
	"github.com/mmr-tortoise/weatherflow-collector/internal/model"
)

// stationResolver looks up station metadata for a message. The station
// registry implements it.
type stationResolver interface {
	InfoFor(meta model.Metadata) *model.StationInfo
}

// Processor sits between the collectors and the handlers. It drops
// messages that are not worth handling and attaches station metadata to
// the ones that are, so handlers never have to consult the registry.
type Processor struct {
	bus      *events.Bus
	resolver stationResolver
	logger   *logrus.Entry

	processed int
	skipped   int
}

// New builds a processor.
func New(bus *events.Bus, resolver stationResolver, logger *logrus.Entry) *Processor {
	return &Processor{
		bus:      bus,
		resolver: resolver,
		logger:   logger,
	}
}

// Run consumes collector messages until ctx is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	sub := p.bus.Subscribe(events.TopicCollectorData)
	defer sub.Cancel()

	for {
		select {
		case <-ctx.Done():
			p.logger.WithFields(logrus.Fields{
				"processed": p.processed,
				"skipped":   p.skipped,
			}).Debug("processor stopping")
			return nil
		case payload, ok := <-sub.C():
			if !ok {
				return nil
			}
			if msg := p.process(payload); msg != nil {
				p.bus.Publish(events.TopicProcessedData, msg)
			}
		}
	}
}

// process validates and enriches one message. It returns nil when the
// message should be dropped, and never mutates the input.
func (p *Processor) process(payload any) *model.Message {
	msg, ok := payload.(*model.Message)
	if !ok {
		p.skipped++
		p.logger.Warnf("dropping unexpected payload type %T", payload)
		return nil
	}

	if msg.Metadata.CollectorType == "" {
		p.skipped++
		p.logger.Warn("dropping message without a collector type")
		return nil
	}
	if len(msg.Data) == 0 {
		p.skipped++
		p.logger.WithField("collector_type", msg.Metadata.CollectorType).
			Warn("dropping message without data")
		return nil
	}

	enriched := *msg
	if enriched.StationInfo == nil {
		enriched.StationInfo = p.resolver.InfoFor(enriched.Metadata)
	}
	if enriched.StationInfo != nil && enriched.Metadata.StationID == 0 {
		enriched.Metadata.StationID = enriched.StationInfo.StationID
	}

	p.processed++
	return &enriched
}
