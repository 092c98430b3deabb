package server

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/mmr-tortoise/weatherflow-collector/internal/events"
	"github.com/mmr-tortoise/weatherflow-collector/internal/model"
)

// conditionsCache keeps the latest processed observation per station so
// REST clients can read current conditions without a storage query.
type conditionsCache struct {
	mu     sync.RWMutex
	latest map[int]*model.Message
}

func newConditionsCache() *conditionsCache {
	return &conditionsCache{latest: make(map[int]*model.Message)}
}

// run feeds the cache from the processed topic until ctx is cancelled
// or the bus closes.
func (cc *conditionsCache) run(ctx context.Context, bus *events.Bus) error {
	sub := bus.Subscribe(events.TopicProcessedData)
	defer sub.Cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-sub.C():
			if !ok {
				return nil
			}
			msg, ok := payload.(*model.Message)
			if !ok {
				continue
			}
			cc.update(msg)
		}
	}
}

// update stores the message as its station's latest conditions.
// Forecasts and import backfill are not current conditions, and a
// message without station info cannot be keyed.
func (cc *conditionsCache) update(msg *model.Message) {
	if msg.IsForecast() || !msg.HasStationInfo() {
		return
	}
	if strings.Contains(msg.Metadata.CollectorType, "import") {
		return
	}

	cc.mu.Lock()
	cc.latest[msg.StationInfo.StationID] = msg
	cc.mu.Unlock()
}

// all returns the cached conditions sorted by station ID.
func (cc *conditionsCache) all() []*model.Message {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	out := make([]*model.Message, 0, len(cc.latest))
	for _, msg := range cc.latest {
		out = append(out, msg)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StationInfo.StationID < out[j].StationInfo.StationID
	})
	return out
}

// get returns the latest conditions for one station.
func (cc *conditionsCache) get(stationID int) (*model.Message, bool) {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	msg, ok := cc.latest[stationID]
	return msg, ok
}
