package collector

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/weatherflow-collector/internal/config"
	"github.com/mmr-tortoise/weatherflow-collector/internal/events"
	"github.com/mmr-tortoise/weatherflow-collector/internal/model"
)

func TestSystemCollector_PublishesHostSample(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	bus := newTestBus(t)
	storage := bus.Subscribe(events.TopicStorageInfluxDB)
	defer storage.Cancel()

	c := NewSystemCollector(cfg, bus, testLogger())
	c.sample(context.Background())

	select {
	case payload := <-storage.C():
		sp, ok := payload.(*model.StoragePayload)
		require.True(t, ok)
		assert.Equal(t, model.DataTypeSingle, sp.DataType)
		assert.Equal(t, "weatherflow_system_host", sp.Measurement)
		assert.Equal(t, "collector_system", sp.Tags["collector_type"])
		assert.NotEmpty(t, sp.Fields)
		assert.Contains(t, sp.Fields, "mem_total")
		assert.NotZero(t, sp.Timestamp)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for host sample")
	}
}
