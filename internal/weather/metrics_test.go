package weather

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(v float64) *float64 { return &v }

// TestDeriveMetrics_AlwaysPresent verifies the humidity-derived metrics
// computed for every observation that carries temperature and humidity.
func TestDeriveMetrics_AlwaysPresent(t *testing.T) {
	out := DeriveMetrics(MetricInputs{
		AirTemperature:   20,
		RelativeHumidity: 60,
	})

	require.Contains(t, out, FieldDewPoint)
	require.Contains(t, out, FieldVPD)
	require.Contains(t, out, FieldAbsoluteHumidity)
	require.Contains(t, out, FieldHeatIndex)

	assert.InDelta(t, 12.00, out[FieldDewPoint], 0.05)
	assert.InDelta(t, 0.94, out[FieldVPD], 0.02)
	assert.InDelta(t, 10.35, out[FieldAbsoluteHumidity], 0.05)

	// Pressure and wind metrics need their inputs.
	assert.NotContains(t, out, FieldSeaLevelPressure)
	assert.NotContains(t, out, FieldWindChill)
	assert.NotContains(t, out, FieldBeaufortRating)
}

// TestDeriveMetrics_HeatIndex covers both branches: the simple formula in
// mild conditions and the regression in heat.
func TestDeriveMetrics_HeatIndex(t *testing.T) {
	mild := DeriveMetrics(MetricInputs{AirTemperature: 20, RelativeHumidity: 60})
	assert.InDelta(t, 19.62, mild[FieldHeatIndex], 0.05)

	hot := DeriveMetrics(MetricInputs{AirTemperature: 35, RelativeHumidity: 70})
	assert.InDelta(t, 50.34, hot[FieldHeatIndex], 0.2)
}

// TestDeriveMetrics_WindChill covers the formula envelope: active in cold
// wind, inert in warmth or calm.
func TestDeriveMetrics_WindChill(t *testing.T) {
	coldWindy := DeriveMetrics(MetricInputs{
		AirTemperature:   5,
		RelativeHumidity: 50,
		WindAvg:          floatPtr(10),
	})
	assert.InDelta(t, -0.43, coldWindy[FieldWindChill], 0.1)

	warm := DeriveMetrics(MetricInputs{
		AirTemperature:   15,
		RelativeHumidity: 50,
		WindAvg:          floatPtr(10),
	})
	assert.InDelta(t, 15.0, warm[FieldWindChill], 0.001)

	calm := DeriveMetrics(MetricInputs{
		AirTemperature:   5,
		RelativeHumidity: 50,
		WindAvg:          floatPtr(1),
	})
	assert.InDelta(t, 5.0, calm[FieldWindChill], 0.001)
}

// TestDeriveMetrics_SeaLevelPressure verifies the elevation reduction.
func TestDeriveMetrics_SeaLevelPressure(t *testing.T) {
	elevated := DeriveMetrics(MetricInputs{
		AirTemperature:   15,
		RelativeHumidity: 50,
		StationPressure:  floatPtr(1000),
		Elevation:        100,
	})
	assert.InDelta(t, 1011.92, elevated[FieldSeaLevelPressure], 0.1)

	seaLevel := DeriveMetrics(MetricInputs{
		AirTemperature:   15,
		RelativeHumidity: 50,
		StationPressure:  floatPtr(1013.25),
		Elevation:        0,
	})
	assert.InDelta(t, 1013.25, seaLevel[FieldSeaLevelPressure], 0.001)
}

// TestBeaufortRating walks the scale boundaries.
func TestBeaufortRating(t *testing.T) {
	tests := []struct {
		windMS   float64
		expected int
	}{
		{0, 0},
		{0.4, 0},
		{0.5, 1},
		{2.0, 2},
		{5.0, 3},
		{9.0, 5},
		{15.0, 7},
		{25.0, 10},
		{32.6, 12},
		{40.0, 12},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, beaufortRating(tt.windMS), "wind %.1f m/s", tt.windMS)
	}
}

// TestDeriveMetrics_HumidityClamping verifies that out-of-range humidity
// does not blow up the logarithm in the dew point formula.
func TestDeriveMetrics_HumidityClamping(t *testing.T) {
	zero := DeriveMetrics(MetricInputs{AirTemperature: 20, RelativeHumidity: 0})
	dew, ok := zero[FieldDewPoint].(float64)
	require.True(t, ok)
	assert.False(t, dew != dew, "dew point must not be NaN")
	assert.Less(t, dew, -40.0, "near-zero humidity should give a very low dew point")

	over := DeriveMetrics(MetricInputs{AirTemperature: 20, RelativeHumidity: 120})
	assert.InDelta(t, 20.0, over[FieldDewPoint], 0.05, "saturated air dew point equals air temperature")
}
