package weather

import (
	"math"
)

// MetricInputs carries the raw readings DeriveMetrics works from. Air
// temperature is degrees Celsius, relative humidity percent, station
// pressure millibars, wind metres per second, elevation metres.
type MetricInputs struct {
	AirTemperature   float64
	RelativeHumidity float64

	// StationPressure enables calculated_sea_level_pressure when set.
	StationPressure *float64

	// WindAvg enables calculated_wind_chill and the Beaufort rating
	// when set.
	WindAvg *float64

	Elevation float64
}

// Output field names for the derived series.
const (
	FieldDewPoint         = "calculated_dew_point"
	FieldVPD              = "calculated_vpd"
	FieldHeatIndex        = "calculated_heat_index"
	FieldWindChill        = "calculated_wind_chill"
	FieldAbsoluteHumidity = "calculated_absolute_humidity"
	FieldSeaLevelPressure = "calculated_sea_level_pressure"
	FieldBeaufortRating   = "calculated_beaufort_scale_rating"
)

// DeriveMetrics computes the calculated_* fields available for the given
// inputs. Pressure- and wind-dependent metrics are omitted when their
// inputs are absent; everything else is always present. Float results are
// rounded to two decimals.
func DeriveMetrics(in MetricInputs) map[string]any {
	out := make(map[string]any, 7)

	t := in.AirTemperature
	rh := in.RelativeHumidity
	if rh <= 0 {
		rh = 0.1
	} else if rh > 100 {
		rh = 100
	}

	out[FieldDewPoint] = round2(dewPoint(t, rh))
	out[FieldVPD] = round2(vaporPressureDeficit(t, rh))
	out[FieldAbsoluteHumidity] = round2(absoluteHumidity(t, rh))
	out[FieldHeatIndex] = round2(heatIndex(t, rh))

	if in.WindAvg != nil {
		wind := *in.WindAvg
		out[FieldWindChill] = round2(windChill(t, wind))
		out[FieldBeaufortRating] = beaufortRating(wind)
	}

	if in.StationPressure != nil {
		out[FieldSeaLevelPressure] = round2(seaLevelPressure(*in.StationPressure, t, in.Elevation))
	}

	return out
}

// Magnus formula constants over water.
const (
	magnusB = 17.62
	magnusC = 243.12
)

// dewPoint returns the dew point in degrees Celsius via the
// Magnus-Tetens approximation.
func dewPoint(tempC, rhPercent float64) float64 {
	gamma := math.Log(rhPercent/100) + magnusB*tempC/(magnusC+tempC)
	return magnusC * gamma / (magnusB - gamma)
}

// vaporPressureDeficit returns the VPD in kilopascals using the Tetens
// saturation vapor pressure curve.
func vaporPressureDeficit(tempC, rhPercent float64) float64 {
	saturation := 0.6108 * math.Exp(17.27*tempC/(tempC+237.3))
	return saturation * (1 - rhPercent/100)
}

// absoluteHumidity returns grams of water vapor per cubic metre of air.
func absoluteHumidity(tempC, rhPercent float64) float64 {
	vaporPressureHPa := rhPercent / 100 * 6.112 * math.Exp(magnusB*tempC/(magnusC+tempC))
	return 216.7 * vaporPressureHPa / (273.15 + tempC)
}

// heatIndex returns the NWS heat index in degrees Celsius. The simple
// formula applies below 80F; above that the Rothfusz regression with the
// low-humidity and high-humidity adjustments takes over.
func heatIndex(tempC, rhPercent float64) float64 {
	tF := tempC*9/5 + 32
	rh := rhPercent

	simple := 0.5 * (tF + 61 + (tF-68)*1.2 + rh*0.094)
	if simple < 80 {
		return (simple - 32) * 5 / 9
	}

	hi := -42.379 +
		2.04901523*tF +
		10.14333127*rh -
		0.22475541*tF*rh -
		0.00683783*tF*tF -
		0.05481717*rh*rh +
		0.00122874*tF*tF*rh +
		0.00085282*tF*rh*rh -
		0.00000199*tF*tF*rh*rh

	if rh < 13 && tF >= 80 && tF <= 112 {
		hi -= (13 - rh) / 4 * math.Sqrt((17-math.Abs(tF-95))/17)
	} else if rh > 85 && tF >= 80 && tF <= 87 {
		hi += (rh - 85) / 10 * (87 - tF) / 5
	}

	return (hi - 32) * 5 / 9
}

// windChill returns the North American wind chill in degrees Celsius.
// The formula only holds at or below 10C with wind above 4.8 km/h; the
// air temperature is returned unchanged outside that envelope.
func windChill(tempC, windMS float64) float64 {
	windKMH := windMS * 3.6
	if tempC > 10 || windKMH <= 4.8 {
		return tempC
	}

	v := math.Pow(windKMH, 0.16)
	return 13.12 + 0.6215*tempC - 11.37*v + 0.3965*tempC*v
}

// beaufortUpperBounds holds the exclusive upper wind speed (m/s) of each
// Beaufort rating from 0 (calm) through 11 (violent storm). Anything at
// or beyond the last bound is hurricane force, 12.
var beaufortUpperBounds = []float64{
	0.5, 1.5, 3.3, 5.5, 7.9, 10.7, 13.8, 17.1, 20.7, 24.4, 28.4, 32.6,
}

// beaufortRating maps a wind speed in m/s onto the Beaufort scale.
func beaufortRating(windMS float64) int {
	for rating, bound := range beaufortUpperBounds {
		if windMS < bound {
			return rating
		}
	}
	return 12
}

// seaLevelPressure reduces a station pressure reading (millibars) to sea
// level using the barometric formula with the standard lapse rate.
func seaLevelPressure(pressureMB, tempC, elevationM float64) float64 {
	if elevationM == 0 {
		return pressureMB
	}
	lapse := 0.0065 * elevationM
	return pressureMB * math.Pow(1-lapse/(tempC+lapse+273.15), -5.257)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
