package types

import (
	"bytes"
	"encoding/json"
	"slices"
	"strconv"

	"cloud.google.com/go/civil"
)

// DailySeries holds one value per calendar day.
type DailySeries map[civil.Date]int

// Dates returns the days of the series in ascending order.
func (s DailySeries) Dates() []civil.Date {
	dates := make([]civil.Date, 0, len(s))
	for d := range s {
		dates = append(dates, d)
	}
	slices.SortFunc(dates, civil.Date.Compare)
	return dates
}

// Total returns the sum of all values.
func (s DailySeries) Total() int {
	var total int
	for _, v := range s {
		total += v
	}
	return total
}

// CurveSeries holds values keyed by the timestamp the provider reported,
// typically every 30 minutes for load curves.
type CurveSeries map[civil.DateTime]int

// Times returns the timestamps of the series in ascending order.
func (s CurveSeries) Times() []civil.DateTime {
	times := make([]civil.DateTime, 0, len(s))
	for dt := range s {
		times = append(times, dt)
	}
	slices.SortFunc(times, civil.DateTime.Compare)
	return times
}

// Total returns the sum of all values.
func (s CurveSeries) Total() int {
	var total int
	for _, v := range s {
		total += v
	}
	return total
}

// MeterReadingResponse is the body returned by every metering data endpoint.
type MeterReadingResponse struct {
	MeterReading MeterReading `json:"meter_reading"`
}

// MeterReading is a block of readings for a single usage point.
type MeterReading struct {
	UsagePointID    string            `json:"usage_point_id"`
	Start           string            `json:"start"`
	End             string            `json:"end"`
	Quality         string            `json:"quality"`
	ReadingType     ReadingType       `json:"reading_type"`
	IntervalReading []IntervalReading `json:"interval_reading"`
}

// ReadingType describes the unit and aggregation of the readings.
type ReadingType struct {
	Unit            string `json:"unit"`
	MeasurementKind string `json:"measurement_kind"`
	Aggregate       string `json:"aggregate"`
	MeasuringPeriod string `json:"measuring_period,omitempty"`
}

// IntervalReading is one raw sample.
type IntervalReading struct {
	Date  string       `json:"date"`
	Value ReadingValue `json:"value"`
}

// ReadingValue is an integer the API sends as a string. Bare JSON numbers are
// accepted too.
type ReadingValue string

// UnmarshalJSON implements json.Unmarshaler.
func (v *ReadingValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*v = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = ReadingValue(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*v = ReadingValue(n.String())
	return nil
}

// Int parses the value as a base 10 integer.
func (v ReadingValue) Int() (int, error) {
	return strconv.Atoi(string(v))
}
