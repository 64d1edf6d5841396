package utility

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/civil"

	"github.com/raterudder/dataconnect/pkg/dataconnect"
	"github.com/raterudder/dataconnect/pkg/log"
	"github.com/raterudder/dataconnect/pkg/metrics"
	"github.com/raterudder/dataconnect/pkg/types"
)

const (
	// curve and max power readings
	dateTimeLayout = "2006-01-02 15:04:05"
)

var (
	// ErrInvalidDateRange is returned when a date is missing or the start is
	// after the end.
	ErrInvalidDateRange = errors.New("invalid date range")
	// ErrMissingPRM is returned when the report needs a metering point the
	// client was not configured with.
	ErrMissingPRM = errors.New("missing prm")
)

// Fetcher is the part of *dataconnect.Client the facade needs.
type Fetcher interface {
	GetData(ctx context.Context, r dataconnect.Request, dest any) error
	Endpoint(path string) string
	ConsumptionPRM() string
	ProductionPRM() string
}

// Report identifies one of the metering data endpoints.
type Report int

const (
	MaxDailyConsumedPower Report = iota
	DailyConsumption
	ConsumptionLoadCurve
	DailyProduction
	ProductionLoadCurve
)

type reportInfo struct {
	name       string
	path       string
	production bool
	daily      bool
}

var reports = [...]reportInfo{
	MaxDailyConsumedPower: {
		name: "max_daily_consumed_power",
		path: "/metering_data_dcmp/v5/daily_consumption_max_power",
	},
	DailyConsumption: {
		name:  "daily_consumption",
		path:  "/metering_data_dc/v5/daily_consumption",
		daily: true,
	},
	ConsumptionLoadCurve: {
		name: "consumption_load_curve",
		path: "/metering_data_clc/v5/consumption_load_curve",
	},
	DailyProduction: {
		name:       "daily_production",
		path:       "/metering_data_dp/v5/daily_production",
		production: true,
		daily:      true,
	},
	ProductionLoadCurve: {
		name:       "production_load_curve",
		path:       "/metering_data_plc/v5/production_load_curve",
		production: true,
	},
}

// Reports returns every report in a stable order.
func Reports() []Report {
	all := make([]Report, len(reports))
	for i := range reports {
		all[i] = Report(i)
	}
	return all
}

// ParseReport returns the report with the given name.
func ParseReport(name string) (Report, error) {
	for i, info := range reports {
		if info.name == name {
			return Report(i), nil
		}
	}
	names := make([]string, len(reports))
	for i, info := range reports {
		names[i] = info.name
	}
	return 0, fmt.Errorf("unknown report %q, expected one of: %s", name, strings.Join(names, ", "))
}

func (r Report) valid() bool {
	return r >= 0 && int(r) < len(reports)
}

func (r Report) String() string {
	if !r.valid() {
		return fmt.Sprintf("Report(%d)", int(r))
	}
	return reports[r].name
}

// Path returns the endpoint path of the report.
func (r Report) Path() string {
	if !r.valid() {
		return ""
	}
	return reports[r].path
}

// Daily reports whether the report has one value per day.
func (r Report) Daily() bool {
	return r.valid() && reports[r].daily
}

// RequestState records the last successful request of a report.
type RequestState struct {
	// RequestedAt is when the data was received.
	RequestedAt time.Time
	// EndDate is the end of the requested range.
	EndDate civil.Date
}

// Enedis exposes the metering reports of the Data Connect API.
type Enedis struct {
	client Fetcher

	mu    sync.Mutex
	state map[Report]RequestState
}

var _ MeterReader = (*Enedis)(nil)

// NewEnedis returns a facade over client. The client is shared, not owned:
// closing it is up to the caller.
func NewEnedis(client Fetcher) *Enedis {
	return &Enedis{
		client: client,
		state:  make(map[Report]RequestState),
	}
}

// GetMaxDailyConsumedPower returns the peak power of each day, keyed by the
// time the peak happened.
func (e *Enedis) GetMaxDailyConsumedPower(ctx context.Context, start, end civil.Date) (types.CurveSeries, error) {
	return e.curve(ctx, MaxDailyConsumedPower, start, end)
}

// GetDailyConsumption returns the consumption of every day in [start, end).
// Days without a reading are 0.
func (e *Enedis) GetDailyConsumption(ctx context.Context, start, end civil.Date) (types.DailySeries, error) {
	return e.daily(ctx, DailyConsumption, start, end)
}

// GetConsumptionLoadCurve returns the consumption of each period reported by
// the API, every 30 minutes.
func (e *Enedis) GetConsumptionLoadCurve(ctx context.Context, start, end civil.Date) (types.CurveSeries, error) {
	return e.curve(ctx, ConsumptionLoadCurve, start, end)
}

// GetDailyProduction returns the production of every day in [start, end).
// Days without a reading are 0.
func (e *Enedis) GetDailyProduction(ctx context.Context, start, end civil.Date) (types.DailySeries, error) {
	return e.daily(ctx, DailyProduction, start, end)
}

// GetProductionLoadCurve returns the production of each period reported by
// the API, every 30 minutes.
func (e *Enedis) GetProductionLoadCurve(ctx context.Context, start, end civil.Date) (types.CurveSeries, error) {
	return e.curve(ctx, ProductionLoadCurve, start, end)
}

// Get runs report and returns either a types.DailySeries or a
// types.CurveSeries.
func (e *Enedis) Get(ctx context.Context, report Report, start, end civil.Date) (any, error) {
	if !report.valid() {
		return nil, fmt.Errorf("unknown report: %s", report)
	}
	if report.Daily() {
		return e.daily(ctx, report, start, end)
	}
	return e.curve(ctx, report, start, end)
}

// LastRequest returns the state recorded by the last successful request of
// report. The zero value means the report was never requested.
func (e *Enedis) LastRequest(report Report) RequestState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state[report]
}

// Reset forgets the end dates of past requests and, if requestDates is set,
// when they were made.
func (e *Enedis) Reset(ctx context.Context, requestDates bool) {
	log.Ctx(ctx).WarnContext(ctx, "resetting request state", slog.Bool("requestDates", requestDates))

	e.mu.Lock()
	defer e.mu.Unlock()
	for report, state := range e.state {
		state.EndDate = civil.Date{}
		if requestDates {
			state.RequestedAt = time.Time{}
		}
		if state == (RequestState{}) {
			delete(e.state, report)
			continue
		}
		e.state[report] = state
	}
}

func (e *Enedis) daily(ctx context.Context, report Report, start, end civil.Date) (types.DailySeries, error) {
	readings, err := e.fetch(ctx, report, start, end)
	if err != nil {
		return nil, err
	}
	series, err := parseDaily(readings, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", report, err)
	}
	e.logSeries(ctx, report, len(series))
	return series, nil
}

func (e *Enedis) curve(ctx context.Context, report Report, start, end civil.Date) (types.CurveSeries, error) {
	readings, err := e.fetch(ctx, report, start, end)
	if err != nil {
		return nil, err
	}
	series, err := parseCurve(readings)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", report, err)
	}
	e.logSeries(ctx, report, len(series))
	return series, nil
}

func (e *Enedis) logSeries(ctx context.Context, report Report, n int) {
	metrics.SeriesPoints.WithLabelValues(report.String()).Set(float64(n))
	log.Ctx(ctx).DebugContext(
		ctx,
		"got enedis series",
		slog.String("report", report.String()),
		slog.Int("count", n),
	)
}

func validateRange(start, end civil.Date) error {
	if !start.IsValid() {
		return fmt.Errorf("%w: start date is not valid", ErrInvalidDateRange)
	}
	if !end.IsValid() {
		return fmt.Errorf("%w: end date is not valid", ErrInvalidDateRange)
	}
	if start.After(end) {
		return fmt.Errorf("%w: end date (%s) must not be before start date (%s)", ErrInvalidDateRange, end, start)
	}
	return nil
}

func (e *Enedis) prm(report Report) string {
	if reports[report].production {
		return e.client.ProductionPRM()
	}
	return e.client.ConsumptionPRM()
}

// fetch validates the range, requests report and returns the raw readings.
func (e *Enedis) fetch(ctx context.Context, report Report, start, end civil.Date) ([]types.IntervalReading, error) {
	if err := validateRange(start, end); err != nil {
		return nil, err
	}
	prm := e.prm(report)
	if prm == "" {
		return nil, fmt.Errorf("%w: %s needs a %s prm", ErrMissingPRM, report, prmKind(report))
	}

	log.Ctx(ctx).DebugContext(
		ctx,
		"getting enedis report",
		slog.String("report", report.String()),
		slog.String("start", start.String()),
		slog.String("end", end.String()),
	)

	params := url.Values{}
	params.Set("start", start.String())
	params.Set("end", end.String())
	params.Set("usage_point_id", prm)

	var resp types.MeterReadingResponse
	err := e.client.GetData(ctx, dataconnect.Request{
		URL:    e.client.Endpoint(report.Path()),
		Params: params,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", report, err)
	}

	e.mu.Lock()
	e.state[report] = RequestState{
		RequestedAt: time.Now(),
		EndDate:     end,
	}
	e.mu.Unlock()

	return resp.MeterReading.IntervalReading, nil
}

func prmKind(report Report) string {
	if reports[report].production {
		return "production"
	}
	return "consumption"
}

// parseCurve keys each reading by its timestamp. Readings without a date or a
// value are skipped.
func parseCurve(readings []types.IntervalReading) (types.CurveSeries, error) {
	series := make(types.CurveSeries, len(readings))
	for _, r := range readings {
		if r.Date == "" || r.Value == "" {
			continue
		}
		t, err := time.Parse(dateTimeLayout, r.Date)
		if err != nil {
			return nil, fmt.Errorf("invalid reading date %q: %w", r.Date, err)
		}
		v, err := r.Value.Int()
		if err != nil {
			return nil, fmt.Errorf("invalid reading value %q at %s: %w", r.Value, r.Date, err)
		}
		series[civil.DateTimeOf(t)] = v
	}
	return series, nil
}

// parseDaily keys each reading by its day and fills every missing day of
// [start, end) with 0.
func parseDaily(readings []types.IntervalReading, start, end civil.Date) (types.DailySeries, error) {
	series := make(types.DailySeries, len(readings))
	for _, r := range readings {
		if r.Date == "" || r.Value == "" {
			continue
		}
		d, err := civil.ParseDate(r.Date)
		if err != nil {
			return nil, fmt.Errorf("invalid reading date %q: %w", r.Date, err)
		}
		v, err := r.Value.Int()
		if err != nil {
			return nil, fmt.Errorf("invalid reading value %q at %s: %w", r.Value, r.Date, err)
		}
		series[d] = v
	}
	for d := start; d.Before(end); d = d.AddDays(1) {
		if _, ok := series[d]; !ok {
			series[d] = 0
		}
	}
	return series, nil
}
