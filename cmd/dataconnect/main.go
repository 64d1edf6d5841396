package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"cloud.google.com/go/civil"
	"github.com/levenlabs/go-lflag"
	"github.com/levenlabs/go-llog"
	"gopkg.in/yaml.v3"

	"github.com/raterudder/dataconnect/pkg/log"
	"github.com/raterudder/dataconnect/pkg/types"
	"github.com/raterudder/dataconnect/pkg/utility"
)

// defaultDays is the window fetched when --start is omitted
const defaultDays = 7

func main() {
	// init packages
	enedis, client := utility.Configured()

	reportName := lflag.String("report", utility.DailyConsumption.String(), "Report to fetch (max_daily_consumed_power, daily_consumption, consumption_load_curve, daily_production, production_load_curve)")
	startFlag := lflag.String("start", "", "First day to fetch (YYYY-MM-DD). Defaults to 7 days before --end.")
	endFlag := lflag.String("end", "", "Day after the last day to fetch (YYYY-MM-DD). Defaults to today in Paris.")
	format := lflag.String("format", "json", "Output format (json or yaml)")

	// parse flags
	lflag.Configure()

	var level slog.Level
	// lflag automatically sets llog's level, but we need to set the slog level
	switch llog.GetLevel() {
	case llog.DebugLevel:
		level = slog.LevelDebug
	case llog.InfoLevel:
		level = slog.LevelInfo
	case llog.WarnLevel:
		level = slog.LevelWarn
	case llog.ErrorLevel:
		level = slog.LevelError
	default:
		panic(fmt.Errorf("unknown log level: %s", llog.GetLevel().String()))
	}
	log.SetDefaultLogLevel(level)

	// stdout carries the report so logs go to stderr
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	slog.Debug("logger configured", slog.String("level", level.String()))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx = log.With(ctx, logger)

	report, err := utility.ParseReport(*reportName)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "invalid report", slog.Any("error", err))
		os.Exit(2)
	}
	start, end, err := parseRange(*startFlag, *endFlag, utility.Today())
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "invalid date range", slog.Any("error", err))
		os.Exit(2)
	}

	// the token is revoked even when the report fails
	err = func() error {
		defer client.Close(context.WithoutCancel(ctx))
		return run(ctx, enedis, report, start, end, *format, os.Stdout)
	}()
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to fetch report", slog.String("report", report.String()), slog.Any("error", err))
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(
		ctx,
		"report fetched",
		slog.String("report", report.String()),
		slog.Int64("requests", client.RequestCount()),
		slog.Int64("errors", client.ErrorsCount()),
	)
}

// parseRange resolves the --start and --end flags. An empty end is today and
// an empty start is defaultDays before end.
func parseRange(startFlag, endFlag string, today civil.Date) (civil.Date, civil.Date, error) {
	end := today
	if endFlag != "" {
		d, err := civil.ParseDate(endFlag)
		if err != nil {
			return civil.Date{}, civil.Date{}, fmt.Errorf("invalid end date (%s): %w", endFlag, err)
		}
		end = d
	}
	start := end.AddDays(-defaultDays)
	if startFlag != "" {
		d, err := civil.ParseDate(startFlag)
		if err != nil {
			return civil.Date{}, civil.Date{}, fmt.Errorf("invalid start date (%s): %w", startFlag, err)
		}
		start = d
	}
	return start, end, nil
}

// run fetches report and writes the series to w as a single object keyed by
// date, in the given format.
func run(ctx context.Context, r utility.MeterReader, report utility.Report, start, end civil.Date, format string, w io.Writer) error {
	if format != "json" && format != "yaml" {
		return fmt.Errorf("unknown format: %s", format)
	}

	var (
		series any
		err    error
	)
	switch report {
	case utility.MaxDailyConsumedPower:
		series, err = r.GetMaxDailyConsumedPower(ctx, start, end)
	case utility.DailyConsumption:
		series, err = r.GetDailyConsumption(ctx, start, end)
	case utility.ConsumptionLoadCurve:
		series, err = r.GetConsumptionLoadCurve(ctx, start, end)
	case utility.DailyProduction:
		series, err = r.GetDailyProduction(ctx, start, end)
	case utility.ProductionLoadCurve:
		series, err = r.GetProductionLoadCurve(ctx, start, end)
	default:
		return fmt.Errorf("unknown report: %s", report)
	}
	if err != nil {
		return err
	}

	if format == "yaml" {
		enc := yaml.NewEncoder(w)
		if err := enc.Encode(keyed(series)); err != nil {
			return err
		}
		return enc.Close()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(series)
}

// keyed converts a series to string keys so every encoder sorts and prints
// them the same way.
func keyed(series any) map[string]int {
	out := map[string]int{}
	switch s := series.(type) {
	case types.DailySeries:
		for d, v := range s {
			out[d.String()] = v
		}
	case types.CurveSeries:
		for dt, v := range s {
			out[dt.String()] = v
		}
	}
	return out
}
