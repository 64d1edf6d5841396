package utility

import (
	"context"

	"cloud.google.com/go/civil"

	"github.com/raterudder/dataconnect/pkg/types"
)

// MeterReader defines the interface for fetching metering data of a site.
type MeterReader interface {
	// GetMaxDailyConsumedPower returns the peak consumed power of each day.
	GetMaxDailyConsumedPower(ctx context.Context, start, end civil.Date) (types.CurveSeries, error)

	// GetDailyConsumption returns the consumed energy per day.
	GetDailyConsumption(ctx context.Context, start, end civil.Date) (types.DailySeries, error)

	// GetConsumptionLoadCurve returns the consumed power per period.
	GetConsumptionLoadCurve(ctx context.Context, start, end civil.Date) (types.CurveSeries, error)

	// GetDailyProduction returns the produced energy per day.
	GetDailyProduction(ctx context.Context, start, end civil.Date) (types.DailySeries, error)

	// GetProductionLoadCurve returns the produced power per period.
	GetProductionLoadCurve(ctx context.Context, start, end civil.Date) (types.CurveSeries, error)
}
