package utility

import (
	"log/slog"

	"github.com/raterudder/dataconnect/pkg/log"
)

func init() {
	log.SetDefaultLogLevel(slog.LevelError)
}
