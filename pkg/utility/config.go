package utility

import (
	"github.com/raterudder/dataconnect/pkg/dataconnect"
)

// Configured sets up the Data Connect client from flags and returns the
// facade along with the client so the caller can close it.
func Configured() (*Enedis, *dataconnect.Client) {
	c := dataconnect.Configured()
	return NewEnedis(c), c
}
