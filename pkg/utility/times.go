package utility

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
)

// Enedis reports days in French local time
var parisLocation = func() *time.Location {
	loc, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		panic(fmt.Errorf("failed to load paris time location: %w", err))
	}
	return loc
}()

// Today returns the current day in French local time.
func Today() civil.Date {
	return DateOf(time.Now())
}

// DateOf returns the day t falls on in French local time.
func DateOf(t time.Time) civil.Date {
	return civil.DateOf(t.In(parisLocation))
}
