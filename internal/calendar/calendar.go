// Package calendar turns the day/month pairs shown on event cards into real
// dates and picks the next upcoming event.
package calendar

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Shivanand-hulikatti/cielo-abierto/internal/model"
)

var monthCodes = [12]string{"ENE", "FEB", "MAR", "ABR", "MAY", "JUN", "JUL", "AGO", "SEP", "OCT", "NOV", "DIC"}

// FarFuture is returned for dates that cannot be parsed, so such events sort
// last instead of breaking comparisons.
var FarFuture = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)

// MonthCode returns the 3-letter code of m.
func MonthCode(m time.Month) string {
	if m < time.January || m > time.December {
		return ""
	}
	return monthCodes[m-1]
}

// ParseMonth maps a 3-letter code to its month. Matching ignores case and
// surrounding spaces.
func ParseMonth(code string) (time.Month, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	for i, c := range monthCodes {
		if c == code {
			return time.Month(i + 1), true
		}
	}
	return 0, false
}

// ParseEventDate resolves d against now. Dates without an explicit year are
// placed in the current year and rolled to the next one when that day is
// already over. Malformed dates map to FarFuture.
func ParseEventDate(d model.EventDate, now time.Time) time.Time {
	month, ok := ParseMonth(d.Month)
	if !ok {
		return FarFuture
	}
	day, err := strconv.Atoi(strings.TrimSpace(d.Day))
	if err != nil || day < 1 || day > 31 {
		return FarFuture
	}

	loc := now.Location()
	year := d.Year
	explicit := year > 0
	if !explicit {
		year = now.Year()
	}
	t := time.Date(year, month, day, 0, 0, 0, 0, loc)
	if t.Month() != month {
		// 31 ABR and friends
		return FarFuture
	}
	if !explicit && t.Before(startOfDay(now)) {
		t = time.Date(year+1, month, day, 0, 0, 0, 0, loc)
	}
	return t
}

// FromTime builds the card date for t, keeping the year.
func FromTime(t time.Time) model.EventDate {
	return model.EventDate{
		Day:   t.Format("02"),
		Month: MonthCode(t.Month()),
		Year:  t.Year(),
	}
}

// ParseFormDate parses the YYYY-MM-DD value of a date input.
func ParseFormDate(s string) (model.EventDate, bool) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return model.EventDate{}, false
	}
	return FromTime(t), true
}

// NextUpcoming returns the earliest booking event that has not happened yet.
func NextUpcoming(events []model.Event, now time.Time) (model.Event, bool) {
	type dated struct {
		event model.Event
		at    time.Time
	}
	today := startOfDay(now)
	var upcoming []dated
	for _, e := range events {
		if !e.IsBooking() {
			continue
		}
		at := ParseEventDate(e.Date, now)
		if at.Before(today) {
			continue
		}
		upcoming = append(upcoming, dated{event: e, at: at})
	}
	if len(upcoming) == 0 {
		return model.Event{}, false
	}
	sort.SliceStable(upcoming, func(i, j int) bool {
		return upcoming[i].at.Before(upcoming[j].at)
	})
	return upcoming[0].event, true
}

// SortByDate orders events by their resolved date, keeping storage order for
// ties.
func SortByDate(events []model.Event, now time.Time) []model.Event {
	out := make([]model.Event, len(events))
	copy(out, events)
	sort.SliceStable(out, func(i, j int) bool {
		return ParseEventDate(out[i].Date, now).Before(ParseEventDate(out[j].Date, now))
	})
	return out
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
