// Package rrule translates the §6.2 iCalendar RRULE subset
// (FREQ/INTERVAL/BYHOUR/BYMINUTE/BYDAY) into a 5-field cron expression and
// computes the next occurrence via github.com/adhocore/gronx, the same
// cron engine the teacher wires in for its scheduler lane.
package rrule

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/adhocore/gronx"
)

var weekdayToCron = map[string]string{
	"SU": "0", "MO": "1", "TU": "2", "WE": "3", "TH": "4", "FR": "5", "SA": "6",
}

// ErrUnsupported is returned for RRULE shapes outside the §6.2 subset.
type ErrUnsupported struct{ Reason string }

func (e ErrUnsupported) Error() string { return "rrule: unsupported: " + e.Reason }

// ToCron converts an RRULE string (e.g. "FREQ=DAILY;BYHOUR=9;BYMINUTE=0")
// into a 5-field cron expression ("0 9 * * *").
func ToCron(rule string) (string, error) {
	fields, err := parseFields(rule)
	if err != nil {
		return "", err
	}

	minute := fields["BYMINUTE"]
	if minute == "" {
		minute = "0"
	}
	hour := fields["BYHOUR"]
	if hour == "" {
		hour = "*"
	}

	dom, month, dow := "*", "*", "*"

	switch fields["FREQ"] {
	case "DAILY":
		// handled by defaults
	case "WEEKLY":
		if byday := fields["BYDAY"]; byday != "" {
			days := make([]string, 0)
			for _, d := range strings.Split(byday, ",") {
				cronDay, ok := weekdayToCron[strings.TrimSpace(d)]
				if !ok {
					return "", ErrUnsupported{Reason: "unknown BYDAY value " + d}
				}
				days = append(days, cronDay)
			}
			sort.Strings(days)
			dow = strings.Join(days, ",")
		} else {
			return "", ErrUnsupported{Reason: "WEEKLY requires BYDAY"}
		}
	case "MONTHLY":
		if bymonthday := fields["BYMONTHDAY"]; bymonthday != "" {
			dom = bymonthday
		} else {
			return "", ErrUnsupported{Reason: "MONTHLY requires BYMONTHDAY"}
		}
	case "YEARLY":
		if bymonth := fields["BYMONTH"]; bymonth != "" {
			month = bymonth
		} else {
			return "", ErrUnsupported{Reason: "YEARLY requires BYMONTH"}
		}
		if bymonthday := fields["BYMONTHDAY"]; bymonthday != "" {
			dom = bymonthday
		}
	default:
		return "", ErrUnsupported{Reason: "unsupported FREQ " + fields["FREQ"]}
	}

	if interval := fields["INTERVAL"]; interval != "" && interval != "1" {
		n, err := strconv.Atoi(interval)
		if err != nil {
			return "", ErrUnsupported{Reason: "invalid INTERVAL " + interval}
		}
		switch fields["FREQ"] {
		case "DAILY":
			dom = fmt.Sprintf("*/%d", n)
		case "HOURLY":
			hour = fmt.Sprintf("*/%d", n)
		}
	}

	return fmt.Sprintf("%s %s %s %s %s", minute, hour, dom, month, dow), nil
}

func parseFields(rule string) (map[string]string, error) {
	fields := map[string]string{}
	for _, part := range strings.Split(rule, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return nil, ErrUnsupported{Reason: "malformed clause " + part}
		}
		fields[strings.ToUpper(kv[0])] = strings.ToUpper(kv[1])
	}
	if fields["FREQ"] == "" {
		return nil, ErrUnsupported{Reason: "missing FREQ"}
	}
	return fields, nil
}

// NextAfter computes the next occurrence of rule strictly after from. The
// bool return is false if rule has exhausted its recurrence (never true for
// the supported FREQ subset, but kept so callers — AutomationStore.
// RecordScheduleExecution — have a uniform signal to disable automations
// whose RecurrenceRule became invalid).
func NextAfter(from time.Time, rule string) (time.Time, bool, error) {
	cronExpr, err := ToCron(rule)
	if err != nil {
		return time.Time{}, false, err
	}
	next, err := gronx.NextTickAfter(cronExpr, from, false)
	if err != nil {
		return time.Time{}, false, err
	}
	return next, true, nil
}
