package schwab

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"schwabgw/internal/errors"
)

// CandleTimeLayout is the format of the derived datetime_iso candle field.
const CandleTimeLayout = "2006-01-02T15:04:05Z"

var (
	periodTypes    = set("day", "month", "year", "ytd")
	frequencyTypes = set("minute", "daily", "weekly", "monthly")
)

// datetime layouts accepted for startDate/endDate besides epoch milliseconds.
// Layouts without an offset are read as UTC.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// PriceHistoryQuery holds the optional price history filters. Nil means absent.
type PriceHistoryQuery struct {
	PeriodType            *string
	Period                *int
	FrequencyType         *string
	Frequency             *int
	StartDate             *int64 // epoch milliseconds
	EndDate               *int64 // epoch milliseconds
	NeedExtendedHoursData *bool
	NeedPreviousClose     *bool
}

// ParsePriceHistoryQuery validates raw query parameters. Unknown keys are rejected.
// A key given more than once uses its last value.
func ParsePriceHistoryQuery(values url.Values) (PriceHistoryQuery, error) {
	var (
		q          PriceHistoryQuery
		violations []string
	)
	fail := func(key, format string, args ...interface{}) {
		violations = append(violations, key+": "+fmt.Sprintf(format, args...))
	}

	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		vs := values[key]
		if len(vs) == 0 {
			continue
		}
		raw := strings.TrimSpace(vs[len(vs)-1])

		switch key {
		case "periodType":
			if _, ok := periodTypes[raw]; !ok {
				fail(key, "unsupported value %q", raw)
				continue
			}
			q.PeriodType = &raw
		case "frequencyType":
			if _, ok := frequencyTypes[raw]; !ok {
				fail(key, "unsupported value %q", raw)
				continue
			}
			q.FrequencyType = &raw
		case "period", "frequency":
			n, err := strconv.Atoi(raw)
			if err != nil {
				fail(key, "must be an integer")
				continue
			}
			if n <= 0 {
				fail(key, "must be greater than 0")
				continue
			}
			if key == "period" {
				q.Period = &n
			} else {
				q.Frequency = &n
			}
		case "startDate", "endDate":
			ms, err := parseDate(raw)
			if err != nil {
				fail(key, "must be epoch milliseconds or an ISO 8601 datetime")
				continue
			}
			if key == "startDate" {
				q.StartDate = &ms
			} else {
				q.EndDate = &ms
			}
		case "needExtendedHoursData", "needPreviousClose":
			b, err := parseBool(raw)
			if err != nil {
				fail(key, "must be a boolean")
				continue
			}
			if key == "needExtendedHoursData" {
				q.NeedExtendedHoursData = &b
			} else {
				q.NeedPreviousClose = &b
			}
		default:
			fail(key, "unknown query parameter")
		}
	}

	if len(violations) > 0 {
		return PriceHistoryQuery{}, errors.NewValidationError("Invalid price history query", violations...)
	}
	return q, nil
}

func parseDate(raw string) (int64, error) {
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return ms, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t.UnixMilli(), nil
		}
	}
	return 0, fmt.Errorf("unrecognized datetime %q", raw)
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(raw) {
	case "yes", "on":
		return true, nil
	case "no", "off":
		return false, nil
	}
	return strconv.ParseBool(raw)
}

// Params renders the present fields as upstream query parameters.
func (q PriceHistoryQuery) Params() url.Values {
	v := url.Values{}
	if q.PeriodType != nil {
		v.Set("periodType", *q.PeriodType)
	}
	if q.Period != nil {
		v.Set("period", strconv.Itoa(*q.Period))
	}
	if q.FrequencyType != nil {
		v.Set("frequencyType", *q.FrequencyType)
	}
	if q.Frequency != nil {
		v.Set("frequency", strconv.Itoa(*q.Frequency))
	}
	if q.StartDate != nil {
		v.Set("startDate", strconv.FormatInt(*q.StartDate, 10))
	}
	if q.EndDate != nil {
		v.Set("endDate", strconv.FormatInt(*q.EndDate, 10))
	}
	if q.NeedExtendedHoursData != nil {
		v.Set("needExtendedHoursData", strconv.FormatBool(*q.NeedExtendedHoursData))
	}
	if q.NeedPreviousClose != nil {
		v.Set("needPreviousClose", strconv.FormatBool(*q.NeedPreviousClose))
	}
	return v
}

// annotateCandles adds datetime_iso to every candle object with a numeric
// datetime. Other candles are passed through as they are.
func annotateCandles(raw map[string]any) {
	candles, ok := raw["candles"].([]any)
	if !ok {
		return
	}
	for i, c := range candles {
		candle, ok := c.(map[string]any)
		if !ok {
			continue
		}
		ms, ok := epochMillis(candle["datetime"])
		if !ok {
			continue
		}
		candle["datetime_iso"] = time.UnixMilli(ms).UTC().Format(CandleTimeLayout)
		candles[i] = candle
	}
}

func epochMillis(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
			return 0, false
		}
		return int64(math.Floor(f)), true
	case float64:
		return int64(math.Floor(n)), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	}
	return 0, false
}
