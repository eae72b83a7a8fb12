package analysis

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var numberReplacer = strings.NewReplacer(
	"%", "",
	"$", "",
	"€", "",
	"£", "",
	"¥", "",
	"\u00a0", " ",
	"\u202f", " ",
	"−", "-",
)

// ParseNumber parses a cell as a number, auto-detecting the decimal and
// thousands separators. Percent signs and common currency symbols are ignored
// and a trailing "million"/"billion" scales the value.
func ParseNumber(s string) (float64, bool) {
	return parseNumeric(s, 0, 0)
}

var (
	plainNumber = regexp.MustCompile(`^[-+]?(\d+\.?\d*|\.\d+)([eE][-+]?\d+)?$`)
	commaNumber = regexp.MustCompile(`^[-+]?\d+,\d+$`)
	scaleSuffix = regexp.MustCompile(`(?i)^(.*\d)\s*(billion|bn|million|mn|m|thousand)\.?$`)
	// grouped numbers keyed by thousands separator; digit groups are exactly three long.
	groupedNumber = []struct {
		thou, dec rune
		re        *regexp.Regexp
	}{
		{',', '.', regexp.MustCompile(`^[-+]?\d{1,3}(,\d{3})+(\.\d+)?$`)},
		{'.', ',', regexp.MustCompile(`^[-+]?\d{1,3}(\.\d{3})+(,\d+)?$`)},
		{' ', ',', regexp.MustCompile(`^[-+]?\d{1,3}( \d{3})+(,\d+)?$`)},
		{' ', '.', regexp.MustCompile(`^[-+]?\d{1,3}( \d{3})+(\.\d+)?$`)},
		{'\'', '.', regexp.MustCompile(`^[-+]?\d{1,3}('\d{3})+(\.\d+)?$`)},
	}
)

var scales = map[string]float64{
	"thousand": 1e3,
	"m":        1e6, "mn": 1e6, "million": 1e6,
	"bn": 1e9, "billion": 1e9,
}

func parseNumeric(s string, dec, thou rune) (float64, bool) {
	raw := strings.TrimSpace(numberReplacer.Replace(s))
	if raw == "" {
		return 0, false
	}
	scale := 1.0
	if m := scaleSuffix.FindStringSubmatch(raw); m != nil {
		raw, scale = strings.TrimSpace(m[1]), scales[strings.ToLower(m[2])]
	}
	var (
		f  float64
		ok bool
	)
	if dec == 0 {
		f, ok = parseAuto(raw)
	} else {
		f, ok = parseWith(raw, dec, thou)
	}
	if !ok {
		return 0, false
	}
	return f * scale, true
}

// parseAuto accepts plain numbers, a lone decimal comma ("0,5"), and numbers
// whose thousands groups are exactly three digits ("1.234,5", "1,234.5").
// "1,234" is read as a thousand. Dates, versions and addresses fail.
func parseAuto(raw string) (float64, bool) {
	switch {
	case plainNumber.MatchString(raw):
		return toFloat(raw)
	case commaNumber.MatchString(raw) && len(raw)-strings.LastIndex(raw, ",")-1 != 3:
		return toFloat(strings.Replace(raw, ",", ".", 1))
	}
	for _, g := range groupedNumber {
		if g.re.MatchString(raw) {
			return parseWith(raw, g.dec, g.thou)
		}
	}
	return 0, false
}

// parseWith applies an explicit locale: thousands separators are dropped and
// the decimal separator becomes '.'. thou 0 drops every other separator.
func parseWith(raw string, dec, thou rune) (float64, bool) {
	if thou == 0 {
		for _, sep := range []rune{',', '.', ' ', '\''} {
			if sep != dec {
				raw = strings.ReplaceAll(raw, string(sep), "")
			}
		}
	} else if thou != dec {
		raw = strings.ReplaceAll(raw, string(thou), "")
	}
	raw = strings.ReplaceAll(raw, " ", "")
	if dec != '.' {
		raw = strings.ReplaceAll(raw, string(dec), ".")
	}
	return toFloat(raw)
}

func toFloat(raw string) (float64, bool) {
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func parseTimeMaybe(s string) (time.Time, bool) {
	layouts := []string{
		time.RFC3339, "2006-01-02", "2006/01/02", "02/01/2006", "01/02/2006",
		"2006-01-02 15:04", "2006-01-02 15:04:05", "1/2/2006 15:04", "1/2/2006 15:04:05",
		"2006-01-02T15:04:05", "02.01.2006", "Jan 2, 2006", "2 January 2006", "January 2, 2006",
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// normalizeUnit converts x from unit into the configured target unit.
func normalizeUnit(x float64, unit string, targets map[string]string) (float64, string, bool) {
	target, ok := targets[unit]
	if !ok {
		return x, unit, false
	}
	switch unit + ">" + target {
	case "g/L>mg/L":
		return x * 1000, target, true
	case "ug/L>mg/L":
		return x / 1000, target, true
	case "°F>°C":
		return (x - 32) * 5.0 / 9.0, target, true
	case "km>m":
		return x * 1000, target, true
	}
	return x, unit, false
}

var unitPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(.*?)\s*\(([^)]+)\)\s*$`),  // Alpha (%)
	regexp.MustCompile(`^(.*?)\s*\[([^\]]+)\]\s*$`), // Mass [mg/L]
	regexp.MustCompile(`^(.*?)[_\s-]+(mg/L|g/L|ug/L|°[CF]|Brix|%|ppm|ppb|USD|km)$`),
}

// SplitUnits separates a trailing unit annotation from a column header.
func SplitUnits(name string) (clean string, unit string) {
	s := strings.TrimSpace(name)
	for _, re := range unitPatterns {
		if m := re.FindStringSubmatch(s); len(m) == 3 {
			base := strings.TrimSpace(m[1])
			u := strings.TrimSpace(m[2])
			if base != "" && u != "" {
				return base, u
			}
		}
	}
	return s, ""
}
