package jsongraph

import (
	"bytes"
	"strconv"
	"time"
)

// applyZone converts t according to the zone policy
func applyZone(t time.Time, zone DateZone) time.Time {
	switch zone {
	case ZoneUTC:
		return t.UTC()
	case ZoneLocal:
		return t.Local()
	}
	return t
}

// writeEpochDate writes "\/Date(ms±hhmm)\/". UTC values carry no offset.
func writeEpochDate(buf *bytes.Buffer, t time.Time) {
	buf.WriteString(`"\/Date(`)
	buf.WriteString(strconv.FormatInt(t.UnixMilli(), 10))
	if t.Location() != time.UTC {
		_, offset := t.Zone()
		sign := byte('+')
		if offset < 0 {
			sign = '-'
			offset = -offset
		}
		buf.WriteByte(sign)
		hh, mm := offset/3600, offset%3600/60
		buf.WriteByte(byte('0' + hh/10))
		buf.WriteByte(byte('0' + hh%10))
		buf.WriteByte(byte('0' + mm/10))
		buf.WriteByte(byte('0' + mm%10))
	}
	buf.WriteString(`)\/"`)
}

// parseEpochDate parses the decoded form /Date(ms±hhmm)/
func parseEpochDate(s string) (time.Time, bool) {
	if len(s) < len(epochPrefix)+len(epochSuffix)+1 ||
		s[:len(epochPrefix)] != epochPrefix || s[len(s)-len(epochSuffix):] != epochSuffix {
		return time.Time{}, false
	}
	body := s[len(epochPrefix) : len(s)-len(epochSuffix)]

	end := 0
	if end < len(body) && body[end] == '-' {
		end++
	}
	end = skipDigits(body, end)
	ms, err := strconv.ParseInt(body[:end], 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	t := time.UnixMilli(ms)

	zone := body[end:]
	switch {
	case zone == "":
		return t.UTC(), true
	case len(zone) == 5 && (zone[0] == '+' || zone[0] == '-') && skipDigits(zone, 1) == 5:
		hh, _ := strconv.Atoi(zone[1:3])
		mm, _ := strconv.Atoi(zone[3:5])
		offset := hh*3600 + mm*60
		if zone[0] == '-' {
			offset = -offset
		}
		return t.In(time.FixedZone("", offset)), true
	}
	return time.Time{}, false
}

// parseDate accepts the epoch form and then each configured layout
func parseDate(s string, settings *Settings) (time.Time, error) {
	if t, ok := parseEpochDate(s); ok {
		return applyZone(t, settings.DateZone), nil
	}
	for _, layout := range settings.DateParseLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return applyZone(t, settings.DateZone), nil
		}
	}
	t, err := time.Parse(settings.DateLayout, s)
	if err != nil && settings.DateLayout != time.RFC3339Nano {
		t, err = time.Parse(time.RFC3339Nano, s)
	}
	if err != nil {
		return time.Time{}, err
	}
	return applyZone(t, settings.DateZone), nil
}

// detectDate reports whether a generic string looks like a date and parses it
func detectDate(s string, settings *Settings) (time.Time, bool) {
	if len(s) < 10 {
		return time.Time{}, false
	}
	if s[0] != '/' && !(s[4] == '-' && s[7] == '-') {
		return time.Time{}, false
	}
	t, err := parseDate(s, settings)
	return t, err == nil
}
