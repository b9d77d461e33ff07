package ingest

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// The provider is loose about scalar types: durations arrive as 125, 125.0 or "125",
// flags as true or "true". These types accept any of those and stay unset on values
// they cannot read, so one odd field never discards the rest of the payload.

type flexInt struct {
	V   int
	Set bool
}

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(b)), `"`)
	if s == "" || s == "null" {
		return nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		f.V, f.Set = n, true
		return nil
	}
	if x, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(x) && !math.IsInf(x, 0) {
		f.V, f.Set = int(math.Round(x)), true
	}
	return nil
}

func (f flexInt) ptr() *int {
	if !f.Set {
		return nil
	}
	v := f.V
	return &v
}

type flexFloat struct {
	V   float64
	Set bool
}

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(b)), `"`)
	if s == "" || s == "null" {
		return nil
	}
	if x, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(x) && !math.IsInf(x, 0) {
		f.V, f.Set = x, true
	}
	return nil
}

type flexBool struct {
	V   bool
	Set bool
}

func (f *flexBool) UnmarshalJSON(b []byte) error {
	s := strings.ToLower(strings.Trim(string(bytes.TrimSpace(b)), `"`))
	switch s {
	case "true", "1", "yes":
		f.V, f.Set = true, true
	case "false", "0", "no":
		f.V, f.Set = false, true
	}
	return nil
}

// flexString accepts strings and numbers; ids are sometimes sent as integers.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	if b[0] == '-' || (b[0] >= '0' && b[0] <= '9') {
		*f = flexString(b)
	}
	return nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.000000",
}

// flexTime reads RFC3339 strings, "Y-m-d H:i:s" strings (UTC) and unix seconds or
// milliseconds.
type flexTime struct {
	V   time.Time
	Set bool
}

func (f *flexTime) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] != '"' {
		n, err := strconv.ParseInt(string(b), 10, 64)
		if err != nil || n <= 0 {
			return nil
		}
		if n > 1e12 {
			f.V = time.UnixMilli(n).UTC()
		} else {
			f.V = time.Unix(n, 0).UTC()
		}
		f.Set = true
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return nil
	}
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			f.V, f.Set = t.UTC(), true
			return nil
		}
	}
	return nil
}

func (f flexTime) ptr() *time.Time {
	if !f.Set {
		return nil
	}
	t := f.V
	return &t
}

func firstString(vals ...flexString) string {
	for _, v := range vals {
		if s := strings.TrimSpace(string(v)); s != "" {
			return s
		}
	}
	return ""
}

func firstTime(vals ...flexTime) flexTime {
	for _, v := range vals {
		if v.Set {
			return v
		}
	}
	return flexTime{}
}

func firstInt(vals ...flexInt) flexInt {
	for _, v := range vals {
		if v.Set {
			return v
		}
	}
	return flexInt{}
}
