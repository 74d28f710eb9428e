package campussvc

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

// record is a JSON object whose keys have been normalised: lower case, without separators.
// The backend is inconsistent about key names (studentId, student_id, StudentID...).
type record map[string]interface{}

func normaliseKey(k string) string {
	var b strings.Builder
	for _, r := range k {
		if r == '_' || r == '-' || r == ' ' || r == '.' {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

func newRecord(m map[string]interface{}) record {
	rec := make(record, len(m))
	for k, v := range m {
		nk := normaliseKey(k)
		if _, ok := rec[nk]; !ok {
			rec[nk] = v
		}
	}
	return rec
}

// records extracts the list of objects from a decoded answer.
func records(payload interface{}) []record {
	switch p := payload.(type) {
	case []interface{}:
		recs := make([]record, 0, len(p))
		for _, item := range p {
			if m, ok := item.(map[string]interface{}); ok {
				recs = append(recs, newRecord(m))
			}
		}
		return recs
	case map[string]interface{}:
		rec := newRecord(p)
		for _, key := range []string{"data", "items", "results", "records", "students", "invoices", "feestructures"} {
			if inner, ok := rec[key]; ok {
				return records(inner)
			}
		}
		return []record{rec}
	}
	return nil
}

func (r record) lookup(aliases ...string) (interface{}, bool) {
	for _, a := range aliases {
		if v, ok := r[a]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func (r record) str(aliases ...string) string {
	v, ok := r.lookup(aliases...)
	if !ok {
		return ""
	}
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case json.Number:
		return s.String()
	case bool:
		return strconv.FormatBool(s)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

func (r record) amount(aliases ...string) decimal.Decimal {
	v, ok := r.lookup(aliases...)
	if !ok {
		return decimal.Zero
	}
	return toDecimal(v)
}

func (r record) num(aliases ...string) int {
	return int(r.amount(aliases...).IntPart())
}

func (r record) flag(aliases ...string) bool {
	v, ok := r.lookup(aliases...)
	if !ok {
		return false
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, _ := strconv.ParseBool(strings.TrimSpace(b))
		return parsed
	case json.Number:
		return b.String() != "0"
	}
	return false
}

var dateLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02", "02/01/2006", "02-01-2006"}

func (r record) date(aliases ...string) *time.Time {
	s := r.str(aliases...)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func toDecimal(v interface{}) decimal.Decimal {
	switch n := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		if err == nil {
			return d
		}
	case float64:
		return decimal.NewFromFloat(n)
	case int:
		return decimal.NewFromInt(int64(n))
	case int64:
		return decimal.NewFromInt(n)
	case string:
		s := strings.NewReplacer(",", "", " ", "").Replace(strings.TrimSpace(n))
		if d, err := decimal.NewFromString(s); err == nil {
			return d
		}
	}
	return decimal.Zero
}

// toSnake turns studentId into student_id.
func toSnake(k string) string {
	var b strings.Builder
	for i, r := range k {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}
