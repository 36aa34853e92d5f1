package listsync

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	dateLayout    = "2006-01-02"
	instantLayout = "2006-01-02T15:04:05.000Z07:00"
)

// Param is one outgoing query parameter.
type Param struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Params is an ordered parameter set.
type Params []Param

// Get returns the value stored under key.
func (p Params) Get(key string) (string, bool) {
	for _, param := range p {
		if param.Key == key {
			return param.Value, true
		}
	}
	return "", false
}

// Has reports whether key is present.
func (p Params) Has(key string) bool {
	_, ok := p.Get(key)
	return ok
}

// Values converts the set into url.Values.
func (p Params) Values() url.Values {
	values := make(url.Values, len(p))
	for _, param := range p {
		values.Add(param.Key, param.Value)
	}
	return values
}

// Encode renders the set as a query string, keeping insertion order.
func (p Params) Encode() string {
	var b strings.Builder
	for i, param := range p {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(param.Key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(param.Value))
	}
	return b.String()
}

// Sort is the current sort selection.
type Sort struct {
	By    string `json:"by"`
	Order string `json:"order,omitempty"`
}

// SortKeys maps a Sort onto parameter names. An empty Order key means the
// screen uses a single composite sort key.
type SortKeys struct {
	By    string
	Order string
}

// DefaultSortKeys is the split sortBy/sortOrder convention.
var DefaultSortKeys = SortKeys{By: "sortBy", Order: "sortOrder"}

// FieldValue pairs a field declaration with its debounced value.
type FieldValue struct {
	Spec  FieldSpec
	Value any
}

// Builder composes outgoing parameters from screen state.
type Builder struct {
	// Location anchors date-range fields. Defaults to time.Local.
	Location *time.Location
	SortKeys SortKeys
	PageKey  string
	LimitKey string
}

// Build returns page, limit and sort keys followed by every field whose
// value is neither nil nor the empty string.
func (b Builder) Build(fields []FieldValue, sort Sort, page, limit int) Params {
	loc := b.Location
	if loc == nil {
		loc = time.Local
	}
	keys := b.SortKeys
	if keys.By == "" {
		keys = DefaultSortKeys
	}

	params := make(Params, 0, len(fields)+4)
	params = append(params,
		Param{Key: orDefault(b.PageKey, "page"), Value: strconv.Itoa(page)},
		Param{Key: orDefault(b.LimitKey, "limit"), Value: strconv.Itoa(limit)},
		Param{Key: keys.By, Value: sort.By},
	)
	if keys.Order != "" {
		params = append(params, Param{Key: keys.Order, Value: sort.Order})
	}
	for _, field := range fields {
		if isEmpty(field.Value) {
			continue
		}
		params = append(params, Param{
			Key:   field.Spec.ParamName(),
			Value: formatValue(field.Spec.Kind, field.Value, loc),
		})
	}
	return params
}

// Build composes parameters using the local time zone and default keys.
func Build(fields []FieldValue, sort Sort, page, limit int) Params {
	return Builder{}.Build(fields, sort, page, limit)
}

func isEmpty(v any) bool {
	switch value := v.(type) {
	case nil:
		return true
	case string:
		return value == ""
	}
	return false
}

func formatValue(kind FieldKind, v any, loc *time.Location) string {
	switch kind {
	case KindDateFrom, KindDateTo:
		if day, ok := parseDay(v, loc); ok {
			if kind == KindDateTo {
				y, m, d := day.Date()
				day = time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), loc)
			}
			return day.UTC().Format(instantLayout)
		}
	}
	return formatScalar(v)
}

// parseDay returns local midnight of the calendar day v refers to.
func parseDay(v any, loc *time.Location) (time.Time, bool) {
	var t time.Time
	switch value := v.(type) {
	case time.Time:
		t = value.In(loc)
	case string:
		parsed, err := time.ParseInLocation(dateLayout, value, loc)
		if err != nil {
			parsed, err = time.Parse(time.RFC3339, value)
			if err != nil {
				return time.Time{}, false
			}
			parsed = parsed.In(loc)
		}
		t = parsed
	default:
		return time.Time{}, false
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc), true
}

func formatScalar(v any) string {
	switch value := v.(type) {
	case string:
		return value
	case bool:
		return strconv.FormatBool(value)
	case int:
		return strconv.Itoa(value)
	case int64:
		return strconv.FormatInt(value, 10)
	case int32:
		return strconv.FormatInt(int64(value), 10)
	case uint:
		return strconv.FormatUint(uint64(value), 10)
	case uint64:
		return strconv.FormatUint(value, 10)
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(value), 'f', -1, 32)
	case time.Time:
		return value.UTC().Format(instantLayout)
	case fmt.Stringer:
		return value.String()
	}
	return fmt.Sprint(v)
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
