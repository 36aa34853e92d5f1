package listsync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type emission struct {
	name    string
	value   any
	changed bool
	at      time.Time
}

func recordEmissions(clock Clock, out *[]emission) EmitFunc {
	return func(name string, value any, changed bool) {
		*out = append(*out, emission{name: name, value: value, changed: changed, at: clock.Now()})
	}
}

func TestFieldDebounceCollapse(t *testing.T) {
	clock := newFakeClock()
	start := clock.Now()
	var got []emission
	f := NewField(FieldSpec{Name: "search", Kind: KindText, Debounce: 500 * time.Millisecond}, clock, recordEmissions(clock, &got))

	for _, v := range []string{"l", "la", "lap", "lapt"} {
		f.Update(v)
		clock.Advance(150 * time.Millisecond)
	}
	f.Update("laptop")
	clock.Advance(time.Second)

	require.Len(t, got, 1)
	require.Equal(t, "laptop", got[0].value)
	require.True(t, got[0].changed)
	require.Equal(t, start.Add(600*time.Millisecond+500*time.Millisecond), got[0].at)

	state := f.State()
	require.Equal(t, "laptop", state.Raw)
	require.Equal(t, "laptop", state.Debounced)
}

func TestFieldDefaultDebounce(t *testing.T) {
	clock := newFakeClock()
	var got []emission
	f := NewField(FieldSpec{Name: "search"}, clock, recordEmissions(clock, &got))

	f.Update("x")
	clock.Advance(DefaultDebounce - time.Millisecond)
	require.Empty(t, got)
	require.True(t, f.Pending())
	clock.Advance(time.Millisecond)
	require.Len(t, got, 1)
}

func TestFieldImmediateBypass(t *testing.T) {
	clock := newFakeClock()
	var got []emission
	f := NewField(FieldSpec{Name: "status", Kind: KindSelect, Immediate: true}, clock, recordEmissions(clock, &got))

	f.Update("active")
	f.Update("inactive")
	f.Update("inactive")

	require.Len(t, got, 3)
	require.Equal(t, []bool{true, true, false}, []bool{got[0].changed, got[1].changed, got[2].changed})
	require.False(t, f.Pending())
	require.Equal(t, "inactive", f.State().Debounced)
}

func TestFieldUnchangedValueEmitsWithoutChange(t *testing.T) {
	clock := newFakeClock()
	var got []emission
	f := NewField(FieldSpec{Name: "search", Default: "a"}, clock, recordEmissions(clock, &got))

	f.Update("ab")
	clock.Advance(100 * time.Millisecond)
	f.Update("a")
	clock.Advance(time.Second)

	require.Len(t, got, 1)
	require.False(t, got[0].changed)
}

func TestFieldDisposeCancelsPendingEmission(t *testing.T) {
	clock := newFakeClock()
	var got []emission
	f := NewField(FieldSpec{Name: "search"}, clock, recordEmissions(clock, &got))

	f.Update("pending")
	f.Dispose()
	clock.Advance(time.Second)
	f.Update("after")

	require.Empty(t, got)
	require.Nil(t, f.State().Debounced)
}

func TestFieldParamName(t *testing.T) {
	require.Equal(t, "q", FieldSpec{Name: "search", Param: "q"}.ParamName())
	require.Equal(t, "search", FieldSpec{Name: "search"}.ParamName())
	require.True(t, KindDateTo.Valid())
	require.False(t, FieldKind("slider").Valid())
}
