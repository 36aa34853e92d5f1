package listsync

import (
	"reflect"
	"sync"
	"time"
)

// FieldKind tells the query builder how to serialize a field value.
type FieldKind string

const (
	KindText     FieldKind = "text"
	KindSelect   FieldKind = "select"
	KindBool     FieldKind = "bool"
	KindNumber   FieldKind = "number"
	KindDateFrom FieldKind = "date_from"
	KindDateTo   FieldKind = "date_to"
)

// DefaultDebounce is the quiet period applied to non-immediate fields.
const DefaultDebounce = 500 * time.Millisecond

// Valid reports whether k is a known kind.
func (k FieldKind) Valid() bool {
	switch k {
	case KindText, KindSelect, KindBool, KindNumber, KindDateFrom, KindDateTo:
		return true
	}
	return false
}

// FieldSpec declares one filter input of a screen.
type FieldSpec struct {
	Name string
	// Param overrides the outgoing parameter name. Defaults to Name.
	Param     string
	Kind      FieldKind
	Immediate bool
	Debounce  time.Duration
	Required  bool
	Default   any
}

// ParamName returns the outgoing query parameter for the field.
func (s FieldSpec) ParamName() string {
	if s.Param != "" {
		return s.Param
	}
	return s.Name
}

// FieldState is the observable state of one filter field.
type FieldState struct {
	Name      string `json:"name"`
	Raw       any    `json:"raw"`
	Debounced any    `json:"debounced"`
}

// EmitFunc receives a field's de-noised value. changed is false when the
// emitted value equals the previous debounced value.
type EmitFunc func(name string, value any, changed bool)

// Field wraps one filter input and emits its de-noised value.
type Field struct {
	spec      FieldSpec
	debouncer *Debouncer
	emit      EmitFunc

	mu        sync.Mutex
	raw       any
	debounced any
	disposed  bool
}

// NewField builds a field. Immediate fields get no debouncer.
func NewField(spec FieldSpec, clock Clock, emit EmitFunc) *Field {
	f := &Field{
		spec:      spec,
		emit:      emit,
		raw:       spec.Default,
		debounced: spec.Default,
	}
	if !spec.Immediate {
		delay := spec.Debounce
		if delay <= 0 {
			delay = DefaultDebounce
		}
		f.debouncer = NewDebouncer(clock, delay)
	}
	if f.emit == nil {
		f.emit = func(string, any, bool) {}
	}
	return f
}

// Spec returns the field declaration.
func (f *Field) Spec() FieldSpec {
	return f.spec
}

// Update records a new raw value. Immediate fields emit synchronously,
// others restart their countdown.
func (f *Field) Update(raw any) {
	f.mu.Lock()
	if f.disposed {
		f.mu.Unlock()
		return
	}
	f.raw = raw
	if f.debouncer == nil {
		changed := !sameValue(f.debounced, raw)
		f.debounced = raw
		f.mu.Unlock()
		f.emit(f.spec.Name, raw, changed)
		return
	}
	f.mu.Unlock()
	f.debouncer.Debounce(f.fire)
}

func (f *Field) fire() {
	f.mu.Lock()
	if f.disposed {
		f.mu.Unlock()
		return
	}
	value := f.raw
	changed := !sameValue(f.debounced, value)
	f.debounced = value
	f.mu.Unlock()
	f.emit(f.spec.Name, value, changed)
}

// State returns the current raw and debounced values.
func (f *Field) State() FieldState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return FieldState{Name: f.spec.Name, Raw: f.raw, Debounced: f.debounced}
}

// Pending reports whether an emission is scheduled.
func (f *Field) Pending() bool {
	return f.debouncer != nil && f.debouncer.Pending()
}

// Dispose cancels the pending countdown. No emission happens afterwards.
func (f *Field) Dispose() {
	f.mu.Lock()
	f.disposed = true
	f.mu.Unlock()
	if f.debouncer != nil {
		f.debouncer.Cancel()
	}
}

func sameValue(a, b any) bool {
	ta, okA := a.(time.Time)
	tb, okB := b.(time.Time)
	if okA || okB {
		return okA && okB && ta.Equal(tb)
	}
	return reflect.DeepEqual(a, b)
}
