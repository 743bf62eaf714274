package extraction

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Optional holds a value that may be absent. Absent serializes as JSON null,
// which keeps "not extracted" distinct from "extracted an empty string".
type Optional[T any] struct {
	value T
	valid bool
}

// Some wraps a present value.
func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, valid: true}
}

// None returns an absent value.
func None[T any]() Optional[T] {
	return Optional[T]{}
}

func (o Optional[T]) Get() (T, bool) { return o.value, o.valid }
func (o Optional[T]) Valid() bool    { return o.valid }

// OrElse returns the value, or def when absent.
func (o Optional[T]) OrElse(def T) T {
	if !o.valid {
		return def
	}
	return o.value
}

// Ptr returns a pointer to a copy of the value, or nil when absent. Handy for
// nullable database columns.
func (o Optional[T]) Ptr() *T {
	if !o.valid {
		return nil
	}
	v := o.value
	return &v
}

func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.valid {
		return []byte("null"), nil
	}
	return json.Marshal(o.value)
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*o = None[T]()
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}

// LabValue is a lab measurement: numeric when the matched text parses as a
// float, otherwise the raw matched text.
type LabValue struct {
	num     float64
	raw     string
	numeric bool
}

// NumericLab builds a numeric lab value.
func NumericLab(f float64) LabValue {
	return LabValue{num: f, raw: strconv.FormatFloat(f, 'f', -1, 64), numeric: true}
}

// RawLab builds a lab value that kept its original text.
func RawLab(s string) LabValue {
	return LabValue{raw: s}
}

// ParseLabValue coerces matched text to a number, falling back to the text.
func ParseLabValue(s string) LabValue {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return RawLab(s)
	}
	return LabValue{num: f, raw: s, numeric: true}
}

// Float returns the numeric value and whether the lab value is numeric.
func (v LabValue) Float() (float64, bool) { return v.num, v.numeric }

// IsNumeric reports whether the matched text was coerced to a number.
func (v LabValue) IsNumeric() bool { return v.numeric }

// String returns the text the value was built from.
func (v LabValue) String() string { return v.raw }

func (v LabValue) MarshalJSON() ([]byte, error) {
	if v.numeric {
		return json.Marshal(v.num)
	}
	return json.Marshal(v.raw)
}

func (v *LabValue) UnmarshalJSON(data []byte) error {
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*v = NumericLab(f)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*v = RawLab(s)
	return nil
}
