package artifacts

import (
	"encoding/json"
	"fmt"
)

// Value is a metric leaf: either a scalar or a numeric array. The
// discriminant is explicit so consumers never have to reflect over untyped
// nested structures: scalars are manifest-representable, arrays are retained
// for visualization only and excluded from manifests by definition.
type Value struct {
	scalar   float64
	array    []float64
	isScalar bool
}

// Scalar builds a scalar metric value.
func Scalar(v float64) Value {
	return Value{scalar: v, isScalar: true}
}

// Array builds an array metric value.
func Array(vs []float64) Value {
	return Value{array: vs}
}

// IsScalar reports whether the value is manifest-representable.
func (v Value) IsScalar() bool {
	return v.isScalar
}

// Float returns the scalar value, with ok=false for arrays.
func (v Value) Float() (float64, bool) {
	return v.scalar, v.isScalar
}

// Floats returns the array value, nil for scalars.
func (v Value) Floats() []float64 {
	return v.array
}

// MarshalJSON writes scalars as JSON numbers and arrays as JSON arrays.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.isScalar {
		return json.Marshal(v.scalar)
	}
	if v.array == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(v.array)
}

// UnmarshalJSON accepts a JSON number or an array of numbers.
func (v *Value) UnmarshalJSON(data []byte) error {
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*v = Scalar(f)
		return nil
	}
	var fs []float64
	if err := json.Unmarshal(data, &fs); err == nil {
		*v = Array(fs)
		return nil
	}
	return fmt.Errorf("artifacts: metric value %s is neither scalar nor numeric array", data)
}
