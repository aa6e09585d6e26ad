package tree

import (
	"math"
	"reflect"
)

// Same reports whether a and b are the same value by identity: pointer
// equality for containers and reference types, == for comparable scalars.
// NaN is the same as NaN; +0 and -0 differ.
func Same(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch av := a.(type) {
	case *Object:
		bv, ok := b.(*Object)
		return ok && av == bv
	case *List:
		bv, ok := b.(*List)
		return ok && av == bv
	case float64:
		if bv, ok := b.(float64); ok {
			return sameFloat(av, bv)
		}
	case float32:
		if bv, ok := b.(float32); ok {
			return sameFloat(float64(av), float64(bv))
		}
	}

	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if ta.Comparable() {
		return safeEqual(a, b)
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	switch va.Kind() {
	case reflect.Map, reflect.Func, reflect.Chan, reflect.Pointer, reflect.UnsafePointer:
		return va.Pointer() == vb.Pointer()
	case reflect.Slice:
		return va.Pointer() == vb.Pointer() && va.Len() == vb.Len()
	default:
		return false
	}
}

func sameFloat(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	return a == b && math.Signbit(a) == math.Signbit(b)
}

// safeEqual compares values whose dynamic type is comparable but may still
// hold an uncomparable interface field.
func safeEqual(a, b any) (equal bool) {
	defer func() {
		if recover() != nil {
			equal = false
		}
	}()
	return a == b
}

// IsContainer reports whether v is a node or an engine wrapper around one.
func IsContainer(v any) bool {
	_, ok := v.(Container)
	return ok
}
