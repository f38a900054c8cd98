package money

import (
	"math"
	"testing"
)

func TestToCentsCoercion(t *testing.T) {
	cases := []struct {
		name  string
		value any
		opts  CoerceOptions
		want  int64
	}{
		{name: "int passthrough", value: 1250, want: 1250},
		{name: "int64 passthrough", value: int64(99), want: 99},
		{name: "float truncates toward zero", value: 10.9, want: 10},
		{name: "negative float truncates then clamps", value: -10.9, want: 0},
		{name: "negative kept when allowed", value: -10.9, opts: CoerceOptions{AllowNegative: true}, want: -10},
		{name: "string parsed", value: " 500 ", want: 500},
		{name: "string fraction truncates", value: "500.75", want: 500},
		{name: "unparsable string", value: "abc", want: 0},
		{name: "empty string", value: "", want: 0},
		{name: "empty string as zero", value: "", opts: CoerceOptions{EmptyStringIsZero: true}, want: 0},
		{name: "nan", value: math.NaN(), want: 0},
		{name: "inf", value: math.Inf(1), want: 0},
		{name: "nil", value: nil, want: 0},
		{name: "unsupported type", value: []int{1}, want: 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ToCents(tc.value, tc.opts); got != tc.want {
				t.Fatalf("ToCents(%v) = %d, want %d", tc.value, got, tc.want)
			}
		})
	}
}

func TestToCentsStrictDistinguishesAbsence(t *testing.T) {
	if _, ok := ToCentsStrict(nil, CoerceOptions{}); ok {
		t.Fatal("nil should be absent")
	}
	if _, ok := ToCentsStrict("not-a-number", CoerceOptions{}); ok {
		t.Fatal("unparsable string should be absent")
	}
	if _, ok := ToCentsStrict("", CoerceOptions{}); ok {
		t.Fatal("empty string should be absent by default")
	}

	got, ok := ToCentsStrict("", CoerceOptions{EmptyStringIsZero: true})
	if !ok || got != 0 {
		t.Fatalf("empty string with EmptyStringIsZero should be explicit zero, got (%d, %v)", got, ok)
	}

	got, ok = ToCentsStrict(0, CoerceOptions{})
	if !ok || got != 0 {
		t.Fatalf("numeric zero should be explicit zero, got (%d, %v)", got, ok)
	}
}

func TestCentsPrecedence(t *testing.T) {
	// Explicit zero from a higher-precedence source beats a positive fallback.
	if got := Explicit(0).Or(Explicit(300)).OrElse(700); got != 0 {
		t.Fatalf("explicit zero should win, got %d", got)
	}
	if got := None().Or(Explicit(300)).OrElse(700); got != 300 {
		t.Fatalf("expected lower source 300, got %d", got)
	}
	if got := None().Or(None()).OrElse(700); got != 700 {
		t.Fatalf("expected fallback 700, got %d", got)
	}

	if Explicit(0).Positive() {
		t.Fatal("explicit zero is not positive")
	}
	if !Explicit(1).Positive() {
		t.Fatal("explicit one is positive")
	}
	if None().Pointer() != nil {
		t.Fatal("absent value should have nil pointer")
	}
	if p := Explicit(42).Pointer(); p == nil || *p != 42 {
		t.Fatalf("expected pointer to 42, got %v", p)
	}
}

func TestFromPointer(t *testing.T) {
	if FromPointer(nil).Set() {
		t.Fatal("nil pointer should be absent")
	}
	v := int64(0)
	c := FromPointer(&v)
	if !c.Set() || c.Value() != 0 {
		t.Fatalf("pointer to zero should be explicit zero, got %+v", c)
	}
}
