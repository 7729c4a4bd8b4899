package audit

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"opsledger/internal/domain"
)

func TestEncode_SortsKeysAtEveryLevel(t *testing.T) {
	v := map[string]any{
		"b": map[string]any{"d": true, "c": nil},
		"a": []any{1, 2, 3},
	}
	got, err := Encode(v)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := `{"a":[1,2,3],"b":{"c":null,"d":true}}`
	if string(got) != want {
		t.Errorf("Encode = %s, want %s", got, want)
	}
}

func TestEncode_OrderIndependence(t *testing.T) {
	// Build the same structure twice with different insertion order.
	first := map[string]any{}
	first["alpha"] = 1
	first["beta"] = 2
	first["gamma"] = 3

	second := map[string]any{}
	second["gamma"] = 3
	second["alpha"] = 1
	second["beta"] = 2

	a, err := Encode(first)
	if err != nil {
		t.Fatalf("Encode first: %v", err)
	}
	b, err := Encode(second)
	if err != nil {
		t.Fatalf("Encode second: %v", err)
	}
	if string(a) != string(b) {
		t.Errorf("encodings differ: %s vs %s", a, b)
	}
}

func TestEncode_Scalars(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, "null"},
		{"true", true, "true"},
		{"false", false, "false"},
		{"int", 42, "42"},
		{"negative", -7, "-7"},
		{"int64", int64(1), "1"},
		{"uint", uint(9), "9"},
		{"float", 1.5, "1.5"},
		{"whole float", float64(3), "3"},
		{"large whole float", float64(1000000), "1000000"},
		{"small float", 0.0001, "0.0001"},
		{"number", json.Number("1000000"), "1000000"},
		{"fractional number", json.Number("0.0001"), "0.0001"},
		{"string", "ok", `"ok"`},
		{"empty string", "", `""`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Encode(tc.in)
			if err != nil {
				t.Fatalf("Encode(%v): %v", tc.in, err)
			}
			if string(got) != tc.want {
				t.Errorf("Encode(%v) = %s, want %s", tc.in, got, tc.want)
			}
		})
	}
}

func TestEncode_EscapesToASCII(t *testing.T) {
	got, err := Encode(map[string]any{"k": "héllo\n😀"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	// Non-ASCII escapes to \uXXXX, astral runes to a surrogate pair.
	want := `{"k":"h\u00e9llo\n\ud83d\ude00"}`
	if string(got) != want {
		t.Errorf("Encode = %s, want %s", got, want)
	}
}

func TestEncode_EscapesQuotesAndControls(t *testing.T) {
	got, err := Encode("a\"b\\c\td\x01")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := `"a\"b\\c\td\u0001"`
	if string(got) != want {
		t.Errorf("Encode = %s, want %s", got, want)
	}
}

func TestEncode_TypedContainers(t *testing.T) {
	got, err := Encode(map[string]int{"b": 2, "a": 1})
	if err != nil {
		t.Fatalf("Encode typed map: %v", err)
	}
	if string(got) != `{"a":1,"b":2}` {
		t.Errorf("Encode = %s", got)
	}

	got, err = Encode([]string{"x", "y"})
	if err != nil {
		t.Fatalf("Encode typed slice: %v", err)
	}
	if string(got) != `["x","y"]` {
		t.Errorf("Encode = %s", got)
	}
}

func TestEncode_RejectsCycles(t *testing.T) {
	m := map[string]any{}
	m["self"] = m
	if _, err := Encode(m); !errors.Is(err, domain.ErrEncoding) {
		t.Fatalf("cyclic map: err = %v, want ErrEncoding", err)
	}

	s := make([]any, 1)
	s[0] = s
	if _, err := Encode(s); !errors.Is(err, domain.ErrEncoding) {
		t.Fatalf("cyclic slice: err = %v, want ErrEncoding", err)
	}
}

func TestEncode_AllowsSharedReferences(t *testing.T) {
	shared := map[string]any{"x": 1}
	v := map[string]any{"a": shared, "b": shared}
	got, err := Encode(v)
	if err != nil {
		t.Fatalf("shared non-cyclic reference rejected: %v", err)
	}
	if string(got) != `{"a":{"x":1},"b":{"x":1}}` {
		t.Errorf("Encode = %s", got)
	}
}

func TestEncode_RejectsUnsupportedValues(t *testing.T) {
	cases := []struct {
		name string
		in   any
	}{
		{"struct", struct{ A int }{1}},
		{"func", func() {}},
		{"chan", make(chan int)},
		{"int-keyed map", map[int]string{1: "a"}},
		{"malformed number", json.Number("not-a-number")},
		{"nested unsupported", map[string]any{"ok": 1, "bad": struct{}{}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Encode(tc.in); !errors.Is(err, domain.ErrEncoding) {
				t.Errorf("Encode(%s): err = %v, want ErrEncoding", tc.name, err)
			}
		})
	}
}

func TestEncode_RejectsNonFiniteFloats(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if _, err := Encode(map[string]any{"v": v}); !errors.Is(err, domain.ErrEncoding) {
			t.Errorf("Encode(%v): err = %v, want ErrEncoding", v, err)
		}
	}
}
