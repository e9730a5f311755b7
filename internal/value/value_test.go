package value

import "testing"

func TestIntegerEquality(t *testing.T) {
	if !Int(5).Equal(Int(5)) {
		t.Fatalf("expected 5 == 5")
	}
	if Int(5).Equal(Int(6)) {
		t.Fatalf("expected 5 != 6")
	}
}

func TestNilNeverEqual(t *testing.T) {
	if Nil.Equal(Nil) {
		t.Fatalf("nil must never equal nil under Equal")
	}
}

func TestSetEqualityIsOrderIndependent(t *testing.T) {
	a := Set(Int(1), Int(2), Int(2))
	b := Set(Int(2), Int(1), Int(2))
	if !a.Equal(b) {
		t.Fatalf("expected multiset equality regardless of order")
	}
	c := Set(Int(1), Int(2))
	if a.Equal(c) {
		t.Fatalf("duplicate counts must matter for multiset equality")
	}
}

func TestTupleEqualityIsPositional(t *testing.T) {
	a := Tuple(Int(1), Int(2))
	b := Tuple(Int(2), Int(1))
	if a.Equal(b) {
		t.Fatalf("tuples are ordered, (1,2) != (2,1)")
	}
}

func TestCompareIsTotalOrder(t *testing.T) {
	vals := []Value{Int(3), Int(1), Bool(true), Nil, Int(2)}
	for i := range vals {
		for j := range vals {
			c1 := Compare(vals[i], vals[j])
			c2 := Compare(vals[j], vals[i])
			if c1 != -c2 {
				t.Fatalf("Compare not antisymmetric for %v,%v", vals[i], vals[j])
			}
		}
	}
}

func TestRowEqualityIgnoresKeyOrder(t *testing.T) {
	r1 := Row{"a": Int(1), "b": Int(2)}
	r2 := Row{"b": Int(2), "a": Int(1)}
	if !r1.Equal(r2) {
		t.Fatalf("rows are unordered attribute maps")
	}
}

func TestRowProjectMissingColumnIsNil(t *testing.T) {
	r := Row{"a": Int(1)}
	projected := r.Project([]string{"a", "missing"})
	tuple := projected.AsTuple()
	if !tuple[1].IsNil() {
		t.Fatalf("expected missing column to project to nil")
	}
}

func TestRowStringIsSortedByColumn(t *testing.T) {
	r := Row{"z": Int(1), "a": Int(2)}
	got := r.String()
	want := "{a: 2, z: 1}"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}
