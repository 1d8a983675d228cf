package sequence

import (
	"math/rand"
	"slices"
	"testing"
)

func TestIntersectAndUnion(t *testing.T) {
	a := []int64{1, 2, 3}
	b := []int64{2, 3, 4}

	if got := Intersect(a, b); !slices.Equal(got, []int64{2, 3}) {
		t.Fatalf("Intersect = %v", got)
	}
	if got := Union(a, b); !slices.Equal(got, []int64{1, 2, 3, 4}) {
		t.Fatalf("Union = %v", got)
	}
	if !slices.Equal(a, []int64{1, 2, 3}) || !slices.Equal(b, []int64{2, 3, 4}) {
		t.Fatal("inputs were modified")
	}
}

func TestEmptyInputs(t *testing.T) {
	var none []int64
	some := []int64{5, 9}

	if got := Intersect(none, some); len(got) != 0 {
		t.Fatalf("Intersect(nil, b) = %v", got)
	}
	if got := Union(none, some); !slices.Equal(got, some) {
		t.Fatalf("Union(nil, b) = %v", got)
	}
	if got := Union(some, none); !slices.Equal(got, some) {
		t.Fatalf("Union(a, nil) = %v", got)
	}
	if got := Dedupe(none); got == nil || len(got) != 0 {
		t.Fatalf("Dedupe(nil) = %#v, want empty slice", got)
	}
}

func TestDedupe(t *testing.T) {
	in := []int64{3, 1, 3, 2, 1}
	if got := Dedupe(in); !slices.Equal(got, []int64{1, 2, 3}) {
		t.Fatalf("Dedupe = %v", got)
	}
	if !slices.Equal(in, []int64{3, 1, 3, 2, 1}) {
		t.Fatal("Dedupe modified its input")
	}
}

func randomSorted(r *rand.Rand) []int64 {
	n := r.Intn(20)
	raw := make([]int64, n)
	for i := range raw {
		raw[i] = int64(r.Intn(40))
	}
	return Dedupe(raw)
}

func TestSetProperties(t *testing.T) {
	r := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		a, b := randomSorted(r), randomSorted(r)

		if d := Dedupe(a); !slices.Equal(Dedupe(d), d) {
			t.Fatalf("Dedupe not idempotent for %v", a)
		}
		if !slices.Equal(Union(a, b), Union(b, a)) {
			t.Fatalf("Union not commutative for %v, %v", a, b)
		}
		if !slices.Equal(Dedupe(Union(a, b)), Dedupe(append(slices.Clone(a), b...))) {
			t.Fatalf("Union(%v, %v) differs from Dedupe of the concatenation", a, b)
		}
		if !slices.Equal(Intersect(a, b), Intersect(b, a)) {
			t.Fatalf("Intersect not commutative for %v, %v", a, b)
		}
		if !slices.Equal(Intersect(a, a), Dedupe(a)) {
			t.Fatalf("Intersect(a, a) != Dedupe(a) for %v", a)
		}
		if !IsSorted(Union(a, b)) || !IsSorted(Intersect(a, b)) {
			t.Fatalf("result not strictly ascending for %v, %v", a, b)
		}
		if len(Intersect(a, b)) > min(len(a), len(b)) {
			t.Fatalf("Intersect longer than its inputs for %v, %v", a, b)
		}
	}
}

func TestGenericStrings(t *testing.T) {
	got := Union([]string{"a", "c"}, []string{"b", "c"})
	if !slices.Equal(got, []string{"a", "b", "c"}) {
		t.Fatalf("Union = %v", got)
	}
}

func TestIsSorted(t *testing.T) {
	cases := map[string]struct {
		in   []int64
		want bool
	}{
		"empty":     {nil, true},
		"ascending": {[]int64{1, 2, 5}, true},
		"repeat":    {[]int64{1, 1, 2}, false},
		"descend":   {[]int64{3, 2}, false},
	}
	for name, c := range cases {
		if got := IsSorted(c.in); got != c.want {
			t.Errorf("%s: IsSorted(%v) = %v", name, c.in, got)
		}
	}
}

func TestCombine(t *testing.T) {
	seqs := [][]int64{{1, 2, 3, 4}, {2, 3, 4, 5}, {3, 4, 6}}

	got, err := Combine(ModeIntersect, seqs...)
	if err != nil || !slices.Equal(got, []int64{3, 4}) {
		t.Fatalf("Combine(intersect) = %v, %v", got, err)
	}
	got, err = Combine(ModeUnion, seqs...)
	if err != nil || !slices.Equal(got, []int64{1, 2, 3, 4, 5, 6}) {
		t.Fatalf("Combine(union) = %v, %v", got, err)
	}
	got, err = Combine[int64](ModeUnion)
	if err != nil || got == nil || len(got) != 0 {
		t.Fatalf("Combine() = %#v, %v", got, err)
	}
	if _, err := Combine(Mode("xor"), seqs...); err == nil {
		t.Fatal("Combine accepted an unknown mode")
	}
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": ModeUnion, "UNION": ModeUnion, "intersect": ModeIntersect} {
		if got, err := ParseMode(in); err != nil || got != want {
			t.Errorf("ParseMode(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseMode("both"); err == nil {
		t.Error("ParseMode accepted an unknown mode")
	}
}
