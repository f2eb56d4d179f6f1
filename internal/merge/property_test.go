package merge

import (
	"testing"

	"pgregory.net/rapid"

	"github.com/dshills/stratum/internal/annotate"
	"github.com/dshills/stratum/internal/value"
)

var propertyPaths = []string{"zram.enable", "zram.percent", "boot.kernelParams", "users.groups", "env.vars"}

func drawContributions(t *rapid.T) []annotate.AnnotatedValue {
	n := rapid.IntRange(0, 12).Draw(t, "n")
	out := make([]annotate.AnnotatedValue, n)
	for i := range out {
		path := rapid.SampledFrom(propertyPaths).Draw(t, "path")

		var v any
		switch path {
		case "zram.enable":
			v = rapid.Bool().Draw(t, "bool")
		case "zram.percent":
			v = int64(rapid.IntRange(0, 100).Draw(t, "int"))
		case "boot.kernelParams", "users.groups":
			items := rapid.SliceOfN(rapid.SampledFrom([]string{"a", "b", "c"}), 0, 3).Draw(t, "items")
			list := make([]any, len(items))
			for j, s := range items {
				list[j] = s
			}
			v = list
		case "env.vars":
			k := rapid.SampledFrom([]string{"A", "B"}).Draw(t, "key")
			v = map[string]any{k: rapid.SampledFrom([]string{"x", "y"}).Draw(t, "val")}
		}

		av := annotate.AnnotatedValue{
			Path:      path,
			Value:     v,
			Priority:  rapid.SampledFrom([]int{10, 50, 100, 1000}).Draw(t, "priority"),
			Condition: annotate.Always,
			Source:    "m",
			Seq:       i,
		}
		if rapid.IntRange(0, 9).Draw(t, "force") == 0 {
			av.Hint = annotate.HintForce
		}
		if path != "zram.enable" && rapid.Bool().Draw(t, "conditional") {
			av.Condition = annotate.IsTrue("zram.enable")
		}
		out[i] = av
	}
	return out
}

// Contribution order in the input slice never matters; only Seq does.
func TestMerge_OrderIndependentProperty(t *testing.T) {
	r := testRegistry(t)
	rapid.Check(t, func(t *rapid.T) {
		contribs := drawContributions(t)
		shuffled := rapid.Permutation(contribs).Draw(t, "shuffled")

		a, errA := New(r).Merge(contribs)
		b, errB := New(r).Merge(shuffled)
		if (errA == nil) != (errB == nil) {
			t.Fatalf("errors differ: %v vs %v", errA, errB)
		}
		if errA != nil {
			return
		}
		if !a.Tree.Equal(b.Tree) {
			t.Fatalf("trees differ: %v vs %v", a.Tree.Flat(), b.Tree.Flat())
		}
	})
}

func TestMerge_IdempotentProperty(t *testing.T) {
	r := testRegistry(t)
	rapid.Check(t, func(t *rapid.T) {
		contribs := drawContributions(t)
		e := New(r)
		a, err := e.Merge(contribs)
		if err != nil {
			t.Fatalf("Merge failed: %v", err)
		}
		b, err := e.Merge(contribs)
		if err != nil {
			t.Fatalf("second merge failed: %v", err)
		}
		if !a.Tree.Equal(b.Tree) {
			t.Fatal("merge is not idempotent")
		}
	})
}

// A surviving force contribution always supplies a scalar's value.
func TestMerge_ForceProperty(t *testing.T) {
	r := testRegistry(t)
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 6).Draw(t, "n")
		forced := rapid.IntRange(0, n-1).Draw(t, "forced")
		contribs := make([]annotate.AnnotatedValue, n)
		for i := range contribs {
			contribs[i] = annotate.AnnotatedValue{
				Path:      "zram.percent",
				Value:     int64(i),
				Priority:  rapid.IntRange(1, 2000).Draw(t, "priority"),
				Condition: annotate.Always,
				Seq:       i,
			}
		}
		contribs[forced].Hint = annotate.HintForce

		res, err := New(r).Merge(contribs)
		if err != nil {
			t.Fatalf("Merge failed: %v", err)
		}
		if got, _ := res.Tree.Get("zram.percent"); !value.Equal(got, int64(forced)) {
			t.Fatalf("percent = %v, want forced contribution %d", got, forced)
		}
	})
}
