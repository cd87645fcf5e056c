package textutil

import (
	"reflect"
	"testing"
)

func TestUniqueOrdered(t *testing.T) {
	t.Run("keeps first occurrence order across lists", func(t *testing.T) {
		got := UniqueOrdered(
			[]string{"Invoice", " Phytosanitary certificate ", "Invoice"},
			[]string{"Certificate of origin", "Phytosanitary certificate", ""},
		)
		want := []string{"Invoice", "Phytosanitary certificate", "Certificate of origin"}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("expected %#v got %#v", want, got)
		}
	})

	t.Run("returns empty slice for no input", func(t *testing.T) {
		got := UniqueOrdered()
		if got == nil || len(got) != 0 {
			t.Fatalf("expected empty non-nil slice, got %#v", got)
		}
	})
}

func TestDifference(t *testing.T) {
	got := Difference([]string{"JAS", "organic", "USDA"}, []string{" JAS", "USDA"})
	want := []string{"organic"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %#v got %#v", want, got)
	}

	if got := Difference([]string{"JAS"}, []string{"JAS"}); len(got) != 0 {
		t.Fatalf("expected no missing values, got %#v", got)
	}
}
