package model

import (
	"reflect"
	"testing"
)

func TestCategorySetSliceIsSorted(t *testing.T) {
	s := NewCategorySet(CatThreads, CatCPU, CatStuck)
	got := s.Slice()
	want := []Category{CatCPU, CatStuck, CatThreads}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Slice() = %v, want %v", got, want)
	}
}

func TestCategorySetMergeIsUnion(t *testing.T) {
	a := NewCategorySet(CatCPU)
	b := NewCategorySet(CatMem, CatCPU)
	a.Merge(b)
	if !a.Has(CatCPU) || !a.Has(CatMem) {
		t.Errorf("Merge did not union categories: %v", a.Slice())
	}
	if len(a) != 2 {
		t.Errorf("expected 2 categories after merge, got %d", len(a))
	}
}

func TestEventOpenReflectsExitTime(t *testing.T) {
	e := Event{}
	if !e.Open() {
		t.Error("event with nil ExitTime should be open")
	}
}
