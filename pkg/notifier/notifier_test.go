package notifier

import (
	"reflect"
	"testing"
)

func TestRecordAddNeverReplaces(t *testing.T) {
	r := NewRecord()

	first := &Post{ID: "1", Text: "original"}
	if !r.Add(first) {
		t.Fatal("Add() = false for a new ID, want true")
	}

	if r.Add(&Post{ID: "1", Text: "changed"}) {
		t.Error("Add() = true for an existing ID, want false")
	}

	if got := r.Posts["1"].Text; got != "original" {
		t.Errorf("existing entry was replaced: text = %q", got)
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestRecordZeroValue(t *testing.T) {
	var r Record
	if r.Has("x") {
		t.Error("zero record should not contain anything")
	}
	if !r.Add(&Post{ID: "x"}) {
		t.Error("Add() on zero record should insert")
	}
	if !r.Has("x") {
		t.Error("Has() = false after Add()")
	}
}

func TestRecordIDsSorted(t *testing.T) {
	r := NewRecord()
	for _, id := range []string{"3", "1", "2"} {
		r.Add(&Post{ID: id})
	}

	want := []string{"1", "2", "3"}
	if got := r.IDs(); !reflect.DeepEqual(got, want) {
		t.Errorf("IDs() = %v, want %v", got, want)
	}
}
