package queue

import (
	"strings"
	"testing"
	"time"
)

func TestSortRecordsByEnqueueTime(t *testing.T) {
	records := []Record{
		rec("b", 300, `1`),
		rec("z", 100, `1`),
		rec("a", 300, `1`),
		rec("m", 200, `1`),
	}
	sortRecords(records)
	want := []string{"z", "m", "a", "b"} // id breaks the 300 tie
	for i, id := range want {
		if records[i].ID != id {
			t.Fatalf("position %d: want %s, got %s", i, id, records[i].ID)
		}
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := decodeRecords([]byte("not json")); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestEncodeNilAsEmptyArray(t *testing.T) {
	b, err := encodeRecords(nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(b) != "[]" {
		t.Fatalf("nil must encode as an empty array, got %s", b)
	}
}

func TestRecordAge(t *testing.T) {
	r := rec("a", 1_000, `1`)
	if got := r.Age(61_000); got != time.Minute {
		t.Fatalf("age: %v", got)
	}
}

func TestRecordOmitsZeroLastAttempt(t *testing.T) {
	b, err := encodeRecords([]Record{rec("a", 1, `1`)})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if strings.Contains(string(b), `"lastAttemptAt"`) {
		t.Fatalf("zero lastAttemptAt should be omitted: %s", b)
	}
}
