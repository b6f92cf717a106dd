package schedule

import (
	"reflect"
	"testing"
)

func TestDecode_MorningSlots(t *testing.T) {
	d := Decode("2M34")
	if !reflect.DeepEqual(d.Days, []int{2}) {
		t.Fatalf("days = %v", d.Days)
	}
	p3, _ := Slot('M', 3)
	p4, _ := Slot('M', 4)
	if d.Start != p3.Start || d.End != p4.End {
		t.Fatalf("range = %s-%s, want %s-%s", d.Start, d.End, p3.Start, p4.End)
	}
	if d.Start.String() != "08:50" || d.End.String() != "10:30" {
		t.Fatalf("unexpected clock strings %s-%s", d.Start, d.End)
	}
}

func TestDecode_ConcatenatedCodesUnionDays(t *testing.T) {
	d := Decode("35N12 24T56")
	if !reflect.DeepEqual(d.Days, []int{2, 3, 4, 5}) {
		t.Fatalf("days = %v", d.Days)
	}
	// earliest start comes from the afternoon group, latest end from the night group
	if d.Start.String() != "16:40" || d.End.String() != "20:10" {
		t.Fatalf("range = %s-%s", d.Start, d.End)
	}
}

func TestDecode_UnknownShiftOrSlotIsIgnored(t *testing.T) {
	d := Decode("2X12 4M19")
	if !reflect.DeepEqual(d.Days, []int{2, 4}) {
		t.Fatalf("days = %v", d.Days)
	}
	if !d.HasTime || d.Start.String() != "07:00" || d.End.String() != "07:50" {
		t.Fatalf("expected only M1 to contribute, got %+v", d)
	}

	none := Decode("6N78")
	if none.HasTime {
		t.Fatalf("night has no slots 7 and 8: %+v", none)
	}
	if !reflect.DeepEqual(none.Days, []int{6}) {
		t.Fatalf("days still recorded, got %v", none.Days)
	}
}

func TestDecode_StartNeverAfterEnd(t *testing.T) {
	for _, code := range []string{"1M12", "7T6543", "246N1234", "3M6 3N1", "25T12", "4M56"} {
		d := Decode(code)
		if !d.HasTime {
			t.Fatalf("%s: expected time", code)
		}
		if d.Start > d.End {
			t.Fatalf("%s: start %s after end %s", code, d.Start, d.End)
		}
		again := Decode(code)
		if !reflect.DeepEqual(d, again) {
			t.Fatalf("%s: decode not deterministic", code)
		}
	}
}

func TestValidAndGridColumn(t *testing.T) {
	if !Valid("24M34") || Valid("24X34") || Valid("") || Valid("2M3") {
		t.Fatalf("Valid gave unexpected results")
	}
	if DayFromGridColumn(0) != 2 || DayName(DayFromGridColumn(4)) != "Sex" {
		t.Fatalf("grid column mapping broken")
	}
}
