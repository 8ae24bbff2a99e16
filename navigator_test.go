package pagecap

import "testing"

func TestParsePageCount(t *testing.T) {
	tests := []struct {
		in     string
		want   int
		wantOK bool
	}{
		{"12", 12, true},
		{"of 120", 120, true},
		{"Page 7 / 9", 7, true},
		{"  3\n", 3, true},
		{"", 0, false},
		{"of", 0, false},
	}
	for _, tt := range tests {
		got, ok := parsePageCount(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("parsePageCount(%q) = %d, %v; want %d, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestSelectorsWithDefaults(t *testing.T) {
	s := Selectors{Next: "button.next-page"}.withDefaults()
	if s.Next != "button.next-page" {
		t.Errorf("Next = %q, want explicit value kept", s.Next)
	}
	if s.PageNumber != "#pageNumber" || s.PageCount != "#numPages" {
		t.Errorf("defaults not applied: %+v", s)
	}
}

func TestJSString(t *testing.T) {
	got := jsString(`a[title="x"]`)
	want := `"a[title=\"x\"]"`
	if got != want {
		t.Errorf("jsString = %s, want %s", got, want)
	}
}
