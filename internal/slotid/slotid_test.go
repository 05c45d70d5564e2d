package slotid

import "testing"

func TestValidate(t *testing.T) {
	cases := []struct {
		id    string
		valid bool
	}{
		{"slot-1", true},
		{"slot_1.v2", true},
		{"a", true},
		{"", false},
		{"../etc", false},
		{"a/b", false},
		{"slot id", false},
	}
	for _, tc := range cases {
		err := Validate(tc.id)
		if tc.valid && err != nil {
			t.Errorf("Validate(%q) = %v, want nil", tc.id, err)
		}
		if !tc.valid && err == nil {
			t.Errorf("Validate(%q) = nil, want error", tc.id)
		}
	}
}

func TestResolveEscape(t *testing.T) {
	if _, err := Resolve("/tmp/slots", "../etc"); err == nil {
		t.Fatal("expected escape to be rejected")
	}
	if _, err := Resolve("/tmp/slots", "ok-slot"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
