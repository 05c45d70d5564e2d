package quality

import "testing"

func TestMappingTable(t *testing.T) {
	cases := []struct {
		level int
		want  Policy
	}{
		{100, Policy{24, 24}},
		{90, Policy{24, 24}},
		{89, Policy{12, 36}},
		{70, Policy{12, 36}},
		{69, Policy{6, 48}},
		{40, Policy{6, 48}},
		{39, Policy{0, 48}},
		{0, Policy{0, 48}},
		{-5, Policy{0, 48}},
		{150, Policy{24, 24}},
	}
	for _, tc := range cases {
		got := Mapping(tc.level)
		if got != tc.want {
			t.Errorf("Mapping(%d) = %+v, want %+v", tc.level, got, tc.want)
		}
	}
}

func TestMappingMonotonic(t *testing.T) {
	prev := Mapping(0)
	for q := 1; q <= 100; q++ {
		cur := Mapping(q)
		if cur.MaxAgeHours > prev.MaxAgeHours {
			t.Errorf("max_age_hours increased from %v to %v at q=%d", prev.MaxAgeHours, cur.MaxAgeHours, q)
		}
		if cur.MinMemberMonths < prev.MinMemberMonths {
			t.Errorf("min_member_months decreased from %v to %v at q=%d", prev.MinMemberMonths, cur.MinMemberMonths, q)
		}
		prev = cur
	}
}
