package postgres

import "testing"

func TestTagArrayQuotesAndEscapes(t *testing.T) {
	cases := []struct {
		name string
		tags []string
		want any
	}{
		{name: "empty", tags: nil, want: nil},
		{name: "plain", tags: []string{"overspeed", "geofence_exit"}, want: `{"overspeed","geofence_exit"}`},
		{name: "embedded quote", tags: []string{`door "open"`}, want: `{"door \"open\""}`},
		{name: "embedded backslash", tags: []string{`back\slash`}, want: `{"back\\slash"}`},
		{name: "comma and brace", tags: []string{"a,b", "c}d"}, want: `{"a,b","c}d"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tagArray(tc.tags); got != tc.want {
				t.Fatalf("tagArray(%v) = %v, want %v", tc.tags, got, tc.want)
			}
		})
	}
}
