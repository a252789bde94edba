package reservation

import "testing"

func TestKeyNaming(t *testing.T) {
	if got := stockKey(42); got != "sale:stock:42" {
		t.Fatalf("stockKey = %q", got)
	}
	if got := buyersKey(42); got != "sale:buyers:42" {
		t.Fatalf("buyersKey = %q", got)
	}
	if got := blockedKey(42); got != "sale:blocked:42" {
		t.Fatalf("blockedKey = %q", got)
	}
}

func TestParseRollbackPolicy(t *testing.T) {
	cases := []struct {
		in      string
		want    RollbackPolicy
		wantErr bool
	}{
		{"", RollbackRelease, false},
		{"release", RollbackRelease, false},
		{"retain", RollbackRetain, false},
		{"blocklist", "", true},
	}
	for _, tc := range cases {
		got, err := ParseRollbackPolicy(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseRollbackPolicy(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseRollbackPolicy(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseRollbackPolicy(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestLocalSoldOutCacheShedsBeforeRedis(t *testing.T) {
	// No Redis behind this store: if the local cache answers, Reserve must
	// return without touching the client at all.
	s := NewStore(nil, RollbackRelease)
	s.soldOut.Store(int64(7), struct{}{})

	status, err := s.Reserve(t.Context(), 1, 7)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if status != StatusSoldOut {
		t.Fatalf("status = %v, want StatusSoldOut from local cache", status)
	}
}
