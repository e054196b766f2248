package persona

import "testing"

func TestResolveKnownScenarios(t *testing.T) {
	cases := []struct {
		room string
		want string
	}{
		{"axtra-billing-user1-1700000000000", "billing-dispute"},
		{"axtra-technical-user42-1700000000000", "technical-support"},
		{"axtra-sales-user1-1700000000000", "sales-upsell"},
		{"axtra-retention-user1-1700000000000", "retention"},
		{"axtra-compliance-user1-1700000000000", "compliance-privacy"},
		{"axtra-returns-user1-1700000000000", "returns"},
		{"axtra-vip-user1-1700000000000", "vip-support"},
		{"axtra-fraud-user1-1700000000000", "fraud-alert"},
		{"axtra-TECHNICAL-user1-1700000000000", "technical-support"},
		{"axtra-billing-dispute", "billing-dispute"},
	}
	for _, tc := range cases {
		p, fellBack := Resolve(tc.room)
		if p == nil {
			t.Fatalf("Resolve(%q) = nil", tc.room)
		}
		if p.ID != tc.want {
			t.Fatalf("Resolve(%q) = %q, want %q", tc.room, p.ID, tc.want)
		}
		if fellBack {
			t.Fatalf("Resolve(%q) should not report fallback", tc.room)
		}
	}
}

func TestResolveIsPure(t *testing.T) {
	room := "axtra-technical-user42-1700000000000"
	a, _ := Resolve(room)
	b, _ := Resolve(room)
	if *a != *b {
		t.Fatalf("Resolve is not deterministic: %+v vs %+v", a, b)
	}
}

func TestResolveUnknownKeyFallsBackToDefault(t *testing.T) {
	p, fellBack := Resolve("axtra-unknownkey-user1-170000")
	if p == nil {
		t.Fatalf("unknown key should fall back, not fail")
	}
	if p.ID != DefaultPersonaID {
		t.Fatalf("fallback persona = %q, want %q", p.ID, DefaultPersonaID)
	}
	if !fellBack {
		t.Fatalf("fallback should be reported")
	}
}

func TestResolveMalformedRoomNames(t *testing.T) {
	for _, room := range []string{
		"bad-name",
		"axtra-billing",
		"other-billing-user1-1700000000000",
		"",
	} {
		if p, _ := Resolve(room); p != nil {
			t.Fatalf("Resolve(%q) = %+v, want nil", room, p)
		}
	}
}

func TestAllListsEightPersonas(t *testing.T) {
	all := All()
	if len(all) != 8 {
		t.Fatalf("All() returned %d personas, want 8", len(all))
	}
	seen := map[Voice]bool{}
	for _, p := range all {
		if p.Greeting == "" || p.SystemPrompt == "" {
			t.Fatalf("persona %q missing prompt or greeting", p.ID)
		}
		if seen[p.Voice] {
			t.Fatalf("voice %q reused", p.Voice)
		}
		seen[p.Voice] = true
	}
}
