package plan

import "testing"

func TestLookup(t *testing.T) {
	c := Default()

	p, ok := c.Lookup("p10")
	if !ok {
		t.Fatal("expected p10 to exist")
	}
	if p.PriceUSD != 10 || p.Days != 30 {
		t.Fatalf("unexpected plan: %+v", p)
	}

	if _, ok := c.Lookup("p999"); ok {
		t.Fatal("expected p999 to be unknown")
	}
}

func TestDaysOrDefault(t *testing.T) {
	c := Default()

	if got := c.DaysOrDefault("free"); got != 3 {
		t.Fatalf("expected 3 days for free, got %d", got)
	}
	if got := c.DaysOrDefault("gone"); got != DefaultDays {
		t.Fatalf("expected fallback %d days, got %d", DefaultDays, got)
	}
}
