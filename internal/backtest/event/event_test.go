package event

import "testing"

func TestFlagsHasAny(t *testing.T) {
	f := Exch | Depth | Buy
	if !f.Has(Exch | Depth) {
		t.Fatalf("expected Has(Exch|Depth) true")
	}
	if f.Has(Exch | Sell) {
		t.Fatalf("expected Has(Exch|Sell) false")
	}
	if !f.Any(Sell | Buy) {
		t.Fatalf("expected Any(Sell|Buy) true")
	}
	if f.Any(Local | Trade) {
		t.Fatalf("expected Any(Local|Trade) false")
	}
}

func TestUserFlagDoesNotCollideWithCoreBits(t *testing.T) {
	core := Local | Exch | Buy | Sell | Depth | Trade | DepthClear | DepthSnapshot | DepthBBO
	u0 := UserFlag(0)
	u1 := UserFlag(1)
	if core&u0 != 0 {
		t.Fatalf("UserFlag(0) collides with core bits")
	}
	if u0 == u1 {
		t.Fatalf("UserFlag(0) and UserFlag(1) must differ")
	}
}

func TestPriceTick(t *testing.T) {
	e := Event{Px: 100.5}
	if got := e.PriceTick(0.5); got != 201 {
		t.Fatalf("PriceTick = %d, want 201", got)
	}
	neg := Event{Px: -100.5}
	if got := neg.PriceTick(0.5); got != -201 {
		t.Fatalf("PriceTick(neg) = %d, want -201", got)
	}
}
