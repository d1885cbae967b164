package fastd

import (
	"net/netip"
	"testing"
)

func TestFlatRoundTripV4(t *testing.T) {
	e := Endpoint{Addr: netip.MustParseAddr("1.2.3.4"), Port: 5}
	flat := e.ToFlat()

	want := FlatEndpoint{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0xFF, 0xFF, 1, 2, 3, 4, 0, 5}
	if flat != want {
		t.Fatalf("ToFlat() = %v, want %v", flat, want)
	}

	back := FromFlat(flat)
	if !back.Equal(e) {
		t.Fatalf("FromFlat(ToFlat(e)) = %v, want %v", back, e)
	}
}

func TestFlatRoundTripV6(t *testing.T) {
	e := Endpoint{Addr: netip.MustParseAddr("fe80::1"), Port: 1000}
	flat := e.ToFlat()
	back := FromFlat(flat)

	if !back.Equal(e) {
		t.Fatalf("FromFlat(ToFlat(e)) = %v, want %v", back, e)
	}

	if FromFlat(back.ToFlat()) != back {
		t.Fatalf("second round trip diverged")
	}
}

func TestEqualScopeIDZeroMatchesAny(t *testing.T) {
	withZone := Endpoint{Addr: netip.MustParseAddr("fe80::1%eth0"), Port: 9}
	noZone := Endpoint{Addr: netip.MustParseAddr("fe80::1"), Port: 9}

	if !withZone.Equal(noZone) {
		t.Fatalf("expected zero scope-id to match any scope-id")
	}
	if !noZone.Equal(withZone) {
		t.Fatalf("expected equality to be symmetric")
	}
}

func TestEqualRejectsDifferentScopeIDs(t *testing.T) {
	a := Endpoint{Addr: netip.MustParseAddr("fe80::1%eth0"), Port: 9}
	b := Endpoint{Addr: netip.MustParseAddr("fe80::1%eth1"), Port: 9}

	if a.Equal(b) {
		t.Fatalf("expected distinct non-zero scope-ids to differ")
	}
}

func TestHashIsPortModulo(t *testing.T) {
	e := Endpoint{Addr: netip.MustParseAddr("10.0.0.1"), Port: 130}
	if got, want := e.Hash(), 130%HashSize; got != want {
		t.Fatalf("Hash() = %d, want %d", got, want)
	}
}

func TestUnspecified(t *testing.T) {
	var zero Endpoint
	if !zero.Unspecified() {
		t.Fatalf("zero-value endpoint must be unspecified")
	}

	specified := Endpoint{Addr: netip.MustParseAddr("0.0.0.0"), Port: 10000}
	if !specified.Unspecified() {
		t.Fatalf("0.0.0.0 must be unspecified")
	}

	valid := Endpoint{Addr: netip.MustParseAddr("1.2.3.4"), Port: 1}
	if valid.Unspecified() {
		t.Fatalf("1.2.3.4 must not be unspecified")
	}
}
