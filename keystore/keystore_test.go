package keystore

import "testing"

func TestMemoryIdentityRoundTrip(t *testing.T) {
	m := NewMemory()

	if _, _, ok, err := m.LoadIdentity(); err != nil || ok {
		t.Fatalf("expected no identity before first save, got ok=%v err=%v", ok, err)
	}

	if err := m.SaveIdentity([]byte("signing"), []byte("static")); err != nil {
		t.Fatalf("SaveIdentity: %v", err)
	}

	signing, static, ok, err := m.LoadIdentity()
	if err != nil || !ok {
		t.Fatalf("LoadIdentity: ok=%v err=%v", ok, err)
	}
	if string(signing) != "signing" || string(static) != "static" {
		t.Fatalf("unexpected identity payload: %q %q", signing, static)
	}
}

func TestMemoryBlacklistAndFavorite(t *testing.T) {
	m := NewMemory()
	fp := [32]byte{1, 2, 3}

	if m.IsBlacklisted(fp) || m.IsFavorite(fp) {
		t.Fatalf("expected neither blacklisted nor favorite initially")
	}

	if err := m.Blacklist(fp); err != nil {
		t.Fatalf("Blacklist: %v", err)
	}
	if !m.IsBlacklisted(fp) {
		t.Fatalf("expected fingerprint to be blacklisted")
	}
	if err := m.Unblacklist(fp); err != nil {
		t.Fatalf("Unblacklist: %v", err)
	}
	if m.IsBlacklisted(fp) {
		t.Fatalf("expected fingerprint to be un-blacklisted")
	}

	if err := m.Favorite(fp); err != nil {
		t.Fatalf("Favorite: %v", err)
	}
	favorites := m.Favorites()
	if len(favorites) != 1 || favorites[0] != fp {
		t.Fatalf("expected favorites to contain fp, got %v", favorites)
	}
}
