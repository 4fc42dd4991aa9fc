/*
File Name:  keystore.go

KeyStore persists the long-term identity keypair (never in plain
preferences, §4.4) plus the blacklist/favorites tables (§13). Grounded on
the teacher's store/Pogreb.go (pogreb.Open/Get/Set/Delete) and
Blacklist.go's BlackListNodeDB layered on the same handle, with an
in-memory implementation for tests grounded on store/Memory.go's map+mutex
shape.
*/

package keystore

import (
	"errors"
	"io"
	"log"
	"sync"

	"github.com/akrylysov/pogreb"
)

var ErrNotFound = errors.New("keystore: key not found")

const (
	keySigningPriv = "identity/signing_priv"
	keyStaticPriv  = "identity/static_priv"

	prefixBlacklist = "blacklist/"
	prefixFavorite  = "favorite/"
)

// Store is the persistence collaborator identity.Store and Engine depend
// on.
type Store interface {
	SaveIdentity(signingPriv, staticPriv []byte) error
	LoadIdentity() (signingPriv, staticPriv []byte, ok bool, err error)

	Blacklist(fingerprint [32]byte) error
	Unblacklist(fingerprint [32]byte) error
	IsBlacklisted(fingerprint [32]byte) bool

	Favorite(fingerprint [32]byte) error
	Unfavorite(fingerprint [32]byte) error
	IsFavorite(fingerprint [32]byte) bool
	Favorites() [][32]byte

	Close() error
}

// Memory is an in-memory Store, for tests and ephemeral nodes.
type Memory struct {
	mu          sync.Mutex
	signingPriv []byte
	staticPriv  []byte
	hasIdentity bool
	blacklisted map[[32]byte]bool
	favorites   map[[32]byte]bool
}

func NewMemory() *Memory {
	return &Memory{
		blacklisted: make(map[[32]byte]bool),
		favorites:   make(map[[32]byte]bool),
	}
}

func (m *Memory) SaveIdentity(signingPriv, staticPriv []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signingPriv = append([]byte(nil), signingPriv...)
	m.staticPriv = append([]byte(nil), staticPriv...)
	m.hasIdentity = true
	return nil
}

func (m *Memory) LoadIdentity() (signingPriv, staticPriv []byte, ok bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.hasIdentity {
		return nil, nil, false, nil
	}
	return m.signingPriv, m.staticPriv, true, nil
}

func (m *Memory) Blacklist(fp [32]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blacklisted[fp] = true
	return nil
}

func (m *Memory) Unblacklist(fp [32]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blacklisted, fp)
	return nil
}

func (m *Memory) IsBlacklisted(fp [32]byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.blacklisted[fp]
}

func (m *Memory) Favorite(fp [32]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.favorites[fp] = true
	return nil
}

func (m *Memory) Unfavorite(fp [32]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.favorites, fp)
	return nil
}

func (m *Memory) IsFavorite(fp [32]byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.favorites[fp]
}

func (m *Memory) Favorites() [][32]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][32]byte, 0, len(m.favorites))
	for fp := range m.favorites {
		out = append(out, fp)
	}
	return out
}

func (m *Memory) Close() error { return nil }

// Pogreb is a pogreb-backed persistent Store.
type Pogreb struct {
	mu sync.Mutex
	db *pogreb.DB
}

// NewPogreb opens (or creates) a pogreb database at filename.
func NewPogreb(filename string) (*Pogreb, error) {
	pogreb.SetLogger(log.New(io.Discard, "", 0))

	db, err := pogreb.Open(filename, nil)
	if err != nil {
		return nil, err
	}
	return &Pogreb{db: db}, nil
}

func (p *Pogreb) SaveIdentity(signingPriv, staticPriv []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.db.Put([]byte(keySigningPriv), signingPriv); err != nil {
		return err
	}
	return p.db.Put([]byte(keyStaticPriv), staticPriv)
}

func (p *Pogreb) LoadIdentity() (signingPriv, staticPriv []byte, ok bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	signingPriv, err = p.db.Get([]byte(keySigningPriv))
	if err != nil {
		return nil, nil, false, err
	}
	staticPriv, err = p.db.Get([]byte(keyStaticPriv))
	if err != nil {
		return nil, nil, false, err
	}
	if signingPriv == nil || staticPriv == nil {
		return nil, nil, false, nil
	}
	return signingPriv, staticPriv, true, nil
}

func (p *Pogreb) Blacklist(fp [32]byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.db.Put(append([]byte(prefixBlacklist), fp[:]...), []byte{1})
}

func (p *Pogreb) Unblacklist(fp [32]byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.db.Delete(append([]byte(prefixBlacklist), fp[:]...))
}

func (p *Pogreb) IsBlacklisted(fp [32]byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, err := p.db.Get(append([]byte(prefixBlacklist), fp[:]...))
	return err == nil && v != nil
}

func (p *Pogreb) Favorite(fp [32]byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.db.Put(append([]byte(prefixFavorite), fp[:]...), []byte{1})
}

func (p *Pogreb) Unfavorite(fp [32]byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.db.Delete(append([]byte(prefixFavorite), fp[:]...))
}

func (p *Pogreb) IsFavorite(fp [32]byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, err := p.db.Get(append([]byte(prefixFavorite), fp[:]...))
	return err == nil && v != nil
}

func (p *Pogreb) Favorites() [][32]byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out [][32]byte
	it := p.db.Items()
	for {
		key, _, err := it.Next()
		if err != nil {
			break
		}
		if len(key) == 32+len(prefixFavorite) && string(key[:len(prefixFavorite)]) == prefixFavorite {
			var fp [32]byte
			copy(fp[:], key[len(prefixFavorite):])
			out = append(out, fp)
		}
	}
	return out
}

func (p *Pogreb) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.db.Close()
}
