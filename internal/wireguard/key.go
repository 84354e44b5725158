// Package wireguard implements the WG gateway client (spec §4.D): per-role
// x25519 key persistence and the authenticator-mediated registration
// handshake that assigns a WireGuard peer at a gateway.
package wireguard

import (
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/curve25519"
)

// Role distinguishes the entry and exit WireGuard tunnels (spec §4.D).
type Role int

const (
	RoleEntry Role = iota
	RoleExit
)

func (r Role) String() string {
	if r == RoleEntry {
		return "entry"
	}
	return "exit"
}

func privateKeyFilename(r Role) string {
	return fmt.Sprintf("private_%s_wireguard.pem", r)
}

func publicKeyFilename(r Role) string {
	return fmt.Sprintf("public_%s_wireguard.pem", r)
}

const (
	privatePEMType = "NYM VPN WIREGUARD PRIVATE KEY"
	publicPEMType  = "NYM VPN WIREGUARD PUBLIC KEY"
)

// KeyPair is an x25519 keypair for one WireGuard role.
type KeyPair struct {
	Private [32]byte
	Public  [32]byte
}

func generateKeyPair() (KeyPair, error) {
	var priv [32]byte
	if _, err := rand.Read(priv[:]); err != nil {
		return KeyPair{}, fmt.Errorf("generate wireguard private key: %w", err)
	}
	// Clamp per RFC 7748 so the scalar is a valid x25519 private key.
	priv[0] &= 248
	priv[31] &= 127
	priv[31] |= 64

	pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return KeyPair{}, fmt.Errorf("derive wireguard public key: %w", err)
	}
	var kp KeyPair
	kp.Private = priv
	copy(kp.Public[:], pub)
	return kp, nil
}

// LoadOrCreateKeyPair loads the persisted keypair for role from dataDir,
// generating and best-effort persisting a fresh one if the files are
// missing (spec §4.D: "missing files cause fresh generation and
// best-effort persist").
func LoadOrCreateKeyPair(dataDir string, role Role) (KeyPair, error) {
	privPath := filepath.Join(dataDir, privateKeyFilename(role))

	raw, err := os.ReadFile(privPath)
	if err == nil {
		return decodeKeyPair(raw)
	}
	if !os.IsNotExist(err) {
		return KeyPair{}, fmt.Errorf("read %s: %w", privPath, err)
	}

	kp, err := generateKeyPair()
	if err != nil {
		return KeyPair{}, err
	}
	if err := persistKeyPair(dataDir, role, kp); err != nil {
		// Best-effort: a persist failure does not block using the
		// freshly generated key for this process lifetime.
		return kp, nil
	}
	return kp, nil
}

func decodeKeyPair(raw []byte) (KeyPair, error) {
	block, _ := pem.Decode(raw)
	if block == nil || block.Type != privatePEMType {
		return KeyPair{}, fmt.Errorf("decode wireguard private key: not a valid %s PEM block", privatePEMType)
	}
	if len(block.Bytes) != 32 {
		return KeyPair{}, fmt.Errorf("decode wireguard private key: expected 32 bytes, got %d", len(block.Bytes))
	}
	var kp KeyPair
	copy(kp.Private[:], block.Bytes)
	pub, err := curve25519.X25519(kp.Private[:], curve25519.Basepoint)
	if err != nil {
		return KeyPair{}, fmt.Errorf("derive wireguard public key: %w", err)
	}
	copy(kp.Public[:], pub)
	return kp, nil
}

func persistKeyPair(dataDir string, role Role, kp KeyPair) error {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return err
	}
	privBlock := &pem.Block{Type: privatePEMType, Bytes: kp.Private[:]}
	if err := os.WriteFile(filepath.Join(dataDir, privateKeyFilename(role)), pem.EncodeToMemory(privBlock), 0o600); err != nil {
		return err
	}
	pubBlock := &pem.Block{Type: publicPEMType, Bytes: kp.Public[:]}
	if err := os.WriteFile(filepath.Join(dataDir, publicKeyFilename(role)), pem.EncodeToMemory(pubBlock), 0o644); err != nil {
		return err
	}
	return nil
}
