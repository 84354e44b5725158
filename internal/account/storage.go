package account

import (
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gagliardetto/solana-go"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	mnemonicFileName  = "mnemonic.sealed"
	sealKeyFileName   = "device_seal.key"
	deviceKeyFileName = "device_identity.pem"

	devicePEMType = "NYM VPN DEVICE PRIVATE KEY"
)

// ErrNoMnemonic is returned by LoadMnemonic when no account has been
// stored yet.
var ErrNoMnemonic = errors.New("account: no mnemonic stored")

// ErrNoDeviceKey is returned by LoadDeviceKey before InitKeys has ever run.
var ErrNoDeviceKey = errors.New("account: no device key stored")

// Storage persists the mnemonic and device identity under one data
// directory (spec §4.L: "data_dir, account storage (mnemonic + device
// keys)").
type Storage struct {
	dataDir string
}

// NewStorage returns a Storage rooted at dataDir. Callers must ensure
// dataDir exists or is creatable.
func NewStorage(dataDir string) *Storage {
	return &Storage{dataDir: dataDir}
}

// sealKey loads (generating on first use) the machine-local key that seals
// the mnemonic file at rest (spec §11: "key derived via HKDF from a
// machine-local key file"). The seal key itself is unencrypted on disk —
// it only raises the bar from "plaintext mnemonic" to "mnemonic unreadable
// without this file too", matching what a device-bound at-rest guarantee
// can realistically promise without platform keychain integration.
func (s *Storage) sealKey() ([32]byte, error) {
	path := filepath.Join(s.dataDir, sealKeyFileName)

	raw, err := os.ReadFile(path)
	if err == nil {
		if len(raw) != 32 {
			return [32]byte{}, fmt.Errorf("account: seal key file %s has unexpected length %d", path, len(raw))
		}
		var key [32]byte
		copy(key[:], raw)
		return key, nil
	}
	if !os.IsNotExist(err) {
		return [32]byte{}, fmt.Errorf("account: read seal key: %w", err)
	}

	var key [32]byte
	if _, err := io.ReadFull(rand.Reader, key[:]); err != nil {
		return [32]byte{}, fmt.Errorf("account: generate seal key: %w", err)
	}
	if err := os.MkdirAll(s.dataDir, 0o700); err != nil {
		return [32]byte{}, fmt.Errorf("account: create data dir: %w", err)
	}
	if err := os.WriteFile(path, key[:], 0o600); err != nil {
		return [32]byte{}, fmt.Errorf("account: write seal key: %w", err)
	}
	return key, nil
}

func (s *Storage) sealCipher() (cipher.AEAD, error) {
	machineKey, err := s.sealKey()
	if err != nil {
		return nil, err
	}

	derived := make([]byte, chacha20poly1305.KeySize)
	kdf := hkdf.New(sha256.New, machineKey[:], nil, []byte("nym-vpnd-core mnemonic seal v1"))
	if _, err := io.ReadFull(kdf, derived); err != nil {
		return nil, fmt.Errorf("account: derive seal key: %w", err)
	}
	aead, err := chacha20poly1305.New(derived)
	if err != nil {
		return nil, fmt.Errorf("account: build seal cipher: %w", err)
	}
	return aead, nil
}

// StoreMnemonic validates and persists mnemonic, sealed at rest (spec §4.L
// StoreAccount).
func (s *Storage) StoreMnemonic(mnemonic string) error {
	if !bip39.IsMnemonicValid(mnemonic) {
		return fmt.Errorf("account: invalid mnemonic")
	}

	aead, err := s.sealCipher()
	if err != nil {
		return err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("account: generate mnemonic nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(mnemonic), nil)

	if err := os.MkdirAll(s.dataDir, 0o700); err != nil {
		return fmt.Errorf("account: create data dir: %w", err)
	}
	path := filepath.Join(s.dataDir, mnemonicFileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, sealed, 0o600); err != nil {
		return fmt.Errorf("account: write mnemonic: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("account: rename mnemonic into place: %w", err)
	}
	return nil
}

// LoadMnemonic unseals and returns the stored mnemonic, or ErrNoMnemonic.
func (s *Storage) LoadMnemonic() (string, error) {
	path := filepath.Join(s.dataDir, mnemonicFileName)
	sealed, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNoMnemonic
		}
		return "", fmt.Errorf("account: read mnemonic: %w", err)
	}

	aead, err := s.sealCipher()
	if err != nil {
		return "", err
	}
	if len(sealed) < aead.NonceSize() {
		return "", fmt.Errorf("account: sealed mnemonic file truncated")
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("account: unseal mnemonic: %w", err)
	}
	return string(plain), nil
}

// RemoveMnemonic deletes the stored mnemonic file, if any.
func (s *Storage) RemoveMnemonic() error {
	err := os.Remove(filepath.Join(s.dataDir, mnemonicFileName))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("account: remove mnemonic: %w", err)
	}
	return nil
}

// DeviceKey is the device's persisted Ed25519-style identity keypair (spec
// §3 Device key), exposed through solana.PublicKey for its base58 String
// form.
type DeviceKey struct {
	Private ed25519.PrivateKey
	Public  solana.PublicKey
}

// InitKeys lazily creates the device identity keypair if it doesn't exist
// yet, then returns it (spec §4.L: init_keys on controller startup; spec
// §3 Device key: "created lazily; never rotated except by explicit forget
// account").
func (s *Storage) InitKeys() (DeviceKey, error) {
	dk, err := s.LoadDeviceKey()
	if err == nil {
		return dk, nil
	}
	if !errors.Is(err, ErrNoDeviceKey) {
		return DeviceKey{}, err
	}

	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(rand.Reader, seed); err != nil {
		return DeviceKey{}, fmt.Errorf("account: generate device key seed: %w", err)
	}
	if err := s.persistDeviceSeed(seed); err != nil {
		return DeviceKey{}, err
	}
	return deviceKeyFromSeed(seed), nil
}

func deviceKeyFromSeed(seed []byte) DeviceKey {
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return DeviceKey{Private: priv, Public: solana.PublicKeyFromBytes(pub)}
}

func (s *Storage) persistDeviceSeed(seed []byte) error {
	if err := os.MkdirAll(s.dataDir, 0o700); err != nil {
		return fmt.Errorf("account: create data dir: %w", err)
	}
	block := &pem.Block{Type: devicePEMType, Bytes: seed}
	path := filepath.Join(s.dataDir, deviceKeyFileName)
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil {
		return fmt.Errorf("account: write device key: %w", err)
	}
	return nil
}

// LoadDeviceKey returns the persisted device identity, or ErrNoDeviceKey if
// InitKeys has never run.
func (s *Storage) LoadDeviceKey() (DeviceKey, error) {
	path := filepath.Join(s.dataDir, deviceKeyFileName)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DeviceKey{}, ErrNoDeviceKey
		}
		return DeviceKey{}, fmt.Errorf("account: read device key: %w", err)
	}
	block, _ := pem.Decode(raw)
	if block == nil || block.Type != devicePEMType {
		return DeviceKey{}, fmt.Errorf("account: decode device key: not a valid %s PEM block", devicePEMType)
	}
	if len(block.Bytes) != ed25519.SeedSize {
		return DeviceKey{}, fmt.Errorf("account: decode device key: expected %d-byte seed, got %d", ed25519.SeedSize, len(block.Bytes))
	}
	return deviceKeyFromSeed(block.Bytes), nil
}

// RemoveDeviceKey deletes the persisted device identity (forget account's
// "re-init device keys" step calls this, then InitKeys again).
func (s *Storage) RemoveDeviceKey() error {
	err := os.Remove(filepath.Join(s.dataDir, deviceKeyFileName))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("account: remove device key: %w", err)
	}
	return nil
}

// ResetDeviceIdentity removes and regenerates the device key, used by the
// control surface's resetDeviceIdentity operation (spec §4.M).
func (s *Storage) ResetDeviceIdentity() (DeviceKey, error) {
	if err := s.RemoveDeviceKey(); err != nil {
		return DeviceKey{}, err
	}
	return s.InitKeys()
}

// RemoveAllAccountFiles best-effort removes every file ForgetAccount owns
// directly (the mnemonic and the device key; the seal key is left in place
// since it isn't account-specific secret material, and credential storage
// is reset separately through internal/credentials.Store.Reset).
func (s *Storage) RemoveAllAccountFiles() error {
	return errors.Join(s.RemoveMnemonic(), s.RemoveDeviceKey())
}
