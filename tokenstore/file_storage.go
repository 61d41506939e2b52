package tokenstore

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"
)

var _ Storage = (*FileStorage)(nil)

var sealedMagic = []byte("INVS1")

const (
	saltLength  = 16
	nonceLength = 24
)

// ErrNotSealed is returned when a passphrase is configured but the file holds plaintext.
var ErrNotSealed = errors.New("storage file is not sealed")

// FileStorage keeps every key in one JSON document. With a passphrase the
// document is sealed with secretbox under an argon2id-derived key.
type FileStorage struct {
	path       string
	passphrase []byte
	lock       sync.Mutex
}

type FileStorageOption func(*FileStorage)

func WithPassphrase(passphrase string) FileStorageOption {
	return func(f *FileStorage) {
		if passphrase != "" {
			f.passphrase = []byte(passphrase)
		}
	}
}

func NewFileStorage(path string, options ...FileStorageOption) (*FileStorage, error) {
	if path == "" {
		return nil, errors.New("[NewFileStorage] path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, errors.Wrap(err, "[NewFileStorage] MkdirAll")
	}

	f := &FileStorage{path: path}
	for _, opt := range options {
		opt(f)
	}
	return f, nil
}

func (f *FileStorage) Get(key string) (string, bool, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	values, err := f.read()
	if err != nil {
		return "", false, err
	}
	v, ok := values[key]
	return v, ok, nil
}

func (f *FileStorage) Set(key, value string) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	values, err := f.read()
	if err != nil {
		return err
	}
	values[key] = value
	return f.write(values)
}

func (f *FileStorage) Remove(key string) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	values, err := f.read()
	if err != nil {
		return err
	}
	if _, ok := values[key]; !ok {
		return nil
	}
	delete(values, key)
	return f.write(values)
}

func (f *FileStorage) read() (map[string]string, error) {
	values := make(map[string]string)

	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return values, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "[FileStorage.read] ReadFile")
	}
	if len(data) == 0 {
		return values, nil
	}

	if f.passphrase != nil {
		data, err = f.open(data)
		if err != nil {
			return nil, err
		}
	}

	if err := json.Unmarshal(data, &values); err != nil {
		return nil, errors.Wrap(err, "[FileStorage.read] Unmarshal")
	}
	return values, nil
}

func (f *FileStorage) write(values map[string]string) error {
	data, err := json.Marshal(values)
	if err != nil {
		return errors.Wrap(err, "[FileStorage.write] Marshal")
	}

	if f.passphrase != nil {
		data, err = f.seal(data)
		if err != nil {
			return err
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".session-*")
	if err != nil {
		return errors.Wrap(err, "[FileStorage.write] CreateTemp")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "[FileStorage.write] Write")
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return errors.Wrap(err, "[FileStorage.write] Chmod")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "[FileStorage.write] Close")
	}
	return errors.Wrap(os.Rename(tmp.Name(), f.path), "[FileStorage.write] Rename")
}

// Sealed layout: magic | salt | nonce | secretbox(data).
func (f *FileStorage) seal(data []byte) ([]byte, error) {
	salt := make([]byte, saltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, errors.Wrap(err, "[FileStorage.seal] salt")
	}
	var nonce [nonceLength]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, errors.Wrap(err, "[FileStorage.seal] nonce")
	}

	key := f.deriveKey(salt)
	out := make([]byte, 0, len(sealedMagic)+saltLength+nonceLength+len(data)+secretbox.Overhead)
	out = append(out, sealedMagic...)
	out = append(out, salt...)
	out = append(out, nonce[:]...)
	return secretbox.Seal(out, data, &nonce, key), nil
}

func (f *FileStorage) open(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, sealedMagic) {
		return nil, ErrNotSealed
	}
	data = data[len(sealedMagic):]
	if len(data) < saltLength+nonceLength+secretbox.Overhead {
		return nil, errors.New("[FileStorage.open] storage file is truncated")
	}

	salt := data[:saltLength]
	var nonce [nonceLength]byte
	copy(nonce[:], data[saltLength:saltLength+nonceLength])

	plain, ok := secretbox.Open(nil, data[saltLength+nonceLength:], &nonce, f.deriveKey(salt))
	if !ok {
		return nil, errors.New("[FileStorage.open] storage file could not be opened, wrong passphrase?")
	}
	return plain, nil
}

func (f *FileStorage) deriveKey(salt []byte) *[32]byte {
	var key [32]byte
	copy(key[:], argon2.IDKey(f.passphrase, salt, 2, 19*1024, 1, 32))
	return &key
}
