package config

import "strings"

const (
	storageKindVar       = "INVENTORY_STORAGE"
	storagePathVar       = "INVENTORY_STORAGE_PATH"
	storagePassphraseVar = "INVENTORY_STORAGE_PASSPHRASE"
)

type StorageKind string

const (
	StorageFile   StorageKind = "file"
	StorageSQLite StorageKind = "sqlite"
	StorageMemory StorageKind = "memory"
)

type StorageConfig interface {
	GetStorageKind() StorageKind
	GetStoragePath() string
	GetStoragePassphrase() string
}

type Storage struct{}

var _ StorageConfig = Storage{}

func (Storage) GetStorageKind() StorageKind {
	return StorageKind(strings.ToLower(GetEnv(storageKindVar, string(StorageFile))))
}

func (s Storage) GetStoragePath() string {
	if s.GetStorageKind() == StorageSQLite {
		return GetEnv(storagePathVar, "./data/session.db")
	}
	return GetEnv(storagePathVar, "./data/session.json")
}

func (Storage) GetStoragePassphrase() string {
	return GetEnv(storagePassphraseVar, "")
}
