package storage

import "fmt"

// DefaultStoreKind is the backend used when none is requested. The sqlite
// backend is build-tag gated, so the default stays memory in every build.
func DefaultStoreKind() string { return "memory" }

func NewStore(kind, sqlitePath string) (Store, error) {
	switch kind {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return newSQLiteStore(sqlitePath)
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", kind)
	}
}

func CloseIfSupported(store Store) error {
	closer, ok := store.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}
