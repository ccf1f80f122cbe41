//go:build mips64 || mips64le || ppc64 || s390x

package storage

import "errors"

var errSQLiteUnavailable = errors.New("SQLite storage is not supported on this platform, use file storage instead")

// SQLiteStore is a stub for platforms the pure Go driver does not build on.
type SQLiteStore struct{}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	return nil, errSQLiteUnavailable
}

func (s *SQLiteStore) Get(key string) (string, bool, error) { return "", false, errSQLiteUnavailable }
func (s *SQLiteStore) Set(key, value string) error          { return errSQLiteUnavailable }
func (s *SQLiteStore) Delete(keys ...string) error          { return errSQLiteUnavailable }
func (s *SQLiteStore) Close() error                         { return nil }
