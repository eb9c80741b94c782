package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"envmonitor-service/internal/models"
)

var (
	readingsPrefix = []byte("readings/")
	devicesPrefix  = []byte("devices/")
)

// BadgerSource встраиваемое хранилище показаний на BadgerDB.
// Ключи: readings/{device}/{key} -> JSON, devices/{device} -> пусто.
type BadgerSource struct {
	db *badger.DB
}

// NewBadgerSource открывает базу по пути; пустой путь означает хранение в памяти
func NewBadgerSource(path string) (*BadgerSource, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}
	return &BadgerSource{db: db}, nil
}

// Readings реализует ReadingSource.Readings
func (b *BadgerSource) Readings(ctx context.Context, deviceID string) (map[string]models.RawReading, error) {
	prefix := readingKey(deviceID, "")
	readings := make(map[string]models.RawReading)

	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			key := string(bytes.TrimPrefix(item.Key(), prefix))
			err := item.Value(func(val []byte) error {
				if reading, ok := decodeReading(val); ok {
					readings[key] = reading
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, b.wrap("read readings", err)
	}
	return readings, nil
}

// Devices реализует ReadingSource.Devices (ключи отсортированы самой базой)
func (b *BadgerSource) Devices(ctx context.Context) ([]string, error) {
	var devices []string

	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = devicesPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(devicesPrefix); it.ValidForPrefix(devicesPrefix); it.Next() {
			devices = append(devices, string(bytes.TrimPrefix(it.Item().Key(), devicesPrefix)))
		}
		return nil
	})
	if err != nil {
		return nil, b.wrap("list devices", err)
	}
	return devices, nil
}

// Append реализует Writer.Append
func (b *BadgerSource) Append(ctx context.Context, deviceID, key string, reading models.RawReading) error {
	data, err := EncodeReading(reading)
	if err != nil {
		return err
	}

	err = b.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(readingKey(deviceID, key), data); err != nil {
			return err
		}
		return txn.Set(append(append([]byte{}, devicesPrefix...), deviceID...), []byte{})
	})
	if err != nil {
		return b.wrap("append reading", err)
	}
	return nil
}

// Ping проверяет, что база открыта
func (b *BadgerSource) Ping(context.Context) error {
	if b.db.IsClosed() {
		return ErrUnavailable
	}
	return nil
}

// Close закрывает базу
func (b *BadgerSource) Close() error {
	return b.db.Close()
}

func (b *BadgerSource) wrap(op string, err error) error {
	if errors.Is(err, badger.ErrDBClosed) {
		return unavailable(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func readingKey(deviceID, key string) []byte {
	k := make([]byte, 0, len(readingsPrefix)+len(deviceID)+1+len(key))
	k = append(k, readingsPrefix...)
	k = append(k, deviceID...)
	k = append(k, '/')
	return append(k, key...)
}
