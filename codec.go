package querycache

import (
	"encoding/json"
	"time"

	"github.com/krisalay/query-cache/types"
)

// encodeKey turns a query key into the string used by persisters.
func encodeKey[K comparable](key K) (string, error) {
	b, err := json.Marshal(key)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func encodeRecord[V any](v V, updatedAt time.Time) (types.Record, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return types.Record{}, err
	}
	return types.Record{Value: b, UpdatedAt: updatedAt}, nil
}

func decodeValue[V any](rec types.Record) (V, error) {
	var v V
	err := json.Unmarshal(rec.Value, &v)
	return v, err
}
