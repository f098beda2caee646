package kv

import (
	"context"
	"encoding/json"
	"fmt"

	"helplink/internal/apperr"
	logx "helplink/pkg/logx"
)

// DecodeJSON parses a stored payload, tagging failures as malformed data.
func DecodeJSON[T any](raw []byte) (T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("%w: %v", apperr.ErrMalformedData, err)
	}
	return v, nil
}

// LoadJSON reads and decodes a collection, falling back to def when the key
// is absent or the stored payload does not parse. Malformed data is logged
// and never surfaced to the user.
func LoadJSON[T any](ctx context.Context, s Store, key string, def T, log logx.Logger) T {
	raw, ok, err := s.Load(ctx, key)
	if err != nil {
		log.Warn("load failed; using default", logx.String("key", key), logx.Err(err))
		return def
	}
	if !ok {
		return def
	}
	v, err := DecodeJSON[T](raw)
	if err != nil {
		log.Warn("stored payload malformed; using default", logx.String("key", key), logx.Err(err))
		return def
	}
	return v
}

// SaveJSON encodes and writes a collection. Best-effort: the caller only logs
// the returned error.
func SaveJSON(ctx context.Context, s Store, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Save(ctx, key, b)
}
