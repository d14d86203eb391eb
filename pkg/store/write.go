package store

import (
	"context"

	"github.com/cbodonnell/gameportal/pkg/log"
)

// Write sets value at path, logging and wrapping any failure in a *WriteError.
func Write(ctx context.Context, s Store, path string, value interface{}) error {
	if err := s.Set(ctx, path, value); err != nil {
		log.Error("Failed writing to path=%s value=%s: %v", path, log.PrettyJSON(value), err)
		return &WriteError{Op: "set", Path: path, Payload: value, Err: err}
	}
	return nil
}

// Merge upserts values under path, logging and wrapping any failure in a *WriteError.
func Merge(ctx context.Context, s Store, path string, values map[string]interface{}) error {
	if err := s.Update(ctx, path, values); err != nil {
		log.Error("Failed updating path=%s value=%s: %v", path, log.PrettyJSON(values), err)
		return &WriteError{Op: "update", Path: path, Payload: values, Err: err}
	}
	return nil
}
