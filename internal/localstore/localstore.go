// Package localstore is the local persistence adapter: a synchronous
// key to JSON-string store used by the mock backend and the local session.
package localstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Keys used by the mock backend.
const (
	KeyEvents        = "events"
	KeyRegistrations = "registrations"
	KeyUsers         = "users"
	KeyTeam          = "team"
	KeyGallery       = "gallery"
	KeyConfig        = "config"
	KeyCurrentUser   = "currentUser"
	KeySchemaVersion = "schemaVersion"
)

// KV is a synchronous key/value store holding JSON strings.
type KV interface {
	// Get returns the stored value and whether the key exists.
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
}

// GetJSON decodes the value under key into dst. It reports false when the
// key does not exist.
func GetJSON(kv KV, key string, dst any) (bool, error) {
	raw, ok, err := kv.Get(key)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", key, err)
	}
	if !ok || raw == "" || raw == "null" {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(kv KV, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := kv.Set(key, string(b)); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// Latency is the artificial delay of the mock backend. It keeps loading
// indicators visible in local mode the same way network calls do in remote
// mode. A zero Latency does not wait.
type Latency time.Duration

// DefaultLatency matches the delay of the hosted backend on a typical
// connection.
const DefaultLatency = Latency(800 * time.Millisecond)

// Wait blocks for the configured delay or until ctx is done.
func (l Latency) Wait(ctx context.Context) error {
	if l <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(time.Duration(l))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
