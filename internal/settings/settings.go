// Package settings resolves configuration fields with operator-store → environment → default precedence.
package settings

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Source tags where a resolved value came from.
type Source string

const (
	SourceStore   Source = "store"
	SourceEnv     Source = "env"
	SourceDefault Source = "default"
	SourceAbsent  Source = "absent"
)

// Store is the operator-configured key/value layer.
type Store interface {
	Load(ctx context.Context) (map[string]string, error)
}

// SQLStore reads operator values from public.social_settings.
type SQLStore struct {
	DB *sql.DB
}

func (s SQLStore) Load(ctx context.Context) (map[string]string, error) {
	out := map[string]string{}
	if s.DB == nil {
		return out, nil
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT key, value FROM public.social_settings WHERE value IS NOT NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return out, rows.Err()
}

// Resolver is a snapshot of the store plus an environment layer. Build one per run.
type Resolver struct {
	stored map[string]string
	env    *viper.Viper
}

// NewResolver snapshots store and pairs it with env. A nil env disables the environment layer.
func NewResolver(ctx context.Context, store Store, env *viper.Viper) (*Resolver, error) {
	stored := map[string]string{}
	if store != nil {
		m, err := store.Load(ctx)
		if err != nil {
			return nil, err
		}
		stored = m
	}
	return &Resolver{stored: stored, env: env}, nil
}

// NewStaticResolver builds a resolver from an in-memory store snapshot.
func NewStaticResolver(stored map[string]string, env *viper.Viper) *Resolver {
	if stored == nil {
		stored = map[string]string{}
	}
	return &Resolver{stored: stored, env: env}
}

// Field resolves key. Blank values count as unset at every layer. def=="" means no hard default.
func (r *Resolver) Field(key, def string) (string, Source) {
	key = strings.ToLower(strings.TrimSpace(key))
	if r != nil {
		if v, ok := r.stored[key]; ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), SourceStore
		}
		if r.env != nil {
			if v := strings.TrimSpace(r.env.GetString(key)); v != "" {
				return v, SourceEnv
			}
		}
	}
	if def != "" {
		return def, SourceDefault
	}
	return "", SourceAbsent
}

// String is Field without the source tag.
func (r *Resolver) String(key, def string) string {
	v, _ := r.Field(key, def)
	return v
}

// Bool parses the resolved value; unparseable values yield def.
func (r *Resolver) Bool(key string, def bool) bool {
	v, src := r.Field(key, "")
	if src == SourceAbsent {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return def
}

// Millis resolves an integer millisecond value as a duration; non-positive or unparseable values yield def.
func (r *Resolver) Millis(key string, def time.Duration) time.Duration {
	v, src := r.Field(key, "")
	if src == SourceAbsent {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return time.Duration(n) * time.Millisecond
}
