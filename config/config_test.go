package config

import (
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoZeroFields(t *testing.T) {
	cfg := Default()

	for _, field := range visit(newVar(*cfg), "Config", false) {
		assert.Fail(t, "zero-value field", field)
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, Default().Validate())

	cfg := Default()
	cfg.HTTP.MaxPipelineDepth = 0
	require.ErrorIs(t, cfg.Validate(), ErrBadLimit)

	cfg = Default()
	cfg.NET.IdleTimeout = 0
	require.ErrorIs(t, cfg.Validate(), ErrBadTimeout)

	cfg = Default()
	cfg.Headers.Number.Default = cfg.Headers.Number.Maximal + 1
	require.ErrorIs(t, cfg.Validate(), ErrBadPrealloc)
}

func TestStore(t *testing.T) {
	t.Run("snapshots are immutable", func(t *testing.T) {
		cfg := Default()
		store, err := NewStore(cfg)
		require.NoError(t, err)

		snapshot := store.Load()
		cfg.Headers.MaxBytes = 1
		cfg.Codings.Supported[0] = "compress"
		require.Equal(t, Default().Headers.MaxBytes, store.Load().Headers.MaxBytes)
		require.Equal(t, "br", snapshot.Codings.Supported[0])

		require.NoError(t, store.Store(cfg))
		require.Equal(t, 1, store.Load().Headers.MaxBytes)
		require.Equal(t, Default().Headers.MaxBytes, snapshot.Headers.MaxBytes)
	})

	t.Run("invalid config is rejected", func(t *testing.T) {
		store, err := NewStore(nil)
		require.NoError(t, err)
		before := store.Load()

		cfg := Default()
		cfg.HTTP.RequestTimeout = -time.Second
		require.Error(t, store.Store(cfg))
		require.Error(t, store.Update(func(cfg *Config) {
			cfg.NET.ReadBufferSize = 0
		}))
		require.Same(t, before, store.Load())
	})

	t.Run("concurrent updates", func(t *testing.T) {
		store, err := NewStore(nil)
		require.NoError(t, err)
		initial := store.Load().HTTP.MaxPipelineDepth

		var wg sync.WaitGroup
		for range 50 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, store.Update(func(cfg *Config) {
					cfg.HTTP.MaxPipelineDepth++
				}))
			}()
		}

		wg.Wait()
		require.Equal(t, initial+50, store.Load().HTTP.MaxPipelineDepth)
	})
}

type variable struct {
	Type  reflect.Type
	Value reflect.Value
}

func newVar(a any) variable {
	return variable{reflect.TypeOf(a), reflect.ValueOf(a)}
}

func visit(a variable, name string, nullable bool) (fields []string) {
	if a.Type.Kind() == reflect.Struct {
		for field := range a.Value.NumField() {
			v1 := variable{a.Type.Field(field).Type, a.Value.Field(field)}
			fieldname := a.Type.Field(field).Name
			isNullable := a.Type.Field(field).Tag.Get("test") == "nullable"
			fields = append(fields, visit(v1, name+"."+fieldname, isNullable)...)
		}

		return fields
	}

	if a.Value.IsZero() && !nullable {
		return []string{name}
	}

	return nil
}
