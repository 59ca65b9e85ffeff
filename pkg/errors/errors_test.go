package errors_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/agentstation/crmsync/pkg/errors"
)

func TestNew(t *testing.T) {
	err := pkgerrors.New("test error")
	assert.NotNil(t, err)
	assert.Equal(t, "test error", err.Error())
}

func TestNotFoundError(t *testing.T) {
	t.Run("basic error", func(t *testing.T) {
		err := &pkgerrors.NotFoundError{Resource: "master", ID: "tax:123"}
		assert.Equal(t, "master with ID tax:123 not found", err.Error())
		assert.True(t, errors.Is(err, pkgerrors.ErrNotFound))
	})

	t.Run("wrapped error", func(t *testing.T) {
		base := pkgerrors.NewNotFoundError("record", "42")
		wrapped := errors.Join(errors.New("failed"), base)
		assert.ErrorIs(t, wrapped, pkgerrors.ErrNotFound)
	})
}

func TestValidationError(t *testing.T) {
	t.Run("with field", func(t *testing.T) {
		err := &pkgerrors.ValidationError{Field: "page_size", Message: "must be positive"}
		assert.Equal(t, "validation failed for field page_size: must be positive", err.Error())
		assert.True(t, pkgerrors.IsValidationError(err))
	})

	t.Run("without field", func(t *testing.T) {
		err := &pkgerrors.ValidationError{Message: "invalid options"}
		assert.Equal(t, "validation failed: invalid options", err.Error())
	})
}

func TestAPIError(t *testing.T) {
	t.Run("with status code", func(t *testing.T) {
		err := pkgerrors.NewAPIError("/clients", 502, "bad gateway")
		assert.Equal(t, "API error from /clients (status 502): bad gateway", err.Error())
		assert.True(t, pkgerrors.IsTransient(err))
		assert.False(t, pkgerrors.IsRateLimited(err))
	})

	t.Run("network failure", func(t *testing.T) {
		base := errors.New("connection refused")
		err := pkgerrors.WrapAPI("/clients", 0, base)
		assert.Equal(t, "API error from /clients: connection refused", err.Error())
		assert.ErrorIs(t, err, base)
		assert.True(t, pkgerrors.IsTransient(err))
	})
}

func TestRateLimitError(t *testing.T) {
	err := &pkgerrors.RateLimitError{Endpoint: "/clients", StatusCode: 429, Attempts: 3, Cooldown: time.Minute}
	assert.Contains(t, err.Error(), "429")
	assert.Contains(t, err.Error(), "3 attempts")
	assert.True(t, pkgerrors.IsRateLimited(err))
	assert.False(t, pkgerrors.IsTransient(err))
}

func TestMappingError(t *testing.T) {
	err := pkgerrors.NewMappingError("client", "id", "missing or empty")
	assert.Equal(t, "cannot map client: field id: missing or empty", err.Error())
	assert.True(t, pkgerrors.IsMapping(err))

	var target *pkgerrors.MappingError
	require.True(t, errors.As(fmt.Errorf("page 3: %w", err), &target))
	assert.Equal(t, "id", target.Field)
}

func TestPersistenceError(t *testing.T) {
	tests := []struct {
		name string
		err  *pkgerrors.PersistenceError
		want string
	}{
		{
			name: "rest status",
			err:  pkgerrors.NewPersistenceError("insert", "clients", "7", 409, errors.New("duplicate key")),
			want: "insert on clients (id 7) failed with status 409: duplicate key",
		},
		{
			name: "sql without status",
			err:  pkgerrors.NewPersistenceError("delete", "clients", "", 0, errors.New("database is locked")),
			want: "delete on clients failed: database is locked",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
			assert.True(t, pkgerrors.IsPersistence(tt.err))
		})
	}
}

func TestConfigError(t *testing.T) {
	base := errors.New("missing token")
	err := pkgerrors.NewConfigError("remote", "token is required", base)
	assert.Equal(t, "configuration error in remote: token is required", err.Error())
	assert.ErrorIs(t, err, base)
	assert.True(t, pkgerrors.IsFatal(err))
	assert.True(t, pkgerrors.IsFatal(fmt.Errorf("startup: %w", err)))
}

func TestUnrecognizedEnvelopeError(t *testing.T) {
	err := &pkgerrors.UnrecognizedEnvelopeError{Endpoint: "/clients", Keys: []string{"meta", "payload"}}
	assert.Contains(t, err.Error(), "meta, payload")
	assert.ErrorIs(t, err, pkgerrors.ErrUnrecognizedEnvelope)
	assert.True(t, pkgerrors.IsTransient(err))
}

func TestIncompleteRunError(t *testing.T) {
	err := &pkgerrors.IncompleteRunError{Reason: "page 4 failed"}
	assert.Equal(t, "run incomplete: page 4 failed", err.Error())
	assert.ErrorIs(t, err, pkgerrors.ErrIncompleteRun)
}

func TestWrapHelpers(t *testing.T) {
	assert.NoError(t, pkgerrors.WrapIO("write", "/tmp/x", nil))
	assert.NoError(t, pkgerrors.WrapResource("load", "schema", "", nil))
	assert.NoError(t, pkgerrors.WrapParse("yaml", "", nil))
	assert.NoError(t, pkgerrors.WrapAPI("/x", 0, nil))

	base := errors.New("boom")
	var ioErr *pkgerrors.IOError
	require.True(t, errors.As(pkgerrors.WrapIO("rename", "/tmp/cp.json", base), &ioErr))
	assert.Equal(t, "rename", ioErr.Operation)

	var resErr *pkgerrors.ResourceError
	require.True(t, errors.As(pkgerrors.WrapResource("open", "store", "sqlite", base), &resErr))
	assert.Equal(t, "failed to open store sqlite: boom", resErr.Error())

	var parseErr *pkgerrors.ParseError
	require.True(t, errors.As(pkgerrors.WrapParse("json", "cp.json", base), &parseErr))
	assert.Equal(t, "parse error in json file cp.json: boom", parseErr.Error())
}

func TestSentinelErrors(t *testing.T) {
	sentinels := []error{
		pkgerrors.ErrNotFound,
		pkgerrors.ErrInvalidInput,
		pkgerrors.ErrRateLimited,
		pkgerrors.ErrTransient,
		pkgerrors.ErrMapping,
		pkgerrors.ErrPersistence,
		pkgerrors.ErrFatalConfig,
		pkgerrors.ErrUnrecognizedEnvelope,
		pkgerrors.ErrIncompleteRun,
		pkgerrors.ErrLocked,
	}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i != j {
				assert.NotErrorIs(t, a, b)
			}
		}
	}
}
