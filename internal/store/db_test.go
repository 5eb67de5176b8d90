package store

import (
	"context"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otpattend/internal/fault"
)

func TestNewDB_PingRetryExhaustion(t *testing.T) {
	// A directory is not openable as a database file, so every ping fails
	// and the retry loop must surface a connectivity fault.
	start := time.Now()
	db, err := NewDB(context.Background(), t.TempDir(), 2, time.Millisecond)
	require.Error(t, err)
	assert.Nil(t, db)
	assert.True(t, fault.Is(err, fault.CodeStoreUnavailable), "expected %s fault, got %v", fault.CodeStoreUnavailable, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Less(t, time.Since(start), 5*time.Second, "bounded retries must not hang")
}

func TestNewDB_Defaults(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)", url.PathEscape(t.Name()))
	db, err := NewDB(context.Background(), dsn, 1, time.Millisecond)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	require.NoError(t, db.Writer.Ping())
	require.NoError(t, db.Reader.Ping())
}
