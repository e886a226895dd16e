package clickhouse

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptions_DSN(t *testing.T) {
	dsn := Options{
		Host:         "ch",
		Port:         9000,
		Database:     "finpulse",
		User:         "default",
		Password:     "p@ss",
		DialTimeout:  5 * time.Second,
		MaxExecution: 30 * time.Second,
		AsyncInsert:  true,
		WaitForAsync: true,
	}.DSN()

	u, err := url.Parse(dsn)
	require.NoError(t, err)
	assert.Equal(t, "clickhouse", u.Scheme)
	assert.Equal(t, "ch:9000", u.Host)
	assert.Equal(t, "/finpulse", u.Path)
	pw, _ := u.User.Password()
	assert.Equal(t, "p@ss", pw)

	q := u.Query()
	assert.Equal(t, "5s", q.Get("dial_timeout"))
	assert.Equal(t, "30", q.Get("max_execution_time"))
	assert.Equal(t, "1", q.Get("async_insert"))
	assert.Equal(t, "1", q.Get("wait_for_async_insert"))
	assert.False(t, q.Has("read_timeout"))
}

func TestOptions_DSN_HTTPWithoutSettings(t *testing.T) {
	// wait_for_async_insert means nothing without async_insert
	o := Options{Host: "ch", Port: 8123, Database: "d", HTTP: true, WaitForAsync: true}
	assert.Equal(t, "clickhouse+http://:@ch:8123/d", o.DSN())
}

func TestOpen_RequiresHost(t *testing.T) {
	_, err := Open(context.Background(), Options{Port: 9000})
	assert.EqualError(t, err, "clickhouse host is required")
}

func TestSchema_UsesDatabase(t *testing.T) {
	stmts := Schema("fp")
	assert.Len(t, stmts, 3)
	assert.Contains(t, stmts[1], "fp.ticks")
	assert.Contains(t, stmts[2], "fp.alerts")
}
