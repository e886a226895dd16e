package clickhouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"
)

// Options are the connection settings the tick archive needs.
type Options struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	// HTTP selects the clickhouse+http interface instead of native TCP.
	HTTP bool
	// AsyncInsert batches archive rows server-side; WaitForAsync makes the
	// insert return only after the batch is flushed.
	AsyncInsert  bool
	WaitForAsync bool
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	MaxExecution time.Duration
	MaxOpenConns int
}

// DSN renders o in the clickhouse-go URL form.
func (o Options) DSN() string {
	u := url.URL{
		Scheme: "clickhouse",
		User:   url.UserPassword(o.User, o.Password),
		Host:   o.Host + ":" + strconv.Itoa(o.Port),
		Path:   "/" + o.Database,
	}
	if o.HTTP {
		u.Scheme = "clickhouse+http"
	}
	q := url.Values{}
	if o.DialTimeout > 0 {
		q.Set("dial_timeout", o.DialTimeout.String())
	}
	if o.ReadTimeout > 0 {
		q.Set("read_timeout", o.ReadTimeout.String())
	}
	if o.MaxExecution > 0 {
		q.Set("max_execution_time", strconv.Itoa(int(o.MaxExecution.Seconds())))
	}
	if o.AsyncInsert {
		q.Set("async_insert", "1")
		if o.WaitForAsync {
			q.Set("wait_for_async_insert", "1")
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Client wraps the archive's connection pool.
type Client struct {
	db *sql.DB
}

// Open connects and pings once so a bad address fails at startup, not on the
// first archived tick.
func Open(ctx context.Context, o Options) (*Client, error) {
	if o.Host == "" {
		return nil, errors.New("clickhouse host is required")
	}
	db, err := sql.Open("clickhouse", o.DSN())
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	if o.MaxOpenConns > 0 {
		db.SetMaxOpenConns(o.MaxOpenConns)
		db.SetMaxIdleConns(o.MaxOpenConns)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("clickhouse ping %s: %w", o.Host, err)
	}
	return &Client{db: db}, nil
}

// NewClientFromDB wraps an open pool. Tests use it with an in-memory SQL engine.
func NewClientFromDB(db *sql.DB) *Client {
	return &Client{db: db}
}

func (c *Client) DB() *sql.DB { return c.db }

func (c *Client) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// InitSchema runs idempotent DDL such as Schema(database).
func (c *Client) InitSchema(ctx context.Context, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}
