// Package conn provides the PostgreSQL connection used by the durable
// snapshot store.
package conn

import (
	"fmt"
	"sort"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Option describes how to reach the database. ConnString, when set, is used
// verbatim and the individual fields are ignored.
type Option struct {
	Host       string
	Port       int
	User       string
	Password   string
	Database   string
	SSLMode    string
	Params     map[string]string
	ConnString string
	Config     *gorm.Config
}

// Client wraps a PostgreSQL connection pool.
type Client struct {
	opt Option
	db  *gorm.DB
}

// New opens a connection pool from the provided options.
func New(opt Option) (*Client, error) {
	cfg := opt.Config
	if cfg == nil {
		cfg = &gorm.Config{}
	}
	db, err := gorm.Open(postgres.Open(opt.dsn()), cfg)
	if err != nil {
		return nil, err
	}
	return &Client{opt: opt, db: db}, nil
}

// DB returns the underlying gorm handle.
func (c *Client) DB() *gorm.DB {
	if c == nil {
		return nil
	}
	return c.db
}

// Close closes the underlying connection pool.
func (c *Client) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// dsn renders the option as a libpq keyword/value string. Extra Params are
// appended in sorted key order so the result is stable.
func (opt Option) dsn() string {
	if opt.ConnString != "" {
		return opt.ConnString
	}

	host := opt.Host
	if host == "" {
		host = "localhost"
	}
	port := opt.Port
	if port == 0 {
		port = 5432
	}
	sslMode := opt.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	var b strings.Builder
	writeKV := func(key, value string) {
		if value == "" {
			return
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%s=%s", key, quoteDSN(value))
	}
	writeKV("host", host)
	writeKV("port", fmt.Sprintf("%d", port))
	writeKV("user", opt.User)
	writeKV("password", opt.Password)
	writeKV("dbname", opt.Database)
	writeKV("sslmode", sslMode)

	keys := make([]string, 0, len(opt.Params))
	for k := range opt.Params {
		if k != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeKV(k, opt.Params[k])
	}
	return b.String()
}

// quoteDSN single-quotes values that libpq would otherwise mis-parse.
func quoteDSN(v string) string {
	if !strings.ContainsAny(v, " '\\") {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}
