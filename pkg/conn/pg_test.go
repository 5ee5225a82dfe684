package conn

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDSNUsesConnStringVerbatim(t *testing.T) {
	opt := Option{ConnString: "host=db port=6432", Host: "ignored"}
	require.Equal(t, "host=db port=6432", opt.dsn())
}

func TestDSNAppliesDefaults(t *testing.T) {
	require.Equal(t, "host=localhost port=5432 sslmode=disable", Option{}.dsn())
}

func TestDSNRendersFieldsAndSortedParams(t *testing.T) {
	opt := Option{
		Host:     "db0",
		Port:     6432,
		User:     "trader",
		Password: "p ss'wd",
		Database: "core",
		Params:   map[string]string{"connect_timeout": "5", "application_name": "trader"},
	}
	want := `host=db0 port=6432 user=trader password='p ss\'wd' dbname=core sslmode=disable application_name=trader connect_timeout=5`
	require.Equal(t, want, opt.dsn())
}
