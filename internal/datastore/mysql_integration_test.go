//go:build integration

package datastore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"

	"github.com/parkapp/parkwatch/internal/conf"
)

func TestMySQLStoreIntegration(t *testing.T) {
	ctx := t.Context()

	container, err := tcmysql.Run(ctx, "mysql:8.4",
		tcmysql.WithDatabase("parkwatch"),
		tcmysql.WithUsername("parkwatch"),
		tcmysql.WithPassword("secret"),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "3306/tcp")
	require.NoError(t, err)

	store, err := OpenMySQL(conf.MySQLSettings{
		Host:     host,
		Port:     port.Int(),
		Username: "parkwatch",
		Password: "secret",
		Database: "parkwatch",
	}, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.InsertViolation(ctx, testRecord("7")))
	rows, err := store.ListViolations(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "7", rows[0].Profile)
	assert.Equal(t, conf.DefaultViolationType, rows[0].ViolationType)
	assert.Equal(t, conf.DriverMySQL, store.Backend())
}
