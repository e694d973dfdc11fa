package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assetpipe/internal/config"
)

func TestDSN(t *testing.T) {
	t.Setenv("DB_PASSWORD", "")
	t.Setenv("ASSETPIPE_DB_PASSWORD", "")

	mysqlDSN, err := DSN(config.Database{Driver: "mysql", Host: "db", Port: 3306, User: "studio", Password: "pw", Name: "assets"})
	require.NoError(t, err)
	assert.Contains(t, mysqlDSN, "studio:pw@tcp(db:3306)/assets?")
	assert.Contains(t, mysqlDSN, "parseTime=true")
	assert.Contains(t, mysqlDSN, "charset=utf8mb4")

	pgDSN, err := DSN(config.Database{Driver: "postgres", Host: "db", Port: 5432, User: "studio", Password: "pw", Name: "assets", Params: map[string]string{"sslmode": "require"}})
	require.NoError(t, err)
	assert.Equal(t, "host=db port=5432 user=studio password=pw dbname=assets TimeZone=UTC sslmode=require", pgDSN)

	_, err = DSN(config.Database{Driver: "sqlite"})
	assert.Error(t, err)
}
