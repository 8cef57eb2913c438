package config

import (
	"os"
	"path/filepath"
	"testing"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoeShih716/go-cash-ledger/internal/app/core/adapter/out/events"
	"github.com/JoeShih716/go-cash-ledger/internal/app/core/domain"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	accounts := cfg.Accounts()
	require.Len(t, accounts, 3)
	assert.Equal(t, "Till Drawer", accounts["drawer"].Name)
	assert.Equal(t, domain.AccountTypeCashInHand, accounts["cash_in_hand"].Type)
	assert.True(t, accounts["business"].Balance.IsZero())
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: ":9090"
ledger:
  engine: lmax
  timezone: Asia/Taipei
  accounts:
    - id: till
      name: Front Till
      type: drawer
events:
  driver: kafka
  kafka:
    brokers: ["kafka:9092"]
`)
	t.Setenv("LEDGER_GRPC_ADDR", "")
	t.Setenv("LEDGER_ENGINE", "")
	t.Setenv("LEDGER_EVENTS_DRIVER", "")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.HTTPAddr)
	assert.Equal(t, ":50051", cfg.Server.GRPCAddr)
	assert.Equal(t, EngineLMAX, cfg.Ledger.Engine)
	assert.Equal(t, 5, cfg.Ledger.MaxLockRetries)
	assert.Equal(t, []string{"kafka:9092"}, cfg.Events.Kafka.Brokers)
	assert.Equal(t, "cashledger.transactions", cfg.Events.Kafka.Topic)
	require.Len(t, cfg.Ledger.Accounts, 1)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Taipei", loc.String())
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, "ledger:\n  engine: mutex\n")
	t.Setenv("LEDGER_ENGINE", "lmax")
	t.Setenv("LEDGER_HTTP_ADDR", ":7070")
	t.Setenv("LEDGER_WAL_PATH", "")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, EngineLMAX, cfg.Ledger.Engine)
	assert.Equal(t, ":7070", cfg.Server.HTTPAddr)
	assert.Empty(t, cfg.Ledger.WALPath)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "server: [unclosed"))
	assert.ErrorContains(t, err, "parse config")
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"LEDGER_KAFKA_BROKERS": "a:9092, b:9092,",
		"MYSQL_PORT":           "3307",
		"MYSQL_HOST":           "db",
	}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}

	cfg := Default()
	require.NoError(t, cfg.applyEnv(lookup))
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Events.Kafka.Brokers)
	assert.Equal(t, 3307, cfg.MySQL.Port)
	assert.Equal(t, "db", cfg.MySQL.Host)
	assert.Equal(t, "data/wal.log", cfg.Ledger.WALPath)

	env["MYSQL_PORT"] = "abc"
	assert.ErrorContains(t, cfg.applyEnv(lookup), "MYSQL_PORT")
}

func TestValidateAggregatesErrors(t *testing.T) {
	cfg := Default()
	cfg.Server.HTTPAddr = ""
	cfg.Ledger.Engine = "sqlite"
	cfg.Ledger.Timezone = "Mars/Olympus"
	cfg.Ledger.Accounts = append(cfg.Ledger.Accounts,
		AccountConfig{ID: "drawer", Name: "Dup", Type: "drawer"},
		AccountConfig{ID: "vault", Name: "Vault", Type: "safe"},
	)
	cfg.Events.Driver = events.DriverAMQP
	cfg.Log.Level = "loud"

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		"server.http_addr",
		"ledger.engine",
		"ledger.timezone",
		`"drawer" is duplicated`,
		`"safe" is unknown`,
		"events.amqp.url",
		"log.level",
	} {
		assert.ErrorContains(t, err, want)
	}
}

func TestValidateMySQLEngine(t *testing.T) {
	cfg := Default()
	cfg.Ledger.Engine = EngineMySQL
	assert.ErrorContains(t, cfg.Validate(), "mysql.host is required")

	cfg.MySQL.Host, cfg.MySQL.User, cfg.MySQL.DBName = "db", "ledger", "cash"
	assert.NoError(t, cfg.Validate())
}
