package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
# comment
database:
  host: db.internal
  port: 6432
  max_conns: 20

rabbitmq:
  host: mq.internal
  use_tls: true

redis:
  addr: "cache:6379"
  menu_ttl: 45s

auth:
  jwt_secret: 's3cret'

pos:
  storage: postgres
  tax_rate: 0.05
  events: true

floor:
  T-01: 2
  T-05: 6, terrace

menu:
  burger: Burger,25000,cheese=3000, bacon=5000
  risotto: Truffle Risotto,42000,86
`

func TestParse(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.parse(strings.NewReader(sample)))

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 6432, cfg.Database.Port)
	assert.Equal(t, 20, cfg.Database.MaxConns)
	assert.Equal(t, "restaurant_user", cfg.Database.User, "defaults survive")
	assert.Equal(t, "mq.internal", cfg.RabbitMQ.Host)
	assert.True(t, cfg.RabbitMQ.UseTLS)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
	assert.Equal(t, 45*time.Second, cfg.Redis.MenuTTL)
	assert.Equal(t, "s3cret", cfg.Auth.Secret)
	assert.Equal(t, "postgres", cfg.POS.Storage)
	assert.Equal(t, "0.05", cfg.POS.TaxRate)
	assert.True(t, cfg.POS.EventsEnabled)

	assert.Equal(t, []TableConfig{{ID: "T-01", Capacity: 2}, {ID: "T-05", Capacity: 6, Floor: "terrace"}}, cfg.Floor)

	require.Len(t, cfg.Menu, 2)
	assert.Equal(t, MenuItemConfig{
		ID: "burger", Name: "Burger", Price: 25000, Available: true,
		Modifiers: map[string]int64{"cheese": 3000, "bacon": 5000},
	}, cfg.Menu[0])
	assert.False(t, cfg.Menu[1].Available)
	assert.Nil(t, cfg.Menu[1].Modifiers)
}

func TestParseErrorsNameTheLine(t *testing.T) {
	cases := map[string]string{
		"bad port":     "database:\n  port: five\n",
		"bad capacity": "floor:\n  T-01: 0\n",
		"bad price":    "menu:\n  soda: Soda,cheap\n",
		"bad modifier": "menu:\n  soda: Soda,400,ice\n",
		"bad duration": "redis:\n  menu_ttl: soon\n",
		"bad tls flag": "rabbitmq:\n  use_tls: maybe\n",
		"short menu":   "menu:\n  soda: Soda\n",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			err := Default().parse(strings.NewReader(in))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "config line 2")
		})
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	t.Setenv("DB_HOST", "override-db")
	t.Setenv("POS_PORT", "8080")
	t.Setenv("POS_JWT_SECRET", "from-env")
	t.Setenv("POS_TAX_RATE", "0.08")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "override-db", cfg.Database.Host)
	assert.Equal(t, 8080, cfg.POS.Port)
	assert.Equal(t, "from-env", cfg.Auth.Secret)
	assert.Equal(t, "0.08", cfg.POS.TaxRate)
	assert.Equal(t, 6432, cfg.Database.Port)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.POS.Storage = "sqlite"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.POS.Catalog = "postgres"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Floor = []TableConfig{{ID: "T-01", Capacity: 2}, {ID: "T-01", Capacity: 4}}
	assert.Error(t, cfg.Validate())

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
