package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every setting of the POS binaries.
type Config struct {
	Database DatabaseConfig
	RabbitMQ RabbitMQConfig
	Redis    RedisConfig
	Auth     AuthConfig
	POS      POSConfig
	Floor    []TableConfig
	Menu     []MenuItemConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	MaxConns int
}

type RabbitMQConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	VHost    string
	Exchange string
	UseTLS   bool
}

type RedisConfig struct {
	Addr           string
	Password       string
	DB             int
	MenuTTL        time.Duration
	IdempotencyTTL time.Duration
}

type AuthConfig struct {
	Secret   string
	Issuer   string
	TokenTTL time.Duration
}

type POSConfig struct {
	Port              int
	Storage           string // memory | postgres
	Catalog           string // static | postgres
	TaxRate           string
	ServiceChargeRate string
	EventsEnabled     bool
}

// TableConfig is one line of the floor plan: `T-01: 4` or `T-01: 4,terrace`.
type TableConfig struct {
	ID       string
	Capacity int
	Floor    string
}

// MenuItemConfig is one line of the static menu:
// `burger: Burger,25000,cheese=3000,bacon=5000` with an optional trailing
// `86` marking the item unavailable.
type MenuItemConfig struct {
	ID        string
	Name      string
	Price     int64
	Available bool
	Modifiers map[string]int64
}

func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Host: "localhost", Port: 5432, User: "restaurant_user", Password: "restaurant_pass", Database: "restaurant_db"},
		RabbitMQ: RabbitMQConfig{Host: "localhost", Port: 5672, User: "guest", Password: "guest", VHost: "/", Exchange: "pos_events"},
		Redis:    RedisConfig{MenuTTL: 30 * time.Second, IdempotencyTTL: 24 * time.Hour},
		Auth:     AuthConfig{Issuer: "restaurant-pos", TokenTTL: 12 * time.Hour},
		POS:      POSConfig{Port: 3000, Storage: "memory", Catalog: "static", TaxRate: "0", ServiceChargeRate: "0"},
	}
}

// Load reads path (skipped when empty), then .env, then the environment.
// Later sources win.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("couldn't open the configuration file: %w", err)
		}
		defer file.Close()
		if err := cfg.parse(file); err != nil {
			return nil, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) parse(r io.Reader) error {
	scanner := bufio.NewScanner(r)

	var (
		section string
		lineNo  int
	)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasSuffix(line, ":") {
			section = strings.TrimSuffix(line, ":")
			continue
		}

		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		value = strings.Trim(value, `"'`)

		var err error
		switch section {
		case "database":
			switch key {
			case "host":
				cfg.Database.Host = value
			case "port":
				cfg.Database.Port, err = strconv.Atoi(value)
			case "user":
				cfg.Database.User = value
			case "password":
				cfg.Database.Password = value
			case "database":
				cfg.Database.Database = value
			case "max_conns":
				cfg.Database.MaxConns, err = strconv.Atoi(value)
			}
		case "rabbitmq":
			switch key {
			case "host":
				cfg.RabbitMQ.Host = value
			case "port":
				cfg.RabbitMQ.Port, err = strconv.Atoi(value)
			case "user":
				cfg.RabbitMQ.User = value
			case "password":
				cfg.RabbitMQ.Password = value
			case "vhost":
				cfg.RabbitMQ.VHost = value
			case "exchange":
				cfg.RabbitMQ.Exchange = value
			case "use_tls":
				cfg.RabbitMQ.UseTLS, err = strconv.ParseBool(value)
			}
		case "redis":
			switch key {
			case "addr":
				cfg.Redis.Addr = value
			case "password":
				cfg.Redis.Password = value
			case "db":
				cfg.Redis.DB, err = strconv.Atoi(value)
			case "menu_ttl":
				cfg.Redis.MenuTTL, err = time.ParseDuration(value)
			case "idempotency_ttl":
				cfg.Redis.IdempotencyTTL, err = time.ParseDuration(value)
			}
		case "auth":
			switch key {
			case "jwt_secret":
				cfg.Auth.Secret = value
			case "issuer":
				cfg.Auth.Issuer = value
			case "token_ttl":
				cfg.Auth.TokenTTL, err = time.ParseDuration(value)
			}
		case "pos":
			switch key {
			case "port":
				cfg.POS.Port, err = strconv.Atoi(value)
			case "storage":
				cfg.POS.Storage = value
			case "catalog":
				cfg.POS.Catalog = value
			case "tax_rate":
				cfg.POS.TaxRate = value
			case "service_charge_rate":
				cfg.POS.ServiceChargeRate = value
			case "events":
				cfg.POS.EventsEnabled, err = strconv.ParseBool(value)
			}
		case "floor":
			var t TableConfig
			t, err = parseTable(key, value)
			cfg.Floor = append(cfg.Floor, t)
		case "menu":
			var m MenuItemConfig
			m, err = parseMenuItem(key, value)
			cfg.Menu = append(cfg.Menu, m)
		}
		if err != nil {
			return fmt.Errorf("config line %d (%s.%s): %w", lineNo, section, key, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading config: %w", err)
	}
	return nil
}

func parseTable(id, value string) (TableConfig, error) {
	capacity, floor, _ := strings.Cut(value, ",")
	n, err := strconv.Atoi(strings.TrimSpace(capacity))
	if err != nil {
		return TableConfig{}, err
	}
	if n <= 0 {
		return TableConfig{}, fmt.Errorf("capacity must be positive")
	}
	return TableConfig{ID: id, Capacity: n, Floor: strings.TrimSpace(floor)}, nil
}

func parseMenuItem(id, value string) (MenuItemConfig, error) {
	fields := strings.Split(value, ",")
	if len(fields) < 2 {
		return MenuItemConfig{}, fmt.Errorf("want `name,price[,modifier=delta...][,86]`")
	}
	price, err := strconv.ParseInt(strings.TrimSpace(fields[1]), 10, 64)
	if err != nil {
		return MenuItemConfig{}, err
	}
	m := MenuItemConfig{ID: id, Name: strings.TrimSpace(fields[0]), Price: price, Available: true}
	for _, f := range fields[2:] {
		f = strings.TrimSpace(f)
		if f == "86" {
			m.Available = false
			continue
		}
		name, delta, ok := strings.Cut(f, "=")
		if !ok {
			return MenuItemConfig{}, fmt.Errorf("bad modifier %q", f)
		}
		d, err := strconv.ParseInt(strings.TrimSpace(delta), 10, 64)
		if err != nil {
			return MenuItemConfig{}, fmt.Errorf("bad modifier %q: %w", f, err)
		}
		if m.Modifiers == nil {
			m.Modifiers = map[string]int64{}
		}
		m.Modifiers[strings.TrimSpace(name)] = d
	}
	return m, nil
}

func (cfg *Config) applyEnv() {
	envString("DB_HOST", &cfg.Database.Host)
	envInt("DB_PORT", &cfg.Database.Port)
	envString("DB_USER", &cfg.Database.User)
	envString("DB_PASSWORD", &cfg.Database.Password)
	envString("DB_NAME", &cfg.Database.Database)

	envString("RABBITMQ_HOST", &cfg.RabbitMQ.Host)
	envInt("RABBITMQ_PORT", &cfg.RabbitMQ.Port)
	envString("RABBITMQ_USER", &cfg.RabbitMQ.User)
	envString("RABBITMQ_PASSWORD", &cfg.RabbitMQ.Password)
	envBool("RABBITMQ_USE_TLS", &cfg.RabbitMQ.UseTLS)

	envString("REDIS_ADDR", &cfg.Redis.Addr)
	envString("REDIS_PASSWORD", &cfg.Redis.Password)
	envInt("REDIS_DB", &cfg.Redis.DB)

	envString("POS_JWT_SECRET", &cfg.Auth.Secret)
	envInt("POS_PORT", &cfg.POS.Port)
	envString("POS_STORAGE", &cfg.POS.Storage)
	envString("POS_CATALOG", &cfg.POS.Catalog)
	envString("POS_TAX_RATE", &cfg.POS.TaxRate)
	envString("POS_SERVICE_CHARGE_RATE", &cfg.POS.ServiceChargeRate)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func (cfg *Config) Validate() error {
	switch cfg.POS.Storage {
	case "memory", "postgres":
	default:
		return fmt.Errorf("pos.storage must be memory or postgres, got %q", cfg.POS.Storage)
	}
	switch cfg.POS.Catalog {
	case "static", "postgres":
	default:
		return fmt.Errorf("pos.catalog must be static or postgres, got %q", cfg.POS.Catalog)
	}
	if cfg.POS.Catalog == "postgres" && cfg.POS.Storage != "postgres" {
		return fmt.Errorf("pos.catalog postgres needs pos.storage postgres")
	}
	seen := map[string]bool{}
	for _, t := range cfg.Floor {
		if seen[t.ID] {
			return fmt.Errorf("floor: table %s listed twice", t.ID)
		}
		seen[t.ID] = true
	}
	return nil
}
