package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config — корневая структура конфигурации обоих ботов и консоли.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Sheets     SheetsConfig     `mapstructure:"sheets"`
	ClientBot  ClientBotConfig  `mapstructure:"client_bot"`
	ManagerBot ManagerBotConfig `mapstructure:"manager_bot"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Links      LinksConfig      `mapstructure:"links"`
	Logger     LoggerConfig     `mapstructure:"logger"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// ServerConfig описывает настройки HTTP-сервера консоли операторов.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// SheetsConfig описывает подключение к Google Sheets — единственному
// хранилищу заявок. Креды сервис-аккаунта передаются явно (файл или ENV),
// никакого ambient-состояния.
type SheetsConfig struct {
	CredentialsFile string `mapstructure:"credentials_file"`
	SpreadsheetID   string `mapstructure:"spreadsheet_id"`
	Worksheet       string `mapstructure:"worksheet"`
	AuditWorksheet  string `mapstructure:"audit_worksheet"`

	// Защита от квот Sheets API (60 чтений/мин на пользователя)
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`

	// Повторы только для транзиентных ошибок (429/5xx)
	RetryAttempts uint `mapstructure:"retry_attempts"`

	// Настройки Circuit Breaker вокруг Sheets API
	CBMaxRequests uint32        `mapstructure:"cb_max_requests"`
	CBInterval    time.Duration `mapstructure:"cb_interval"`
	CBTimeout     time.Duration `mapstructure:"cb_timeout"`

	// Размер локального кэша соответствий Telegram_ID -> строка
	LookupCacheSize int `mapstructure:"lookup_cache_size"`

	// Загруженное содержимое credentials_file (или SHEETS_CREDENTIALS_DATA)
	Credentials []byte
}

// ClientBotConfig — клиентский бот и его анти-абьюз настройки.
type ClientBotConfig struct {
	Token string `mapstructure:"token"`

	MaxUnknownAttempts int           `mapstructure:"max_unknown_attempts"`
	UnknownBanWindow   time.Duration `mapstructure:"unknown_ban_window"`
	MaxLoggedRequests  int           `mapstructure:"max_logged_requests"`
	LoggedWindow       time.Duration `mapstructure:"logged_window"`
}

// ManagerBotConfig — бот операторов. Доступ только по allowlist-у Telegram ID.
type ManagerBotConfig struct {
	Token    string  `mapstructure:"token"`
	AdminIDs []int64 `mapstructure:"admin_ids"`
}

// AuthConfig содержит пути к RSA ключам, настройки JWT и учетки операторов консоли.
type AuthConfig struct {
	PublicKeyPath  string           `mapstructure:"public_key_path"`
	PrivateKeyPath string           `mapstructure:"private_key_path"` // Только для консоли
	TokenTTL       time.Duration    `mapstructure:"token_ttl"`
	Operators      []OperatorConfig `mapstructure:"operators"`
	PublicKey      []byte
	PrivateKey     []byte
}

// OperatorConfig — одна учетка оператора. Пароль хранится как bcrypt-хэш.
type OperatorConfig struct {
	Username     string   `mapstructure:"username"`
	PasswordHash string   `mapstructure:"password_hash"`
	Scopes       []string `mapstructure:"scopes"`
}

// LinksConfig — ссылки, которые выдаются заявителю при одобрении.
type LinksConfig struct {
	Committees    map[string]string `mapstructure:"committees"`
	ExecutiveTeam string            `mapstructure:"executive_team"`
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// MetricsConfig — адрес эндпоинта /metrics.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// 1. Настройка поиска файла
	v.SetConfigName("config")    // имя файла без расширения
	v.SetConfigType("yaml")      // формат
	v.AddConfigPath(".")         // ищем в корне
	v.AddConfigPath("./configs") // и в папке с конфигами

	// 2. Настройка переменных окружения (ENV)
	// Позволяет перекрывать конфиг: SHEETS_SPREADSHEET_ID перекроет sheets.spreadsheet_id
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 3. Установка дефолтных значений
	setDefaults(v)

	// 4. Чтение файла
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Если файла нет — работаем на ENV и дефолтах
	}

	// 5. Маппинг в структуру
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// 6. Загрузка секретов из файла ИЛИ из ENV
	// Сначала проверяем, не лежат ли данные напрямую в ENV (для Docker/K8s),
	// если нет — читаем файл по указанному пути
	cfg.Sheets.Credentials = loadKeyResource(cfg.Sheets.CredentialsFile, "SHEETS_CREDENTIALS_DATA")
	cfg.Auth.PublicKey = loadKeyResource(cfg.Auth.PublicKeyPath, "AUTH_PUBLIC_KEY_DATA")
	cfg.Auth.PrivateKey = loadKeyResource(cfg.Auth.PrivateKeyPath, "AUTH_PRIVATE_KEY_DATA")

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)

	v.SetDefault("sheets.worksheet", "Sheet1")
	v.SetDefault("sheets.audit_worksheet", "Audit")
	v.SetDefault("sheets.rate_limit", 1.0) // ~60 вызовов в минуту
	v.SetDefault("sheets.rate_burst", 5)
	v.SetDefault("sheets.retry_attempts", 3)
	v.SetDefault("sheets.cb_max_requests", 3)
	v.SetDefault("sheets.cb_interval", 30*time.Second)
	v.SetDefault("sheets.cb_timeout", 60*time.Second)
	v.SetDefault("sheets.lookup_cache_size", 1000)

	v.SetDefault("client_bot.max_unknown_attempts", 3)
	v.SetDefault("client_bot.unknown_ban_window", 5*time.Minute)
	v.SetDefault("client_bot.max_logged_requests", 10)
	v.SetDefault("client_bot.logged_window", 5*time.Minute)

	v.SetDefault("auth.token_ttl", 24*time.Hour)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")

	v.SetDefault("metrics.addr", ":9090")
}

// loadKeyResource — универсальный хелпер для секретов
func loadKeyResource(path string, envDataKey string) []byte {
	// Если секрет прилетел напрямую в ENV (PEM или JSON)
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	// Иначе читаем файл по пути из конфига
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data
		}
	}
	return nil
}
