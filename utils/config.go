package utils

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// DatabaseConfig holds the MySQL connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Port int
}

// Config is the full bot configuration. Everything comes from environment
// variables; there is no config file.
type Config struct {
	ChatworkToken   string
	GeminiAPIKey    string
	BotAccountID    int64
	AdminAccountID  int64
	ExcludedRoomIDs []int64
	DedupPath       string
	Database        DatabaseConfig
	Server          ServerConfig
}

// LoadConfig reads the configuration from the environment.
func LoadConfig() (*Config, error) {
	v := viper.New()

	v.BindEnv("chatwork.token", "CHATWORK_API_TOKEN")
	v.BindEnv("gemini.key", "GEMINI_API_KEY")
	v.BindEnv("bot.accountId", "BOT_ACCOUNT_ID")
	v.BindEnv("bot.adminId", "ADMIN_ACCOUNT_ID")
	v.BindEnv("bot.excludedRooms", "EXCLUDED_ROOM_IDS")
	v.BindEnv("bot.dedupPath", "DEDUP_DB_PATH")
	v.BindEnv("database.host", "MYSQL_HOST")
	v.BindEnv("database.port", "MYSQL_PORT")
	v.BindEnv("database.user", "MYSQL_USER")
	v.BindEnv("database.password", "MYSQL_PASSWORD")
	v.BindEnv("database.dbname", "MYSQL_DBNAME")
	v.BindEnv("server.port", "PORT")

	v.SetDefault("database.host", "127.0.0.1")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.dbname", "chatwork_bot")
	v.SetDefault("bot.dedupPath", "webhook-dedup.db")
	v.SetDefault("server.port", 3000)

	conf := &Config{
		ChatworkToken:  v.GetString("chatwork.token"),
		GeminiAPIKey:   v.GetString("gemini.key"),
		BotAccountID:   v.GetInt64("bot.accountId"),
		AdminAccountID: v.GetInt64("bot.adminId"),
		DedupPath:      v.GetString("bot.dedupPath"),
		Database: DatabaseConfig{
			Host:     v.GetString("database.host"),
			Port:     v.GetInt("database.port"),
			User:     v.GetString("database.user"),
			Password: v.GetString("database.password"),
			DBName:   v.GetString("database.dbname"),
		},
		Server: ServerConfig{
			Port: v.GetInt("server.port"),
		},
	}

	excluded, err := parseIDList(v.GetString("bot.excludedRooms"))
	if err != nil {
		return nil, fmt.Errorf("invalid EXCLUDED_ROOM_IDS: %w", err)
	}
	conf.ExcludedRoomIDs = excluded

	if conf.ChatworkToken == "" {
		return nil, fmt.Errorf("CHATWORK_API_TOKEN is not set")
	}
	if conf.BotAccountID == 0 {
		return nil, fmt.Errorf("BOT_ACCOUNT_ID is not set")
	}
	if conf.Database.User == "" {
		return nil, fmt.Errorf("MYSQL_USER is not set")
	}

	return conf, nil
}

// GetDSN returns the MySQL connection string.
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		c.User, c.Password, c.Host, c.Port, c.DBName)
}

// parseIDList parses a comma separated list of numeric ids.
func parseIDList(s string) ([]int64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
