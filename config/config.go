package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "SUNTRACK"

type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	API      APIConfig      `mapstructure:"api"`
	Sun      SunConfig      `mapstructure:"sun"`
	IPGeo    IPGeoConfig    `mapstructure:"ipgeo"`
	Geocoder GeocoderConfig `mapstructure:"geocoder"`
	Location LocationConfig `mapstructure:"location"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type HTTPConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
}

type APIConfig struct {
	Port    int  `mapstructure:"port"`
	Enabled bool `mapstructure:"enabled"`
}

type SunConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

type IPGeoConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

type GeocoderConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

type LocationConfig struct {
	Provider   string  `mapstructure:"provider"`
	Latitude   float64 `mapstructure:"latitude"`
	Longitude  float64 `mapstructure:"longitude"`
	Authorized bool    `mapstructure:"authorized"`
}

type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	ClientID    string `mapstructure:"client_id"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
}

// Load reads configPath (or config.yaml from the usual places) and applies
// SUNTRACK_* environment overrides, e.g. SUNTRACK_IPGEO_API_KEY.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/suntrack")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("http.timeout", "10s")
	v.SetDefault("http.user_agent", "suntrack/1.0")
	v.SetDefault("api.port", 8045)
	v.SetDefault("api.enabled", true)
	v.SetDefault("sun.base_url", "https://api.sunrise-sunset.org/json")
	v.SetDefault("sun.refresh_interval", "0s")
	v.SetDefault("ipgeo.base_url", "https://ipgeolocation.abstractapi.com/v1/")
	v.SetDefault("ipgeo.api_key", "")
	v.SetDefault("geocoder.base_url", "https://nominatim.openstreetmap.org/reverse")
	v.SetDefault("location.provider", "fixed")
	v.SetDefault("location.latitude", 0)
	v.SetDefault("location.longitude", 0)
	v.SetDefault("location.authorized", true)
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.topic_prefix", "suntrack")
	v.SetDefault("mqtt.client_id", "suntrack")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
