package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/spf13/viper"

	"github.com/vertamedia/vertamedia-pbs/errortypes"
	"github.com/vertamedia/vertamedia-pbs/openrtb_ext"
)

// Configuration specifies the static application config.
type Configuration struct {
	ExternalURL     string             `mapstructure:"external_url"`
	Host            string             `mapstructure:"host"`
	Port            int                `mapstructure:"port"`
	AdminPort       int                `mapstructure:"admin_port"`
	EnableGzip      bool               `mapstructure:"enable_gzip"`
	StatusResponse  string             `mapstructure:"status_response"`
	Client          HTTPClient         `mapstructure:"http_client"`
	Adapters        map[string]Adapter `mapstructure:"adapters"`
	Metrics         Metrics            `mapstructure:"metrics"`
	RateLimit       RateLimit          `mapstructure:"rate_limit"`
	BidderParamsDir string             `mapstructure:"bidder_params_dir"`
	BidderInfoDir   string             `mapstructure:"bidder_info_dir"`
}

type HTTPClient struct {
	MaxConnsPerHost     int `mapstructure:"max_connections_per_host"`
	MaxIdleConns        int `mapstructure:"max_idle_connections"`
	MaxIdleConnsPerHost int `mapstructure:"max_idle_connections_per_host"`
	IdleConnTimeout     int `mapstructure:"idle_connection_timeout_seconds"`
}

// RateLimit caps the requests per second each client IP may send to the main server. Zero disables it.
type RateLimit struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	TTLSeconds        int     `mapstructure:"ttl_seconds"`
}

func (cfg *RateLimit) validate(errs []error) []error {
	if cfg.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("rate_limit.requests_per_second must not be negative, got %v", cfg.RequestsPerSecond))
	}
	if cfg.RequestsPerSecond > 0 && cfg.TTLSeconds <= 0 {
		errs = append(errs, fmt.Errorf("rate_limit.ttl_seconds must be positive when rate_limit.requests_per_second is set, got %d", cfg.TTLSeconds))
	}
	return errs
}

type Metrics struct {
	Influxdb   InfluxMetrics     `mapstructure:"influxdb"`
	Prometheus PrometheusMetrics `mapstructure:"prometheus"`
}

type InfluxMetrics struct {
	Host               string `mapstructure:"host"`
	Database           string `mapstructure:"database"`
	Measurement        string `mapstructure:"measurement"`
	Username           string `mapstructure:"username"`
	Password           string `mapstructure:"password"`
	AlignTimestamps    bool   `mapstructure:"align_timestamps"`
	MetricSendInterval int    `mapstructure:"metric_send_interval"`
}

func (cfg *InfluxMetrics) validate(errs []error) []error {
	if cfg.Host == "" {
		return errs
	}
	if cfg.Database == "" {
		errs = append(errs, errors.New("metrics.influxdb.database must be set when metrics.influxdb.host is set"))
	}
	if cfg.MetricSendInterval < 1 {
		errs = append(errs, fmt.Errorf("metrics.influxdb.metric_send_interval must be positive, got %d", cfg.MetricSendInterval))
	}
	return errs
}

type PrometheusMetrics struct {
	Port             int    `mapstructure:"port"`
	Namespace        string `mapstructure:"namespace"`
	Subsystem        string `mapstructure:"subsystem"`
	TimeoutMillisRaw int    `mapstructure:"timeout_ms"`
}

func (cfg *PrometheusMetrics) validate(errs []error) []error {
	if cfg.Port > 0 && cfg.TimeoutMillisRaw <= 0 {
		errs = append(errs, fmt.Errorf("metrics.prometheus.timeout_ms must be positive if metrics.prometheus.port is defined. Got timeout=%d and port=%d", cfg.TimeoutMillisRaw, cfg.Port))
	}
	return errs
}

func (m *PrometheusMetrics) Timeout() time.Duration {
	return time.Duration(m.TimeoutMillisRaw) * time.Millisecond
}

func (cfg *Configuration) validate() []error {
	var errs []error
	if cfg.Port <= 0 {
		errs = append(errs, fmt.Errorf("port must be positive, got %d", cfg.Port))
	}
	if cfg.AdminPort <= 0 {
		errs = append(errs, fmt.Errorf("admin_port must be positive, got %d", cfg.AdminPort))
	}
	if cfg.Port == cfg.AdminPort {
		errs = append(errs, fmt.Errorf("port and admin_port must differ, both are %d", cfg.Port))
	}
	if cfg.Metrics.Prometheus.Port > 0 && (cfg.Metrics.Prometheus.Port == cfg.Port || cfg.Metrics.Prometheus.Port == cfg.AdminPort) {
		errs = append(errs, fmt.Errorf("metrics.prometheus.port %d collides with another server port", cfg.Metrics.Prometheus.Port))
	}
	errs = cfg.Metrics.Influxdb.validate(errs)
	errs = cfg.Metrics.Prometheus.validate(errs)
	errs = cfg.RateLimit.validate(errs)
	errs = validateAdapters(cfg.Adapters, errs)
	return errs
}

// New uses viper to get our server configurations.
func New(v *viper.Viper) (*Configuration, error) {
	var c Configuration
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("viper failed to unmarshal app config: %v", err)
	}

	// Viper lowercases map keys already, but environment overrides may not.
	adapters := make(map[string]Adapter, len(c.Adapters))
	for name, adapter := range c.Adapters {
		adapters[strings.ToLower(name)] = adapter
	}
	c.Adapters = adapters

	glog.Info("Logging the resolved configuration:")
	logGeneral(reflectValueOf(c), "  \t")

	if errs := c.validate(); len(errs) > 0 {
		return &c, errortypes.NewAggregateErrors("validation errors", errs)
	}

	return &c, nil
}

// ActiveBidders returns the bidders which have a config entry and are not disabled.
func (cfg *Configuration) ActiveBidders() []openrtb_ext.BidderName {
	active := make([]openrtb_ext.BidderName, 0, len(cfg.Adapters))
	for _, name := range openrtb_ext.CoreBidderNames() {
		if adapter, ok := cfg.Adapters[string(name)]; ok && !adapter.Disabled {
			active = append(active, name)
		}
	}
	return active
}

// SetupViper sets the defaults and the environment bindings for the app config. When filename
// is not empty, the config file is read from the working directory or /etc/config.
func SetupViper(v *viper.Viper, filename string) {
	if filename != "" {
		v.SetConfigName(filename)
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/config")
	}

	v.SetDefault("external_url", "http://localhost:8000")
	v.SetDefault("host", "")
	v.SetDefault("port", 8000)
	v.SetDefault("admin_port", 6060)
	v.SetDefault("enable_gzip", false)
	v.SetDefault("status_response", "")
	v.SetDefault("bidder_params_dir", "static/bidder-params")
	v.SetDefault("bidder_info_dir", "static/bidder-info")

	v.SetDefault("http_client.max_connections_per_host", 0) // unlimited
	v.SetDefault("http_client.max_idle_connections", 400)
	v.SetDefault("http_client.max_idle_connections_per_host", 10)
	v.SetDefault("http_client.idle_connection_timeout_seconds", 60)

	v.SetDefault("metrics.influxdb.host", "")
	v.SetDefault("metrics.influxdb.database", "")
	v.SetDefault("metrics.influxdb.measurement", "")
	v.SetDefault("metrics.influxdb.username", "")
	v.SetDefault("metrics.influxdb.password", "")
	v.SetDefault("metrics.influxdb.align_timestamps", false)
	v.SetDefault("metrics.influxdb.metric_send_interval", 20)
	v.SetDefault("metrics.prometheus.port", 0)
	v.SetDefault("metrics.prometheus.namespace", "")
	v.SetDefault("metrics.prometheus.subsystem", "")
	v.SetDefault("metrics.prometheus.timeout_ms", 10000)

	v.SetDefault("rate_limit.requests_per_second", 0)
	v.SetDefault("rate_limit.ttl_seconds", 3600)

	v.SetDefault("adapters.vertamedia.endpoint", "http://hb2.vertamedia.com/auction/")
	v.SetDefault("adapters.vertamedia.disabled", false)

	v.SetEnvPrefix("PBS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if filename != "" {
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); ok {
				glog.Infof("No config file %q found, using defaults and environment", filename)
			} else {
				glog.Warningf("Failed to read config file %q: %v", filename, err)
			}
		}
	}
}
