package config

import (
	"bytes"
	"os"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vertamedia/vertamedia-pbs/errortypes"
	"github.com/vertamedia/vertamedia-pbs/openrtb_ext"
)

var fullConfig = []byte(`
external_url: http://vertamedia-pbs.example.org/
host: vertamedia-pbs.example.org
port: 1234
admin_port: 5678
enable_gzip: true
status_response: ok
http_client:
  max_connections_per_host: 10
  max_idle_connections: 500
  max_idle_connections_per_host: 20
  idle_connection_timeout_seconds: 30
metrics:
  influxdb:
    host: upstream:8232
    database: metricsdb
    measurement: anyMeasurement
    username: admin
    password: admin1324
    align_timestamps: true
    metric_send_interval: 30
  prometheus:
    port: 8765
    namespace: vertamedia
    subsystem: pbs
    timeout_ms: 500
rate_limit:
  requests_per_second: 50
  ttl_seconds: 600
adapters:
  vertamedia:
    endpoint: https://hb2.vertamedia.com/auction/
    extra_info: "{\"region\":\"eu\"}"
`)

func cmpStrings(t *testing.T, key string, a string, b string) {
	t.Helper()
	assert.Equal(t, a, b, "%s: %s != %s", key, a, b)
}

func cmpInts(t *testing.T, key string, a int, b int) {
	t.Helper()
	assert.Equal(t, a, b, "%s: %d != %d", key, a, b)
}

func cmpBools(t *testing.T, key string, a bool, b bool) {
	t.Helper()
	assert.Equal(t, a, b, "%s: %t != %t", key, a, b)
}

func TestDefaults(t *testing.T) {
	v := viper.New()
	SetupViper(v, "")
	cfg, err := New(v)
	require.NoError(t, err, "Setting up config with defaults should work")

	cmpInts(t, "port", cfg.Port, 8000)
	cmpInts(t, "admin_port", cfg.AdminPort, 6060)
	cmpBools(t, "enable_gzip", cfg.EnableGzip, false)
	cmpStrings(t, "bidder_params_dir", cfg.BidderParamsDir, "static/bidder-params")
	cmpStrings(t, "bidder_info_dir", cfg.BidderInfoDir, "static/bidder-info")
	cmpInts(t, "http_client.max_idle_connections", cfg.Client.MaxIdleConns, 400)
	cmpInts(t, "http_client.idle_connection_timeout_seconds", cfg.Client.IdleConnTimeout, 60)
	cmpInts(t, "metrics.prometheus.port", cfg.Metrics.Prometheus.Port, 0)
	assert.Zero(t, cfg.RateLimit.RequestsPerSecond)
	cmpStrings(t, "adapters.vertamedia.endpoint", cfg.Adapters["vertamedia"].Endpoint, "http://hb2.vertamedia.com/auction/")
	assert.Equal(t, []openrtb_ext.BidderName{openrtb_ext.BidderVertamedia}, cfg.ActiveBidders())
}

func TestFullConfig(t *testing.T) {
	v := viper.New()
	SetupViper(v, "")
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewBuffer(fullConfig)))
	cfg, err := New(v)
	require.NoError(t, err, "Setting up config should work but it doesn't")

	cmpStrings(t, "external url", cfg.ExternalURL, "http://vertamedia-pbs.example.org/")
	cmpStrings(t, "host", cfg.Host, "vertamedia-pbs.example.org")
	cmpInts(t, "port", cfg.Port, 1234)
	cmpInts(t, "admin_port", cfg.AdminPort, 5678)
	cmpBools(t, "enable_gzip", cfg.EnableGzip, true)
	cmpStrings(t, "status_response", cfg.StatusResponse, "ok")
	cmpInts(t, "http_client.max_connections_per_host", cfg.Client.MaxConnsPerHost, 10)
	cmpInts(t, "http_client.max_idle_connections", cfg.Client.MaxIdleConns, 500)
	cmpInts(t, "http_client.max_idle_connections_per_host", cfg.Client.MaxIdleConnsPerHost, 20)
	cmpInts(t, "http_client.idle_connection_timeout_seconds", cfg.Client.IdleConnTimeout, 30)
	cmpStrings(t, "metrics.influxdb.host", cfg.Metrics.Influxdb.Host, "upstream:8232")
	cmpStrings(t, "metrics.influxdb.database", cfg.Metrics.Influxdb.Database, "metricsdb")
	cmpStrings(t, "metrics.influxdb.measurement", cfg.Metrics.Influxdb.Measurement, "anyMeasurement")
	cmpStrings(t, "metrics.influxdb.username", cfg.Metrics.Influxdb.Username, "admin")
	cmpStrings(t, "metrics.influxdb.password", cfg.Metrics.Influxdb.Password, "admin1324")
	cmpBools(t, "metrics.influxdb.align_timestamps", cfg.Metrics.Influxdb.AlignTimestamps, true)
	cmpInts(t, "metrics.influxdb.metric_send_interval", cfg.Metrics.Influxdb.MetricSendInterval, 30)
	cmpInts(t, "metrics.prometheus.port", cfg.Metrics.Prometheus.Port, 8765)
	cmpStrings(t, "metrics.prometheus.namespace", cfg.Metrics.Prometheus.Namespace, "vertamedia")
	cmpStrings(t, "metrics.prometheus.subsystem", cfg.Metrics.Prometheus.Subsystem, "pbs")
	assert.Equal(t, 500*time.Millisecond, cfg.Metrics.Prometheus.Timeout())
	assert.Equal(t, 50.0, cfg.RateLimit.RequestsPerSecond)
	cmpInts(t, "rate_limit.ttl_seconds", cfg.RateLimit.TTLSeconds, 600)
	cmpStrings(t, "adapters.vertamedia.endpoint", cfg.Adapters["vertamedia"].Endpoint, "https://hb2.vertamedia.com/auction/")
	cmpStrings(t, "adapters.vertamedia.extra_info", cfg.Adapters["vertamedia"].ExtraAdapterInfo, `{"region":"eu"}`)
}

func TestEnvironmentOverride(t *testing.T) {
	os.Setenv("PBS_PORT", "9000")
	defer os.Unsetenv("PBS_PORT")
	os.Setenv("PBS_ADAPTERS_VERTAMEDIA_DISABLED", "true")
	defer os.Unsetenv("PBS_ADAPTERS_VERTAMEDIA_DISABLED")

	v := viper.New()
	SetupViper(v, "")
	cfg, err := New(v)
	require.NoError(t, err)

	cmpInts(t, "port", cfg.Port, 9000)
	assert.True(t, cfg.Adapters["vertamedia"].Disabled)
	assert.Empty(t, cfg.ActiveBidders())
}

func TestValidation(t *testing.T) {
	testCases := []struct {
		description string
		config      string
		expErrors   int
	}{
		{
			description: "invalid endpoint",
			config:      "adapters:\n  vertamedia:\n    endpoint: not a url\n",
			expErrors:   1,
		},
		{
			description: "protocol relative endpoint",
			config:      "adapters:\n  vertamedia:\n    endpoint: //hb2.vertamedia.com/auction/\n",
			expErrors:   1,
		},
		{
			description: "invalid endpoint of a disabled adapter",
			config:      "adapters:\n  vertamedia:\n    endpoint: not a url\n    disabled: true\n",
			expErrors:   0,
		},
		{
			description: "same port twice",
			config:      "port: 8000\nadmin_port: 8000\n",
			expErrors:   1,
		},
		{
			description: "prometheus without timeout",
			config:      "metrics:\n  prometheus:\n    port: 9100\n    timeout_ms: 0\n",
			expErrors:   1,
		},
		{
			description: "influx without database",
			config:      "metrics:\n  influxdb:\n    host: localhost:8086\n",
			expErrors:   1,
		},
		{
			description: "negative rate limit",
			config:      "rate_limit:\n  requests_per_second: -1\n",
			expErrors:   1,
		},
		{
			description: "rate limit without ttl",
			config:      "rate_limit:\n  requests_per_second: 10\n  ttl_seconds: 0\n",
			expErrors:   1,
		},
	}

	for _, test := range testCases {
		v := viper.New()
		SetupViper(v, "")
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBufferString(test.config)), test.description)

		_, err := New(v)
		if test.expErrors == 0 {
			assert.NoError(t, err, test.description)
			continue
		}
		if assert.Error(t, err, test.description) {
			aggregate, ok := err.(errortypes.AggregateErrors)
			if assert.True(t, ok, test.description) {
				assert.Len(t, aggregate.Errors, test.expErrors, test.description)
			}
		}
	}
}
