// Package config binds the process's environment variables to a typed
// struct via viper, the way pkg/configs does in the teacher repo.
package config

import (
	"log"

	"github.com/spf13/viper"
)

// AppConfig holds every environment-derived setting the core process
// needs (§6 "Environment variables consumed by the core process").
type AppConfig struct {
	ApplicationName string `mapstructure:"app_name"`
	ApplicationEnv  string `mapstructure:"app_env"`
	LogLevel        string `mapstructure:"app_log_level"`

	ListenAddress string `mapstructure:"listen_address"`
	HTTPPort      int    `mapstructure:"http_port"`
	HTTPThreads   int    `mapstructure:"http_threads"`

	ZMQListenAddress string `mapstructure:"zmq_listen_address"`
	ZMQSendPort      int    `mapstructure:"zmq_send_port"`
	ZMQRecvPort      int    `mapstructure:"zmq_recv_port"`
	ArenaSizeBytes   int64  `mapstructure:"zmq_arena_size_bytes"`
	MaxInFlight      int    `mapstructure:"zmq_max_in_flight"`
	ResponseQueueCap int    `mapstructure:"zmq_response_queue_capacity"`

	ConfigStoreServers  string `mapstructure:"config_store_servers"`
	ConfigStoreUsername string `mapstructure:"config_store_username"`
	ConfigStorePassword string `mapstructure:"config_store_password"`
	ConfigStoreRetries  int    `mapstructure:"config_store_connect_retries"`

	MetricsSamplingRate float64 `mapstructure:"metrics_sampling_rate"`
	TelegrafHost        string  `mapstructure:"telegraf_host"`
	TelegrafPort        string  `mapstructure:"telegraf_port"`

	HistogramReservoirSize int `mapstructure:"metrics_histogram_reservoir_size"`

	ModelDomainSuffix     string `mapstructure:"model_domain_suffix"`
	ModelPort             string `mapstructure:"model_port"`
	ModelDialTimeoutMillis int   `mapstructure:"model_dial_timeout_millis"`
}

// Load reads environment variables into a fresh AppConfig, applying the
// same defaults the original Clipper query frontend used (ports 4455 /
// 4456 for ZMQ, arena sized for ~80,000 in-flight 299x299x3 float32
// tensors per §3).
func Load() *AppConfig {
	InitEnv()
	bindEnvVars()

	cfg := &AppConfig{}
	if err := viper.Unmarshal(cfg); err != nil {
		log.Fatalf("failed to unmarshal configuration from environment: %v", err)
	}
	return cfg
}

// InitEnv sets the defaults applied before environment variables are
// bound, mirroring pkg/configs/configs_init.go's InitConfig entrypoint.
func InitEnv() {
	viper.AutomaticEnv()
	viper.SetDefault("app_env", "development")
	viper.SetDefault("app_log_level", "INFO")
	viper.SetDefault("listen_address", "0.0.0.0")
	viper.SetDefault("http_port", 1337)
	viper.SetDefault("http_threads", 4)
	viper.SetDefault("zmq_listen_address", "0.0.0.0")
	viper.SetDefault("zmq_send_port", 4456)
	viper.SetDefault("zmq_recv_port", 4455)
	viper.SetDefault("zmq_max_in_flight", 80000)
	viper.SetDefault("zmq_response_queue_capacity", 80000)
	// 299x299x3 float32 tensors, sized 2x for the bump-with-wrap
	// invariant from §3 ("arena must be sized >= expected in-flight
	// payload bytes x2 to guarantee non-overlap").
	viper.SetDefault("zmq_arena_size_bytes", int64(299*299*3*4*80000*2))
	viper.SetDefault("config_store_connect_retries", 0) // 0 == retry forever
	viper.SetDefault("metrics_sampling_rate", 1.0)
	viper.SetDefault("telegraf_host", "localhost")
	viper.SetDefault("telegraf_port", "8125")
	viper.SetDefault("metrics_histogram_reservoir_size", 32768)
	viper.SetDefault("model_domain_suffix", "models.svc.cluster.local")
	viper.SetDefault("model_port", "9000")
	viper.SetDefault("model_dial_timeout_millis", 2000)
}

func bindEnvVars() {
	viper.BindEnv("app_name", "APP_NAME")
	viper.BindEnv("app_env", "APP_ENV")
	viper.BindEnv("app_log_level", "APP_LOG_LEVEL")

	viper.BindEnv("listen_address", "LISTEN_ADDRESS")
	viper.BindEnv("http_port", "HTTP_PORT")
	viper.BindEnv("http_threads", "HTTP_THREADS")

	viper.BindEnv("zmq_listen_address", "ZMQ_LISTEN_ADDRESS")
	viper.BindEnv("zmq_send_port", "ZMQ_SEND_PORT")
	viper.BindEnv("zmq_recv_port", "ZMQ_RECV_PORT")
	viper.BindEnv("zmq_arena_size_bytes", "ZMQ_ARENA_SIZE_BYTES")
	viper.BindEnv("zmq_max_in_flight", "ZMQ_MAX_IN_FLIGHT")
	viper.BindEnv("zmq_response_queue_capacity", "ZMQ_RESPONSE_QUEUE_CAPACITY")

	viper.BindEnv("config_store_servers", "CONFIG_STORE_SERVERS")
	viper.BindEnv("config_store_username", "CONFIG_STORE_USERNAME")
	viper.BindEnv("config_store_password", "CONFIG_STORE_PASSWORD")
	viper.BindEnv("config_store_connect_retries", "CONFIG_STORE_CONNECT_RETRIES")

	viper.BindEnv("metrics_sampling_rate", "METRICS_SAMPLING_RATE")
	viper.BindEnv("telegraf_host", "TELEGRAF_HOST")
	viper.BindEnv("telegraf_port", "TELEGRAF_PORT")
	viper.BindEnv("metrics_histogram_reservoir_size", "METRICS_HISTOGRAM_RESERVOIR_SIZE")

	viper.BindEnv("model_domain_suffix", "MODEL_DOMAIN_SUFFIX")
	viper.BindEnv("model_port", "MODEL_PORT")
	viper.BindEnv("model_dial_timeout_millis", "MODEL_DIAL_TIMEOUT_MILLIS")
}
