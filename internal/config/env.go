package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type EnvVars struct {
	AppEnv          string        `envconfig:"APP_ENV" default:"dev"`
	Port            int           `envconfig:"PORT" default:"9090"`
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" default:"15s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"5s"`

	// Gate
	GatePathPattern    string `envconfig:"GATE_PATH_PATTERN" default:"/.*"`
	GateDeploymentName string `envconfig:"GATE_DEPLOYMENT_NAME"`
	GateRejectStatus   int    `envconfig:"GATE_REJECT_STATUS" default:"503"`
	GateConfigFile     string `envconfig:"GATE_CONFIG_FILE"`
	// UpstreamURL is proxied behind the gate; empty serves a built-in status page.
	UpstreamURL string `envconfig:"UPSTREAM_URL"`

	// Management events
	AdminEnabled    bool          `envconfig:"ADMIN_ENABLED" default:"false"`
	AdminAPIKey     string        `envconfig:"ADMIN_API_KEY"`
	AutoDeployAfter time.Duration `envconfig:"AUTO_DEPLOY_AFTER" default:"0s"`

	// Kafka bridge, disabled when no brokers are set
	KafkaBrokers []string `envconfig:"KAFKA_BROKERS"`
	KafkaTopic   string   `envconfig:"KAFKA_TOPIC" default:"deployment-events"`
	KafkaGroupID string   `envconfig:"KAFKA_GROUP_ID" default:"availability-gate"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Deployments are registered in the management namespace at startup.
	// Filled from the config file.
	Deployments []string `ignored:"true"`
}

func LoadEnv() (*EnvVars, error) {
	var v EnvVars
	if err := envconfig.Process("", &v); err != nil {
		return nil, err
	}
	return &v, nil
}
