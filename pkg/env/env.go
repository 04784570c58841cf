package env

import (
	"log"
	"log/slog"
	"sync"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Specification struct {
	Version  int
	Env      string `default:"production"`
	LogLevel string `default:"info" split_words:"true"`

	ServerPort                 string        `default:":8080" split_words:"true"`
	ServerReadTimeoutInSecond  time.Duration `default:"10s" split_words:"true"`
	ServerWriteTimeoutInSecond time.Duration `default:"130s" split_words:"true"`
	ServerMaxHeaderBytes       int           `default:"1048576" split_words:"true"`
	TrustedProxies             []string      `split_words:"true"`

	UpstreamApiKey  string        `split_words:"true"`
	UpstreamBaseUrl string        `split_words:"true"`
	UpstreamTimeout time.Duration `default:"120s" split_words:"true"`

	// zero values leave the config file defaults untouched
	RateLimitWindow time.Duration `split_words:"true"`
	RateLimitMax    int           `split_words:"true"`

	RedisAddr     string `split_words:"true"`
	RedisPassword string `default:"" split_words:"true"`
	RedisDb       int    `default:"0" split_words:"true"`
	RedisPoolSize int    `default:"100" split_words:"true"`

	DatabaseUrl string `split_words:"true"`

	AuthTokenSecret string `split_words:"true"`

	ConfigFile string `default:"./config.yaml" split_words:"true"`
}

var (
	once        sync.Once
	envInstance Specification
)

func Load() (*Specification, error) {
	var spec Specification
	if err := envconfig.Process("app", &spec); err != nil {
		return nil, err
	}
	return &spec, nil
}

func GetEnv() *Specification {
	once.Do(func() {
		slog.Info("initializing env...")
		spec, err := Load()
		if err != nil {
			log.Fatal(err.Error())
		}
		envInstance = *spec
	})

	return &envInstance
}

func (s *Specification) IsProduction() bool {
	return s.Env == "production"
}
