package internal

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type Config struct {
	Host            string        `env:"HOST" validate:"required"`
	Port            int           `env:"PORT" validate:"required,min=1,max=65535"`
	LogLevel        string        `env:"LOG_LEVEL,required=true"`
	BadgerFilepath  string        `env:"BADGER_FILEPATH,required=true"`
	JWTSecret       string        `env:"JWT_SECRET,required=true" validate:"min=16"`
	SendBufferSize  int           `env:"SEND_BUFFER_SIZE,required=true" validate:"min=1"`
	MaxMessageSize  int64         `env:"MAX_MESSAGE_SIZE,required=true" validate:"min=1"`
	PongWait        time.Duration `env:"PONG_WAIT,required=true"`
	PingInterval    time.Duration `env:"PING_INTERVAL,required=true"`
	WriteWait       time.Duration `env:"WRITE_WAIT,required=true"`
	JanitorInterval time.Duration `env:"JANITOR_INTERVAL,required=true"`
	StatsInterval   time.Duration `env:"STATS_INTERVAL,required=true"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,required=true"`
}

// Validate catches values go-env accepted but the server cannot run
// with, like a ping interval longer than the pong deadline.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.PingInterval >= c.PongWait {
		return fmt.Errorf("PING_INTERVAL (%s) must be shorter than PONG_WAIT (%s)",
			c.PingInterval, c.PongWait)
	}
	return nil
}
