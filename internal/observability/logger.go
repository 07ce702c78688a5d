package observability

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// NewServiceLogger returns a console logger tagged with the service and node
// names. An empty node is omitted.
func NewServiceLogger(w io.Writer, app, node string) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
		NoColor:    true,
	}
	ctx := zerolog.New(output).With().Timestamp().Str("app", app)
	if node != "" {
		ctx = ctx.Str("node", node)
	}
	return ctx.Logger()
}

// InitLogger installs a service logger on stdout as the global logger.
func InitLogger(app, node string) zerolog.Logger {
	logger := NewServiceLogger(os.Stdout, app, node)
	log.Logger = logger
	return logger
}
