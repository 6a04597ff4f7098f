// Package logging wraps zerolog with the tagged, component-scoped helpers
// used throughout predictserve, following the console-writer/level-parsing
// setup the rest of the BharatMLStack pack shares.
package logging

import (
	"fmt"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var applicationName string

const logTemplate string = "%s %v [%s] predictserve %s\n"

// Init configures the global zerolog level and console writer. Must run
// before any package spawns goroutines that log.
func Init(appName, level string) {
	applicationName = appName
	switch strings.ToUpper(level) {
	case "DEBUG":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "INFO":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "WARN":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "ERROR":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case "FATAL":
		zerolog.SetGlobalLevel(zerolog.FatalLevel)
	case "PANIC":
		zerolog.SetGlobalLevel(zerolog.PanicLevel)
	case "DISABLED":
		zerolog.SetGlobalLevel(zerolog.Disabled)
	default:
		Panic(fmt.Sprintf("incorrect log level %s", level), nil)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	Info("logger initialized")
}

func Info(message string) {
	log.Info().Msgf(logTemplate, applicationName, ts(), "INFO", message)
}

func Error(message string, err error) {
	log.Error().AnErr("error", err).Msgf(logTemplate, applicationName, ts(), "ERROR", message)
}

// PercentError logs an error only loggingPercent% of the time, for
// high-volume error paths (the same discipline the teacher's
// pkg/logger.PercentError applies to per-request errors).
func PercentError(message string, err error, loggingPercent int) {
	if loggingPercent == 0 {
		loggingPercent = 10
	}
	if rand.Intn(100)+1 <= loggingPercent {
		Error(message, err)
	}
}

func Panic(message string, err error) {
	Error(message, err)
	log.Panic().AnErr("error", err).Msgf(logTemplate, applicationName, ts(), "PANIC", message)
}

func ts() string {
	return time.Now().Format("02-01-2006 15:04:05.000 -0700")
}

// Component returns a message prefix that ties a log line to one of the
// six spec components, mirroring the original Clipper implementation's
// LOGGING_TAG_QUERY_FRONTEND / LOGGING_TAG_ZMQ_FRONTEND tags.
type Component string

func (c Component) Info(message string)                 { Info(fmt.Sprintf("[%s] %s", c, message)) }
func (c Component) Error(message string, err error)      { Error(fmt.Sprintf("[%s] %s", c, message), err) }
func (c Component) Panic(message string, err error)      { Panic(fmt.Sprintf("[%s] %s", c, message), err) }
