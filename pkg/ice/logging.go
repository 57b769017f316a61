package ice

import (
	"github.com/pion/logging"
	"github.com/rs/zerolog"
)

// zerologFactory bridges pion/ice's logging.LoggerFactory to the zerolog
// logger the rest of the core uses, so ICE/STUN/TURN traces land in the
// same structured log stream instead of pion's own plain-text default.
type zerologFactory struct {
	base zerolog.Logger
}

// NewLoggerFactory wraps a zerolog.Logger for consumption by pion/ice's
// AgentConfig.LoggerFactory.
func NewLoggerFactory(base zerolog.Logger) logging.LoggerFactory {
	return &zerologFactory{base: base}
}

func (f *zerologFactory) NewLogger(scope string) logging.LeveledLogger {
	return &zerologLeveled{log: f.base.With().Str("ice_scope", scope).Logger()}
}

type zerologLeveled struct {
	log zerolog.Logger
}

func (l *zerologLeveled) Trace(msg string)                          { l.log.Trace().Msg(msg) }
func (l *zerologLeveled) Tracef(format string, args ...interface{}) { l.log.Trace().Msgf(format, args...) }
func (l *zerologLeveled) Debug(msg string)                          { l.log.Debug().Msg(msg) }
func (l *zerologLeveled) Debugf(format string, args ...interface{}) { l.log.Debug().Msgf(format, args...) }
func (l *zerologLeveled) Info(msg string)                           { l.log.Info().Msg(msg) }
func (l *zerologLeveled) Infof(format string, args ...interface{})  { l.log.Info().Msgf(format, args...) }
func (l *zerologLeveled) Warn(msg string)                           { l.log.Warn().Msg(msg) }
func (l *zerologLeveled) Warnf(format string, args ...interface{})  { l.log.Warn().Msgf(format, args...) }
func (l *zerologLeveled) Error(msg string)                          { l.log.Error().Msg(msg) }
func (l *zerologLeveled) Errorf(format string, args ...interface{}) { l.log.Error().Msgf(format, args...) }
