// Package log provides drainq's structured logging facade.
//
// The package exposes a small Logger interface with leveled methods and a
// Field type for structured context. Loggers are constructed explicitly and
// passed by dependency injection; there is no global default logger.
//
// Quick start
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	)
//	l = l.With(log.Component("queue"))
//	l.Info("drain complete", log.Int("processed", n))
//
// Use ApplyConfig to build a logger from a declarative Config (level and
// json/text format), which is how the CLI wires logging from DQ_LOG_LEVEL
// and DQ_LOG_FORMAT.
package log
