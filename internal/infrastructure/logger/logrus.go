package logger

import (
	"context"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	isoMillis   = "2006-01-02T15:04:05.000Z07:00"
	consoleTime = "2006-01-02 15:04:05"
)

type logrusLogger struct {
	// root is shared by every child so level and output changes apply to
	// the whole tree.
	root  *logrus.Logger
	entry *logrus.Entry
}

// NewLogrusLogger builds the root logger described by config. The static
// config.Fields are attached to every entry.
func NewLogrusLogger(config *Config) Logger {
	root := logrus.New()
	root.SetLevel(toLogrusLevel(config.Level))
	root.SetFormatter(newFormatter(config.Format))
	root.SetOutput(newOutput(config))

	fields := make(logrus.Fields, len(config.Fields))
	for k, v := range config.Fields {
		fields[k] = v
	}

	return &logrusLogger{
		root:  root,
		entry: logrus.NewEntry(root).WithFields(fields),
	}
}

func newFormatter(format string) logrus.Formatter {
	switch format {
	case "json":
		return &logrus.JSONFormatter{
			TimestampFormat: isoMillis,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime: "timestamp",
				logrus.FieldKeyMsg:  "message",
				logrus.FieldKeyFunc: "caller",
			},
		}
	case "text":
		return &logrus.TextFormatter{
			TimestampFormat: isoMillis,
			FullTimestamp:   true,
			DisableColors:   true,
		}
	default:
		return &logrus.TextFormatter{
			TimestampFormat: consoleTime,
			FullTimestamp:   true,
			ForceColors:     true,
		}
	}
}

// newOutput picks the sink. "file" without a path falls back to stdout.
func newOutput(config *Config) io.Writer {
	switch {
	case config.Output == "stderr":
		return os.Stderr
	case config.Output == "file" && config.FilePath != "":
		return &lumberjack.Logger{
			Filename:   config.FilePath,
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			Compress:   config.Compress,
		}
	default:
		return os.Stdout
	}
}

func toLogrusLevel(level Level) logrus.Level {
	switch level {
	case LevelDebug:
		return logrus.DebugLevel
	case LevelWarn:
		return logrus.WarnLevel
	case LevelError:
		return logrus.ErrorLevel
	case LevelFatal:
		return logrus.FatalLevel
	default:
		return logrus.InfoLevel
	}
}

func (l *logrusLogger) Debug(msg string)                  { l.entry.Debug(msg) }
func (l *logrusLogger) Debugf(format string, args ...any) { l.entry.Debugf(format, args...) }
func (l *logrusLogger) Info(msg string)                   { l.entry.Info(msg) }
func (l *logrusLogger) Infof(format string, args ...any)  { l.entry.Infof(format, args...) }
func (l *logrusLogger) Warn(msg string)                   { l.entry.Warn(msg) }
func (l *logrusLogger) Warnf(format string, args ...any)  { l.entry.Warnf(format, args...) }
func (l *logrusLogger) Error(msg string)                  { l.entry.Error(msg) }
func (l *logrusLogger) Errorf(format string, args ...any) { l.entry.Errorf(format, args...) }
func (l *logrusLogger) Fatal(msg string)                  { l.entry.Fatal(msg) }
func (l *logrusLogger) Fatalf(format string, args ...any) { l.entry.Fatalf(format, args...) }

func (l *logrusLogger) WithField(key string, value any) Logger {
	return &logrusLogger{root: l.root, entry: l.entry.WithField(key, value)}
}

func (l *logrusLogger) WithFields(fields Fields) Logger {
	return &logrusLogger{root: l.root, entry: l.entry.WithFields(logrus.Fields(fields))}
}

func (l *logrusLogger) WithContext(ctx context.Context) Logger {
	return &logrusLogger{root: l.root, entry: l.entry.WithContext(ctx)}
}

func (l *logrusLogger) SetLevel(level Level) {
	l.root.SetLevel(toLogrusLevel(level))
}

func (l *logrusLogger) SetOutput(output io.Writer) {
	l.root.SetOutput(output)
}
