package utils

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	unsupportedLogLevelMessageConstant  = "unsupported log level"
	unsupportedLogFormatMessageConstant = "unsupported log format"
	logLevelFieldNameConstant           = "log_level"
	logFormatFieldNameConstant          = "log_format"
)

// LogLevel identifies the minimum severity emitted by created loggers.
type LogLevel string

// LogFormat identifies the encoding used by created loggers.
type LogFormat string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"

	LogFormatStructured LogFormat = "structured"
	LogFormatConsole    LogFormat = "console"
)

// InvalidLoggerConfigurationError reports an unsupported logger level or format.
type InvalidLoggerConfigurationError struct {
	FieldName string
	Value     string
	Message   string
}

func (invalidError InvalidLoggerConfigurationError) Error() string {
	return invalidError.Message + ": " + invalidError.FieldName + "=" + invalidError.Value
}

// LoggerOutputs bundles the diagnostic logger with the human-facing console logger.
type LoggerOutputs struct {
	DiagnosticLogger *zap.Logger
	ConsoleLogger    *zap.Logger
}

// LoggerFactory builds zap loggers bound to the process standard error stream.
type LoggerFactory struct{}

// NewLoggerFactory constructs a LoggerFactory instance.
func NewLoggerFactory() *LoggerFactory {
	return &LoggerFactory{}
}

// CreateLoggerOutputs builds the diagnostic and console loggers for the requested
// level and format. The standard error stream is resolved at call time so callers
// may redirect os.Stderr before creating loggers.
func (factory *LoggerFactory) CreateLoggerOutputs(requestedLogLevel LogLevel, requestedLogFormat LogFormat) (LoggerOutputs, error) {
	zapLevel, levelError := resolveZapLevel(requestedLogLevel)
	if levelError != nil {
		return LoggerOutputs{}, levelError
	}

	errorStream := zapcore.Lock(os.Stderr)

	switch requestedLogFormat {
	case LogFormatStructured:
		jsonEncoder := zapcore.NewJSONEncoder(structuredEncoderConfiguration())
		diagnosticCore := zapcore.NewCore(jsonEncoder, errorStream, zapLevel)
		return LoggerOutputs{
			DiagnosticLogger: zap.New(diagnosticCore),
			ConsoleLogger:    zap.NewNop(),
		}, nil
	case LogFormatConsole:
		consoleEncoder := zapcore.NewConsoleEncoder(consoleEncoderConfiguration())
		diagnosticCore := zapcore.NewCore(consoleEncoder, errorStream, zapLevel)
		consoleCore := zapcore.NewCore(zapcore.NewConsoleEncoder(consoleEncoderConfiguration()), errorStream, zapcore.InfoLevel)
		return LoggerOutputs{
			DiagnosticLogger: zap.New(diagnosticCore),
			ConsoleLogger:    zap.New(consoleCore),
		}, nil
	default:
		return LoggerOutputs{}, InvalidLoggerConfigurationError{
			FieldName: logFormatFieldNameConstant,
			Value:     string(requestedLogFormat),
			Message:   unsupportedLogFormatMessageConstant,
		}
	}
}

func resolveZapLevel(requestedLogLevel LogLevel) (zapcore.Level, error) {
	switch requestedLogLevel {
	case LogLevelDebug:
		return zapcore.DebugLevel, nil
	case LogLevelInfo:
		return zapcore.InfoLevel, nil
	case LogLevelWarn:
		return zapcore.WarnLevel, nil
	case LogLevelError:
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InvalidLevel, InvalidLoggerConfigurationError{
			FieldName: logLevelFieldNameConstant,
			Value:     string(requestedLogLevel),
			Message:   unsupportedLogLevelMessageConstant,
		}
	}
}

func structuredEncoderConfiguration() zapcore.EncoderConfig {
	encoderConfiguration := zap.NewProductionEncoderConfig()
	encoderConfiguration.EncodeTime = zapcore.ISO8601TimeEncoder
	return encoderConfiguration
}

func consoleEncoderConfiguration() zapcore.EncoderConfig {
	encoderConfiguration := zap.NewDevelopmentEncoderConfig()
	encoderConfiguration.EncodeLevel = zapcore.CapitalLevelEncoder
	return encoderConfiguration
}
