// Package utils loads layered configuration and builds the process logger.
//
// ConfigurationLoader merges embedded defaults, an optional file, and
// REPOFLEET_ environment variables through Viper. LoggerFactory builds zap
// loggers in structured or console form.
package utils
