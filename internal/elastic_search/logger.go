package elastic_search

import (
	"go.uber.org/zap"
)

// ElasticLogger sends the client's trace output to the debug log.
type ElasticLogger struct{}

func (ElasticLogger) Printf(format string, v ...interface{}) {
	zap.S().Debugf(format, v...)
}
