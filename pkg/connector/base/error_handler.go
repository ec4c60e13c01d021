package base

import (
	"context"
	"database/sql"
	"io/fs"
	"net"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/kennyhitachi/hci-connectors/pkg/errors"
	"github.com/kennyhitachi/hci-connectors/pkg/metrics"
)

// ErrorHandler maps raw driver and transport errors onto the crawl taxonomy,
// then logs and counts them. It never retries.
type ErrorHandler struct {
	logger      *zap.Logger
	collector   *metrics.Collector
	errorCounts map[errors.ErrorType]int64
	errorMutex  sync.RWMutex
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(logger *zap.Logger, collector *metrics.Collector) *ErrorHandler {
	return &ErrorHandler{
		logger:      logger,
		collector:   collector,
		errorCounts: make(map[errors.ErrorType]int64),
	}
}

// Surface classifies err and returns it as a structured error of that type.
// fallback is used when err carries no recognizable condition. Errors that
// already carry a taxonomy type pass through unchanged.
func (eh *ErrorHandler) Surface(err error, fallback errors.ErrorType, message string, fields ...zap.Field) error {
	if err == nil {
		return nil
	}

	errType := Categorize(err, fallback)
	eh.incrementErrorCount(errType)
	if eh.collector != nil {
		eh.collector.RecordError(string(errType))
	}

	fields = append(fields, zap.Error(err), zap.String("error_type", string(errType)))
	if errType == errors.ErrorTypeNotFound {
		eh.logger.Debug(message, fields...)
	} else {
		eh.logger.Error(message, fields...)
	}

	return errors.Propagate(err, errType, message)
}

// Categorize returns the taxonomy type for err.
func Categorize(err error, fallback errors.ErrorType) errors.ErrorType {
	var structured *errors.Error
	if errors.As(err, &structured) {
		return structured.Type
	}

	switch {
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, sql.ErrNoRows):
		return errors.ErrorTypeNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return errors.ErrorTypeTimeout
	case errors.Is(err, fs.ErrPermission):
		return errors.ErrorTypeAuthentication
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errors.ErrorTypeTimeout
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{"no such file", "not found", "does not exist", "object_name_not_found", "object_path_not_found"} {
		if strings.Contains(msg, pattern) {
			return errors.ErrorTypeNotFound
		}
	}

	return fallback
}

func (eh *ErrorHandler) incrementErrorCount(errType errors.ErrorType) {
	eh.errorMutex.Lock()
	eh.errorCounts[errType]++
	eh.errorMutex.Unlock()
}

// GetErrorStats returns error counts by type.
func (eh *ErrorHandler) GetErrorStats() map[string]int64 {
	eh.errorMutex.RLock()
	defer eh.errorMutex.RUnlock()

	stats := make(map[string]int64, len(eh.errorCounts))
	for k, v := range eh.errorCounts {
		stats[string(k)] = v
	}
	return stats
}
