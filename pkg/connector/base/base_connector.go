// Package base provides the BaseConnector every crawl source and destination
// embeds. It carries the connector identity, its configuration, a child
// logger, a metrics collector and the stack of handles the session has
// opened.
//
// # Usage
//
//	type ShareSource struct {
//	    *base.BaseConnector
//	    share Share
//	}
//
//	func NewShareSource() *ShareSource {
//	    return &ShareSource{
//	        BaseConnector: base.NewBaseConnector("cifs", core.ConnectorTypeSource, "1.0.0"),
//	    }
//	}
//
// # Lifecycle
//
// 1. Create with NewBaseConnector
// 2. Initialize with the connector configuration
// 3. Push every handle the session opens onto Closer()
// 4. Close releases the handles innermost-first; it is idempotent
package base

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/kennyhitachi/hci-connectors/pkg/config"
	"github.com/kennyhitachi/hci-connectors/pkg/connector/core"
	"github.com/kennyhitachi/hci-connectors/pkg/errors"
	"github.com/kennyhitachi/hci-connectors/pkg/logger"
	"github.com/kennyhitachi/hci-connectors/pkg/metrics"
)

// BaseConnector provides the functionality shared by every connector.
type BaseConnector struct {
	name          string
	connectorType core.ConnectorType
	version       string
	config        *config.BaseConfig
	logger        *zap.Logger

	metricsCollector *metrics.Collector
	errorHandler     *ErrorHandler
	closer           *Closer

	closed     bool
	closeMutex sync.Mutex
}

// NewBaseConnector creates a new base connector with the specified name, type, and version.
func NewBaseConnector(name string, connectorType core.ConnectorType, version string) *BaseConnector {
	l := logger.Get().With(zap.String("connector", name))
	collector := metrics.NewCollector(name)
	return &BaseConnector{
		name:             name,
		connectorType:    connectorType,
		version:          version,
		logger:           l,
		metricsCollector: collector,
		errorHandler:     NewErrorHandler(l, collector),
		closer:           NewCloser(),
	}
}

// Initialize validates and stores the configuration. Connectors call it
// before opening their session.
func (bc *BaseConnector) Initialize(ctx context.Context, cfg *config.BaseConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	bc.closeMutex.Lock()
	defer bc.closeMutex.Unlock()
	if bc.closed {
		return errors.New(errors.ErrorTypeValidation, "connector is closed")
	}

	bc.config = cfg
	bc.logger = logger.WithContext(ctx).With(
		zap.String("connector", bc.name),
		zap.String("instance", cfg.Name))
	bc.errorHandler = NewErrorHandler(bc.logger, bc.metricsCollector)

	bc.logger.Debug("connector initialized",
		zap.String("type", string(bc.connectorType)),
		zap.String("version", bc.version))
	return nil
}

// Name returns the connector name
func (bc *BaseConnector) Name() string {
	return bc.name
}

// Type returns the connector type
func (bc *BaseConnector) Type() core.ConnectorType {
	return bc.connectorType
}

// Version returns the connector version
func (bc *BaseConnector) Version() string {
	return bc.version
}

// Metrics returns a snapshot of the connector counters.
func (bc *BaseConnector) Metrics() map[string]interface{} {
	m := bc.metricsCollector.GetAll()
	m["type"] = string(bc.connectorType)
	m["version"] = bc.version
	m["closed"] = bc.IsClosed()
	return m
}

// Close releases every handle pushed onto the closer, innermost-first.
// Failures are logged and swallowed. Calling Close again is a no-op.
func (bc *BaseConnector) Close(ctx context.Context) error {
	bc.closeMutex.Lock()
	defer bc.closeMutex.Unlock()

	if bc.closed {
		return nil
	}
	bc.closed = true

	bc.closer.CloseAll(bc.logger)
	bc.logger.Debug("connector closed")
	return nil
}

// IsClosed reports whether Close has been called.
func (bc *BaseConnector) IsClosed() bool {
	bc.closeMutex.Lock()
	defer bc.closeMutex.Unlock()
	return bc.closed
}

// CheckOpen returns a validation error once the connector has been closed or
// before it has been initialized.
func (bc *BaseConnector) CheckOpen() error {
	bc.closeMutex.Lock()
	defer bc.closeMutex.Unlock()
	if bc.closed {
		return errors.Newf(errors.ErrorTypeValidation, "%s connector is closed", bc.name)
	}
	if bc.config == nil {
		return errors.Newf(errors.ErrorTypeValidation, "%s connector is not initialized", bc.name)
	}
	return nil
}

// GetLogger returns the connector logger
func (bc *BaseConnector) GetLogger() *zap.Logger {
	return bc.logger
}

// GetConfig returns the connector configuration
func (bc *BaseConnector) GetConfig() *config.BaseConfig {
	return bc.config
}

// GetMetricsCollector returns the metrics collector
func (bc *BaseConnector) GetMetricsCollector() *metrics.Collector {
	return bc.metricsCollector
}

// GetErrorHandler returns the error handler
func (bc *BaseConnector) GetErrorHandler() *ErrorHandler {
	return bc.errorHandler
}

// Closer returns the stack of session handles.
func (bc *BaseConnector) Closer() *Closer {
	return bc.closer
}

// ItemPolicy returns the configured malformed-item policy.
func (bc *BaseConnector) ItemPolicy() string {
	return bc.config.ItemPolicy()
}
