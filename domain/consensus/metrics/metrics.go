// Package metrics exports the outcome of block validation and the state of
// the active chain as Prometheus metrics.
package metrics

import (
	"strings"

	"github.com/blockkernel/blockkernel/domain/consensus/model/externalapi"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "blockkernel"
	subsystem = "chain"

	resultValid         = "valid"
	resultInternalError = "internal_error"
)

// Observer implements externalapi.Notifications and
// externalapi.ValidationInterface. Every event is counted and then handed
// to the wrapped observers.
type Observer struct {
	notifications       externalapi.Notifications
	validationInterface externalapi.ValidationInterface

	blocksChecked      *prometheus.CounterVec
	blocksConnected    prometheus.Counter
	blocksDisconnected prometheus.Counter
	tipHeight          prometheus.Gauge
	headerHeight       prometheus.Gauge
	verification       prometheus.Gauge
	warnings           *prometheus.GaugeVec
	flushErrors        prometheus.Counter
	fatalErrors        prometheus.Counter
}

// New creates an Observer whose metrics are registered with registerer.
// notifications and validationInterface may be nil.
func New(registerer prometheus.Registerer, notifications externalapi.Notifications,
	validationInterface externalapi.ValidationInterface) (*Observer, error) {

	if notifications == nil {
		notifications = externalapi.NopNotifications{}
	}
	if validationInterface == nil {
		validationInterface = externalapi.NopValidationInterface{}
	}

	o := &Observer{
		notifications:       notifications,
		validationInterface: validationInterface,
		blocksChecked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "blocks_checked_total",
			Help:      "Number of fully validated blocks by validation result",
		}, []string{"result"}),
		blocksConnected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "blocks_connected_total",
			Help:      "Number of blocks connected to the active chain",
		}),
		blocksDisconnected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "blocks_disconnected_total",
			Help:      "Number of blocks disconnected from the active chain",
		}),
		tipHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tip_height",
			Help:      "Height of the active chain tip",
		}),
		headerHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "header_height",
			Help:      "Height of the best known header",
		}),
		verification: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "verification_progress",
			Help:      "Estimated fraction of the chain that is verified",
		}),
		warnings: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "warning_active",
			Help:      "Whether a chain warning is currently raised",
		}, []string{"warning"}),
		flushErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "flush_errors_total",
			Help:      "Number of failed flushes to disk",
		}),
		fatalErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "fatal_errors_total",
			Help:      "Number of fatal errors",
		}),
	}

	collectors := []prometheus.Collector{o.blocksChecked, o.blocksConnected, o.blocksDisconnected,
		o.tipHeight, o.headerHeight, o.verification, o.warnings, o.flushErrors, o.fatalErrors}
	for _, collector := range collectors {
		err := registerer.Register(collector)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to register chain metrics")
		}
	}
	return o, nil
}

func resultLabel(state *externalapi.BlockValidationState) string {
	switch state.Mode {
	case externalapi.ModeValid:
		return resultValid
	case externalapi.ModeInternalError:
		return resultInternalError
	}
	return strings.ToLower(strings.TrimPrefix(state.Result.String(), "BLOCK_"))
}

// BlockChecked implements externalapi.ValidationInterface.
func (o *Observer) BlockChecked(block *btcutil.Block, state *externalapi.BlockValidationState) {
	o.blocksChecked.WithLabelValues(resultLabel(state)).Inc()
	o.validationInterface.BlockChecked(block, state)
}

// NewPoWValidBlock implements externalapi.ValidationInterface.
func (o *Observer) NewPoWValidBlock(info *externalapi.BlockInfo, block *btcutil.Block) {
	o.validationInterface.NewPoWValidBlock(info, block)
}

// BlockConnected implements externalapi.ValidationInterface.
func (o *Observer) BlockConnected(block *btcutil.Block, info *externalapi.BlockInfo) {
	o.blocksConnected.Inc()
	o.validationInterface.BlockConnected(block, info)
}

// BlockDisconnected implements externalapi.ValidationInterface.
func (o *Observer) BlockDisconnected(block *btcutil.Block, info *externalapi.BlockInfo) {
	o.blocksDisconnected.Inc()
	o.validationInterface.BlockDisconnected(block, info)
}

// BlockTip implements externalapi.Notifications.
func (o *Observer) BlockTip(state externalapi.SynchronizationState, info *externalapi.BlockInfo,
	verificationProgress float64) {

	o.tipHeight.Set(float64(info.Height))
	o.verification.Set(verificationProgress)
	o.notifications.BlockTip(state, info, verificationProgress)
}

// HeaderTip implements externalapi.Notifications.
func (o *Observer) HeaderTip(state externalapi.SynchronizationState, height int32, timestamp int64,
	presync bool) {

	if !presync {
		o.headerHeight.Set(float64(height))
	}
	o.notifications.HeaderTip(state, height, timestamp, presync)
}

// Progress implements externalapi.Notifications.
func (o *Observer) Progress(title string, percent int, resumePossible bool) {
	o.notifications.Progress(title, percent, resumePossible)
}

// WarningSet implements externalapi.Notifications.
func (o *Observer) WarningSet(warning externalapi.Warning, message string) {
	o.warnings.WithLabelValues(warning.String()).Set(1)
	o.notifications.WarningSet(warning, message)
}

// WarningUnset implements externalapi.Notifications.
func (o *Observer) WarningUnset(warning externalapi.Warning) {
	o.warnings.WithLabelValues(warning.String()).Set(0)
	o.notifications.WarningUnset(warning)
}

// FlushError implements externalapi.Notifications.
func (o *Observer) FlushError(message string) {
	o.flushErrors.Inc()
	o.notifications.FlushError(message)
}

// FatalError implements externalapi.Notifications.
func (o *Observer) FatalError(message string) {
	o.fatalErrors.Inc()
	o.notifications.FatalError(message)
}
