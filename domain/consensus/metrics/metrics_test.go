package metrics

import (
	"testing"
	"time"

	"github.com/blockkernel/blockkernel/domain/chainparams"
	"github.com/blockkernel/blockkernel/domain/consensus"
	"github.com/blockkernel/blockkernel/domain/consensus/model/externalapi"
	"github.com/blockkernel/blockkernel/domain/consensus/utils/testutils"
	"github.com/blockkernel/blockkernel/infrastructure/config"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type tipCounter struct {
	externalapi.NopNotifications
	tips int
}

func (c *tipCounter) BlockTip(externalapi.SynchronizationState, *externalapi.BlockInfo, float64) {
	c.tips++
}

func TestObserverCountsEvents(t *testing.T) {
	registry := prometheus.NewRegistry()
	next := &tipCounter{}
	observer, err := New(registry, next, nil)
	if err != nil {
		t.Fatalf("New: %+v", err)
	}
	if _, err := New(registry, nil, nil); err == nil {
		t.Fatalf("registering twice should fail")
	}

	block := btcutil.NewBlock(chainparams.RegressionNetParams.GenesisBlock)
	observer.BlockChecked(block, &externalapi.BlockValidationState{Mode: externalapi.ModeValid})
	observer.BlockChecked(block, &externalapi.BlockValidationState{
		Mode:   externalapi.ModeInvalid,
		Result: externalapi.BlockMutated,
	})
	observer.BlockChecked(block, &externalapi.BlockValidationState{
		Mode:   externalapi.ModeInvalid,
		Result: externalapi.BlockMutated,
	})
	observer.BlockConnected(block, &externalapi.BlockInfo{Height: 3})
	observer.BlockDisconnected(block, &externalapi.BlockInfo{Height: 3})
	observer.BlockTip(externalapi.SyncStatePostInit, &externalapi.BlockInfo{Height: 2}, 0.5)
	observer.WarningSet(externalapi.WarningLargeWorkInvalidChain, "invalid chain")

	tests := []struct {
		name      string
		collector prometheus.Collector
		want      float64
	}{
		{"valid", observer.blocksChecked.WithLabelValues("valid"), 1},
		{"mutated", observer.blocksChecked.WithLabelValues("mutated"), 2},
		{"connected", observer.blocksConnected, 1},
		{"disconnected", observer.blocksDisconnected, 1},
		{"tip height", observer.tipHeight, 2},
		{"verification", observer.verification, 0.5},
		{"warning", observer.warnings.WithLabelValues("LARGE_WORK_INVALID_CHAIN"), 1},
	}
	for _, test := range tests {
		if got := testutil.ToFloat64(test.collector); got != test.want {
			t.Errorf("%s: got %v, want %v", test.name, got, test.want)
		}
	}
	if next.tips != 1 {
		t.Fatalf("the wrapped observer should see the tip, got %d calls", next.tips)
	}

	observer.WarningUnset(externalapi.WarningLargeWorkInvalidChain)
	if got := testutil.ToFloat64(observer.warnings.WithLabelValues("LARGE_WORK_INVALID_CHAIN")); got != 0 {
		t.Fatalf("the warning gauge should be cleared, got %v", got)
	}
}

func TestObserverFollowsChainstate(t *testing.T) {
	params := &chainparams.RegressionNetParams
	registry := prometheus.NewRegistry()
	observer, err := New(registry, nil, nil)
	if err != nil {
		t.Fatalf("New: %+v", err)
	}

	builder := config.NewBuilder("", "")
	builder.SetChainParams(params)
	builder.SetBlockTreeDBInMemory(true)
	builder.SetChainstateDBInMemory(true)
	builder.SetNotifications(observer)
	builder.SetValidationInterface(observer)
	builder.SetClock(func() time.Time { return params.GenesisBlock.Header.Timestamp.Add(24 * time.Hour) })
	cfg, err := builder.Build()
	if err != nil {
		t.Fatalf("Build: %+v", err)
	}
	m, err := consensus.New(cfg)
	if err != nil {
		t.Fatalf("consensus.New: %+v", err)
	}
	defer m.Close()

	parent := params.GenesisBlock
	for height := int32(1); height <= 3; height++ {
		parentHash := parent.BlockHash()
		block := testutils.BuildBlock(params, &parentHash, height,
			parent.Header.Timestamp.Add(10*time.Minute), 0)
		if accepted, _, err := m.ProcessBlock(btcutil.NewBlock(block)); err != nil || !accepted {
			t.Fatalf("ProcessBlock at height %d: %t %v", height, accepted, err)
		}
		parent = block
	}

	if got := testutil.ToFloat64(observer.tipHeight); got != 3 {
		t.Fatalf("tip height gauge: got %v, want 3", got)
	}
	if got := testutil.ToFloat64(observer.blocksConnected); got != 3 {
		t.Fatalf("connected counter: got %v, want 3", got)
	}
	if got := testutil.ToFloat64(observer.blocksChecked.WithLabelValues("valid")); got != 3 {
		t.Fatalf("checked counter: got %v, want 3", got)
	}
	if got := testutil.ToFloat64(observer.headerHeight); got != 3 {
		t.Fatalf("header height gauge: got %v, want 3", got)
	}
}
