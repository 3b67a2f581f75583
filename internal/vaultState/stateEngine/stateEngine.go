// Package stateEngine owns the ordered fold. Events and calls arrive one at
// a time in ascending (block, txIndex, logIndex) order and are offered to
// every registered model; a failed transition never stops the stream, it
// only aborts that single event.
package stateEngine

import (
	"errors"
	"fmt"
	"slices"

	"github.com/vaultgraph/vaultgraph/internal/chain"
	"github.com/vaultgraph/vaultgraph/internal/metrics"
	"github.com/vaultgraph/vaultgraph/internal/metrics/metricsTypes"
	"github.com/vaultgraph/vaultgraph/internal/storage"
	"github.com/vaultgraph/vaultgraph/internal/vaultState/types"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"github.com/wealdtech/go-merkletree/v2"
	"github.com/wealdtech/go-merkletree/v2/keccak256"
	"go.uber.org/zap"
	"golang.org/x/xerrors"
	"gorm.io/gorm"
)

type StateEngine struct {
	logger      *zap.Logger
	Db          *gorm.DB
	metricsSink *metrics.MetricsSink

	models map[int]types.VaultStateModel
}

func NewStateEngine(grm *gorm.DB, l *zap.Logger, ms *metrics.MetricsSink) *StateEngine {
	return &StateEngine{
		logger:      l,
		Db:          grm,
		metricsSink: ms,
		models:      make(map[int]types.VaultStateModel),
	}
}

// RegisterModel adds a model at the given dispatch position. Positions are
// stable across runs so that models always see events in the same order.
func (se *StateEngine) RegisterModel(model types.VaultStateModel, index int) {
	if m, ok := se.models[index]; ok {
		se.logger.Sugar().Infow(fmt.Sprintf("Model already registered at index '%d'", index),
			zap.String("existing", m.ModelName()),
			zap.String("new", model.ModelName()),
		)
	}
	se.models[index] = model
}

func (se *StateEngine) sortedModelIndexes() []int {
	indexes := make([]int, 0, len(se.models))
	for i := range se.models {
		indexes = append(indexes, i)
	}
	slices.Sort(indexes)
	return indexes
}

// HandleEvent offers one decoded event to every interested model. Taxonomy
// errors are logged and absorbed here; anything else is a storage-level
// failure the caller must see.
func (se *StateEngine) HandleEvent(event *chain.Event) error {
	for _, index := range se.sortedModelIndexes() {
		model := se.models[index]
		if !model.InterestingEvent(event) {
			continue
		}
		if err := model.HandleEvent(event); err != nil {
			if absorbed := se.absorb(err, model.ModelName(), event.Name); absorbed {
				continue
			}
			return err
		}
		if se.metricsSink != nil {
			_ = se.metricsSink.Incr(metricsTypes.Metric_Incr_EventHandled, []metricsTypes.MetricsLabel{
				{Name: "model", Value: model.ModelName()},
				{Name: "eventName", Value: event.Name},
			}, 1)
		}
	}
	return nil
}

func (se *StateEngine) HandleCall(call *chain.Call) error {
	for _, index := range se.sortedModelIndexes() {
		model := se.models[index]
		if !model.InterestingCall(call) {
			continue
		}
		if err := model.HandleCall(call); err != nil {
			if absorbed := se.absorb(err, model.ModelName(), call.Name); absorbed {
				continue
			}
			return err
		}
		if se.metricsSink != nil {
			_ = se.metricsSink.Incr(metricsTypes.Metric_Incr_CallHandled, []metricsTypes.MetricsLabel{
				{Name: "model", Value: model.ModelName()},
				{Name: "callName", Value: call.Name},
			}, 1)
		}
	}
	return nil
}

// absorb classifies a transition failure. Invariant violations, malformed
// input and missing parents abort only the offending event.
func (se *StateEngine) absorb(err error, modelName string, inputName string) bool {
	switch {
	case errors.Is(err, types.ErrInvariantViolation):
		se.logger.Sugar().Errorw("Transition aborted on invariant violation",
			zap.String("model", modelName),
			zap.String("input", inputName),
			zap.Error(err),
		)
	case errors.Is(err, types.ErrMalformedInput):
		se.logger.Sugar().Errorw("Malformed input, continuing with next event",
			zap.String("model", modelName),
			zap.String("input", inputName),
			zap.Error(err),
		)
	case errors.Is(err, types.ErrMissingParent):
		se.logger.Sugar().Warnw("Missing parent entity, transition skipped",
			zap.String("model", modelName),
			zap.String("input", inputName),
			zap.Error(err),
		)
	default:
		return false
	}
	if se.metricsSink != nil {
		_ = se.metricsSink.Incr(metricsTypes.Metric_Incr_DataQualityAnomaly, []metricsTypes.MetricsLabel{
			{Name: "kind", Value: inputName},
		}, 1)
	}
	return true
}

// GenerateStateRoot merkleizes (id, sharesSupply, balanceTokens) of every
// vault whose latest update landed in the given block, ordered by vault id.
// Deterministic folds produce identical roots, which the tests rely on.
func (se *StateEngine) GenerateStateRoot(blockNumber uint64) ([]byte, error) {
	vaults := make([]storage.Vault, 0)
	res := se.Db.
		Model(&storage.Vault{}).
		Where("latest_update_block = ?", blockNumber).
		Order("id asc").
		Find(&vaults)
	if res.Error != nil {
		return nil, xerrors.Errorf("failed to list vaults for block %d: %w", blockNumber, res.Error)
	}
	if len(vaults) == 0 {
		return nil, nil
	}

	om := orderedmap.New[string, string]()
	for _, v := range vaults {
		om.Set(v.Id, fmt.Sprintf("%s:%s:%s", v.Id, v.SharesSupply, v.BalanceTokens))
	}

	leaves := make([][]byte, 0, om.Len())
	for pair := om.Oldest(); pair != nil; pair = pair.Next() {
		leaves = append(leaves, []byte(pair.Value))
	}

	tree, err := merkletree.NewTree(
		merkletree.WithData(leaves),
		merkletree.WithHashType(keccak256.New()),
	)
	if err != nil {
		return nil, xerrors.Errorf("failed to build state tree: %w", err)
	}
	return tree.Root(), nil
}
