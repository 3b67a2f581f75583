// Package registries projects registry contract events. Registries are the
// front door for vault discovery: endorsed vaults arrive via NewVault,
// experimental ones via NewExperimentalVault.
package registries

import (
	"errors"
	"strings"

	"github.com/vaultgraph/vaultgraph/internal/chain"
	"github.com/vaultgraph/vaultgraph/internal/config"
	"github.com/vaultgraph/vaultgraph/internal/storage"
	"github.com/vaultgraph/vaultgraph/internal/vaultState/stateEngine"
	"github.com/vaultgraph/vaultgraph/internal/vaultState/transactions"
	"github.com/vaultgraph/vaultgraph/internal/vaultState/vaults"
	"go.uber.org/zap"
	"golang.org/x/xerrors"
	"gorm.io/gorm"
)

const (
	Event_NewRelease           = "NewRelease"
	Event_NewVault             = "NewVault"
	Event_NewExperimentalVault = "NewExperimentalVault"
	Event_VaultTagged          = "VaultTagged"
)

var interestingEvents = map[string]bool{
	Event_NewRelease:           true,
	Event_NewVault:             true,
	Event_NewExperimentalVault: true,
	Event_VaultTagged:          true,
}

type RegistryModel struct {
	Db           *gorm.DB
	logger       *zap.Logger
	globalConfig *config.Config
	transactions *transactions.TransactionResolver
	vaults       *vaults.VaultModel
}

func NewRegistryModel(
	engine *stateEngine.StateEngine,
	grm *gorm.DB,
	tr *transactions.TransactionResolver,
	vm *vaults.VaultModel,
	l *zap.Logger,
	cfg *config.Config,
) (*RegistryModel, error) {
	model := &RegistryModel{
		Db:           grm,
		logger:       l,
		globalConfig: cfg,
		transactions: tr,
		vaults:       vm,
	}
	engine.RegisterModel(model, 0)
	return model, nil
}

func (rm *RegistryModel) ModelName() string {
	return "RegistryModel"
}

func (rm *RegistryModel) InterestingEvent(event *chain.Event) bool {
	return interestingEvents[event.Name]
}

func (rm *RegistryModel) InterestingCall(call *chain.Call) bool {
	return false
}

func (rm *RegistryModel) HandleCall(call *chain.Call) error {
	return nil
}

func (rm *RegistryModel) HandleEvent(event *chain.Event) error {
	switch event.Name {
	case Event_NewRelease:
		return rm.handleNewRelease(event)
	case Event_NewVault:
		return rm.handleNewVault(event)
	case Event_NewExperimentalVault:
		return rm.handleNewExperimentalVault(event)
	case Event_VaultTagged:
		return rm.handleVaultTagged(event)
	}
	return nil
}

// getOrCreateRegistry tracks one Registry row per registry contract.
func (rm *RegistryModel) getOrCreateRegistry(event *chain.Event, tx *storage.Transaction) (*storage.Registry, error) {
	registry := &storage.Registry{}
	res := rm.Db.First(registry, "id = ?", event.ContractAddress)
	if res.Error == nil {
		return registry, nil
	}
	if !errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return nil, xerrors.Errorf("failed to look up registry '%s': %w", event.ContractAddress, res.Error)
	}

	registry = &storage.Registry{
		Id:            event.ContractAddress,
		TransactionId: tx.Id,
		Timestamp:     tx.Timestamp,
	}
	if res := rm.Db.Create(registry); res.Error != nil {
		return nil, xerrors.Errorf("failed to create registry '%s': %w", event.ContractAddress, res.Error)
	}
	rm.logger.Sugar().Infow("Created registry",
		zap.String("registryId", event.ContractAddress),
	)
	return registry, nil
}

func (rm *RegistryModel) save(registry *storage.Registry, tx *storage.Transaction) error {
	registry.TransactionId = tx.Id
	registry.Timestamp = tx.Timestamp
	if res := rm.Db.Save(registry); res.Error != nil {
		return xerrors.Errorf("failed to save registry '%s': %w", registry.Id, res.Error)
	}
	return nil
}

// handleNewRelease tracks the release template, which is itself a vault
// contract, under the Released classification.
func (rm *RegistryModel) handleNewRelease(event *chain.Event) error {
	template, err := chain.AddressParam(event.Params, "template")
	if err != nil {
		return err
	}

	tx, err := rm.transactions.ResolveEvent(event, "registry.newRelease")
	if err != nil {
		return err
	}
	registry, err := rm.getOrCreateRegistry(event, tx)
	if err != nil {
		return err
	}

	if !chain.IsZeroAddress(template) {
		vault, err := rm.vaults.GetOrCreateVault(template, tx, storage.VaultClassification_Released, registry.Id, event.BlockNumber)
		if err != nil {
			return err
		}
		if vault.Classification != storage.VaultClassification_Released {
			if err := rm.vaults.Endorse(vault, storage.VaultClassification_Released, registry.Id); err != nil {
				return err
			}
		}
	}

	registry.ReleaseCount++
	return rm.save(registry, tx)
}

// handleNewVault endorses a vault. A vault already tracked as experimental
// is reclassified rather than recreated.
func (rm *RegistryModel) handleNewVault(event *chain.Event) error {
	vaultAddr, err := chain.AddressParam(event.Params, "vault")
	if err != nil {
		return err
	}

	tx, err := rm.transactions.ResolveEvent(event, "registry.newVault")
	if err != nil {
		return err
	}
	registry, err := rm.getOrCreateRegistry(event, tx)
	if err != nil {
		return err
	}

	vault, err := rm.vaults.GetOrCreateVault(vaultAddr, tx, storage.VaultClassification_Endorsed, registry.Id, event.BlockNumber)
	if err != nil {
		return err
	}
	if vault.Classification != storage.VaultClassification_Endorsed {
		if err := rm.vaults.Endorse(vault, storage.VaultClassification_Endorsed, registry.Id); err != nil {
			return err
		}
	}

	registry.VaultCount++
	return rm.save(registry, tx)
}

func (rm *RegistryModel) handleNewExperimentalVault(event *chain.Event) error {
	vaultAddr, err := chain.AddressParam(event.Params, "vault")
	if err != nil {
		return err
	}

	tx, err := rm.transactions.ResolveEvent(event, "registry.newExperimentalVault")
	if err != nil {
		return err
	}
	registry, err := rm.getOrCreateRegistry(event, tx)
	if err != nil {
		return err
	}

	if _, err := rm.vaults.GetOrCreateVault(vaultAddr, tx, storage.VaultClassification_Experimental, registry.Id, event.BlockNumber); err != nil {
		return err
	}

	registry.ExperimentalVaultCount++
	return rm.save(registry, tx)
}

// handleVaultTagged replaces the vault's tag set with the comma-separated
// list in the event; tagging an unknown vault is warned about and skipped.
func (rm *RegistryModel) handleVaultTagged(event *chain.Event) error {
	vaultAddr, err := chain.AddressParam(event.Params, "vault")
	if err != nil {
		return err
	}
	tag, err := chain.StringParam(event.Params, "tag")
	if err != nil {
		return err
	}

	vault, err := rm.vaults.GetVault(vaultAddr)
	if err != nil {
		return err
	}
	if vault == nil {
		rm.logger.Sugar().Warnw("Tag for unknown vault, skipping",
			zap.String("vaultId", vaultAddr),
			zap.String("tag", tag),
		)
		return nil
	}

	return rm.vaults.SetTags(vault, strings.Split(tag, ","))
}
