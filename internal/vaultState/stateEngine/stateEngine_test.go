package stateEngine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vaultgraph/vaultgraph/internal/chain"
	"github.com/vaultgraph/vaultgraph/internal/logger"
	"github.com/vaultgraph/vaultgraph/internal/storage"
	"github.com/vaultgraph/vaultgraph/internal/tests"
	"github.com/vaultgraph/vaultgraph/internal/vaultState/types"
	"golang.org/x/xerrors"
	"gorm.io/gorm"
)

type scriptedModel struct {
	name       string
	interested bool
	err        error
	log        *[]string
}

func (m *scriptedModel) ModelName() string { return m.name }

func (m *scriptedModel) InterestingEvent(event *chain.Event) bool { return m.interested }

func (m *scriptedModel) InterestingCall(call *chain.Call) bool { return m.interested }

func (m *scriptedModel) HandleEvent(event *chain.Event) error {
	*m.log = append(*m.log, m.name)
	return m.err
}

func (m *scriptedModel) HandleCall(call *chain.Call) error {
	*m.log = append(*m.log, m.name)
	return m.err
}

func setup() (*gorm.DB, *StateEngine, error) {
	cfg := tests.GetConfig()
	_, grm, err := tests.GetDatabaseConnection(cfg)
	if err != nil {
		return nil, nil, err
	}
	return grm, NewStateEngine(grm, logger.NewTestLogger(), nil), nil
}

func testEvent() *chain.Event {
	return &chain.Event{
		ContractAddress: "0x19d3364a399d251e894ac732651be8b0e4e85001",
		BlockNumber:     12000000,
		TransactionHash: "0xaaa",
		Name:            "Deposit",
		Params:          map[string]interface{}{},
	}
}

func Test_DispatchOrder(t *testing.T) {
	_, engine, err := setup()
	if err != nil {
		t.Fatal(err)
	}

	log := make([]string, 0)
	engine.RegisterModel(&scriptedModel{name: "third", interested: true, log: &log}, 7)
	engine.RegisterModel(&scriptedModel{name: "first", interested: true, log: &log}, 0)
	engine.RegisterModel(&scriptedModel{name: "skipped", interested: false, log: &log}, 1)
	engine.RegisterModel(&scriptedModel{name: "second", interested: true, log: &log}, 3)

	assert.Nil(t, engine.HandleEvent(testEvent()))
	assert.Equal(t, []string{"first", "second", "third"}, log)

	log = log[:0]
	assert.Nil(t, engine.HandleCall(&chain.Call{Name: "deposit"}))
	assert.Equal(t, []string{"first", "second", "third"}, log)
}

func Test_ErrorTaxonomy(t *testing.T) {
	absorbed := []error{
		xerrors.Errorf("strategy unknown: %w", types.ErrInvariantViolation),
		xerrors.Errorf("bad param: %w", types.ErrMalformedInput),
		xerrors.Errorf("vault not yet seen: %w", types.ErrMissingParent),
	}

	for i, modelErr := range absorbed {
		t.Run(fmt.Sprintf("Absorbed taxonomy error %d keeps the fold alive", i), func(t *testing.T) {
			_, engine, err := setup()
			if err != nil {
				t.Fatal(err)
			}
			log := make([]string, 0)
			engine.RegisterModel(&scriptedModel{name: "failing", interested: true, err: modelErr, log: &log}, 0)
			engine.RegisterModel(&scriptedModel{name: "next", interested: true, log: &log}, 1)

			assert.Nil(t, engine.HandleEvent(testEvent()))
			assert.Equal(t, []string{"failing", "next"}, log)
		})
	}

	t.Run("Storage failures propagate", func(t *testing.T) {
		_, engine, err := setup()
		if err != nil {
			t.Fatal(err)
		}
		log := make([]string, 0)
		storageErr := xerrors.Errorf("failed to save vault: disk full")
		engine.RegisterModel(&scriptedModel{name: "failing", interested: true, err: storageErr, log: &log}, 0)
		engine.RegisterModel(&scriptedModel{name: "next", interested: true, log: &log}, 1)

		assert.Equal(t, storageErr, engine.HandleEvent(testEvent()))
		assert.Equal(t, []string{"failing"}, log)
	})
}

func Test_GenerateStateRoot(t *testing.T) {
	seed := func(grm *gorm.DB, ids ...string) error {
		for _, id := range ids {
			vault := &storage.Vault{
				Id:                id,
				TokenId:           "0x6b175474e89094c44da98b954eedeac495271d0f",
				SharesSupply:      "79056085",
				BalanceTokens:     "79056085",
				LatestUpdateBlock: 12000000,
			}
			if res := grm.Create(vault); res.Error != nil {
				return res.Error
			}
		}
		return nil
	}

	vaultA := "0x19d3364a399d251e894ac732651be8b0e4e85001"
	vaultB := "0x8c347cf01f2c09ee14eec7dcf01fca238010e73d"

	t.Run("No vaults touched in the block yields no root", func(t *testing.T) {
		_, engine, err := setup()
		if err != nil {
			t.Fatal(err)
		}
		root, err := engine.GenerateStateRoot(12000000)
		assert.Nil(t, err)
		assert.Nil(t, root)
	})

	t.Run("Insertion order does not change the root", func(t *testing.T) {
		grm1, engine1, err := setup()
		if err != nil {
			t.Fatal(err)
		}
		grm2, engine2, err := setup()
		if err != nil {
			t.Fatal(err)
		}

		assert.Nil(t, seed(grm1, vaultA, vaultB))
		assert.Nil(t, seed(grm2, vaultB, vaultA))

		root1, err := engine1.GenerateStateRoot(12000000)
		assert.Nil(t, err)
		root2, err := engine2.GenerateStateRoot(12000000)
		assert.Nil(t, err)
		assert.NotNil(t, root1)
		assert.Equal(t, root1, root2)
	})

	t.Run("Only vaults updated in the block contribute", func(t *testing.T) {
		grm, engine, err := setup()
		if err != nil {
			t.Fatal(err)
		}
		assert.Nil(t, seed(grm, vaultA))
		assert.Nil(t, grm.Create(&storage.Vault{
			Id:                vaultB,
			TokenId:           "0x6b175474e89094c44da98b954eedeac495271d0f",
			SharesSupply:      "1",
			BalanceTokens:     "1",
			LatestUpdateBlock: 11999999,
		}).Error)

		withBoth, err := engine.GenerateStateRoot(12000000)
		assert.Nil(t, err)
		assert.NotNil(t, withBoth)

		onlyOld, err := engine.GenerateStateRoot(11999999)
		assert.Nil(t, err)
		assert.NotNil(t, onlyOld)
		assert.NotEqual(t, withBoth, onlyOld)
	})
}
