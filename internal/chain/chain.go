package chain

import (
	"encoding/json"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/xerrors"
)

const ZeroAddress = "0x0000000000000000000000000000000000000000"

// MaxUint256 is used by legacy vault deposit calls as a "deposit everything"
// sentinel. Handlers must never store it as a literal amount.
var MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// NormalizeAddress lower-cases a hex address exactly once at the ingestion
// boundary. Every identity key downstream assumes this has already happened.
func NormalizeAddress(addr string) string {
	if addr == "" {
		return ZeroAddress
	}
	return strings.ToLower(common.HexToAddress(addr).Hex())
}

func IsZeroAddress(addr string) bool {
	return addr == "" || NormalizeAddress(addr) == ZeroAddress
}

// Event is one decoded contract log, produced by the subscription/ABI layer.
// BlockTimestamp is in chain seconds; entity timestamps are milliseconds.
type Event struct {
	ContractAddress  string                 `json:"contractAddress"`
	BlockNumber      uint64                 `json:"blockNumber"`
	BlockTimestamp   uint64                 `json:"blockTimestamp"`
	TransactionHash  string                 `json:"transactionHash"`
	TransactionIndex uint64                 `json:"transactionIndex"`
	LogIndex         uint64                 `json:"logIndex"`
	TransactionFrom  string                 `json:"transactionFrom"`
	TransactionTo    string                 `json:"transactionTo"`
	Name             string                 `json:"name"`
	Params           map[string]interface{} `json:"params"`
}

func (e *Event) TimestampMillis() uint64 {
	return e.BlockTimestamp * 1000
}

// Call is one decoded contract call. Calls have no log index of their own;
// handlers that need one use zero.
type Call struct {
	ContractAddress  string                 `json:"contractAddress"`
	Caller           string                 `json:"caller"`
	BlockNumber      uint64                 `json:"blockNumber"`
	BlockTimestamp   uint64                 `json:"blockTimestamp"`
	TransactionHash  string                 `json:"transactionHash"`
	TransactionIndex uint64                 `json:"transactionIndex"`
	Name             string                 `json:"name"`
	Inputs           map[string]interface{} `json:"inputs"`
	Outputs          map[string]interface{} `json:"outputs"`
}

func (c *Call) TimestampMillis() uint64 {
	return c.BlockTimestamp * 1000
}

func BigParam(params map[string]interface{}, name string) (*big.Int, error) {
	raw, ok := params[name]
	if !ok {
		return nil, xerrors.Errorf("missing big param '%s'", name)
	}
	switch v := raw.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case string:
		n, ok := new(big.Int).SetString(v, 10)
		if !ok {
			return nil, xerrors.Errorf("param '%s' is not a base-10 integer: '%s'", name, v)
		}
		return n, nil
	case json.Number:
		n, ok := new(big.Int).SetString(v.String(), 10)
		if !ok {
			return nil, xerrors.Errorf("param '%s' is not a base-10 integer: '%s'", name, v.String())
		}
		return n, nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	default:
		return nil, xerrors.Errorf("param '%s' has unsupported type %T", name, raw)
	}
}

func AddressParam(params map[string]interface{}, name string) (string, error) {
	raw, ok := params[name]
	if !ok {
		return "", xerrors.Errorf("missing address param '%s'", name)
	}
	s, ok := raw.(string)
	if !ok {
		return "", xerrors.Errorf("param '%s' has unsupported type %T", name, raw)
	}
	return NormalizeAddress(s), nil
}

func StringParam(params map[string]interface{}, name string) (string, error) {
	raw, ok := params[name]
	if !ok {
		return "", xerrors.Errorf("missing string param '%s'", name)
	}
	s, ok := raw.(string)
	if !ok {
		return "", xerrors.Errorf("param '%s' has unsupported type %T", name, raw)
	}
	return s, nil
}

func BoolParam(params map[string]interface{}, name string) (bool, error) {
	raw, ok := params[name]
	if !ok {
		return false, xerrors.Errorf("missing bool param '%s'", name)
	}
	b, ok := raw.(bool)
	if !ok {
		return false, xerrors.Errorf("param '%s' has unsupported type %T", name, raw)
	}
	return b, nil
}

func AddressListParam(params map[string]interface{}, name string) ([]string, error) {
	raw, ok := params[name]
	if !ok {
		return nil, xerrors.Errorf("missing address list param '%s'", name)
	}
	switch list := raw.(type) {
	case []string:
		normalized := make([]string, 0, len(list))
		for _, a := range list {
			normalized = append(normalized, NormalizeAddress(a))
		}
		return normalized, nil
	case []interface{}:
		normalized := make([]string, 0, len(list))
		for _, item := range list {
			a, ok := item.(string)
			if !ok {
				return nil, xerrors.Errorf("param '%s' element has unsupported type %T", name, item)
			}
			normalized = append(normalized, NormalizeAddress(a))
		}
		return normalized, nil
	default:
		return nil, xerrors.Errorf("param '%s' has unsupported type %T", name, raw)
	}
}

func HasParam(params map[string]interface{}, name string) bool {
	_, ok := params[name]
	return ok
}
