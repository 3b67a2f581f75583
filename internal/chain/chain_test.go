package chain

import (
	"io"
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_NormalizeAddress(t *testing.T) {
	t.Run("Checksummed input lower-cases", func(t *testing.T) {
		assert.Equal(t,
			"0x19d3364a399d251e894ac732651be8b0e4e85001",
			NormalizeAddress("0x19D3364A399d251E894aC732651be8B0E4e85001"),
		)
	})

	t.Run("Empty input is the zero address", func(t *testing.T) {
		assert.Equal(t, ZeroAddress, NormalizeAddress(""))
	})

	t.Run("IsZeroAddress", func(t *testing.T) {
		assert.True(t, IsZeroAddress(ZeroAddress))
		assert.True(t, IsZeroAddress(""))
		assert.False(t, IsZeroAddress("0x19d3364a399d251e894ac732651be8b0e4e85001"))
	})
}

func Test_Params(t *testing.T) {
	t.Run("BigParam accepts strings, uint64 and big.Int", func(t *testing.T) {
		params := map[string]interface{}{
			"a": "79056085",
			"b": uint64(42),
			"c": big.NewInt(7),
		}
		for name, want := range map[string]string{"a": "79056085", "b": "42", "c": "7"} {
			n, err := BigParam(params, name)
			assert.Nil(t, err)
			assert.Equal(t, want, n.String())
		}
	})

	t.Run("BigParam rejects missing and malformed values", func(t *testing.T) {
		_, err := BigParam(map[string]interface{}{}, "missing")
		assert.NotNil(t, err)
		_, err = BigParam(map[string]interface{}{"x": "12.5"}, "x")
		assert.NotNil(t, err)
		_, err = BigParam(map[string]interface{}{"x": 12.5}, "x")
		assert.NotNil(t, err)
	})

	t.Run("AddressParam normalizes", func(t *testing.T) {
		a, err := AddressParam(map[string]interface{}{
			"strategy": "0x4031AFd3B0F71Bace9181E554A9E680Ee4AbE7dF",
		}, "strategy")
		assert.Nil(t, err)
		assert.Equal(t, "0x4031afd3b0f71bace9181e554a9e680ee4abe7df", a)
	})

	t.Run("AddressListParam normalizes every element", func(t *testing.T) {
		list, err := AddressListParam(map[string]interface{}{
			"queue": []string{
				"0x4031AFd3B0F71Bace9181E554A9E680Ee4AbE7dF",
				"0x19D3364A399d251E894aC732651be8B0E4e85001",
			},
		}, "queue")
		assert.Nil(t, err)
		assert.Equal(t, []string{
			"0x4031afd3b0f71bace9181e554a9e680ee4abe7df",
			"0x19d3364a399d251e894ac732651be8b0e4e85001",
		}, list)
	})

	t.Run("MaxUint256 sentinel", func(t *testing.T) {
		n, err := BigParam(map[string]interface{}{
			"_amount": "115792089237316195423570985008687907853269984665640564039457584007913129639935",
		}, "_amount")
		assert.Nil(t, err)
		assert.Equal(t, 0, n.Cmp(MaxUint256))
	})
}

func Test_TimestampMillis(t *testing.T) {
	e := &Event{BlockTimestamp: 1609502400}
	assert.Equal(t, uint64(1609502400000), e.TimestampMillis())

	c := &Call{BlockTimestamp: 1609502400}
	assert.Equal(t, uint64(1609502400000), c.TimestampMillis())
}

func Test_FeedReader(t *testing.T) {
	t.Run("Decodes events and calls, normalizing addresses", func(t *testing.T) {
		stream := strings.Join([]string{
			`{"kind":"event","event":{"contractAddress":"0x19D3364A399d251E894aC732651be8B0E4e85001","blockNumber":12,"blockTimestamp":1609502400,"transactionHash":"0xabc","transactionIndex":3,"logIndex":1,"name":"Deposit","params":{"shares":79056085,"recipient":"0xFEB4acf3df3cDEA7399794D0869ef76A6EfAff52"}}}`,
			`{"kind":"call","call":{"contractAddress":"0x19d3364a399d251e894ac732651be8b0e4e85001","caller":"0xFEB4acf3df3cDEA7399794D0869ef76A6EfAff52","blockNumber":12,"blockTimestamp":1609502400,"transactionHash":"0xdef","transactionIndex":4,"name":"deposit","inputs":{"_amount":"79056085"},"outputs":{"shares":"79056085"}}}`,
		}, "\n")

		fr := NewFeedReader(strings.NewReader(stream))

		record, err := fr.Next()
		assert.Nil(t, err)
		assert.Equal(t, RecordKind_Event, record.Kind)
		assert.Equal(t, "0x19d3364a399d251e894ac732651be8b0e4e85001", record.Event.ContractAddress)

		// Unquoted JSON numbers arrive as json.Number and parse losslessly.
		shares, err := BigParam(record.Event.Params, "shares")
		assert.Nil(t, err)
		assert.Equal(t, "79056085", shares.String())

		record, err = fr.Next()
		assert.Nil(t, err)
		assert.Equal(t, RecordKind_Call, record.Kind)
		assert.Equal(t, "0xfeb4acf3df3cdea7399794d0869ef76a6efaff52", record.Call.Caller)

		_, err = fr.Next()
		assert.Equal(t, io.EOF, err)
	})

	t.Run("Rejects unknown record kinds", func(t *testing.T) {
		fr := NewFeedReader(strings.NewReader(`{"kind":"block"}`))
		_, err := fr.Next()
		assert.NotNil(t, err)
	})

	t.Run("Rejects kind and payload mismatch", func(t *testing.T) {
		fr := NewFeedReader(strings.NewReader(`{"kind":"event"}`))
		_, err := fr.Next()
		assert.NotNil(t, err)
	})
}
