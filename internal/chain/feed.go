package chain

import (
	"encoding/json"
	"io"

	"golang.org/x/xerrors"
)

const (
	RecordKind_Event = "event"
	RecordKind_Call  = "call"
)

// Record is one line of the newline-delimited JSON feed an external
// extractor produces. Exactly one of Event or Call is set, per Kind.
type Record struct {
	Kind  string `json:"kind"`
	Event *Event `json:"event,omitempty"`
	Call  *Call  `json:"call,omitempty"`
}

// FeedReader decodes the record stream. Addresses are normalized here so
// that nothing downstream ever sees a mixed-case or unprefixed address.
type FeedReader struct {
	decoder *json.Decoder
}

func NewFeedReader(r io.Reader) *FeedReader {
	decoder := json.NewDecoder(r)
	decoder.UseNumber()
	return &FeedReader{decoder: decoder}
}

// Next returns the next record, or io.EOF once the stream is exhausted.
func (fr *FeedReader) Next() (*Record, error) {
	record := &Record{}
	if err := fr.decoder.Decode(record); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, xerrors.Errorf("failed to decode feed record: %w", err)
	}

	switch record.Kind {
	case RecordKind_Event:
		if record.Event == nil {
			return nil, xerrors.Errorf("event record carries no event")
		}
		record.Event.ContractAddress = NormalizeAddress(record.Event.ContractAddress)
		record.Event.TransactionFrom = NormalizeAddress(record.Event.TransactionFrom)
		record.Event.TransactionTo = NormalizeAddress(record.Event.TransactionTo)
	case RecordKind_Call:
		if record.Call == nil {
			return nil, xerrors.Errorf("call record carries no call")
		}
		record.Call.ContractAddress = NormalizeAddress(record.Call.ContractAddress)
		record.Call.Caller = NormalizeAddress(record.Call.Caller)
	default:
		return nil, xerrors.Errorf("unknown record kind '%s'", record.Kind)
	}
	return record, nil
}
