package protocol

import (
	"bytes"
	"os"
	"sort"

	"github.com/ajitpratap0/nebula-source-s3/pkg/errors"
	jsonpool "github.com/ajitpratap0/nebula-source-s3/pkg/json"
)

// ReadConfiguredCatalog loads a configured catalog from a JSON file
func ReadConfiguredCatalog(path string) (*ConfiguredCatalog, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the --catalog flag
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeCatalog, "failed to read catalog file")
	}

	var catalog ConfiguredCatalog
	if err := jsonpool.Unmarshal(data, &catalog); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeCatalog, "failed to parse catalog file")
	}
	for i, s := range catalog.Streams {
		if s.Stream.Name == "" {
			return nil, errors.Newf(errors.ErrorTypeCatalog, "catalog stream %d has no name", i)
		}
	}
	return &catalog, nil
}

// ReadState loads per-stream checkpoints from a JSON file
func ReadState(path string) ([]StateMessage, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the --state flag
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeState, "failed to read state file")
	}
	return ParseState(data)
}

// ParseState accepts a list of state messages, a single state message or a
// legacy object keyed by stream name. Legacy objects are converted to one
// STREAM message per key, ordered by name.
func ParseState(data []byte) ([]StateMessage, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}

	if data[0] == '[' {
		var msgs []StateMessage
		if err := jsonpool.UnmarshalNumber(data, &msgs); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeState, "failed to parse state list")
		}
		return normalizeState(msgs)
	}

	var obj map[string]interface{}
	if err := jsonpool.UnmarshalNumber(data, &obj); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeState, "failed to parse state")
	}

	if _, ok := obj["type"]; ok {
		var msg StateMessage
		if err := jsonpool.UnmarshalNumber(data, &msg); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeState, "failed to parse state message")
		}
		return normalizeState([]StateMessage{msg})
	}

	names := make([]string, 0, len(obj))
	for name := range obj {
		names = append(names, name)
	}
	sort.Strings(names)

	msgs := make([]StateMessage, 0, len(names))
	for _, name := range names {
		streamState, ok := obj[name].(map[string]interface{})
		if !ok {
			return nil, errors.Newf(errors.ErrorTypeState, "legacy state for stream %s is not an object", name)
		}
		msgs = append(msgs, StateMessage{
			Type: StateTypeStream,
			Stream: &StreamState{
				StreamDescriptor: StreamDescriptor{Name: name},
				StreamState:      streamState,
			},
		})
	}
	return msgs, nil
}

// normalizeState expands LEGACY messages carrying a data object into
// per-stream messages and rejects GLOBAL state, which file sources never emit.
func normalizeState(msgs []StateMessage) ([]StateMessage, error) {
	out := make([]StateMessage, 0, len(msgs))
	for _, msg := range msgs {
		switch {
		case msg.Type == StateTypeGlobal:
			return nil, errors.New(errors.ErrorTypeState, "global state is not supported")
		case msg.Stream != nil:
			msg.Type = StateTypeStream
			out = append(out, msg)
		case msg.Data != nil:
			raw, err := jsonpool.Marshal(msg.Data)
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeState, "failed to re-encode legacy state")
			}
			legacy, err := ParseState(raw)
			if err != nil {
				return nil, err
			}
			out = append(out, legacy...)
		}
	}
	return out, nil
}
