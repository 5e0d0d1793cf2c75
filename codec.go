package xevent

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Codec is the Strategy for encoding payloads of failed events for dead-letter
// storage.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// JSONCodec is the default JSON implementation.
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error)   { return json.Marshal(v) }
func (JSONCodec) Unmarshal(b []byte, v any) error { return json.Unmarshal(b, v) }
func (JSONCodec) Name() string                    { return "json" }

// CodecFactory builds a codec for a registered name.
type CodecFactory func() Codec

// codecs maps the name stored in FailureRecord.Codec to its factory, so a
// record can be decoded by a process other than the one that wrote it.
var codecs = struct {
	sync.RWMutex
	byName map[string]CodecFactory
}{byName: map[string]CodecFactory{
	JSONCodec{}.Name(): func() Codec { return JSONCodec{} },
}}

// RegisterCodec makes a codec available to NewCodec and DecodePayload under
// name, replacing any previous registration.
func RegisterCodec(name string, factory CodecFactory) error {
	if name == "" || factory == nil {
		return fmt.Errorf("%w: codec needs a name and a factory", ErrInvalidConfig)
	}
	codecs.Lock()
	codecs.byName[name] = factory
	codecs.Unlock()
	return nil
}

// NewCodec returns the codec registered as name. An empty name is JSON.
func NewCodec(name string) (Codec, error) {
	if name == "" {
		return JSONCodec{}, nil
	}
	codecs.RLock()
	f, ok := codecs.byName[name]
	codecs.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
	return f(), nil
}

// DecodePayload unmarshals a stored failure payload into T. A nil c selects the
// codec named by rec.Codec.
func DecodePayload[T any](c Codec, rec FailureRecord) (T, error) {
	var v T
	if c == nil {
		var err error
		if c, err = NewCodec(rec.Codec); err != nil {
			return v, err
		}
	}
	if err := c.Unmarshal(rec.Payload, &v); err != nil {
		return v, fmt.Errorf("decode %s payload: %w", c.Name(), err)
	}
	return v, nil
}
