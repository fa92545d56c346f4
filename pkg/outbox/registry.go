package outbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/angelmondragon/sourcing-engine/pkg/enums"
)

// ErrNoDecoder is returned for an event type and version nobody registered.
// Such rows can never be delivered.
var ErrNoDecoder = errors.New("outbox: no decoder registered")

// Decoder turns the data of one envelope version into a typed event.
type Decoder func(payload json.RawMessage) (any, error)

type registryKey struct {
	eventType enums.OutboxEventType
	version   int
}

// DecoderRegistry maps event type and envelope version to a payload decoder.
type DecoderRegistry struct {
	mu       sync.RWMutex
	decoders map[registryKey]Decoder
}

func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{decoders: make(map[registryKey]Decoder)}
}

// Register adds a decoder. Unknown event types, versions below one and a
// second decoder for the same pair are refused.
func (r *DecoderRegistry) Register(eventType enums.OutboxEventType, version int, decoder Decoder) error {
	if !eventType.IsValid() {
		return fmt.Errorf("outbox: unknown event type %q", eventType)
	}
	if version < 1 {
		return fmt.Errorf("outbox: invalid version %d for %s", version, eventType)
	}
	if decoder == nil {
		return fmt.Errorf("outbox: nil decoder for %s@v%d", eventType, version)
	}
	key := registryKey{eventType: eventType, version: version}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.decoders[key]; exists {
		return fmt.Errorf("outbox: decoder for %s@v%d already registered", eventType, version)
	}
	r.decoders[key] = decoder
	return nil
}

// RegisterJSON registers a decoder that unmarshals the data into T and
// returns it by value.
func RegisterJSON[T any](r *DecoderRegistry, eventType enums.OutboxEventType, version int) error {
	return r.Register(eventType, version, func(payload json.RawMessage) (any, error) {
		var event T
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, fmt.Errorf("decode %s@v%d: %w", eventType, version, err)
		}
		return event, nil
	})
}

func (r *DecoderRegistry) Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (any, error) {
	r.mu.RLock()
	decoder, ok := r.decoders[registryKey{eventType: eventType, version: version}]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w for %s@v%d", ErrNoDecoder, eventType, version)
	}
	return decoder(payload)
}
