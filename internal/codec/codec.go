package codec

import (
	"encoding/json"

	"github.com/Shopify/touchbuttons/internal/layout"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	PositionField = "position"
	SizeField     = "size"

	vector2TupleLen = 2
	udim2TupleLen   = 4
)

// SerializedButtonConfig maps field name -> flattened numeric tuple.
type SerializedButtonConfig map[string][]float64

// SerializedConfigEntry is the storage-safe form of a layout.ConfigEntry.
type SerializedConfigEntry map[string]SerializedButtonConfig

// EncodeValue flattens a Vector2 to [x, y] and a UDim2 to [xs, xo, ys, yo].
func EncodeValue(v interface{}) ([]float64, bool) {
	switch val := v.(type) {
	case layout.Vector2:
		return []float64{val.X, val.Y}, true
	case layout.UDim2:
		return []float64{val.X.Scale, val.X.Offset, val.Y.Scale, val.Y.Offset}, true
	default:
		return nil, false
	}
}

// DecodeValue dispatches on tuple length to rebuild the encoded geometry type.
func DecodeValue(tuple []float64) (interface{}, bool) {
	switch len(tuple) {
	case vector2TupleLen:
		return layout.Vector2{X: tuple[0], Y: tuple[1]}, true
	case udim2TupleLen:
		return layout.NewUDim2(tuple[0], tuple[1], tuple[2], tuple[3]), true
	default:
		return nil, false
	}
}

func Serialize(entry layout.ConfigEntry) SerializedConfigEntry {
	res := make(SerializedConfigEntry, len(entry))
	for buttonName, cfg := range entry {
		pos, _ := EncodeValue(cfg.Position)
		size, _ := EncodeValue(cfg.Size)
		res[buttonName] = SerializedButtonConfig{PositionField: pos, SizeField: size}
	}
	return res
}

// Deserialize drops any field whose tuple length does not match a known type.
func Deserialize(blob SerializedConfigEntry) layout.ConfigEntry {
	res := make(layout.ConfigEntry, len(blob))
	for buttonName, fields := range blob {
		var cfg layout.ButtonConfig
		for field, tuple := range fields {
			val, ok := DecodeValue(tuple)
			if !ok {
				log.Debug().Str("button", buttonName).Str("field", field).Int("len", len(tuple)).
					Msg("dropping malformed config tuple")
				continue
			}
			dim := asUDim2(val)
			switch field {
			case PositionField:
				cfg.Position = dim
			case SizeField:
				cfg.Size = dim
			}
		}
		res[buttonName] = cfg
	}
	return res
}

// A Vector2 in a UDim2 slot carries pixels only.
func asUDim2(v interface{}) layout.UDim2 {
	switch val := v.(type) {
	case layout.UDim2:
		return val
	case layout.Vector2:
		return layout.FromOffset(val.X, val.Y)
	}
	return layout.UDim2{}
}

// EncodeBlob renders the serialized entry as the byte payload handed to durable stores.
func EncodeBlob(entry layout.ConfigEntry) ([]byte, error) {
	b, err := json.Marshal(Serialize(entry))
	if err != nil {
		return nil, errors.Wrap(err, "encode config entry")
	}
	return b, nil
}

func DecodeBlob(b []byte) (layout.ConfigEntry, error) {
	if len(b) == 0 {
		return layout.ConfigEntry{}, nil
	}
	var blob SerializedConfigEntry
	if err := json.Unmarshal(b, &blob); err != nil {
		return nil, errors.Wrap(err, "decode config entry")
	}
	return Deserialize(blob), nil
}
