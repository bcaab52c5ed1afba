package rtmp

import (
	"bytes"
	"errors"
	"fmt"
	"relay/pkg/amf"

	"github.com/mitchellh/mapstructure"
	"github.com/yutopp/go-amf0"
)

const setDataFrame = "@setDataFrame"

// stripSetDataFrame drops the "@setDataFrame" wrapper encoders put in front
// of onMetaData, so players get the plain script tag.
func stripSetDataFrame(payload []byte) []byte {
	v, n, err := amf.DecodeAMF0(payload)
	if err != nil {
		return payload
	}
	if name, ok := v.(string); ok && name == setDataFrame {
		return payload[n:]
	}
	return payload
}

// Metadata is the subset of onMetaData worth logging.
type Metadata struct {
	Width           float64 `mapstructure:"width"`
	Height          float64 `mapstructure:"height"`
	FrameRate       float64 `mapstructure:"framerate"`
	VideoCodecID    string  `mapstructure:"videocodecid"`
	VideoDataRate   float64 `mapstructure:"videodatarate"`
	AudioCodecID    string  `mapstructure:"audiocodecid"`
	AudioDataRate   float64 `mapstructure:"audiodatarate"`
	AudioSampleRate float64 `mapstructure:"audiosamplerate"`
	Stereo          bool    `mapstructure:"stereo"`
	Duration        float64 `mapstructure:"duration"`
	Encoder         string  `mapstructure:"encoder"`
}

// decodeMetadata decodes a script tag body (name followed by an object or
// ECMA array) into Metadata.
func decodeMetadata(payload []byte) (string, *Metadata, error) {
	// go-amf0 재귀에는 깊이 제한이 없으므로 먼저 걸러낸다
	if _, err := amf.DecodeAMF0Sequence(payload); errors.Is(err, amf.ErrNestingTooDeep) {
		return "", nil, fmt.Errorf("script tag: %w", err)
	}

	dec := amf0.NewDecoder(bytes.NewReader(payload))

	var name string
	if err := dec.Decode(&name); err != nil {
		return "", nil, fmt.Errorf("script tag name: %w", err)
	}

	var object interface{}
	if err := dec.Decode(&object); err != nil {
		return name, nil, fmt.Errorf("script tag %s body: %w", name, err)
	}

	md := &Metadata{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           md,
	})
	if err != nil {
		return name, nil, err
	}
	if err := decoder.Decode(object); err != nil {
		return name, nil, fmt.Errorf("script tag %s: %w", name, err)
	}
	return name, md, nil
}
