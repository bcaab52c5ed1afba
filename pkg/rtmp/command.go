package rtmp

import (
	"fmt"
	"relay/pkg/amf"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// command is a decoded AMF0 invoke: name, transaction id, command object and
// the positional arguments that follow it.
type command struct {
	name          string
	transactionID float64
	object        map[string]any
	args          []any
}

// decodeCommand decodes an invoke payload. On a decode error it still returns
// whatever could be decoded so the handler can answer with a failure status.
func decodeCommand(payload []byte) (*command, error) {
	values, decodeErr := amf.DecodeAMF0Sequence(payload)
	if len(values) == 0 {
		if decodeErr == nil {
			decodeErr = ErrMissingCommandName
		}
		return nil, decodeErr
	}

	name, ok := values[0].(string)
	if !ok {
		return nil, fmt.Errorf("%w: got %T", ErrMissingCommandName, values[0])
	}

	cmd := &command{name: name}
	if len(values) > 1 {
		if id, ok := values[1].(float64); ok {
			cmd.transactionID = id
		}
	}
	if len(values) > 2 {
		cmd.object, _ = values[2].(map[string]any)
	}
	if len(values) > 3 {
		cmd.args = values[3:]
	}
	return cmd, decodeErr
}

func (c *command) stringArg(i int) (string, bool) {
	if i >= len(c.args) {
		return "", false
	}
	s, ok := c.args[i].(string)
	return s, ok
}

func (c *command) boolArg(i int, def bool) bool {
	if i >= len(c.args) {
		return def
	}
	if b, ok := c.args[i].(bool); ok {
		return b
	}
	return def
}

// ConnectInfo is the command object of connect.
type ConnectInfo struct {
	App            string  `mapstructure:"app"`
	Type           string  `mapstructure:"type"`
	FlashVer       string  `mapstructure:"flashVer"`
	SwfURL         string  `mapstructure:"swfUrl"`
	TcURL          string  `mapstructure:"tcUrl"`
	PageURL        string  `mapstructure:"pageUrl"`
	Fpad           bool    `mapstructure:"fpad"`
	Capabilities   float64 `mapstructure:"capabilities"`
	AudioCodecs    float64 `mapstructure:"audioCodecs"`
	VideoCodecs    float64 `mapstructure:"videoCodecs"`
	VideoFunction  float64 `mapstructure:"videoFunction"`
	ObjectEncoding float64 `mapstructure:"objectEncoding"`
}

func decodeConnectInfo(object map[string]any) (*ConnectInfo, error) {
	if object == nil {
		return nil, fmt.Errorf("connect: command object missing")
	}

	info := &ConnectInfo{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           info,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(object); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	// 일부 클라이언트는 app 뒤에 '/' 를 붙인다
	info.App = strings.Trim(info.App, "/")
	return info, nil
}

// streamKey builds the registry key app/name, dropping any ?query suffix.
func streamKey(app, name string) string {
	if i := strings.IndexByte(name, '?'); i >= 0 {
		name = name[:i]
	}
	return app + "/" + name
}
