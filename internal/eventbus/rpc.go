package eventbus

import (
	"encoding/json"
	"errors"
	"io"
)

const jsonRpcVersion = "2.0"

type Method string

const (
	PlaybackEventMethod  Method = "playback_event"
	HeartbeatMethod      Method = "heartbeat"
	ToggleTalkbackMethod Method = "toggle_talkback"
	StopSessionMethod    Method = "stop_session"
	AdvanceBlockMethod   Method = "advance_block"
	ChatMessageMethod    Method = "chat_message"
)

var (
	ErrUnknownRpcType = errors.New("unknown RPC type")
	ErrMalformedRpc   = errors.New("malformed RPC")
)

type Rpc interface {
	GetMethod() Method
	ToJSON() ([]byte, error)
}

type jsonRpcHead struct {
	Version string `json:"jsonrpc"`
	Method  Method `json:"method"`
}

type jsonRpc struct {
	jsonRpcHead
	Params map[string]interface{} `json:"params"`
}

// PlaybackParams carries a host play/pause/seek. Nil fields stay unchanged.
type PlaybackParams struct {
	IsPlaying *bool    `json:"is_playing,omitempty"`
	Position  *float64 `json:"position,omitempty"`
}

type PlaybackEventRpc struct {
	jsonRpcHead
	Params *PlaybackParams `json:"params"`
}

func NewPlaybackEventRpc(params *PlaybackParams) *PlaybackEventRpc {
	return &PlaybackEventRpc{
		jsonRpcHead: jsonRpcHead{Version: jsonRpcVersion, Method: PlaybackEventMethod},
		Params:      params,
	}
}

func (r PlaybackEventRpc) GetMethod() Method {
	return r.Method
}

func (r PlaybackEventRpc) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

type HeartbeatParams struct {
	Position float64 `json:"position"`
}

type HeartbeatRpc struct {
	jsonRpcHead
	Params *HeartbeatParams `json:"params"`
}

func NewHeartbeatRpc(position float64) *HeartbeatRpc {
	return &HeartbeatRpc{
		jsonRpcHead: jsonRpcHead{Version: jsonRpcVersion, Method: HeartbeatMethod},
		Params:      &HeartbeatParams{Position: position},
	}
}

func (r HeartbeatRpc) GetMethod() Method {
	return r.Method
}

func (r HeartbeatRpc) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

type ToggleTalkbackRpc struct {
	jsonRpcHead
	Params interface{} `json:"params"`
}

func NewToggleTalkbackRpc() *ToggleTalkbackRpc {
	return &ToggleTalkbackRpc{
		jsonRpcHead: jsonRpcHead{Version: jsonRpcVersion, Method: ToggleTalkbackMethod},
	}
}

func (r ToggleTalkbackRpc) GetMethod() Method {
	return r.Method
}

func (r ToggleTalkbackRpc) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

type StopSessionRpc struct {
	jsonRpcHead
	Params interface{} `json:"params"`
}

func NewStopSessionRpc() *StopSessionRpc {
	return &StopSessionRpc{
		jsonRpcHead: jsonRpcHead{Version: jsonRpcVersion, Method: StopSessionMethod},
	}
}

func (r StopSessionRpc) GetMethod() Method {
	return r.Method
}

func (r StopSessionRpc) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

type AdvanceBlockParams struct {
	BlockID string `json:"block_id"`
}

type AdvanceBlockRpc struct {
	jsonRpcHead
	Params *AdvanceBlockParams `json:"params"`
}

func NewAdvanceBlockRpc(blockID string) *AdvanceBlockRpc {
	return &AdvanceBlockRpc{
		jsonRpcHead: jsonRpcHead{Version: jsonRpcVersion, Method: AdvanceBlockMethod},
		Params:      &AdvanceBlockParams{BlockID: blockID},
	}
}

func (r AdvanceBlockRpc) GetMethod() Method {
	return r.Method
}

func (r AdvanceBlockRpc) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

type ChatMessageParams struct {
	Text string `json:"text"`
}

type ChatMessageRpc struct {
	jsonRpcHead
	Params *ChatMessageParams `json:"params"`
}

func NewChatMessageRpc(text string) *ChatMessageRpc {
	return &ChatMessageRpc{
		jsonRpcHead: jsonRpcHead{Version: jsonRpcVersion, Method: ChatMessageMethod},
		Params:      &ChatMessageParams{Text: text},
	}
}

func (r ChatMessageRpc) GetMethod() Method {
	return r.Method
}

func (r ChatMessageRpc) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

func RpcFromReader(reader io.Reader) (Rpc, error) {
	rpc := &jsonRpc{}

	err := json.NewDecoder(reader).Decode(rpc)
	if err != nil {
		return nil, err
	}

	params, err := json.Marshal(rpc.Params)
	if err != nil {
		return nil, err
	}

	switch rpc.Method {
	case PlaybackEventMethod:
		p := &PlaybackParams{}
		if err := json.Unmarshal(params, p); err != nil {
			return nil, err
		}
		return NewPlaybackEventRpc(p), nil
	case HeartbeatMethod:
		p := &HeartbeatParams{}
		if err := json.Unmarshal(params, p); err != nil {
			return nil, err
		}
		return NewHeartbeatRpc(p.Position), nil
	case ToggleTalkbackMethod:
		return NewToggleTalkbackRpc(), nil
	case StopSessionMethod:
		return NewStopSessionRpc(), nil
	case AdvanceBlockMethod:
		p := &AdvanceBlockParams{}
		if err := json.Unmarshal(params, p); err != nil {
			return nil, err
		}
		return NewAdvanceBlockRpc(p.BlockID), nil
	case ChatMessageMethod:
		p := &ChatMessageParams{}
		if err := json.Unmarshal(params, p); err != nil {
			return nil, err
		}
		return NewChatMessageRpc(p.Text), nil
	default:
		return nil, ErrUnknownRpcType
	}
}
