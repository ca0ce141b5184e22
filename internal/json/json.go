package json

import (
	"io"

	"github.com/bytedance/sonic"
)

// 基于 bytedance/sonic 的 JSON 编解码封装。
// 保持与标准库 encoding/json 相同的调用方式，便于统一替换实现。
var (
	api = sonic.ConfigStd

	Marshal       = api.Marshal
	Unmarshal     = api.Unmarshal
	MarshalIndent = api.MarshalIndent
)

// NewEncoder 返回写入 w 的 JSON 编码器。
func NewEncoder(w io.Writer) sonic.Encoder {
	return api.NewEncoder(w)
}

// NewDecoder 返回从 r 读取的 JSON 解码器。
func NewDecoder(r io.Reader) sonic.Decoder {
	return api.NewDecoder(r)
}
