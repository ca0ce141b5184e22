package nrepl

import (
	"github.com/blang/semver/v4"
	"github.com/samber/lo"

	"github.com/oconnor0/tutkain/pkg/util/merr"
	"github.com/oconnor0/tutkain/pkg/util/typeutil"
)

// 常用操作的构造函数。
// 构造出的操作尚未盖戳，经 Session.Send 发送时才会携带会话 id 和
// 操作 id。

// Clone 构造一个创建新会话的操作。
func Clone() Operation {
	return Operation{"op": "clone"}
}

// Close 构造一个关闭会话的操作。
func Close() Operation {
	return Operation{"op": "close"}
}

// Eval 构造一个求值操作。
func Eval(code string) Operation {
	return Operation{"op": "eval", "code": code}
}

// EvalWith 构造一个携带源位置信息的求值操作。
// ns 和 file 为空、line 和 column 为零时省略对应字段。
func EvalWith(code, ns, file string, line, column int) Operation {
	op := Eval(code)
	if ns != "" {
		op["ns"] = ns
	}
	if file != "" {
		op["file"] = file
	}
	if line > 0 {
		op["line"] = line
	}
	if column > 0 {
		op["column"] = column
	}
	return op
}

// LoadFile 构造一个整文件加载操作。
func LoadFile(path, name, contents string) Operation {
	return Operation{
		"op":        "load-file",
		"file":      contents,
		"file-name": name,
		"file-path": path,
	}
}

// Describe 构造一个能力探测操作。
func Describe() Operation {
	return Operation{"op": "describe"}
}

// Interrupt 构造一个中断指定操作的请求。
func Interrupt(id int64) Operation {
	return Operation{"op": "interrupt", "interrupt-id": id}
}

// Stdin 构造一个向远端标准输入写入的操作。
func Stdin(input string) Operation {
	return Operation{"op": "stdin", "stdin": input}
}

// ServerInfo 描述远端求值器通过 describe 响应暴露的能力。
type ServerInfo struct {
	// Ops 为远端支持的操作集合。
	Ops typeutil.Set[string]
	// Versions 为各组件的版本号，key 为组件名（如 nrepl、clojure）。
	// 仅收录能够按语义化版本解析的条目。
	Versions map[string]semver.Version
}

// Supports 判断远端是否支持给定操作。
func (info *ServerInfo) Supports(op string) bool {
	return info.Ops.Contain(op)
}

// ParseServerInfo 从 describe 响应中提取远端能力信息。
func ParseServerInfo(resp Response) (*ServerInfo, error) {
	ops, ok := resp["ops"].(map[string]any)
	if !ok {
		return nil, merr.WrapErrResponseMissing("ops")
	}

	info := &ServerInfo{
		Ops:      typeutil.NewSet(lo.Keys(ops)...),
		Versions: make(map[string]semver.Version),
	}

	versions, _ := resp["versions"].(map[string]any)
	for name, raw := range versions {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		str, ok := entry["version-string"].(string)
		if !ok {
			continue
		}
		v, err := semver.ParseTolerant(str)
		if err != nil {
			continue
		}
		info.Versions[name] = v
	}

	return info, nil
}
