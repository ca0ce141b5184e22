package nrepl

import (
	"github.com/oconnor0/tutkain/pkg/util/typeutil"
)

// 响应中出现的状态标记。
const (
	// StatusDone 表示某操作的响应流已经结束。
	StatusDone = "done"
	// StatusSessionClosed 表示远端会话已经完全关闭。
	// 与 StatusDone 同时出现时构成会话关闭握手的确认。
	StatusSessionClosed = "session-closed"
)

// Operation 表示一条出站请求。
// 至少携带 "op" 字段；发送前会被盖戳（session、id 和协议标志）。
type Operation map[string]any

// Op 返回操作的动词。
func (o Operation) Op() string {
	op, _ := o["op"].(string)
	return op
}

// Response 表示一条入站消息。
// 字段均为 bencode 解码结果：string、int64、[]any 或嵌套 map[string]any。
type Response map[string]any

// Session 返回响应所属的会话 id，没有时为空字符串。
func (r Response) Session() string {
	id, _ := r["session"].(string)
	return id
}

// ID 返回响应关联的操作 id。
// 第二个返回值为 false 表示响应不携带 id。
func (r Response) ID() (int64, bool) {
	id, ok := r["id"].(int64)
	return id, ok
}

// Status 将响应的 status 字段解析为字符串集合。
func (r Response) Status() typeutil.Set[string] {
	status := typeutil.NewSet[string]()
	tokens, ok := r["status"].([]any)
	if !ok {
		return status
	}
	for _, token := range tokens {
		if s, ok := token.(string); ok {
			status.Insert(s)
		}
	}
	return status
}

// HasStatus 判断响应的 status 是否包含所有给定的状态标记。
// 按集合包含判断，不要求顺序，也允许额外的标记。
func (r Response) HasStatus(tokens ...string) bool {
	return r.Status().Contain(tokens...)
}

// NewSession 返回 clone 响应中的新会话 id。
func (r Response) NewSession() (string, bool) {
	id, ok := r["new-session"].(string)
	return id, ok
}
