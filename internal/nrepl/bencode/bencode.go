// Package bencode 实现 nREPL 使用的 bencode 编解码。
//
// 支持的类型映射：
//   - 整数   <-> int64
//   - 字符串 <-> string
//   - 列表   <-> []any
//   - 字典   <-> map[string]any（key 按字典序编码）
package bencode

import (
	"bufio"
	"io"
	"sort"
	"strconv"

	"github.com/cockroachdb/errors"

	"github.com/oconnor0/tutkain/pkg/util/merr"
)

// maxStringLen 为单个字符串的最大长度，防止畸形长度前缀导致内存耗尽。
const maxStringLen = 64 << 20

// Encoder 将值按 bencode 格式写入底层 Writer。
type Encoder struct {
	w *bufio.Writer
}

// NewEncoder 创建一个写入 w 的 Encoder。
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: bufio.NewWriter(w)}
}

// Encode 编码一个值并刷新底层 Writer。
func (e *Encoder) Encode(v any) error {
	if err := e.encode(v); err != nil {
		return err
	}
	if err := e.w.Flush(); err != nil {
		return errors.Wrap(err, "bencode: flush")
	}
	return nil
}

func (e *Encoder) encode(v any) error {
	switch val := v.(type) {
	case string:
		return e.encodeString(val)
	case []byte:
		return e.encodeBytes(val)
	case int:
		return e.encodeInt(int64(val))
	case int32:
		return e.encodeInt(int64(val))
	case int64:
		return e.encodeInt(val)
	case uint:
		return e.encodeInt(int64(val))
	case uint32:
		return e.encodeInt(int64(val))
	case []any:
		return e.encodeList(val)
	case []string:
		items := make([]any, 0, len(val))
		for _, s := range val {
			items = append(items, s)
		}
		return e.encodeList(items)
	case map[string]any:
		return e.encodeDict(val)
	default:
		return merr.WrapErrParameterInvalidMsg("bencode: unsupported type %T", v)
	}
}

func (e *Encoder) encodeInt(n int64) error {
	if err := e.w.WriteByte('i'); err != nil {
		return errors.Wrap(err, "bencode: write int")
	}
	if _, err := e.w.WriteString(strconv.FormatInt(n, 10)); err != nil {
		return errors.Wrap(err, "bencode: write int")
	}
	return errors.Wrap(e.w.WriteByte('e'), "bencode: write int")
}

func (e *Encoder) encodeString(s string) error {
	if _, err := e.w.WriteString(strconv.Itoa(len(s))); err != nil {
		return errors.Wrap(err, "bencode: write string")
	}
	if err := e.w.WriteByte(':'); err != nil {
		return errors.Wrap(err, "bencode: write string")
	}
	_, err := e.w.WriteString(s)
	return errors.Wrap(err, "bencode: write string")
}

func (e *Encoder) encodeBytes(b []byte) error {
	if _, err := e.w.WriteString(strconv.Itoa(len(b))); err != nil {
		return errors.Wrap(err, "bencode: write bytes")
	}
	if err := e.w.WriteByte(':'); err != nil {
		return errors.Wrap(err, "bencode: write bytes")
	}
	_, err := e.w.Write(b)
	return errors.Wrap(err, "bencode: write bytes")
}

func (e *Encoder) encodeList(items []any) error {
	if err := e.w.WriteByte('l'); err != nil {
		return errors.Wrap(err, "bencode: write list")
	}
	for _, item := range items {
		if err := e.encode(item); err != nil {
			return err
		}
	}
	return errors.Wrap(e.w.WriteByte('e'), "bencode: write list")
}

func (e *Encoder) encodeDict(dict map[string]any) error {
	if err := e.w.WriteByte('d'); err != nil {
		return errors.Wrap(err, "bencode: write dict")
	}

	keys := make([]string, 0, len(dict))
	for k := range dict {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := e.encodeString(k); err != nil {
			return err
		}
		if err := e.encode(dict[k]); err != nil {
			return err
		}
	}
	return errors.Wrap(e.w.WriteByte('e'), "bencode: write dict")
}

// Decoder 从底层 Reader 中读取 bencode 值。
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder 创建一个从 r 读取的 Decoder。
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Decode 阻塞读取一个完整的 bencode 值。
// 连接关闭时返回 io.EOF。
func (d *Decoder) Decode() (any, error) {
	return d.decode()
}

func (d *Decoder) decode() (any, error) {
	b, err := d.r.ReadByte()
	if err != nil {
		return nil, err
	}

	switch {
	case b == 'i':
		return d.decodeInt()
	case b == 'l':
		return d.decodeList()
	case b == 'd':
		return d.decodeDict()
	case b >= '0' && b <= '9':
		if err := d.r.UnreadByte(); err != nil {
			return nil, errors.Wrap(err, "bencode: unread")
		}
		return d.decodeString()
	default:
		return nil, merr.WrapErrProtocol(errors.Newf("bencode: unexpected byte %q", b))
	}
}

func (d *Decoder) decodeInt() (int64, error) {
	raw, err := d.r.ReadString('e')
	if err != nil {
		return 0, errors.Wrap(err, "bencode: read int")
	}
	n, err := strconv.ParseInt(raw[:len(raw)-1], 10, 64)
	if err != nil {
		return 0, merr.WrapErrProtocol(errors.Wrap(err, "bencode: parse int"))
	}
	return n, nil
}

func (d *Decoder) decodeString() (string, error) {
	raw, err := d.r.ReadString(':')
	if err != nil {
		return "", errors.Wrap(err, "bencode: read string length")
	}
	n, err := strconv.Atoi(raw[:len(raw)-1])
	if err != nil {
		return "", merr.WrapErrProtocol(errors.Wrap(err, "bencode: parse string length"))
	}
	if n < 0 || n > maxStringLen {
		return "", merr.WrapErrProtocol(errors.Newf("bencode: string length %d out of range", n))
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return "", errors.Wrap(err, "bencode: read string")
	}
	return string(buf), nil
}

func (d *Decoder) decodeList() ([]any, error) {
	items := make([]any, 0)
	for {
		b, err := d.r.ReadByte()
		if err != nil {
			return nil, errors.Wrap(err, "bencode: read list")
		}
		if b == 'e' {
			return items, nil
		}
		if err := d.r.UnreadByte(); err != nil {
			return nil, errors.Wrap(err, "bencode: unread")
		}

		item, err := d.decode()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
}

func (d *Decoder) decodeDict() (map[string]any, error) {
	dict := make(map[string]any)
	for {
		b, err := d.r.ReadByte()
		if err != nil {
			return nil, errors.Wrap(err, "bencode: read dict")
		}
		if b == 'e' {
			return dict, nil
		}
		if err := d.r.UnreadByte(); err != nil {
			return nil, errors.Wrap(err, "bencode: unread")
		}

		key, err := d.decodeString()
		if err != nil {
			return nil, err
		}
		val, err := d.decode()
		if err != nil {
			return nil, err
		}
		dict[key] = val
	}
}
