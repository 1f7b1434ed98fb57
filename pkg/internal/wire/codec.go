// Package wire 定义本地 RPC 的文本编解码约定.
//
// 文本形式是一组以换行结尾的 `key: value` 行. 重复字段与嵌套块在内容之前先写一行
// `<key>-length: N`，紧随其后恰好 N 行，所以解码是一次线性扫描，不需要回溯.
//
// Example:
//
//	enc := wire.NewEncoder()
//	enc.String("method", "search")
//	enc.Strings("tag", []string{"work", "2025"})
//	text := enc.Encode()
//
//	dec := wire.NewDecoder(text)
//	method, err := dec.String("method")
//	tags, err := dec.Strings("tag")
//	err = dec.End()
package wire

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// LengthSuffix 计数行的 key 后缀.
	LengthSuffix = "-length"
	// separator key 与 value 之间的分隔符.
	separator = ": "
	// eofMarker 行数不足时 FormatError.Got 的取值.
	eofMarker = "<eof>"
	// endMarker 期望结束但仍有剩余行时 FormatError.Expected 的取值.
	endMarker = "<end>"
)

// FormatError 解码时字段与期望不一致.
type FormatError struct {
	Expected string // 期望的 key
	Got      string // 实际读到的行
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("wire: format error: expected %q, got %q", e.Expected, e.Got)
}

// Value 可编码的值.
type Value interface {
	Encode() string
}

// Decodable 约束 *T 可以从文本解码.
type Decodable[T any] interface {
	*T
	Decode(text string) error
}

// Decode 泛型解码，失败时返回零值与错误.
func Decode[T any, PT Decodable[T]](text string) (T, error) {
	var v T
	if err := PT(&v).Decode(text); err != nil {
		var zero T
		return zero, err
	}

	return v, nil
}

// Encoder 按顺序累积编码行.
type Encoder struct {
	lines []string
}

// NewEncoder 创建一个空的 Encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// String 写入单个字段.
func (e *Encoder) String(key, value string) *Encoder {
	e.lines = append(e.lines, key+separator+escape(value))
	return e
}

// Int 写入整数字段.
func (e *Encoder) Int(key string, v int64) *Encoder {
	return e.String(key, strconv.FormatInt(v, 10))
}

// Bool 写入布尔字段.
func (e *Encoder) Bool(key string, v bool) *Encoder {
	return e.String(key, strconv.FormatBool(v))
}

// Time 以 RFC3339Nano (UTC) 写入时间字段.
func (e *Encoder) Time(key string, t time.Time) *Encoder {
	return e.String(key, t.UTC().Format(time.RFC3339Nano))
}

// Strings 写入可变长字段：先写计数行，再逐行写入元素.
func (e *Encoder) Strings(key string, values []string) *Encoder {
	e.Int(key+LengthSuffix, int64(len(values)))
	for _, v := range values {
		e.String(key, v)
	}

	return e
}

// Block 写入一个嵌套的已编码文本块.
// text 必须是另一个 Encoder 的输出.
func (e *Encoder) Block(key, text string) *Encoder {
	lines := splitLines(text)
	e.Int(key+LengthSuffix, int64(len(lines)))
	e.lines = append(e.lines, lines...)

	return e
}

// Encode 返回文本形式，每行以 \n 结尾.
func (e *Encoder) Encode() string {
	if len(e.lines) == 0 {
		return ""
	}

	return strings.Join(e.lines, "\n") + "\n"
}

// Decoder 单次线性扫描解码.
type Decoder struct {
	lines []string
	pos   int
}

// NewDecoder 创建 Decoder.
func NewDecoder(text string) *Decoder {
	return &Decoder{lines: splitLines(text)}
}

// String 读取 key 对应的字段.
func (d *Decoder) String(key string) (string, error) {
	if d.pos >= len(d.lines) {
		return "", &FormatError{Expected: key, Got: eofMarker}
	}

	line := d.lines[d.pos]

	raw, ok := cutField(line, key)
	if !ok {
		return "", &FormatError{Expected: key, Got: line}
	}

	value, err := unescape(raw)
	if err != nil {
		return "", &FormatError{Expected: key, Got: line}
	}

	d.pos++

	return value, nil
}

// Int 读取整数字段.
func (d *Decoder) Int(key string) (int64, error) {
	line := d.peek()

	s, err := d.String(key)
	if err != nil {
		return 0, err
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, &FormatError{Expected: key, Got: line}
	}

	return n, nil
}

// Bool 读取布尔字段.
func (d *Decoder) Bool(key string) (bool, error) {
	line := d.peek()

	s, err := d.String(key)
	if err != nil {
		return false, err
	}

	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, &FormatError{Expected: key, Got: line}
	}

	return b, nil
}

// Time 读取 RFC3339Nano 时间字段.
func (d *Decoder) Time(key string) (time.Time, error) {
	line := d.peek()

	s, err := d.String(key)
	if err != nil {
		return time.Time{}, err
	}

	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, &FormatError{Expected: key, Got: line}
	}

	return t.UTC(), nil
}

// Strings 读取可变长字段.
func (d *Decoder) Strings(key string) ([]string, error) {
	n, err := d.count(key)
	if err != nil {
		return nil, err
	}

	values := make([]string, 0, n)

	for range n {
		v, err := d.String(key)
		if err != nil {
			return nil, err
		}

		values = append(values, v)
	}

	return values, nil
}

// Block 读取嵌套块，返回块内原始文本.
func (d *Decoder) Block(key string) (string, error) {
	n, err := d.count(key)
	if err != nil {
		return "", err
	}

	if n == 0 {
		return "", nil
	}

	block := d.lines[d.pos : d.pos+n]
	d.pos += n

	return strings.Join(block, "\n") + "\n", nil
}

// End 确认所有行都已消费.
func (d *Decoder) End() error {
	if d.pos < len(d.lines) {
		return &FormatError{Expected: endMarker, Got: d.lines[d.pos]}
	}

	return nil
}

// count 读取计数行并确认剩余行数足够.
func (d *Decoder) count(key string) (int, error) {
	lengthKey := key + LengthSuffix
	line := d.peek()

	n, err := d.Int(lengthKey)
	if err != nil {
		return 0, err
	}

	if n < 0 {
		return 0, &FormatError{Expected: lengthKey, Got: line}
	}

	if remaining := len(d.lines) - d.pos; int64(remaining) < n {
		return 0, &FormatError{Expected: key, Got: eofMarker}
	}

	return int(n), nil
}

func (d *Decoder) peek() string {
	if d.pos >= len(d.lines) {
		return eofMarker
	}

	return d.lines[d.pos]
}

// cutField 拆分 `key: value`，允许空值写作 `key:`.
func cutField(line, key string) (string, bool) {
	if line == key+":" {
		return "", true
	}

	return strings.CutPrefix(line, key+separator)
}

// splitLines 按 \n 切分，去掉末尾换行产生的空串.
func splitLines(text string) []string {
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return nil
	}

	return strings.Split(text, "\n")
}

// escape 转义反斜杠与换行，保证每个值恰好占一行.
func escape(s string) string {
	if !strings.ContainsAny(s, "\\\n\r") {
		return s
	}

	var b strings.Builder

	b.Grow(len(s) + 8)

	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteRune(r)
		}
	}

	return b.String()
}

func unescape(s string) (string, error) {
	if !strings.Contains(s, `\`) {
		return s, nil
	}

	var b strings.Builder

	b.Grow(len(s))

	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}

		if i+1 >= len(s) {
			return "", fmt.Errorf("dangling escape")
		}

		i++

		switch s[i] {
		case '\\':
			b.WriteByte('\\')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		default:
			return "", fmt.Errorf("unknown escape \\%c", s[i])
		}
	}

	return b.String(), nil
}
