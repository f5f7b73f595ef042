package endecode

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidEncoding 输入含有字母表以外的字符或长度不合法
var ErrInvalidEncoding = errors.New("invalid encoding")

const (
	padChar = '='
	// 前端实现按 16383 字节分块编码，必须是 3 的倍数
	chunkSize = 16383
)

// Encoding 自定义字母表的 base64
type Encoding struct {
	alphabet  [64]byte
	decodeMap [256]int16
}

// NewEncoding 字母表必须是 64 个互不相同的 ASCII 字符，且不含 '='
func NewEncoding(alphabet string) (*Encoding, error) {
	if len(alphabet) != 64 {
		return nil, fmt.Errorf("%w: alphabet has %d symbols, want 64", ErrInvalidEncoding, len(alphabet))
	}
	enc := &Encoding{}
	for i := range enc.decodeMap {
		enc.decodeMap[i] = -1
	}
	for i := 0; i < 64; i++ {
		c := alphabet[i]
		if c == padChar || c >= 0x80 {
			return nil, fmt.Errorf("%w: illegal alphabet symbol %q", ErrInvalidEncoding, c)
		}
		if enc.decodeMap[c] != -1 {
			return nil, fmt.Errorf("%w: alphabet repeats symbol %q", ErrInvalidEncoding, c)
		}
		enc.alphabet[i] = c
		enc.decodeMap[c] = int16(i)
	}
	return enc, nil
}

// EncodeToString 3 字节一组切成 4 个 6 位，尾组按 XX== / XXX= 填充
func (e *Encoding) EncodeToString(src []byte) string {
	n := len(src)
	tail := n % 3
	full := n - tail

	var sb strings.Builder
	sb.Grow((n + 2) / 3 * 4)
	for start := 0; start < full; start += chunkSize {
		end := start + chunkSize
		if end > full {
			end = full
		}
		e.encodeChunk(&sb, src, start, end)
	}

	switch tail {
	case 1:
		f := uint32(src[n-1])
		sb.WriteByte(e.alphabet[f>>2])
		sb.WriteByte(e.alphabet[(f<<4)&63])
		sb.WriteString("==")
	case 2:
		f := uint32(src[n-2])<<8 | uint32(src[n-1])
		sb.WriteByte(e.alphabet[f>>10])
		sb.WriteByte(e.alphabet[(f>>4)&63])
		sb.WriteByte(e.alphabet[(f<<2)&63])
		sb.WriteByte(padChar)
	}
	return sb.String()
}

func (e *Encoding) encodeChunk(sb *strings.Builder, src []byte, start, end int) {
	for b := start; b < end; b += 3 {
		n := uint32(src[b])<<16 | uint32(src[b+1])<<8 | uint32(src[b+2])
		sb.WriteByte(e.alphabet[(n>>18)&63])
		sb.WriteByte(e.alphabet[(n>>12)&63])
		sb.WriteByte(e.alphabet[(n>>6)&63])
		sb.WriteByte(e.alphabet[n&63])
	}
}

// DecodeString 去掉末尾 '='，按 4 字符一组还原；'=' 位置对应的字节丢弃
func (e *Encoding) DecodeString(s string) ([]byte, error) {
	s = strings.TrimRight(s, "=")
	if i := strings.IndexByte(s, padChar); i >= 0 {
		return nil, fmt.Errorf("%w: pad symbol at offset %d", ErrInvalidEncoding, i)
	}
	out := make([]byte, 0, len(s)*3/4+3)

	for i := 0; i < len(s); i += 4 {
		var group [4]byte
		for j := range group {
			group[j] = padChar
		}
		copy(group[:], s[i:min(i+4, len(s))])

		var num uint32
		for j, c := range group {
			if c == padChar {
				// 前两位必须是有效字符，否则无法还原第一个字节
				if j < 2 {
					return nil, fmt.Errorf("%w: truncated group at offset %d", ErrInvalidEncoding, i)
				}
				continue
			}
			v := e.decodeMap[c]
			if v < 0 {
				return nil, fmt.Errorf("%w: symbol %q at offset %d", ErrInvalidEncoding, c, i+j)
			}
			num |= uint32(v) << (18 - 6*uint(j))
		}

		out = append(out, byte(num>>16))
		if group[2] != padChar {
			out = append(out, byte(num>>8))
		}
		if group[3] != padChar {
			out = append(out, byte(num))
		}
	}
	return out, nil
}

// EncodeText 把字符串的码点逐个截成 8 位后编码，与 Mrc 的取值方式一致
func (e *Encoding) EncodeText(s string) string {
	points := EncodeCodePoints(s)
	b := make([]byte, len(points))
	for i, r := range points {
		b[i] = byte(r & 0xFF)
	}
	return e.EncodeToString(b)
}
