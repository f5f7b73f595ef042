package headers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"
	"unicode/utf16"
	"unicode/utf8"

	"xhs_sign/assets"
	"xhs_sign/endecode"
)

// Signer 绑定一份只读常量资源，可并发使用
type Signer struct {
	assets *assets.Assets
	enc    *endecode.Encoding
}

// NewSigner 用给定的常量资源创建签名器
func NewSigner(a *assets.Assets) (*Signer, error) {
	if a == nil {
		return nil, fmt.Errorf("headers: nil assets")
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	enc, err := endecode.NewEncoding(a.Alphabet)
	if err != nil {
		return nil, err
	}
	return &Signer{assets: a, enc: enc}, nil
}

var (
	defaultSignerOnce sync.Once
	defaultSigner     *Signer
)

// Default 使用内嵌常量的签名器
func Default() *Signer {
	defaultSignerOnce.Do(func() {
		s, err := NewSigner(assets.Default())
		if err != nil {
			panic(fmt.Sprintf("headers: default signer: %v", err))
		}
		defaultSigner = s
	})
	return defaultSigner
}

// Assets 返回签名器使用的常量
func (s *Signer) Assets() *assets.Assets { return s.assets }

// marshalCompact 无空白、不转义 HTML；asciiOnly 时非 ASCII 字符写成 \uXXXX
func marshalCompact(v any, asciiOnly bool) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	out := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
	if asciiOnly {
		out = escapeNonASCII(out)
	}
	return out, nil
}

// MarshalPayload 请求体序列化：紧凑、非 ASCII 转义，与签名时使用的字符串一致
func MarshalPayload(v any) ([]byte, error) {
	return marshalCompact(v, true)
}

// escapeNonASCII 非 ASCII 只会出现在字符串字面量里，直接逐字符替换
func escapeNonASCII(b []byte) []byte {
	out := make([]byte, 0, len(b))
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		b = b[size:]
		switch {
		case r < 0x7F:
			out = append(out, byte(r))
		case r > 0xFFFF:
			r1, r2 := utf16.EncodeRune(r)
			out = fmt.Appendf(out, `\u%04x\u%04x`, r1, r2)
		default:
			out = fmt.Appendf(out, `\u%04x`, r)
		}
	}
	return out
}
