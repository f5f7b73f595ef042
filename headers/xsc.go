package headers

import (
	"bytes"
	"encoding/json"
	"fmt"

	"xhs_sign/endecode"
)

const (
	xscS0 = 5
	xscX0 = "1"
	xscOS = "Windows"
)

// browserEnv 伪造的浏览器环境（b1），大部分字段是固定占位值
type browserEnv struct {
	X33 string `json:"x33"`
	X34 string `json:"x34"`
	X35 string `json:"x35"`
	X36 string `json:"x36"`
	X37 string `json:"x37"`
	X38 string `json:"x38"`
	X39 string `json:"x39"`
	X42 string `json:"x42"` // 版本号
	X43 string `json:"x43"`
	X44 string `json:"x44"` // x-t
	X45 string `json:"x45"`
	X46 string `json:"x46"`
	X48 string `json:"x48"`
	X49 string `json:"x49"`
	X50 string `json:"x50"`
	X51 string `json:"x51"`
	X52 string `json:"x52"`
}

// xsCommonEnvelope x-s-common 的字段顺序 s0,s1,x0..x10
type xsCommonEnvelope struct {
	S0  int    `json:"s0"`
	S1  string `json:"s1"`
	X0  string `json:"x0"`
	X1  string `json:"x1"`
	X2  string `json:"x2"`
	X3  string `json:"x3"`
	X4  string `json:"x4"`
	X5  string `json:"x5"`
	X6  int64  `json:"x6"`
	X7  string `json:"x7"`
	X8  string `json:"x8"`
	X9  int32  `json:"x9"`
	X10 int64  `json:"x10"`
}

func (s *Signer) browserEnv(ts string) browserEnv {
	return browserEnv{
		X33: "0",
		X34: "0",
		X35: "0",
		X36: "3",
		X37: "0|0|0|0|0|0|0|0|0|1|0|0|0|0|0|0|0|0|1|0|0|0|0|0",
		X38: "0|0|1|0|1|0|0|0|0|0|1|0|1|0|1|0|0|0|0|0|0|0|0|0|0|0|0|0|0|0|0|0|0|0|0|0|0|0",
		X39: "0",
		X42: s.assets.VersionX1,
		X43: s.assets.FingerprintX43,
		X44: ts,
		X45: "connecterror",
		X46: "false",
		X49: "{list:[],type:}",
		X52: "[]",
	}
}

// Fingerprint 生成 b1
func (s *Signer) Fingerprint(ts string) (string, error) {
	body, err := marshalCompact(s.browserEnv(ts), true)
	if err != nil {
		return "", fmt.Errorf("b1: %w", err)
	}
	return s.enc.EncodeText(string(body)), nil
}

// buildXSCommonJSON 第一步：拼出 x-s-common 的明文 JSON
func (s *Signer) buildXSCommonJSON(c SigningContext, xs string) ([]byte, error) {
	if err := c.check(true); err != nil {
		return nil, err
	}
	ts, _ := parseTimestamp(c.TimestampMs)

	b1, err := s.Fingerprint(c.TimestampMs)
	if err != nil {
		return nil, err
	}
	x9 := endecode.Mrc(&s.assets.MrcTable, c.TimestampMs+xs+b1)

	body, err := marshalCompact(xsCommonEnvelope{
		S0:  xscS0,
		S1:  "",
		X0:  xscX0,
		X1:  s.assets.VersionX1,
		X2:  xscOS,
		X3:  c.Platform,
		X4:  c.BuildVersion,
		X5:  c.SessionIdentity,
		X6:  ts,
		X7:  xs,
		X8:  b1,
		X9:  x9,
		X10: c.SessionCounter,
	}, false)
	if err != nil {
		return nil, fmt.Errorf("x-s-common envelope: %w", err)
	}
	return body, nil
}

// MakeXSCommon 生成 x-s-common：先拼 JSON，再用自定义字母表编码
func (s *Signer) MakeXSCommon(c SigningContext, xs string) (string, error) {
	body, err := s.buildXSCommonJSON(c, xs)
	if err != nil {
		return "", err
	}
	return s.enc.EncodeText(string(body)), nil
}

// Sign 先校验凭据，再依次生成 x-s 和 x-s-common
func (s *Signer) Sign(c SigningContext) (SignatureTokens, error) {
	if err := c.Validate(); err != nil {
		return SignatureTokens{}, err
	}
	xs, err := s.MakeXS(c)
	if err != nil {
		return SignatureTokens{}, err
	}
	xsc, err := s.MakeXSCommon(c, xs)
	if err != nil {
		return SignatureTokens{}, err
	}
	return SignatureTokens{XS: xs, XSCommon: xsc}, nil
}

// ParseXSCommon 还原 x-s-common 的明文 JSON（非 ASCII 字符在编码时已截断，无法还原）
func (s *Signer) ParseXSCommon(token string) (map[string]any, error) {
	raw, err := s.enc.DecodeString(token)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", endecode.ErrInvalidEncoding, err)
	}
	return out, nil
}
