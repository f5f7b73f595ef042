package headers

import (
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"xhs_sign/endecode"
)

const xsPrefix = "XYW_"

// xsEnvelope 字段顺序即序列化顺序，不能调整
type xsEnvelope struct {
	SignSvn     string `json:"signSvn"`
	SignType    string `json:"signType"`
	AppID       string `json:"appId"`
	SignVersion string `json:"signVersion"`
	Payload     string `json:"payload"`
}

// md5Hex 计算字符串的MD5哈希
func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// xsPlaintext x1=md5("url="+path);x2=模板;x3=a1;x4=x-t;
func (s *Signer) xsPlaintext(urlPath, a1, ts string) string {
	var sb strings.Builder
	sb.WriteString("x1=")
	sb.WriteString(md5Hex("url=" + urlPath))
	sb.WriteString(";x2=")
	sb.WriteString(s.assets.X2Template)
	sb.WriteString(";x3=")
	sb.WriteString(a1)
	sb.WriteString(";x4=")
	sb.WriteString(ts)
	sb.WriteString(";")
	return sb.String()
}

// MakeXS 生成 x-s
func (s *Signer) MakeXS(c SigningContext) (string, error) {
	if err := c.check(false); err != nil {
		return "", err
	}
	cipherB64 := endecode.EncryptText(s.xsPlaintext(c.URLPath, c.SessionIdentity, c.TimestampMs))
	payloadHex, err := endecode.Base64ToHex(cipherB64)
	if err != nil {
		return "", fmt.Errorf("x-s payload: %w", err)
	}

	body, err := marshalCompact(xsEnvelope{
		SignSvn:     s.assets.SignSvn,
		SignType:    s.assets.SignType,
		AppID:       c.Platform,
		SignVersion: s.assets.SignVersion,
		Payload:     payloadHex,
	}, true)
	if err != nil {
		return "", fmt.Errorf("x-s envelope: %w", err)
	}
	return xsPrefix + base64.StdEncoding.EncodeToString(body), nil
}

// XSFields 从 x-s 解出的明文字段
type XSFields struct {
	SignSvn     string `json:"sign_svn"`
	SignType    string `json:"sign_type"`
	AppID       string `json:"app_id"`
	SignVersion string `json:"sign_version"`
	X1          string `json:"x1"`
	X2          string `json:"x2"`
	X3          string `json:"x3"`
	X4          string `json:"x4"`
}

// ParseXS 解密 x-s，用于排查签名问题
func ParseXS(xs string) (*XSFields, error) {
	raw, ok := strings.CutPrefix(xs, xsPrefix)
	if !ok {
		return nil, fmt.Errorf("%w: missing %s prefix", endecode.ErrInvalidEncoding, xsPrefix)
	}
	body, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", endecode.ErrInvalidEncoding, err)
	}
	var env xsEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", endecode.ErrInvalidEncoding, err)
	}
	ct, err := hex.DecodeString(env.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: payload: %v", endecode.ErrInvalidEncoding, err)
	}
	plain, err := endecode.DecryptText(base64.StdEncoding.EncodeToString(ct))
	if err != nil {
		return nil, err
	}

	out := &XSFields{
		SignSvn:     env.SignSvn,
		SignType:    env.SignType,
		AppID:       env.AppID,
		SignVersion: env.SignVersion,
	}
	for _, part := range strings.Split(strings.TrimSuffix(plain, ";"), ";") {
		k, v, _ := strings.Cut(part, "=")
		switch k {
		case "x1":
			out.X1 = v
		case "x2":
			out.X2 = v
		case "x3":
			out.X3 = v
		case "x4":
			out.X4 = v
		}
	}
	return out, nil
}
