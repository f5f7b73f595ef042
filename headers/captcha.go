package headers

import "strings"

const captchaRegisterPath = "test/api/redcaptcha/v2/captcha/register"

// MakeCaptchaSign 验证码注册接口的签名
// payload 为调用方序列化好的 JSON（不转义非 ASCII）
func (s *Signer) MakeCaptchaSign(ts, payload string) string {
	digest := md5Hex(ts + captchaRegisterPath + payload)
	return captchaEncode(s.assets.CaptchaAlphabet, s.assets.CaptchaPad, []byte(digest))
}

// captchaEncode 按 3 字节分组，不足补 0，补出来的位置写填充符
func captchaEncode(alphabet, pad string, data []byte) string {
	var sb strings.Builder
	for i := 0; i < len(data); i += 3 {
		u := int(data[i])
		c, sv := 0, 0
		if i+1 < len(data) {
			c = int(data[i+1])
		}
		if i+2 < len(data) {
			sv = int(data[i+2])
		}

		sb.WriteByte(alphabet[u>>2])
		sb.WriteByte(alphabet[((u&3)<<4)|(c>>4)])
		if c != 0 {
			sb.WriteByte(alphabet[((c&15)<<2)|(sv>>6)])
		} else {
			sb.WriteString(pad)
		}
		if sv != 0 {
			sb.WriteByte(alphabet[sv&63])
		} else {
			sb.WriteString(pad)
		}
	}
	return sb.String()
}
