package endecode

// EncodeCodePoints 字符串按码点拆成整数序列，BMP 以外的字符也只占一个元素
func EncodeCodePoints(s string) []rune {
	return []rune(s)
}

// DecodeCodePoints 整数序列还原成字符串，非法码点替换为 U+FFFD
func DecodeCodePoints(points []rune) string {
	return string(points)
}
