package endecode

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
)

// 固定密钥：4 个大端 32 位整数拼成 16 字节
var keyWords = [4]uint32{929260340, 1633971297, 895580464, 925905270}

const fixedIV = "4uzjr7mbsibcaldp"

var (
	fixedKey   = makeKey()
	fixedBlock = newFixedBlock()
)

// ErrInvalidCiphertext 密文不是合法的 base64 或填充错误
var ErrInvalidCiphertext = errors.New("invalid ciphertext")

func makeKey() []byte {
	key := make([]byte, 0, 16)
	for _, w := range keyWords {
		key = binary.BigEndian.AppendUint32(key, w)
	}
	return key
}

func newFixedBlock() cipher.Block {
	if len(fixedIV) != aes.BlockSize {
		panic(fmt.Sprintf("endecode: iv length %d, want %d", len(fixedIV), aes.BlockSize))
	}
	block, err := aes.NewCipher(fixedKey)
	if err != nil {
		panic(fmt.Sprintf("endecode: fixed key: %v", err))
	}
	return block
}

// pkcs7Pad PKCS7填充
func pkcs7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(padding)}, padding)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("%w: length %d", ErrInvalidCiphertext, len(data))
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize {
		return nil, fmt.Errorf("%w: bad padding", ErrInvalidCiphertext)
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("%w: bad padding", ErrInvalidCiphertext)
		}
	}
	return data[:len(data)-n], nil
}

// EncryptText 明文先做标准 base64，再 AES-CBC 加密，密文再做标准 base64
func EncryptText(text string) string {
	plain := []byte(base64.StdEncoding.EncodeToString([]byte(text)))
	plain = pkcs7Pad(plain, aes.BlockSize)

	out := make([]byte, len(plain))
	cipher.NewCBCEncrypter(fixedBlock, []byte(fixedIV)).CryptBlocks(out, plain)
	return base64.StdEncoding.EncodeToString(out)
}

// DecryptText EncryptText 的逆运算
func DecryptText(ciphertextB64 string) (string, error) {
	ct, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
	}
	if len(ct) == 0 || len(ct)%aes.BlockSize != 0 {
		return "", fmt.Errorf("%w: length %d", ErrInvalidCiphertext, len(ct))
	}
	plain := make([]byte, len(ct))
	cipher.NewCBCDecrypter(fixedBlock, []byte(fixedIV)).CryptBlocks(plain, ct)
	plain, err = pkcs7Unpad(plain, aes.BlockSize)
	if err != nil {
		return "", err
	}
	text, err := base64.StdEncoding.DecodeString(string(plain))
	if err != nil {
		return "", fmt.Errorf("%w: inner base64: %v", ErrInvalidCiphertext, err)
	}
	return string(text), nil
}

// Base64ToHex 标准 base64 转小写 16 进制
func Base64ToHex(s string) (string, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}
	return hex.EncodeToString(b), nil
}
