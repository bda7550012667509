package codec

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/sha256"
	"errors"
	"fmt"
)

// SignKey is the fixed application key shared by every Midea WiFi module.
// Its MD5 digest keys the 5A5A packet cipher and it salts the packet checksum.
const SignKey = "xhdiwjnchekd4d512chdjx5d8e4c394D2D7S"

var ecbKey = md5Bytes([]byte(SignKey))

var zeroIV = make([]byte, aes.BlockSize)

var errBadPadding = errors.New("invalid PKCS#7 padding")

// EncryptPacketBody encrypts an appliance frame with AES-128-ECB under the
// sign key digest.
func EncryptPacketBody(plain []byte) []byte {
	out, _ := aesECBEncrypt(plain, ecbKey)
	return out
}

// DecryptPacketBody reverses EncryptPacketBody.
func DecryptPacketBody(data []byte) ([]byte, error) {
	return aesECBDecrypt(data, ecbKey)
}

// packetChecksum is the MD5 trailer of a 5A5A packet.
func packetChecksum(packet []byte) []byte {
	h := md5.New()
	h.Write(packet)
	h.Write([]byte(SignKey))
	return h.Sum(nil)
}

func aesECBEncrypt(data, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	data = pkcs7Pad(data, aes.BlockSize)
	out := make([]byte, len(data))
	for bs := 0; bs < len(data); bs += aes.BlockSize {
		block.Encrypt(out[bs:bs+aes.BlockSize], data[bs:bs+aes.BlockSize])
	}
	return out, nil
}

func aesECBDecrypt(data, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("ciphertext length %d is not a multiple of the block size", len(data))
	}
	out := make([]byte, len(data))
	for bs := 0; bs < len(data); bs += aes.BlockSize {
		block.Decrypt(out[bs:bs+aes.BlockSize], data[bs:bs+aes.BlockSize])
	}
	return pkcs7Unpad(out, aes.BlockSize)
}

// aesCBCEncrypt encrypts block aligned data with a zero IV and no padding.
func aesCBCEncrypt(data, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("plaintext length %d is not block aligned", len(data))
	}
	out := make([]byte, len(data))
	cipher.NewCBCEncrypter(block, zeroIV).CryptBlocks(out, data)
	return out, nil
}

func aesCBCDecrypt(data, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("ciphertext length %d is not block aligned", len(data))
	}
	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, zeroIV).CryptBlocks(out, data)
	return out, nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	return append(bytes.Clone(data), bytes.Repeat([]byte{byte(padding)}, padding)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errBadPadding
	}
	padding := int(data[len(data)-1])
	if padding == 0 || padding > blockSize || padding > len(data) {
		return nil, errBadPadding
	}
	for _, b := range data[len(data)-padding:] {
		if int(b) != padding {
			return nil, errBadPadding
		}
	}
	return data[:len(data)-padding], nil
}

func md5Bytes(data []byte) []byte {
	sum := md5.Sum(data)
	return sum[:]
}

func sha256Bytes(parts ...[]byte) []byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}
