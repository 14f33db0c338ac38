package utils

import (
	"crypto/rand"
	"encoding/binary"
	"strings"
)

const randStrAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// RandStr generates a cryptographically secure random alphanumeric string of length n.
func RandStr(n int) string {
	if n <= 0 {
		return ""
	}

	b := make([]byte, n)
	for i := range b {
		b[i] = randStrAlphabet[cryptoRandIntn(len(randStrAlphabet))]
	}
	return string(b)
}

func cryptoRandIntn(max int) int {
	var buf [8]byte
	_, _ = rand.Read(buf[:])
	return int(binary.LittleEndian.Uint64(buf[:]) % uint64(max))
}

func Truncate(content string, maxLen int) string {
	if len(content) <= maxLen {
		return content
	}
	return content[:maxLen] + "..."
}

func Truncate80(content string) string {
	return Truncate(content, 80)
}

// FirstLine returns content up to the first newline, trimmed.
func FirstLine(content string) string {
	if i := strings.IndexByte(content, '\n'); i >= 0 {
		content = content[:i]
	}
	return strings.TrimSpace(content)
}
