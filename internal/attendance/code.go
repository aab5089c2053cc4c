package attendance

import (
	"crypto/rand"
	"math/big"
	"strings"

	"golang.org/x/text/unicode/norm"
)

const (
	CodeLength   = 6
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var alphabetSize = big.NewInt(int64(len(codeAlphabet)))

// GenerateCode: crypto/rand による 6 桁英大文字+数字
func GenerateCode() (string, error) {
	var b strings.Builder
	b.Grow(CodeLength)
	for i := 0; i < CodeLength; i++ {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", err
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// NormalizeCode: 全角入力も受ける（NFKC → trim → 大文字化）
func NormalizeCode(s string) string {
	return strings.ToUpper(strings.TrimSpace(norm.NFKC.String(s)))
}

func validCode(s string) bool {
	if len(s) != CodeLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !strings.ContainsRune(codeAlphabet, rune(s[i])) {
			return false
		}
	}
	return true
}
