package report

import (
	"errors"
	"strings"
	"unicode"

	qrcode "github.com/skip2/go-qrcode"
)

const defaultQRSize = 128

var errEmptyDigest = errors.New("report: digest has no hex digits")

// HashToQR renders the blob digest as a PNG QR code so a printed report can
// be matched against a file on disk. Separators and non-hex runes are dropped.
func HashToQR(hash string, size int) ([]byte, error) {
	digest := sanitizeHash(hash)
	if digest == "" {
		return nil, errEmptyDigest
	}
	if size <= 0 {
		size = defaultQRSize
	}
	code, err := qrcode.New(digest, qrcode.Medium)
	if err != nil {
		return nil, err
	}
	return code.PNG(size)
}

func sanitizeHash(hash string) string {
	return strings.Map(func(r rune) rune {
		r = unicode.ToUpper(r)
		if ('0' <= r && r <= '9') || ('A' <= r && r <= 'F') {
			return r
		}
		return -1
	}, hash)
}
