// Package render projects a live code into its delivery shape: a deep-link
// URI with the code substituted into a message template, and a QR encoding
// of that URI. It holds no state and touches no storage.
package render

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	qrcode "github.com/skip2/go-qrcode"
)

const linkBase = "https://wa.me/"

// DefaultQRSize is the QR image edge in pixels.
const DefaultQRSize = 256

// Renderer builds delivery payloads for one configured target identity and
// message template. Both are validated at construction; render calls cannot
// fail on configuration.
type Renderer struct {
	phone    string
	template string
}

// New validates the target identity and template. The identity must
// normalize to 7-15 digits in international form (no leading zero); the
// template must contain exactly one %s placeholder for the code.
func New(targetPhone, template string) (*Renderer, error) {
	phone, err := normalizePhone(targetPhone)
	if err != nil {
		return nil, err
	}
	if strings.Count(template, "%s") != 1 {
		return nil, errors.New("render: template must contain exactly one %s placeholder")
	}
	return &Renderer{phone: phone, template: template}, nil
}

// Phone returns the normalized target identity.
func (r *Renderer) Phone() string { return r.phone }

// Link builds the deep-link URI with the filled message pre-encoded.
func (r *Renderer) Link(code string) string {
	message := fmt.Sprintf(r.template, code)
	return linkBase + r.phone + "?text=" + url.QueryEscape(message)
}

// QR encodes the link for a code as a PNG image.
func (r *Renderer) QR(code string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultQRSize
	}
	png, err := qrcode.Encode(r.Link(code), qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}

// Payload is the complete delivery projection for one code.
type Payload struct {
	Code      string    `json:"code"`
	Link      string    `json:"link"`
	PNG       []byte    `json:"png"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Payload renders everything the delivery channel needs for a code.
func (r *Renderer) Payload(code string, expiresAt time.Time) (Payload, error) {
	png, err := r.QR(code, DefaultQRSize)
	if err != nil {
		return Payload{}, err
	}
	return Payload{Code: code, Link: r.Link(code), PNG: png, ExpiresAt: expiresAt}, nil
}

// ExtractCode recovers the code from a link this renderer produced. It is
// the inverse of Link and exists so the round trip stays testable.
func (r *Renderer) ExtractCode(link string) (string, error) {
	u, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("parse link: %w", err)
	}
	text := u.Query().Get("text")
	if text == "" {
		return "", errors.New("render: link has no text parameter")
	}
	idx := strings.Index(r.template, "%s")
	prefix, suffix := r.template[:idx], r.template[idx+2:]
	if !strings.HasPrefix(text, prefix) || !strings.HasSuffix(text, suffix) {
		return "", errors.New("render: message does not match template")
	}
	return text[len(prefix) : len(text)-len(suffix)], nil
}

// normalizePhone strips a leading + and common separators, then enforces
// digits-only international form: 7-15 digits, no leading zero.
func normalizePhone(phone string) (string, error) {
	s := strings.TrimSpace(phone)
	s = strings.TrimPrefix(s, "+")
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
			// separator, dropped
		default:
			return "", fmt.Errorf("render: target identity has invalid character %q", r)
		}
	}
	normalized := b.String()
	if len(normalized) < 7 || len(normalized) > 15 {
		return "", errors.New("render: target identity must be 7-15 digits")
	}
	if normalized[0] == '0' {
		return "", errors.New("render: target identity must not start with zero")
	}
	return normalized, nil
}
