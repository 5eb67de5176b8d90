package render

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const template = "Attendance code: %s (reply with this code)"

var testExpiry = time.Date(2026, 8, 31, 9, 30, 0, 0, time.UTC)

func TestNew_PhoneNormalization(t *testing.T) {
	cases := []struct {
		name  string
		phone string
		want  string
		ok    bool
	}{
		{"plain", "6281234567890", "6281234567890", true},
		{"plus and separators", "+62 812-3456-7890", "6281234567890", true},
		{"parens and dots", "+1 (415) 555.0123", "14155550123", true},
		{"leading zero", "0812345678", "", false},
		{"too short", "+12345", "", false},
		{"too long", "1234567890123456", "", false},
		{"letters", "62abc1234567", "", false},
		{"empty", "", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r, err := New(tc.phone, template)
			if !tc.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, r.Phone())
		})
	}
}

func TestNew_TemplateValidation(t *testing.T) {
	for _, bad := range []string{
		"no placeholder here",
		"two %s placeholders %s",
		"",
	} {
		_, err := New("6281234567890", bad)
		assert.Error(t, err, "template %q", bad)
	}
}

func TestLink(t *testing.T) {
	r, err := New("+62 812-3456-7890", template)
	require.NoError(t, err)

	link := r.Link("A1B2C3")
	assert.True(t, strings.HasPrefix(link, "https://wa.me/6281234567890?text="))
	assert.Contains(t, link, "A1B2C3")
	assert.NotContains(t, link, " ", "message must be url-encoded")
}

func TestRoundTrip(t *testing.T) {
	r, err := New("6281234567890", template)
	require.NoError(t, err)

	for _, code := range []string{"A1B2C3", "000000", "FFFFFF", "ZZ99ZZ"} {
		got, extractErr := r.ExtractCode(r.Link(code))
		require.NoError(t, extractErr)
		assert.Equal(t, code, got)
	}
}

func TestExtractCode_Mismatch(t *testing.T) {
	r, err := New("6281234567890", template)
	require.NoError(t, err)

	_, err = r.ExtractCode("https://wa.me/6281234567890")
	assert.Error(t, err)

	_, err = r.ExtractCode("https://wa.me/6281234567890?text=unrelated+message")
	assert.Error(t, err)
}

func TestQR(t *testing.T) {
	r, err := New("6281234567890", template)
	require.NoError(t, err)

	png, err := r.QR("A1B2C3", 0)
	require.NoError(t, err)
	require.NotEmpty(t, png)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, png[:4])
}

func TestPayload(t *testing.T) {
	r, err := New("6281234567890", template)
	require.NoError(t, err)

	p, err := r.Payload("A1B2C3", testExpiry)
	require.NoError(t, err)
	assert.Equal(t, "A1B2C3", p.Code)
	assert.Equal(t, r.Link("A1B2C3"), p.Link)
	assert.NotEmpty(t, p.PNG)
	assert.Equal(t, testExpiry, p.ExpiresAt)
}
