package cryptox

import (
	"bytes"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"unicode"

	"github.com/dmitrijs2005/membership/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func TestParsePasswordFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    PasswordFormat
		wantErr bool
	}{
		{"Clear", FormatClear, false},
		{"hashed", FormatHashed, false},
		{" ENCRYPTED ", FormatEncrypted, false},
		{"rot13", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePasswordFormat(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnknownFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPasswordFormat_String(t *testing.T) {
	assert.Equal(t, "Clear", FormatClear.String())
	assert.Equal(t, "Hashed", FormatHashed.String())
	assert.Equal(t, "Encrypted", FormatEncrypted.String())
	assert.Equal(t, "PasswordFormat(9)", PasswordFormat(9).String())
}

func TestNewEncoder_RequiresSecret(t *testing.T) {
	_, err := NewEncoder(FormatHashed, nil)
	require.Error(t, err)
	_, err = NewEncoder(FormatEncrypted, []byte{})
	require.Error(t, err)

	e, err := NewEncoder(FormatClear, nil)
	require.NoError(t, err)
	assert.Equal(t, FormatClear, e.Format())

	_, err = NewEncoder(PasswordFormat(42), testSecret)
	require.ErrorIs(t, err, ErrUnknownFormat)
}

func TestEncoder_Clear(t *testing.T) {
	e, err := NewEncoder(FormatClear, nil)
	require.NoError(t, err)

	stored, err := e.Encode("p@ssw0rd!")
	require.NoError(t, err)
	assert.Equal(t, "p@ssw0rd!", stored)

	plain, err := e.Decode(stored)
	require.NoError(t, err)
	assert.Equal(t, "p@ssw0rd!", plain)

	ok, err := e.Verify("p@ssw0rd!", stored)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.Verify("P@ssw0rd!", stored)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEncoder_Encrypted_RoundTrip(t *testing.T) {
	e, err := NewEncoder(FormatEncrypted, testSecret)
	require.NoError(t, err)

	for _, plain := range []string{"", "x", "p@ssw0rd!", strings.Repeat("long", 64), "пароль"} {
		stored, err := e.Encode(plain)
		require.NoError(t, err)
		assert.NotEqual(t, plain, stored)

		// nonce, sealed text and a 16-byte tag
		payload, err := base64.StdEncoding.DecodeString(stored)
		require.NoError(t, err)
		assert.Len(t, payload, 12+len(plain)+16)
		if len(plain) >= 8 {
			assert.False(t, bytes.Contains(payload, []byte(plain)))
		}

		got, err := e.Decode(stored)
		require.NoError(t, err)
		assert.Equal(t, plain, got)

		ok, err := e.Verify(plain, stored)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = e.Verify(plain+"?", stored)
		require.NoError(t, err)
		assert.False(t, ok)
	}
}

func TestEncoder_Encrypted_RandomNonce(t *testing.T) {
	e, err := NewEncoder(FormatEncrypted, testSecret)
	require.NoError(t, err)

	a, err := e.Encode("same")
	require.NoError(t, err)
	b, err := e.Encode("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestEncoder_Encrypted_WrongKeyOrTamper(t *testing.T) {
	e1, err := NewEncoder(FormatEncrypted, testSecret)
	require.NoError(t, err)
	e2, err := NewEncoder(FormatEncrypted, []byte("another secret"))
	require.NoError(t, err)

	stored, err := e1.Encode("secret")
	require.NoError(t, err)

	_, err = e2.Decode(stored)
	require.Error(t, err)

	_, err = e1.Decode("not base64 !!")
	require.Error(t, err)

	_, err = e1.Decode("AAAA")
	require.Error(t, err)

	_, err = e1.Verify("secret", "AAAA")
	require.Error(t, err)
}

func TestEncoder_Hashed(t *testing.T) {
	e, err := NewEncoder(FormatHashed, testSecret)
	require.NoError(t, err)

	stored, err := e.Encode("p@ssw0rd!")
	require.NoError(t, err)
	assert.NotEqual(t, "p@ssw0rd!", stored)

	again, err := e.Encode("p@ssw0rd!")
	require.NoError(t, err)
	assert.Equal(t, stored, again, "hashing is deterministic")

	ok, err := e.Verify("p@ssw0rd!", stored)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.Verify("wrong", stored)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = e.Decode(stored)
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrUnsupportedOperation))
}

func TestEncoder_HashedDiffersPerSecret(t *testing.T) {
	e1, err := NewEncoder(FormatHashed, testSecret)
	require.NoError(t, err)
	e2, err := NewEncoder(FormatHashed, []byte("other"))
	require.NoError(t, err)

	a, _ := e1.Encode("pw")
	b, _ := e2.Encode("pw")
	assert.NotEqual(t, a, b)
}

func TestGeneratePassword(t *testing.T) {
	for _, tc := range []struct{ length, minNonAlnum, wantLen int }{
		{8, 1, 8},
		{12, 0, 12},
		{10, 4, 10},
		{2, 5, 5},
		{0, 0, 0},
	} {
		pw, err := GeneratePassword(tc.length, tc.minNonAlnum)
		require.NoError(t, err)
		assert.Len(t, pw, tc.wantLen)

		nonAlnum := 0
		for _, r := range pw {
			if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
				nonAlnum++
			}
		}
		assert.Equal(t, tc.minNonAlnum, nonAlnum)
	}
}

func TestGeneratePassword_Random(t *testing.T) {
	a, err := GeneratePassword(16, 2)
	require.NoError(t, err)
	b, err := GeneratePassword(16, 2)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
