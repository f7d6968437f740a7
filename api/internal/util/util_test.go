package util

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripCodeFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, StripCodeFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, "plain", StripCodeFences("  plain "))
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "héll", TruncateRunes("héllo", 4))
	assert.Equal(t, "héllo", TruncateRunes("héllo", 10))
	assert.Equal(t, "", TruncateRunes("abc", 0))
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"gemini-2.5-flash", "gemini-2.0-flash"}, SplitList(" gemini-2.5-flash, ,gemini-2.0-flash "))
	assert.Nil(t, SplitList(""))
}

func TestDecodeBase64MaybeDataURL(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte{0xFF, 0xD8, 0x01})

	b, mime, err := DecodeBase64MaybeDataURL(MakeDataURL("image/jpeg", payload))
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", mime)
	assert.Equal(t, []byte{0xFF, 0xD8, 0x01}, b)

	b, mime, err = DecodeBase64MaybeDataURL(payload)
	require.NoError(t, err)
	assert.Empty(t, mime)
	assert.Equal(t, "image/jpeg", PickMIME("", mime, b))

	_, _, err = DecodeBase64MaybeDataURL("%%%")
	assert.Error(t, err)
}

func TestPickMIMEWav(t *testing.T) {
	wav := append([]byte("RIFF\x00\x00\x00\x00WAVE"), make([]byte, 32)...)
	assert.Equal(t, "audio/wav", PickMIME("", "", wav))
	assert.Equal(t, "audio/x", PickMIME("audio/x", "image/png", wav))
}
