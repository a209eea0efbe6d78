package localization_test

import (
	"testing"
	"testing/fstest"

	"speakroom/backend/internal/localization"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_LoadsEmbeddedLocales(t *testing.T) {
	l := localization.Default()

	assert.Equal(t, "uk", l.Match("uk"))
	assert.Equal(t, "This room has ended.", l.GetString("en", "error.room_ended"))
	assert.Equal(t, "Цю кімнату завершено.", l.GetString("uk", "error.room_ended"))
}

func TestGetString_Fallbacks(t *testing.T) {
	fsys := fstest.MapFS{
		"loc/en.json":   {Data: []byte(`{"greeting": "Hello", "only_en": "English only"}`)},
		"loc/uk.json":   {Data: []byte(`{"greeting": "Привіт"}`)},
		"loc/notes.txt": {Data: []byte("ignored")},
	}
	l, err := localization.NewLocalizer(fsys, "loc")
	require.NoError(t, err)

	assert.Equal(t, "Привіт", l.GetString("uk", "greeting"))
	assert.Equal(t, "English only", l.GetString("uk", "only_en"))
	assert.Equal(t, "Hello", l.GetString("de", "greeting"))
	assert.Equal(t, "missing.key", l.GetString("en", "missing.key"))
}

func TestNewLocalizer_Errors(t *testing.T) {
	_, err := localization.NewLocalizer(fstest.MapFS{}, "missing")
	assert.Error(t, err)

	_, err = localization.NewLocalizer(fstest.MapFS{"loc/en.json": {Data: []byte("{")}}, "loc")
	assert.Error(t, err)
}

func TestMatch(t *testing.T) {
	l := localization.Default()

	assert.Equal(t, "uk", l.Match("uk-UA,uk;q=0.9,en;q=0.8"))
	assert.Equal(t, "en", l.Match("fr-FR, en-GB;q=0.7"))
	assert.Equal(t, "en", l.Match(""))
	assert.Equal(t, "en", l.Match("de"))
}
