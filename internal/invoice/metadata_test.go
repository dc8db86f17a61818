package invoice_test

import (
	"crypto/sha256"
	"encoding/json"
	"testing"

	"switchgear/internal/apperr"
	"switchgear/internal/invoice"
	"switchgear/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataJSONFieldOrderAndShape(t *testing.T) {
	m := model.OfferMetadata{
		Partition: "default",
		Text:      "Coffee",
		LongText:  "A fresh cup of coffee",
		Identifier: &model.Identifier{
			Kind:  model.IdentifierEmail,
			Value: "merchant@example.com",
		},
	}

	raw, err := invoice.MetadataJSON(m)
	require.NoError(t, err)

	var entries [][2]string
	require.NoError(t, json.Unmarshal(raw, &entries))
	require.Len(t, entries, 3)
	assert.Equal(t, [2]string{"text/plain", "Coffee"}, entries[0])
	assert.Equal(t, [2]string{"text/long-desc", "A fresh cup of coffee"}, entries[1])
	assert.Equal(t, [2]string{"text/email", "merchant@example.com"}, entries[2])
}

func TestMetadataJSONTextIdentifierUsesTextIdentifierTag(t *testing.T) {
	m := model.OfferMetadata{
		Partition:  "default",
		Text:       "Coffee",
		Identifier: &model.Identifier{Kind: model.IdentifierText, Value: "coffee-stand-3"},
	}

	raw, err := invoice.MetadataJSON(m)
	require.NoError(t, err)

	var entries [][2]string
	require.NoError(t, json.Unmarshal(raw, &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, [2]string{"text/identifier", "coffee-stand-3"}, entries[1])
}

func TestDescriptionHashIsSHA256OfMetadataJSON(t *testing.T) {
	m := model.OfferMetadata{Partition: "default", Text: "Coffee"}

	hash, raw, err := invoice.DescriptionHash(m)
	require.NoError(t, err)

	want := sha256.Sum256(raw)
	assert.Equal(t, want, hash)

	rawAgain, err := invoice.MetadataJSON(m)
	require.NoError(t, err)
	assert.Equal(t, rawAgain, raw)
}

func TestValidateAmountRejectsNonPositive(t *testing.T) {
	err := invoice.ValidateAmount(0, 1000, 1000000)
	require.Error(t, err)
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperr.KindInvalidAmount, appErr.Kind)
}

func TestValidateAmountRejectsOutOfRange(t *testing.T) {
	assert.Error(t, invoice.ValidateAmount(500, 1000, 1000000))
	assert.Error(t, invoice.ValidateAmount(2000000, 1000, 1000000))
}

func TestValidateAmountAcceptsInRange(t *testing.T) {
	assert.NoError(t, invoice.ValidateAmount(50000, 1000, 1000000))
}

// A text field containing <, >, or & must survive MetadataJSON
// unescaped: the serialization is a cross-implementation hash input
// (DescriptionHash), not HTML, so Go's default HTML-safe JSON
// escaping would produce a different description_hash than a
// non-escaping implementation given the same offer text.
func TestMetadataJSONDoesNotHTMLEscape(t *testing.T) {
	m := model.OfferMetadata{Partition: "default", Text: "Tom & Jerry's <Cafe>"}

	raw, err := invoice.MetadataJSON(m)
	require.NoError(t, err)

	assert.Contains(t, string(raw), "Tom & Jerry's <Cafe>")
	assert.NotContains(t, string(raw), "\\u0026")
	assert.NotContains(t, string(raw), "\\u003c")
	assert.NotContains(t, string(raw), "\\u003e")

	var entries [][2]string
	require.NoError(t, json.Unmarshal(raw, &entries))
	assert.Equal(t, "Tom & Jerry's <Cafe>", entries[0][1])
}
