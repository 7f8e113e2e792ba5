package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", MaskSecret("  "))
	assert.Equal(t, "cus_****WXYZ", MaskSecret("cus_ABCDEFWXYZ"))
	assert.Equal(t, "sub_****", MaskSecret("sub_abc"))
	assert.Equal(t, "****6789", MaskSecret("123456789"))
}

func TestMaskEmail(t *testing.T) {
	assert.Equal(t, "j****@example.com", MaskEmail("jane@example.com"))
	assert.Equal(t, "****", MaskEmail("@x"))
}

func TestMaskFieldsOnlyTouchesSensitiveKeys(t *testing.T) {
	in := map[string]any{
		"plan":        "pro",
		"customer_id": "cus_ABCDEFWXYZ",
		"nested": map[string]any{
			"owner_email": "owner@example.com",
			"rows":        12,
		},
	}

	out := MaskFields(in, "customer_id", "owner_email")

	assert.Equal(t, "pro", out["plan"])
	assert.Equal(t, "cus_****WXYZ", out["customer_id"])
	nested := out["nested"].(map[string]any)
	assert.Equal(t, "o****@example.com", nested["owner_email"])
	assert.Equal(t, 12, nested["rows"])
	assert.Equal(t, "cus_ABCDEFWXYZ", in["customer_id"])
	assert.Nil(t, MaskFields(nil, "x"))
}
