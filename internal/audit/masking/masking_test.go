package masking

import "testing"

func TestMaskSecret(t *testing.T) {
	cases := map[string]string{
		"":                   "",
		"abc":                "****",
		"pay_ABCDEFGH1234":   "pay_****1234",
		"0f1e2d3c4b5a69788f": "****788f",
	}
	for in, want := range cases {
		if got := MaskSecret(in); got != want {
			t.Fatalf("MaskSecret(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMaskKeysOnlyTouchesSensitiveKeys(t *testing.T) {
	out := MaskKeys(map[string]any{
		"signature": "deadbeefcafe",
		"order_id":  "12345",
		"nested": map[string]any{
			"payment_id": "pay_XYZ98765",
		},
	}, SensitiveKeys...)

	if out["signature"] != "****cafe" {
		t.Fatalf("unexpected signature %v", out["signature"])
	}
	if out["order_id"] != "12345" {
		t.Fatalf("order_id must not be masked, got %v", out["order_id"])
	}
	nested, ok := out["nested"].(map[string]any)
	if !ok || nested["payment_id"] != "pay_****8765" {
		t.Fatalf("unexpected nested payload %v", out["nested"])
	}
	if MaskKeys(nil) != nil {
		t.Fatalf("expected nil for empty input")
	}
}
