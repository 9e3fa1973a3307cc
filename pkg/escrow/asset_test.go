package escrow

import "testing"

func TestAssetEqual(t *testing.T) {
	if !Native().Equal(Native()) {
		t.Error("native != native")
	}
	if !Token(hyplToken).Equal(Token(hyplToken)) {
		t.Error("same token not equal")
	}
	if Token(hyplToken).Equal(Token(usdToken)) {
		t.Error("distinct tokens equal")
	}
	if Native().Equal(Token(hyplToken)) {
		t.Error("native equals token")
	}
}

func TestParseAsset(t *testing.T) {
	a, err := ParseAsset("native")
	if err != nil || !a.IsNative() {
		t.Fatalf("parse native = %v, %v", a, err)
	}

	a, err = ParseAsset(hyplToken.Hex())
	if err != nil || a.IsNative() || a.Token != hyplToken {
		t.Fatalf("parse token = %v, %v", a, err)
	}

	if _, err := ParseAsset("not-an-asset"); err == nil {
		t.Error("expected error for garbage asset")
	}
}
