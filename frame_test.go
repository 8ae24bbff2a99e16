package pagecap

import (
	"bytes"
	"testing"
)

func TestDecodeDataURL(t *testing.T) {
	got, err := decodeDataURL("data:image/png;base64,aGVsbG8=")
	if err != nil {
		t.Fatalf("decodeDataURL: %v", err)
	}
	if !bytes.Equal(got, []byte("hello")) {
		t.Errorf("decodeDataURL = %q, want hello", got)
	}

	for _, bad := range []string{"", "data:,", "aGVsbG8=", "data:image/png;base64,%%%"} {
		if _, err := decodeDataURL(bad); err == nil {
			t.Errorf("decodeDataURL(%q) succeeded, want error", bad)
		}
	}
}
