package checksum

import "testing"

func TestSumStable(t *testing.T) {
	if Sum([]byte("verse")) != Sum([]byte("verse")) {
		t.Fatal("same input should hash the same")
	}
	if Sum([]byte("verse")) == Sum([]byte("chorus")) {
		t.Fatal("different input should hash differently")
	}
}

func TestFieldsSeparatesParts(t *testing.T) {
	if Fields("ab", "c") == Fields("a", "bc") {
		t.Error("field boundaries should affect the digest")
	}
	if Fields("title", "", "body") != Sum([]byte("title\x00\x00body")) {
		t.Error("Fields should match Sum over NUL-joined parts")
	}
}
