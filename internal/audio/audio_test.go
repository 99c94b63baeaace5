package audio

import (
	"encoding/base64"
	"testing"
)

var (
	webm = append([]byte{0x1A, 0x45, 0xDF, 0xA3}, make([]byte, 60)...)
	ogg  = append([]byte("OggS\x00"), make([]byte, 60)...)
	m4a  = append([]byte{0, 0, 0, 0x20, 'f', 't', 'y', 'p', 'M', '4', 'A', ' '}, make([]byte, 60)...)
	wav  = append([]byte("RIFF\x24\x00\x00\x00WAVEfmt "), make([]byte, 60)...)
)

func TestDetect(t *testing.T) {
	cases := map[string][]byte{
		"audio/webm": webm,
		"audio/ogg":  ogg,
		"audio/mp4":  m4a,
		"audio/wav":  wav,
		"":           []byte("plain text, not audio"),
	}
	for want, data := range cases {
		if got := Detect(data); got != want {
			t.Errorf("Detect(%q...) = %q, want %q", data[:4], got, want)
		}
	}
}

func TestValidate(t *testing.T) {
	got, err := Validate(webm, "audio/webm;codecs=opus")
	if err != nil || got != "audio/webm;codecs=opus" {
		t.Errorf("Validate webm = %q, %v", got, err)
	}
	if got, err := Validate(ogg, ""); err != nil || got != "audio/ogg" {
		t.Errorf("Validate undeclared = %q, %v", got, err)
	}
	if _, err := Validate(ogg, "audio/webm"); err == nil {
		t.Error("mismatched type should fail")
	}
	if _, err := Validate([]byte("<html>"), ""); err == nil {
		t.Error("non-audio should fail")
	}
	if _, err := Validate(nil, ""); err == nil {
		t.Error("empty payload should fail")
	}
}

func TestDecodeDataURI(t *testing.T) {
	uri := "data:audio/webm;codecs=opus;base64," + base64.StdEncoding.EncodeToString(webm)
	data, mime, err := DecodeDataURI(uri)
	if err != nil {
		t.Fatal(err)
	}
	if mime != "audio/webm;codecs=opus" || len(data) != len(webm) {
		t.Errorf("mime = %q, len = %d", mime, len(data))
	}
	for _, bad := range []string{"audio/webm;base64,AAAA", "data:audio/webm,AAAA", "data:audio/webm;base64"} {
		if _, _, err := DecodeDataURI(bad); err == nil {
			t.Errorf("DecodeDataURI(%q) should fail", bad)
		}
	}
}
