package ros

import (
	"bytes"
	"reflect"
	"testing"
)

func TestSentenceFraming(t *testing.T) {
	words := []string{"/system/identity/print", "=name=value", ".tag=7"}
	reader := newSentenceReader(bytes.NewReader(encodeSentence(words)))

	decoded, err := reader.readSentence()
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !reflect.DeepEqual(decoded, words) {
		t.Fatalf("got %v, want %v", decoded, words)
	}
}

func TestEmptySentenceDecodesToZeroWords(t *testing.T) {
	reader := newSentenceReader(bytes.NewReader(encodeSentence(nil)))
	decoded, err := reader.readSentence()
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(decoded) != 0 {
		t.Fatalf("empty sentence yielded %v", decoded)
	}
}

func TestParseSentenceKinds(t *testing.T) {
	cases := map[string]Kind{
		markerDone:  KindDone,
		markerRow:   KindRow,
		markerTrap:  KindTrap,
		markerFatal: KindFatal,
	}
	for marker, kind := range cases {
		sentence, err := parseSentence([]string{marker})
		if err != nil {
			t.Fatalf("%s: parse failed: %v", marker, err)
		}
		if sentence.Kind() != kind {
			t.Fatalf("%s: got kind %v", marker, sentence.Kind())
		}
	}

	if _, err := parseSentence([]string{"!bogus"}); !HasErrorCode(err, ProtocolError) {
		t.Fatalf("unknown marker: got %v, want ProtocolError", err)
	}
}

func TestParseSentenceAttributes(t *testing.T) {
	sentence, err := parseSentence([]string{markerRow, "=name=MyRouter", "=comment=", ".tag=3"})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if value, exists := sentence.Attribute("name"); !exists || value != "MyRouter" {
		t.Fatalf("name attribute: got %q, %v", value, exists)
	}
	if value, exists := sentence.Attribute("comment"); !exists || value != "" {
		t.Fatal("an explicitly empty attribute must still be present")
	}
	if sentence.Has("missing") {
		t.Fatal("absent attribute reported as present")
	}
	if tag, hasTag := sentence.Tag(); !hasTag || tag != "3" {
		t.Fatalf("tag: got %q, %v", tag, hasTag)
	}
	if names := sentence.AttributeNames(); !reflect.DeepEqual(names, []string{"name", "comment"}) {
		t.Fatalf("attribute order: got %v", names)
	}
}

func TestFatalDeviceMessageFromBareWord(t *testing.T) {
	sentence, err := parseSentence([]string{markerFatal, "session terminated"})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if sentence.DeviceMessage() != "session terminated" {
		t.Fatalf("got %q", sentence.DeviceMessage())
	}

	trap, err := parseSentence([]string{markerTrap, "=message=no such command"})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if trap.DeviceMessage() != "no such command" {
		t.Fatalf("got %q", trap.DeviceMessage())
	}
}
