package ros

import (
	"strings"
)

// Kind classifies a reply sentence by its first word.
type Kind int

const (
	// KindDone terminates a command successfully.
	KindDone Kind = iota
	// KindRow is one streamed unit of result data for a still-open command.
	KindRow
	// KindTrap is a non-fatal, command-scoped error or status notice.
	KindTrap
	// KindFatal is a session-ending notice from the device.
	KindFatal
)

func (kind Kind) String() string {
	switch kind {
	case KindDone:
		return "!done"
	case KindRow:
		return "!re"
	case KindTrap:
		return "!trap"
	case KindFatal:
		return "!fatal"
	}
	return "!unknown"
}

const (
	markerDone  = "!done"
	markerRow   = "!re"
	markerTrap  = "!trap"
	markerFatal = "!fatal"

	tagPrefix       = ".tag="
	attributePrefix = "="
)

// Sentence is one received reply. Attribute values may be explicitly empty,
// which is distinct from the attribute being absent; words that are neither
// attributes nor the tag (a Fatal reason is sent as a bare word) are kept
// verbatim in arrival order.
type Sentence struct {
	kind   Kind
	tag    string
	hasTag bool
	attrs  map[string]string
	names  []string
	rest   []string
}

func parseSentence(words []string) (*Sentence, error) {
	if len(words) == 0 {
		return nil, NewError(ProtocolError, "cannot classify an empty sentence")
	}

	var kind Kind
	switch words[0] {
	case markerDone:
		kind = KindDone
	case markerRow:
		kind = KindRow
	case markerTrap:
		kind = KindTrap
	case markerFatal:
		kind = KindFatal
	default:
		return nil, NewError(ProtocolError, "unknown reply marker "+words[0])
	}

	sentence := &Sentence{kind: kind, attrs: make(map[string]string)}
	for _, word := range words[1:] {
		switch {
		case strings.HasPrefix(word, tagPrefix):
			sentence.tag = word[len(tagPrefix):]
			sentence.hasTag = true
		case strings.HasPrefix(word, attributePrefix):
			name, value := splitAttribute(word)
			if _, exists := sentence.attrs[name]; !exists {
				sentence.names = append(sentence.names, name)
			}
			sentence.attrs[name] = value
		default:
			sentence.rest = append(sentence.rest, word)
		}
	}
	return sentence, nil
}

func splitAttribute(word string) (string, string) {
	body := word[len(attributePrefix):]
	if index := strings.IndexByte(body, '='); index >= 0 {
		return body[:index], body[index+1:]
	}
	return body, ""
}

// Kind returns the sentence classification.
func (sentence *Sentence) Kind() Kind { return sentence.kind }

// Tag returns the correlation tag and whether the sentence carried one.
func (sentence *Sentence) Tag() (string, bool) { return sentence.tag, sentence.hasTag }

// Attribute returns the value for name. The boolean distinguishes an
// attribute explicitly set to the empty string from an absent one.
func (sentence *Sentence) Attribute(name string) (string, bool) {
	value, exists := sentence.attrs[name]
	return value, exists
}

// Has reports whether the attribute is present.
func (sentence *Sentence) Has(name string) bool {
	_, exists := sentence.attrs[name]
	return exists
}

// AttributeNames returns the attribute names in arrival order.
func (sentence *Sentence) AttributeNames() []string {
	names := make([]string, len(sentence.names))
	copy(names, sentence.names)
	return names
}

// DeviceMessage extracts the human-readable text of a Trap or Fatal: the
// message attribute when present, otherwise any bare words.
func (sentence *Sentence) DeviceMessage() string {
	if message, exists := sentence.attrs["message"]; exists {
		return message
	}
	return strings.Join(sentence.rest, " ")
}
