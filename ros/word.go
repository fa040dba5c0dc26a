package ros

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// Word length size classes. A word is a self-describing length prefix
// followed by that many raw bytes; the prefix uses the smallest class that
// can represent the length.
const (
	lengthMax1 = 0x80
	lengthMax2 = 0x4000
	lengthMax3 = 0x200000
	lengthMax4 = 0x10000000

	prefix2 = 0x8000
	prefix3 = 0xC00000
	prefix4 = 0xE0000000
	prefix5 = 0xF0
)

func encodeLength(length uint32) []byte {
	switch {
	case length < lengthMax1:
		return []byte{byte(length)}
	case length < lengthMax2:
		value := length | prefix2
		return []byte{byte(value >> 8), byte(value)}
	case length < lengthMax3:
		value := length | prefix3
		return []byte{byte(value >> 16), byte(value >> 8), byte(value)}
	case length < lengthMax4:
		value := length | prefix4
		return []byte{byte(value >> 24), byte(value >> 16), byte(value >> 8), byte(value)}
	default:
		encoded := make([]byte, 5)
		encoded[0] = prefix5
		binary.BigEndian.PutUint32(encoded[1:], length)
		return encoded
	}
}

func appendWord(buffer []byte, word string) []byte {
	buffer = append(buffer, encodeLength(uint32(len(word)))...)
	return append(buffer, word...)
}

// encodeSentence frames the words and the zero-length terminator.
func encodeSentence(words []string) []byte {
	size := 1
	for _, word := range words {
		size += len(word) + 5
	}
	buffer := make([]byte, 0, size)
	for _, word := range words {
		buffer = appendWord(buffer, word)
	}
	return append(buffer, 0)
}

// sentenceReader decodes sentences from a stream and tracks how many bytes
// of the sentence currently being read have been consumed. A read deadline
// that expires with zero bytes consumed leaves the stream usable for a
// retry; expiring mid-sentence does not.
type sentenceReader struct {
	reader   *bufio.Reader
	consumed int
}

func newSentenceReader(reader io.Reader) *sentenceReader {
	return &sentenceReader{reader: bufio.NewReader(reader)}
}

func (sr *sentenceReader) readByte() (byte, error) {
	value, err := sr.reader.ReadByte()
	if err == nil {
		sr.consumed++
	}
	return value, err
}

func (sr *sentenceReader) readFull(buffer []byte) error {
	count, err := io.ReadFull(sr.reader, buffer)
	sr.consumed += count
	return err
}

func (sr *sentenceReader) readLength() (uint32, error) {
	first, err := sr.readByte()
	if err != nil {
		return 0, err
	}

	var width int
	var length uint32
	switch {
	case first < lengthMax1:
		return uint32(first), nil
	case first&0xC0 == 0x80:
		width, length = 1, uint32(first&0x3F)
	case first&0xE0 == 0xC0:
		width, length = 2, uint32(first&0x1F)
	case first&0xF0 == 0xE0:
		width, length = 3, uint32(first&0x0F)
	case first == prefix5:
		width, length = 4, 0
	default:
		return 0, NewError(ProtocolError, fmt.Sprintf("malformed word length prefix 0x%02x", first))
	}

	for index := 0; index < width; index++ {
		next, err := sr.readByte()
		if err != nil {
			return 0, err
		}
		length = length<<8 | uint32(next)
	}
	return length, nil
}

// readSentence reads words until the zero-length terminator. A terminator
// alone is a valid empty sentence and yields zero words.
func (sr *sentenceReader) readSentence() ([]string, error) {
	sr.consumed = 0

	var words []string
	for {
		length, err := sr.readLength()
		if err != nil {
			return nil, err
		}
		if length == 0 {
			return words, nil
		}

		buffer := make([]byte, length)
		if err := sr.readFull(buffer); err != nil {
			return nil, err
		}
		words = append(words, string(buffer))
	}
}
