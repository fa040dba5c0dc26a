package main

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"strings"
)

// Server-side sentence codec: words are length-prefixed, sentences end with
// a zero-length word.

func readSentence(reader *bufio.Reader) ([]string, error) {
	var words []string
	for {
		length, err := readLength(reader)
		if err != nil {
			return nil, err
		}
		if length == 0 {
			return words, nil
		}
		word := make([]byte, length)
		if _, err := io.ReadFull(reader, word); err != nil {
			return nil, err
		}
		words = append(words, string(word))
	}
}

func readLength(reader *bufio.Reader) (uint32, error) {
	first, err := reader.ReadByte()
	if err != nil {
		return 0, err
	}

	var extra int
	var length uint32
	switch {
	case first < 0x80:
		return uint32(first), nil
	case first&0xC0 == 0x80:
		extra, length = 1, uint32(first&0x3F)
	case first&0xE0 == 0xC0:
		extra, length = 2, uint32(first&0x1F)
	case first&0xF0 == 0xE0:
		extra, length = 3, uint32(first&0x0F)
	case first == 0xF0:
		extra, length = 4, 0
	default:
		return 0, fmt.Errorf("malformed word length prefix 0x%02x", first)
	}
	for index := 0; index < extra; index++ {
		next, err := reader.ReadByte()
		if err != nil {
			return 0, err
		}
		length = length<<8 | uint32(next)
	}
	return length, nil
}

func encodeLength(length uint32) []byte {
	switch {
	case length < 0x80:
		return []byte{byte(length)}
	case length < 0x4000:
		value := length | 0x8000
		return []byte{byte(value >> 8), byte(value)}
	case length < 0x200000:
		value := length | 0xC00000
		return []byte{byte(value >> 16), byte(value >> 8), byte(value)}
	case length < 0x10000000:
		value := length | 0xE0000000
		return []byte{byte(value >> 24), byte(value >> 16), byte(value >> 8), byte(value)}
	default:
		encoded := make([]byte, 5)
		encoded[0] = 0xF0
		binary.BigEndian.PutUint32(encoded[1:], length)
		return encoded
	}
}

func writeSentence(writer io.Writer, words []string) error {
	var frame []byte
	for _, word := range words {
		frame = append(frame, encodeLength(uint32(len(word)))...)
		frame = append(frame, word...)
	}
	frame = append(frame, 0)
	_, err := writer.Write(frame)
	return err
}

// request is a parsed inbound command sentence.
type request struct {
	command string
	tag     string
	attrs   map[string]string
	queries []string
}

func parseRequest(words []string) (request, error) {
	if len(words) == 0 {
		return request{}, fmt.Errorf("empty request sentence")
	}
	if !strings.HasPrefix(words[0], "/") {
		return request{}, fmt.Errorf("request does not start with a command path: %q", words[0])
	}

	parsed := request{command: words[0], attrs: make(map[string]string)}
	for _, word := range words[1:] {
		switch {
		case strings.HasPrefix(word, ".tag="):
			parsed.tag = word[len(".tag="):]
		case strings.HasPrefix(word, "="):
			body := word[1:]
			if index := strings.IndexByte(body, '='); index >= 0 {
				parsed.attrs[body[:index]] = body[index+1:]
			} else {
				parsed.attrs[body] = ""
			}
		case strings.HasPrefix(word, "?"):
			parsed.queries = append(parsed.queries, word)
		default:
			return request{}, fmt.Errorf("unexpected word in request: %q", word)
		}
	}
	return parsed, nil
}
