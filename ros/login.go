package ros

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
)

const loginPath = "/login"

// challengeResponse computes the legacy challenge-response digest: MD5 over
// a single zero byte, the password bytes, and the decoded challenge bytes,
// rendered as hex behind the fixed "00" prefix the device expects.
func challengeResponse(password, challengeHex string) (string, error) {
	challenge, err := hex.DecodeString(challengeHex)
	if err != nil {
		return "", NewError(FatalError, fmt.Sprintf("device sent a malformed login challenge: %v", err))
	}

	digest := md5.New()
	digest.Write([]byte{0})
	digest.Write([]byte(password))
	digest.Write(challenge)
	return "00" + hex.EncodeToString(digest.Sum(nil)), nil
}

func (client *Client) authenticate() error {
	client.state = StateAuthenticating
	if err := client.runLoginHandshake(); err != nil {
		client.teardown()
		client.logger.Debug().Err(err).Msg("login failed")
		return err
	}
	client.state = StateReady
	client.logger.Info().Str("device", client.url.Host).Str("user", client.username).Msg("login complete")
	return nil
}

// runLoginHandshake drives the two-round challenge-response exchange. The
// challenge arrives as a Done sentence carrying the hex-encoded ret
// attribute; anything else is a device-side refusal.
func (client *Client) runLoginHandshake() error {
	if err := client.writeSentence([]string{loginPath}); err != nil {
		return err
	}

	challengeReply, err := client.readLoginReply()
	if err != nil {
		return err
	}
	if challengeReply.Kind() != KindDone {
		return NewError(FatalError, loginFailureMessage(challengeReply))
	}
	challengeHex, hasChallenge := challengeReply.Attribute("ret")
	if !hasChallenge {
		return NewError(FatalError, "login reply carried no challenge")
	}

	response, err := challengeResponse(client.password, challengeHex)
	if err != nil {
		return err
	}
	login := []string{loginPath, "=name=" + client.username, "=response=" + response}
	if err := client.writeSentence(login); err != nil {
		return err
	}

	result, err := client.readLoginReply()
	if err != nil {
		return err
	}
	if result.Kind() != KindDone {
		return NewError(FatalError, loginFailureMessage(result))
	}
	if message, rejected := result.Attribute("message"); rejected {
		return NewError(FatalError, message)
	}
	return nil
}

func loginFailureMessage(sentence *Sentence) string {
	if message := sentence.DeviceMessage(); message != "" {
		return message
	}
	return "authentication rejected by device"
}

func (client *Client) readLoginReply() (*Sentence, error) {
	for {
		words, err := client.readSentence()
		if err != nil {
			return nil, err
		}
		if len(words) == 0 {
			continue
		}
		sentence, err := parseSentence(words)
		if err != nil {
			client.teardown()
			return nil, err
		}
		return sentence, nil
	}
}
