package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/rs/zerolog"

	"github.com/rosproto/ros-client-go/ros"
)

var errQuit = errors.New("session ended")

var (
	attrColor  = color.New(color.FgCyan)
	doneColor  = color.New(color.FgGreen)
	trapColor  = color.New(color.FgRed)
	fatalColor = color.New(color.FgRed, color.Bold)
)

type shell struct {
	client         *ros.Client
	out            io.Writer
	logger         zerolog.Logger
	autoCancelRows int
}

// run reads command lines until EOF or /quit. Each line is a command path
// followed by argument words, passed through uninterpreted.
func (sh *shell) run(input io.Reader) error {
	scanner := bufio.NewScanner(input)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := sh.execute(line); err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}
			if !sh.client.Connected() {
				return err
			}
			fmt.Fprintln(sh.out, trapColor.Sprint("error: ")+err.Error())
		}
	}
	return scanner.Err()
}

func (sh *shell) execute(line string) error {
	command, arguments := splitCommandLine(line)
	if command == "/quit" {
		if err := sh.client.Shutdown(); err != nil {
			return err
		}
		fmt.Fprintln(sh.out, doneColor.Sprint("session closed by device"))
		return errQuit
	}

	rows := 0
	finished := false
	request, err := sh.client.SendRequest(true, command, arguments, func(request *ros.Request, sentence *ros.Sentence) error {
		if sentence.Kind() == ros.KindRow {
			rows++
			if status, exists := sentence.Attribute("status"); exists && status == "finished" {
				finished = true
			}
		}
		sh.printSentence(sentence)
		return nil
	})
	if err != nil {
		return err
	}

	cancelled := false
	for !request.Done() {
		if _, err := sh.client.WaitForReply(); err != nil {
			if ros.HasErrorCode(err, ros.TimeoutError) {
				sh.logger.Warn().Str("command", command).Msg("still waiting for the device")
				continue
			}
			return err
		}
		if !cancelled && shouldAutoCancel(rows, sh.autoCancelRows, finished) {
			if _, err := sh.client.Cancel(request); err != nil {
				return err
			}
			cancelled = true
			sh.logger.Debug().Str("tag", request.Tag()).Int("rows", rows).Msg("auto-cancel issued")
		}
	}

	// Drain the /cancel bookkeeping request, if one is outstanding.
	for sh.client.PendingRequests() > 0 {
		if _, err := sh.client.WaitForReply(); err != nil {
			if ros.HasErrorCode(err, ros.TimeoutError) {
				continue
			}
			return err
		}
	}
	return nil
}

func (sh *shell) printSentence(sentence *ros.Sentence) {
	switch sentence.Kind() {
	case ros.KindRow:
		for _, name := range sentence.AttributeNames() {
			value, _ := sentence.Attribute(name)
			fmt.Fprintf(sh.out, "  %s: %s\n", attrColor.Sprint(name), value)
		}
		fmt.Fprintln(sh.out)
	case ros.KindDone:
		fmt.Fprintln(sh.out, doneColor.Sprint("done"))
	case ros.KindTrap:
		fmt.Fprintln(sh.out, trapColor.Sprint("trap: ")+sentence.DeviceMessage())
	case ros.KindFatal:
		fmt.Fprintln(sh.out, fatalColor.Sprint("fatal: ")+sentence.DeviceMessage())
	}
}

// splitCommandLine separates the command path from its argument words.
func splitCommandLine(line string) (string, []string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}
	return fields[0], fields[1:]
}

// shouldAutoCancel applies the streaming-fetch policy: stop after the row
// budget, or as soon as the device reports a finished status.
func shouldAutoCancel(rows, limit int, finished bool) bool {
	if finished {
		return true
	}
	return limit > 0 && rows >= limit
}
