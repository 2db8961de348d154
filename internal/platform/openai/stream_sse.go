package openai

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// streamSSE parses a server-sent event stream, invoking onEvent once per
// dispatched event with the joined data lines.
func streamSSE(r io.Reader, onEvent func(event string, data string) error) error {
	br := bufio.NewReader(r)
	var (
		eventName string
		dataLines []string
	)

	dispatch := func() error {
		defer func() {
			eventName = ""
			dataLines = nil
		}()
		if len(dataLines) == 0 || onEvent == nil {
			return nil
		}
		return onEvent(eventName, strings.Join(dataLines, "\n"))
	}

	for {
		line, err := br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		eof := errors.Is(err, io.EOF)
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			if dErr := dispatch(); dErr != nil {
				return dErr
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}

		if eof {
			return dispatch()
		}
	}
}
