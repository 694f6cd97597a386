// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package completion

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	// DataPrefix is the SSE field marker stripped from stream lines.
	DataPrefix = "data: "

	// DoneMarker is the terminal payload.
	DoneMarker = "[DONE]"

	// MaxLineSize bounds a single stream line. Longer lines are skipped with
	// a warning event.
	MaxLineSize = 1 << 20

	// contentPath locates the delta text in a chat-completions chunk.
	contentPath = "choices.0.delta.content"

	readBufferSize = 32 * 1024
)

// =============================================================================
// DECODER
// =============================================================================

// Decode reads a chat-completions stream from r and yields events lazily.
// Partial and batched reads are reassembled into lines. The sequence ends
// after EventDone, at EOF, or with a non-nil error when reading fails; in the
// error case the Event is zero. It is not restartable.
func Decode(r io.Reader) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		br := bufio.NewReaderSize(r, readBufferSize)
		for {
			line, tooLong, err := readLine(br)
			if tooLong {
				ev := Event{Kind: EventWarning, Err: ErrLineTooLong, Raw: line}
				if !yield(ev, nil) {
					return
				}
			} else if ev, ok := DecodeLine(line); ok {
				if !yield(ev, nil) || ev.Kind == EventDone {
					return
				}
			}

			if err != nil {
				if !errors.Is(err, io.EOF) {
					yield(Event{}, err)
				}
				return
			}
		}
	}
}

// DecodeLines applies the per-line rules to lines that were already split by
// the transport.
func DecodeLines(lines iter.Seq[string]) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		for line := range lines {
			ev, ok := DecodeLine(line)
			if !ok {
				continue
			}
			if !yield(ev) || ev.Kind == EventDone {
				return
			}
		}
	}
}

// DecodeLine classifies one stream line. ok is false when the line produces
// no event: blank lines, and records with absent, null or empty content.
func DecodeLine(line string) (ev Event, ok bool) {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return Event{}, false
	}

	payload := line
	if strings.HasPrefix(payload, DataPrefix) {
		payload = payload[len(DataPrefix):]
	}
	payload = strings.TrimSpace(payload)

	switch {
	case payload == "":
		return Event{}, false
	case payload == DoneMarker:
		return Done(), true
	case !gjson.Valid(payload):
		return Malformed(line), true
	}

	record := gjson.Parse(payload)
	if !record.IsObject() {
		return Event{Kind: EventWarning, Raw: line, Err: ErrNotObject}, true
	}

	content := record.Get(contentPath)
	switch content.Type {
	case gjson.Null:
		// Absent and explicit null both land here.
		return Event{}, false
	case gjson.String:
		if content.Str == "" {
			return Event{}, false
		}
		return Delta(content.Str), true
	default:
		return Event{
			Kind: EventWarning,
			Raw:  line,
			Err:  fmt.Errorf("%w: got %s", ErrUnexpectedContent, content.Type),
		}, true
	}
}

// readLine returns the next line without its terminator. A line longer than
// MaxLineSize is consumed and reported through tooLong, with only its first
// bytes returned.
func readLine(br *bufio.Reader) (line string, tooLong bool, err error) {
	var buf []byte
	for {
		chunk, rerr := br.ReadSlice('\n')
		if !tooLong {
			if len(buf)+len(chunk) > MaxLineSize {
				tooLong = true
				head := buf
				if len(head) == 0 {
					head = chunk
				}
				buf = append([]byte(nil), head[:min(len(head), 256)]...)
			} else {
				buf = append(buf, chunk...)
			}
		}
		if errors.Is(rerr, bufio.ErrBufferFull) {
			continue
		}
		return strings.TrimRight(string(buf), "\r\n"), tooLong, rerr
	}
}
