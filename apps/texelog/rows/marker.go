// Copyright 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: apps/texelog/rows/marker.go
// Summary: Codec for raw row blocks returned by a row source.
//
// Raw format:
//
//	Rows are separated by '\n'. Each row embeds a stream position marker
//	(0x02 digits 0x02) and optionally a source id marker (0x03 digits 0x03).
//	Markers may appear anywhere in the line and are stripped from the text.
//	Encode stuffs the reserved bytes (the two delimiters, the separator and
//	Escape itself) found in row text as Escape followed by the byte + 0x40,
//	so text never forges a marker; Clear undoes it.

package rows

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"
)

const (
	// PositionDelimiter wraps the stream position marker.
	PositionDelimiter = '\x02'
	// SourceDelimiter wraps the source id marker.
	SourceDelimiter = '\x03'
	// RowSeparator separates rows in a raw block.
	RowSeparator = '\n'
	// Escape prefixes a reserved byte inside row text.
	Escape = '\x10'
)

var (
	rePosition = regexp.MustCompile("\x02(\\d*)\x02")
	reSource   = regexp.MustCompile("\x03(\\d*)\x03")
)

// Chunk is a raw row block as answered by a row source for [Start, End].
type Chunk struct {
	Start int64
	End   int64
	Data  []byte
	// Total is the source's row count at the time of the answer.
	Total int64
}

// Encode builds one raw line. A negative sourceID omits the source marker.
func Encode(text string, streamPos int64, sourceID int32) string {
	var sb strings.Builder
	sb.Grow(len(text) + 24)
	if sourceID >= 0 {
		sb.WriteByte(SourceDelimiter)
		sb.WriteString(strconv.FormatInt(int64(sourceID), 10))
		sb.WriteByte(SourceDelimiter)
	}
	writeEscaped(&sb, text)
	sb.WriteByte(PositionDelimiter)
	sb.WriteString(strconv.FormatInt(streamPos, 10))
	sb.WriteByte(PositionDelimiter)
	return sb.String()
}

// EncodeBlock joins encoded lines into a raw block.
func EncodeBlock(lines []string) []byte {
	return []byte(strings.Join(lines, string(RowSeparator)))
}

// ExtractPosition returns the stream position marker of a raw line, or -1
// when the line has none, more than one, or a non-numeric one.
func ExtractPosition(line string) int64 {
	return extractMarker(rePosition, line)
}

// ExtractSourceID returns the source id marker of a raw line, or -1.
func ExtractSourceID(line string) int32 {
	id := extractMarker(reSource, line)
	if id < 0 || id > int64(^uint32(0)>>1) {
		return -1
	}
	return int32(id)
}

func extractMarker(re *regexp.Regexp, line string) int64 {
	matches := re.FindAllStringSubmatch(line, 2)
	if len(matches) != 1 || matches[0][1] == "" {
		return -1
	}
	n, err := strconv.ParseInt(matches[0][1], 10, 64)
	if err != nil {
		return -1
	}
	return n
}

// Clear strips every marker from a raw line and restores escaped bytes.
func Clear(line string) string {
	if strings.IndexByte(line, PositionDelimiter) >= 0 || strings.IndexByte(line, SourceDelimiter) >= 0 {
		line = rePosition.ReplaceAllString(line, "")
		line = reSource.ReplaceAllString(line, "")
	}
	return unescape(line)
}

func reserved(b byte) bool {
	return b == PositionDelimiter || b == SourceDelimiter || b == RowSeparator || b == Escape
}

func writeEscaped(sb *strings.Builder, text string) {
	for i := 0; i < len(text); i++ {
		if b := text[i]; reserved(b) {
			sb.WriteByte(Escape)
			sb.WriteByte(b + 0x40)
			continue
		}
		sb.WriteByte(text[i])
	}
}

func unescape(s string) string {
	if strings.IndexByte(s, Escape) < 0 {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == Escape && i+1 < len(s) {
			sb.WriteByte(s[i+1] - 0x40)
			i++
			continue
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}

// Parse splits a chunk into packets. Row i gets SourcePos = c.Start+i.
// Lines without a valid position marker are dropped and counted in skipped.
func Parse(c Chunk) (packets []Packet, skipped int) {
	data := bytes.TrimSuffix(c.Data, []byte{RowSeparator})
	if len(data) == 0 {
		return nil, 0
	}
	lines := bytes.Split(data, []byte{RowSeparator})
	packets = make([]Packet, 0, len(lines))
	for i, raw := range lines {
		line := string(raw)
		pos := ExtractPosition(line)
		if pos < 0 {
			skipped++
			continue
		}
		text := Clear(line)
		packets = append(packets, Packet{
			Text:      &text,
			Slot:      c.Start + int64(i),
			SourcePos: c.Start + int64(i),
			StreamPos: pos,
			SourceID:  ExtractSourceID(line),
		})
	}
	return packets, skipped
}
