package extract

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/richardlehane/mscfb"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// Offsets into the Word 97-2003 File Information Block.
const (
	fibFlagsOffset   = 0x000A
	fibCcpTextOffset = 0x004C
	fibFcClxOffset   = 0x01A2
	fibLcbClxOffset  = 0x01A6

	fWhichTblStm = 0x0200
	fCompressed  = 0x40000000
)

var zipMagic = []byte("PK\x03\x04")

// docText reads a .doc upload. Files saved as OOXML under a .doc name are
// handled like .docx; anything else must be a Word 97-2003 compound file.
func docText(content []byte) (string, error) {
	if bytes.HasPrefix(content, zipMagic) {
		return docxText(content)
	}

	streams, err := readCompoundStreams(content, "WordDocument", "0Table", "1Table")
	if err != nil {
		return "", err
	}
	wordDoc := streams["WordDocument"]
	if len(wordDoc) < fibLcbClxOffset+4 {
		return "", fmt.Errorf("failed to open doc: missing or short WordDocument stream")
	}

	tableName := "0Table"
	if binary.LittleEndian.Uint16(wordDoc[fibFlagsOffset:])&fWhichTblStm != 0 {
		tableName = "1Table"
	}
	table, ok := streams[tableName]
	if !ok {
		return "", fmt.Errorf("failed to open doc: missing %s stream", tableName)
	}

	ccpText := int(binary.LittleEndian.Uint32(wordDoc[fibCcpTextOffset:]))
	fcClx := int(binary.LittleEndian.Uint32(wordDoc[fibFcClxOffset:]))
	lcbClx := int(binary.LittleEndian.Uint32(wordDoc[fibLcbClxOffset:]))
	if lcbClx <= 0 || fcClx < 0 || fcClx+lcbClx > len(table) {
		return "", fmt.Errorf("failed to open doc: invalid piece table location")
	}

	raw, err := readPieces(wordDoc, table[fcClx:fcClx+lcbClx], ccpText)
	if err != nil {
		return "", err
	}
	return cleanWordText(raw), nil
}

func readCompoundStreams(content []byte, names ...string) (map[string][]byte, error) {
	r, err := mscfb.New(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to open doc: %w", err)
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}

	streams := make(map[string][]byte)
	for {
		entry, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read doc: %w", err)
		}
		if !want[entry.Name] {
			continue
		}
		data, err := io.ReadAll(entry)
		if err != nil {
			return nil, fmt.Errorf("failed to read doc stream %s: %w", entry.Name, err)
		}
		streams[entry.Name] = data
	}
	return streams, nil
}

// readPieces walks the Clx piece table and decodes up to limit characters
// of main document text.
func readPieces(wordDoc, clx []byte, limit int) (string, error) {
	// Skip Prc entries (formatting) preceding the Pcdt.
	i := 0
	for i < len(clx) && clx[i] == 0x01 {
		if i+3 > len(clx) {
			return "", fmt.Errorf("failed to read doc: truncated Clx")
		}
		i += 3 + int(binary.LittleEndian.Uint16(clx[i+1:]))
	}
	if i+5 > len(clx) || clx[i] != 0x02 {
		return "", fmt.Errorf("failed to read doc: piece table not found")
	}
	lcb := int(binary.LittleEndian.Uint32(clx[i+1:]))
	plc := clx[i+5:]
	if lcb > len(plc) || lcb < 4 || (lcb-4)%12 != 0 {
		return "", fmt.Errorf("failed to read doc: invalid piece table size")
	}
	n := (lcb - 4) / 12
	pcds := plc[(n+1)*4:]

	utf16Dec := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	cp1252Dec := charmap.Windows1252.NewDecoder()

	var sb strings.Builder
	remaining := limit
	for p := 0; p < n && remaining > 0; p++ {
		cpStart := int(binary.LittleEndian.Uint32(plc[p*4:]))
		cpEnd := int(binary.LittleEndian.Uint32(plc[(p+1)*4:]))
		chars := cpEnd - cpStart
		if chars <= 0 {
			continue
		}
		if chars > remaining {
			chars = remaining
		}
		remaining -= chars

		fc := binary.LittleEndian.Uint32(pcds[p*8+2:])
		var (
			start, size int
			dec         interface{ Bytes([]byte) ([]byte, error) }
		)
		if fc&fCompressed != 0 {
			start, size, dec = int(fc&^fCompressed)/2, chars, cp1252Dec
		} else {
			start, size, dec = int(fc), chars*2, utf16Dec
		}
		if start < 0 || start+size > len(wordDoc) {
			return "", fmt.Errorf("failed to read doc: piece %d out of range", p)
		}
		text, err := dec.Bytes(wordDoc[start : start+size])
		if err != nil {
			return "", fmt.Errorf("failed to decode doc text: %w", err)
		}
		sb.Write(text)
	}
	return sb.String(), nil
}

// Field markers. A field is begin, instruction code, an optional separator,
// the displayed result, then end. Fields nest.
const (
	fieldBegin     = 0x13
	fieldSeparator = 0x14
	fieldEnd       = 0x15
)

// cleanWordText turns Word control characters into plain text: paragraph
// and cell marks become newlines, and fields keep only their result text.
func cleanWordText(raw string) string {
	var sb strings.Builder
	// One entry per open field; true while still in its instruction code.
	var fields []bool
	inCode := func() bool {
		for _, code := range fields {
			if code {
				return true
			}
		}
		return false
	}
	for _, r := range raw {
		switch r {
		case fieldBegin:
			fields = append(fields, true)
			continue
		case fieldSeparator:
			if n := len(fields); n > 0 {
				fields[n-1] = false
			}
			continue
		case fieldEnd:
			if n := len(fields); n > 0 {
				fields = fields[:n-1]
			}
			continue
		}
		if inCode() {
			continue
		}
		switch {
		case r == '\r' || r == '\v' || r == '\f' || r == 0x07:
			sb.WriteByte('\n')
		case r == '\t' || r == '\n':
			sb.WriteRune(r)
		case r < 0x20:
		default:
			sb.WriteRune(r)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}
