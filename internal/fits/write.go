// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.


package fits

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// Writes an in-memory FITS image to a file with given filename.
// Creates/overwrites the file if necessary
func (fits *Image) WriteFile(fileName string) error {
	f, err := os.Create(fileName)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err = fits.Write(w); err != nil {
		f.Close()
		return fmt.Errorf("%d: writing %s: %w", fits.ID, fileName, err)
	}
	if err = w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Writes an in-memory FITS image to an io.Writer, as 32-bit floating point data.
// Keeps all header entries. IEEE NaN pixel values are preserved
func (fits *Image) Write(f io.Writer) error {
	// Build header in string buffer
	sb := strings.Builder{}
	writeBool(&sb, "SIMPLE", true, "FITS standard 4.0")
	writeInt(&sb, "BITPIX", -32, "32-bit floating point")
	writeInt(&sb, "NAXIS", int64(len(fits.Naxisn)), "Number of axes")
	for i := 0; i < len(fits.Naxisn); i++ {
		writeInt(&sb, fmt.Sprintf("NAXIS%d", i+1), int64(fits.Naxisn[i]), "Axis size")
	}

	h := &fits.Header
	for _, key := range h.OrderedKeys() {
		if v, ok := h.Bools[key]; ok {
			writeBool(&sb, key, v, "")
		} else if v, ok := h.Ints[key]; ok {
			writeInt(&sb, key, v, "")
		} else if v, ok := h.Floats[key]; ok {
			writeFloat(&sb, key, v, "")
		} else if v, ok := h.Strings[key]; ok {
			writeString(&sb, key, v, "")
		} else if v, ok := h.Dates[key]; ok {
			writeString(&sb, key, v, "")
		}
	}
	for _, c := range h.Comments {
		writeText(&sb, "COMMENT", c)
	}
	for _, c := range h.History {
		writeText(&sb, "HISTORY", c)
	}
	writeEnd(&sb)

	// Pad current header block with spaces if necessary
	if bytesInHeaderBlock := sb.Len() % fitsBlockSize; bytesInHeaderBlock > 0 {
		sb.WriteString(strings.Repeat(" ", fitsBlockSize-bytesInHeaderBlock))
	}

	// Write header block(s)
	if _, err := io.WriteString(f, sb.String()); err != nil {
		return err
	}

	// Write payload data, then pad to full block
	if err := writeFloat32Array(f, fits.Data); err != nil {
		return err
	}
	if bytesInDataBlock := (len(fits.Data) * 4) % fitsBlockSize; bytesInDataBlock > 0 {
		_, err := f.Write(make([]byte, fitsBlockSize-bytesInDataBlock))
		return err
	}
	return nil
}

// Writes a single header card, padded or truncated to the line size
func writeCard(w *strings.Builder, card string) {
	if len(card) > HeaderLineSize {
		card = card[:HeaderLineSize]
	}
	w.WriteString(card)
	w.WriteString(strings.Repeat(" ", HeaderLineSize-len(card)))
}

func withComment(card, comment string) string {
	if comment == "" {
		return card
	}
	return card + " / " + comment
}

func trimKey(key string) string {
	if len(key) > 8 {
		return key[0:8]
	}
	return key
}

// Writes a FITS header boolean value
func writeBool(w *strings.Builder, key string, value bool, comment string) {
	v := "F"
	if value {
		v = "T"
	}
	writeCard(w, withComment(fmt.Sprintf("%-8s= %20s", trimKey(key), v), comment))
}

// Writes a FITS header integer value
func writeInt(w *strings.Builder, key string, value int64, comment string) {
	writeCard(w, withComment(fmt.Sprintf("%-8s= %20d", trimKey(key), value), comment))
}

// Writes a FITS header floating point value. Skips values not representable in FITS
func writeFloat(w *strings.Builder, key string, value float64, comment string) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return
	}
	s := strconv.FormatFloat(value, 'G', -1, 64)
	if !strings.ContainsAny(s, ".E") {
		s += "."
	}
	writeCard(w, withComment(fmt.Sprintf("%-8s= %20s", trimKey(key), s), comment))
}

// Maximum number of characters of an escaped string chunk on a card with continuation marker
const maxStringChunk = 67

// Writes a FITS header string value, with escaping and CONTINUE cards if necessary
func writeString(w *strings.Builder, key, value, comment string) {
	chunks := splitEscaped(value, maxStringChunk)
	if len(chunks) == 1 {
		writeCard(w, withComment(fmt.Sprintf("%-8s= '%-8s'", trimKey(key), chunks[0]), comment))
		return
	}
	writeCard(w, fmt.Sprintf("%-8s= '%s&'", trimKey(key), chunks[0]))
	for i := 1; i < len(chunks)-1; i++ {
		writeCard(w, fmt.Sprintf("CONTINUE  '%s&'", chunks[i]))
	}
	writeCard(w, fmt.Sprintf("CONTINUE  '%s'", chunks[len(chunks)-1]))
}

// Escapes ' characters and splits the result into chunks of at most limit bytes,
// never breaking an escaped '' pair
func splitEscaped(value string, limit int) []string {
	chunks := []string{}
	cur := strings.Builder{}
	for _, r := range value {
		esc := string(r)
		if r == '\'' {
			esc = "''"
		}
		if cur.Len()+len(esc) > limit {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
		cur.WriteString(esc)
	}
	return append(chunks, cur.String())
}

// Writes a COMMENT or HISTORY line, wrapping long text
func writeText(w *strings.Builder, key, text string) {
	const width = HeaderLineSize - 8
	for len(text) > width {
		writeCard(w, fmt.Sprintf("%-8s%s", key, text[:width]))
		text = text[width:]
	}
	writeCard(w, fmt.Sprintf("%-8s%s", key, text))
}

// Writes a FITS header end record
func writeEnd(w *strings.Builder) {
	writeCard(w, "END")
}

// Writes FITS binary body data in network byte order
func writeFloat32Array(w io.Writer, data []float32) error {
	buf := make([]byte, bufLen)

	for block := 0; block < len(data); block += (bufLen >> 2) {
		size := len(data) - block
		if size > (bufLen >> 2) {
			size = (bufLen >> 2)
		}

		for offset := 0; offset < size; offset++ {
			val := math.Float32bits(data[block+offset])
			buf[(offset<<2)+0] = byte(val >> 24)
			buf[(offset<<2)+1] = byte(val >> 16)
			buf[(offset<<2)+2] = byte(val >> 8)
			buf[(offset<<2)+3] = byte(val)
		}
		if _, err := w.Write(buf[:(size << 2)]); err != nil {
			return err
		}
	}
	return nil
}
