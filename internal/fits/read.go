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
	"compress/gzip"
	"fmt"
	"io"
	"math"
	"os"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/mlnoga/aoreduce/internal/stats"
)

var reParser *regexp.Regexp = compileRE() // Regexp parser for FITS header lines

// Reads a FITS image with pixel data from the given file
func NewImageFromFile(fileName string, id int, logWriter io.Writer) (i *Image, err error) {
	i = NewImage()
	i.ID = id
	return i, i.ReadFile(fileName, true, logWriter)
}

// Reads only the header of the given FITS file
func NewHeaderFromFile(fileName string, id int, logWriter io.Writer) (h Header, err error) {
	i := NewImage()
	i.ID = id
	err = i.ReadFile(fileName, false, logWriter)
	return i.Header, err
}

// Checks if the file name carries a FITS suffix, optionally followed by a gzip suffix
func IsFITSName(fileName string) bool {
	lower := strings.ToLower(fileName)
	for _, gz := range []string{".gz", ".gzip"} {
		lower = strings.TrimSuffix(lower, gz)
	}
	for _, ext := range []string{".fits", ".fit", ".fts"} {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// Read FITS data from the file with the given name. Decompresses gzip if .gz or gzip suffix is present.
// Reads metadata only (fast) if readData is false.
func (fits *Image) ReadFile(fileName string, readData bool, logWriter io.Writer) error {
	f, err := os.Open(fileName)
	if err != nil {
		return err
	}
	defer f.Close()

	var r io.Reader = f

	fits.FileName = fileName
	lExt := strings.ToLower(path.Ext(fileName))
	if lExt == ".gz" || lExt == ".gzip" {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("%d: %s: %w", fits.ID, fileName, err)
		}
		defer gz.Close()
		r = gz
	}

	return fits.Read(r, readData, logWriter)
}

func (fits *Image) PopHeaderInt32(key string) (res int32, err error) {
	if val, ok := fits.Header.Ints[key]; ok {
		delete(fits.Header.Ints, key)
		return int32(val), nil
	}
	return 0, fmt.Errorf("%d: FITS header does not contain key %s", fits.ID, key)
}

func (fits *Image) PopHeaderInt32OrFloat(key string) (res float32, err error) {
	if val, ok := fits.Header.Ints[key]; ok {
		delete(fits.Header.Ints, key)
		return float32(val), nil
	} else if val, ok := fits.Header.Floats[key]; ok {
		delete(fits.Header.Floats, key)
		return float32(val), nil
	}
	return 0, fmt.Errorf("%d: FITS header does not contain key %s", fits.ID, key)
}

func (fits *Image) Read(f io.Reader, readData bool, logWriter io.Writer) (err error) {
	err = fits.Header.read(f, fits.ID, logWriter)
	if err != nil {
		return err
	}

	// check mandatory fields as per standard
	if !fits.Header.Bools["SIMPLE"] {
		return fmt.Errorf("%d: Not a valid FITS file; SIMPLE=T missing in header", fits.ID)
	}
	delete(fits.Header.Bools, "SIMPLE")
	delete(fits.Header.Bools, "EXTEND")

	if fits.Bitpix, err = fits.PopHeaderInt32("BITPIX"); err != nil {
		return err
	}
	var naxis int32
	if naxis, err = fits.PopHeaderInt32("NAXIS"); err != nil {
		return err
	}
	if naxis < 1 {
		return fmt.Errorf("%d: FITS file has no image data, NAXIS=%d", fits.ID, naxis)
	}
	fits.Naxisn = make([]int32, naxis)
	fits.Pixels = int32(1)
	for i := int32(1); i <= naxis; i++ {
		name := "NAXIS" + strconv.FormatInt(int64(i), 10)
		var nai int32
		if nai, err = fits.PopHeaderInt32(name); err != nil {
			return err
		}
		fits.Naxisn[i-1] = nai
		fits.Pixels *= int32(nai)
	}

	// check key optional fields relevant for calibration and stacking
	if fits.Bzero, err = fits.PopHeaderInt32OrFloat("BZERO"); err != nil {
		fits.Bzero = 0
	}
	if fits.Bscale, err = fits.PopHeaderInt32OrFloat("BSCALE"); err != nil {
		fits.Bscale = 1
	}
	if exp, ok := fits.Header.GetFloat("EXPOSURE"); ok {
		fits.Exposure = float32(exp)
	} else if exp, ok := fits.Header.GetFloat("EXPTIME"); ok {
		fits.Exposure = float32(exp)
	}

	if !readData {
		return nil
	}
	return fits.readData(f, logWriter)
}

// Decodes one big-endian value of the given width into a float64
type decoder func(b []byte) float64

func decodeUint8(b []byte) float64 { return float64(b[0]) }

func decodeInt16(b []byte) float64 {
	return float64(int16((uint16(b[0]) << 8) | uint16(b[1])))
}

func decodeInt32(b []byte) float64 {
	return float64(int32((uint32(b[0]) << 24) | (uint32(b[1]) << 16) | (uint32(b[2]) << 8) | uint32(b[3])))
}

func decodeInt64(b []byte) float64 {
	return float64(int64(be64(b)))
}

func decodeFloat32(b []byte) float64 {
	return float64(math.Float32frombits((uint32(b[0]) << 24) | (uint32(b[1]) << 16) | (uint32(b[2]) << 8) | uint32(b[3])))
}

func decodeFloat64(b []byte) float64 {
	return math.Float64frombits(be64(b))
}

func be64(b []byte) uint64 {
	return (uint64(b[0]) << 56) | (uint64(b[1]) << 48) | (uint64(b[2]) << 40) | (uint64(b[3]) << 32) |
		(uint64(b[4]) << 24) | (uint64(b[5]) << 16) | (uint64(b[6]) << 8) | uint64(b[7])
}

// Read image data from file, convert to float32 data type, apply BZero offset and set BZero to 0 afterwards.
func (fits *Image) readData(f io.Reader, logWriter io.Writer) (err error) {
	var dec decoder
	var bytesPerValue int
	switch fits.Bitpix {
	case 8:
		dec, bytesPerValue = decodeUint8, 1
	case 16:
		dec, bytesPerValue = decodeInt16, 2
	case 32:
		fmt.Fprintf(logWriter, "%d: Warning: loss of precision converting int%d to float32 values\n", fits.ID, fits.Bitpix)
		dec, bytesPerValue = decodeInt32, 4
	case 64:
		fmt.Fprintf(logWriter, "%d: Warning: loss of precision converting int%d to float32 values\n", fits.ID, fits.Bitpix)
		dec, bytesPerValue = decodeInt64, 8
	case -32:
		dec, bytesPerValue = decodeFloat32, 4
	case -64:
		dec, bytesPerValue = decodeFloat64, 8
	default:
		return fmt.Errorf("%d: Unknown BITPIX value %d", fits.ID, fits.Bitpix)
	}
	return fits.readValues(f, dec, bytesPerValue)
}

const bufLen int = 16 * 1024 // input buffer length for reading from file

// Batched read of values of the given size from the file, converting from network byte order and adjusting for Bzero and Bscale
func (fits *Image) readValues(r io.Reader, dec decoder, bytesPerValue int) error {
	min, max, sum, n := float32(math.MaxFloat32), float32(-math.MaxFloat32), float64(0), 0
	fits.Data = make([]float32, int(fits.Pixels))
	valuesPerBuf := bufLen / bytesPerValue
	buf := make([]byte, valuesPerBuf*bytesPerValue)
	bscale, bzero := float64(fits.Bscale), float64(fits.Bzero)

	for dataIndex := 0; dataIndex < len(fits.Data); {
		values := len(fits.Data) - dataIndex
		if values > valuesPerBuf {
			values = valuesPerBuf
		}
		chunk := buf[:values*bytesPerValue]
		if _, err := io.ReadFull(r, chunk); err != nil {
			return fmt.Errorf("%d: reading pixel data: %s", fits.ID, err.Error())
		}
		for i := 0; i < values; i++ {
			v := float32(dec(chunk[i*bytesPerValue:])*bscale + bzero)
			if v == v {
				if v < min {
					min = v
				}
				if v > max {
					max = v
				}
				sum += float64(v)
				n++
			}
			fits.Data[dataIndex+i] = v
		}
		dataIndex += values
	}
	fits.Bzero, fits.Bscale = 0, 1 // reflect that data values incorporate these now
	if n == 0 {
		fits.Stats = stats.NewStats(fits.Data, fits.Naxisn[0])
		return nil
	}
	mean := float32(sum / float64(n))
	fits.Stats = stats.NewStatsWithMMM(fits.Data, fits.Naxisn[0], min, max, mean)
	return nil
}

func (h *Header) read(r io.Reader, id int, logWriter io.Writer) error {
	buf := make([]byte, fitsBlockSize)

	for h.Length = 0; !h.End; {
		// read next header unit
		bytesRead, err := io.ReadFull(r, buf)
		if err != nil || bytesRead != fitsBlockSize {
			return fmt.Errorf("%d: reading header: %s", id, err.Error())
		}
		h.Length += int32(bytesRead)

		// parse all lines in this header unit
		for lineNo := 0; lineNo < fitsBlockSize/HeaderLineSize && !h.End; lineNo++ {
			line := buf[lineNo*HeaderLineSize : (lineNo+1)*HeaderLineSize]
			subValues := reParser.FindSubmatch(line)
			if subValues == nil {
				fmt.Fprintf(logWriter, "%d: Warning: Cannot parse '%s', ignoring\n", id, strings.TrimRight(string(line), " "))
			} else {
				subNames := reParser.SubexpNames()
				h.readLine(subNames, subValues, id, lineNo, logWriter)
			}
		}
	}
	return nil
}

// Unescapes a FITS string value and drops trailing blanks, which are not significant
func unquote(b []byte) string {
	return strings.TrimRight(strings.ReplaceAll(string(b), "''", "'"), " ")
}

func (h *Header) readLine(subNames []string, subValues [][]byte, id, lineNo int, logWriter io.Writer) {
	key := ""
	// ignore index 0 which is the whole line
	for i := 1; i < len(subNames); i++ {
		if subValues[i] != nil && len(subNames[i]) == 1 {
			switch c := subNames[i][0]; c {
			case byte('E'): // end line
				h.End = true
			case byte('H'): // history line
				h.History = append(h.History, strings.TrimRight(string(subValues[i]), " "))
			case byte('C'): // comment line
				h.Comments = append(h.Comments, strings.TrimRight(string(subValues[i]), " "))
			case byte('k'): // key
				key = string(subValues[i])
				if !h.Has(key) {
					h.Keys = append(h.Keys, key)
				}
			case byte('b'): // boolean
				if len(subValues[i]) > 0 {
					v := subValues[i][0]
					h.Bools[key] = v == byte('t') || v == byte('T')
				}
			case byte('i'): // int
				val, err := strconv.ParseInt(string(subValues[i]), 10, 64)
				if err == nil {
					h.Ints[key] = val
				}
			case byte('f'): // float, with Fortran exponent notation
				s := strings.NewReplacer("D", "E", "d", "e").Replace(string(subValues[i]))
				val, err := strconv.ParseFloat(s, 64)
				if err == nil {
					h.Floats[key] = val
				}
			case byte('s'): // string
				h.Strings[key] = unquote(subValues[i])
				h.lastKey = key
			case byte('x'): // string continuation
				if prev, ok := h.Strings[h.lastKey]; ok && strings.HasSuffix(prev, "&") {
					h.Strings[h.lastKey] = prev[:len(prev)-1] + unquote(subValues[i])
				} else {
					fmt.Fprintf(logWriter, "%d:%d: Warning: CONTINUE without preceding long string, ignoring\n", id, lineNo)
				}
			case byte('d'): // date
				h.Dates[key] = string(subValues[i])
			case byte('c'): // comment
				// ignore value comments
			default:
				fmt.Fprintf(logWriter, "%d:%d: Warning: Unknown token '%s'\n", id, lineNo, string(c))
			}
		}
	}
}

// Build regexp parser for FITS header lines
func compileRE() *regexp.Regexp {
	white := "\\s+"
	whiteOpt := "\\s*"
	whiteLine := white

	hist := "HISTORY"
	rest := ".*"
	histLine := hist + "(?:" + white + "(?P<H>" + rest + "))?"

	commKey := "COMMENT"
	commLine := commKey + "(?:" + white + "(?P<C>" + rest + "))?"

	end := "(?P<E>END)"
	endLine := end + whiteOpt

	key := "(?P<k>[A-Z0-9_-]+)"
	equals := "="

	boo := "(?P<b>[TF])"
	inte := "(?P<i>[+-]?[0-9]+)"
	floa := "(?P<f>[+-]?(?:[0-9]*\\.[0-9]*(?:[EDed][-+]?[0-9]+)?|[0-9]+[EDed][-+]?[0-9]+))"
	stri := "'(?P<s>(?:[^']|'')*)'"
	date := "(?P<d>[0-9]{1,4}-?[012][0-9]-?[0123][0-9]T[012][0-9]:?[0-5][0-9]:?[0-5][0-9].?[0-9]*)" // FIXME: other variants possible, see ISO8601
	val := "(?:" + boo + "|" + inte + "|" + floa + "|" + stri + "|" + date + ")"

	// missing: complex int: (nr, nr)
	// missing: complex float: (nr, nr)

	commOpt := "(?:/(?P<c>.*))?"
	keyLine := key + whiteOpt + equals + whiteOpt + val + whiteOpt + commOpt

	contLine := "CONTINUE" + whiteOpt + "'(?P<x>(?:[^']|'')*)'" + whiteOpt + "(?:/.*)?"

	lineRe := "^(?:" + whiteLine + "|" + histLine + "|" + commLine + "|" + contLine + "|" + keyLine + "|" + endLine + ")$"
	return regexp.MustCompile(lineRe)
}
