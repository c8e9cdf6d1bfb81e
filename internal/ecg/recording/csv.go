package recording

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ReadCSV reads one column per channel. The header row names each column
// as "name:type"; a bare name is typed misc. Every following row is one
// sample.
func ReadCSV(r io.Reader, rate float64, firstSample int) (*Recording, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty file", ErrInvalid)
		}
		return nil, fmt.Errorf("%w: header: %v", ErrInvalid, err)
	}
	rec := &Recording{Rate: rate, FirstSample: firstSample}
	for _, h := range header {
		name, typ, found := strings.Cut(strings.TrimSpace(h), ":")
		ch := Channel{Name: name, Type: TypeMisc}
		if found {
			t, err := ParseChannelType(typ)
			if err != nil {
				return nil, err
			}
			ch.Type = t
		}
		rec.Channels = append(rec.Channels, ch)
	}

	row := 1
	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		row++
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrInvalid, row, err)
		}
		for i, f := range fields {
			v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
			if err != nil {
				return nil, fmt.Errorf("%w: row %d column %s: %v", ErrInvalid, row, rec.Channels[i].Name, err)
			}
			rec.Channels[i].Data = append(rec.Channels[i].Data, v)
		}
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

// WriteCSV writes the recording in the format read by ReadCSV.
func WriteCSV(w io.Writer, rec *Recording) error {
	cw := csv.NewWriter(w)
	header := make([]string, len(rec.Channels))
	for i, ch := range rec.Channels {
		header[i] = ch.Name + ":" + string(ch.Type)
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	row := make([]string, len(rec.Channels))
	for s := 0; s < rec.Len(); s++ {
		for i, ch := range rec.Channels {
			row[i] = strconv.FormatFloat(ch.Data[s], 'g', -1, 64)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
