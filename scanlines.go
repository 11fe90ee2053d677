package sponsorpay

import (
	"bufio"
	"io"
	"strings"
)

func skipline(br *bufio.Reader) error {
	for {
		r, _, err := br.ReadRune()

		if err != nil {
			if err != io.EOF {
				return err
			}
			return nil
		}

		if r == '\n' {
			return nil
		}
	}
}

func scanline(br *bufio.Reader, fn func(string)) error {
	var b strings.Builder

	for {
		r, _, err := br.ReadRune()

		if err != nil {
			if err != io.EOF {
				return err
			}
			break
		}

		if r == '\n' {
			break
		}
		b.WriteRune(r)
	}

	fn(strings.TrimSpace(b.String()))
	return nil
}

// scanlines will scan in the lines from the given io.Reader, and pass each
// line it successfully scans into the given callback. This will skip over
// whitespace, and ignore comments (lines prefixed with #).
func scanlines(rd io.Reader, fn func(string)) error {
	br := bufio.NewReader(rd)

	for {
		r, _, err := br.ReadRune()

		if err != nil {
			if err != io.EOF {
				return err
			}
			return nil
		}

		switch r {
		case ' ', '\t', '\r', '\n':
			continue
		case '#':
			if err := skipline(br); err != nil {
				return err
			}
			continue
		}

		br.UnreadRune()

		if err := scanline(br, fn); err != nil {
			return err
		}
	}
}

// ReadIDs reads the sponsorship IDs from the given reader. Each line may
// hold one or more comma separated IDs. Blank lines, and lines prefixed
// with # are skipped, as are duplicate IDs.
func ReadIDs(r io.Reader) ([]string, error) {
	ids := make([]string, 0)

	err := scanlines(r, func(line string) {
		ids = append(ids, strings.Split(line, ",")...)
	})

	if err != nil {
		return nil, err
	}
	return cleanIDs(ids), nil
}
