package members

import (
	"encoding/csv"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"github.com/robby/roster/internal/domain"
)

// Header is the fixed CSV header row.
var Header = []string{
	"username",
	"first_name",
	"last_name",
	"scam",
	"phone",
	"verified",
	"is_bot",
	"is_support",
	"role",
}

// Row renders a member in Header order. Absent optional fields are empty.
func Row(m domain.Member) []string {
	return []string{
		m.Username,
		m.FirstName,
		m.LastName,
		strconv.FormatBool(m.Scam),
		m.Phone,
		strconv.FormatBool(m.Verified),
		strconv.FormatBool(m.Bot),
		strconv.FormatBool(m.Support),
		string(m.Role),
	}
}

// FileName returns the export file name for a group identifier. Identifiers
// naming the same group ("@gophers", "t.me/gophers") share a file; distinct
// ones never do. Letters, digits, '-' and '_' are kept and every other byte is
// written as %XX, so the name can neither traverse nor hide.
func FileName(group string) string {
	name := domain.NormalizeGroup(group)
	if name == "" {
		// Never exported: an empty identifier cannot resolve.
		return "group.csv"
	}

	var b strings.Builder
	for _, r := range name {
		if r == '-' || r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		for _, c := range []byte(string(r)) {
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String() + ".csv"
}

// Export writes rows to <dir>/<FileName(group)>, creating or truncating the file.
// It stops at the first write failure; a partially written file is left in place.
// Returns the path written.
func Export(dir, group string, rows iter.Seq[domain.Member]) (path string, err error) {
	path = filepath.Join(dir, FileName(group))

	f, err := os.Create(path)
	if err != nil {
		return path, fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", path, cerr)
		}
	}()

	if _, err := Write(f, rows); err != nil {
		return path, fmt.Errorf("failed to export %s: %w", path, err)
	}
	return path, nil
}

// Write writes the header and one CSV row per member to w and returns the
// number of members written. It stops at the first write failure.
func Write(w io.Writer, rows iter.Seq[domain.Member]) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return 0, fmt.Errorf("failed to write header: %w", err)
	}

	n := 0
	for m := range rows {
		if err := cw.Write(Row(m)); err != nil {
			return n, fmt.Errorf("failed to write row %d: %w", n+1, err)
		}
		n++
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return n, fmt.Errorf("failed to flush: %w", err)
	}
	return n, nil
}
