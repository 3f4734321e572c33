package images

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Variant selects a rendition of an original. The zero value is the original itself.
type Variant struct {
	Width   int
	Height  int
	Stretch bool
}

// IsOriginal reports whether v carries no size.
func (v Variant) IsOriginal() bool {
	return v.Width == 0 && v.Height == 0
}

func (v Variant) validate() error {
	if v.Width < 0 || v.Height < 0 {
		return fmt.Errorf("%w: negative size %dx%d", ErrInvalidVariant, v.Width, v.Height)
	}
	if (v.Width == 0) != (v.Height == 0) {
		return fmt.Errorf("%w: width and height must be given together", ErrInvalidVariant)
	}
	return nil
}

// FileInfo is the decomposed form of a stored image file name.
type FileInfo struct {
	Field   string
	Index   int // 0 when the field is not indexed
	Variant Variant
	Ext     string
}

// IsOriginal reports whether the file is an original rather than a derived variant.
func (fi FileInfo) IsOriginal() bool {
	return fi.Variant.IsOriginal()
}

var (
	fieldNameRe = regexp.MustCompile(`^\w+$`)
	indexedRe   = regexp.MustCompile(`^(\w+?)_([1-9][0-9]*)$`)
	fileNameRe  = regexp.MustCompile(`^(\w+?)(?:_([1-9][0-9]*))?(?:\.([1-9][0-9]*)x([1-9][0-9]*)(s)?)?\.(\w+)$`)
)

// CheckKey reports whether a primary key can be used as the last segment of a
// record directory. Empty keys, dot segments, path separators and NUL bytes
// are rejected with ErrInvalidKey.
func CheckKey(primaryKey string) error {
	if primaryKey == "" || primaryKey == "." || primaryKey == ".." ||
		strings.ContainsAny(primaryKey, "/\\\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, primaryKey)
	}
	return nil
}

// Folder returns the hash-sharded relative directory for a primary key:
// the first six hex digits of md5(key) as three two-character segments,
// followed by the key itself. The key is not checked; see CheckKey.
func Folder(primaryKey string) string {
	sum := md5.Sum([]byte(primaryKey))
	d := hex.EncodeToString(sum[:])
	return filepath.Join(d[0:2], d[2:4], d[4:6], primaryKey)
}

// FileName builds `{field}[_{index}][.{w}x{h}[s]].{ext}`. An index of 0 is omitted.
func FileName(field string, index int, v Variant, ext string) string {
	var b strings.Builder
	b.WriteString(field)
	if index > 0 {
		b.WriteByte('_')
		b.WriteString(strconv.Itoa(index))
	}
	if v.Width > 0 && v.Height > 0 {
		fmt.Fprintf(&b, ".%dx%d", v.Width, v.Height)
		if v.Stretch {
			b.WriteByte('s')
		}
	}
	b.WriteByte('.')
	b.WriteString(ext)
	return b.String()
}

// ParseFileName is the inverse of FileName.
func ParseFileName(name string) (FileInfo, error) {
	m := fileNameRe.FindStringSubmatch(name)
	if m == nil {
		return FileInfo{}, fmt.Errorf("%w: %q", ErrInvalidFileName, name)
	}

	fi := FileInfo{Field: m[1], Ext: m[6]}
	if m[2] != "" {
		fi.Index, _ = strconv.Atoi(m[2])
	}
	if m[3] != "" {
		fi.Variant.Width, _ = strconv.Atoi(m[3])
		fi.Variant.Height, _ = strconv.Atoi(m[4])
		fi.Variant.Stretch = m[5] != ""
	}
	return fi, nil
}

// ParseName splits a logical image name like "gallery_2" into field and index.
// Names without a numeric suffix are returned whole with index 0.
func ParseName(name string) (string, int) {
	if m := indexedRe.FindStringSubmatch(name); m != nil {
		n, err := strconv.Atoi(m[2])
		if err == nil {
			return m[1], n
		}
	}
	return name, 0
}

// Link joins a web directory and a file name with forward slashes.
func Link(webDir, file string) string {
	link := strings.TrimRight(webDir, `/\`) + "/" + file
	return strings.ReplaceAll(link, `\`, "/")
}
