// Package images attaches uploaded images to records.
//
// Originals are written on record insert/update into a hash-sharded directory
// derived from the record's primary key. Resized variants are produced lazily on
// first read and cached beside the original under a name that encodes the
// requested box. Deleting a record removes its directory.
package images

import (
	"context"
	"fmt"
	"hash/fnv"
	"image"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Source is one uploaded file.
type Source interface {
	Open() (io.ReadCloser, error)
}

// Record is the narrow view of a host record the behavior needs.
// Attribute returns nil, a Source, or a []Source.
type Record interface {
	PrimaryKey() string
	Attribute(name string) any
}

type keyRecord string

func (k keyRecord) PrimaryKey() string    { return string(k) }
func (k keyRecord) Attribute(string) any { return nil }

// Key returns a Record with no attributes, enough for reads and cleanup.
func Key(primaryKey string) Record {
	return keyRecord(primaryKey)
}

// FileSource is a Source backed by a file on disk.
type FileSource string

func (f FileSource) Open() (io.ReadCloser, error) {
	return os.Open(string(f))
}

// StoredImage describes an original just written by ingestion.
type StoredImage struct {
	RecordKey string
	Field     string
	Index     int
	Path      string
	Width     int
	Height    int
}

// RemovedImage describes an original about to be deleted.
type RemovedImage struct {
	RecordKey string
	Field     string
	Path      string
}

// FieldConfig configures one logical image field.
type FieldConfig struct {
	// Name prefixes every file of the field.
	Name string
	// Attribute is the record attribute holding the uploads.
	Attribute string
	Extension string
	Width     int
	Height    int
	Watermark bool
	// Multiple forces index suffixes even for a single upload.
	Multiple bool
	Quality  Quality

	OnStored func(ctx context.Context, img StoredImage) error
	OnRemove func(ctx context.Context, img RemovedImage) error
}

// Config configures a Behavior.
type Config struct {
	RootPath      string
	WebPath       string
	WatermarkPath string
	// WatermarkText is rendered when WatermarkPath is empty.
	WatermarkText string
	Fields        []FieldConfig
}

// Option customizes a Behavior.
type Option func(*Behavior)

func WithStore(s FileStore) Option {
	return func(b *Behavior) { b.store = s }
}

func WithProcessor(p Processor) Option {
	return func(b *Behavior) { b.proc = p }
}

func WithLogger(l *slog.Logger) Option {
	return func(b *Behavior) { b.logger = l }
}

// Behavior holds the validated configuration shared by every record.
type Behavior struct {
	root   string
	web    string
	fields map[string]*FieldConfig
	order  []string

	watermarkPath string
	watermarkText string
	wmOnce        sync.Once
	wm            image.Image
	wmErr         error

	store  FileStore
	proc   Processor
	logger *slog.Logger
	group  singleflight.Group

	// variant fills hold a directory's stripe for reading, purges for writing
	dirLocks [dirLockStripes]sync.RWMutex
}

const dirLockStripes = 64

func (b *Behavior) dirLock(dir string) *sync.RWMutex {
	h := fnv.New32a()
	h.Write([]byte(dir))
	return &b.dirLocks[h.Sum32()%dirLockStripes]
}

var reservedSuffixRe = regexp.MustCompile(`_[0-9]+$`)

// New validates cfg and builds a Behavior. Configuration problems are
// reported as *ConfigError.
func New(cfg Config, opts ...Option) (*Behavior, error) {
	if cfg.RootPath == "" {
		return nil, &ConfigError{Msg: "root path required"}
	}

	b := &Behavior{
		root:          filepath.Clean(cfg.RootPath),
		web:           cfg.WebPath,
		fields:        make(map[string]*FieldConfig, len(cfg.Fields)),
		watermarkPath: cfg.WatermarkPath,
		watermarkText: cfg.WatermarkText,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.store == nil {
		b.store = NewLocalStore()
	}
	if b.proc == nil {
		b.proc = NewImagingProcessor()
	}
	if b.logger == nil {
		b.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	b.logger = b.logger.With("system", "images")

	for i := range cfg.Fields {
		fc := cfg.Fields[i]
		if err := normalizeField(&fc); err != nil {
			return nil, err
		}
		if _, dup := b.fields[fc.Name]; dup {
			return nil, &ConfigError{Field: fc.Name, Msg: "duplicate field"}
		}
		if fc.Watermark && b.watermarkPath == "" && b.watermarkText == "" {
			return nil, &ConfigError{Field: fc.Name, Msg: "watermark enabled but no watermark source configured"}
		}
		b.fields[fc.Name] = &fc
		b.order = append(b.order, fc.Name)
	}

	return b, nil
}

func normalizeField(fc *FieldConfig) error {
	if fc.Name == "" {
		return &ConfigError{Msg: "field name required"}
	}
	if !fieldNameRe.MatchString(fc.Name) || reservedSuffixRe.MatchString(fc.Name) {
		return &ConfigError{Field: fc.Name, Msg: "name must be word characters without a numeric _N suffix"}
	}
	if fc.Attribute == "" {
		return &ConfigError{Field: fc.Name, Msg: "attribute is not set"}
	}
	fc.Extension = strings.ToLower(strings.TrimPrefix(fc.Extension, "."))
	if fc.Extension == "" {
		fc.Extension = "jpg"
	}
	if !supportedExtension(fc.Extension) {
		return &ConfigError{Field: fc.Name, Msg: fmt.Sprintf("unsupported extension %q", fc.Extension)}
	}
	if fc.Width == 0 && fc.Height == 0 {
		fc.Width, fc.Height = 500, 500
	}
	if fc.Width <= 0 || fc.Height <= 0 {
		return &ConfigError{Field: fc.Name, Msg: fmt.Sprintf("invalid size %dx%d", fc.Width, fc.Height)}
	}
	fc.Quality = fc.Quality.withDefaults()
	if fc.Quality.JPEG < 1 || fc.Quality.JPEG > 100 {
		return &ConfigError{Field: fc.Name, Msg: fmt.Sprintf("jpeg quality %d out of range 1..100", fc.Quality.JPEG)}
	}
	if fc.Quality.PNGCompression < 1 || fc.Quality.PNGCompression > 9 {
		return &ConfigError{Field: fc.Name, Msg: fmt.Sprintf("png compression %d out of range 1..9", fc.Quality.PNGCompression)}
	}
	return nil
}

// Fields returns the configured field names in configuration order.
func (b *Behavior) Fields() []string {
	return append([]string(nil), b.order...)
}

// Field returns the normalized configuration of a field.
func (b *Behavior) Field(name string) (FieldConfig, bool) {
	fc, ok := b.fields[name]
	if !ok {
		return FieldConfig{}, false
	}
	return *fc, true
}

// For binds the behavior to a record. Keys rejected by CheckKey yield
// ErrInvalidKey.
func (b *Behavior) For(rec Record) (*Attachment, error) {
	pk := rec.PrimaryKey()
	if err := CheckKey(pk); err != nil {
		return nil, err
	}
	folder := Folder(pk)
	return &Attachment{
		b:      b,
		rec:    rec,
		dir:    filepath.Join(b.root, folder),
		webDir: Link(b.web, folder),
	}, nil
}

// Ingest stores the record's uploaded images. Wire it to after-insert and
// after-update events.
func (b *Behavior) Ingest(ctx context.Context, rec Record) error {
	a, err := b.For(rec)
	if err != nil {
		return err
	}
	return a.Ingest(ctx)
}

// Cleanup removes every image of the record. Wire it to before-delete events.
func (b *Behavior) Cleanup(ctx context.Context, rec Record) error {
	a, err := b.For(rec)
	if err != nil {
		return err
	}
	return a.Cleanup(ctx)
}

func (b *Behavior) watermark() (image.Image, error) {
	b.wmOnce.Do(func() {
		if b.watermarkPath != "" {
			b.wm, b.wmErr = b.decodeFile(b.watermarkPath)
			return
		}
		b.wm, b.wmErr = TextWatermark(b.watermarkText, 24)
	})
	return b.wm, b.wmErr
}

func (b *Behavior) decodeFile(path string) (image.Image, error) {
	rc, err := b.store.Open(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return b.decode(rc, path)
}

func (b *Behavior) decode(r io.Reader, path string) (image.Image, error) {
	img, err := b.proc.Decode(r)
	if err != nil {
		if de, ok := err.(*DecodeError); ok {
			return nil, &DecodeError{Path: path, Err: de.Err}
		}
		return nil, &DecodeError{Path: path, Err: err}
	}
	return img, nil
}

// Attachment is a Behavior bound to one record. The record directory is
// computed once at construction.
type Attachment struct {
	b      *Behavior
	rec    Record
	dir    string
	webDir string
}

// DirectoryPath returns the record directory on disk, or its public URL path
// when web is true.
func (a *Attachment) DirectoryPath(web bool) string {
	if web {
		return a.webDir
	}
	return a.dir
}

func (a *Attachment) field(name string) (*FieldConfig, error) {
	fc, ok := a.b.fields[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	return fc, nil
}
