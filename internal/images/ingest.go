package images

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"io"
	"path/filepath"
)

// Ingest writes the record's uploaded images as new originals. Fields whose
// attribute is empty are left untouched. For every other field, previous
// originals and their variants are removed before the new files are written.
// The first failure aborts the call; files already written stay in place.
func (a *Attachment) Ingest(ctx context.Context) error {
	for _, name := range a.b.order {
		fc := a.b.fields[name]
		sources, indexed, err := uploads(a.rec.Attribute(fc.Attribute), fc.Multiple)
		if err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
		if len(sources) == 0 {
			continue
		}

		if err := a.RemovePrevious(ctx, name); err != nil {
			return err
		}
		if err := a.ensureDir(); err != nil {
			return err
		}

		for i, src := range sources {
			if err := ctx.Err(); err != nil {
				return err
			}
			index := 0
			if indexed {
				index = i + 1
			}
			if err := a.storeOriginal(ctx, fc, index, src); err != nil {
				return err
			}
		}
	}
	return nil
}

// uploads normalizes an attribute value. A slice holding more than one file,
// or any value of a multiple field, switches index numbering on.
func uploads(v any, multiple bool) ([]Source, bool, error) {
	switch v := v.(type) {
	case nil:
		return nil, false, nil
	case []Source:
		if len(v) == 0 {
			return nil, false, nil
		}
		return v, multiple || len(v) > 1, nil
	case Source:
		return []Source{v}, multiple, nil
	default:
		return nil, false, fmt.Errorf("images: attribute holds %T, want Source or []Source", v)
	}
}

func (a *Attachment) ensureDir() error {
	ok, err := a.b.store.IsDir(a.dir)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return a.b.store.MkdirAll(a.dir)
}

func (a *Attachment) storeOriginal(ctx context.Context, fc *FieldConfig, index int, src Source) error {
	p := a.b.proc
	name := FileName(fc.Name, index, Variant{}, fc.Extension)
	path := filepath.Join(a.dir, name)

	rc, err := src.Open()
	if err != nil {
		return &StoreError{Op: "open upload", Path: name, Err: err}
	}
	img, err := a.b.decode(rc, name)
	rc.Close()
	if err != nil {
		return err
	}

	thumb := p.Fit(img, fc.Width, fc.Height)
	if fc.Watermark {
		wm, err := a.b.watermark()
		if err != nil {
			return err
		}
		thumb = pasteWatermark(p, thumb, wm)
	}

	out := thumb
	if fc.Extension != "png" {
		size := thumb.Bounds().Size()
		out = p.Overlay(p.Canvas(size.X, size.Y, color.White), thumb, image.Point{})
	}

	err = a.b.store.WriteAtomic(path, func(w io.Writer) error {
		if err := p.Encode(w, out, fc.Extension, fc.Quality); err != nil {
			return &StoreError{Op: "write", Path: path, Err: err}
		}
		return nil
	})
	if err != nil {
		return err
	}

	size := out.Bounds().Size()
	a.b.logger.Debug("original stored", "record", a.rec.PrimaryKey(), "field", fc.Name, "path", path, "width", size.X, "height", size.Y)

	if fc.OnStored != nil {
		return fc.OnStored(ctx, StoredImage{
			RecordKey: a.rec.PrimaryKey(),
			Field:     fc.Name,
			Index:     index,
			Path:      path,
			Width:     size.X,
			Height:    size.Y,
		})
	}
	return nil
}

// RemovePrevious deletes every original of a field, calling the field's
// remove hook before each deletion, and purges the field's cached variants.
func (a *Attachment) RemovePrevious(ctx context.Context, name string) error {
	mu := a.b.dirLock(a.dir)
	mu.Lock()
	defer mu.Unlock()
	return a.removeFiles(ctx, name, true)
}

// RemoveVariants deletes the cached variants of a field and keeps its originals.
func (a *Attachment) RemoveVariants(ctx context.Context, name string) error {
	mu := a.b.dirLock(a.dir)
	mu.Lock()
	defer mu.Unlock()
	return a.removeFiles(ctx, name, false)
}

// removeFiles expects the directory lock to be held for writing.
func (a *Attachment) removeFiles(ctx context.Context, name string, originals bool) error {
	fc, err := a.field(name)
	if err != nil {
		return err
	}
	ok, err := a.b.store.IsDir(a.dir)
	if err != nil || !ok {
		return err
	}

	matches, err := a.b.store.Glob(a.dir, fc.Name+"*."+fc.Extension)
	if err != nil {
		return err
	}

	for _, path := range matches {
		fi, err := ParseFileName(filepath.Base(path))
		if err != nil || fi.Field != fc.Name || fi.Ext != fc.Extension {
			continue
		}
		if fi.IsOriginal() {
			if !originals {
				continue
			}
			if fc.OnRemove != nil {
				err := fc.OnRemove(ctx, RemovedImage{RecordKey: a.rec.PrimaryKey(), Field: fc.Name, Path: path})
				if err != nil {
					return err
				}
			}
		}
		if err := a.b.store.Remove(path); err != nil {
			return err
		}
		a.b.logger.Debug("image removed", "record", a.rec.PrimaryKey(), "field", fc.Name, "path", path)
	}
	return nil
}
