package images

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"path/filepath"
	"sort"
)

// Resolve returns the public link of an image. name is a field name, optionally
// suffixed with "_N" to address the N-th image of a multiple field. A zero
// Variant addresses the original; otherwise the variant is generated from the
// original on first request and reused afterwards.
//
// The boolean result is false when the original does not exist. That is not an
// error: errors are reserved for invalid arguments and I/O or decode faults.
func (a *Attachment) Resolve(ctx context.Context, name string, v Variant) (string, bool, error) {
	if err := v.validate(); err != nil {
		return "", false, err
	}
	field, index := ParseName(name)
	fc, err := a.field(field)
	if err != nil {
		return "", false, err
	}

	origName := FileName(fc.Name, index, Variant{}, fc.Extension)
	outName := FileName(fc.Name, index, v, fc.Extension)
	origPath := filepath.Join(a.dir, origName)

	if outName == origName {
		ok, err := a.b.store.Exists(origPath)
		if err != nil || !ok {
			return "", false, err
		}
		return Link(a.webDir, origName), true, nil
	}

	outPath := filepath.Join(a.dir, outName)
	ok, err := a.b.store.Exists(outPath)
	if err != nil {
		return "", false, err
	}
	if !ok {
		ok, err := a.b.store.Exists(origPath)
		if err != nil || !ok {
			return "", false, err
		}
		if err := a.fill(ctx, origPath, outPath, v, fc.Extension); err != nil {
			if errors.Is(err, errOriginalGone) {
				return "", false, nil
			}
			return "", false, err
		}
	}
	return Link(a.webDir, outName), true, nil
}

// errOriginalGone is returned by a fill whose original was removed after the
// miss was detected.
var errOriginalGone = errors.New("images: original removed")

// fill generates a missing variant. Concurrent misses on the same output
// path share one generation, which holds the record directory's lock for
// reading so a purge cannot interleave with it.
//
// The generation is shared by every waiter and is not tied to any caller's
// context: a caller whose ctx is done returns ctx.Err() at once while the
// generation runs to completion and leaves the variant cached.
func (a *Attachment) fill(ctx context.Context, origPath, outPath string, v Variant, ext string) error {
	ch := a.b.group.DoChan(outPath, func() (any, error) {
		mu := a.b.dirLock(a.dir)
		mu.RLock()
		defer mu.RUnlock()

		ok, err := a.b.store.Exists(outPath)
		if err != nil || ok {
			return nil, err
		}
		ok, err = a.b.store.Exists(origPath)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errOriginalGone
		}
		return nil, a.b.resize(origPath, outPath, v, ext)
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		return res.Err
	}
}

// resize fits the original into the requested box. With Stretch the result is
// centered on a white canvas of exactly the requested size. Variants are always
// encoded at MaxQuality.
func (b *Behavior) resize(origPath, outPath string, v Variant, ext string) error {
	img, err := b.decodeFile(origPath)
	if err != nil {
		return err
	}

	out := b.proc.Fit(img, v.Width, v.Height)
	if v.Stretch {
		tb := out.Bounds()
		at := image.Pt((v.Width-tb.Dx())/2, (v.Height-tb.Dy())/2)
		out = b.proc.Overlay(b.proc.Canvas(v.Width, v.Height, color.White), out, at)
	}

	err = b.store.WriteAtomic(outPath, func(w io.Writer) error {
		if err := b.proc.Encode(w, out, ext, MaxQuality); err != nil {
			return &StoreError{Op: "write", Path: outPath, Err: err}
		}
		return nil
	})
	if err != nil {
		return err
	}

	b.logger.Debug("variant generated", "path", outPath, "width", out.Bounds().Dx(), "height", out.Bounds().Dy())
	return nil
}

// ResolveAll resolves every indexed original of a field in index order.
// A non-indexed original of the field is not included.
func (a *Attachment) ResolveAll(ctx context.Context, field string, v Variant) ([]string, error) {
	fc, err := a.field(field)
	if err != nil {
		return nil, err
	}
	if err := v.validate(); err != nil {
		return nil, err
	}

	ok, err := a.b.store.IsDir(a.dir)
	if err != nil || !ok {
		return nil, err
	}

	matches, err := a.b.store.Glob(a.dir, fc.Name+"_*."+fc.Extension)
	if err != nil {
		return nil, err
	}

	var indexed []FileInfo
	for _, path := range matches {
		fi, err := ParseFileName(filepath.Base(path))
		if err != nil || fi.Field != fc.Name || fi.Ext != fc.Extension || fi.Index == 0 || !fi.IsOriginal() {
			continue
		}
		indexed = append(indexed, fi)
	}
	sort.Slice(indexed, func(i, j int) bool { return indexed[i].Index < indexed[j].Index })

	links := make([]string, 0, len(indexed))
	for _, fi := range indexed {
		link, ok, err := a.Resolve(ctx, fmt.Sprintf("%s_%d", fi.Field, fi.Index), v)
		if err != nil {
			return nil, err
		}
		if ok {
			links = append(links, link)
		}
	}
	return links, nil
}
