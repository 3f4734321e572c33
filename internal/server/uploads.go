package server

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"recordimages/internal/images"
)

var errUnsupportedUpload = errors.New("unsupported upload type")

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
}

// fileHeaderSource adapts a multipart upload to images.Source.
type fileHeaderSource struct {
	fh *multipart.FileHeader
}

func (s fileHeaderSource) Open() (io.ReadCloser, error) {
	return s.fh.Open()
}

// readUploads collects the files of every configured attribute from the
// multipart form. One file becomes an images.Source, several a []images.Source.
func (s *Server) readUploads(c *gin.Context) (map[string]any, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxUploadBytes())

	form, err := c.MultipartForm()
	if err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			return map[string]any{}, nil
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}

	files := make(map[string]any)
	for _, name := range s.images.Fields() {
		fc, _ := s.images.Field(name)
		headers := form.File[fc.Attribute]
		if len(headers) == 0 {
			continue
		}

		sources := make([]images.Source, 0, len(headers))
		for _, fh := range headers {
			if err := sniff(fh); err != nil {
				return nil, err
			}
			sources = append(sources, fileHeaderSource{fh: fh})
		}
		if len(sources) == 1 {
			files[fc.Attribute] = sources[0]
		} else {
			files[fc.Attribute] = sources
		}
	}
	return files, nil
}

// sniff checks the first 512 bytes of an upload against the allowed image types.
func sniff(fh *multipart.FileHeader) error {
	f, err := fh.Open()
	if err != nil {
		return err
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return err
	}
	contentType := http.DetectContentType(buf[:n])
	if !allowedImageTypes[contentType] {
		return fmt.Errorf("%w: %s (%s)", errUnsupportedUpload, fh.Filename, contentType)
	}
	return nil
}
