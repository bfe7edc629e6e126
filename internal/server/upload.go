package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/hyperjump/healthassist/internal/config"
)

var errMissingFile = errors.New("multipart field \"file\" is required")

// upload is a parsed report form: the file, an optional patient name, and
// the remaining form values as field overrides.
type upload struct {
	filename  string
	content   []byte
	patient   string
	overrides map[string]string
}

func (s *Server) maxUpload() int64 {
	if n := s.config.Server.MaxUploadBytes; n > 0 {
		return n
	}
	return config.DefaultMaxUploadBytes
}

func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (*upload, error) {
	limit := s.maxUpload()
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", errMissingFile, err)
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	f, header, err := r.FormFile("file")
	if err != nil {
		return nil, errMissingFile
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}

	u := &upload{
		filename:  header.Filename,
		content:   content,
		patient:   r.FormValue("name"),
		overrides: make(map[string]string),
	}
	for key, values := range r.MultipartForm.Value {
		if key == "name" || len(values) == 0 {
			continue
		}
		u.overrides[key] = values[0]
	}
	return u, nil
}
