package sandbox

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

// upload is a decoded multipart "file" part.
type upload struct {
	data        []byte
	contentType string
	filename    string
}

// readUpload pulls the "file" part out of a multipart request.
func readUpload(w http.ResponseWriter, r *http.Request) (*upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	f, hdr, err := r.FormFile("file")
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return &upload{data: data, contentType: hdr.Header.Get("Content-Type"), filename: hdr.Filename}, nil
}

func allowedImage(contentType string) bool {
	return contentType == "image/jpeg" || contentType == "image/png"
}

// save writes the upload under <uploadDir>/<sessionID>/ named by its
// checksum and returns the path. Identical re-uploads land on the same file.
func (s *Server) save(sessionID, kind string, u *upload) (string, error) {
	dir := filepath.Join(s.uploadDir, sessionID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create upload dir: %w", err)
	}

	ext := ".jpg"
	if u.contentType == "image/png" {
		ext = ".png"
	}
	path := filepath.Join(dir, kind+"-"+checksum(u.data)[:16]+ext)
	if err := os.WriteFile(path, u.data, 0644); err != nil {
		return "", fmt.Errorf("failed to write upload: %w", err)
	}
	return path, nil
}

func checksum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
