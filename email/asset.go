package email

import (
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// Asset is an image embedded in the message body, encoded once and shared by
// every message.
type Asset struct {
	Filename    string
	ContentType string
	ContentID   string
	Encoded     string // base64 (standard encoding) of Data
	Data        []byte
}

// LoadAsset reads the file at path as raw bytes.
func LoadAsset(path, contentID string) (*Asset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read asset: %w", err)
	}
	return NewAsset(filepath.Base(path), contentID, data)
}

// NewAsset encodes data and determines its content type from the filename,
// falling back to content sniffing.
func NewAsset(filename, contentID string, data []byte) (*Asset, error) {
	if len(data) == 0 {
		return nil, errors.New("asset is empty")
	}
	if strings.TrimSpace(contentID) == "" {
		return nil, errors.New("asset content-id is required")
	}

	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename)))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	// Drop parameters such as "; charset=utf-8".
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mediaType
	}

	return &Asset{
		Filename:    filename,
		ContentType: contentType,
		ContentID:   contentID,
		Encoded:     base64.StdEncoding.EncodeToString(data),
		Data:        data,
	}, nil
}

// Attachment returns the inline attachment for this asset.
func (a *Asset) Attachment() Attachment {
	return Attachment{
		Content:     a.Encoded,
		Type:        a.ContentType,
		Filename:    a.Filename,
		Disposition: "inline",
		ContentID:   a.ContentID,
	}
}
