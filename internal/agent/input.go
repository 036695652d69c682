package agent

import (
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidImage is returned when an image reference cannot be loaded
var ErrInvalidImage = errors.New("invalid image")

const defaultImageMIME = "application/octet-stream"

var imageMIMETypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".svg":  "image/svg+xml",
}

// NewInputItem builds the user message item for a turn: one input_text part
// followed by one input_image part per image. URLs are passed through and
// local paths are inlined as base64 data URLs.
func NewInputItem(text string, images []string) (Item, error) {
	item := Item{
		Type:    ItemTypeMessage,
		Role:    RoleUser,
		Content: []ContentPart{{Type: ContentInputText, Text: text}},
	}
	for _, ref := range images {
		url, err := imageURL(ref)
		if err != nil {
			return Item{}, err
		}
		item.Content = append(item.Content, ContentPart{
			Type:     ContentInputImage,
			ImageURL: url,
			Detail:   "auto",
		})
	}
	return item, nil
}

func imageURL(ref string) (string, error) {
	lower := strings.ToLower(ref)
	if strings.HasPrefix(lower, "data:") || strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return ref, nil
	}

	data, err := os.ReadFile(ref)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidImage, ref, err)
	}
	return fmt.Sprintf("data:%s;base64,%s", mimeForPath(ref), base64.StdEncoding.EncodeToString(data)), nil
}

func mimeForPath(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if t, ok := imageMIMETypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return defaultImageMIME
}
