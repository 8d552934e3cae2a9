package groq

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"strings"
)

// ReadImageDataURI reads an image file and encodes it as a data URI suitable
// for the image_url content part. Non-image files are rejected.
func ReadImageDataURI(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}

	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return "", fmt.Errorf("not an image file: %s (%s)", path, mime)
	}

	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
