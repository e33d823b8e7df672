package translate

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"strings"

	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

var (
	ErrImageDecode = errors.New("image decode failed")
	ErrImageFetch  = errors.New("image fetch failed")
	ErrImageFormat = errors.New("image format not recognized")
)

const (
	dataURIPrefix = "data:image"
	base64Marker  = ";base64,"
	jpegPrefix    = "data:image/jpeg;base64,"
)

// Normalizer resolves an image reference (inline data URI or remote URL)
// into the canonical base64 JPEG data URI the backend consumes. It holds no
// state beyond the HTTP client; nothing is persisted.
type Normalizer struct {
	client *http.Client
}

func NewNormalizer(client *http.Client) *Normalizer {
	if client == nil {
		client = http.DefaultClient
	}
	return &Normalizer{client: client}
}

func (n *Normalizer) Normalize(ctx context.Context, ref string) (string, error) {
	var raw []byte
	if strings.HasPrefix(ref, dataURIPrefix) {
		idx := strings.Index(ref, base64Marker)
		if idx < 0 {
			return "", fmt.Errorf("%w: data URI missing base64 marker", ErrImageDecode)
		}
		decoded, err := base64.StdEncoding.DecodeString(ref[idx+len(base64Marker):])
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrImageDecode, err)
		}
		raw = decoded
	} else {
		fetched, err := n.fetch(ctx, ref)
		if err != nil {
			return "", err
		}
		raw = fetched
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrImageFormat, err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		return "", fmt.Errorf("encode jpeg: %w", err)
	}
	return jpegPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// fetch is a single unauthenticated attempt; failures are terminal.
func (n *Normalizer) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageFetch, err)
	}
	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageFetch, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", ErrImageFetch, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageFetch, err)
	}
	return data, nil
}
