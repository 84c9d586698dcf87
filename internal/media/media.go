package media

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/yourorg/messenger/internal/models"
)

const thumbnailWidth = 320

// KindFromContentType maps an upload's content type onto the single message
// payload kind it will carry.
func KindFromContentType(contentType string) (string, error) {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return models.TypeImage, nil
	case strings.HasPrefix(contentType, "audio/"):
		return models.TypeAudio, nil
	case strings.HasPrefix(contentType, "video/"):
		return models.TypeVideo, nil
	default:
		return "", fmt.Errorf("unsupported content type %q", contentType)
	}
}

// ObjectKey builds the storage key for an uploaded payload.
func ObjectKey(conversationID, contentType string) string {
	ext := ""
	if i := strings.Index(contentType, "/"); i >= 0 {
		ext = "." + strings.SplitN(contentType[i+1:], ";", 2)[0]
	}
	return "media/" + conversationID + "/" + uuid.NewString() + ext
}

// Thumbnail downscales an image payload for list previews. Non-image data is
// the caller's problem; decoding failure is returned as-is.
func Thumbnail(data []byte) ([]byte, error) {
	src, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	thumb := imaging.Resize(src, thumbnailWidth, 0, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(80)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
