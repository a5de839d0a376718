package util

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
)

// ValidateMimeType 深度校验文件 MIME 类型
// allowedTypes: 允许的 MIME 前缀或完整类型，如 "audio/", "image/"
func ValidateMimeType(reader io.Reader, allowedTypes []string) (string, error) {
	buffer := make([]byte, 512)
	n, err := reader.Read(buffer)
	if err != nil && err != io.EOF {
		return "", err
	}

	mimeType := http.DetectContentType(buffer[:n])

	for _, allowed := range allowedTypes {
		if strings.HasPrefix(mimeType, allowed) || mimeType == allowed {
			return mimeType, nil
		}
	}

	return mimeType, errors.New("invalid file type: " + mimeType)
}

// IsAudio 检测是否为音频。mp3 常被嗅探成 application/octet-stream，
// 这种情况下回退到扩展名判断。
func IsAudio(mimeType, filename string) bool {
	if strings.HasPrefix(mimeType, "audio/") {
		return true
	}
	if mimeType == MimeOctetStream {
		ext := strings.ToLower(filepath.Ext(filename))
		for _, allowed := range AllowedAudioExtensions {
			if ext == allowed {
				return true
			}
		}
	}
	return false
}

// IsImage 检测是否为图片
func IsImage(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/")
}
