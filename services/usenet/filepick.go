package usenet

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/afero"
)

var reEpisodeTag = regexp.MustCompile(`(?i)S(\d{1,2})E(\d{1,2})`)

var videoExtensions = map[string]bool{
	".mkv": true, ".mp4": true, ".avi": true, ".m4v": true,
	".ts": true, ".wmv": true, ".mov": true, ".webm": true,
}

// pickVideoFile chooses the video to stream from a download directory. For
// episodes the file carrying the same SxxEyy tag as the release title wins;
// otherwise the largest video file does. Sample files are never picked.
func (c *Controller) pickVideoFile(dir, title string) (string, error) {
	type found struct {
		path string
		size int64
	}
	var videos []found

	err := afero.Walk(c.fs, dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		name := strings.ToLower(info.Name())
		if strings.Contains(name, "sample") {
			return nil
		}
		if !isVideoFile(c.fs, path) {
			return nil
		}
		videos = append(videos, found{path: path, size: info.Size()})
		return nil
	})
	if err != nil {
		return "", err
	}
	if len(videos) == 0 {
		return "", fmt.Errorf("no video files found")
	}

	if tag := reEpisodeTag.FindString(title); tag != "" {
		upper := strings.ToUpper(tag)
		for _, v := range videos {
			if strings.Contains(strings.ToUpper(filepath.Base(v.path)), upper) {
				return v.path, nil
			}
		}
	}

	best := videos[0]
	for _, v := range videos[1:] {
		if v.size > best.size {
			best = v
		}
	}
	return best.path, nil
}

// isVideoFile trusts known extensions and sniffs the rest. Partial files
// written by the downloader often lack an extension until rename.
func isVideoFile(fs afero.Fs, path string) bool {
	if videoExtensions[strings.ToLower(filepath.Ext(path))] {
		return true
	}
	f, err := fs.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	head := make([]byte, 3072)
	n, err := f.Read(head)
	if n == 0 && err != nil {
		return false
	}
	kind := mimetype.Detect(head[:n])
	return strings.HasPrefix(kind.String(), "video/")
}
