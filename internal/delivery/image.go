package delivery

import (
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"chatpilot/internal/domain"

	_ "golang.org/x/image/webp"
)

// checkImage rejects paths that are not a readable image in a format the
// chat client's photo picker accepts.
func checkImage(path string) *domain.Failure {
	info, err := os.Stat(path)
	if err != nil {
		return domain.NewFailure(domain.KindInvalidArgument, "image %s: %v", path, err)
	}
	if info.IsDir() {
		return domain.NewFailure(domain.KindInvalidArgument, "image %s is a directory", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return domain.NewFailure(domain.KindInvalidArgument, "image %s: %v", path, err)
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return domain.NewFailure(domain.KindInvalidArgument, "image %s is not a png, jpeg, gif or webp file: %v", path, err)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return domain.NewFailure(domain.KindInvalidArgument, "image %s (%s) has no pixels", path, format)
	}
	return nil
}
