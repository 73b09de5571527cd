package interfaces

import (
	"context"

	"github.com/ternarybob/slidegen/internal/models"
)

// ImageService crops or fits an image to the slot described by config and
// returns the path of the processed file written into destDir.
type ImageService interface {
	Process(ctx context.Context, src string, destDir string, config models.ImageConfig) (string, error)
}
