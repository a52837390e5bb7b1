package scylla

import (
	"fmt"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"safarapi-auth/internal/model"
	"safarapi-auth/internal/util"
)

type imageRepository struct {
	client *ScyllaClient
}

func NewImageRepository(client *ScyllaClient) ImageRepository {
	return &imageRepository{client: client}
}

func (r *imageRepository) FirstDefaultAvatar() (*model.Image, error) {
	image := &model.Image{}

	err := r.client.Query(stmtGetDefaultAvatar).Scan(
		&image.ImageID, &image.URL, &image.IsDefault, &image.CreatedAt)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, nil
		}
		util.Error("Failed to get default avatar", zap.Error(err))
		return nil, fmt.Errorf("failed to get default avatar: %w", err)
	}

	return image, nil
}
