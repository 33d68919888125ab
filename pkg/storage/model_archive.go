package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"hotelplan/pkg/domain"
)

var ErrObjectNotFound = errors.New("object not found")

const modelContentType = "application/json"

// ModelArchive keeps a JSON copy of each completed base model in object
// storage so the planner UI can offer it as a download.
type ModelArchive struct {
	store  ObjectStore
	prefix string
}

func NewModelArchive(store ObjectStore) *ModelArchive {
	return &ModelArchive{store: store, prefix: "models"}
}

// Key returns the object key for a project's base model.
func (a *ModelArchive) Key(projectID string) string {
	return a.prefix + "/" + strings.TrimSpace(projectID) + ".json"
}

// Save writes the model and returns its key. Saving again overwrites.
func (a *ModelArchive) Save(ctx context.Context, projectID string, model domain.HotelBaseModel) (string, error) {
	if strings.TrimSpace(projectID) == "" {
		return "", errors.New("project id required")
	}
	data, err := json.Marshal(model)
	if err != nil {
		return "", fmt.Errorf("encode model: %w", err)
	}
	key := a.Key(projectID)
	if err := a.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), modelContentType); err != nil {
		return "", err
	}
	return key, nil
}

func (a *ModelArchive) Load(ctx context.Context, projectID string) (domain.HotelBaseModel, error) {
	data, err := a.store.Get(ctx, a.Key(projectID))
	if err != nil {
		return domain.HotelBaseModel{}, err
	}
	var model domain.HotelBaseModel
	if err := json.Unmarshal(data, &model); err != nil {
		return domain.HotelBaseModel{}, fmt.Errorf("decode model: %w", err)
	}
	return model, nil
}

// DownloadURL returns a presigned link to the archived model.
func (a *ModelArchive) DownloadURL(ctx context.Context, projectID string, expiry time.Duration) (string, error) {
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	return a.store.PresignGet(ctx, a.Key(projectID), expiry)
}
