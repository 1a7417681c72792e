package client

import (
	"context"
	"fmt"

	"github.com/avolkov/coursekit/model"
	"github.com/avolkov/coursekit/storage"
)

// Chapters lists the chapters of a course.
func (c *Client) Chapters(ctx context.Context, courseID int64) ([]model.Chapter, Source, error) {
	spec := readSpec{
		path:       fmt.Sprintf("/chapters/course/%d/", courseID),
		entityType: "chapters",
		key:        fmt.Sprintf("course:%d", courseID),
		fanout:     "chapter",
	}
	data, src, err := c.read(ctx, spec)
	if err != nil {
		return nil, src, err
	}
	chapters, err := decode[[]model.Chapter](data)
	return chapters, src, err
}

// Chapter fetches one chapter with its content.
func (c *Client) Chapter(ctx context.Context, id int64) (model.Chapter, Source, error) {
	spec := readSpec{
		path:       fmt.Sprintf("/chapters/%d/", id),
		entityType: "chapter",
		key:        fmt.Sprintf("%d", id),
	}
	data, src, err := c.read(ctx, spec)
	if err != nil {
		return model.Chapter{}, src, err
	}
	chapter, err := decode[model.Chapter](data)
	return chapter, src, err
}

// CompleteChapter marks a chapter finished. Offline, the completion is
// queued rather than failed, so progress is never lost to connectivity.
func (c *Client) CompleteChapter(ctx context.Context, id int64) (Ack, error) {
	_, ack, err := c.write(ctx, fmt.Sprintf("/chapters/%d/complete/", id), nil, storage.OpUpdate)
	return ack, err
}
