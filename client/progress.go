package client

import (
	"context"

	"github.com/avolkov/coursekit/model"
)

// CourseProgress lists completion per subscribed course.
func (c *Client) CourseProgress(ctx context.Context) ([]model.CourseProgress, Source, error) {
	data, src, err := c.read(ctx, readSpec{path: "/progress/courses/", entityType: "progress", key: "courses"})
	if err != nil {
		return nil, src, err
	}
	progress, err := decode[[]model.CourseProgress](data)
	return progress, src, err
}

// Statistics fetches the user's aggregate statistics.
func (c *Client) Statistics(ctx context.Context) (model.Statistics, Source, error) {
	data, src, err := c.read(ctx, readSpec{path: "/progress/statistics/", entityType: "progress", key: "statistics"})
	if err != nil {
		return model.Statistics{}, src, err
	}
	stats, err := decode[model.Statistics](data)
	return stats, src, err
}
