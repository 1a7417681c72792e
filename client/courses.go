package client

import (
	"context"
	"fmt"

	"github.com/avolkov/coursekit/model"
	"github.com/avolkov/coursekit/storage"
)

// Courses lists available courses, optionally filtered by category.
// A zero categoryID lists everything.
func (c *Client) Courses(ctx context.Context, categoryID int64) ([]model.Course, Source, error) {
	spec := readSpec{path: "/courses/", entityType: "courses", key: "all", fanout: "course"}
	if categoryID != 0 {
		spec.path = fmt.Sprintf("/courses/?category_id=%d", categoryID)
		spec.key = fmt.Sprintf("category:%d", categoryID)
	}
	data, src, err := c.read(ctx, spec)
	if err != nil {
		return nil, src, err
	}
	courses, err := decode[[]model.Course](data)
	return courses, src, err
}

// Course fetches one course by id.
func (c *Client) Course(ctx context.Context, id int64) (model.Course, Source, error) {
	spec := readSpec{
		path:       fmt.Sprintf("/courses/%d/", id),
		entityType: "course",
		key:        fmt.Sprintf("%d", id),
	}
	data, src, err := c.read(ctx, spec)
	if err != nil {
		return model.Course{}, src, err
	}
	course, err := decode[model.Course](data)
	return course, src, err
}

// SubscribeCourse enrolls the current user in a course. Offline, the
// subscription is queued and replayed on the next reconcile.
func (c *Client) SubscribeCourse(ctx context.Context, id int64) (Ack, error) {
	_, ack, err := c.write(ctx, fmt.Sprintf("/courses/%d/subscribe/", id), nil, storage.OpCreate)
	return ack, err
}
