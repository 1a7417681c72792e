package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/avolkov/coursekit/model"
	"github.com/avolkov/coursekit/storage"
)

// Answers maps a task id to the selected answer ids.
type Answers map[string][]int64

// ChapterTest fetches the self-check test attached to a chapter.
func (c *Client) ChapterTest(ctx context.Context, chapterID int64) (model.Test, Source, error) {
	spec := readSpec{
		path:       fmt.Sprintf("/tests/chapter/%d/", chapterID),
		entityType: "test",
		key:        fmt.Sprintf("chapter:%d", chapterID),
	}
	data, src, err := c.read(ctx, spec)
	if err != nil {
		return model.Test{}, src, err
	}
	test, err := decode[model.Test](data)
	return test, src, err
}

// SubmitChapterTest submits self-check answers. When queued offline the
// result is zero; grading arrives once the submission is replayed.
func (c *Client) SubmitChapterTest(ctx context.Context, chapterID int64, answers Answers) (model.TestResult, Ack, error) {
	return c.submit(ctx, fmt.Sprintf("/tests/chapter/%d/submit/", chapterID), answers)
}

// ControlTests lists the control tests available to the current user.
func (c *Client) ControlTests(ctx context.Context) ([]model.ControlTest, Source, error) {
	spec := readSpec{path: "/tests/control/", entityType: "control_tests", key: "all", fanout: "control_test"}
	data, src, err := c.read(ctx, spec)
	if err != nil {
		return nil, src, err
	}
	tests, err := decode[[]model.ControlTest](data)
	return tests, src, err
}

// ControlTest fetches one control test with its tasks.
func (c *Client) ControlTest(ctx context.Context, id int64) (model.ControlTest, Source, error) {
	spec := readSpec{
		path:       fmt.Sprintf("/tests/control/%d/", id),
		entityType: "control_test",
		key:        fmt.Sprintf("%d", id),
	}
	data, src, err := c.read(ctx, spec)
	if err != nil {
		return model.ControlTest{}, src, err
	}
	test, err := decode[model.ControlTest](data)
	return test, src, err
}

// SubmitControlTest submits control test answers.
func (c *Client) SubmitControlTest(ctx context.Context, testID int64, answers Answers) (model.TestResult, Ack, error) {
	return c.submit(ctx, fmt.Sprintf("/tests/control/%d/submit/", testID), answers)
}

func (c *Client) submit(ctx context.Context, path string, answers Answers) (model.TestResult, Ack, error) {
	body, err := json.Marshal(map[string]Answers{"answers": answers})
	if err != nil {
		return model.TestResult{}, Ack{}, err
	}
	data, ack, err := c.write(ctx, path, body, storage.OpCreate)
	if err != nil || ack.Queued {
		return model.TestResult{}, ack, err
	}
	result, err := decode[model.TestResult](data)
	return result, ack, err
}
