package taskqueue

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerFunc(t *testing.T) {
	var processed *Task
	handler := HandlerFunc{
		Types: []TaskType{TaskDocumentIngest},
		Fn: func(ctx context.Context, task *Task) error {
			processed = task
			return nil
		},
	}

	task := &Task{ID: "task-1", Type: TaskDocumentIngest}
	require.NoError(t, handler.ProcessTask(context.Background(), task))
	assert.Equal(t, "task-1", processed.ID)
	assert.Equal(t, []TaskType{TaskDocumentIngest}, handler.TaskTypes())
}

func TestWithLogging(t *testing.T) {
	logger, hook := logrustest.NewNullLogger()

	handler := WithLogging(HandlerFunc{
		Types: []TaskType{TaskDocumentIngest},
		Fn: func(ctx context.Context, task *Task) error {
			return nil
		},
	}, logger)

	task := &Task{ID: "task-1", Type: TaskDocumentIngest, DocumentID: "doc-1"}
	require.NoError(t, handler.ProcessTask(context.Background(), task))

	// 应记录开始和成功两条日志
	entries := hook.AllEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, "Processing task", entries[0].Message)
	assert.Equal(t, "Task processed successfully", entries[1].Message)
	assert.Equal(t, "task-1", entries[1].Data["task_id"])
}

func TestWithLogging_Error(t *testing.T) {
	logger, hook := logrustest.NewNullLogger()

	handler := WithLogging(HandlerFunc{
		Types: []TaskType{TaskDocumentIngest},
		Fn: func(ctx context.Context, task *Task) error {
			return errors.New("parse failed")
		},
	}, logger)

	err := handler.ProcessTask(context.Background(), &Task{ID: "task-1"})
	require.Error(t, err, "Handler error should propagate through the wrapper")

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, "Task processing failed", entry.Message)
}

func TestNewTaskInfo(t *testing.T) {
	task := &Task{
		ID:         "task-1",
		Type:       TaskDocumentIngest,
		DocumentID: "doc-1",
		Status:     StatusProcessing,
	}

	info := NewTaskInfo(task)
	assert.Equal(t, "task-1", info.ID)
	assert.Equal(t, float64(50), info.Progress)

	task.Status = StatusCompleted
	assert.Equal(t, float64(100), NewTaskInfo(task).Progress)

	task.Status = StatusPending
	assert.Equal(t, float64(0), NewTaskInfo(task).Progress)
}

func TestMarshalPayload(t *testing.T) {
	data, err := MarshalPayload(nil)
	require.NoError(t, err)
	assert.JSONEq(t, "{}", string(data), "Nil payload should serialize to an empty object")

	data, err = MarshalPayload(&ReindexPayload{ChunkSize: 500, ChunkOverlap: 20})
	require.NoError(t, err)

	var got ReindexPayload
	require.NoError(t, UnmarshalPayload(data, &got))
	assert.Equal(t, 500, got.ChunkSize)

	// 空数据不应报错
	assert.NoError(t, UnmarshalPayload(nil, &got))
}
