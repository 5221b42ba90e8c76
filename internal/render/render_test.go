package render

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/maauso/listingvideo-api/internal/job"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func ptr(f float64) *float64 { return &f }

func completedJob(id, url string, settings job.GenerationSettings, reported *float64) *job.Job {
	j := job.NewJob("batch_1", settings)
	j.ID = id
	j.Status = job.StatusCompleted
	j.VideoURL = url
	j.DurationSeconds = reported
	return j
}

func TestBuildJobData_DurationPriority(t *testing.T) {
	batch := &job.Batch{ID: "batch_1", ListingID: "listing-1", UserID: "user-1"}
	jobs := []*job.Job{
		completedJob("j1", "https://cdn/1.mp4", job.GenerationSettings{DurationSeconds: ptr(8)}, ptr(6.5)),
		completedJob("j2", "https://cdn/2.mp4", job.GenerationSettings{DurationSeconds: ptr(8)}, nil),
		completedJob("j3", "https://cdn/3.mp4", job.GenerationSettings{}, nil),
	}

	data := BuildJobData("render_1", batch, jobs, BuildOptions{})

	require.Len(t, data.Clips, 3)
	assert.Equal(t, 6.5, data.Clips[0].DurationSeconds, "provider-reported duration wins")
	assert.Equal(t, 8.0, data.Clips[1].DurationSeconds, "settings duration next")
	assert.Equal(t, DefaultClipDurationSeconds, data.Clips[2].DurationSeconds)
	assert.Equal(t, "https://cdn/1.mp4", data.Clips[0].Src)
	assert.Equal(t, "render_1", data.VideoID)
	assert.Equal(t, "listing-1", data.ListingID)
	assert.Equal(t, "user-1", data.UserID)
	assert.Equal(t, DefaultTransitionSeconds, data.TransitionDurationSeconds)
}

func TestBuildJobData_Orientation(t *testing.T) {
	batch := &job.Batch{ID: "batch_1"}

	tests := []struct {
		name string
		jobs []*job.Job
		want job.Orientation
	}{
		{"defaults to vertical", []*job.Job{completedJob("a", "u", job.GenerationSettings{}, nil)}, job.OrientationVertical},
		{"first job wins", []*job.Job{
			completedJob("a", "u", job.GenerationSettings{Orientation: job.OrientationSquare}, nil),
			completedJob("b", "u", job.GenerationSettings{Orientation: job.OrientationHorizontal}, nil),
		}, job.OrientationSquare},
		{"no jobs", nil, job.OrientationVertical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := BuildJobData("v", batch, tt.jobs, BuildOptions{})
			assert.Equal(t, tt.want, data.Orientation)
		})
	}
}

func TestBuildJobData_OverlaysAndTransition(t *testing.T) {
	batch := &job.Batch{ID: "batch_1"}
	jobs := []*job.Job{
		completedJob("j1", "u1", job.GenerationSettings{}, nil),
		completedJob("j2", "u2", job.GenerationSettings{}, nil),
	}

	data := BuildJobData("v", batch, jobs, BuildOptions{
		Overlays:          map[string]job.TextOverlay{"j2": {Text: "3 bed, 2 bath", Position: "bottom"}},
		TransitionSeconds: 1,
	})

	assert.Nil(t, data.Clips[0].TextOverlay)
	require.NotNil(t, data.Clips[1].TextOverlay)
	assert.Equal(t, "3 bed, 2 bath", data.Clips[1].TextOverlay.Text)
	assert.Equal(t, 1.0, data.TransitionDurationSeconds)
	assert.Equal(t, 9.0, data.TotalDurationSeconds())
}

type mockSQS struct {
	mock.Mock
}

func (m *mockSQS) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*sqs.SendMessageOutput)
	return out, args.Error(1)
}

func TestSQSQueue_Submit(t *testing.T) {
	client := &mockSQS{}
	q, err := NewSQSQueue(client, "https://sqs.us-east-1.amazonaws.com/123/render")
	require.NoError(t, err)

	data := JobData{VideoID: "render_1", ListingID: "listing-1", Clips: []Clip{{Src: "u", DurationSeconds: 5}}}
	client.On("SendMessage", mock.Anything, mock.MatchedBy(func(in *sqs.SendMessageInput) bool {
		var got JobData
		if err := json.Unmarshal([]byte(*in.MessageBody), &got); err != nil {
			return false
		}
		return *in.QueueUrl == "https://sqs.us-east-1.amazonaws.com/123/render" &&
			got.VideoID == "render_1" &&
			*in.MessageAttributes["listing_id"].StringValue == "listing-1" &&
			*in.MessageAttributes["clip_count"].StringValue == "1"
	})).Return(&sqs.SendMessageOutput{}, nil)

	require.NoError(t, q.Submit(context.Background(), data))
	client.AssertExpectations(t)
}

func TestSQSQueue_SubmitError(t *testing.T) {
	client := &mockSQS{}
	q, err := NewSQSQueue(client, "https://queue")
	require.NoError(t, err)

	client.On("SendMessage", mock.Anything, mock.Anything).Return(nil, errors.New("throttled"))

	err = q.Submit(context.Background(), JobData{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
}

func TestNewSQSQueue_RequiresURL(t *testing.T) {
	_, err := NewSQSQueue(&mockSQS{}, "")
	assert.ErrorIs(t, err, ErrQueueURLRequired)
}

func TestMemoryQueue(t *testing.T) {
	q := NewMemoryQueue(nil)
	ctx := context.Background()

	require.NoError(t, q.Submit(ctx, JobData{VideoID: "a"}))
	q.FailWith(errors.New("engine down"))
	assert.Error(t, q.Submit(ctx, JobData{VideoID: "b"}))
	q.FailWith(nil)
	require.NoError(t, q.Submit(ctx, JobData{VideoID: "c"}))

	got := q.Submitted()
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].VideoID)
	assert.Equal(t, "c", got[1].VideoID)
}
