package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	forgeerrors "github.com/mrz1836/forge/internal/errors"
)

func validMessage() *JobMessage {
	return &JobMessage{
		JobID:      uuid.New(),
		JobName:    "Build",
		JobRefName: "__default",
		TimelineID: uuid.New(),
		Environment: &JobEnvironment{
			Endpoints: []Endpoint{},
			Variables: map[string]string{},
		},
		Plan: &PlanDescriptor{PlanID: uuid.New(), PlanType: "Build"},
	}
}

func TestJobMessage_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*JobMessage)
		wantErr string
	}{
		{"valid", func(*JobMessage) {}, ""},
		{"nil environment", func(m *JobMessage) { m.Environment = nil }, "environment"},
		{"nil endpoints", func(m *JobMessage) { m.Environment.Endpoints = nil }, "endpoints"},
		{"nil variables", func(m *JobMessage) { m.Environment.Variables = nil }, "variables"},
		{"nil plan", func(m *JobMessage) { m.Plan = nil }, "plan"},
		{"zero job id", func(m *JobMessage) { m.JobID = uuid.Nil }, "job id"},
		{"zero timeline id", func(m *JobMessage) { m.TimelineID = uuid.Nil }, "timeline id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := validMessage()
			tt.mutate(msg)
			err := msg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, forgeerrors.ErrInvalidJobMessage)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestJobMessage_ValidateNil(t *testing.T) {
	var msg *JobMessage
	err := msg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, forgeerrors.ErrInvalidJobMessage)
}

func TestJobMessage_EmptyButPresentCollectionsAreValid(t *testing.T) {
	msg := validMessage()
	require.NoError(t, msg.Validate(), "empty endpoint and variable collections are fine; only absent ones fail")
}
