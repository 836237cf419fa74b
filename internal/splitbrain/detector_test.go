package splitbrain

import (
	"context"
	"errors"
	"testing"

	"github.com/devrev/litefs-sidecar/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockClusterStateProvider struct {
	mock.Mock
}

func (m *MockClusterStateProvider) ClusterState(ctx context.Context) (model.RaftClusterState, error) {
	args := m.Called(ctx)
	return args.Get(0).(model.RaftClusterState), args.Error(1)
}

type MockEmitter struct {
	mock.Mock
}

func (m *MockEmitter) EmitFailover(event model.FailoverEvent)       { m.Called(event) }
func (m *MockEmitter) EmitSplitBrain(status model.SplitBrainStatus) { m.Called(status) }

func clusterOf(t *testing.T, nodes ...model.RaftNodeState) model.RaftClusterState {
	t.Helper()
	state, err := model.NewRaftClusterState(nodes)
	require.NoError(t, err)
	return state
}

func TestDetectSplitBrain_TwoLeadersOfThree(t *testing.T) {
	ctx := context.Background()
	provider := new(MockClusterStateProvider)
	emitter := new(MockEmitter)

	provider.On("ClusterState", ctx).Return(clusterOf(t,
		model.RaftNodeState{NodeID: "node-3", IsLeader: true},
		model.RaftNodeState{NodeID: "node-1", IsLeader: false},
		model.RaftNodeState{NodeID: "node-2", IsLeader: true},
	), nil)
	emitter.On("EmitSplitBrain", mock.AnythingOfType("model.SplitBrainStatus")).Return()

	d := NewDetector(provider, nil, emitter, zap.NewNop())
	status, err := d.DetectSplitBrain(ctx)
	require.NoError(t, err)

	assert.True(t, status.IsSplitBrain)
	require.Len(t, status.LeaderNodes, 2)
	assert.Equal(t, []string{"node-3", "node-2"}, status.LeaderNodeIDs())
	emitter.AssertNumberOfCalls(t, "EmitSplitBrain", 1)
}

func TestDetectSplitBrain_SingleOrNoLeader(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		leaders int
	}{
		{"single leader", 1},
		{"no leader", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nodes := []model.RaftNodeState{
				{NodeID: "a", IsLeader: tt.leaders > 0},
				{NodeID: "b"},
				{NodeID: "c"},
			}
			provider := new(MockClusterStateProvider)
			provider.On("ClusterState", ctx).Return(clusterOf(t, nodes...), nil)
			emitter := new(MockEmitter)

			status, err := NewDetector(provider, nil, emitter, zap.NewNop()).DetectSplitBrain(ctx)
			require.NoError(t, err)
			assert.False(t, status.IsSplitBrain)
			assert.Len(t, status.LeaderNodes, tt.leaders)
			emitter.AssertNotCalled(t, "EmitSplitBrain", mock.Anything)
		})
	}
}

func TestDetectSplitBrain_ProviderError(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("gossip down")
	provider := new(MockClusterStateProvider)
	provider.On("ClusterState", ctx).Return(model.RaftClusterState{}, boom)

	_, err := NewDetector(provider, nil, nil, zap.NewNop()).DetectSplitBrain(ctx)
	assert.ErrorIs(t, err, boom)
}
