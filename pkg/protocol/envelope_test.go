package protocol_test

import (
	"testing"

	"github.com/kafkasder-portal/kafkaspanel-app-sub001/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestNewGeneratesIDAndTimestamp(t *testing.T) {
	env, err := protocol.New(protocol.TypeMessage, protocol.EventPong, map[string]string{"k": "v"})
	require.NoError(t, err)

	assert.NotEmpty(t, env.ID)
	assert.Positive(t, env.Timestamp)
	assert.Equal(t, "v", gjson.GetBytes(env.Data, "k").String())

	other, err := protocol.New(protocol.TypeMessage, protocol.EventPong, nil)
	require.NoError(t, err)
	assert.NotEqual(t, env.ID, other.ID, "every envelope gets its own id")
}

func TestDecodeRejectsMalformedFrames(t *testing.T) {
	_, err := protocol.Decode([]byte(`{broken`))
	assert.Error(t, err)

	// An event discriminator is mandatory.
	_, err = protocol.Decode([]byte(`{"id":"1","type":"message","data":{}}`))
	assert.Error(t, err)
}

func TestDecodeKeepsRoutingMetadata(t *testing.T) {
	env, err := protocol.Decode([]byte(`{"id":"1","type":"room_broadcast","event":"collaboration:edit","roomId":"R1","userId":"alice","data":{"x":1}}`))
	require.NoError(t, err)

	assert.Equal(t, "R1", env.RoomID)
	assert.Equal(t, "alice", env.UserID)
	assert.Equal(t, "collaboration:edit", env.Event)
}

func TestEventClassification(t *testing.T) {
	assert.True(t, protocol.IsCollaborationEvent("collaboration:cursor"))
	assert.False(t, protocol.IsCollaborationEvent("user:typing"))

	assert.True(t, protocol.IsDomainEvent("beneficiary:created"))
	assert.True(t, protocol.IsDomainEvent("task:assigned"))
	assert.False(t, protocol.IsDomainEvent("debug:whoami"))
}
